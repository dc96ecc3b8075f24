package bridge

import (
	"errors"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ErrReflectionDisabled is returned by every operation when the package is
// built with the defbridge_noreflect tag.
var ErrReflectionDisabled = errors.New("bridge: built without reflection support")

// WeakFieldCarrier is implemented by message types that carry weak fields.
// A weak field's descriptor reports a plain bytes type; only the live
// message type knows the true submessage type behind it. If you don't know
// what a weak field is, you are probably not using one.
type WeakFieldCarrier interface {
	proto.Message

	// WeakFieldPrototype returns a prototype of the true submessage type
	// of the given weak field, or nil if the field is an ordinary bytes
	// field. The prototype is used only for type information.
	WeakFieldPrototype(fd protoreflect.FieldDescriptor) proto.Message

	// MutableWeakField returns mutable storage for the given weak field on
	// this instance, for the decode engine to populate.
	MutableWeakField(fd protoreflect.FieldDescriptor) protoreflect.Message
}
