//go:build !defbridge_noreflect

package bridge

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// GetFieldPrototype returns a prototype of the submessage type of the
// given field of m. The field must be a submessage field or a weak field.
func GetFieldPrototype(m proto.Message, fd protoreflect.FieldDescriptor) (proto.Message, error) {
	if p := TryGetFieldPrototype(m, fd); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("bridge: field %s is neither a submessage field nor a weak field", fd.FullName())
}

// TryGetFieldPrototype is GetFieldPrototype except that it returns nil
// instead of an error when the field is neither a submessage field nor a
// weak field. A non-nil result for a field whose descriptor does not
// declare a message type is itself the signal that the field is weak.
func TryGetFieldPrototype(m proto.Message, fd protoreflect.FieldDescriptor) proto.Message {
	if fd == nil {
		return nil
	}
	if sub := fd.Message(); sub != nil && !sub.IsPlaceholder() {
		return prototypeFor(sub)
	}
	return weakFieldPrototype(m, fd)
}

// prototypeFor prefers the registered (generated) type for the descriptor
// and falls back to a dynamic message when none is linked in.
func prototypeFor(md protoreflect.MessageDescriptor) proto.Message {
	if mt, err := protoregistry.GlobalTypes.FindMessageByName(md.FullName()); err == nil {
		return mt.Zero().Interface()
	}
	return dynamicpb.NewMessage(md)
}

// weakFieldPrototype returns the true submessage prototype of fd if fd is
// a weak field of m, and nil otherwise. Weak fields are singular bytes
// fields whose containing message implements WeakFieldCarrier.
func weakFieldPrototype(m proto.Message, fd protoreflect.FieldDescriptor) proto.Message {
	if m == nil {
		return nil
	}
	c, ok := m.(WeakFieldCarrier)
	if !ok {
		return nil
	}
	if fd.Kind() != protoreflect.BytesKind || fd.IsList() {
		return nil
	}
	if fd.ContainingMessage() != m.ProtoReflect().Descriptor() {
		return nil
	}
	return c.WeakFieldPrototype(fd)
}
