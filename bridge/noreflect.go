//go:build defbridge_noreflect

package bridge

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/defbridge/defbridge/defs"
	"github.com/defbridge/defbridge/handlers"
)

// This file is compiled instead of the real implementation when the
// defbridge_noreflect tag is set. Every operation deterministically fails
// with ErrReflectionDisabled rather than returning partial results.

// DefBuilder is a stub; reflection support is compiled out.
type DefBuilder struct{}

func (*DefBuilder) GetMessageDef(protoreflect.MessageDescriptor) (*defs.MessageDef, error) {
	return nil, ErrReflectionDisabled
}

func (*DefBuilder) GetMessageDefExpandWeak(proto.Message) (*defs.MessageDef, error) {
	return nil, ErrReflectionDisabled
}

func (*DefBuilder) GetEnumDef(protoreflect.EnumDescriptor) (*defs.EnumDef, error) {
	return nil, ErrReflectionDisabled
}

// NewMessageDef is a stub; reflection support is compiled out.
func NewMessageDef(protoreflect.MessageDescriptor) (*defs.MessageDef, error) {
	return nil, ErrReflectionDisabled
}

// CodeCache is a stub; reflection support is compiled out.
type CodeCache struct{}

func (*CodeCache) GetWriteHandlers(proto.Message) (*handlers.Handlers, error) {
	return nil, ErrReflectionDisabled
}

// NewWriteHandlers is a stub; reflection support is compiled out.
func NewWriteHandlers(proto.Message) (*handlers.Handlers, error) {
	return nil, ErrReflectionDisabled
}

// AddFieldHandler is a stub; it never installs a handler.
func AddFieldHandler(proto.Message, protoreflect.FieldDescriptor, *handlers.Handlers) bool {
	return false
}

// GetFieldPrototype is a stub; reflection support is compiled out.
func GetFieldPrototype(proto.Message, protoreflect.FieldDescriptor) (proto.Message, error) {
	return nil, ErrReflectionDisabled
}

// TryGetFieldPrototype is a stub; it never finds a prototype.
func TryGetFieldPrototype(proto.Message, protoreflect.FieldDescriptor) proto.Message {
	return nil
}
