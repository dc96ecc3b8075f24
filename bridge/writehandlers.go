//go:build !defbridge_noreflect

package bridge

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/defbridge/defbridge/defs"
	"github.com/defbridge/defbridge/handlers"
)

// NewWriteHandlers returns a frozen handler table that can populate
// messages of the same type as m. For control over handler caching and
// reuse across many types, use a CodeCache instead.
func NewWriteHandlers(m proto.Message) (*handlers.Handlers, error) {
	var cc CodeCache
	return cc.GetWriteHandlers(m)
}

// AddFieldHandler installs a write handler for exactly one field into h,
// which must be an unfrozen table for m's message type. Install handlers
// only for the fields you want populated; the engine discards values for
// all other fields. The field may be a regular field or an extension, as
// long as its containing type matches m's type.
//
// For message-kind fields the handler's Sub table is left nil; attach one
// before freezing h if submessage values should be decoded rather than
// discarded.
//
// AddFieldHandler reports whether the handler was installed.
func AddFieldHandler(m proto.Message, fd protoreflect.FieldDescriptor, h *handlers.Handlers) bool {
	if m == nil || fd == nil || h == nil || h.Frozen() {
		return false
	}
	if fd.ContainingMessage() != m.ProtoReflect().Descriptor() {
		return false
	}

	var f *defs.FieldDef
	if fd.IsExtension() {
		var err error
		f, err = extensionFieldDef(fd, h.MessageDef())
		if err != nil {
			return false
		}
	} else {
		f = h.MessageDef().FindFieldByNumber(defs.FieldNumber(fd.Number()))
		if f == nil {
			return false
		}
	}
	return h.SetFieldHandler(newFieldHandler(f, fd)) == nil
}

// extensionFieldDef builds a frozen free-standing field def for an
// extension of the given message type, along with any defs its type
// references, in a throwaway builder.
func extensionFieldDef(fd protoreflect.FieldDescriptor, extendee *defs.MessageDef) (*defs.FieldDef, error) {
	var b DefBuilder
	f, err := b.fieldDef(fd, nil)
	if err != nil {
		return nil, err
	}
	if err := f.SetExtendee(extendee); err != nil {
		return nil, err
	}
	if err := defs.Freeze(append(b.toFreeze, f)...); err != nil {
		return nil, err
	}
	return f, nil
}

// newFieldHandler builds the callbacks for one field. f is the def the
// handler is keyed by; fd is the foreign descriptor the callbacks close
// over to reach the target's storage.
func newFieldHandler(f *defs.FieldDef, fd protoreflect.FieldDescriptor) *handlers.FieldHandler {
	fh := &handlers.FieldHandler{Field: f}
	switch {
	case f.Type().IsComposite() && fd.Kind() == protoreflect.BytesKind:
		// Weak field: the descriptor can't reach the storage, the carrier
		// interface on the live target can.
		fh.StartSubMessage = func(target protoreflect.Message) (protoreflect.Message, error) {
			c, ok := target.Interface().(WeakFieldCarrier)
			if !ok {
				return nil, fmt.Errorf("bridge: target %s does not carry weak fields", target.Descriptor().FullName())
			}
			return c.MutableWeakField(fd), nil
		}

	case f.IsMap():
		entry := fd.Message()
		fh.StartSubMessage = func(protoreflect.Message) (protoreflect.Message, error) {
			return dynamicpb.NewMessage(entry), nil
		}
		fh.FinishSubMessage = func(target, sub protoreflect.Message) error {
			target.Mutable(fd).Map().Set(sub.Get(fd.MapKey()).MapKey(), sub.Get(fd.MapValue()))
			return nil
		}

	case f.Type().IsComposite() && f.IsRepeated():
		fh.StartSubMessage = func(target protoreflect.Message) (protoreflect.Message, error) {
			return target.Mutable(fd).List().NewElement().Message(), nil
		}
		fh.FinishSubMessage = func(target, sub protoreflect.Message) error {
			target.Mutable(fd).List().Append(protoreflect.ValueOfMessage(sub))
			return nil
		}

	case f.Type().IsComposite():
		// Mutable commits storage into the target directly; there is
		// nothing to finish.
		fh.StartSubMessage = func(target protoreflect.Message) (protoreflect.Message, error) {
			return target.Mutable(fd).Message(), nil
		}

	case f.IsRepeated():
		fh.WriteValue = func(target protoreflect.Message, val protoreflect.Value) error {
			target.Mutable(fd).List().Append(val)
			return nil
		}

	default:
		fh.WriteValue = func(target protoreflect.Message, val protoreflect.Value) error {
			target.Set(fd, val)
			return nil
		}
	}
	return fh
}
