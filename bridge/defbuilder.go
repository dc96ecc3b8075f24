//go:build !defbridge_noreflect

package bridge

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/defbridge/defbridge/defs"
)

// DefBuilder builds defs from protobuf descriptors and caches every def it
// builds for reuse. CodeCache uses a DefBuilder internally; there is no
// need to use one directly unless you only want defs without corresponding
// handler tables.
//
// The zero value is ready to use. A DefBuilder is NOT safe for concurrent
// use, and must not be re-entered from within an in-progress build.
type DefBuilder struct {
	// cache maps a descriptor to the def built for it. Keys are compared
	// by interface identity; descriptor canonicality makes that sound.
	cache map[protoreflect.Descriptor]defs.Def

	// pending holds defs created during the current top-level build. They
	// move into cache in one step once the whole batch is frozen, so a
	// failed build never leaves partial entries behind.
	pending  map[protoreflect.Descriptor]defs.Def
	toFreeze []defs.Def
}

// GetMessageDef returns the frozen message def for the given descriptor,
// building it (and every def reachable from it) on first use. Repeated
// calls with the same descriptor return the identical def.
//
// Weak fields are left as the bytes fields their descriptors declare; use
// GetMessageDefExpandWeak to resolve them. Both entry points share the
// builder's cache, so whichever path builds a descriptor first fixes the
// translation of that descriptor for this builder.
func (b *DefBuilder) GetMessageDef(d protoreflect.MessageDescriptor) (*defs.MessageDef, error) {
	if d == nil {
		return nil, fmt.Errorf("bridge: nil message descriptor")
	}
	return b.buildMessage(d, nil)
}

// GetMessageDefExpandWeak returns the frozen message def for the given
// message's type, with every weak field's def rewritten to describe the
// true submessage type discovered through the instance. The instance is
// used only as a type source and is never modified.
func (b *DefBuilder) GetMessageDefExpandWeak(m proto.Message) (*defs.MessageDef, error) {
	if m == nil {
		return nil, fmt.Errorf("bridge: nil message")
	}
	return b.buildMessage(m.ProtoReflect().Descriptor(), m)
}

// GetEnumDef returns the frozen enum def for the given descriptor,
// building it on first use. Enums cannot participate in reference cycles,
// so they are built eagerly and frozen immediately.
func (b *DefBuilder) GetEnumDef(d protoreflect.EnumDescriptor) (*defs.EnumDef, error) {
	if d == nil {
		return nil, fmt.Errorf("bridge: nil enum descriptor")
	}
	if cached := b.find(d); cached != nil {
		return cached.(*defs.EnumDef), nil
	}
	e, err := b.enumDef(d)
	if err != nil {
		b.discard()
		return nil, err
	}
	b.commit()
	return e, nil
}

// NewMessageDef converts a single descriptor without retaining a cache,
// using a throwaway builder.
func NewMessageDef(d protoreflect.MessageDescriptor) (*defs.MessageDef, error) {
	var b DefBuilder
	return b.GetMessageDef(d)
}

// buildMessage runs one top-level build: traverse, freeze the batch,
// commit. On any error the pending state is discarded and the committed
// cache is left exactly as it was.
func (b *DefBuilder) buildMessage(d protoreflect.MessageDescriptor, m proto.Message) (*defs.MessageDef, error) {
	md, err := b.messageDef(d, m)
	if err != nil {
		b.discard()
		return nil, err
	}
	if err := defs.Freeze(b.toFreeze...); err != nil {
		b.discard()
		return nil, err
	}
	b.commit()
	return md, nil
}

// messageDef returns the def for d, creating an unfrozen one if neither
// the cache nor the current build has it yet. Returning an in-progress
// (unfrozen) def is what terminates recursion over cyclic type graphs.
//
// If m is non-nil, weak fields of d are expanded through it and prototypes
// are propagated to submessage builds so that nested weak fields expand
// too.
func (b *DefBuilder) messageDef(d protoreflect.MessageDescriptor, m proto.Message) (*defs.MessageDef, error) {
	if cached := b.find(d); cached != nil {
		return cached.(*defs.MessageDef), nil
	}

	md := defs.NewMessageDef(string(d.FullName()))
	if d.IsMapEntry() {
		if err := md.SetMapEntry(true); err != nil {
			return nil, err
		}
	}
	b.stage(d, md)

	// Synthetic oneofs exist only to mark proto3 optional fields and have
	// no counterpart in the def model; their members stay plain fields.
	oneofs := map[int]*defs.OneofDef{}
	ods := d.Oneofs()
	for i, length := 0, ods.Len(); i < length; i++ {
		od := ods.Get(i)
		if od.IsSynthetic() {
			continue
		}
		o := defs.NewOneofDef(string(od.Name()))
		if err := md.AddOneof(o); err != nil {
			return nil, err
		}
		b.stage(od, o)
		oneofs[od.Index()] = o
	}

	fields := d.Fields()
	for i, length := 0, fields.Len(); i < length; i++ {
		fd := fields.Get(i)
		f, err := b.fieldDef(fd, m)
		if err != nil {
			return nil, err
		}
		if err := md.AddField(f); err != nil {
			return nil, err
		}
		if od := fd.ContainingOneof(); od != nil && !od.IsSynthetic() {
			if err := oneofs[od.Index()].AddField(f); err != nil {
				return nil, err
			}
		}
		b.toFreeze = append(b.toFreeze, f)
	}
	return md, nil
}

// fieldDef returns a new unfrozen field def for fd. Field defs are always
// newly created, never cached: the same field descriptor may legitimately
// translate differently depending on weak expansion.
func (b *DefBuilder) fieldDef(fd protoreflect.FieldDescriptor, m proto.Message) (*defs.FieldDef, error) {
	name := string(fd.Name())
	number := defs.FieldNumber(fd.Number())
	card := cardinality(fd)

	if sub := weakFieldPrototype(m, fd); sub != nil {
		// The descriptor says bytes; the live instance says otherwise.
		// Record the true submessage type.
		f := defs.NewFieldDef(name, number, defs.TypeMessage, card)
		subDef, err := b.messageDef(sub.ProtoReflect().Descriptor(), sub)
		if err != nil {
			return nil, err
		}
		if err := f.SetMessageType(subDef); err != nil {
			return nil, err
		}
		return f, nil
	}

	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		ftype := defs.TypeMessage
		if fd.Kind() == protoreflect.GroupKind {
			ftype = defs.TypeGroup
		}
		subDesc := fd.Message()
		if subDesc == nil || subDesc.IsPlaceholder() {
			return nil, fmt.Errorf("bridge: field %s: dangling submessage type reference", fd.FullName())
		}
		var subProto proto.Message
		if m != nil {
			subProto = TryGetFieldPrototype(m, fd)
		}
		f := defs.NewFieldDef(name, number, ftype, card)
		subDef, err := b.messageDef(subDesc, subProto)
		if err != nil {
			return nil, err
		}
		if err := f.SetMessageType(subDef); err != nil {
			return nil, err
		}
		return f, nil

	case protoreflect.EnumKind:
		enumDesc := fd.Enum()
		if enumDesc == nil || enumDesc.IsPlaceholder() {
			return nil, fmt.Errorf("bridge: field %s: dangling enum type reference", fd.FullName())
		}
		f := defs.NewFieldDef(name, number, defs.TypeEnum, card)
		e, err := b.enumDef(enumDesc)
		if err != nil {
			return nil, err
		}
		if err := f.SetEnumType(e); err != nil {
			return nil, err
		}
		return f, nil

	default:
		return defs.NewFieldDef(name, number, fieldType(fd.Kind()), card), nil
	}
}

// enumDef returns the def for d, building and freezing it on first use.
// The new def is staged like any other and only committed with the build.
func (b *DefBuilder) enumDef(d protoreflect.EnumDescriptor) (*defs.EnumDef, error) {
	if cached := b.find(d); cached != nil {
		return cached.(*defs.EnumDef), nil
	}
	e := defs.NewEnumDef(string(d.FullName()))
	vals := d.Values()
	for i, length := 0, vals.Len(); i < length; i++ {
		v := vals.Get(i)
		if err := e.AddValue(string(v.Name()), int32(v.Number())); err != nil {
			return nil, err
		}
	}
	if err := defs.Freeze(e); err != nil {
		return nil, err
	}
	b.stage(d, e)
	return e, nil
}

func (b *DefBuilder) find(d protoreflect.Descriptor) defs.Def {
	if def, ok := b.cache[d]; ok {
		return def
	}
	if def, ok := b.pending[d]; ok {
		return def
	}
	return nil
}

func (b *DefBuilder) stage(d protoreflect.Descriptor, def defs.Def) {
	if _, ok := b.cache[d]; ok {
		panic(fmt.Sprintf("bridge: descriptor %s staged twice", d.FullName()))
	}
	if _, ok := b.pending[d]; ok {
		panic(fmt.Sprintf("bridge: descriptor %s staged twice", d.FullName()))
	}
	if b.pending == nil {
		b.pending = map[protoreflect.Descriptor]defs.Def{}
	}
	b.pending[d] = def
	if !def.Frozen() {
		b.toFreeze = append(b.toFreeze, def)
	}
}

func (b *DefBuilder) commit() {
	if b.cache == nil {
		b.cache = map[protoreflect.Descriptor]defs.Def{}
	}
	for d, def := range b.pending {
		if _, ok := b.cache[d]; ok {
			panic(fmt.Sprintf("bridge: descriptor %s cached twice", d.FullName()))
		}
		b.cache[d] = def
	}
	b.pending = nil
	b.toFreeze = nil
}

func (b *DefBuilder) discard() {
	b.pending = nil
	b.toFreeze = nil
}

func cardinality(fd protoreflect.FieldDescriptor) defs.Cardinality {
	switch fd.Cardinality() {
	case protoreflect.Repeated:
		return defs.Repeated
	case protoreflect.Required:
		return defs.Required
	default:
		return defs.Optional
	}
}

func fieldType(k protoreflect.Kind) defs.FieldType {
	switch k {
	case protoreflect.DoubleKind:
		return defs.TypeDouble
	case protoreflect.FloatKind:
		return defs.TypeFloat
	case protoreflect.Int64Kind:
		return defs.TypeInt64
	case protoreflect.Uint64Kind:
		return defs.TypeUint64
	case protoreflect.Int32Kind:
		return defs.TypeInt32
	case protoreflect.Fixed64Kind:
		return defs.TypeFixed64
	case protoreflect.Fixed32Kind:
		return defs.TypeFixed32
	case protoreflect.BoolKind:
		return defs.TypeBool
	case protoreflect.StringKind:
		return defs.TypeString
	case protoreflect.GroupKind:
		return defs.TypeGroup
	case protoreflect.MessageKind:
		return defs.TypeMessage
	case protoreflect.BytesKind:
		return defs.TypeBytes
	case protoreflect.Uint32Kind:
		return defs.TypeUint32
	case protoreflect.EnumKind:
		return defs.TypeEnum
	case protoreflect.Sfixed32Kind:
		return defs.TypeSfixed32
	case protoreflect.Sfixed64Kind:
		return defs.TypeSfixed64
	case protoreflect.Sint32Kind:
		return defs.TypeSint32
	case protoreflect.Sint64Kind:
		return defs.TypeSint64
	default:
		panic(fmt.Sprintf("bridge: unknown field kind %v", k))
	}
}
