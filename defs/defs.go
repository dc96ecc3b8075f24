// Package defs contains the schema objects ("defs") that describe message
// types, fields, enums, and oneofs to the streaming decode engine.
//
// Defs have a two-state lifecycle. A newly created def is unfrozen: fields
// may be attached, type references may still point at other unfrozen defs,
// and the object must only be touched by its creator. Calling Freeze on a
// batch of defs transitions all of them to the frozen state at once, after
// which they are immutable and safe to share across goroutines for reading.
// Cyclic type graphs are legal as long as every def in the cycle is frozen
// in the same batch.
package defs

import (
	"errors"
	"fmt"
)

// ErrFrozen is returned by any mutation attempted on a frozen def.
var ErrFrozen = errors.New("def is frozen")

// FieldNumber is the numeric tag of a field within its message type.
type FieldNumber int32

// FieldType identifies the declared type of a field.
type FieldType int32

const (
	TypeDouble FieldType = iota + 1
	TypeFloat
	TypeInt64
	TypeUint64
	TypeInt32
	TypeFixed64
	TypeFixed32
	TypeBool
	TypeString
	TypeGroup
	TypeMessage
	TypeBytes
	TypeUint32
	TypeEnum
	TypeSfixed32
	TypeSfixed64
	TypeSint32
	TypeSint64
)

// IsComposite reports whether the type carries a submessage reference.
func (t FieldType) IsComposite() bool {
	return t == TypeMessage || t == TypeGroup
}

// Cardinality describes how many values a field may hold.
type Cardinality int32

const (
	Optional Cardinality = iota + 1
	Required
	Repeated
)

// Def is the interface shared by all schema objects in this package. It is
// a closed set: MessageDef, FieldDef, EnumDef, and OneofDef.
type Def interface {
	// FullName returns the dot-separated fully-qualified name of the def.
	FullName() string
	// Frozen reports whether the def has been frozen.
	Frozen() bool

	validate(batch map[Def]struct{}) error
	setFrozen()
}

var (
	_ Def = (*MessageDef)(nil)
	_ Def = (*FieldDef)(nil)
	_ Def = (*EnumDef)(nil)
	_ Def = (*OneofDef)(nil)
)

// MessageDef describes a message type: an ordered set of fields, keyed by
// number and by name, plus any oneofs declared by the type.
type MessageDef struct {
	fullName string
	mapEntry bool
	fields   []*FieldDef
	byNumber map[FieldNumber]*FieldDef
	byName   map[string]*FieldDef
	oneofs   []*OneofDef
	frozen   bool
}

// NewMessageDef returns a new unfrozen message def with the given
// fully-qualified name.
func NewMessageDef(fullName string) *MessageDef {
	return &MessageDef{
		fullName: fullName,
		byNumber: map[FieldNumber]*FieldDef{},
		byName:   map[string]*FieldDef{},
	}
}

// FullName implements Def.
func (m *MessageDef) FullName() string { return m.fullName }

// Frozen implements Def.
func (m *MessageDef) Frozen() bool { return m.frozen }

// IsMapEntry reports whether this type is the synthetic entry type of a
// map field.
func (m *MessageDef) IsMapEntry() bool { return m.mapEntry }

// SetMapEntry marks this type as a synthetic map entry type.
func (m *MessageDef) SetMapEntry(mapEntry bool) error {
	if m.frozen {
		return ErrFrozen
	}
	m.mapEntry = mapEntry
	return nil
}

// AddField attaches the given field to this message type. The field's
// number and name must not collide with a previously added field.
func (m *MessageDef) AddField(f *FieldDef) error {
	if m.frozen {
		return ErrFrozen
	}
	if f.frozen {
		return fmt.Errorf("adding field %s to %s: %w", f.name, m.fullName, ErrFrozen)
	}
	if f.containing != nil {
		return fmt.Errorf("field %s already belongs to %s", f.name, f.containing.fullName)
	}
	if f.extendee != nil {
		return fmt.Errorf("field %s extends %s, cannot be attached", f.name, f.extendee.fullName)
	}
	if _, ok := m.byNumber[f.number]; ok {
		return fmt.Errorf("message %s already has a field with number %d", m.fullName, f.number)
	}
	if _, ok := m.byName[f.name]; ok {
		return fmt.Errorf("message %s already has a field named %q", m.fullName, f.name)
	}
	f.containing = m
	m.fields = append(m.fields, f)
	m.byNumber[f.number] = f
	m.byName[f.name] = f
	return nil
}

// AddOneof attaches the given oneof to this message type.
func (m *MessageDef) AddOneof(o *OneofDef) error {
	if m.frozen {
		return ErrFrozen
	}
	if o.containing != nil {
		return fmt.Errorf("oneof %s already belongs to %s", o.name, o.containing.fullName)
	}
	o.containing = m
	m.oneofs = append(m.oneofs, o)
	return nil
}

// Fields returns the message's fields in declaration order. The returned
// slice must not be modified.
func (m *MessageDef) Fields() []*FieldDef { return m.fields }

// Oneofs returns the message's oneofs in declaration order. The returned
// slice must not be modified.
func (m *MessageDef) Oneofs() []*OneofDef { return m.oneofs }

// FindFieldByNumber returns the field with the given number, or nil.
func (m *MessageDef) FindFieldByNumber(n FieldNumber) *FieldDef { return m.byNumber[n] }

// FindFieldByName returns the field with the given short name, or nil.
func (m *MessageDef) FindFieldByName(name string) *FieldDef { return m.byName[name] }

func (m *MessageDef) validate(batch map[Def]struct{}) error {
	for _, f := range m.fields {
		if err := requireSettled(f, batch); err != nil {
			return fmt.Errorf("message %s: %w", m.fullName, err)
		}
	}
	for _, o := range m.oneofs {
		if err := requireSettled(o, batch); err != nil {
			return fmt.Errorf("message %s: %w", m.fullName, err)
		}
	}
	return nil
}

func (m *MessageDef) setFrozen() { m.frozen = true }

// FieldDef describes a single field of a message type. A field def may be
// free-standing (an extension) or attached to a containing MessageDef.
type FieldDef struct {
	name       string
	number     FieldNumber
	ftype      FieldType
	card       Cardinality
	msgType    *MessageDef
	enumType   *EnumDef
	oneof      *OneofDef
	containing *MessageDef
	extendee   *MessageDef
	frozen     bool
}

// NewFieldDef returns a new unfrozen field def.
func NewFieldDef(name string, number FieldNumber, ftype FieldType, card Cardinality) *FieldDef {
	return &FieldDef{name: name, number: number, ftype: ftype, card: card}
}

// FullName implements Def. For attached fields this is the containing
// type's name plus the field name; free-standing fields use the bare name.
func (f *FieldDef) FullName() string {
	if f.containing != nil {
		return f.containing.fullName + "." + f.name
	}
	return f.name
}

// Frozen implements Def.
func (f *FieldDef) Frozen() bool { return f.frozen }

// Name returns the field's short name.
func (f *FieldDef) Name() string { return f.name }

// Number returns the field's numeric tag.
func (f *FieldDef) Number() FieldNumber { return f.number }

// Type returns the field's declared type.
func (f *FieldDef) Type() FieldType { return f.ftype }

// Cardinality returns the field's cardinality.
func (f *FieldDef) Cardinality() Cardinality { return f.card }

// IsRepeated reports whether the field holds multiple values.
func (f *FieldDef) IsRepeated() bool { return f.card == Repeated }

// IsMap reports whether the field is a map field, i.e. a repeated field
// whose type is a synthetic map entry message.
func (f *FieldDef) IsMap() bool {
	return f.card == Repeated && f.msgType != nil && f.msgType.mapEntry
}

// MessageType returns the referenced message type for message and group
// fields, or nil for all other types.
func (f *FieldDef) MessageType() *MessageDef { return f.msgType }

// EnumType returns the referenced enum type for enum fields, or nil.
func (f *FieldDef) EnumType() *EnumDef { return f.enumType }

// Oneof returns the oneof the field is a member of, or nil.
func (f *FieldDef) Oneof() *OneofDef { return f.oneof }

// ContainingType returns the message type the field is attached to, or nil
// for free-standing (extension) fields.
func (f *FieldDef) ContainingType() *MessageDef { return f.containing }

// Extendee returns the message type a free-standing field extends, or nil
// if none was recorded.
func (f *FieldDef) Extendee() *MessageDef { return f.extendee }

// SetExtendee records the message type this field extends. Only
// free-standing fields may have an extendee; a field with one cannot be
// attached to a message type.
func (f *FieldDef) SetExtendee(md *MessageDef) error {
	if f.frozen {
		return ErrFrozen
	}
	if f.containing != nil {
		return fmt.Errorf("field %s belongs to %s, cannot extend another type", f.name, f.containing.fullName)
	}
	f.extendee = md
	return nil
}

// SetMessageType sets the referenced message type. The field's type must
// be TypeMessage or TypeGroup.
func (f *FieldDef) SetMessageType(md *MessageDef) error {
	if f.frozen {
		return ErrFrozen
	}
	if !f.ftype.IsComposite() {
		return fmt.Errorf("field %s has type %d, cannot reference a message type", f.name, f.ftype)
	}
	f.msgType = md
	return nil
}

// SetEnumType sets the referenced enum type. The field's type must be
// TypeEnum.
func (f *FieldDef) SetEnumType(ed *EnumDef) error {
	if f.frozen {
		return ErrFrozen
	}
	if f.ftype != TypeEnum {
		return fmt.Errorf("field %s has type %d, cannot reference an enum type", f.name, f.ftype)
	}
	f.enumType = ed
	return nil
}

func (f *FieldDef) validate(batch map[Def]struct{}) error {
	if f.ftype.IsComposite() {
		if f.msgType == nil {
			return fmt.Errorf("field %s: dangling submessage type reference", f.FullName())
		}
		if err := requireSettled(f.msgType, batch); err != nil {
			return fmt.Errorf("field %s: %w", f.FullName(), err)
		}
	}
	if f.ftype == TypeEnum {
		if f.enumType == nil {
			return fmt.Errorf("field %s: dangling enum type reference", f.FullName())
		}
		if err := requireSettled(f.enumType, batch); err != nil {
			return fmt.Errorf("field %s: %w", f.FullName(), err)
		}
	}
	if f.extendee != nil {
		if err := requireSettled(f.extendee, batch); err != nil {
			return fmt.Errorf("field %s: %w", f.FullName(), err)
		}
	}
	if f.oneof != nil && f.oneof.containing != f.containing {
		return fmt.Errorf("field %s: oneof %s belongs to a different message", f.FullName(), f.oneof.name)
	}
	return nil
}

func (f *FieldDef) setFrozen() { f.frozen = true }

// OneofDef describes a oneof: a group of fields of which at most one may
// be set on a message at a time.
type OneofDef struct {
	name       string
	fields     []*FieldDef
	containing *MessageDef
	frozen     bool
}

// NewOneofDef returns a new unfrozen oneof def.
func NewOneofDef(name string) *OneofDef {
	return &OneofDef{name: name}
}

// FullName implements Def.
func (o *OneofDef) FullName() string {
	if o.containing != nil {
		return o.containing.fullName + "." + o.name
	}
	return o.name
}

// Frozen implements Def.
func (o *OneofDef) Frozen() bool { return o.frozen }

// Name returns the oneof's short name.
func (o *OneofDef) Name() string { return o.name }

// ContainingType returns the message type the oneof is declared in.
func (o *OneofDef) ContainingType() *MessageDef { return o.containing }

// Fields returns the oneof's member fields. The returned slice must not
// be modified.
func (o *OneofDef) Fields() []*FieldDef { return o.fields }

// AddField makes the given field a member of this oneof. The field must
// already be attached to the oneof's containing message type.
func (o *OneofDef) AddField(f *FieldDef) error {
	if o.frozen {
		return ErrFrozen
	}
	if f.containing == nil || f.containing != o.containing {
		return fmt.Errorf("field %s does not belong to %s", f.name, o.FullName())
	}
	if f.oneof != nil {
		return fmt.Errorf("field %s is already a member of oneof %s", f.name, f.oneof.name)
	}
	f.oneof = o
	o.fields = append(o.fields, f)
	return nil
}

func (o *OneofDef) validate(batch map[Def]struct{}) error {
	if len(o.fields) == 0 {
		return fmt.Errorf("oneof %s has no member fields", o.FullName())
	}
	for _, f := range o.fields {
		if err := requireSettled(f, batch); err != nil {
			return fmt.Errorf("oneof %s: %w", o.FullName(), err)
		}
	}
	return nil
}

func (o *OneofDef) setFrozen() { o.frozen = true }

// EnumDef describes an enum type: a bidirectional mapping between value
// names and numbers. Enums reference no other defs and so can always be
// frozen on their own.
type EnumDef struct {
	fullName string
	byName   map[string]int32
	byNumber map[int32]string
	frozen   bool
}

// NewEnumDef returns a new unfrozen enum def with the given
// fully-qualified name.
func NewEnumDef(fullName string) *EnumDef {
	return &EnumDef{
		fullName: fullName,
		byName:   map[string]int32{},
		byNumber: map[int32]string{},
	}
}

// FullName implements Def.
func (e *EnumDef) FullName() string { return e.fullName }

// Frozen implements Def.
func (e *EnumDef) Frozen() bool { return e.frozen }

// AddValue adds a named value. Duplicate names are rejected; duplicate
// numbers are allowed (aliases) and the first name registered for a number
// wins the reverse lookup.
func (e *EnumDef) AddValue(name string, number int32) error {
	if e.frozen {
		return ErrFrozen
	}
	if _, ok := e.byName[name]; ok {
		return fmt.Errorf("enum %s already has a value named %q", e.fullName, name)
	}
	e.byName[name] = number
	if _, ok := e.byNumber[number]; !ok {
		e.byNumber[number] = name
	}
	return nil
}

// ValueByName returns the number of the named value.
func (e *EnumDef) ValueByName(name string) (int32, bool) {
	n, ok := e.byName[name]
	return n, ok
}

// ValueByNumber returns the canonical name for the given number.
func (e *EnumDef) ValueByNumber(number int32) (string, bool) {
	name, ok := e.byNumber[number]
	return name, ok
}

// NumValues returns the number of distinct value names.
func (e *EnumDef) NumValues() int { return len(e.byName) }

func (e *EnumDef) validate(map[Def]struct{}) error {
	if len(e.byName) == 0 {
		return fmt.Errorf("enum %s has no values", e.fullName)
	}
	return nil
}

func (e *EnumDef) setFrozen() { e.frozen = true }

// requireSettled checks that the given def is already frozen or is part of
// the batch currently being frozen.
func requireSettled(d Def, batch map[Def]struct{}) error {
	if d.Frozen() {
		return nil
	}
	if _, ok := batch[d]; ok {
		return nil
	}
	return fmt.Errorf("references unfrozen def %s outside the freeze batch", d.FullName())
}
