// Package handlers defines the per-field write-callback tables that the
// streaming decode engine dispatches through when populating a target
// message. A table is built for one message type and maps field numbers to
// handlers; field numbers with no handler are discarded by the engine.
//
// Tables follow the same two-state lifecycle as defs: mutable while being
// populated, then frozen in batches. Tables for mutually recursive message
// types hold references to each other through their message-kind handlers
// and must be frozen in one batch.
package handlers

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/defbridge/defbridge/defs"
)

// ErrFrozen is returned by any mutation attempted on a frozen table.
var ErrFrozen = errors.New("handler table is frozen")

// ValueWriter writes one decoded scalar, string, bytes, or enum value into
// the target. The value's type must match the field's declared type.
type ValueWriter func(target protoreflect.Message, val protoreflect.Value) error

// SubMessageStarter returns the message the engine should decode an
// incoming submessage value into. The returned message may be storage
// inside target or a detached staging message that FinishSubMessage later
// commits.
type SubMessageStarter func(target protoreflect.Message) (protoreflect.Message, error)

// SubMessageFinisher commits a completed submessage previously returned by
// the field's SubMessageStarter.
type SubMessageFinisher func(target, sub protoreflect.Message) error

// FieldHandler holds the callbacks for one field. Scalar fields populate
// WriteValue; message, group, and map fields populate StartSubMessage,
// FinishSubMessage, and Sub. A FieldHandler must not be modified after the
// table holding it is frozen.
type FieldHandler struct {
	// Field is the def of the field this handler writes.
	Field *defs.FieldDef

	WriteValue       ValueWriter
	StartSubMessage  SubMessageStarter
	FinishSubMessage SubMessageFinisher

	// Sub is the handler table for the submessage type. It may point back
	// at the containing table (directly or transitively) for recursive
	// message types. A nil Sub makes the engine discard submessage values
	// for the field.
	Sub *Handlers
}

// Handlers is a write-handler table for a single message type.
//
// A Handlers value is not safe for concurrent use until frozen.
type Handlers struct {
	msg      *defs.MessageDef
	byNumber map[defs.FieldNumber]*FieldHandler
	frozen   bool
}

// New returns a new unfrozen handler table for the given message type.
func New(md *defs.MessageDef) *Handlers {
	return &Handlers{
		msg:      md,
		byNumber: map[defs.FieldNumber]*FieldHandler{},
	}
}

// MessageDef returns the message type the table was built for.
func (h *Handlers) MessageDef() *defs.MessageDef { return h.msg }

// Frozen reports whether the table has been frozen.
func (h *Handlers) Frozen() bool { return h.frozen }

// Len returns the number of installed field handlers.
func (h *Handlers) Len() int { return len(h.byNumber) }

// SetFieldHandler installs a handler. The handler's field must be attached
// to the table's message type, or be free-standing (an extension); a
// free-standing field with a recorded extendee must extend the table's
// message type. At most one handler may be installed per field number.
func (h *Handlers) SetFieldHandler(fh *FieldHandler) error {
	if h.frozen {
		return ErrFrozen
	}
	if fh == nil || fh.Field == nil {
		return fmt.Errorf("handler for %s has no field def", h.msg.FullName())
	}
	if ct := fh.Field.ContainingType(); ct != nil && ct != h.msg {
		return fmt.Errorf("field %s belongs to %s, not %s", fh.Field.Name(), ct.FullName(), h.msg.FullName())
	}
	if ext := fh.Field.Extendee(); ext != nil && ext != h.msg {
		return fmt.Errorf("field %s extends %s, not %s", fh.Field.Name(), ext.FullName(), h.msg.FullName())
	}
	if _, ok := h.byNumber[fh.Field.Number()]; ok {
		return fmt.Errorf("table for %s already handles field number %d", h.msg.FullName(), fh.Field.Number())
	}
	h.byNumber[fh.Field.Number()] = fh
	return nil
}

// FieldHandler returns the handler installed for the given field number,
// or nil if values for that number should be discarded.
func (h *Handlers) FieldHandler(n defs.FieldNumber) *FieldHandler { return h.byNumber[n] }

// Freeze freezes the given tables as one atomic batch. Every Sub reference
// held by a member must resolve to a table that is already frozen or also
// in the batch, mirroring defs.Freeze: tables for cyclic message types are
// only freezable together. Validation failure freezes nothing.
func Freeze(tables ...*Handlers) error {
	if len(tables) == 0 {
		return nil
	}
	batch := make(map[*Handlers]struct{}, len(tables))
	for _, h := range tables {
		if h == nil {
			return fmt.Errorf("cannot freeze nil handler table")
		}
		if h.frozen {
			return fmt.Errorf("table for %s is already frozen", h.msg.FullName())
		}
		batch[h] = struct{}{}
	}
	for _, h := range tables {
		for _, fh := range h.byNumber {
			if fh.Sub == nil || fh.Sub.frozen {
				continue
			}
			if _, ok := batch[fh.Sub]; !ok {
				return fmt.Errorf("table for %s: field %d references unfrozen table for %s outside the freeze batch",
					h.msg.FullName(), fh.Field.Number(), fh.Sub.msg.FullName())
			}
		}
	}
	for _, h := range tables {
		h.frozen = true
	}
	return nil
}
