//go:build !defbridge_noreflect

package bridge

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/defbridge/defbridge/defs"
	"github.com/defbridge/defbridge/handlers"
)

// CodeCache builds and caches write-handler tables for populating message
// types, along with the defs they are keyed by. At most one table exists
// per message def for the lifetime of the cache.
//
// The zero value is ready to use. A CodeCache is NOT safe for concurrent
// use.
type CodeCache struct {
	builder DefBuilder

	// cache maps a frozen message def to its frozen handler table.
	cache map[*defs.MessageDef]*handlers.Handlers

	// pending and toFreeze follow the same build-then-commit discipline as
	// DefBuilder: tables for cyclic message types reference each other and
	// must be frozen as one batch.
	pending  map[*defs.MessageDef]*handlers.Handlers
	toFreeze []*handlers.Handlers
}

// GetWriteHandlers returns a frozen handler table capable of writing every
// field of m's message type, with weak fields expanded through m. Repeated
// calls for the same message type return the identical table.
func (c *CodeCache) GetWriteHandlers(m proto.Message) (*handlers.Handlers, error) {
	if m == nil {
		return nil, fmt.Errorf("bridge: nil message")
	}
	md, err := c.builder.GetMessageDefExpandWeak(m)
	if err != nil {
		return nil, err
	}
	if h, ok := c.cache[md]; ok {
		return h, nil
	}
	h, err := c.writeHandlers(md, m)
	if err != nil {
		c.discard()
		return nil, err
	}
	if err := handlers.Freeze(c.toFreeze...); err != nil {
		c.discard()
		return nil, err
	}
	c.commit()
	return h, nil
}

// writeHandlers returns the table for md, creating an unfrozen one if
// neither the cache nor the current build has it yet. As with defs,
// returning the in-progress table is what terminates recursion over
// cyclic message types.
func (c *CodeCache) writeHandlers(md *defs.MessageDef, m proto.Message) (*handlers.Handlers, error) {
	if h, ok := c.cache[md]; ok {
		return h, nil
	}
	if h, ok := c.pending[md]; ok {
		return h, nil
	}

	h := handlers.New(md)
	c.stage(md, h)

	fields := m.ProtoReflect().Descriptor().Fields()
	for i, length := 0, fields.Len(); i < length; i++ {
		fd := fields.Get(i)
		f := md.FindFieldByNumber(defs.FieldNumber(fd.Number()))
		if f == nil {
			return nil, fmt.Errorf("bridge: def for %s has no field number %d", md.FullName(), fd.Number())
		}
		fh := newFieldHandler(f, fd)
		if f.Type().IsComposite() {
			sub, err := GetFieldPrototype(m, fd)
			if err != nil {
				return nil, err
			}
			subH, err := c.writeHandlers(f.MessageType(), sub)
			if err != nil {
				return nil, err
			}
			fh.Sub = subH
		}
		if err := h.SetFieldHandler(fh); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (c *CodeCache) stage(md *defs.MessageDef, h *handlers.Handlers) {
	if _, ok := c.cache[md]; ok {
		panic(fmt.Sprintf("bridge: handlers for %s staged twice", md.FullName()))
	}
	if _, ok := c.pending[md]; ok {
		panic(fmt.Sprintf("bridge: handlers for %s staged twice", md.FullName()))
	}
	if c.pending == nil {
		c.pending = map[*defs.MessageDef]*handlers.Handlers{}
	}
	c.pending[md] = h
	c.toFreeze = append(c.toFreeze, h)
}

func (c *CodeCache) commit() {
	if c.cache == nil {
		c.cache = map[*defs.MessageDef]*handlers.Handlers{}
	}
	for md, h := range c.pending {
		if _, ok := c.cache[md]; ok {
			panic(fmt.Sprintf("bridge: handlers for %s cached twice", md.FullName()))
		}
		c.cache[md] = h
	}
	c.pending = nil
	c.toFreeze = nil
}

func (c *CodeCache) discard() {
	c.pending = nil
	c.toFreeze = nil
}
