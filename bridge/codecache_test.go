//go:build !defbridge_noreflect

package bridge_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/defbridge/defbridge/bridge"
)

func TestGetWriteHandlersReuse(t *testing.T) {
	fd := compileFixture(t)
	scalars := fixtureMessage(t, fd, "Scalars")
	inner := fixtureMessage(t, fd, "Inner")

	var cc bridge.CodeCache
	h1, err := cc.GetWriteHandlers(dynamicpb.NewMessage(scalars))
	require.NoError(t, err)
	h2, err := cc.GetWriteHandlers(dynamicpb.NewMessage(scalars))
	require.NoError(t, err)
	require.Same(t, h1, h2)

	h3, err := cc.GetWriteHandlers(dynamicpb.NewMessage(inner))
	require.NoError(t, err)
	require.NotSame(t, h1, h3)

	// Inner was already built as a sub table of Scalars; the direct
	// lookup returns the same table
	require.Same(t, h1.FieldHandler(11).Sub, h3)
}

func TestGetWriteHandlersCycle(t *testing.T) {
	fd := compileFixture(t)
	nodeA := fixtureMessage(t, fd, "NodeA")

	var cc bridge.CodeCache
	ha, err := cc.GetWriteHandlers(dynamicpb.NewMessage(nodeA))
	require.NoError(t, err)
	require.True(t, ha.Frozen())

	hb := ha.FieldHandler(1).Sub
	require.NotNil(t, hb)
	require.True(t, hb.Frozen())
	require.Same(t, ha, hb.FieldHandler(1).Sub)

	nodeB := fixtureMessage(t, fd, "NodeB")
	got, err := cc.GetWriteHandlers(dynamicpb.NewMessage(nodeB))
	require.NoError(t, err)
	require.Same(t, hb, got)
}

func TestGetWriteHandlersWeak(t *testing.T) {
	fd := compileFixture(t)
	holder := fixtureMessage(t, fd, "WeakHolder")
	inner := fixtureMessage(t, fd, "Inner")

	w := newWeakMessage(holder, map[protoreflect.FieldNumber]proto.Message{
		1: dynamicpb.NewMessage(inner),
	})

	var cc bridge.CodeCache
	h, err := cc.GetWriteHandlers(w)
	require.NoError(t, err)

	fh := h.FieldHandler(1)
	require.NotNil(t, fh)
	require.NotNil(t, fh.StartSubMessage)
	require.NotNil(t, fh.Sub)
	require.Equal(t, "bridge.test.Inner", fh.Sub.MessageDef().FullName())

	// round trip: the weak handler reaches storage only the carrier knows
	// about
	sub, err := fh.StartSubMessage(w.ProtoReflect())
	require.NoError(t, err)
	require.NoError(t, fh.Sub.FieldHandler(1).WriteValue(sub, protoreflect.ValueOfInt32(42)))

	stored := w.MutableWeakField(holder.Fields().ByNumber(1))
	require.EqualValues(t, 42, stored.Get(inner.Fields().ByNumber(1)).Int())
}

// fickleCarrier answers the weak type query once and then denies the
// field. The def build sees the submessage type, the handler build that
// follows cannot resolve the prototype anymore, and the whole call fails.
type fickleCarrier struct {
	*weakMessage
	revealed bool
}

func (c *fickleCarrier) WeakFieldPrototype(fd protoreflect.FieldDescriptor) proto.Message {
	if c.revealed {
		return nil
	}
	p := c.weakMessage.WeakFieldPrototype(fd)
	if p != nil {
		c.revealed = true
	}
	return p
}

func TestGetWriteHandlersFailureCommitsNothing(t *testing.T) {
	fd := compileFixture(t)
	holder := fixtureMessage(t, fd, "WeakHolder")
	inner := fixtureMessage(t, fd, "Inner")

	bad := &fickleCarrier{weakMessage: newWeakMessage(holder, map[protoreflect.FieldNumber]proto.Message{
		1: dynamicpb.NewMessage(inner),
	})}

	var cc bridge.CodeCache
	_, err := cc.GetWriteHandlers(bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "neither a submessage field nor a weak field")

	// nothing from the failed build was committed: a well-behaved carrier
	// for the same type gets a complete, freshly frozen table rather than
	// a partial leftover
	good := newWeakMessage(holder, map[protoreflect.FieldNumber]proto.Message{
		1: dynamicpb.NewMessage(inner),
	})
	h, err := cc.GetWriteHandlers(good)
	require.NoError(t, err)
	require.True(t, h.Frozen())
	require.Equal(t, holder.Fields().Len(), h.Len())
	require.NotNil(t, h.FieldHandler(1).Sub)
	require.Equal(t, "bridge.test.Inner", h.FieldHandler(1).Sub.MessageDef().FullName())
}

func TestGetWriteHandlersNilMessage(t *testing.T) {
	var cc bridge.CodeCache
	_, err := cc.GetWriteHandlers(nil)
	require.Error(t, err)
}

func TestCodeCachePerGoroutine(t *testing.T) {
	fd := compileFixture(t)
	scalars := fixtureMessage(t, fd, "Scalars")

	// a cache is single-threaded; concurrent decoders each own one
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			var cc bridge.CodeCache
			m := dynamicpb.NewMessage(scalars)
			h, err := cc.GetWriteHandlers(m)
			if err != nil {
				return err
			}
			if err := h.FieldHandler(1).WriteValue(m, protoreflect.ValueOfInt32(int32(i))); err != nil {
				return err
			}
			if got := m.Get(scalars.Fields().ByNumber(1)).Int(); got != int64(i) {
				return fmt.Errorf("wrote %d, read back %d", i, got)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
