//go:build !defbridge_noreflect

package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/defbridge/defbridge/internal/prototest"
)

const fixtureSource = `
syntax = "proto2";

package bridge.test;

import "google/protobuf/timestamp.proto";

enum Color {
  RED = 0;
  GREEN = 1;
}

message Scalars {
  optional int32 int32_field = 1;
  optional string string_field = 2;
  optional bytes bytes_field = 3;
  repeated int64 repeated_field = 4;
  optional Color color = 5;
  map<string, int32> counts = 6;
  oneof choice {
    string name = 7;
    sint32 id = 8;
  }
  optional group Attrs = 9 {
    optional string key = 10;
  }
  optional Inner inner = 11;
  repeated Inner inners = 12;
  optional google.protobuf.Timestamp stamp = 13;

  extensions 100 to 199;
}

message Inner {
  optional int32 value = 1;
}

message NodeA {
  optional NodeB b = 1;
  optional string label = 2;
}

message NodeB {
  optional NodeA a = 1;
}

message WeakHolder {
  optional bytes payload = 1;
  optional string note = 2;
}

extend Scalars {
  optional int32 ext_field = 100;
}
`

func compileFixture(t *testing.T) protoreflect.FileDescriptor {
	t.Helper()
	fd, err := prototest.Compile(map[string]string{"fixture.proto": fixtureSource}, "fixture.proto")
	require.NoError(t, err)
	return fd
}

func fixtureMessage(t *testing.T, fd protoreflect.FileDescriptor, name protoreflect.Name) protoreflect.MessageDescriptor {
	t.Helper()
	md := fd.Messages().ByName(name)
	require.NotNil(t, md)
	return md
}

// weakMessage is a test message type carrying weak fields: its descriptor
// declares plain bytes fields, and only the type itself knows the true
// submessage types behind them.
type weakMessage struct {
	dyn   *dynamicpb.Message
	weak  map[protoreflect.FieldNumber]proto.Message
	store map[protoreflect.FieldNumber]protoreflect.Message
}

func newWeakMessage(md protoreflect.MessageDescriptor, weak map[protoreflect.FieldNumber]proto.Message) *weakMessage {
	return &weakMessage{
		dyn:   dynamicpb.NewMessage(md),
		weak:  weak,
		store: map[protoreflect.FieldNumber]protoreflect.Message{},
	}
}

func (w *weakMessage) ProtoReflect() protoreflect.Message {
	return weakReflect{Message: w.dyn, owner: w}
}

func (w *weakMessage) WeakFieldPrototype(fd protoreflect.FieldDescriptor) proto.Message {
	return w.weak[fd.Number()]
}

func (w *weakMessage) MutableWeakField(fd protoreflect.FieldDescriptor) protoreflect.Message {
	if m, ok := w.store[fd.Number()]; ok {
		return m
	}
	p, ok := w.weak[fd.Number()]
	if !ok {
		return nil
	}
	m := p.ProtoReflect().New()
	w.store[fd.Number()] = m
	return m
}

// weakReflect delegates reflection to the embedded dynamic message but
// reports the carrier as the message interface, so handlers can reach the
// weak storage through the target.
type weakReflect struct {
	protoreflect.Message
	owner *weakMessage
}

func (r weakReflect) Interface() protoreflect.ProtoMessage { return r.owner }
