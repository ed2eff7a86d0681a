package kafkahook_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/tickstream/event"
	kafkahook "github.com/xraph/tickstream/kafka_hook"
	"github.com/xraph/tickstream/types"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	w := &mockWriter{}
	ext := kafkahook.New(w)
	sid := types.StreamIDFromUint64(42)

	if err := ext.OnTickProcessed(ctx, event.TickProcessed{StreamID: sid, Viewer: "viewer", Ticks: 3, Cost: 30, LastTick: 3, Block: 7}); err != nil {
		t.Fatal(err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("got %d messages", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "42" {
		t.Errorf("key: got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(event.TypeTickProcessed) {
		t.Errorf("headers: %+v", msg.Headers)
	}

	var env struct {
		ID       string          `json:"id"`
		Type     string          `json:"type"`
		StreamID string          `json:"stream_id"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(env.ID, "evt_") {
		t.Errorf("id: got %q", env.ID)
	}
	if env.Type != string(event.TypeTickProcessed) || env.StreamID != "42" {
		t.Errorf("envelope: %+v", env)
	}

	var data event.TickProcessed
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Cost != 30 || data.LastTick != 3 || data.Block != 7 {
		t.Errorf("data: %+v", data)
	}
}

func TestEventTypeFilter(t *testing.T) {
	ctx := context.Background()
	w := &mockWriter{}
	ext := kafkahook.New(w, kafkahook.WithEventTypes(event.TypeStreamCreated))

	_ = ext.OnStreamCreated(ctx, event.StreamCreated{StreamID: types.StreamIDFromUint64(1)})
	_ = ext.OnViewerJoined(ctx, event.ViewerJoined{StreamID: types.StreamIDFromUint64(1)})

	if len(w.messages) != 1 {
		t.Errorf("got %d messages, want 1", len(w.messages))
	}
}

func TestWriteFailureIsReported(t *testing.T) {
	broker := errors.New("leader not available")
	ext := kafkahook.New(&mockWriter{err: broker})

	err := ext.OnStreamCreated(context.Background(), event.StreamCreated{StreamID: types.StreamIDFromUint64(1)})
	if !errors.Is(err, broker) {
		t.Errorf("expected broker error, got %v", err)
	}
}

func TestShutdownClosesWriter(t *testing.T) {
	w := &mockWriter{}
	if err := kafkahook.New(w).OnShutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestNewWriter(t *testing.T) {
	w := kafkahook.NewWriter("tickstream-events", "localhost:9092")
	if w.Topic != "tickstream-events" {
		t.Errorf("topic: got %q", w.Topic)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Errorf("balancer: got %T", w.Balancer)
	}
}
