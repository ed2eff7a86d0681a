// Package kafkahook publishes committed tickstream events to a Kafka topic.
//
// Messages are keyed by stream ID, so a partitioned topic keeps each
// stream's events in commit order.
package kafkahook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/id"
	"github.com/xraph/tickstream/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin          = (*Extension)(nil)
	_ plugin.OnStreamCreated = (*Extension)(nil)
	_ plugin.OnViewerJoined  = (*Extension)(nil)
	_ plugin.OnTickProcessed = (*Extension)(nil)
	_ plugin.OnShutdown      = (*Extension)(nil)
)

// HeaderEventType carries the event type on every message.
const HeaderEventType = "tickstream-event-type"

// Writer is the subset of *kafka.Writer the extension uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Envelope is the JSON message value.
type Envelope struct {
	ID       string      `json:"id"`
	Type     event.Type  `json:"type"`
	StreamID string      `json:"stream_id"`
	Data     event.Event `json:"data"`
}

// Extension is a plugin that writes every ledger event to Kafka.
type Extension struct {
	writer  Writer
	enabled map[event.Type]bool // nil = all enabled
	logger  *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithEventTypes limits publishing to the given event types.
func WithEventTypes(types ...event.Type) Option {
	return func(e *Extension) {
		e.enabled = make(map[event.Type]bool, len(types))
		for _, t := range types {
			e.enabled[t] = true
		}
	}
}

// New creates an Extension publishing through w.
func New(w Writer, opts ...Option) *Extension {
	e := &Extension{
		writer: w,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewWriter returns a synchronous writer for topic that hashes message
// keys to partitions and waits for all in-sync replicas.
func NewWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "kafka-hook" }

// OnStreamCreated implements plugin.OnStreamCreated.
func (e *Extension) OnStreamCreated(ctx context.Context, evt event.StreamCreated) error {
	return e.publish(ctx, evt)
}

// OnViewerJoined implements plugin.OnViewerJoined.
func (e *Extension) OnViewerJoined(ctx context.Context, evt event.ViewerJoined) error {
	return e.publish(ctx, evt)
}

// OnTickProcessed implements plugin.OnTickProcessed.
func (e *Extension) OnTickProcessed(ctx context.Context, evt event.TickProcessed) error {
	return e.publish(ctx, evt)
}

// OnShutdown implements plugin.OnShutdown. It closes the writer when it
// supports closing.
func (e *Extension) OnShutdown(_ context.Context) error {
	if c, ok := e.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *Extension) publish(ctx context.Context, evt event.Event) error {
	if e.enabled != nil && !e.enabled[evt.EventType()] {
		return nil
	}

	key := evt.Stream().String()
	env := Envelope{
		ID:       id.NewEventID().String(),
		Type:     evt.EventType(),
		StreamID: key,
		Data:     evt,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka_hook: encode %s: %w", evt.EventType(), err)
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(evt.EventType())},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka_hook: publish %s: %w", evt.EventType(), err)
	}

	e.logger.Debug("kafka_hook: published",
		"event_id", env.ID,
		"type", string(env.Type),
		"stream_id", key,
	)
	return nil
}
