package egress

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/healthtrack/internal/bus"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// routing maps an event type to its topic. The partition key is always the
// event's user key so per-user ordering carries through Kafka.
var routing = map[string]string{
	bus.RecordAdded{}.EventType():            "tracking_events",
	bus.DayRolled{}.EventType():              "tracking_events",
	bus.CacheCleared{}.EventType():           "cache_events",
	bus.MissionProgressChanged{}.EventType(): "mission_events",
	bus.MissionCompleted{}.EventType():       "mission_events",
}

// Option configures optional behaviour for the Publisher.
type Option func(*Publisher)

// WithLogger overrides the publisher logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// Publisher forwards bus events to Kafka as JSON with event_type and
// user_id headers. It implements both bus.Handler (subscription) and
// mission.Emitter (direct engine output).
type Publisher struct {
	producer messageWriter
	logger   *log.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(producer messageWriter, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		logger:   log.New(log.Writer(), "[egress] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleEvent implements bus.Handler.
func (p *Publisher) HandleEvent(ctx context.Context, evt bus.Event) error {
	return p.publish(ctx, evt)
}

// Emit implements mission.Emitter. Delivery failures are logged and
// counted; the engine never blocks on the broker.
func (p *Publisher) Emit(ctx context.Context, evt bus.Event) {
	if err := p.publish(ctx, evt); err != nil {
		p.logger.Printf("emit failed (event_type=%s): %v", evt.EventType(), err)
	}
}

func (p *Publisher) publish(ctx context.Context, evt bus.Event) error {
	topic, ok := routing[evt.EventType()]
	if !ok {
		// Unrouted event types stay internal.
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.UserKey()),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType())},
			{Key: "user_id", Value: []byte(evt.UserKey())},
		},
	}

	if err := p.producer.WriteMessages(ctx, topic, msg); err != nil {
		recordPublishFailure(topic)
		return err
	}
	recordPublished(topic, evt.EventType())
	return nil
}
