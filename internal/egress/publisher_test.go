package egress

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/domain"
)

func TestPublisherRoutesEventsByType(t *testing.T) {
	writer := &stubWriter{}
	publisher := NewPublisher(writer, WithLogger(log.New(testWriter{t}, "", 0)))
	ctx := context.Background()

	require.NoError(t, publisher.HandleEvent(ctx, bus.RecordAdded{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: 1,
	}))
	publisher.Emit(ctx, bus.MissionCompleted{
		UserMissionID: "m1", UserID: "u1", MissionID: "water-8-glasses", PointsAwarded: 10,
	})

	writes := writer.writes()
	require.Len(t, writes, 2)
	require.Equal(t, "tracking_events", writes[0].topic)
	require.Equal(t, "mission_events", writes[1].topic)

	msg := writes[1].msgs[0]
	require.Equal(t, []byte("u1"), msg.Key)
	require.Equal(t, "mission.completed", headerValue(t, msg, "event_type"))
	require.Equal(t, "u1", headerValue(t, msg, "user_id"))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	require.Equal(t, float64(10), payload["PointsAwarded"])
}

func TestPublisherReportsWriteFailures(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker down")}
	publisher := NewPublisher(writer, WithLogger(log.New(testWriter{t}, "", 0)))

	err := publisher.HandleEvent(context.Background(), bus.DayRolled{
		UserID: "u1", PreviousKey: "2025-04-01", NewKey: "2025-04-02",
	})
	require.Error(t, err)

	// Emit swallows the failure so the engine never blocks on the broker.
	publisher.Emit(context.Background(), bus.MissionProgressChanged{
		UserMissionID: "m1", UserID: "u1", ProgressPct: 50, Status: domain.MissionActive,
	})
}

type write struct {
	topic string
	msgs  []kafka.Message
}

type stubWriter struct {
	mu  sync.Mutex
	out []write
	err error
}

func (s *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, write{topic: topic, msgs: msgs})
	return nil
}

func (s *stubWriter) writes() []write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]write, len(s.out))
	copy(out, s.out)
	return out
}

func headerValue(t *testing.T, msg kafka.Message, key string) string {
	t.Helper()
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	t.Fatalf("missing header %s", key)
	return ""
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
