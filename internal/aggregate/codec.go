package aggregate

import (
	"encoding/json"

	"example.com/healthtrack/internal/domain"
)

type aggregatePayload struct {
	Domain           string  `json:"domain"`
	UserID           string  `json:"user_id"`
	LocalDayKey      string  `json:"local_day_key"`
	AccumulatedValue float64 `json:"accumulated_value"`
	RecordCount      int     `json:"record_count"`
	Version          int64   `json:"version"`
	Stale            bool    `json:"stale,omitempty"`
}

func encodeAggregate(agg domain.DayAggregate) ([]byte, error) {
	return json.Marshal(aggregatePayload{
		Domain:           string(agg.Domain),
		UserID:           agg.UserID,
		LocalDayKey:      string(agg.LocalDayKey),
		AccumulatedValue: agg.AccumulatedValue,
		RecordCount:      agg.RecordCount,
		Version:          agg.Version,
		Stale:            agg.Stale,
	})
}

// DecodeAggregate restores a cached aggregate payload.
func DecodeAggregate(body []byte) (domain.DayAggregate, error) {
	var p aggregatePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.DayAggregate{}, err
	}
	return domain.DayAggregate{
		Domain:           domain.Domain(p.Domain),
		UserID:           p.UserID,
		LocalDayKey:      domain.LocalDayKey(p.LocalDayKey),
		AccumulatedValue: p.AccumulatedValue,
		RecordCount:      p.RecordCount,
		Version:          p.Version,
		Stale:            p.Stale,
	}, nil
}
