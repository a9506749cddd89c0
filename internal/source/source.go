package source

import (
	"context"
	"time"
)

// Sample is one historical observation of a data point.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ValueReader resolves the current value of a data point. Implementations
// report failures as errors; callers degrade them to nil values.
type ValueReader interface {
	ReadValue(ctx context.Context, objectID string) (any, error)
}

// HistoryReader retrieves a sampled time series for a data point.
type HistoryReader interface {
	ReadHistory(ctx context.Context, instance, objectID string, window, step time.Duration) ([]Sample, error)
}
