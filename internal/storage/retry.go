package storage

import (
	"context"
	"errors"
	"time"

	"github.com/semptify/backend/internal/metrics"
)

// retrySchedule is the backoff between attempts: 3 retries max.
var retrySchedule = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// WithRetry runs fn, retrying only transient ErrUnavailable failures with
// exponential backoff. Any other error, and exhaustion, surfaces to the
// caller unchanged.
func WithRetry(ctx context.Context, m *metrics.Metrics, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		if attempt >= len(retrySchedule) {
			return err
		}
		if m != nil {
			m.StorageRetries.WithLabelValues(op).Inc()
		}
		select {
		case <-time.After(retrySchedule[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
