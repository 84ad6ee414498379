// Package timex holds small time helpers: a Duration type that unmarshals
// from JSON strings like "30m" as well as integer nanoseconds, and a
// minimum-duration wrapper used to normalize response timing on
// enumeration-sensitive operations.
package timex

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Duration wraps time.Duration for JSON config files.
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts either a duration string ("24h", "90s") or a number
// interpreted as nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// MarshalJSON renders the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// WithMinDuration runs fn and then sleeps until at least floor has elapsed
// since the call started, so fast failure paths (unknown token, unknown
// email) are not distinguishable from slow success paths by response time.
// The sleep is cut short if ctx is cancelled; fn's results are returned
// unchanged either way.
func WithMinDuration[T any](ctx context.Context, floor time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := fn(ctx)
	if remaining := floor - time.Since(start); remaining > 0 {
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
		}
	}
	return out, err
}
