// v1
// internal/ingest/wire.go
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
)

// readingWire accepts the formats the scale firmware has shipped over the
// years: RFC3339 or unix-millisecond timestamps, numbers as numbers or
// strings.
type readingWire struct {
	Timestamp any `json:"timestamp"`
	Total     any `json:"total"`
	Rate      any `json:"rate"`
}

func (w *readingWire) toReading() (meter.Reading, error) {
	var r meter.Reading
	var err error

	r.Timestamp, err = toTime(w.Timestamp)
	if err != nil || r.Timestamp.IsZero() {
		return r, fmt.Errorf("invalid timestamp: %v", err)
	}
	r.Total, err = toFloat(w.Total)
	if err != nil {
		return r, fmt.Errorf("invalid total: %v", err)
	}
	if r.Total < 0 {
		return r, fmt.Errorf("negative total %.3f", r.Total)
	}
	r.Rate, err = toFloat(w.Rate)
	if err != nil {
		return r, fmt.Errorf("invalid rate: %v", err)
	}
	return r, nil
}

// toFloat converts v to float64 if possible.
func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("cannot parse float from %T", v)
	}
}

// toTime converts v to time.Time if possible.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, nil
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, nil
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return fromUnix(n), nil
		}
		return time.Time{}, fmt.Errorf("bad timestamp string: %q", t)
	case float64:
		return fromUnix(int64(t)), nil
	case int64:
		return fromUnix(t), nil
	default:
		return time.Time{}, fmt.Errorf("cannot parse time from %T", v)
	}
}

func fromUnix(n int64) time.Time {
	if n > 1_000_000_000_000 { // likely ms
		return time.Unix(0, n*int64(time.Millisecond))
	}
	return time.Unix(n, 0)
}
