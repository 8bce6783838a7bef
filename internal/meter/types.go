// v1
// internal/meter/types.go
package meter

import "time"

// Reading is one raw sample from the belt scale counter. The engine never
// mutates readings; every derived figure is recomputed from them on demand.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	// Total is the cumulative counter value in tonnes, monotonic under
	// normal operation.
	Total float64 `json:"total"`
	// Rate is the instantaneous belt rate in tonnes/hour.
	Rate float64 `json:"rate"`
}

type Class string

const (
	Normal       Class = "normal"
	CounterReset Class = "counter_reset"
	Spike        Class = "spike"
	Gap          Class = "gap"
)

// Delta is the classified production increment between two consecutive
// readings.
type Delta struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Raw         float64   `json:"rawDelta"`
	Corrected   float64   `json:"correctedDelta"`
	Class       Class     `json:"classification"`
	// Excluded marks deltas spanning gaps above the large-gap threshold;
	// they are kept for forecasting context but never summed.
	Excluded bool `json:"excluded,omitempty"`
}

// Anomaly is a non-fatal data quality finding reported alongside totals.
type Anomaly struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Class     `json:"kind"`
	Magnitude float64   `json:"magnitude"`
	Note      string    `json:"note"`
}

// Result pairs the classified deltas with the anomalies found while
// producing them.
type Result struct {
	Deltas    []Delta   `json:"deltas"`
	Anomalies []Anomaly `json:"anomalies"`
}

// SumPolicy controls which anomalous deltas a caller lets into a total.
// Audit reports exclude spikes; live dashboards may include them.
type SumPolicy struct {
	IncludeSpikes bool
}
