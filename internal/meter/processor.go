// v3
// internal/meter/processor.go
package meter

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrConflictingDuplicate is returned when two readings share a timestamp
// but disagree on the counter value. Identical duplicates are dropped
// silently.
var ErrConflictingDuplicate = errors.New("conflicting duplicate reading")

// Thresholds tunes classification. Zero-valued fields fall back to the
// defaults below.
type Thresholds struct {
	Gap            time.Duration // silence above this is a gap
	LargeGap       time.Duration // gap deltas above this are excluded from totals
	ResetEpsilon   float64       // counter value considered "restarted near zero"
	ResetTolerance float64       // negative raw delta beyond this is a reset
	Spike          float64       // raw delta above this is a spike; caller-chosen, 20–100 t
}

const (
	DefaultGap            = 15 * time.Minute
	DefaultLargeGap       = 60 * time.Minute
	DefaultResetEpsilon   = 10
	DefaultResetTolerance = 10
	DefaultSpike          = 100
)

func (t Thresholds) withDefaults() Thresholds {
	if t.Gap <= 0 {
		t.Gap = DefaultGap
	}
	if t.LargeGap <= 0 {
		t.LargeGap = DefaultLargeGap
	}
	if t.ResetEpsilon <= 0 {
		t.ResetEpsilon = DefaultResetEpsilon
	}
	if t.ResetTolerance <= 0 {
		t.ResetTolerance = DefaultResetTolerance
	}
	if t.Spike <= 0 {
		t.Spike = DefaultSpike
	}
	return t
}

// Processor turns an ordered reading sequence into classified deltas.
// It is stateless; one instance may serve concurrent calls.
type Processor struct {
	th Thresholds
}

func NewProcessor(th Thresholds) *Processor {
	return &Processor{th: th.withDefaults()}
}

// Thresholds returns the effective thresholds after defaulting.
func (p *Processor) Thresholds() Thresholds { return p.th }

// Process sorts and deduplicates the input, then classifies each
// consecutive pair. The input slice is not modified.
func (p *Processor) Process(readings []Reading) (Result, error) {
	rs, err := Normalize(readings)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for i := 1; i < len(rs); i++ {
		prev, next := rs[i-1], rs[i]
		d := p.classify(prev, next)
		res.Deltas = append(res.Deltas, d)
		if a, ok := p.anomalyFor(d, prev, next); ok {
			res.Anomalies = append(res.Anomalies, a)
		}
	}
	return res, nil
}

// classify applies the rules in fixed order: gap, counter reset, spike,
// normal. First match wins; reset correction still applies to the corrected
// value of a gap delta so a restart hidden inside a gap never produces a
// negative figure.
func (p *Processor) classify(prev, next Reading) Delta {
	raw := next.Total - prev.Total
	dt := next.Timestamp.Sub(prev.Timestamp)
	d := Delta{
		WindowStart: prev.Timestamp,
		WindowEnd:   next.Timestamp,
		Raw:         raw,
		Corrected:   raw,
	}
	reset := raw < -p.th.ResetTolerance ||
		(next.Total < p.th.ResetEpsilon && prev.Total > p.th.ResetEpsilon+p.th.ResetTolerance)
	if reset {
		// the counter restarted at zero: production since the restart is
		// whatever it has counted up to now, never raw or prev+next
		d.Corrected = next.Total
	}
	switch {
	case dt > p.th.Gap:
		d.Class = Gap
		d.Excluded = dt > p.th.LargeGap
	case reset:
		d.Class = CounterReset
	case raw > p.th.Spike:
		d.Class = Spike
	default:
		d.Class = Normal
	}
	return d
}

func (p *Processor) anomalyFor(d Delta, prev, next Reading) (Anomaly, bool) {
	switch d.Class {
	case Gap:
		dt := next.Timestamp.Sub(prev.Timestamp)
		return Anomaly{
			Timestamp: next.Timestamp,
			Kind:      Gap,
			Magnitude: dt.Minutes(),
			Note:      fmt.Sprintf("no data for %s (threshold %s)", dt, p.th.Gap),
		}, true
	case CounterReset:
		return Anomaly{
			Timestamp: next.Timestamp,
			Kind:      CounterReset,
			Magnitude: prev.Total,
			Note:      fmt.Sprintf("counter fell from %.1f to %.1f", prev.Total, next.Total),
		}, true
	case Spike:
		return Anomaly{
			Timestamp: next.Timestamp,
			Kind:      Spike,
			Magnitude: d.Raw,
			Note:      fmt.Sprintf("delta %.1f t exceeds %.1f t per interval", d.Raw, p.th.Spike),
		}, true
	}
	return Anomaly{}, false
}

// Normalize returns a sorted copy of readings with exact duplicates removed.
// Two readings sharing a timestamp but not a value are unreconcilable.
func Normalize(readings []Reading) ([]Reading, error) {
	rs := append([]Reading(nil), readings...)
	sort.Slice(rs, func(i, j int) bool { return rs[i].Timestamp.Before(rs[j].Timestamp) })
	out := rs[:0]
	for i, r := range rs {
		if i > 0 && r.Timestamp.Equal(out[len(out)-1].Timestamp) {
			if r.Total != out[len(out)-1].Total {
				return nil, fmt.Errorf("%w at %s: %.3f vs %.3f",
					ErrConflictingDuplicate, r.Timestamp.UTC().Format(time.RFC3339), out[len(out)-1].Total, r.Total)
			}
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Sum applies the caller's policy over classified deltas. Only non-negative
// corrected values of normal deltas, short-gap deltas and (per policy)
// spikes contribute; reset and excluded-gap deltas never do, which keeps
// totals free of double counting and negative production.
func Sum(deltas []Delta, policy SumPolicy) float64 {
	var total float64
	for _, d := range deltas {
		if d.Corrected < 0 || d.Excluded {
			continue
		}
		switch d.Class {
		case Normal:
			total += d.Corrected
		case Gap:
			total += d.Corrected
		case Spike:
			if policy.IncludeSpikes {
				total += d.Corrected
			}
		}
	}
	return total
}
