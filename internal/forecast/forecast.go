// v1
// internal/forecast/forecast.go
package forecast

import "time"

type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Basis names the elapsed-time convention a projection was computed on.
type Basis string

const (
	// WindowAnchored measures elapsed time from the window start to now.
	// This is the correct basis for in-progress speed.
	WindowAnchored Basis = "window"
	// SpanAnchored measures first reading to last reading. It overstates
	// speed whenever a gap shortens the observed span relative to wall
	// clock, and exists only for comparison against legacy figures.
	SpanAnchored Basis = "span"
)

// Input is the partial-window state the projection starts from.
type Input struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Now         time.Time
	Total       float64
	Samples     int
	First       time.Time // first reading in window; zero if none
	Last        time.Time // last reading in window; zero if none
	Target      float64
}

// Projection is an end-of-window estimate on one elapsed basis.
type Projection struct {
	Basis          Basis      `json:"basis"`
	ElapsedHours   float64    `json:"elapsedHours"`
	AverageSpeed   float64    `json:"averageSpeed"`
	ProjectedTotal float64    `json:"projectedTotal"`
	Confidence     Confidence `json:"confidence"`
	AchievesTarget bool       `json:"achievesTarget"`
}

// Report carries both bases. Primary is always the window-anchored one;
// Legacy must never be presented as the headline figure.
type Report struct {
	Primary Projection `json:"primary"`
	Legacy  Projection `json:"legacy"`
}

// Forecast projects the end-of-window total on both bases.
func Forecast(in Input) Report {
	return Report{
		Primary: project(in, WindowAnchored),
		Legacy:  project(in, SpanAnchored),
	}
}

func project(in Input, basis Basis) Projection {
	now := in.Now
	if now.After(in.WindowEnd) {
		now = in.WindowEnd
	}
	var elapsed time.Duration
	switch basis {
	case SpanAnchored:
		if !in.First.IsZero() && in.Last.After(in.First) {
			elapsed = in.Last.Sub(in.First)
		}
	default:
		if now.After(in.WindowStart) {
			elapsed = now.Sub(in.WindowStart)
		}
	}

	p := Projection{
		Basis:          basis,
		ElapsedHours:   elapsed.Hours(),
		ProjectedTotal: in.Total,
	}
	remaining := in.WindowEnd.Sub(now)
	if elapsed > 0 {
		p.AverageSpeed = in.Total / elapsed.Hours()
		if remaining > 0 {
			p.ProjectedTotal = in.Total + p.AverageSpeed*remaining.Hours()
		}
	}
	p.Confidence = confidence(in.Samples, elapsed)
	p.AchievesTarget = in.Target > 0 && p.ProjectedTotal >= in.Target
	return p
}

func confidence(samples int, elapsed time.Duration) Confidence {
	switch {
	case samples > 100 && elapsed > 12*time.Hour:
		return High
	case samples > 50 && elapsed > 6*time.Hour:
		return Medium
	default:
		return Low
	}
}
