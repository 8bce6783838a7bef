// v3
// internal/rollup/rollup.go
package rollup

import (
	"sort"
	"sync"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/timewindow"
)

type Status string

const (
	StatusNormal  Status = "normal"
	StatusWarning Status = "warning"
	StatusDanger  Status = "danger"
)

// Day is the per-production-day rollup handed to the presentation layer.
type Day struct {
	DateKey         string          `json:"dateKey"`
	WindowStart     time.Time       `json:"windowStart"`
	WindowEnd       time.Time       `json:"windowEnd"`
	DayShiftTotal   float64         `json:"dayShiftTotal"`
	NightShiftTotal float64         `json:"nightShiftTotal"`
	Total           float64         `json:"totalProduction"`
	AverageSpeed    float64         `json:"averageSpeed"` // window-anchored, t/h
	SpanSpeed       float64         `json:"spanSpeed"`    // legacy basis, comparison only
	CurrentSpeed    float64         `json:"currentSpeed"`
	ProgressPercent float64         `json:"progressPercent"`
	Status          Status          `json:"status"`
	Samples         int             `json:"sampleCount"`
	Anomalies       []meter.Anomaly `json:"anomalies,omitempty"`
}

// Shift mirrors Day for one 12-hour shift window.
type Shift struct {
	DateKey         string               `json:"productionDate"`
	Kind            timewindow.ShiftKind `json:"shiftType"`
	WindowStart     time.Time            `json:"windowStart"`
	WindowEnd       time.Time            `json:"windowEnd"`
	Total           float64              `json:"totalProduction"`
	AverageSpeed    float64              `json:"averageSpeed"`
	SpanSpeed       float64              `json:"spanSpeed"`
	CurrentSpeed    float64              `json:"currentSpeed"`
	ProgressPercent float64              `json:"progressPercent"`
	Status          Status               `json:"status"`
	Samples         int                  `json:"sampleCount"`
	Anomalies       []meter.Anomaly      `json:"anomalies,omitempty"`
}

// Month summarizes a sequence of production days.
type Month struct {
	Total        float64 `json:"total"`
	AverageDaily float64 `json:"averageDaily"`
	DaysCount    int     `json:"daysCount"`
}

// Config holds the targets and exclusions injected at construction; no
// target or holiday list is hardcoded anywhere else.
type Config struct {
	OffsetHours   int
	DailyTarget   float64
	ShiftTarget   float64
	HourlyTarget  float64
	ExcludedDates map[string]bool
	Policy        meter.SumPolicy
}

// Engine recomputes rollups from raw readings on every call. It never
// consults previously persisted shift aggregates, so a defective stored
// record cannot poison a rollup.
type Engine struct {
	cfg  Config
	proc *meter.Processor
}

func New(cfg Config, proc *meter.Processor) *Engine {
	return &Engine{cfg: cfg, proc: proc}
}

// DailyStats computes the rollup of one production day from its readings.
// An empty window is not an error: the result carries zero totals.
func (e *Engine) DailyStats(dateKey string, readings []meter.Reading, now time.Time) (Day, error) {
	start, end, err := timewindow.DayBoundsForKey(dateKey, e.cfg.OffsetHours)
	if err != nil {
		return Day{}, err
	}
	day := Day{DateKey: dateKey, WindowStart: start, WindowEnd: end, Status: StatusDanger}

	in, samples := clip(readings, start, end)
	res, err := e.proc.Process(in)
	if err != nil {
		return Day{}, err
	}
	day.Samples = samples
	day.Anomalies = res.Anomalies
	day.Total = meter.Sum(res.Deltas, e.cfg.Policy)
	day.DayShiftTotal, day.NightShiftTotal, err = e.shiftSplit(in, start, end)
	if err != nil {
		return Day{}, err
	}

	if samples > 0 {
		day.CurrentSpeed = in[samples-1].Rate
		day.AverageSpeed = speed(day.Total, windowElapsed(start, end, now))
		day.SpanSpeed = speed(day.Total, spanElapsed(in))
	}
	day.ProgressPercent = progress(day.Total, e.cfg.DailyTarget)
	day.Status = e.status(day.CurrentSpeed)
	return day, nil
}

// ShiftStats mirrors DailyStats against the 12-hour shift window and target.
func (e *Engine) ShiftStats(dateKey string, kind timewindow.ShiftKind, readings []meter.Reading, now time.Time) (Shift, error) {
	start, end, err := timewindow.ShiftBounds(dateKey, kind, e.cfg.OffsetHours)
	if err != nil {
		return Shift{}, err
	}
	sh := Shift{DateKey: dateKey, Kind: kind, WindowStart: start, WindowEnd: end, Status: StatusDanger}

	in, samples := clip(readings, start, end)
	res, err := e.proc.Process(in)
	if err != nil {
		return Shift{}, err
	}
	sh.Samples = samples
	sh.Anomalies = res.Anomalies
	sh.Total = meter.Sum(res.Deltas, e.cfg.Policy)
	if samples > 0 {
		sh.CurrentSpeed = in[samples-1].Rate
		sh.AverageSpeed = speed(sh.Total, windowElapsed(start, end, now))
		sh.SpanSpeed = speed(sh.Total, spanElapsed(in))
	}
	sh.ProgressPercent = progress(sh.Total, e.cfg.ShiftTarget)
	sh.Status = e.status(sh.CurrentSpeed)
	return sh, nil
}

// MonthlyRollup totals a month of days. Zero-total days and configured
// maintenance/holiday dates stay in the total but are excluded from the
// averaging denominator.
func (e *Engine) MonthlyRollup(days []Day) Month {
	var m Month
	for _, d := range days {
		m.Total += d.Total
		if d.Total == 0 || e.cfg.ExcludedDates[d.DateKey] {
			continue
		}
		m.DaysCount++
		m.AverageDaily += d.Total
	}
	if m.DaysCount > 0 {
		m.AverageDaily /= float64(m.DaysCount)
	} else {
		m.AverageDaily = 0
	}
	return m
}

// DailyStatsAll computes one rollup per production day concurrently. Each
// day is a pure function of its own readings, so results merge without
// ordering constraints.
func (e *Engine) DailyStatsAll(groups map[string][]meter.Reading, now time.Time) ([]Day, error) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	days := make([]Day, len(keys))
	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			days[i], errs[i] = e.DailyStats(k, groups[k], now)
		}(i, k)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return days, nil
}

// shiftSplit recomputes the two shift sub-totals of a production day. Each
// sub-window is closed: the reading that opens the day shift also closes the
// night one, so the delta crossing the 08:00 boundary is counted exactly
// once.
func (e *Engine) shiftSplit(in []meter.Reading, start, end time.Time) (dayTotal, nightTotal float64, err error) {
	boundary := start.Add(12 * time.Hour)
	nightRs, _ := clip(in, start, boundary)
	dayRs, _ := clip(in, boundary, end)
	dayRes, err := e.proc.Process(dayRs)
	if err != nil {
		return 0, 0, err
	}
	nightRes, err := e.proc.Process(nightRs)
	if err != nil {
		return 0, 0, err
	}
	return meter.Sum(dayRes.Deltas, e.cfg.Policy), meter.Sum(nightRes.Deltas, e.cfg.Policy), nil
}

func (e *Engine) status(currentSpeed float64) Status {
	switch {
	case currentSpeed >= 0.9*e.cfg.HourlyTarget:
		return StatusNormal
	case currentSpeed >= 0.8*e.cfg.HourlyTarget:
		return StatusWarning
	default:
		return StatusDanger
	}
}

// windowElapsed is the correct basis for in-progress speed: wall clock since
// the window opened, capped at the window length. The span basis understates
// elapsed time whenever data is sparse; see spanElapsed.
func windowElapsed(start, end, now time.Time) time.Duration {
	if now.After(end) {
		now = end
	}
	if now.Before(start) {
		return 0
	}
	return now.Sub(start)
}

// spanElapsed is the legacy basis (last reading minus first reading), kept
// only for backward comparison. It inflates speed across data gaps.
func spanElapsed(in []meter.Reading) time.Duration {
	if len(in) < 2 {
		return 0
	}
	return in[len(in)-1].Timestamp.Sub(in[0].Timestamp)
}

func speed(total float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return total / elapsed.Hours()
}

func progress(total, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return total / target * 100
}

// clip returns the readings with timestamps in [start, end]. The reading
// landing exactly on end closes the window's final delta but belongs to the
// next window, so samples counts only timestamps in [start, end).
func clip(readings []meter.Reading, start, end time.Time) (in []meter.Reading, samples int) {
	in = make([]meter.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		in = append(in, r)
		if r.Timestamp.Before(end) {
			samples++
		}
	}
	return in, samples
}
