// v3
// internal/correction/correction.go
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/store"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/timewindow"
)

var (
	// ErrMissingWindowData: no readings in the shift window and no usable
	// adjacent-shift fallback. Blocking for corrections, unlike rollups.
	ErrMissingWindowData = errors.New("no readings in requested window")
	ErrCannotAutoCorrect = errors.New("cannot auto-correct shift aggregate")
)

// AutoCorrectError carries the adjacent shift's stored value as a hint for
// manual review instead of failing silently.
type AutoCorrectError struct {
	ProductionDate string
	ShiftType      timewindow.ShiftKind
	AdjacentValue  float64
}

func (e *AutoCorrectError) Error() string {
	return fmt.Sprintf("cannot auto-correct %s/%s shift: adjacent shift value %.1f is not near zero",
		e.ProductionDate, e.ShiftType, e.AdjacentValue)
}

func (e *AutoCorrectError) Unwrap() error { return ErrCannotAutoCorrect }

// Method records how a corrected difference was derived.
type Method string

const (
	// MethodReadings: recomputed from the raw readings of the shift window.
	MethodReadings Method = "readings"
	// MethodAdjacentZero: no readings existed; the preceding shift ended
	// near zero, so the stored absolute value is itself the difference.
	MethodAdjacentZero Method = "adjacent_zero"
)

// Diagnosis is the dry-run result of examining one stored shift aggregate.
type Diagnosis struct {
	ProductionDate  string               `json:"productionDate"`
	ShiftType       timewindow.ShiftKind `json:"shiftType"`
	OldDifference   float64              `json:"oldDifference"`
	NewDifference   float64              `json:"newDifference"`
	WasCounterReset bool                 `json:"wasCounterReset"`
	Method          Method               `json:"method"`
	Flagged         bool                 `json:"flagged"`
	SampleCount     int                  `json:"sampleCount"`
}

// ApplyResult is the audit record of a persisted correction.
type ApplyResult struct {
	MatchedCount  int `json:"matchedCount"`
	ModifiedCount int `json:"modifiedCount"`
}

type ReadingSource interface {
	Range(ctx context.Context, from, to time.Time) ([]meter.Reading, error)
}

type AggregateStore interface {
	Get(ctx context.Context, date string, kind timewindow.ShiftKind) (store.ShiftAggregate, error)
	UpdateDifference(ctx context.Context, date string, kind timewindow.ShiftKind, expectedOld, newDiff float64, reason string) (matched, modified int, err error)
}

type Config struct {
	OffsetHours int
	// ResetEpsilon: counter values below this count as "restarted at zero".
	ResetEpsilon float64
	// AnomalyDifference flags stored differences that are implausible for
	// the site's scale (a ~400 t shift never legitimately stores 10 000+).
	AnomalyDifference float64
}

// Service re-derives shift differences from raw readings and, only on an
// explicit apply, persists them. Rollups never call into this package.
type Service struct {
	cfg      Config
	readings ReadingSource
	shifts   AggregateStore
	log      *slog.Logger
}

func New(cfg Config, readings ReadingSource, shifts AggregateStore, log *slog.Logger) *Service {
	if cfg.ResetEpsilon <= 0 {
		cfg.ResetEpsilon = meter.DefaultResetEpsilon
	}
	if cfg.AnomalyDifference <= 0 {
		cfg.AnomalyDifference = 10000
	}
	return &Service{cfg: cfg, readings: readings, shifts: shifts, log: log}
}

// Flagged reports whether a stored difference is implausible enough to
// warrant diagnosis.
func (s *Service) Flagged(difference float64) bool {
	return difference > s.cfg.AnomalyDifference || difference < 0
}

// Diagnose recomputes the difference of one stored shift aggregate without
// touching it.
func (s *Service) Diagnose(ctx context.Context, date string, kind timewindow.ShiftKind) (Diagnosis, error) {
	agg, err := s.shifts.Get(ctx, date, kind)
	if err != nil {
		return Diagnosis{}, err
	}
	start, end, err := timewindow.ShiftBounds(date, kind, s.cfg.OffsetHours)
	if err != nil {
		return Diagnosis{}, err
	}
	// the reading landing exactly on end carries the counter value the shift
	// closed at
	rs, err := s.readings.Range(ctx, start, end.Add(time.Nanosecond))
	if err != nil {
		return Diagnosis{}, err
	}
	rs, err = meter.Normalize(rs)
	if err != nil {
		return Diagnosis{}, err
	}

	d := Diagnosis{
		ProductionDate: date,
		ShiftType:      kind,
		OldDifference:  agg.Difference,
		Flagged:        s.Flagged(agg.Difference),
		SampleCount:    len(rs),
	}

	if len(rs) > 0 {
		first, last := rs[0], rs[len(rs)-1]
		d.Method = MethodReadings
		if first.Total < s.cfg.ResetEpsilon {
			// counter restarted at the start of the shift
			d.NewDifference = last.Total
			d.WasCounterReset = true
		} else {
			d.NewDifference = last.Total - first.Total
			if d.NewDifference < 0 {
				// restarted somewhere inside the shift
				d.NewDifference = last.Total
				d.WasCounterReset = true
			}
		}
		return d, nil
	}

	// no readings survive for this window; fall back to the preceding
	// shift's stored value
	prevDate, prevKind, err := precedingShift(date, kind)
	if err != nil {
		return Diagnosis{}, err
	}
	prev, err := s.shifts.Get(ctx, prevDate, prevKind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Diagnosis{}, fmt.Errorf("shift %s/%s: %w", date, kind, ErrMissingWindowData)
		}
		return Diagnosis{}, err
	}
	if prev.Value > s.cfg.ResetEpsilon {
		return Diagnosis{}, &AutoCorrectError{ProductionDate: date, ShiftType: kind, AdjacentValue: prev.Value}
	}
	// preceding shift ended near zero, so this shift's absolute value is a
	// genuine from-zero difference
	d.Method = MethodAdjacentZero
	d.NewDifference = agg.Value
	d.WasCounterReset = true
	return d, nil
}

// DiagnoseDate diagnoses every flagged shift of one production date.
func (s *Service) DiagnoseDate(ctx context.Context, date string) ([]Diagnosis, error) {
	var out []Diagnosis
	for _, kind := range []timewindow.ShiftKind{timewindow.NightShift, timewindow.DayShift} {
		agg, err := s.shifts.Get(ctx, date, kind)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !s.Flagged(agg.Difference) {
			continue
		}
		d, err := s.Diagnose(ctx, date, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Apply persists a diagnosed correction. The write is conditional on the
// stored difference still matching the diagnosis (ErrStaleAggregate
// otherwise) and idempotent when the correction is already in place.
func (s *Service) Apply(ctx context.Context, d Diagnosis) (ApplyResult, error) {
	reason := fmt.Sprintf("auto-correction (%s); was counter reset: %t", d.Method, d.WasCounterReset)
	matched, modified, err := s.shifts.UpdateDifference(ctx, d.ProductionDate, d.ShiftType, d.OldDifference, d.NewDifference, reason)
	if err != nil {
		return ApplyResult{}, err
	}
	if modified > 0 {
		s.log.Info("correction applied",
			slog.String("date", d.ProductionDate), slog.String("shift", string(d.ShiftType)),
			slog.Float64("old", d.OldDifference), slog.Float64("new", d.NewDifference),
			slog.String("method", string(d.Method)))
	}
	return ApplyResult{MatchedCount: matched, ModifiedCount: modified}, nil
}

// precedingShift returns the shift immediately before the given one in
// wall-clock order: the day shift of D follows the night shift of D-1; the
// night shift of D follows the day shift of D.
func precedingShift(date string, kind timewindow.ShiftKind) (string, timewindow.ShiftKind, error) {
	if kind == timewindow.NightShift {
		return date, timewindow.DayShift, nil
	}
	d, err := time.Parse(timewindow.DateKeyLayout, date)
	if err != nil {
		return "", "", fmt.Errorf("bad date key %q: %w", date, err)
	}
	return d.AddDate(0, 0, -1).Format(timewindow.DateKeyLayout), timewindow.NightShift, nil
}
