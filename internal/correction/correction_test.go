// v1
// internal/correction/correction_test.go
package correction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/store"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/timewindow"
)

const tz = 5

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) (*Service, *store.ReadingLog, *store.ShiftStore) {
	t.Helper()
	dir := t.TempDir()
	log := discard()
	rl, err := store.NewReadingLog(filepath.Join(dir, "readings.jsonl"), log)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	t.Cleanup(func() { rl.Close() })
	ss, err := store.NewShiftStore(filepath.Join(dir, "shifts.jsonl"), log)
	if err != nil {
		t.Fatalf("shift store: %v", err)
	}
	svc := New(Config{OffsetHours: tz, AnomalyDifference: 10000}, rl, ss, log)
	return svc, rl, ss
}

func local(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, timewindow.Zone(tz))
}

func seed(t *testing.T, rl *store.ReadingLog, rs []meter.Reading) {
	t.Helper()
	for _, r := range rs {
		if err := rl.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func put(t *testing.T, ss *store.ShiftStore, a store.ShiftAggregate) {
	t.Helper()
	if err := ss.Put(context.Background(), a); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestDiagnoseResetAtShiftStart(t *testing.T) {
	svc, rl, ss := newFixture(t)
	// counter restarted right before the night shift; the stored record kept
	// the raw absolute value instead of a delta
	seed(t, rl, []meter.Reading{
		{Timestamp: local(2024, 3, 9, 20, 0), Total: 2},
		{Timestamp: local(2024, 3, 10, 1, 0), Total: 210},
		{Timestamp: local(2024, 3, 10, 7, 55), Total: 430},
	})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: 15430, Value: 430})

	d, err := svc.Diagnose(context.Background(), "2024-03-09", timewindow.NightShift)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Flagged || !d.WasCounterReset || d.Method != MethodReadings {
		t.Fatalf("diagnosis = %+v", d)
	}
	if math.Abs(d.NewDifference-430) > 1e-9 {
		t.Fatalf("new difference = %.3f, want 430", d.NewDifference)
	}
	if d.SampleCount != 3 {
		t.Fatalf("sample count = %d, want 3", d.SampleCount)
	}
}

func TestDiagnoseHealthyShift(t *testing.T) {
	svc, rl, ss := newFixture(t)
	seed(t, rl, []meter.Reading{
		{Timestamp: local(2024, 3, 9, 20, 0), Total: 1000},
		{Timestamp: local(2024, 3, 10, 7, 55), Total: 1430},
	})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: 430, Value: 1430})

	d, err := svc.Diagnose(context.Background(), "2024-03-09", timewindow.NightShift)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Flagged || d.WasCounterReset {
		t.Fatalf("diagnosis = %+v", d)
	}
	if math.Abs(d.NewDifference-430) > 1e-9 {
		t.Fatalf("new difference = %.3f, want 430", d.NewDifference)
	}
}

func TestDiagnoseIncludesClosingReading(t *testing.T) {
	svc, rl, ss := newFixture(t)
	// the 08:00 reading opens the next shift but carries the counter value
	// this shift closed at
	seed(t, rl, []meter.Reading{
		{Timestamp: local(2024, 3, 9, 20, 0), Total: 1000},
		{Timestamp: local(2024, 3, 10, 7, 55), Total: 1430},
		{Timestamp: local(2024, 3, 10, 8, 0), Total: 1450},
	})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: -100, Value: 1450})

	d, err := svc.Diagnose(context.Background(), "2024-03-09", timewindow.NightShift)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(d.NewDifference-450) > 1e-9 {
		t.Fatalf("new difference = %.3f, want 450", d.NewDifference)
	}
}

func TestDiagnoseResetMidShift(t *testing.T) {
	svc, rl, ss := newFixture(t)
	seed(t, rl, []meter.Reading{
		{Timestamp: local(2024, 3, 9, 20, 0), Total: 900},
		{Timestamp: local(2024, 3, 10, 2, 0), Total: 960},
		{Timestamp: local(2024, 3, 10, 7, 55), Total: 120},
	})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: -840, Value: 120})

	d, err := svc.Diagnose(context.Background(), "2024-03-09", timewindow.NightShift)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.WasCounterReset || math.Abs(d.NewDifference-120) > 1e-9 {
		t.Fatalf("diagnosis = %+v", d)
	}
}

func TestDiagnoseAdjacentZeroFallback(t *testing.T) {
	svc, _, ss := newFixture(t)
	// no readings survive for the night shift; the preceding day shift ended
	// with the counter near zero
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.DayShift, Difference: 380, Value: 3})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: -200, Value: 350})

	d, err := svc.Diagnose(context.Background(), "2024-03-09", timewindow.NightShift)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Method != MethodAdjacentZero || !d.WasCounterReset {
		t.Fatalf("diagnosis = %+v", d)
	}
	if math.Abs(d.NewDifference-350) > 1e-9 {
		t.Fatalf("new difference = %.3f, want 350", d.NewDifference)
	}
}

func TestDiagnoseCannotAutoCorrect(t *testing.T) {
	svc, _, ss := newFixture(t)
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.DayShift, Difference: 380, Value: 812})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: -200, Value: 350})

	_, err := svc.Diagnose(context.Background(), "2024-03-09", timewindow.NightShift)
	if !errors.Is(err, ErrCannotAutoCorrect) {
		t.Fatalf("error = %v, want ErrCannotAutoCorrect", err)
	}
	var ace *AutoCorrectError
	if !errors.As(err, &ace) {
		t.Fatalf("error %v does not carry the adjacent value", err)
	}
	if math.Abs(ace.AdjacentValue-812) > 1e-9 {
		t.Fatalf("adjacent value = %.3f, want 812", ace.AdjacentValue)
	}
}

func TestDiagnoseMissingWindowData(t *testing.T) {
	svc, _, ss := newFixture(t)
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: -200, Value: 350})

	_, err := svc.Diagnose(context.Background(), "2024-03-09", timewindow.NightShift)
	if !errors.Is(err, ErrMissingWindowData) {
		t.Fatalf("error = %v, want ErrMissingWindowData", err)
	}
}

func TestDiagnoseDateSkipsHealthy(t *testing.T) {
	svc, rl, ss := newFixture(t)
	seed(t, rl, []meter.Reading{
		{Timestamp: local(2024, 3, 9, 8, 0), Total: 1},
		{Timestamp: local(2024, 3, 9, 19, 55), Total: 590},
	})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.DayShift, Difference: 12590, Value: 590})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: 430, Value: 1020})

	ds, err := svc.DiagnoseDate(context.Background(), "2024-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds) != 1 || ds[0].ShiftType != timewindow.DayShift {
		t.Fatalf("diagnoses = %+v, want one day-shift entry", ds)
	}
	if math.Abs(ds[0].NewDifference-590) > 1e-9 {
		t.Fatalf("new difference = %.3f, want 590", ds[0].NewDifference)
	}
}

func TestApplyIdempotentAndStale(t *testing.T) {
	svc, rl, ss := newFixture(t)
	ctx := context.Background()
	seed(t, rl, []meter.Reading{
		{Timestamp: local(2024, 3, 9, 20, 0), Total: 2},
		{Timestamp: local(2024, 3, 10, 7, 55), Total: 430},
	})
	put(t, ss, store.ShiftAggregate{ProductionDate: "2024-03-09", ShiftType: timewindow.NightShift, Difference: 15430, Value: 430})

	d, err := svc.Diagnose(ctx, "2024-03-09", timewindow.NightShift)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	res, err := svc.Apply(ctx, d)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.MatchedCount != 1 || res.ModifiedCount != 1 {
		t.Fatalf("apply result = %+v, want 1/1", res)
	}
	agg, err := ss.Get(ctx, "2024-03-09", timewindow.NightShift)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if math.Abs(agg.Difference-430) > 1e-9 || agg.CorrectedAt == nil || agg.CorrectionReason == "" {
		t.Fatalf("stored aggregate = %+v", agg)
	}

	// re-applying the same diagnosis matches but modifies nothing
	res, err = svc.Apply(ctx, d)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if res.MatchedCount != 1 || res.ModifiedCount != 0 {
		t.Fatalf("second apply result = %+v, want 1/0", res)
	}

	// a concurrent change invalidates the diagnosis
	agg.Difference = 99
	put(t, ss, agg)
	if _, err := svc.Apply(ctx, d); !errors.Is(err, store.ErrStaleAggregate) {
		t.Fatalf("error = %v, want ErrStaleAggregate", err)
	}
}
