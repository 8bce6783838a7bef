// v1
// internal/aggregate/aggregate_test.go
package aggregate

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/timewindow"
)

const tz = 5

func newAgg() *Aggregator {
	return New(meter.NewProcessor(meter.Thresholds{}), tz)
}

func local(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, timewindow.Zone(tz))
}

func hourOfReadings(start time.Time) []meter.Reading {
	var rs []meter.Reading
	for i := 0; i <= 12; i++ {
		rs = append(rs, meter.Reading{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Total:     200 + 4*float64(i),
			Rate:      40 + float64(i),
		})
	}
	return rs
}

func TestBucketsFloorToLocalGrid(t *testing.T) {
	start := local(2024, 3, 9, 10, 0)
	bs, err := newAgg().Buckets(hourOfReadings(start), 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// readings at 10:00..11:00 inclusive span three 30-minute buckets
	if len(bs) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(bs))
	}
	if !bs[0].Start.Equal(start.UTC()) {
		t.Fatalf("bucket start = %s, want %s", bs[0].Start, start.UTC())
	}
	if bs[0].Samples != 6 || bs[1].Samples != 6 || bs[2].Samples != 1 {
		t.Fatalf("samples = %d/%d/%d, want 6/6/1", bs[0].Samples, bs[1].Samples, bs[2].Samples)
	}
	// first bucket holds the six deltas 10:00→10:30
	if math.Abs(bs[0].Total-24) > 1e-9 {
		t.Fatalf("bucket total = %.3f, want 24", bs[0].Total)
	}
	wantRate := (40.0 + 41 + 42 + 43 + 44 + 45) / 6
	if math.Abs(bs[0].AvgRate-wantRate) > 1e-9 {
		t.Fatalf("avg rate = %.3f, want %.3f", bs[0].AvgRate, wantRate)
	}
}

func TestBucketsIdempotent(t *testing.T) {
	rs := hourOfReadings(local(2024, 3, 9, 10, 0))
	agg := newAgg()
	a, err := agg.Buckets(rs, 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := agg.Buckets(rs, 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("buckets differ between runs:\n%v\n%v", a, b)
	}
}

func TestGroupByProductionDay(t *testing.T) {
	rs := []meter.Reading{
		{Timestamp: local(2024, 3, 9, 21, 0), Total: 10},  // night of 03-09
		{Timestamp: local(2024, 3, 10, 2, 0), Total: 60},  // night of 03-09
		{Timestamp: local(2024, 3, 10, 7, 0), Total: 120}, // night of 03-09
		{Timestamp: local(2024, 3, 10, 9, 0), Total: 150}, // day part of 03-09
		{Timestamp: local(2024, 3, 10, 21, 0), Total: 400}, // night of 03-10
	}
	groups, err := newAgg().GroupByProductionDay(rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 production days, got %d", len(groups))
	}
	g := groups["2024-03-09"]
	if g == nil {
		t.Fatal("missing group 2024-03-09")
	}
	if len(g.All) != 4 || len(g.Night) != 3 || len(g.Day) != 1 {
		t.Fatalf("group split = all %d / night %d / day %d, want 4/3/1",
			len(g.All), len(g.Night), len(g.Day))
	}
	if g2 := groups["2024-03-10"]; g2 == nil || len(g2.All) != 1 || len(g2.Night) != 1 {
		t.Fatalf("group 2024-03-10 = %+v, want one night reading", g2)
	}
}
