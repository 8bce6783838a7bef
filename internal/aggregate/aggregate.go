// v2
// internal/aggregate/aggregate.go
package aggregate

import (
	"sort"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/timewindow"
)

// Bucket is one fixed-size interval of the charting series.
type Bucket struct {
	Start   time.Time `json:"bucketStart"`
	End     time.Time `json:"bucketEnd"`
	Total   float64   `json:"totalProduction"`
	AvgRate float64   `json:"averageRate"`
	Samples int       `json:"sampleCount"`
}

// DayGroup holds the readings of one production day, split into the two
// shift sub-windows. The night slice physically spans the next calendar
// morning.
type DayGroup struct {
	DateKey string
	All     []meter.Reading
	Day     []meter.Reading
	Night   []meter.Reading
}

// Aggregator buckets deltas and groups readings into production days.
type Aggregator struct {
	proc        *meter.Processor
	offsetHours int
}

func New(proc *meter.Processor, offsetHours int) *Aggregator {
	return &Aggregator{proc: proc, offsetHours: offsetHours}
}

// Buckets floors each reading onto a bucket grid of the given size
// (15 or 30 minutes) in local time and fills per-bucket totals and average
// rates. Deterministic: identical input yields identical output.
func (a *Aggregator) Buckets(readings []meter.Reading, size time.Duration) ([]Bucket, error) {
	rs, err := meter.Normalize(readings)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, nil
	}
	res, err := a.proc.Process(rs)
	if err != nil {
		return nil, err
	}

	loc := timewindow.Zone(a.offsetHours)
	floor := func(t time.Time) time.Time {
		lt := t.In(loc)
		midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
		off := lt.Sub(midnight).Truncate(size)
		return midnight.Add(off).UTC()
	}

	grid := map[time.Time]*Bucket{}
	var order []time.Time
	get := func(start time.Time) *Bucket {
		if b, ok := grid[start]; ok {
			return b
		}
		b := &Bucket{Start: start, End: start.Add(size)}
		grid[start] = b
		order = append(order, start)
		return b
	}

	for _, r := range rs {
		b := get(floor(r.Timestamp))
		b.AvgRate += r.Rate
		b.Samples++
	}
	for i := range grid {
		b := grid[i]
		if b.Samples > 0 {
			b.AvgRate /= float64(b.Samples)
		}
	}
	// a delta counts toward the bucket that fully contains its window
	for _, d := range res.Deltas {
		if d.Class != meter.Normal || d.Corrected < 0 {
			continue
		}
		start := floor(d.WindowStart)
		if d.WindowEnd.After(start.Add(size)) {
			continue
		}
		get(start).Total += d.Corrected
	}

	out := make([]Bucket, 0, len(order))
	for _, s := range order {
		out = append(out, *grid[s])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// GroupByProductionDay assigns each reading to its production day and,
// independently, to a day or night shift slice within it.
func (a *Aggregator) GroupByProductionDay(readings []meter.Reading) (map[string]*DayGroup, error) {
	rs, err := meter.Normalize(readings)
	if err != nil {
		return nil, err
	}
	groups := map[string]*DayGroup{}
	for _, r := range rs {
		key := timewindow.DayKey(r.Timestamp, a.offsetHours)
		g, ok := groups[key]
		if !ok {
			g = &DayGroup{DateKey: key}
			groups[key] = g
		}
		g.All = append(g.All, r)
		kind, _ := timewindow.Shift(r.Timestamp, a.offsetHours)
		if kind == timewindow.DayShift {
			g.Day = append(g.Day, r)
		} else {
			g.Night = append(g.Night, r)
		}
	}
	return groups, nil
}
