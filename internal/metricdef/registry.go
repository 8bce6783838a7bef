// v1
// internal/metricdef/registry.go
package metricdef

import (
	"errors"
	"fmt"
)

// MetricID is the stable key of a technical metric. Equipment collections
// are tagged value maps keyed by MetricID and validated against the
// registry, replacing free-form per-collection metric titles.
type MetricID string

var ErrUnknownMetric = errors.New("unknown metric")

// Range is an inclusive norm range for a metric.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Definition describes one known metric.
type Definition struct {
	ID    MetricID `json:"id"`
	Title string   `json:"title"`
	Unit  string   `json:"unit"`
	Norm  *Range   `json:"norm,omitempty"`
}

// Registry is the closed set of metric definitions the engine accepts.
type Registry struct {
	defs map[MetricID]Definition
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[MetricID]Definition, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("metric definition without id (title %q)", d.Title)
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate metric id %q", d.ID)
		}
		r.defs[d.ID] = d
	}
	return r, nil
}

// Default returns the registry of metrics collected from the crushing and
// conveying equipment.
func Default() *Registry {
	r, err := NewRegistry(
		Definition{ID: "belt_speed_ms", Title: "Belt speed", Unit: "m/s", Norm: &Range{Min: 0, Max: 6}},
		Definition{ID: "motor_current_a", Title: "Drive motor current", Unit: "A", Norm: &Range{Min: 0, Max: 400}},
		Definition{ID: "motor_temp_c", Title: "Drive motor temperature", Unit: "°C", Norm: &Range{Min: -40, Max: 90}},
		Definition{ID: "bearing_temp_c", Title: "Bearing temperature", Unit: "°C", Norm: &Range{Min: -40, Max: 80}},
		Definition{ID: "oil_pressure_bar", Title: "Hydraulic oil pressure", Unit: "bar", Norm: &Range{Min: 1, Max: 16}},
		Definition{ID: "power_kw", Title: "Consumed power", Unit: "kW"},
		Definition{ID: "vibration_mms", Title: "Vibration velocity", Unit: "mm/s", Norm: &Range{Min: 0, Max: 11}},
	)
	if err != nil {
		panic(err) // static definitions above
	}
	return r
}

func (r *Registry) Get(id MetricID) (Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

func (r *Registry) Len() int { return len(r.defs) }

// Validate rejects value maps referring to metrics outside the registry.
func (r *Registry) Validate(values map[MetricID]float64) error {
	for id := range values {
		if _, ok := r.defs[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMetric, id)
		}
	}
	return nil
}
