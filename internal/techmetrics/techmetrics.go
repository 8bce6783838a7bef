// v1
// internal/techmetrics/techmetrics.go
package techmetrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/metricdef"
)

// Collection is one equipment unit's latest technical metric snapshot.
type Collection struct {
	Equipment string                         `json:"equipment"`
	Timestamp time.Time                      `json:"timestamp"`
	Values    map[metricdef.MetricID]float64 `json:"values"`
}

// Violation is a metric value outside its registered norm range.
type Violation struct {
	Metric metricdef.MetricID `json:"metric"`
	Title  string             `json:"title"`
	Unit   string             `json:"unit"`
	Value  float64            `json:"value"`
	Norm   metricdef.Range    `json:"norm"`
}

// Report is the evaluated state of one collection.
type Report struct {
	Equipment  string      `json:"equipment"`
	Timestamp  time.Time   `json:"timestamp"`
	Violations []Violation `json:"violations,omitempty"`
}

// Evaluate validates one collection against the registry and lists its norm
// violations.
func Evaluate(reg *metricdef.Registry, c Collection) (Report, error) {
	if err := reg.Validate(c.Values); err != nil {
		return Report{}, err
	}
	rep := Report{Equipment: c.Equipment, Timestamp: c.Timestamp}
	for id, v := range c.Values {
		def, _ := reg.Get(id)
		if def.Norm != nil && !def.Norm.Contains(v) {
			rep.Violations = append(rep.Violations, Violation{
				Metric: id, Title: def.Title, Unit: def.Unit, Value: v, Norm: *def.Norm,
			})
		}
	}
	sort.Slice(rep.Violations, func(i, j int) bool { return rep.Violations[i].Metric < rep.Violations[j].Metric })
	return rep, nil
}

// EvaluateAll fans out over the collections; each one is a pure function of
// its own values, so reports merge without ordering constraints.
func EvaluateAll(ctx context.Context, reg *metricdef.Registry, cs []Collection) ([]Report, error) {
	reports := make([]Report, len(cs))
	errs := make([]error, len(cs))
	var wg sync.WaitGroup
	for i, c := range cs {
		wg.Add(1)
		go func(i int, c Collection) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			reports[i], errs[i] = Evaluate(reg, c)
		}(i, c)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return reports, nil
}
