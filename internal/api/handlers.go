// v3
// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/aggregate"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/cache"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/config"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/correction"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/forecast"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/metricdef"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/rollup"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/store"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/techmetrics"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/timewindow"
)

type readingSource interface {
	Range(ctx context.Context, from, to time.Time) ([]meter.Reading, error)
}

type correctionService interface {
	Diagnose(ctx context.Context, date string, kind timewindow.ShiftKind) (correction.Diagnosis, error)
	DiagnoseDate(ctx context.Context, date string) ([]correction.Diagnosis, error)
	Apply(ctx context.Context, d correction.Diagnosis) (correction.ApplyResult, error)
}

// Counters is the subset of observability the handlers report to.
type Counters interface {
	AnomalyReported(kind string)
	CorrectionApplied()
	CorrectionStale()
}

// Handlers serves the read-only rollup surface plus the correction
// endpoint. Presentation consumers cannot mutate engine state through any
// GET route.
type Handlers struct {
	Log      *slog.Logger
	Cfg      config.Config
	Readings readingSource
	Engine   *rollup.Engine
	Agg      *aggregate.Aggregator
	Corr     correctionService
	Registry *metricdef.Registry
	Cache    *cache.Cache[any]
	Counters Counters
	// Now is the clock; tests pin it.
	Now func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error("encode response", "err", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"error": msg})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// dateParam returns the requested production date, defaulting to the one in
// progress.
func (h *Handlers) dateParam(r *http.Request) (string, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return timewindow.DayKey(h.now(), h.Cfg.TimezoneOffsetHours), nil
	}
	if _, err := time.Parse(timewindow.DateKeyLayout, v); err != nil {
		return "", fmt.Errorf("bad date %q, want YYYY-MM-DD", v)
	}
	return v, nil
}

func (h *Handlers) dayReadings(ctx context.Context, dateKey string) ([]meter.Reading, time.Time, time.Time, error) {
	start, end, err := timewindow.DayBoundsForKey(dateKey, h.Cfg.TimezoneOffsetHours)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	// the reading landing exactly on end closes the window's final delta
	rs, err := h.Readings.Range(ctx, start, end.Add(time.Nanosecond))
	return rs, start, end, err
}

// Day returns the rollup of one production day.
func (h *Handlers) Day(w http.ResponseWriter, r *http.Request) {
	dateKey, err := h.dateParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := "day/" + dateKey
	if v, ok := h.Cache.Get(key); ok {
		h.writeJSON(w, http.StatusOK, v)
		return
	}
	rs, _, _, err := h.dayReadings(r.Context(), dateKey)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	day, err := h.Engine.DailyStats(dateKey, rs, h.now())
	if err != nil {
		h.rollupError(w, err)
		return
	}
	h.reportAnomalies(day.Anomalies)
	h.Cache.Set(key, day)
	h.writeJSON(w, http.StatusOK, day)
}

// Shift returns the rollup of one shift.
func (h *Handlers) Shift(w http.ResponseWriter, r *http.Request) {
	dateKey, err := h.dateParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := timewindow.ShiftKind(r.URL.Query().Get("type"))
	if !kind.Valid() {
		h.writeError(w, http.StatusBadRequest, "type must be day or night")
		return
	}
	start, end, err := timewindow.ShiftBounds(dateKey, kind, h.Cfg.TimezoneOffsetHours)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rs, err := h.Readings.Range(r.Context(), start, end.Add(time.Nanosecond))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sh, err := h.Engine.ShiftStats(dateKey, kind, rs, h.now())
	if err != nil {
		h.rollupError(w, err)
		return
	}
	h.reportAnomalies(sh.Anomalies)
	h.writeJSON(w, http.StatusOK, sh)
}

// Month returns the month-to-date rollup with its per-day breakdown.
func (h *Handlers) Month(w http.ResponseWriter, r *http.Request) {
	anchor := h.now()
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := time.ParseInLocation("2006-01", v, timewindow.Zone(h.Cfg.TimezoneOffsetHours))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad month %q, want YYYY-MM", v))
			return
		}
		// any instant inside the month picks the same accounting window
		anchor = m.Add(15 * 24 * time.Hour)
	}
	start, end := timewindow.MonthBounds(anchor, h.Cfg.TimezoneOffsetHours)
	rs, err := h.Readings.Range(r.Context(), start, end.Add(time.Nanosecond))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	groups, err := h.Agg.GroupByProductionDay(rs)
	if err != nil {
		h.rollupError(w, err)
		return
	}
	// each day clips its own window, so hand every key the full range: the
	// reading opening one day closes the previous one
	byKey := make(map[string][]meter.Reading, len(groups))
	for k := range groups {
		ds, _, err := timewindow.DayBoundsForKey(k, h.Cfg.TimezoneOffsetHours)
		if err != nil || !ds.Before(end) {
			continue
		}
		byKey[k] = rs
	}
	days, err := h.Engine.DailyStatsAll(byKey, h.now())
	if err != nil {
		h.rollupError(w, err)
		return
	}
	month := h.Engine.MonthlyRollup(days)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"windowStart": start,
		"windowEnd":   end,
		"summary":     month,
		"days":        days,
	})
}

// Buckets returns the charting series of one production day.
func (h *Handlers) Buckets(w http.ResponseWriter, r *http.Request) {
	dateKey, err := h.dateParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size := h.Cfg.BucketSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || (n != 15 && n != 30) {
			h.writeError(w, http.StatusBadRequest, "size must be 15 or 30")
			return
		}
		size = time.Duration(n) * time.Minute
	}
	// half-open fetch: the chart grid stops at the last in-window reading
	start, end, err := timewindow.DayBoundsForKey(dateKey, h.Cfg.TimezoneOffsetHours)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rs, err := h.Readings.Range(r.Context(), start, end)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	buckets, err := h.Agg.Buckets(rs, size)
	if err != nil {
		h.rollupError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buckets)
}

// Anomalies runs the audit classification over one production day. The
// spike threshold is deliberately the caller's choice: audit reports use a
// strict one, dashboards a loose one.
func (h *Handlers) Anomalies(w http.ResponseWriter, r *http.Request) {
	dateKey, err := h.dateParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spike := h.Cfg.AuditSpike
	if v := r.URL.Query().Get("spike"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			h.writeError(w, http.StatusBadRequest, "spike must be a positive number")
			return
		}
		spike = f
	}
	rs, _, _, err := h.dayReadings(r.Context(), dateKey)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	proc := meter.NewProcessor(meter.Thresholds{
		Gap:            h.Cfg.GapThreshold,
		LargeGap:       h.Cfg.LargeGapThreshold,
		ResetEpsilon:   h.Cfg.ResetEpsilon,
		ResetTolerance: h.Cfg.ResetTolerance,
		Spike:          spike,
	})
	res, err := proc.Process(rs)
	if err != nil {
		h.rollupError(w, err)
		return
	}
	h.reportAnomalies(res.Anomalies)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"date":           dateKey,
		"spikeThreshold": spike,
		"rawTotal":       meter.Sum(res.Deltas, meter.SumPolicy{IncludeSpikes: true}),
		"cleanTotal":     meter.Sum(res.Deltas, meter.SumPolicy{}),
		"anomalies":      res.Anomalies,
	})
}

// Forecast projects the end-of-day total on both elapsed bases.
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	dateKey, err := h.dateParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rs, start, end, err := h.dayReadings(r.Context(), dateKey)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	day, err := h.Engine.DailyStats(dateKey, rs, h.now())
	if err != nil {
		h.rollupError(w, err)
		return
	}
	in := forecast.Input{
		WindowStart: start,
		WindowEnd:   end,
		Now:         h.now(),
		Total:       day.Total,
		Samples:     day.Samples,
		Target:      h.Cfg.DailyTargetTonnes,
	}
	if norm, err := meter.Normalize(rs); err == nil && len(norm) > 0 {
		in.First = norm[0].Timestamp
		in.Last = norm[len(norm)-1].Timestamp
	}
	h.writeJSON(w, http.StatusOK, forecast.Forecast(in))
}

type correctionRequest struct {
	ProductionDate string               `json:"productionDate"`
	ShiftType      timewindow.ShiftKind `json:"shiftType,omitempty"`
	DryRun         bool                 `json:"dryRun"`
}

type correctionResponse struct {
	Diagnoses []correction.Diagnosis  `json:"diagnoses"`
	Applied   *correction.ApplyResult `json:"applied,omitempty"`
}

// Corrections diagnoses (and, unless dryRun, repairs) defective persisted
// shift aggregates of one production date.
func (h *Handlers) Corrections(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad request body: "+err.Error())
		return
	}
	if _, err := time.Parse(timewindow.DateKeyLayout, req.ProductionDate); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad productionDate, want YYYY-MM-DD")
		return
	}

	var diagnoses []correction.Diagnosis
	var err error
	if req.ShiftType != "" {
		if !req.ShiftType.Valid() {
			h.writeError(w, http.StatusBadRequest, "shiftType must be day or night")
			return
		}
		var d correction.Diagnosis
		d, err = h.Corr.Diagnose(r.Context(), req.ProductionDate, req.ShiftType)
		if err == nil {
			diagnoses = append(diagnoses, d)
		}
	} else {
		diagnoses, err = h.Corr.DiagnoseDate(r.Context(), req.ProductionDate)
	}
	if err != nil {
		h.correctionError(w, err)
		return
	}

	resp := correctionResponse{Diagnoses: diagnoses}
	if !req.DryRun {
		total := correction.ApplyResult{}
		for _, d := range diagnoses {
			res, err := h.Corr.Apply(r.Context(), d)
			if err != nil {
				if errors.Is(err, store.ErrStaleAggregate) && h.Counters != nil {
					h.Counters.CorrectionStale()
				}
				h.correctionError(w, err)
				return
			}
			total.MatchedCount += res.MatchedCount
			total.ModifiedCount += res.ModifiedCount
			if res.ModifiedCount > 0 && h.Counters != nil {
				h.Counters.CorrectionApplied()
			}
		}
		resp.Applied = &total
		h.Cache.Invalidate("day/" + req.ProductionDate)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// TechMetrics evaluates posted equipment metric collections against the
// registry.
func (h *Handlers) TechMetrics(w http.ResponseWriter, r *http.Request) {
	var cs []techmetrics.Collection
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad request body: "+err.Error())
		return
	}
	reports, err := techmetrics.EvaluateAll(r.Context(), h.Registry, cs)
	if err != nil {
		if errors.Is(err, metricdef.ErrUnknownMetric) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, reports)
}

func (h *Handlers) rollupError(w http.ResponseWriter, err error) {
	if errors.Is(err, meter.ErrConflictingDuplicate) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handlers) correctionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrStaleAggregate):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, correction.ErrCannotAutoCorrect),
		errors.Is(err, correction.ErrMissingWindowData):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) reportAnomalies(as []meter.Anomaly) {
	if h.Counters == nil {
		return
	}
	for _, a := range as {
		h.Counters.AnomalyReported(string(a.Kind))
	}
}
