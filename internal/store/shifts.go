// v2
// internal/store/shifts.go
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/timewindow"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleAggregate signals that the stored difference changed after the
	// caller last read it; the caller must re-diagnose.
	ErrStaleAggregate = errors.New("shift aggregate modified concurrently")
)

// ShiftAggregate is a persisted per-shift record. Historic records may carry
// a known defect where Difference holds the raw absolute counter value
// instead of a true delta (typically after a counter reset); the engine
// treats stored records as untrusted input for diagnosis, never as ground
// truth for rollups.
type ShiftAggregate struct {
	ProductionDate   string               `json:"productionDate"`
	ShiftType        timewindow.ShiftKind `json:"shiftType"`
	Difference       float64              `json:"difference"`
	Value            float64              `json:"value"` // absolute counter value at shift end
	CorrectedAt      *time.Time           `json:"correctedAt,omitempty"`
	CorrectionReason string               `json:"correctionReason,omitempty"`
}

func shiftKey(date string, kind timewindow.ShiftKind) string {
	return date + "/" + string(kind)
}

// ShiftStore keeps shift aggregates in a JSON-lines file, one record per
// line, rewritten atomically on update.
type ShiftStore struct {
	mu      sync.RWMutex
	path    string
	log     *slog.Logger
	records map[string]ShiftAggregate
}

func NewShiftStore(path string, log *slog.Logger) (*ShiftStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	ss := &ShiftStore{path: path, log: log, records: map[string]ShiftAggregate{}}
	if err := ss.load(); err != nil {
		return nil, err
	}
	return ss, nil
}

func (ss *ShiftStore) load() error {
	f, err := os.Open(ss.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var a ShiftAggregate
		if err := json.Unmarshal(raw, &a); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !a.ShiftType.Valid() {
			return fmt.Errorf("line %d: unknown shift type %q", line, a.ShiftType)
		}
		ss.records[shiftKey(a.ProductionDate, a.ShiftType)] = a
	}
	if err := sc.Err(); err != nil {
		return err
	}
	ss.log.Info("shift aggregates loaded", slog.String("path", ss.path), slog.Int("count", len(ss.records)))
	return nil
}

// Get returns the aggregate for one shift, or ErrNotFound.
func (ss *ShiftStore) Get(ctx context.Context, date string, kind timewindow.ShiftKind) (ShiftAggregate, error) {
	if err := ctx.Err(); err != nil {
		return ShiftAggregate{}, err
	}
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	a, ok := ss.records[shiftKey(date, kind)]
	if !ok {
		return ShiftAggregate{}, fmt.Errorf("shift %s/%s: %w", date, kind, ErrNotFound)
	}
	return a, nil
}

// Put inserts or replaces one aggregate.
func (ss *ShiftStore) Put(ctx context.Context, a ShiftAggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.ShiftType.Valid() {
		return fmt.Errorf("unknown shift type %q", a.ShiftType)
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.records[shiftKey(a.ProductionDate, a.ShiftType)] = a
	return ss.persist()
}

// List returns all aggregates sorted by date then shift.
func (ss *ShiftStore) List(ctx context.Context) ([]ShiftAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make([]ShiftAggregate, 0, len(ss.records))
	for _, a := range ss.records {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductionDate != out[j].ProductionDate {
			return out[i].ProductionDate < out[j].ProductionDate
		}
		return out[i].ShiftType < out[j].ShiftType
	})
	return out, nil
}

// UpdateDifference performs the single conditional write of the engine: it
// replaces the stored difference only while it still equals expectedOld,
// stamping the audit fields. Returns (matched, modified). A record already
// holding newDiff counts as matched but not modified, making the call
// idempotent.
func (ss *ShiftStore) UpdateDifference(ctx context.Context, date string, kind timewindow.ShiftKind, expectedOld, newDiff float64, reason string) (matched, modified int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	key := shiftKey(date, kind)
	a, ok := ss.records[key]
	if !ok {
		return 0, 0, fmt.Errorf("shift %s/%s: %w", date, kind, ErrNotFound)
	}
	if a.Difference == newDiff {
		return 1, 0, nil
	}
	if a.Difference != expectedOld {
		return 0, 0, fmt.Errorf("shift %s/%s: stored %.3f, diagnosed against %.3f: %w",
			date, kind, a.Difference, expectedOld, ErrStaleAggregate)
	}
	now := time.Now().UTC()
	a.Difference = newDiff
	a.CorrectedAt = &now
	a.CorrectionReason = reason
	ss.records[key] = a
	if err := ss.persist(); err != nil {
		return 0, 0, err
	}
	ss.log.Info("shift aggregate corrected",
		slog.String("date", date), slog.String("shift", string(kind)),
		slog.Float64("old", expectedOld), slog.Float64("new", newDiff))
	return 1, 1, nil
}

// persist rewrites the whole file and renames it into place. Caller holds
// the write lock.
func (ss *ShiftStore) persist() error {
	tmp := ss.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	keys := make([]string, 0, len(ss.records))
	for k := range ss.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b, err := json.Marshal(ss.records[k])
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, ss.path)
}
