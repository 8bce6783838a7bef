// v2
// internal/store/readings.go
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
)

// ReadingLog is an append-only JSON-lines store of meter readings with an
// in-memory index. The engine treats readings as immutable; the log only
// ever grows.
type ReadingLog struct {
	mu       sync.RWMutex
	path     string
	log      *slog.Logger
	file     *os.File
	writer   *bufio.Writer
	readings []meter.Reading // sorted by Timestamp asc
}

func NewReadingLog(path string, log *slog.Logger) (*ReadingLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	rl := &ReadingLog{path: path, log: log, file: f, writer: bufio.NewWriter(f)}
	if err := rl.load(); err != nil {
		f.Close()
		return nil, err
	}
	return rl, nil
}

func (rl *ReadingLog) load() error {
	rl.log.Info("loading readings", slog.String("path", rl.path))
	if _, err := rl.file.Seek(0, 0); err != nil {
		return err
	}
	rl.readings = nil
	sc := bufio.NewScanner(rl.file)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var r meter.Reading
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rl.readings = append(rl.readings, r)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	sort.Slice(rl.readings, func(i, j int) bool {
		return rl.readings[i].Timestamp.Before(rl.readings[j].Timestamp)
	})
	if _, err := rl.file.Seek(0, 2); err != nil {
		return err
	}
	rl.log.Info("readings loaded", slog.Int("count", len(rl.readings)))
	return nil
}

// Append persists one reading and adds it to the index.
func (rl *ReadingLog) Append(ctx context.Context, r meter.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, err := rl.writer.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := rl.writer.Flush(); err != nil {
		return err
	}
	// typically arriving in order; fall back to insert when not
	if n := len(rl.readings); n == 0 || !r.Timestamp.Before(rl.readings[n-1].Timestamp) {
		rl.readings = append(rl.readings, r)
	} else {
		i := sort.Search(n, func(i int) bool { return rl.readings[i].Timestamp.After(r.Timestamp) })
		rl.readings = append(rl.readings, meter.Reading{})
		copy(rl.readings[i+1:], rl.readings[i:])
		rl.readings[i] = r
	}
	return nil
}

// Range returns the readings with timestamps in [from, to), ascending.
func (rl *ReadingLog) Range(ctx context.Context, from, to time.Time) ([]meter.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	lo := sort.Search(len(rl.readings), func(i int) bool {
		return !rl.readings[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(rl.readings), func(i int) bool {
		return !rl.readings[i].Timestamp.Before(to)
	})
	if lo >= hi {
		return nil, nil
	}
	return append([]meter.Reading(nil), rl.readings[lo:hi]...), nil
}

// Close flushes and closes the backing file.
func (rl *ReadingLog) Close() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if err := rl.writer.Flush(); err != nil {
		return err
	}
	return rl.file.Close()
}
