// v1
// internal/ingest/wire_test.go
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
)

func unmarshalWire(t *testing.T, payload string) (*readingWire, error) {
	t.Helper()
	var w readingWire
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	return &w, nil
}

func TestToReadingRFC3339(t *testing.T) {
	w, _ := unmarshalWire(t, `{"timestamp":"2024-03-09T15:00:00Z","total":430.5,"rate":50}`)
	r, err := w.toReading()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s, want %s", r.Timestamp, want)
	}
	if r.Total != 430.5 || r.Rate != 50 {
		t.Fatalf("reading = %+v", r)
	}
}

func TestToReadingUnixMillis(t *testing.T) {
	w, _ := unmarshalWire(t, `{"timestamp":1709996400000,"total":"430.5","rate":"50"}`)
	r, err := w.toReading()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Timestamp.Equal(time.Unix(1709996400, 0)) {
		t.Fatalf("timestamp = %s", r.Timestamp)
	}
	if r.Total != 430.5 {
		t.Fatalf("total = %.3f", r.Total)
	}
}

func TestToReadingUnixSeconds(t *testing.T) {
	w, _ := unmarshalWire(t, `{"timestamp":"1709996400","total":12,"rate":0}`)
	r, err := w.toReading()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Timestamp.Equal(time.Unix(1709996400, 0)) {
		t.Fatalf("timestamp = %s", r.Timestamp)
	}
}

func TestToReadingRejects(t *testing.T) {
	cases := []string{
		`{"timestamp":"soon","total":1,"rate":1}`,
		`{"total":1,"rate":1}`,
		`{"timestamp":"2024-03-09T15:00:00Z","rate":1}`,
		`{"timestamp":"2024-03-09T15:00:00Z","total":-4,"rate":1}`,
		`{"timestamp":"2024-03-09T15:00:00Z","total":"lots","rate":1}`,
	}
	for _, payload := range cases {
		w, _ := unmarshalWire(t, payload)
		if _, err := w.toReading(); err == nil {
			t.Fatalf("expected error for %s", payload)
		}
	}
}

type sinkStub struct{}

func (sinkStub) Append(context.Context, meter.Reading) error { return nil }

func TestStartValidation(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	if _, err := Start(ctx, Config{Topic: "meter.readings"}, sinkStub{}, nil, log); err == nil {
		t.Fatal("expected error for missing brokers")
	}
	if _, err := Start(ctx, Config{Brokers: []string{"kafka:9092"}}, sinkStub{}, nil, log); err == nil {
		t.Fatal("expected error for empty topic")
	}
	if _, err := Start(ctx, Config{Brokers: []string{"kafka:9092"}, Topic: "t"}, nil, nil, log); err == nil {
		t.Fatal("expected error for nil sink")
	}
}

func TestDecode(t *testing.T) {
	r, err := decode([]byte(`{"timestamp":"2024-03-09T15:00:00Z","total":12,"rate":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Total != 12 || r.Rate != 3 {
		t.Fatalf("reading = %+v", r)
	}
	if _, err := decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
