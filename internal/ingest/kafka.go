// v2
// internal/ingest/kafka.go
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
)

// Config groups the Kafka settings for reading the meter topic.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Sink receives validated readings; in production this is the ReadingLog.
type Sink interface {
	Append(ctx context.Context, r meter.Reading) error
}

// Counters is the subset of observability the consumer reports to.
type Counters interface {
	IngestAccepted()
	IngestRejected()
}

// Manager tracks the lifecycle of the background consumer.
type Manager struct {
	wg sync.WaitGroup
}

// Start wires a group reader for the meter topic and begins ingestion.
func Start(ctx context.Context, cfg Config, sink Sink, ctr Counters, log *slog.Logger) (*Manager, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink must not be nil")
	}
	if log == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("topic must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: []string{cfg.Topic},
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	mgr := &Manager{}
	mgr.wg.Add(1)
	go func() {
		defer mgr.wg.Done()
		defer reader.Close()
		run(ctx, reader, sink, ctr, log.With(slog.String("topic", cfg.Topic)))
	}()
	return mgr, nil
}

// Wait blocks until the consumer has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func run(ctx context.Context, reader *kafka.Reader, sink Sink, ctr Counters, log *slog.Logger) {
	log.Info("ingest started")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("ingest stopped")
				return
			}
			log.Error("read message", "err", err)
			continue
		}
		r, err := decode(msg.Value)
		if err != nil {
			if ctr != nil {
				ctr.IngestRejected()
			}
			log.Error("reject reading", "offset", msg.Offset, "err", err)
			continue
		}
		if err := sink.Append(ctx, r); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("append reading", "err", err)
			continue
		}
		if ctr != nil {
			ctr.IngestAccepted()
		}
	}
}

func decode(b []byte) (meter.Reading, error) {
	var w readingWire
	if err := json.Unmarshal(b, &w); err != nil {
		return meter.Reading{}, err
	}
	return w.toReading()
}
