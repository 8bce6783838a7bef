// v2
// cmd/prodacct/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xaaknazar/AltynShyghys-sub000/internal/aggregate"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/api"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/cache"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/config"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/correction"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/ingest"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/logging"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/metricdef"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/meter"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/observability"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/rollup"
	"github.com/xaaknazar/AltynShyghys-sub000/internal/store"
)

func main() {
	cfg := config.Load()

	lg, err := logging.New(cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer lg.Close()
	log := lg.Logger

	if err := cfg.Validate(); err != nil {
		log.Error("bad configuration", "err", err)
		os.Exit(1)
	}
	log.Info("config loaded",
		"bind", cfg.BindAddr, "brokers", cfg.Brokers, "topic", cfg.Topic,
		"tzOffset", cfg.TimezoneOffsetHours, "dailyTarget", cfg.DailyTargetTonnes)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	readings, err := store.NewReadingLog(cfg.ReadingsPath, log)
	if err != nil {
		log.Error("open reading log", "path", cfg.ReadingsPath, "err", err)
		os.Exit(1)
	}
	defer readings.Close()

	shifts, err := store.NewShiftStore(cfg.ShiftsPath, log)
	if err != nil {
		log.Error("open shift store", "path", cfg.ShiftsPath, "err", err)
		os.Exit(1)
	}

	proc := meter.NewProcessor(meter.Thresholds{
		Gap:            cfg.GapThreshold,
		LargeGap:       cfg.LargeGapThreshold,
		ResetEpsilon:   cfg.ResetEpsilon,
		ResetTolerance: cfg.ResetTolerance,
		Spike:          cfg.SpikeThreshold,
	})
	engine := rollup.New(rollup.Config{
		OffsetHours:   cfg.TimezoneOffsetHours,
		DailyTarget:   cfg.DailyTargetTonnes,
		ShiftTarget:   cfg.ShiftTargetTonnes,
		HourlyTarget:  cfg.HourlyTargetTonnes,
		ExcludedDates: cfg.ExcludedDates,
	}, proc)
	corr := correction.New(correction.Config{
		OffsetHours:       cfg.TimezoneOffsetHours,
		ResetEpsilon:      cfg.ResetEpsilon,
		AnomalyDifference: cfg.AnomalyDifference,
	}, readings, shifts, log)

	h := &api.Handlers{
		Log:      log,
		Cfg:      cfg,
		Readings: readings,
		Engine:   engine,
		Agg:      aggregate.New(proc, cfg.TimezoneOffsetHours),
		Corr:     corr,
		Registry: metricdef.Default(),
		Cache:    cache.New[any](cfg.CacheTTL, metrics),
		Counters: metrics,
	}
	router := api.NewRouter(h, observability.Handler(reg), metrics)
	srv := api.NewServer(cfg.BindAddr, log, router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr, err := ingest.Start(ctx, ingest.Config{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	}, readings, metrics, log)
	if err != nil {
		log.Error("start ingest", "err", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
		}
	}()
	log.Info("production accounting service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown requested")

	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := srv.Stop(shCtx); err != nil {
		log.Error("server shutdown", "err", err)
	}
	mgr.Wait()
	log.Info("bye")
}
