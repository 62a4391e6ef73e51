package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tradecal/internal/bootstrap"
	"tradecal/internal/calendar"
	"tradecal/internal/config"
	"tradecal/internal/gather/cn"
)

func main() {
	cfgPath := "config/tradecal.yaml"
	if p := os.Getenv("TRADECAL_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := bootstrap.Logger(cfg, os.Stdout)

	symbols := cfg.Ingest.Symbols
	if len(symbols) == 0 {
		members, snapshot, err := cn.LatestConstituents(cfg.Storage.DataDir, cfg.Ingest.Index, time.Time{})
		if err != nil {
			log.Fatalf("loading %s constituents: %v", cfg.Ingest.Index, err)
		}
		symbols = cn.Symbols(members)
		logger.Info("using index constituents", "index", cfg.Ingest.Index, "snapshot", snapshot, "count", len(symbols))
	}
	if len(symbols) == 0 {
		log.Fatalf("no symbols to ingest")
	}
	start, err := calendar.ParseDay(cfg.Ingest.StartDate)
	if err != nil {
		log.Fatalf("ingest.start_date: %v", err)
	}
	since, err := calendar.ParseDay(cfg.Ingest.AdjustmentsSince)
	if err != nil {
		log.Fatalf("ingest.adjustments_since: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("building calendar: %v", err)
	}
	defer app.Close()

	gatherer := cn.NewBundleIngester(app.RPC, app.Calendar, app.Stores.Bars, app.Stores.Meta, cn.BundleOptions{
		Symbols:          symbols,
		Start:            start,
		AdjustmentsSince: since,
		Exchange:         cfg.Ingest.Exchange,
		RateLimitPerMin:  cfg.Ingest.RateLimitPerMin,
		ProgressDir:      filepath.Join(cfg.Storage.DataDir, string(cfg.Storage.Market)),
	}, logger)

	logger.Info("starting gatherer", "name", gatherer.Name())
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gatherer error: %v", err)
	}
}
