package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"eetc/internal/config"
	"eetc/internal/gather"
	"eetc/internal/store"
	"eetc/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/eetc.yaml"
	if p := os.Getenv("EETC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	start, err := time.Parse("2006-01-02", cfg.Gather.StartDate)
	if err != nil {
		log.Fatalf("invalid gather start_date %q: %v", cfg.Gather.StartDate, err)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	gatherer := gather.NewDailyBarGatherer(gather.DailyBarConfig{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		Symbols:         cfg.Gather.Symbols,
		BatchSize:       cfg.Gather.BatchSize,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		Range:           gather.DateRange{Start: start},
	}, pstore, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
