package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"eetc/internal/backtest"
	"eetc/internal/config"
	"eetc/internal/domain"
	"eetc/internal/store"
	"eetc/internal/strategy"
	"eetc/internal/strategy/builtins"
	"eetc/internal/util"
	"eetc/pkg/eetc"
)

func main() {
	strategyName := flag.String("strategy", "sma-cross", "strategy to run")
	symbol := flag.String("symbol", "", "symbol to backtest (required)")
	market := flag.String("market", "us", "market the symbol belongs to")
	startStr := flag.String("start", "", "first bar date, yyyy-mm-dd (required)")
	endStr := flag.String("end", "", "last bar date, yyyy-mm-dd (default today)")
	smaShort := flag.Int("sma-short", 20, "short SMA period for sma-cross")
	smaLong := flag.Int("sma-long", 50, "long SMA period for sma-cross")
	flag.Parse()

	if *symbol == "" || *startStr == "" {
		flag.Usage()
		os.Exit(2)
	}

	// .env is optional; real deployments use the environment directly.
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

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end := time.Now()
	if *endStr != "" {
		end, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
	}

	registry := strategy.NewRegistry()
	registry.Register(builtins.NewSMACross(*smaShort, *smaLong))

	strat, ok := registry.Get(*strategyName)
	if !ok {
		log.Fatalf("unknown strategy %q, available: %v", *strategyName, registry.List())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars, err := loadBars(ctx, cfg, domain.Market(*market), *symbol, start, end, logger)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}

	var journal backtest.Journal
	if cfg.Storage.SQLitePath != "" {
		bs, err := store.NewBacktestStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening backtest store: %v", err)
		}
		defer bs.Close()
		journal = bs
	}

	engine := backtest.NewEngine(backtest.Config{
		InitialCapital:     cfg.Backtest.InitialCapital,
		Slippage:           cfg.Backtest.Slippage,
		CommissionPerShare: cfg.Backtest.CommissionPerShare,
		AllowShort:         cfg.Backtest.AllowShort,
		OutputDir:          cfg.Backtest.OutputDir,
	}, logger, journal)

	res, err := engine.Run(ctx, strat, *symbol, bars)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	logger.Info("backtest complete",
		"strategy", res.StrategyName,
		"symbol", res.Symbol,
		"bars", len(bars),
		"fills", len(res.Fills),
		"totalReturn", res.Perf.TotalReturn,
		"sharpe", res.Perf.SharpeRatio,
		"maxDrawdown", res.Perf.MaxDrawdown,
		"outputDir", cfg.Backtest.OutputDir,
	)
}

// loadBars reads bars from local Parquet storage, falling back to the EETC
// Data Hub when nothing has been gathered locally.
func loadBars(ctx context.Context, cfg *config.Config, market domain.Market, symbol string, start, end time.Time, logger *slog.Logger) ([]domain.Bar, error) {
	bars, err := store.NewParquetStore(cfg.Storage.DataDir).ReadBars(ctx, market, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading bars from parquet: %w", err)
	}
	if len(bars) > 0 {
		logger.Info("loaded bars", "source", "parquet", "symbol", symbol, "bars", len(bars))
		return bars, nil
	}
	if cfg.EETC.APIKey == "" {
		return nil, fmt.Errorf("no local bars for %s and no EETC API key configured; run the gather command first", symbol)
	}

	var opts []eetc.DataClientOption
	if cfg.EETC.BaseURL != "" {
		opts = append(opts, eetc.WithBaseURL(cfg.EETC.BaseURL))
	}
	client := eetc.NewDataClient(cfg.EETC.APIKey, opts...)
	bars, err = client.GetPriceBars(ctx, symbol, eetc.PriceQuery{
		FromDate: start.Format("2006-01-02"),
		ToDate:   end.Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching bars from EETC: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s between %s and %s",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	logger.Info("loaded bars", "source", "eetc", "symbol", symbol, "bars", len(bars))
	return bars, nil
}
