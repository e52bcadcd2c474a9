package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"eetc/internal/domain"
	"eetc/internal/store"
	"eetc/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// barClient is the slice of the Alpaca market-data client the gatherer uses.
type barClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// DailyBarGatherer gathers daily OHLCV bars for a configured list of US
// equity symbols via the Alpaca market-data API and writes them to the bar
// store. Symbols with no data in the range are skipped, not an error.
type DailyBarGatherer struct {
	client    barClient
	store     store.BarStore
	symbols   []string
	batchSize int
	rng       DateRange
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// DailyBarConfig configures a DailyBarGatherer.
type DailyBarConfig struct {
	APIKey    string
	APISecret string
	// DataURL overrides the Alpaca market-data base URL; empty uses the
	// default.
	DataURL string
	// Symbols to gather. Casing does not matter.
	Symbols []string
	// BatchSize is how many symbols go into one API call.
	BatchSize int
	// RateLimitPerMin caps API calls per minute.
	RateLimitPerMin int
	// Range bounds the gathered bars. A zero End means now.
	Range DateRange
}

// NewDailyBarGatherer creates a DailyBarGatherer writing into s.
func NewDailyBarGatherer(cfg DailyBarConfig, s store.BarStore, log *slog.Logger) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}

	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 100
	}
	perMin := cfg.RateLimitPerMin
	if perMin < 1 {
		perMin = 200
	}
	if log == nil {
		log = slog.Default()
	}

	symbols := make([]string, len(cfg.Symbols))
	for i, sym := range cfg.Symbols {
		symbols[i] = strings.ToUpper(sym)
	}

	rng := cfg.Range
	if rng.End.IsZero() {
		rng.End = time.Now()
	}

	return &DailyBarGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   symbols,
		batchSize: batchSize,
		rng:       rng,
		limiter:   util.NewRateLimiter(perMin),
		log:       log.With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for all configured symbols in batches and writes
// them to the store. Transient API failures are retried with backoff; a
// batch that still fails aborts the run so a scheduler can rerun it, which
// is safe because writes merge.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		g.log.Info("no symbols configured")
		return nil
	}

	totalBatches := (len(g.symbols) + g.batchSize - 1) / g.batchSize
	g.log.Info("starting us-daily",
		"symbols", len(g.symbols),
		"batches", totalBatches,
		"start", g.rng.Start.Format("2006-01-02"),
		"end", g.rng.End.Format("2006-01-02"),
	)

	runStart := time.Now()
	var totalBars, totalEmpty int
	for i := 0; i < len(g.symbols); i += g.batchSize {
		end := i + g.batchSize
		if end > len(g.symbols) {
			end = len(g.symbols)
		}
		batch := g.symbols[i:end]
		batchNum := i/g.batchSize + 1

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var multiBars map[string][]marketdata.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var err error
			multiBars, err = g.client.GetMultiBars(batch, marketdata.GetBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     g.rng.Start,
				End:       g.rng.End,
				Feed:      "sip",
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("batch %d/%d: GetMultiBars: %w", batchNum, totalBatches, err)
		}

		bars := convertBars(multiBars)
		empty := len(batch) - len(multiBars)

		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, domain.MarketUS, bars); err != nil {
				return fmt.Errorf("batch %d/%d: writing bars: %w", batchNum, totalBatches, err)
			}
		}

		totalBars += len(bars)
		totalEmpty += empty
		g.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", batchNum, totalBatches),
			"bars", len(bars),
			"empty", empty,
		)
	}

	g.log.Info("complete",
		"bars", totalBars,
		"empty", totalEmpty,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

func convertBars(multiBars map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars
}
