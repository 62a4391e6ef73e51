// Package bootstrap assembles the calendar, stores and resolver from
// configuration for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"tradecal/internal/calendar"
	"tradecal/internal/config"
	"tradecal/internal/gather"
	"tradecal/internal/gather/us"
	"tradecal/internal/pricing"
	"tradecal/internal/rpc"
	"tradecal/internal/store"
	"tradecal/internal/util"
)

// Logger creates the logger described by cfg.Logging, writing to w.
func Logger(cfg *config.Config, w io.Writer) *slog.Logger {
	return util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w)
}

// DialRPC creates a data service client from cfg.RPC. No connection is made
// until the first call.
func DialRPC(cfg *config.Config, log *slog.Logger) (*rpc.Client, error) {
	return rpc.Dial(cfg.RPC.Addr,
		rpc.WithRetry(cfg.RPC.MaxAttempts, cfg.RPC.RetryBase()),
		rpc.WithLogger(log),
	)
}

// TradingDaySource returns the configured source of reference trading days.
// client serves the rpc source and may be nil for the others.
func TradingDaySource(cfg *config.Config, client *rpc.Client) (gather.TradingDaySource, error) {
	td := cfg.Calendar.TradingDays
	switch td.Source {
	case config.SourceRPC:
		if client == nil {
			return nil, errors.New("rpc trading-day source needs a client")
		}
		return client, nil
	case config.SourceCSV:
		return &gather.CSVTradingDays{Path: td.Path, Encoding: td.Encoding}, nil
	case config.SourceAlpaca:
		start, end, err := cfg.Calendar.Range()
		if err != nil {
			return nil, err
		}
		return us.NewAlpacaTradingDays(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL,
			gather.DateRange{Start: start, End: end}), nil
	}
	return nil, fmt.Errorf("%w: unknown trading-day source %q", calendar.ErrConfiguration, td.Source)
}

// BuildCalendar derives the holidays from src and builds the calendar of
// cfg.Calendar.
func BuildCalendar(ctx context.Context, cfg *config.Config, src gather.TradingDaySource, log *slog.Logger) (*calendar.Calendar, error) {
	start, end, err := cfg.Calendar.Range()
	if err != nil {
		return nil, err
	}
	days, err := src.TradingDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trading days: %w", err)
	}
	holidays, err := calendar.DeriveHolidays(days, start, end)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Calendar.Options(holidays)
	if err != nil {
		return nil, err
	}
	cal, err := calendar.Build(opts)
	if err != nil {
		return nil, err
	}

	log.Info("calendar built",
		"name", cal.Name(),
		"sessions", cal.Len(),
		"holidays", len(holidays),
		"minutes", cal.MinuteCount(),
		"reference_days", len(days),
	)
	return cal, nil
}

// Stores holds the bar and metadata stores.
type Stores struct {
	Bars *store.ParquetStore
	Meta *store.SQLiteStore
}

// OpenStores opens the stores under cfg.Storage.
func OpenStores(cfg *config.Config) (*Stores, error) {
	meta, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	return &Stores{
		Bars: store.NewParquetStore(cfg.Storage.DataDir, cfg.Storage.Market),
		Meta: meta,
	}, nil
}

// Close closes the metadata database.
func (s *Stores) Close() error { return s.Meta.Close() }

// App is everything a query binary needs.
type App struct {
	Config   *config.Config
	Log      *slog.Logger
	RPC      *rpc.Client
	Calendar *calendar.Calendar
	Stores   *Stores
	Resolver *pricing.Resolver
}

// Open builds an App: it dials the data service, builds the calendar from
// the configured trading-day source and opens the stores.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	client, err := DialRPC(cfg, log)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Log: log, RPC: client}

	src, err := TradingDaySource(cfg, client)
	if err != nil {
		app.Close()
		return nil, err
	}
	if app.Calendar, err = BuildCalendar(ctx, cfg, src, log); err != nil {
		app.Close()
		return nil, err
	}
	if app.Stores, err = OpenStores(cfg); err != nil {
		app.Close()
		return nil, err
	}
	app.Resolver = pricing.NewResolver(app.Calendar, app.Stores.Bars, app.Stores.Meta)
	return app, nil
}

// Close releases the stores and the client connection.
func (a *App) Close() error {
	var errs []error
	if a.Stores != nil {
		errs = append(errs, a.Stores.Close())
	}
	if a.RPC != nil {
		errs = append(errs, a.RPC.Close())
	}
	return errors.Join(errs...)
}
