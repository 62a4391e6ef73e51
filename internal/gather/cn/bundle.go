// Package cn ingests China A-share daily bundles: daily bars reindexed onto
// the session calendar, asset metadata and corporate actions.
package cn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tradecal/internal/calendar"
	"tradecal/internal/domain"
	"tradecal/internal/gather"
	"tradecal/internal/store"
	"tradecal/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface check
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*BundleIngester)(nil)

// Source supplies raw daily bars and corporate actions.
type Source interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	Adjustments(ctx context.Context, symbol string) ([]domain.Adjustment, error)
}

// MetadataWriter persists what the bundle records beside its bars.
type MetadataWriter interface {
	store.AssetWriter
	store.AdjustmentWriter
}

// BundleOptions configures a BundleIngester.
type BundleOptions struct {
	// Symbols are ingested in order; an asset's SID is its index here.
	Symbols []string
	// Start is the first day requested from the source.
	Start time.Time
	// AdjustmentsSince drops corporate actions dated on or before it.
	AdjustmentsSince time.Time
	Exchange         string
	RateLimitPerMin  int
	// ProgressDir, when set, holds the resume file of interrupted runs.
	ProgressDir string
}

// Summary reports the outcome of a run.
type Summary struct {
	Ingested  int
	Resumed   int
	Skipped   []string
	Splits    int
	Dividends int
}

// BundleIngester builds a daily bundle for a list of symbols.
type BundleIngester struct {
	src     Source
	cal     *calendar.Calendar
	bars    store.BarStore
	meta    MetadataWriter
	opts    BundleOptions
	limiter *util.RateLimiter
	log     *slog.Logger

	last Summary
}

// NewBundleIngester creates a BundleIngester that reads from src, reindexes
// onto cal and writes bars to bars and metadata to meta.
func NewBundleIngester(src Source, cal *calendar.Calendar, bars store.BarStore, meta MetadataWriter, opts BundleOptions, log *slog.Logger) *BundleIngester {
	if log == nil {
		log = slog.Default()
	}
	return &BundleIngester{
		src:     src,
		cal:     cal,
		bars:    bars,
		meta:    meta,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		log:     log.With("gatherer", "cn-bundle"),
	}
}

// Name returns the gatherer identifier.
func (g *BundleIngester) Name() string { return "cn-bundle" }

// LastSummary returns the summary of the most recent Run.
func (g *BundleIngester) LastSummary() Summary { return g.last }

// errNoTrades marks a symbol whose source history has no traded bar.
var errNoTrades = errors.New("no traded bars")

// Run ingests every symbol. Symbols without traded bars are skipped with a
// warning; any other failure stops the run.
func (g *BundleIngester) Run(ctx context.Context) error {
	sessions := g.cal.Sessions()
	if len(sessions) == 0 {
		return fmt.Errorf("cn-bundle: calendar has no sessions")
	}
	end := sessions[len(sessions)-1].Date

	var progress *progressTracker
	if g.opts.ProgressDir != "" {
		var err error
		progress, err = newProgressTracker(g.opts.ProgressDir, end.Format(calendar.DateLayout))
		if err != nil {
			return err
		}
		defer progress.Close()
	}

	g.last = Summary{}
	g.log.Info("starting bundle ingest", "symbols", len(g.opts.Symbols), "end", end.Format(calendar.DateLayout))
	for sid, symbol := range g.opts.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil && progress.IsDone(symbol) {
			g.last.Resumed++
			continue
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		splits, dividends, err := g.ingestSymbol(ctx, int64(sid), symbol, sessions)
		if errors.Is(err, errNoTrades) {
			g.log.Warn("skipping symbol without traded bars", "symbol", symbol)
			g.last.Skipped = append(g.last.Skipped, symbol)
			continue
		}
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", symbol, err)
		}
		g.last.Ingested++
		g.last.Splits += splits
		g.last.Dividends += dividends

		if progress != nil {
			if err := progress.MarkDone(symbol); err != nil {
				return err
			}
		}
		g.log.Debug("symbol ingested", "symbol", symbol, "sid", sid, "splits", splits, "dividends", dividends)
	}

	g.log.Info("bundle ingest complete",
		"ingested", g.last.Ingested,
		"resumed", g.last.Resumed,
		"skipped", len(g.last.Skipped),
		"splits", g.last.Splits,
		"dividends", g.last.Dividends,
	)
	return nil
}

func (g *BundleIngester) ingestSymbol(ctx context.Context, sid int64, symbol string, sessions []calendar.Session) (int, int, error) {
	end := sessions[len(sessions)-1].Date
	raw, err := g.src.DailyBars(ctx, symbol, g.opts.Start, end)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching bars: %w", err)
	}
	traded := tradedBars(raw)
	if len(traded) == 0 {
		return 0, 0, errNoTrades
	}
	startDate := traded[0].Timestamp
	endDate := traded[len(traded)-1].Timestamp

	bars := Reindex(symbol, traded, sessions)
	if err := g.bars.WriteBars(ctx, bars); err != nil {
		return 0, 0, fmt.Errorf("writing bars: %w", err)
	}

	asset := domain.Asset{
		SID:           sid,
		Symbol:        symbol,
		StartDate:     startDate,
		EndDate:       endDate,
		AutoCloseDate: endDate.AddDate(0, 0, 1),
		Exchange:      g.opts.Exchange,
	}
	if err := g.meta.WriteAssets(ctx, []domain.Asset{asset}); err != nil {
		return 0, 0, fmt.Errorf("writing asset: %w", err)
	}

	adjs, err := g.src.Adjustments(ctx, symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching adjustments: %w", err)
	}
	splits, dividends := SplitAdjustments(symbol, adjs, g.opts.AdjustmentsSince, bars)
	for _, d := range droppedDividends(adjs, dividends, g.opts.AdjustmentsSince) {
		g.log.Debug("dividend without a prior close", "symbol", symbol, "ex_date", d.Format(calendar.DateLayout))
	}
	if err := g.meta.WriteSplits(ctx, splits); err != nil {
		return 0, 0, fmt.Errorf("writing splits: %w", err)
	}
	if err := g.meta.WriteDividends(ctx, dividends); err != nil {
		return 0, 0, fmt.Errorf("writing dividends: %w", err)
	}
	return len(splits), len(dividends), nil
}

// tradedBars keeps bars with volume, sorted by date with one bar per date.
func tradedBars(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Traded() {
			b.Timestamp = calendar.Day(b.Timestamp)
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	dedup := out[:0]
	for i, b := range out {
		if i > 0 && b.Timestamp.Equal(dedup[len(dedup)-1].Timestamp) {
			dedup[len(dedup)-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

// Reindex lays traded bars onto every session from the first traded bar
// through the last session. Sessions without a bar get zero volume and
// amount and the previous bar's prices. Traded bars on days that are not
// sessions only feed the forward fill.
func Reindex(symbol string, traded []domain.Bar, sessions []calendar.Session) []domain.Bar {
	if len(traded) == 0 {
		return nil
	}
	first := traded[0].Timestamp
	i := sort.Search(len(sessions), func(i int) bool { return !sessions[i].Date.Before(first) })

	out := make([]domain.Bar, 0, len(sessions)-i)
	var prev domain.Bar
	j := 0
	for _, s := range sessions[i:] {
		for j < len(traded) && traded[j].Timestamp.Before(s.Date) {
			prev = traded[j]
			j++
		}
		if j < len(traded) && traded[j].Timestamp.Equal(s.Date) {
			b := traded[j]
			b.Symbol = symbol
			out = append(out, b)
			prev = b
			j++
			continue
		}
		out = append(out, domain.Bar{
			Symbol:    symbol,
			Timestamp: s.Date,
			Open:      prev.Open,
			High:      prev.High,
			Low:       prev.Low,
			Close:     prev.Close,
		})
	}
	return out
}

// SplitAdjustments separates the actions dated after since into splits and
// dividends. A split's value is its price ratio. A dividend's value is its
// cash amount; its ratio is 1 - amount / close of the last bar before the ex
// date. Dividends without such a close are dropped.
func SplitAdjustments(symbol string, adjs []domain.Adjustment, since time.Time, bars []domain.Bar) ([]domain.Split, []domain.Dividend) {
	var splits []domain.Split
	var dividends []domain.Dividend
	for _, a := range adjs {
		d := calendar.Day(a.Date)
		if !d.After(since) {
			continue
		}
		switch a.Action {
		case domain.ActionSplit:
			splits = append(splits, domain.Split{Symbol: symbol, EffectiveDate: d, Ratio: a.Value})
		case domain.ActionDividend:
			prior, ok := closeBefore(bars, d)
			if !ok || prior == 0 {
				continue
			}
			dividends = append(dividends, domain.Dividend{
				Symbol: symbol,
				ExDate: d,
				Amount: a.Value,
				Ratio:  1 - a.Value/prior,
			})
		}
	}
	return splits, dividends
}

// closeBefore returns the close of the last bar dated before d.
func closeBefore(bars []domain.Bar, d time.Time) (float64, bool) {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(d) })
	if i == 0 {
		return 0, false
	}
	return bars[i-1].Close, true
}

// droppedDividends lists the ex dates of dividends after since that
// SplitAdjustments left out.
func droppedDividends(adjs []domain.Adjustment, dividends []domain.Dividend, since time.Time) []time.Time {
	kept := make(map[time.Time]struct{}, len(dividends))
	for _, d := range dividends {
		kept[d.ExDate] = struct{}{}
	}
	var out []time.Time
	for _, a := range adjs {
		d := calendar.Day(a.Date)
		if a.Action != domain.ActionDividend || !d.After(since) {
			continue
		}
		if _, ok := kept[d]; !ok {
			out = append(out, d)
		}
	}
	return out
}
