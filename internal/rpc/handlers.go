package rpc

import (
	"context"
	"time"

	"tradecal/internal/domain"
	"tradecal/internal/store"
)

// paramDateLayout is the compact date form of Kline's s and e params.
const paramDateLayout = "20060102"

// rowDateLayout is the date form of every row the service returns.
const rowDateLayout = "2006-01-02"

// DayLister lists the sessions on which a symbol traded.
type DayLister interface {
	TradedDays(ctx context.Context, symbol string) ([]time.Time, error)
}

// AdjustmentLister lists the raw corporate actions of a symbol.
type AdjustmentLister interface {
	ListAdjustments(ctx context.Context, symbol string) ([]domain.Adjustment, error)
}

// Backend is the storage the data handlers serve from.
type Backend struct {
	Days        DayLister
	Bars        store.BarStore
	Adjustments AdjustmentLister

	// ReferenceSymbol is the symbol whose traded days answer Tdays,
	// normally the market's main index.
	ReferenceSymbol string
}

// RegisterDataHandlers registers Tdays, Kline and Divid on s.
func RegisterDataHandlers(s *Server, b Backend) {
	s.Handle(FuncTdays, b.tdays)
	s.Handle(FuncKline, b.kline)
	s.Handle(FuncDivid, b.divid)
}

func (b Backend) tdays(ctx context.Context, _ map[string]any) (any, error) {
	days, err := b.Days.TradedDays(ctx, b.ReferenceSymbol)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(days))
	for i, d := range days {
		out[i] = d.Format(rowDateLayout)
	}
	return out, nil
}

func (b Backend) kline(ctx context.Context, params map[string]any) (any, error) {
	symbol, err := stringParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	start, err := dateParam(params, "s")
	if err != nil {
		return nil, err
	}
	end, err := dateParam(params, "e")
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, invalidParam("e", "%s is before s", end.Format(paramDateLayout))
	}

	bars, err := b.Bars.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(bars))
	for i, bar := range bars {
		out[i] = map[string]any{
			"date":   bar.Timestamp.Format(rowDateLayout),
			"open":   bar.Open,
			"high":   bar.High,
			"low":    bar.Low,
			"close":  bar.Close,
			"volume": bar.Volume,
			"amount": bar.Amount,
		}
	}
	return out, nil
}

func (b Backend) divid(ctx context.Context, params map[string]any) (any, error) {
	symbol, err := stringParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	adjs, err := b.Adjustments.ListAdjustments(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(adjs))
	for i, a := range adjs {
		out[i] = map[string]any{
			"date":   a.Date.Format(rowDateLayout),
			"action": string(a.Action),
			"value":  a.Value,
		}
	}
	return out, nil
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name].(string)
	if !ok || v == "" {
		return "", invalidParam(name, "required string")
	}
	return v, nil
}

func dateParam(params map[string]any, name string) (time.Time, error) {
	v, err := stringParam(params, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(paramDateLayout, v)
	if err != nil {
		return time.Time{}, invalidParam(name, "want YYYYMMDD, got %q", v)
	}
	return t, nil
}
