// Package us sources US market data from Alpaca.
package us

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"tradecal/internal/calendar"
	"tradecal/internal/gather"
)

var _ gather.TradingDaySource = (*AlpacaTradingDays)(nil)

// AlpacaTradingDays lists trading days from the Alpaca trading calendar API.
type AlpacaTradingDays struct {
	client *alpaca.Client
	rng    gather.DateRange
}

// NewAlpacaTradingDays creates a source for the trading days in rng.
func NewAlpacaTradingDays(apiKey, apiSecret, baseURL string, rng gather.DateRange) *AlpacaTradingDays {
	return &AlpacaTradingDays{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		rng: rng,
	}
}

// TradingDays returns the calendar days Alpaca reports, ascending.
func (s *AlpacaTradingDays) TradingDays(ctx context.Context) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	days, err := s.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: s.rng.Start,
		End:   s.rng.End,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days returned from calendar")
	}

	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		t, err := calendar.ParseDay(d.Date)
		if err != nil {
			return nil, fmt.Errorf("calendar day: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
