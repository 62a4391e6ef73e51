// Package pricing resolves point-in-time field queries for an asset against
// a trading calendar, walking back across sessions when the close is missing
// and adjusting the stale close for corporate actions.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"tradecal/internal/calendar"
	"tradecal/internal/domain"
	"tradecal/internal/store"
)

// Sessions is the part of the calendar the resolver walks.
type Sessions interface {
	Location() *time.Location
	IsSession(date time.Time) bool
	PreviousSession(date time.Time) (calendar.Session, bool)
}

var _ Sessions = (*calendar.Calendar)(nil)

// Resolver answers price queries. It holds no mutable state and is safe for
// concurrent use when its collaborators are.
type Resolver struct {
	sessions Sessions
	bars     store.BarReader
	adj      store.AdjustmentReader
}

// NewResolver creates a Resolver reading bars from bars and adjustment
// factors from adj.
func NewResolver(sessions Sessions, bars store.BarReader, adj store.AdjustmentReader) *Resolver {
	return &Resolver{sessions: sessions, bars: bars, adj: adj}
}

// Resolve returns field of asset at t. The day of a query is t's local date
// in the calendar's time zone, whether or not it is a session.
//
//   - last_traded: the latest traded day on or before that day, or missing.
//   - open/high/low/close/volume: the raw bar value of that day, or missing.
//     Raw fields are never forward filled, so a weekend or holiday is
//     missing.
//   - price: the close of that day; when missing, the close of the nearest
//     earlier session that has one, multiplied by the cumulative adjustment
//     over (that session, day]. Fails with ErrNoPriceData when no earlier
//     session has a close.
func (r *Resolver) Resolve(ctx context.Context, asset string, field domain.Field, t time.Time) (Value, error) {
	switch {
	case field == domain.FieldLastTraded:
		return r.lastTraded(ctx, asset, t)
	case field.IsOHLCV():
		return r.raw(ctx, asset, field, t)
	case field == domain.FieldPrice:
		return r.price(ctx, asset, t)
	}
	return Value{}, fmt.Errorf("unknown field %q", field)
}

func (r *Resolver) queryDay(t time.Time) time.Time {
	return calendar.Day(t.In(r.sessions.Location()))
}

func (r *Resolver) lastTraded(ctx context.Context, asset string, t time.Time) (Value, error) {
	last, ok, err := r.bars.LastTraded(ctx, asset, r.queryDay(t))
	if err != nil {
		return Value{}, fmt.Errorf("last traded for %s: %w", asset, err)
	}
	if !ok {
		return Missing(), nil
	}
	return Instant(last), nil
}

func (r *Resolver) raw(ctx context.Context, asset string, field domain.Field, t time.Time) (Value, error) {
	v, ok, err := r.bars.Value(ctx, asset, r.queryDay(t), field)
	if errors.Is(err, store.ErrNoDataOnDate) {
		return Missing(), nil
	}
	if err != nil {
		return Value{}, fmt.Errorf("%s for %s: %w", field, asset, err)
	}
	if !ok || math.IsNaN(v) {
		return Missing(), nil
	}
	return Number(v), nil
}

// price walks from the query day back one session at a time. The walk ends
// at the first close found, at the first calendar session, or where the
// reader reports the asset's history has not started yet.
func (r *Resolver) price(ctx context.Context, asset string, t time.Time) (Value, error) {
	target := r.queryDay(t)
	found := target
	if !r.sessions.IsSession(target) {
		prev, ok := r.sessions.PreviousSession(target)
		if !ok {
			return Value{}, &NoPriceDataError{Asset: asset, At: t}
		}
		found = prev.Date
	}

	inHistory := false
	for {
		v, ok, err := r.bars.Value(ctx, asset, found, domain.FieldClose)
		switch {
		case errors.Is(err, store.ErrBeforeFirstBar):
			return Value{}, &NoPriceDataError{Asset: asset, At: t}
		case errors.Is(err, store.ErrNoDataOnDate):
			// Before any bar was seen the day may lie past the asset's last
			// bar, so the walk goes on; after that it has passed the first.
			if inHistory {
				return Value{}, &NoPriceDataError{Asset: asset, At: t}
			}
			ok, err = false, nil
		case err == nil:
			inHistory = true
		}
		if err != nil {
			return Value{}, fmt.Errorf("price for %s: %w", asset, err)
		}

		if ok && !math.IsNaN(v) {
			if found.Equal(target) {
				return Number(v), nil
			}
			factor, err := r.adj.CumulativeAdjustment(ctx, asset, found, target)
			if err != nil {
				return Value{}, fmt.Errorf("adjusting price for %s: %w", asset, err)
			}
			return Number(v * factor), nil
		}

		prev, ok := r.sessions.PreviousSession(found)
		if !ok {
			return Value{}, &NoPriceDataError{Asset: asset, At: t}
		}
		found = prev.Date
	}
}
