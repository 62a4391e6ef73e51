// Package calendar builds the trading timeline of a market: its sessions,
// their open and close instants, and the one-minute grid of each session
// with the midday recess removed.
//
// A Calendar is built once by Build and is immutable afterwards; it is safe
// for concurrent use.
package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Session is one trading day. Date is the session label (midnight UTC);
// Open and Close are instants in the calendar's location.
type Session struct {
	Date  time.Time
	Open  time.Time
	Close time.Time
}

// Minutes returns the length of the session in whole minutes.
func (s Session) Minutes() int { return int(s.Close.Sub(s.Open) / time.Minute) }

// Options configures Build.
type Options struct {
	Name     string
	Start    time.Time
	End      time.Time
	Holidays []time.Time
	Open     TimeOfDay
	Close    TimeOfDay
	Location *time.Location
	Recess   RecessWindow

	// SpecialOpens and EarlyCloses override Open and Close for a single
	// session, keyed by date.
	SpecialOpens map[time.Time]TimeOfDay
	EarlyCloses  map[time.Time]TimeOfDay
}

// Calendar is the authoritative session list of a market together with its
// precomputed minute grid.
type Calendar struct {
	name     string
	loc      *time.Location
	recess   RecessWindow
	sessions []Session
	holidays []time.Time

	// minutes holds the grid of every session back to back; session i owns
	// minutes[offsets[i]:offsets[i+1]].
	minutes []time.Time
	offsets []int
}

// Build constructs the calendar in two phases: the session list first, then
// the minute grid of all sessions in a single allocation.
func Build(opts Options) (*Calendar, error) {
	if opts.Location == nil {
		return nil, fmt.Errorf("%w: no time zone", ErrConstruction)
	}
	if opts.Start.IsZero() || opts.End.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrConfiguration)
	}
	start, end := Day(opts.Start), Day(opts.End)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s",
			ErrConstruction, start.Format(DateLayout), end.Format(DateLayout))
	}
	if !opts.Open.Before(opts.Close) {
		return nil, fmt.Errorf("%w: open %s is not before close %s", ErrConstruction, opts.Open, opts.Close)
	}
	if err := opts.Recess.Validate(); err != nil {
		return nil, err
	}

	closed := make(map[time.Time]struct{}, len(opts.Holidays))
	for _, h := range opts.Holidays {
		closed[Day(h)] = struct{}{}
	}
	opens := normalizeOverrides(opts.SpecialOpens)
	closes := normalizeOverrides(opts.EarlyCloses)

	c := &Calendar{
		name:   opts.Name,
		loc:    opts.Location,
		recess: opts.Recess,
	}
	for _, d := range BusinessDays(start, end) {
		if _, ok := closed[d]; ok {
			c.holidays = append(c.holidays, d)
			continue
		}
		openAt, closeAt := opts.Open, opts.Close
		if o, ok := opens[d]; ok {
			openAt = o
		}
		if cl, ok := closes[d]; ok {
			closeAt = cl
		}
		if !openAt.Before(closeAt) {
			return nil, fmt.Errorf("%w: session %s opens at %s, not before its close %s",
				ErrConstruction, d.Format(DateLayout), openAt, closeAt)
		}
		c.sessions = append(c.sessions, Session{
			Date:  d,
			Open:  openAt.On(d, c.loc),
			Close: closeAt.On(d, c.loc),
		})
	}

	if err := c.buildMinutes(); err != nil {
		return nil, err
	}
	return c, nil
}

func normalizeOverrides(in map[time.Time]TimeOfDay) map[time.Time]TimeOfDay {
	out := make(map[time.Time]TimeOfDay, len(in))
	for d, t := range in {
		out[Day(d)] = t
	}
	return out
}

// Name returns the calendar's name, e.g. "SH".
func (c *Calendar) Name() string { return c.name }

// Location returns the market time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Recess returns the recess window shared by every session.
func (c *Calendar) Recess() RecessWindow { return c.recess }

// Sessions returns a copy of the session list, ascending by date.
func (c *Calendar) Sessions() []Session {
	out := make([]Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// Len returns the number of sessions.
func (c *Calendar) Len() int { return len(c.sessions) }

// Holidays returns the business days in range that are not sessions.
func (c *Calendar) Holidays() []time.Time {
	out := make([]time.Time, len(c.holidays))
	copy(out, c.holidays)
	return out
}

// First returns the earliest session.
func (c *Calendar) First() (Session, bool) {
	if len(c.sessions) == 0 {
		return Session{}, false
	}
	return c.sessions[0], true
}

// Last returns the latest session.
func (c *Calendar) Last() (Session, bool) {
	if len(c.sessions) == 0 {
		return Session{}, false
	}
	return c.sessions[len(c.sessions)-1], true
}

// IsSession reports whether date is a trading session.
func (c *Calendar) IsSession(date time.Time) bool {
	_, ok := c.index(Day(date))
	return ok
}

// Session returns the session labelled date.
func (c *Calendar) Session(date time.Time) (Session, bool) {
	i, ok := c.index(Day(date))
	if !ok {
		return Session{}, false
	}
	return c.sessions[i], true
}

// SessionContainingOrBefore returns the last session whose date is on or
// before the local date of t in the calendar's time zone.
func (c *Calendar) SessionContainingOrBefore(t time.Time) (Session, bool) {
	d := Day(t.In(c.loc))
	i := sort.Search(len(c.sessions), func(i int) bool { return c.sessions[i].Date.After(d) })
	if i == 0 {
		return Session{}, false
	}
	return c.sessions[i-1], true
}

// PreviousSession returns the last session strictly before date.
func (c *Calendar) PreviousSession(date time.Time) (Session, bool) {
	d := Day(date)
	i := sort.Search(len(c.sessions), func(i int) bool { return !c.sessions[i].Date.Before(d) })
	if i == 0 {
		return Session{}, false
	}
	return c.sessions[i-1], true
}

// NextSession returns the first session strictly after date.
func (c *Calendar) NextSession(date time.Time) (Session, bool) {
	d := Day(date)
	i := sort.Search(len(c.sessions), func(i int) bool { return c.sessions[i].Date.After(d) })
	if i == len(c.sessions) {
		return Session{}, false
	}
	return c.sessions[i], true
}

// IsOpenAt reports whether t is one of the calendar's grid minutes: a whole
// minute inside a session and outside its recess.
func (c *Calendar) IsOpenAt(t time.Time) bool {
	s, ok := c.Session(Day(t.In(c.loc)))
	if !ok {
		return false
	}
	if t.Before(s.Open) || t.After(s.Close) || t.Sub(s.Open)%time.Minute != 0 {
		return false
	}
	rs, re := c.recess.Bounds(s)
	return t.Before(rs) || !t.Before(re)
}

// NextOpen returns the first session open at or after t.
func (c *Calendar) NextOpen(t time.Time) (time.Time, bool) {
	i := sort.Search(len(c.sessions), func(i int) bool { return !c.sessions[i].Open.Before(t) })
	if i == len(c.sessions) {
		return time.Time{}, false
	}
	return c.sessions[i].Open, true
}

// NextClose returns the first session close at or after t.
func (c *Calendar) NextClose(t time.Time) (time.Time, bool) {
	i := sort.Search(len(c.sessions), func(i int) bool { return !c.sessions[i].Close.Before(t) })
	if i == len(c.sessions) {
		return time.Time{}, false
	}
	return c.sessions[i].Close, true
}

func (c *Calendar) index(d time.Time) (int, bool) {
	i := sort.Search(len(c.sessions), func(i int) bool { return !c.sessions[i].Date.Before(d) })
	if i < len(c.sessions) && c.sessions[i].Date.Equal(d) {
		return i, true
	}
	return 0, false
}
