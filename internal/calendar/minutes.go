package calendar

import (
	"fmt"
	"time"
)

// RecessWindow is the midday halt, as minute offsets from session open.
// Minutes in [Start, End) are not traded.
type RecessWindow struct {
	Start int
	End   int
}

// Validate checks 0 < Start < End.
func (r RecessWindow) Validate() error {
	if r.Start <= 0 || r.End <= r.Start {
		return fmt.Errorf("%w: recess offsets (%d, %d) must satisfy 0 < start < end",
			ErrConfiguration, r.Start, r.End)
	}
	return nil
}

// Length returns the number of minutes removed from every session.
func (r RecessWindow) Length() int { return r.End - r.Start }

// Bounds returns the first halted instant and the first instant trading
// resumes for session s.
func (r RecessWindow) Bounds(s Session) (time.Time, time.Time) {
	return s.Open.Add(time.Duration(r.Start) * time.Minute), s.Open.Add(time.Duration(r.End) * time.Minute)
}

// GridSize returns the number of tradable minutes of s: the session length
// plus one for the inclusive close, minus the recess.
func GridSize(s Session, r RecessWindow) (int, error) {
	n := s.Minutes()
	if n <= r.End {
		return 0, fmt.Errorf("%w: session %s lasts %d minutes but the recess ends at offset %d",
			ErrConstruction, s.Date.Format(DateLayout), n, r.End)
	}
	return n + 1 - r.Length(), nil
}

// MinutesFor returns the tradable minutes of s under r: the morning
// [Open, Open+Start) followed by the afternoon [Open+End, Close].
func MinutesFor(s Session, r RecessWindow) ([]time.Time, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n, err := GridSize(s, r)
	if err != nil {
		return nil, err
	}
	return appendMinutes(make([]time.Time, 0, n), s, r), nil
}

func appendMinutes(dst []time.Time, s Session, r RecessWindow) []time.Time {
	for i := 0; i < r.Start; i++ {
		dst = append(dst, s.Open.Add(time.Duration(i)*time.Minute))
	}
	last := s.Minutes()
	for i := r.End; i <= last; i++ {
		dst = append(dst, s.Open.Add(time.Duration(i)*time.Minute))
	}
	return dst
}

// buildMinutes sizes every session first so the whole grid is one
// allocation, then fills it session by session.
func (c *Calendar) buildMinutes() error {
	c.offsets = make([]int, len(c.sessions)+1)
	total := 0
	for i, s := range c.sessions {
		n, err := GridSize(s, c.recess)
		if err != nil {
			return err
		}
		c.offsets[i] = total
		total += n
	}
	c.offsets[len(c.sessions)] = total

	c.minutes = make([]time.Time, 0, total)
	for _, s := range c.sessions {
		c.minutes = appendMinutes(c.minutes, s, c.recess)
	}
	return nil
}

// MinuteCount returns the number of minutes across all sessions.
func (c *Calendar) MinuteCount() int { return len(c.minutes) }

// AllMinutes returns a copy of the full minute grid, ascending.
func (c *Calendar) AllMinutes() []time.Time {
	out := make([]time.Time, len(c.minutes))
	copy(out, c.minutes)
	return out
}

// Minutes returns a copy of the minute grid of the session labelled date.
func (c *Calendar) Minutes(date time.Time) ([]time.Time, bool) {
	i, ok := c.index(Day(date))
	if !ok {
		return nil, false
	}
	grid := c.minutes[c.offsets[i]:c.offsets[i+1]]
	out := make([]time.Time, len(grid))
	copy(out, grid)
	return out, true
}
