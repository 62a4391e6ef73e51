package calendar

import (
	"errors"
	"testing"
	"time"
)

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("loading Asia/Shanghai: %v", err)
	}
	return loc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func shOptions(t *testing.T, start, end time.Time, holidays ...time.Time) Options {
	return Options{
		Name:     "SH",
		Start:    start,
		End:      end,
		Holidays: holidays,
		Open:     TimeOfDay{Hour: 9, Minute: 31},
		Close:    TimeOfDay{Hour: 15, Minute: 0},
		Location: shanghai(t),
		Recess:   RecessWindow{Start: 120, End: 210},
	}
}

func TestBuildSessions(t *testing.T) {
	opts := shOptions(t, day(2024, 1, 1), day(2024, 1, 14), day(2024, 1, 1), day(2024, 1, 10))
	cal, err := Build(opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 10 business days in range, two of them holidays.
	if cal.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", cal.Len())
	}

	sessions := cal.Sessions()
	for i := 1; i < len(sessions); i++ {
		if !sessions[i-1].Date.Before(sessions[i].Date) {
			t.Errorf("sessions not strictly increasing at %d: %s >= %s", i,
				sessions[i-1].Date.Format(DateLayout), sessions[i].Date.Format(DateLayout))
		}
	}
	for _, s := range sessions {
		if !s.Open.Before(s.Close) {
			t.Errorf("session %s: open %v not before close %v", s.Date.Format(DateLayout), s.Open, s.Close)
		}
	}

	first := sessions[0]
	wantOpen := time.Date(2024, 1, 2, 9, 31, 0, 0, opts.Location)
	if !first.Open.Equal(wantOpen) {
		t.Errorf("first open = %v, want %v", first.Open, wantOpen)
	}
	if got := first.Open.UTC(); got.Hour() != 1 || got.Minute() != 31 {
		t.Errorf("first open in UTC = %v, want 01:31", got)
	}

	holidays := cal.Holidays()
	if len(holidays) != 2 || !holidays[0].Equal(day(2024, 1, 1)) || !holidays[1].Equal(day(2024, 1, 10)) {
		t.Errorf("Holidays() = %v, want [2024-01-01 2024-01-10]", holidays)
	}
}

func TestIsSessionMatchesBusinessDaysMinusHolidays(t *testing.T) {
	start, end := day(2023, 12, 1), day(2024, 2, 29)
	holidays := []time.Time{day(2024, 1, 1), day(2024, 2, 9), day(2024, 2, 12), day(2024, 2, 13)}
	cal, err := Build(shOptions(t, start, end, holidays...))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	isHoliday := make(map[time.Time]bool)
	for _, h := range holidays {
		isHoliday[h] = true
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		want := IsBusinessDay(d) && !isHoliday[d]
		if got := cal.IsSession(d); got != want {
			t.Errorf("IsSession(%s) = %v, want %v", d.Format(DateLayout), got, want)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"start after end", func(o *Options) { o.Start, o.End = o.End, o.Start }, ErrConstruction},
		{"open equals close", func(o *Options) { o.Close = o.Open }, ErrConstruction},
		{"open after close", func(o *Options) { o.Open = TimeOfDay{Hour: 16} }, ErrConstruction},
		{"no location", func(o *Options) { o.Location = nil }, ErrConstruction},
		{"recess longer than session", func(o *Options) { o.Close = TimeOfDay{Hour: 12} }, ErrConstruction},
		{"zero recess start", func(o *Options) { o.Recess = RecessWindow{Start: 0, End: 90} }, ErrConfiguration},
		{"inverted recess", func(o *Options) { o.Recess = RecessWindow{Start: 200, End: 100} }, ErrConfiguration},
		{"missing end", func(o *Options) { o.End = time.Time{} }, ErrConfiguration},
		{"early close before open", func(o *Options) {
			o.EarlyCloses = map[time.Time]TimeOfDay{day(2024, 1, 3): {Hour: 9}}
		}, ErrConstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := shOptions(t, day(2024, 1, 2), day(2024, 1, 5))
			tt.mutate(&opts)
			_, err := Build(opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Build error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSpecialOpensAndEarlyCloses(t *testing.T) {
	opts := shOptions(t, day(2024, 1, 2), day(2024, 1, 5))
	opts.SpecialOpens = map[time.Time]TimeOfDay{
		time.Date(2024, 1, 3, 0, 0, 0, 0, opts.Location): {Hour: 10, Minute: 0},
	}
	opts.EarlyCloses = map[time.Time]TimeOfDay{day(2024, 1, 4): {Hour: 14, Minute: 0}}

	cal, err := Build(opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	s, ok := cal.Session(day(2024, 1, 3))
	if !ok {
		t.Fatal("2024-01-03 should be a session")
	}
	if s.Open.Hour() != 10 || s.Open.Minute() != 0 {
		t.Errorf("special open = %v, want 10:00", s.Open)
	}

	s, _ = cal.Session(day(2024, 1, 4))
	if s.Close.Hour() != 14 {
		t.Errorf("early close = %v, want 14:00", s.Close)
	}

	s, _ = cal.Session(day(2024, 1, 5))
	if s.Open.Hour() != 9 || s.Open.Minute() != 31 || s.Close.Hour() != 15 {
		t.Errorf("override leaked into 2024-01-05: %v - %v", s.Open, s.Close)
	}
}

func TestSessionLookups(t *testing.T) {
	// 2024-01-05 (Fri) is a holiday; 6 and 7 are the weekend.
	cal, err := Build(shOptions(t, day(2024, 1, 2), day(2024, 1, 12), day(2024, 1, 5)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	loc := cal.Location()

	tests := []struct {
		name string
		at   time.Time
		want time.Time
		ok   bool
	}{
		{"session date", day(2024, 1, 4), day(2024, 1, 4), true},
		{"intraday instant", time.Date(2024, 1, 8, 10, 15, 0, 0, loc), day(2024, 1, 8), true},
		{"before open same day", time.Date(2024, 1, 8, 8, 0, 0, 0, loc), day(2024, 1, 8), true},
		{"holiday", day(2024, 1, 5), day(2024, 1, 4), true},
		{"weekend", time.Date(2024, 1, 7, 12, 0, 0, 0, loc), day(2024, 1, 4), true},
		// 2024-01-08 00:30 in Shanghai is still 2024-01-07 in UTC.
		{"local date wins", time.Date(2024, 1, 7, 16, 30, 0, 0, time.UTC), day(2024, 1, 8), true},
		{"before first session", day(2024, 1, 1), time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := cal.SessionContainingOrBefore(tt.at)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !s.Date.Equal(tt.want) {
				t.Errorf("session = %s, want %s", s.Date.Format(DateLayout), tt.want.Format(DateLayout))
			}
		})
	}

	prev, ok := cal.PreviousSession(day(2024, 1, 8))
	if !ok || !prev.Date.Equal(day(2024, 1, 4)) {
		t.Errorf("PreviousSession(2024-01-08) = %v, %v; want 2024-01-04", prev.Date, ok)
	}
	if _, ok := cal.PreviousSession(day(2024, 1, 2)); ok {
		t.Error("PreviousSession of the first session should not exist")
	}
	next, ok := cal.NextSession(day(2024, 1, 4))
	if !ok || !next.Date.Equal(day(2024, 1, 8)) {
		t.Errorf("NextSession(2024-01-04) = %v, %v; want 2024-01-08", next.Date, ok)
	}
	if _, ok := cal.NextSession(day(2024, 1, 12)); ok {
		t.Error("NextSession of the last session should not exist")
	}

	first, _ := cal.First()
	last, _ := cal.Last()
	if !first.Date.Equal(day(2024, 1, 2)) || !last.Date.Equal(day(2024, 1, 12)) {
		t.Errorf("First/Last = %s/%s", first.Date.Format(DateLayout), last.Date.Format(DateLayout))
	}
}

func TestIsOpenAtAndNextOpenClose(t *testing.T) {
	cal, err := Build(shOptions(t, day(2024, 1, 2), day(2024, 1, 5)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	loc := cal.Location()
	at := func(d, h, m int) time.Time { return time.Date(2024, 1, d, h, m, 0, 0, loc) }

	tests := []struct {
		t    time.Time
		want bool
	}{
		{at(2, 9, 30), false},
		{at(2, 9, 31), true},
		{at(2, 11, 30), true},
		{at(2, 11, 31), false},
		{at(2, 12, 0), false},
		{at(2, 13, 0), false},
		{at(2, 13, 1), true},
		{at(2, 15, 0), true},
		{at(2, 15, 1), false},
		{at(6, 10, 0), false},
		{at(2, 10, 0).Add(30 * time.Second), false},
		{at(2, 14, 59).Add(time.Nanosecond), false},
	}
	for _, tt := range tests {
		if got := cal.IsOpenAt(tt.t); got != tt.want {
			t.Errorf("IsOpenAt(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
	for _, m := range cal.AllMinutes() {
		if !cal.IsOpenAt(m) {
			t.Fatalf("grid minute %v is not open", m)
		}
	}

	open, ok := cal.NextOpen(at(2, 10, 0))
	if !ok || !open.Equal(at(3, 9, 31)) {
		t.Errorf("NextOpen = %v, %v; want 2024-01-03 09:31", open, ok)
	}
	closeAt, ok := cal.NextClose(at(2, 10, 0))
	if !ok || !closeAt.Equal(at(2, 15, 0)) {
		t.Errorf("NextClose = %v, %v; want 2024-01-02 15:00", closeAt, ok)
	}
	if _, ok := cal.NextOpen(at(5, 10, 0)); ok {
		t.Error("NextOpen past the last session should not exist")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:31")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}
	if tod.Hour != 9 || tod.Minute != 31 || tod.Minutes() != 571 || tod.String() != "09:31" {
		t.Errorf("ParseTimeOfDay(09:31) = %+v", tod)
	}
	if _, err := ParseTimeOfDay("9h31"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ParseTimeOfDay(9h31) error = %v, want ErrConfiguration", err)
	}
	if _, err := ParseDay("2024/01/02"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ParseDay error = %v, want ErrConfiguration", err)
	}
}
