package gather

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"tradecal/internal/calendar"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the gathering. It returns early when ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls in [Start, End]. A zero bound is open.
func (r DateRange) Contains(d time.Time) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}

// TradingDaySource supplies the reference trading days a calendar's holidays
// are derived from.
type TradingDaySource interface {
	TradingDays(ctx context.Context) ([]time.Time, error)
}

// ---------------------------------------------------------------------------
// CSV trading days
// ---------------------------------------------------------------------------

var _ TradingDaySource = (*CSVTradingDays)(nil)

// CSVTradingDays reads one trading day per row from the first column of a
// CSV file. Dates may be YYYY-MM-DD or YYYYMMDD. A first row that is not a
// date is treated as a header.
type CSVTradingDays struct {
	Path string
	// Encoding is "", "utf-8", "gbk" or "utf-16". UTF-16 without a BOM is
	// read as little endian.
	Encoding string
}

// TradingDays reads the file, ascending and deduplicated.
func (s *CSVTradingDays) TradingDays(ctx context.Context) ([]time.Time, error) {
	dec, err := decoderFor(s.Encoding)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening trading days: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(transform.NewReader(f, dec.NewDecoder())))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	seen := make(map[time.Time]struct{})
	var days []time.Time
	for row := 0; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Path, err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		d, err := parseDate(rec[0])
		if err != nil {
			if row == 0 {
				continue
			}
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%s line %d: %w", s.Path, line, err)
		}
		if _, dup := seen[d]; !dup {
			seen[d] = struct{}{}
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "gbk", "gb18030":
		return simplifiedchinese.GB18030, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding %q", calendar.ErrConfiguration, name)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == 8 {
		if t, err := time.Parse("20060102", s); err == nil {
			return t, nil
		}
	}
	return calendar.ParseDay(s)
}
