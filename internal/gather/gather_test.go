package gather

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"tradecal/internal/calendar"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{Start: day(2024, 1, 2), End: day(2024, 1, 5)}
	if !r.Contains(day(2024, 1, 2)) || !r.Contains(day(2024, 1, 5)) {
		t.Error("bounds should be inclusive")
	}
	if r.Contains(day(2024, 1, 6)) || r.Contains(day(2024, 1, 1)) {
		t.Error("days outside the range reported as contained")
	}
	if !(DateRange{}).Contains(day(1990, 12, 19)) {
		t.Error("zero range should contain everything")
	}
}

func TestCSVTradingDays(t *testing.T) {
	path := writeFile(t, "days.csv", []byte("trade_date,exchange\n2024-01-05,SSE\n20240102,SSE\n2024-01-03,SSE\n2024-01-03,SSE\n\n"))

	src := &CSVTradingDays{Path: path}
	days, err := src.TradingDays(context.Background())
	if err != nil {
		t.Fatalf("TradingDays: %v", err)
	}
	want := []time.Time{day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 5)}
	if len(days) != len(want) {
		t.Fatalf("TradingDays = %v, want %v", days, want)
	}
	for i := range want {
		if !days[i].Equal(want[i]) {
			t.Errorf("day %d = %v, want %v", i, days[i], want[i])
		}
	}
}

func TestCSVTradingDaysEncodings(t *testing.T) {
	content := "交易日期,备注\n2024-01-02,元旦后\n2024-01-03,\n"

	gbk, err := simplifiedchinese.GBK.NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encoding GBK: %v", err)
	}
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encoding UTF-16: %v", err)
	}

	tests := []struct {
		encoding string
		data     string
	}{
		{"gbk", gbk},
		{"utf-16", utf16},
		{"utf-8", "\ufeff" + content},
	}
	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			src := &CSVTradingDays{Path: writeFile(t, "days.csv", []byte(tt.data)), Encoding: tt.encoding}
			days, err := src.TradingDays(context.Background())
			if err != nil {
				t.Fatalf("TradingDays: %v", err)
			}
			if len(days) != 2 || !days[1].Equal(day(2024, 1, 3)) {
				t.Errorf("TradingDays = %v", days)
			}
		})
	}
}

func TestCSVTradingDaysErrors(t *testing.T) {
	ctx := context.Background()

	src := &CSVTradingDays{Path: writeFile(t, "days.csv", []byte("2024-01-02\n2024-13-40\n"))}
	if _, err := src.TradingDays(ctx); err == nil {
		t.Error("bad date after the first row should fail")
	}

	src = &CSVTradingDays{Path: writeFile(t, "days.csv", []byte("2024-01-02\n")), Encoding: "ebcdic"}
	if _, err := src.TradingDays(ctx); !errors.Is(err, calendar.ErrConfiguration) {
		t.Errorf("unknown encoding error = %v, want ErrConfiguration", err)
	}

	src = &CSVTradingDays{Path: filepath.Join(t.TempDir(), "missing.csv")}
	if _, err := src.TradingDays(ctx); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}
}
