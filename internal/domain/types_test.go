package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Traded() {
		t.Error("zero-value Bar should not count as traded")
	}

	if MarketUS != "us" || MarketCN != "cn" {
		t.Error("Market constants have unexpected values")
	}
	if ActionSplit != "SPLIT" || ActionDividend != "DIVIDEND" {
		t.Error("AdjustmentAction constants have unexpected values")
	}

	split := Split{
		Symbol:        "600000.SH",
		EffectiveDate: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
		Ratio:         0.5,
	}
	if split.Ratio != 0.5 {
		t.Errorf("split.Ratio = %v, want 0.5", split.Ratio)
	}
}

func TestParseField(t *testing.T) {
	tests := []struct {
		in      string
		want    Field
		wantErr bool
	}{
		{"open", FieldOpen, false},
		{"CLOSE", FieldClose, false},
		{" volume ", FieldVolume, false},
		{"price", FieldPrice, false},
		{"last_traded", FieldLastTraded, false},
		{"vwap", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseField(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseField(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBarField(t *testing.T) {
	b := Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}

	for f, want := range map[Field]float64{
		FieldOpen: 1, FieldHigh: 2, FieldLow: 0.5, FieldClose: 1.5, FieldVolume: 100,
	} {
		got, ok := BarField(b, f)
		if !ok || got != want {
			t.Errorf("BarField(%s) = %v, %v; want %v, true", f, got, ok, want)
		}
	}
	if _, ok := BarField(b, FieldPrice); ok {
		t.Error("BarField(price) should not be a raw column")
	}
	if FieldPrice.IsOHLCV() || FieldLastTraded.IsOHLCV() {
		t.Error("price and last_traded are not OHLCV fields")
	}
}
