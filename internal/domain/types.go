// Package domain holds the value types shared across the calendar, pricing,
// storage and ingestion packages.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies the market a bar directory belongs to.
type Market string

const (
	MarketCN Market = "cn"
	MarketUS Market = "us"
)

// Bar is one daily OHLCV observation. Timestamp is the session date at
// midnight UTC.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Amount    float64 // traded value in the quote currency
}

// Traded reports whether the bar records any volume. Bars padded onto
// sessions without trading carry zero volume.
func (b Bar) Traded() bool { return b.Volume > 0 }

// Asset is the metadata written for every ingested symbol.
type Asset struct {
	SID           int64
	Symbol        string
	StartDate     time.Time
	EndDate       time.Time
	AutoCloseDate time.Time
	Exchange      string
}

// Split is a share split effective on EffectiveDate. Ratio is the multiplier
// applied to prices observed before the effective date, so a 2-for-1 split
// has Ratio 0.5.
type Split struct {
	Symbol        string
	EffectiveDate time.Time
	Ratio         float64
}

// Dividend is a cash distribution going ex on ExDate. Ratio is the price
// multiplier for observations before ExDate (1 - Amount/prior close).
type Dividend struct {
	Symbol       string
	ExDate       time.Time
	Amount       float64
	Ratio        float64
	RecordDate   time.Time
	DeclaredDate time.Time
	PayDate      time.Time
}

// AdjustmentAction tags rows of a corporate action feed.
type AdjustmentAction string

const (
	ActionSplit    AdjustmentAction = "SPLIT"
	ActionDividend AdjustmentAction = "DIVIDEND"
)

// Adjustment is one raw corporate action row as delivered by a data source,
// before it is split into Split and Dividend records.
type Adjustment struct {
	Symbol string
	Date   time.Time
	Action AdjustmentAction
	Value  float64
}

// Field names a quantity that can be asked of the price resolver.
type Field string

const (
	FieldOpen       Field = "open"
	FieldHigh       Field = "high"
	FieldLow        Field = "low"
	FieldClose      Field = "close"
	FieldVolume     Field = "volume"
	FieldPrice      Field = "price"
	FieldLastTraded Field = "last_traded"
)

// OHLCVFields are the raw bar columns.
var OHLCVFields = []Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

// IsOHLCV reports whether f is one of the raw bar columns.
func (f Field) IsOHLCV() bool {
	switch f {
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		return true
	}
	return false
}

// ParseField parses a field name, case-insensitively.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if f.IsOHLCV() || f == FieldPrice || f == FieldLastTraded {
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// BarField returns the value of a raw column of b.
func BarField(b Bar, f Field) (float64, bool) {
	switch f {
	case FieldOpen:
		return b.Open, true
	case FieldHigh:
		return b.High, true
	case FieldLow:
		return b.Low, true
	case FieldClose:
		return b.Close, true
	case FieldVolume:
		return float64(b.Volume), true
	}
	return 0, false
}
