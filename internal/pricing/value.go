package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoPriceData marks a price query whose backward walk reached the start
// of the calendar, or of the asset's history, without finding a value.
var ErrNoPriceData = errors.New("no price data")

// NoPriceDataError carries the query that exhausted its walk. It matches
// ErrNoPriceData with errors.Is.
type NoPriceDataError struct {
	Asset string
	At    time.Time
}

func (e *NoPriceDataError) Error() string {
	return fmt.Sprintf("%s for %s at %s", ErrNoPriceData, e.Asset, e.At.Format(time.RFC3339))
}

func (e *NoPriceDataError) Is(target error) bool { return target == ErrNoPriceData }

// Kind tells which member of a Value is meaningful.
type Kind int

const (
	KindMissing Kind = iota
	KindNumber
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	}
	return "missing"
}

// Value is the answer to a price query: a number, an instant, or missing.
// A missing Value carries NaN in Number.
type Value struct {
	Kind   Kind
	Number float64
	Time   time.Time
}

// Missing returns the missing value.
func Missing() Value { return Value{Kind: KindMissing, Number: math.NaN()} }

// Number wraps a numeric result.
func Number(v float64) Value { return Value{Kind: KindNumber, Number: v} }

// Instant wraps a timestamp result.
func Instant(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// IsMissing reports whether the query found nothing.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindTime:
		return v.Time.Format("2006-01-02")
	}
	return "NaN"
}
