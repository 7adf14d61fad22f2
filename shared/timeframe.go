package shared

import (
	"fmt"
)

// Timeframe represents the width of a candle time bucket.
type Timeframe int

const (
	FiveMinute Timeframe = iota
	FifteenMinute
	ThirtyMinute
	OneHour
	FourHour
	OneDay
)

// Timeframes is the collection of supported candle timeframes.
var Timeframes = []Timeframe{FiveMinute, FifteenMinute, ThirtyMinute, OneHour, FourHour, OneDay}

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case FiveMinute:
		return "5m"
	case FifteenMinute:
		return "15m"
	case ThirtyMinute:
		return "30m"
	case OneHour:
		return "1h"
	case FourHour:
		return "4h"
	case OneDay:
		return "1d"
	default:
		return "unknown"
	}
}

// ParseTimeframe parses a timeframe from the provided string.
func ParseTimeframe(timeframe string) (Timeframe, error) {
	switch timeframe {
	case "5m":
		return FiveMinute, nil
	case "15m":
		return FifteenMinute, nil
	case "30m":
		return ThirtyMinute, nil
	case "1h":
		return OneHour, nil
	case "4h":
		return FourHour, nil
	case "1d":
		return OneDay, nil
	default:
		return 0, fmt.Errorf("unknown timeframe provided: %s", timeframe)
	}
}

// Seconds returns the width of the timeframe bucket in seconds.
func (t Timeframe) Seconds() int64 {
	switch t {
	case FiveMinute:
		return 5 * 60
	case FifteenMinute:
		return 15 * 60
	case ThirtyMinute:
		return 30 * 60
	case OneHour:
		return 60 * 60
	case FourHour:
		return 4 * 60 * 60
	case OneDay:
		return 24 * 60 * 60
	default:
		return 0
	}
}

// BucketStart rounds the provided unix timestamp down to the start of its
// bucket for the timeframe.
func (t Timeframe) BucketStart(unix int64) int64 {
	width := t.Seconds()
	if width == 0 {
		return unix
	}

	return (unix / width) * width
}
