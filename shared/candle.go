package shared

// Candle represents an OHLC summary of sampled rates over a fixed time bucket.
type Candle struct {
	// Time is the bucket start time as a unix timestamp.
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// RatePoint represents a single point of an exchange rate time series.
type RatePoint struct {
	// Time is a unix timestamp in seconds.
	Time int64   `json:"time"`
	Rate float64 `json:"rate"`
}

// PricePoint represents a single point of a price series from the price
// source, timestamped in milliseconds as reported upstream.
type PricePoint struct {
	Time  int64
	Price float64
}
