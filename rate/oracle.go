package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/rs/zerolog"
)

const (
	// cacheTTL is the duration for which a fetched spot rate is served
	// without refetching.
	cacheTTL = time.Second * 60
)

// coinIDs maps supported currency codes to their price source coin ids.
var coinIDs = map[string]string{
	"USDC": "usd-coin",
	"EURC": "euro-coin",
}

// cachedRate represents a cached spot rate sample.
type cachedRate struct {
	rate float64
	at   time.Time
}

// OracleConfig represents the rate oracle configuration.
type OracleConfig struct {
	// PriceSource fetches spot and historical prices.
	PriceSource shared.PriceSource
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *OracleConfig) Validate() error {
	var errs error

	if cfg.PriceSource == nil {
		errs = errors.Join(errs, fmt.Errorf("price source cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Oracle fetches and caches the spot exchange rate between two currencies.
type Oracle struct {
	cfg      *OracleConfig
	cache    map[string]cachedRate
	cacheMtx sync.RWMutex
}

// NewOracle initializes a new rate oracle.
func NewOracle(cfg *OracleConfig) (*Oracle, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating oracle config: %w", err)
	}

	return &Oracle{
		cfg:   cfg,
		cache: make(map[string]cachedRate),
	}, nil
}

// lookupCoinIDs resolves both currency codes to price source coin ids.
func lookupCoinIDs(from string, to string) (string, string, error) {
	fromID, ok := coinIDs[strings.ToUpper(from)]
	if !ok {
		return "", "", fmt.Errorf("no coin id mapping for currency %s", from)
	}

	toID, ok := coinIDs[strings.ToUpper(to)]
	if !ok {
		return "", "", fmt.Errorf("no coin id mapping for currency %s", to)
	}

	return fromID, toID, nil
}

// fetchRate fetches a fresh spot rate from the price source.
func (o *Oracle) fetchRate(ctx context.Context, from string, to string) (float64, error) {
	fromID, toID, err := lookupCoinIDs(from, to)
	if err != nil {
		return 0, err
	}

	prices, err := o.cfg.PriceSource.Lookup(ctx, []string{fromID, toID})
	if err != nil {
		return 0, err
	}

	if prices[toID] == 0 {
		return 0, fmt.Errorf("no reference price for currency %s", to)
	}

	return prices[fromID] / prices[toID], nil
}

// Rate returns the spot exchange rate from the source currency to the
// destination currency. Rates are cached for a minute; when a fresh fetch
// fails a stale cached value is served if one exists, otherwise the call
// fails with ErrRateUnavailable.
func (o *Oracle) Rate(ctx context.Context, from string, to string) (float64, error) {
	key := strings.ToUpper(from) + "_" + strings.ToUpper(to)
	now := o.cfg.Now()

	o.cacheMtx.RLock()
	cached, ok := o.cache[key]
	o.cacheMtx.RUnlock()

	if ok && now.Sub(cached.at) < cacheTTL {
		return cached.rate, nil
	}

	freshRate, err := o.fetchRate(ctx, from, to)
	if err != nil {
		if ok {
			o.cfg.Logger.Warn().Msgf("serving stale %s rate after fetch failure: %v", key, err)
			return cached.rate, nil
		}

		return 0, fmt.Errorf("%w for %s: %v", shared.ErrRateUnavailable, key, err)
	}

	o.cacheMtx.Lock()
	o.cache[key] = cachedRate{rate: freshRate, at: now}
	o.cacheMtx.Unlock()

	return freshRate, nil
}

// History returns a historical exchange rate series built by dividing both
// currencies' price series against the common reference unit pointwise.
// Timestamps present in only one series are discarded. The series only
// supports auxiliary chart rendering, so transient failures yield an empty
// series rather than an error.
func (o *Oracle) History(ctx context.Context, from string, to string, days string, interval string) []shared.RatePoint {
	fromID, toID, err := lookupCoinIDs(from, to)
	if err != nil {
		o.cfg.Logger.Warn().Msgf("skipping history fetch: %v", err)
		return []shared.RatePoint{}
	}

	fromSeries, err := o.cfg.PriceSource.History(ctx, fromID, days, interval)
	if err != nil {
		o.cfg.Logger.Warn().Msgf("fetching %s history: %v", fromID, err)
		return []shared.RatePoint{}
	}

	toSeries, err := o.cfg.PriceSource.History(ctx, toID, days, interval)
	if err != nil {
		o.cfg.Logger.Warn().Msgf("fetching %s history: %v", toID, err)
		return []shared.RatePoint{}
	}

	toPrices := make(map[int64]float64, len(toSeries))
	for idx := range toSeries {
		toPrices[toSeries[idx].Time] = toSeries[idx].Price
	}

	points := make([]shared.RatePoint, 0, len(fromSeries))
	for idx := range fromSeries {
		toPrice, ok := toPrices[fromSeries[idx].Time]
		if !ok || toPrice == 0 {
			continue
		}

		points = append(points, shared.RatePoint{
			// Source timestamps are in milliseconds.
			Time: fromSeries[idx].Time / 1000,
			Rate: fromSeries[idx].Price / toPrice,
		})
	}

	return points
}
