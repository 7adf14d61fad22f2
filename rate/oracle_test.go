package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// fakePriceSource is a scriptable price source for tests.
type fakePriceSource struct {
	prices    map[string]float64
	history   map[string][]shared.PricePoint
	err       error
	lookups   int
	histCalls int
}

func (f *fakePriceSource) Lookup(ctx context.Context, coinIDs []string) (map[string]float64, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}

	return f.prices, nil
}

func (f *fakePriceSource) History(ctx context.Context, coinID string, days string, interval string) ([]shared.PricePoint, error) {
	f.histCalls++
	if f.err != nil {
		return nil, f.err
	}

	return f.history[coinID], nil
}

func setupOracle(t *testing.T, source *fakePriceSource, now *time.Time) *Oracle {
	t.Helper()

	oracle, err := NewOracle(&OracleConfig{
		PriceSource: source,
		Now:         func() time.Time { return *now },
		Logger:      &log.Logger,
	})
	assert.NoError(t, err)

	return oracle
}

func TestOracleRate(t *testing.T) {
	source := &fakePriceSource{
		prices: map[string]float64{"usd-coin": 1.0, "euro-coin": 1.08},
	}
	now := time.Unix(1_700_000_000, 0)
	oracle := setupOracle(t, source, &now)

	ctx := context.Background()

	// Ensure the oracle derives the cross rate from both reference prices.
	rate, err := oracle.Rate(ctx, "USDC", "EURC")
	assert.NoError(t, err)
	assert.Equal(t, 1.0/1.08, rate)
	assert.Equal(t, 1, source.lookups)

	// Ensure a second read within the cache ttl does not refetch.
	now = now.Add(time.Second * 30)
	_, err = oracle.Rate(ctx, "USDC", "EURC")
	assert.NoError(t, err)
	assert.Equal(t, 1, source.lookups)

	// Ensure the rate is refetched once the cache ttl passes.
	now = now.Add(time.Second * 31)
	_, err = oracle.Rate(ctx, "USDC", "EURC")
	assert.NoError(t, err)
	assert.Equal(t, 2, source.lookups)

	// Ensure a fetch failure serves the stale cached rate.
	source.err = errors.New("upstream down")
	now = now.Add(time.Minute * 2)
	rate, err = oracle.Rate(ctx, "USDC", "EURC")
	assert.NoError(t, err)
	assert.Equal(t, 1.0/1.08, rate)

	// Ensure an uncached pair fails with the rate unavailable error
	// rather than a fabricated rate.
	_, err = oracle.Rate(ctx, "EURC", "USDC")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrRateUnavailable))

	// Ensure unsupported currencies are rejected.
	source.err = nil
	_, err = oracle.Rate(ctx, "GBPC", "USDC")
	assert.Error(t, err)
}

func TestOracleHistory(t *testing.T) {
	source := &fakePriceSource{
		history: map[string][]shared.PricePoint{
			"usd-coin": {
				{Time: 1_000_000, Price: 1.0},
				{Time: 2_000_000, Price: 1.0},
				{Time: 3_000_000, Price: 1.0},
			},
			"euro-coin": {
				{Time: 1_000_000, Price: 1.08},
				{Time: 3_000_000, Price: 1.10},
				{Time: 4_000_000, Price: 1.12},
			},
		},
	}
	now := time.Unix(1_700_000_000, 0)
	oracle := setupOracle(t, source, &now)

	ctx := context.Background()

	// Ensure the series divides pointwise on matching timestamps only,
	// converting source milliseconds to seconds.
	points := oracle.History(ctx, "USDC", "EURC", "1", "")
	wantPoints := []shared.RatePoint{
		{Time: 1000, Rate: 1.0 / 1.08},
		{Time: 3000, Rate: 1.0 / 1.10},
	}
	if !cmp.Equal(wantPoints, points) {
		t.Errorf("expected series %v, got %v", wantPoints, points)
	}

	// Ensure fetch failures yield an empty series rather than an error.
	source.err = errors.New("upstream down")
	points = oracle.History(ctx, "USDC", "EURC", "1", "")
	assert.Equal(t, 0, len(points))

	// Ensure unsupported currencies yield an empty series.
	source.err = nil
	points = oracle.History(ctx, "GBPC", "EURC", "1", "")
	assert.Equal(t, 0, len(points))
}
