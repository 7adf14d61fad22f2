package rfq

import (
	"errors"
	"testing"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func setupRegistry(t *testing.T, now *time.Time, quoteCount func(rfqID string) int) *Registry {
	t.Helper()

	if quoteCount == nil {
		quoteCount = func(rfqID string) int { return 0 }
	}

	registry, err := NewRegistry(&RegistryConfig{
		QuoteCount: quoteCount,
		InitQuotes: func(rfqID string) {},
		Now:        func() time.Time { return *now },
		Logger:     &log.Logger,
	})
	assert.NoError(t, err)

	return registry
}

func TestRegistryCreate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	registry := setupRegistry(t, &now, nil)

	// Ensure malformed requests are rejected before any side effect.
	var validationErr *shared.ValidationError
	_, err := registry.Create(&NewRFQ{
		FromAmount:   decimal.RequireFromString("5"),
		TakerAddress: "0xtaker",
	})
	assert.True(t, errors.As(err, &validationErr))

	_, err = registry.Create(&NewRFQ{
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("-5"),
		TakerAddress: "0xtaker",
	})
	assert.True(t, errors.As(err, &validationErr))

	_, err = registry.Create(&NewRFQ{
		FromCurrency: "GBPC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		TakerAddress: "0xtaker",
	})
	assert.True(t, errors.As(err, &validationErr))

	_, err = registry.Create(&NewRFQ{
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
	})
	assert.True(t, errors.As(err, &validationErr))

	// Ensure a well formed request creates a readable RFQ.
	created, err := registry.Create(&NewRFQ{
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		Tenor:        shared.Instant,
		TakerAddress: "0xtaker",
	})
	assert.NoError(t, err)
	assert.NotEqual(t, "", created.ID)
	assert.Equal(t, now, created.CreatedAt)

	fetched, err := registry.RFQ(created.ID)
	assert.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	// Ensure unknown ids are reported as not found.
	var notFoundErr *shared.NotFoundError
	_, err = registry.RFQ("missing")
	assert.True(t, errors.As(err, &notFoundErr))
}

func TestRegistryPending(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	counts := make(map[string]int)
	registry := setupRegistry(t, &now, func(rfqID string) int { return counts[rfqID] })

	req := &NewRFQ{
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		TakerAddress: "0xtaker",
	}

	first, err := registry.Create(req)
	assert.NoError(t, err)

	now = now.Add(time.Minute)
	second, err := registry.Create(req)
	assert.NoError(t, err)

	// Ensure pending lists open RFQs newest first.
	pending := registry.Pending()
	assert.Equal(t, 2, len(pending))
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, first.ID, pending[1].ID)

	// Ensure a saturated RFQ drops out of the pending feed.
	counts[second.ID] = shared.MaxQuotesPerRFQ
	pending = registry.Pending()
	assert.Equal(t, 1, len(pending))
	assert.Equal(t, first.ID, pending[0].ID)

	// Ensure RFQs past the negotiation window drop out of the pending
	// feed but remain readable.
	now = now.Add(shared.NegotiationWindow + time.Second)
	pending = registry.Pending()
	assert.Equal(t, 0, len(pending))

	_, err = registry.RFQ(first.ID)
	assert.NoError(t, err)

	// Ensure the full listing keeps expired and saturated RFQs, newest
	// first.
	all := registry.All()
	assert.Equal(t, 2, len(all))
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
}
