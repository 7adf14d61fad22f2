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

func setupBook(t *testing.T, now *time.Time, rejectDuplicates bool) *Book {
	t.Helper()

	book, err := NewBook(&BookConfig{
		RejectDuplicateMakers: rejectDuplicates,
		Now:                   func() time.Time { return *now },
		Logger:                &log.Logger,
	})
	assert.NoError(t, err)

	return book
}

func newQuoteReq(maker string, toAmount string, expiry int64) *NewQuote {
	return &NewQuote{
		MakerAddress: maker,
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		ToAmount:     decimal.RequireFromString(toAmount),
		Rate:         0.92,
		Expiry:       expiry,
	}
}

func TestBookAdd(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := setupBook(t, &now, false)
	book.Init("rfq-1")

	// Ensure malformed quotes are rejected.
	var validationErr *shared.ValidationError
	_, err := book.Add("rfq-1", newQuoteReq("", "4.6", now.Unix()+300))
	assert.True(t, errors.As(err, &validationErr))

	_, err = book.Add("rfq-1", newQuoteReq("0xmaker", "0", now.Unix()+300))
	assert.True(t, errors.As(err, &validationErr))

	// Ensure well formed quotes are recorded in insertion order.
	first, err := book.Add("rfq-1", newQuoteReq("0xmakera", "4.60", now.Unix()+300))
	assert.NoError(t, err)
	second, err := book.Add("rfq-1", newQuoteReq("0xmakerb", "4.55", now.Unix()+300))
	assert.NoError(t, err)

	quotes := book.Quotes("rfq-1")
	assert.Equal(t, 2, len(quotes))
	assert.Equal(t, first.ID, quotes[0].ID)
	assert.Equal(t, second.ID, quotes[1].ID)
	assert.Equal(t, 2, book.Count("rfq-1"))

	// Ensure maker presence checks ignore address casing.
	assert.True(t, book.HasMakerQuote("rfq-1", "0xMAKERA"))
	assert.False(t, book.HasMakerQuote("rfq-1", "0xmakerc"))

	// Ensure quote lookup by id works and unknown ids are not found.
	fetched, err := book.Quote("rfq-1", first.ID)
	assert.NoError(t, err)
	assert.Equal(t, first.MakerAddress, fetched.MakerAddress)

	var notFoundErr *shared.NotFoundError
	_, err = book.Quote("rfq-1", "missing")
	assert.True(t, errors.As(err, &notFoundErr))
}

func TestBookRejectDuplicateMakers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := setupBook(t, &now, true)
	book.Init("rfq-1")

	_, err := book.Add("rfq-1", newQuoteReq("0xmaker", "4.60", now.Unix()+300))
	assert.NoError(t, err)

	// Ensure a second quote from the same maker is rejected when
	// configured to.
	var validationErr *shared.ValidationError
	_, err = book.Add("rfq-1", newQuoteReq("0xMAKER", "4.65", now.Unix()+300))
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, 1, book.Count("rfq-1"))
}

func TestBookBest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := setupBook(t, &now, false)
	book.Init("rfq-1")

	// Ensure an empty collection has no best quote.
	var notFoundErr *shared.NotFoundError
	_, err := book.Best("rfq-1")
	assert.True(t, errors.As(err, &notFoundErr))

	first, err := book.Add("rfq-1", newQuoteReq("0xmakera", "4.60", now.Unix()+300))
	assert.NoError(t, err)
	_, err = book.Add("rfq-1", newQuoteReq("0xmakerb", "4.55", now.Unix()+300))
	assert.NoError(t, err)

	// Ensure the best quote maximizes the destination amount.
	best, err := book.Best("rfq-1")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, best.ID)

	// Ensure ties keep the first inserted quote, so repeated reads
	// produce a stable result.
	_, err = book.Add("rfq-1", newQuoteReq("0xmakerc", "4.60", now.Unix()+300))
	assert.NoError(t, err)

	best, err = book.Best("rfq-1")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, best.ID)

	// Ensure a strictly better quote displaces the incumbent.
	better, err := book.Add("rfq-1", newQuoteReq("0xmakerd", "4.61", now.Unix()+300))
	assert.NoError(t, err)

	best, err = book.Best("rfq-1")
	assert.NoError(t, err)
	assert.Equal(t, better.ID, best.ID)
}

func TestBookValidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := setupBook(t, &now, false)

	req := &shared.RFQ{
		ID:           "rfq-1",
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		CreatedAt:    now,
	}
	quote := &shared.Quote{
		ID:           "quote-1",
		RFQID:        "rfq-1",
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		ToAmount:     decimal.RequireFromString("4.6"),
		Expiry:       now.Unix() + 300,
	}

	// Ensure a matching, unexpired quote validates.
	assert.NoError(t, book.Validate(quote, req))

	// Ensure an expired quote is rejected.
	var validationErr *shared.ValidationError
	now = now.Add(time.Second * 301)
	assert.True(t, errors.As(book.Validate(quote, req), &validationErr))
	now = now.Add(-time.Second * 301)

	// Ensure a currency pair mismatch is rejected.
	mismatched := *quote
	mismatched.ToCurrency = "USDC"
	assert.True(t, errors.As(book.Validate(&mismatched, req), &validationErr))

	// Ensure a source amount mismatch is rejected.
	mismatched = *quote
	mismatched.FromAmount = decimal.RequireFromString("6")
	assert.True(t, errors.As(book.Validate(&mismatched, req), &validationErr))
}

func TestBookSelect(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := setupBook(t, &now, false)
	book.Init("rfq-1")

	first, err := book.Add("rfq-1", newQuoteReq("0xmakera", "4.60", now.Unix()+300))
	assert.NoError(t, err)
	second, err := book.Add("rfq-1", newQuoteReq("0xmakerb", "4.55", now.Unix()+300))
	assert.NoError(t, err)

	// Ensure selection marks exactly one quote.
	assert.NoError(t, book.Select("rfq-1", second.ID))

	quotes := book.Quotes("rfq-1")
	assert.False(t, quotes[0].Selected)
	assert.True(t, quotes[1].Selected)

	// Ensure reselection moves the flag.
	assert.NoError(t, book.Select("rfq-1", first.ID))

	quotes = book.Quotes("rfq-1")
	assert.True(t, quotes[0].Selected)
	assert.False(t, quotes[1].Selected)

	// Ensure selecting an unknown quote fails.
	var notFoundErr *shared.NotFoundError
	assert.True(t, errors.As(book.Select("rfq-1", "missing"), &notFoundErr))
}
