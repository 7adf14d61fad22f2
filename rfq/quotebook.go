package rfq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NewQuote represents the maker-supplied fields of a new quote.
type NewQuote struct {
	MakerAddress string
	FromCurrency string
	ToCurrency   string
	FromAmount   decimal.Decimal
	ToAmount     decimal.Decimal
	Rate         float64
	Expiry       int64
}

// BookConfig represents the quote book configuration.
type BookConfig struct {
	// RejectDuplicateMakers enforces at most one quote per (rfq, maker)
	// pair at the book boundary. Off by default: the reference behavior
	// leaves deduplication to the quoting agents.
	RejectDuplicateMakers bool
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *BookConfig) Validate() error {
	var errs error

	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Book stores quotes per RFQ in insertion order. Quotes are never deleted,
// they are retained for audit even after the RFQ's negotiation window
// closes.
type Book struct {
	cfg       *BookConfig
	quotes    map[string][]*shared.Quote
	quotesMtx sync.RWMutex
}

// NewBook initializes a new quote book.
func NewBook(cfg *BookConfig) (*Book, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating quote book config: %w", err)
	}

	return &Book{
		cfg:    cfg,
		quotes: make(map[string][]*shared.Quote),
	}, nil
}

// Init initializes an empty quote collection for the provided RFQ.
func (b *Book) Init(rfqID string) {
	b.quotesMtx.Lock()
	if _, ok := b.quotes[rfqID]; !ok {
		b.quotes[rfqID] = make([]*shared.Quote, 0, shared.MaxQuotesPerRFQ)
	}
	b.quotesMtx.Unlock()
}

// Add appends a new quote to the RFQ's collection.
func (b *Book) Add(rfqID string, req *NewQuote) (*shared.Quote, error) {
	if req.MakerAddress == "" {
		return nil, shared.NewValidationError("maker address is required")
	}
	if !req.ToAmount.IsPositive() {
		return nil, shared.NewValidationError("destination amount must be greater than zero, got %s", req.ToAmount)
	}

	quote := &shared.Quote{
		ID:           uuid.New().String(),
		RFQID:        rfqID,
		MakerAddress: req.MakerAddress,
		FromCurrency: req.FromCurrency,
		ToCurrency:   req.ToCurrency,
		FromAmount:   req.FromAmount,
		ToAmount:     req.ToAmount,
		Rate:         req.Rate,
		Expiry:       req.Expiry,
	}

	b.quotesMtx.Lock()
	defer b.quotesMtx.Unlock()

	if b.cfg.RejectDuplicateMakers {
		for _, existing := range b.quotes[rfqID] {
			if shared.SameAddress(existing.MakerAddress, req.MakerAddress) {
				return nil, shared.NewValidationError("maker %s already quoted rfq %s",
					req.MakerAddress, rfqID)
			}
		}
	}

	b.quotes[rfqID] = append(b.quotes[rfqID], quote)

	return quote, nil
}

// Quotes returns the quotes held for the provided RFQ in insertion order.
func (b *Book) Quotes(rfqID string) []shared.Quote {
	b.quotesMtx.RLock()
	defer b.quotesMtx.RUnlock()

	quotes := make([]shared.Quote, 0, len(b.quotes[rfqID]))
	for _, quote := range b.quotes[rfqID] {
		quotes = append(quotes, *quote)
	}

	return quotes
}

// Quote fetches a quote by id from the provided RFQ's collection.
func (b *Book) Quote(rfqID string, quoteID string) (*shared.Quote, error) {
	b.quotesMtx.RLock()
	defer b.quotesMtx.RUnlock()

	for _, quote := range b.quotes[rfqID] {
		if quote.ID == quoteID {
			snapshot := *quote
			return &snapshot, nil
		}
	}

	return nil, &shared.NotFoundError{Kind: "quote", ID: quoteID}
}

// Count returns the number of quotes held for the provided RFQ.
func (b *Book) Count(rfqID string) int {
	b.quotesMtx.RLock()
	defer b.quotesMtx.RUnlock()

	return len(b.quotes[rfqID])
}

// HasMakerQuote reports whether the provided maker already has a quote
// recorded for the RFQ.
func (b *Book) HasMakerQuote(rfqID string, makerAddress string) bool {
	b.quotesMtx.RLock()
	defer b.quotesMtx.RUnlock()

	for _, quote := range b.quotes[rfqID] {
		if shared.SameAddress(quote.MakerAddress, makerAddress) {
			return true
		}
	}

	return false
}

// Best returns the quote maximizing the destination amount, with ties
// broken by insertion order. Expiry is not checked here, acceptance
// validation enforces it.
func (b *Book) Best(rfqID string) (*shared.Quote, error) {
	b.quotesMtx.RLock()
	defer b.quotesMtx.RUnlock()

	quotes := b.quotes[rfqID]
	if len(quotes) == 0 {
		return nil, &shared.NotFoundError{Kind: "best quote for rfq", ID: rfqID}
	}

	best := quotes[0]
	for _, quote := range quotes[1:] {
		if quote.ToAmount.GreaterThan(best.ToAmount) {
			best = quote
		}
	}

	snapshot := *best
	return &snapshot, nil
}

// Validate asserts the provided quote is acceptable against its RFQ: it
// must not be expired and its currency pair and source amount must exactly
// match the RFQ's.
func (b *Book) Validate(quote *shared.Quote, rfq *shared.RFQ) error {
	if b.cfg.Now().Unix() > quote.Expiry {
		return shared.NewValidationError("quote %s expired", quote.ID)
	}
	if quote.FromCurrency != rfq.FromCurrency || quote.ToCurrency != rfq.ToCurrency {
		return shared.NewValidationError("quote %s currency pair %s/%s does not match rfq pair %s/%s",
			quote.ID, quote.FromCurrency, quote.ToCurrency, rfq.FromCurrency, rfq.ToCurrency)
	}
	if !quote.FromAmount.Equal(rfq.FromAmount) {
		return shared.NewValidationError("quote %s source amount %s does not match rfq amount %s",
			quote.ID, quote.FromAmount, rfq.FromAmount)
	}

	return nil
}

// Select marks the provided quote as selected and clears the flag on all
// other quotes for the RFQ.
func (b *Book) Select(rfqID string, quoteID string) error {
	b.quotesMtx.Lock()
	defer b.quotesMtx.Unlock()

	var found bool
	for _, quote := range b.quotes[rfqID] {
		quote.Selected = quote.ID == quoteID
		if quote.Selected {
			found = true
		}
	}

	if !found {
		return &shared.NotFoundError{Kind: "quote", ID: quoteID}
	}

	return nil
}
