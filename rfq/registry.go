package rfq

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NewRFQ represents the taker-supplied fields of a new request for quote.
type NewRFQ struct {
	FromCurrency string
	FromAmount   decimal.Decimal
	ToCurrency   string
	Tenor        shared.Tenor
	TakerAddress string
}

// RegistryConfig represents the request registry configuration.
type RegistryConfig struct {
	// QuoteCount returns the number of quotes currently held for an RFQ.
	QuoteCount func(rfqID string) int
	// InitQuotes initializes an empty quote collection for an RFQ.
	InitQuotes func(rfqID string)
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *RegistryConfig) Validate() error {
	var errs error

	if cfg.QuoteCount == nil {
		errs = errors.Join(errs, fmt.Errorf("quote count function cannot be nil"))
	}
	if cfg.InitQuotes == nil {
		errs = errors.Join(errs, fmt.Errorf("init quotes function cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Registry stores RFQs and tracks which of them can still receive quotes.
// RFQs are immutable after creation and never deleted; negotiation windows
// expire by attrition rather than an explicit closed transition.
type Registry struct {
	cfg     *RegistryConfig
	rfqs    map[string]*shared.RFQ
	rfqsMtx sync.RWMutex
}

// NewRegistry initializes a new request registry.
func NewRegistry(cfg *RegistryConfig) (*Registry, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating registry config: %w", err)
	}

	return &Registry{
		cfg:  cfg,
		rfqs: make(map[string]*shared.RFQ),
	}, nil
}

// validateNewRFQ asserts the provided RFQ fields are well formed.
func validateNewRFQ(req *NewRFQ) error {
	if req.FromCurrency == "" || req.ToCurrency == "" {
		return shared.NewValidationError("source and destination currencies are required")
	}
	if req.TakerAddress == "" {
		return shared.NewValidationError("taker address is required")
	}
	if !req.FromAmount.IsPositive() {
		return shared.NewValidationError("amount must be greater than zero, got %s", req.FromAmount)
	}

	_, err := shared.TokenAddress(req.FromCurrency)
	if err != nil {
		return shared.NewValidationError("unsupported source currency %s", req.FromCurrency)
	}
	_, err = shared.TokenAddress(req.ToCurrency)
	if err != nil {
		return shared.NewValidationError("unsupported destination currency %s", req.ToCurrency)
	}

	return nil
}

// Create validates and stores a new RFQ, initializing its quote collection.
func (r *Registry) Create(req *NewRFQ) (*shared.RFQ, error) {
	err := validateNewRFQ(req)
	if err != nil {
		return nil, err
	}

	rfq := &shared.RFQ{
		ID:           uuid.New().String(),
		FromCurrency: req.FromCurrency,
		FromAmount:   req.FromAmount,
		ToCurrency:   req.ToCurrency,
		Tenor:        req.Tenor,
		TakerAddress: req.TakerAddress,
		CreatedAt:    r.cfg.Now(),
	}

	r.rfqsMtx.Lock()
	r.rfqs[rfq.ID] = rfq
	r.rfqsMtx.Unlock()

	r.cfg.InitQuotes(rfq.ID)

	r.cfg.Logger.Info().Msgf("rfq created: %s (%s %s -> %s, %s)", rfq.ID,
		rfq.FromAmount, rfq.FromCurrency, rfq.ToCurrency, rfq.Tenor)

	return rfq, nil
}

// RFQ fetches the RFQ with the provided id.
func (r *Registry) RFQ(id string) (*shared.RFQ, error) {
	r.rfqsMtx.RLock()
	rfq, ok := r.rfqs[id]
	r.rfqsMtx.RUnlock()

	if !ok {
		return nil, &shared.NotFoundError{Kind: "rfq", ID: id}
	}

	return rfq, nil
}

// All returns every registered RFQ, newest first, expired ones included.
func (r *Registry) All() []*shared.RFQ {
	r.rfqsMtx.RLock()
	all := make([]*shared.RFQ, 0, len(r.rfqs))
	for _, rfq := range r.rfqs {
		all = append(all, rfq)
	}
	r.rfqsMtx.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	return all
}

// Pending returns the RFQs still open for negotiation, newest first: those
// younger than the negotiation window that hold fewer than the maximum
// number of quotes. This is the feed polled by makers.
func (r *Registry) Pending() []*shared.RFQ {
	now := r.cfg.Now()

	r.rfqsMtx.RLock()
	pending := make([]*shared.RFQ, 0, len(r.rfqs))
	for _, rfq := range r.rfqs {
		if rfq.Expired(now) {
			continue
		}
		if r.cfg.QuoteCount(rfq.ID) >= shared.MaxQuotesPerRFQ {
			continue
		}

		pending = append(pending, rfq)
	}
	r.rfqsMtx.RUnlock()

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})

	return pending
}
