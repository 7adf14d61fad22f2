package shared

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// NegotiationWindow is the duration after creation during which an RFQ
	// can still receive quotes.
	NegotiationWindow = time.Minute * 5
	// MaxQuotesPerRFQ is the maximum number of quotes an RFQ accumulates
	// before it stops being offered to makers.
	MaxQuotesPerRFQ = 10
	// QuoteLifetime is the duration a submitted quote remains valid for
	// acceptance.
	QuoteLifetime = time.Second * 300
)

// RFQ represents a taker's request for quote: a stated intent to exchange a
// fixed source amount for a destination currency. Immutable after creation.
type RFQ struct {
	ID           string          `json:"id"`
	FromCurrency string          `json:"fromCurrency"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	ToCurrency   string          `json:"toCurrency"`
	Tenor        Tenor           `json:"tenor"`
	TakerAddress string          `json:"takerAddress"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Expired reports whether the RFQ's negotiation window has closed relative
// to the provided time. Expired RFQs remain readable but no longer receive
// quotes.
func (r *RFQ) Expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > NegotiationWindow
}

// Quote represents a maker's priced response to an RFQ. Never mutated after
// creation except for the selection flag, and never deleted.
type Quote struct {
	ID           string          `json:"id"`
	RFQID        string          `json:"rfqId"`
	MakerAddress string          `json:"makerAddress"`
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	ToAmount     decimal.Decimal `json:"toAmount"`
	Rate         float64         `json:"rate"`
	// Expiry is the unix timestamp past which the quote can no longer be
	// accepted.
	Expiry   int64 `json:"expiry"`
	Selected bool  `json:"selected,omitempty"`
}

// SameAddress reports whether the two provided addresses refer to the same
// account, ignoring case.
func SameAddress(a string, b string) bool {
	return strings.EqualFold(a, b)
}
