package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeStatus represents the advisory local status of a trade. The ledger
// is the authoritative record; this status is a best-effort mirror.
type TradeStatus int

const (
	TradePending TradeStatus = iota
	TradeFunded
	TradeSettled
	TradeFailed
)

// String stringifies the provided trade status.
func (s TradeStatus) String() string {
	switch s {
	case TradePending:
		return "pending"
	case TradeFunded:
		return "funded"
	case TradeSettled:
		return "settled"
	case TradeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON stringifies the trade status for api responses.
func (s TradeStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Trade represents a ledger-mediated trade created from an accepted quote.
// Created exclusively by the settlement orchestrator and never deleted
// locally.
type Trade struct {
	ID             string          `json:"id"`
	RFQID          string          `json:"rfqId"`
	QuoteID        string          `json:"quoteId"`
	TakerAddress   string          `json:"takerAddress"`
	MakerAddress   string          `json:"makerAddress"`
	FromCurrency   string          `json:"fromToken"`
	ToCurrency     string          `json:"toToken"`
	FromAmount     decimal.Decimal `json:"fromAmount"`
	ToAmount       decimal.Decimal `json:"toAmount"`
	SettlementTime int64           `json:"settlementTime"`
	Status         TradeStatus     `json:"status"`
	TxHash         string          `json:"txHash,omitempty"`

	// Per-side funding state derived from the ledger, populated on
	// reconciled reads only.
	TakerFunded bool `json:"takerFunded,omitempty"`
	MakerFunded bool `json:"makerFunded,omitempty"`
	Settled     bool `json:"settled,omitempty"`
}

// TradeID forms the local trade identifier from the ledger's on-chain id.
func TradeID(ledgerID uint64) string {
	return fmt.Sprintf("trade_%d", ledgerID)
}

// ParseTradeID extracts the ledger trade id from a local trade identifier.
func ParseTradeID(id string) (uint64, error) {
	var ledgerID uint64
	_, err := fmt.Sscanf(id, "trade_%d", &ledgerID)
	if err != nil {
		return 0, fmt.Errorf("malformed trade id %q: %w", id, err)
	}

	return ledgerID, nil
}
