package shared

import (
	"github.com/shopspring/decimal"
)

// TradeState represents the ledger contract's authoritative trade state.
type TradeState int

const (
	StateCreated TradeState = iota
	StateFundedByTaker
	StateFundedByMaker
	StateFundedBoth
	StateSettled
	StateCancelled
	StateExpired
)

// String stringifies the provided trade state.
func (s TradeState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFundedByTaker:
		return "funded_by_taker"
	case StateFundedByMaker:
		return "funded_by_maker"
	case StateFundedBoth:
		return "funded_both"
	case StateSettled:
		return "settled"
	case StateCancelled:
		return "cancelled"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// LedgerTrade represents a trade record as reported by the ledger contract.
// This is the single source of truth for the trade; local records are
// best-effort mirrors of it.
type LedgerTrade struct {
	ID             uint64
	Taker          string
	Maker          string
	FromToken      string
	ToToken        string
	FromAmount     decimal.Decimal
	ToAmount       decimal.Decimal
	SettlementTime int64
	QuoteID        string
	State          TradeState
	TakerBalance   decimal.Decimal
	MakerBalance   decimal.Decimal
}

// TakerFunded reports whether the taker's escrow covers the committed
// source amount.
func (t *LedgerTrade) TakerFunded() bool {
	return t.State == StateSettled || t.TakerBalance.GreaterThanOrEqual(t.FromAmount)
}

// MakerFunded reports whether the maker's escrow covers the committed
// destination amount.
func (t *LedgerTrade) MakerFunded() bool {
	return t.State == StateSettled || t.MakerBalance.GreaterThanOrEqual(t.ToAmount)
}

// DisplayStatus derives the advisory local status from the ledger state.
func (t *LedgerTrade) DisplayStatus() TradeStatus {
	switch {
	case t.State == StateSettled:
		return TradeSettled
	case t.State == StateFundedByTaker, t.State == StateFundedByMaker, t.State == StateFundedBoth:
		return TradeFunded
	default:
		return TradePending
	}
}
