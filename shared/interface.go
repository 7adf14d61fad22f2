package shared

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceSource defines the requirements for looking up spot and historical
// prices against a common reference unit.
type PriceSource interface {
	// Lookup fetches the current price of each provided coin id in the
	// reference unit.
	Lookup(ctx context.Context, coinIDs []string) (map[string]float64, error)
	// History fetches a price time series for the provided coin id.
	History(ctx context.Context, coinID string, days string, interval string) ([]PricePoint, error)
}

// Ledger defines the requirements for interacting with the settlement
// ledger contract. The ledger is the authoritative record of trade state
// and escrow balances.
type Ledger interface {
	// CreateTrade submits the signed trade message, returning the new
	// ledger trade id and the transaction hash.
	CreateTrade(ctx context.Context, msg *TradeMessage, takerSig string, makerSig string) (uint64, string, error)
	// FundTrade transfers the provided amount of the caller's token into
	// escrow for the trade.
	FundTrade(ctx context.Context, tradeID uint64, caller string, amount decimal.Decimal) (string, error)
	// Settle transfers both escrowed amounts to their counterparties.
	Settle(ctx context.Context, tradeID uint64) (string, error)
	// Trade reads the authoritative trade record.
	Trade(ctx context.Context, tradeID uint64) (*LedgerTrade, error)
	// TradeCounter reads the monotonically increasing count of created
	// trades.
	TradeCounter(ctx context.Context) (uint64, error)
	// Allowance reads the owner's token approval for the settlement
	// contract.
	Allowance(ctx context.Context, token string, owner string) (decimal.Decimal, error)
	// Approve raises the owner's token approval for the settlement
	// contract to the provided amount.
	Approve(ctx context.Context, token string, owner string, amount decimal.Decimal) (string, error)
}
