package shared

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// TokenDecimals is the decimal precision of the escrowed tokens.
	TokenDecimals = 6

	// CurrencyUSDC is the currency code of the USD stablecoin.
	CurrencyUSDC = "USDC"
	// CurrencyEURC is the currency code of the EUR stablecoin.
	CurrencyEURC = "EURC"

	// USDCAddress is the USDC token contract address on the settlement chain.
	USDCAddress = "0x3600000000000000000000000000000000000000"
	// EURCAddress is the EURC token contract address on the settlement chain.
	EURCAddress = "0x89B50855Aa3bE2F677cD6303Cec089B5F319D72a"
)

// TokenAddress resolves a currency code to its token contract address.
func TokenAddress(currency string) (string, error) {
	switch strings.ToUpper(currency) {
	case CurrencyUSDC:
		return USDCAddress, nil
	case CurrencyEURC:
		return EURCAddress, nil
	default:
		return "", fmt.Errorf("unknown currency provided: %s", currency)
	}
}

// TokenCurrency resolves a token contract address back to its currency code.
func TokenCurrency(address string) string {
	if SameAddress(address, USDCAddress) {
		return CurrencyUSDC
	}

	return CurrencyEURC
}

// ToBaseUnits converts a token amount to its base unit representation.
func ToBaseUnits(amount decimal.Decimal) int64 {
	return amount.Shift(TokenDecimals).IntPart()
}

// FromBaseUnits converts a base unit token amount to its decimal
// representation.
func FromBaseUnits(units int64) decimal.Decimal {
	return decimal.New(units, -TokenDecimals)
}
