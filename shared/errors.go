package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateUnavailable is returned when no exchange rate can be fetched
	// and no previously cached value exists. Callers must not substitute a
	// fabricated rate.
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	// ErrMakerKeyNotFound is returned when no configured signing identity
	// matches a requested maker address.
	ErrMakerKeyNotFound = errors.New("no signing identity found for maker")
	// ErrMakerKeyMismatch is returned when a resolved signing identity
	// does not derive the requested maker address.
	ErrMakerKeyMismatch = errors.New("signing identity does not match maker address")
	// ErrAlreadySettled is returned when settlement is requested for a
	// trade the ledger reports as settled.
	ErrAlreadySettled = errors.New("trade already settled")
)

// ValidationError represents a malformed or missing input, rejected before
// any side effect.
type ValidationError struct {
	Msg string
}

// Error satisfies the error interface.
func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError creates a validation error from the provided message.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError represents a lookup for an unknown entity.
type NotFoundError struct {
	Kind string
	ID   string
}

// Error satisfies the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// LedgerError represents a failed ledger call. Financial operations are
// never silently retried at this layer, so the cause propagates as-is.
type LedgerError struct {
	Op  string
	Err error
}

// Error satisfies the error interface.
func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NotFullyFundedError reports which side's escrow is short of its
// committed amount.
type NotFullyFundedError struct {
	TakerFunded bool
	MakerFunded bool
}

// Error satisfies the error interface.
func (e *NotFullyFundedError) Error() string {
	switch {
	case !e.TakerFunded && !e.MakerFunded:
		return "trade not funded by taker or maker"
	case !e.TakerFunded:
		return "trade not funded by taker"
	default:
		return "trade not funded by maker"
	}
}

// SettlementTimeNotReachedError reports the remaining wait before a trade
// becomes settleable.
type SettlementTimeNotReachedError struct {
	SettlementTime int64
	Now            int64
}

// Error satisfies the error interface.
func (e *SettlementTimeNotReachedError) Error() string {
	return fmt.Sprintf("settlement time not reached, %s remaining", e.Remaining())
}

// Remaining returns the wait left until the settlement time.
func (e *SettlementTimeNotReachedError) Remaining() time.Duration {
	return time.Duration(e.SettlementTime-e.Now) * time.Second
}
