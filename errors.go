package vtrade

import "errors"

// Outcomes of trading operations. They are always wrapped with some context,
// use errors.Is to test for them.
var (
	// ErrUnknownCurrency is returned for a code outside the catalog.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrInvalidAmount is returned for non positive amounts, amounts finer
	// than the currency precision, or below the minimum tradable unit.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds is returned when a debit would make a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRateUnavailable is returned when the rate provider cannot quote a pair.
	ErrRateUnavailable = errors.New("rate unavailable")
	// ErrSameCurrency is returned when trading the base currency against itself.
	ErrSameCurrency = errors.New("cannot trade the base currency against itself")
)
