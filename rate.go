package vtrade

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateProvider quotes exchange rates.
//
// Rate returns the units of 'to' received for one unit of 'from'. The engine
// never interprets why a rate is missing, any error is reported as
// ErrRateUnavailable. Timeouts and retries belong to implementations.
type RateProvider interface {
	Rate(ctx context.Context, from, to Code) (decimal.Decimal, error)
}

// RateFunc adapts a function to a RateProvider.
type RateFunc func(ctx context.Context, from, to Code) (decimal.Decimal, error)

// Rate calls f(ctx, from, to).
func (f RateFunc) Rate(ctx context.Context, from, to Code) (decimal.Decimal, error) {
	return f(ctx, from, to)
}
