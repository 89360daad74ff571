package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/vtrade"
	"github.com/shopspring/decimal"
)

var (
	ErrNoRates = errors.New("no rates file")
	ErrNoRate  = errors.New("no rate")
	ErrStale   = errors.New("rates are stale")
)

// pivot is the currency used to derive cross rates.
const pivot = vtrade.USD

// divisionPrecision is the number of decimal places kept when inverting a rate.
const divisionPrecision = 16

// Quote is a rate with its provenance.
type Quote struct {
	From, To  vtrade.Code
	Rate      decimal.Decimal // units of To per unit of From
	UpdatedAt time.Time       // oldest update of the pairs it was derived from
	Derived   bool            // computed from reverse or cross pairs
}

// Reverse returns the quote for To→From.
func (q Quote) Reverse() Quote {
	return Quote{From: q.To, To: q.From, Rate: invert(q.Rate), UpdatedAt: q.UpdatedAt, Derived: true}
}

func invert(r decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).DivRound(r, divisionPrecision)
}

// Provider serves rates from a File. It implements vtrade.RateProvider.
//
// A pair is resolved in order from: identity (1), the direct pair, the
// reverse pair inverted, then a cross rate through USD, each leg being direct
// or reverse.
type Provider struct {
	file *File
	ttl  time.Duration
	now  func() time.Time
}

// NewProvider returns a provider over f. When ttl is positive, rates older
// than ttl (by the file's last refresh) are refused with ErrStale.
func NewProvider(f *File, ttl time.Duration) *Provider {
	return &Provider{file: f, ttl: ttl, now: time.Now}
}

// Rate implements vtrade.RateProvider.
func (p *Provider) Rate(ctx context.Context, from, to vtrade.Code) (decimal.Decimal, error) {
	q, err := p.Quote(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Rate, nil
}

// Quote returns the rate from→to with its provenance.
func (p *Provider) Quote(ctx context.Context, from, to vtrade.Code) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	for _, c := range []vtrade.Code{from, to} {
		if !c.IsValid() {
			return Quote{}, fmt.Errorf("%w: %q", vtrade.ErrUnknownCurrency, string(c))
		}
	}
	if from == to {
		return Quote{From: from, To: to, Rate: decimal.NewFromInt(1)}, nil
	}
	if err := p.fresh(); err != nil {
		return Quote{}, err
	}
	if q, ok := p.leg(from, to); ok {
		return q, nil
	}
	if from != pivot && to != pivot {
		a, okA := p.leg(from, pivot)
		b, okB := p.leg(pivot, to)
		if okA && okB {
			return Quote{
				From:      from,
				To:        to,
				Rate:      a.Rate.Mul(b.Rate),
				UpdatedAt: oldest(a.UpdatedAt, b.UpdatedAt),
				Derived:   true,
			}, nil
		}
	}
	return Quote{}, fmt.Errorf("%w for %s→%s", ErrNoRate, from, to)
}

// leg resolves a pair from the direct or the reverse entry.
func (p *Provider) leg(from, to vtrade.Code) (Quote, bool) {
	if e, ok := p.file.Get(from, to); ok && e.Rate.IsPositive() {
		return Quote{From: from, To: to, Rate: e.Rate, UpdatedAt: e.UpdatedAt}, true
	}
	if e, ok := p.file.Get(to, from); ok && e.Rate.IsPositive() {
		return Quote{From: from, To: to, Rate: invert(e.Rate), UpdatedAt: e.UpdatedAt, Derived: true}, true
	}
	return Quote{}, false
}

func (p *Provider) fresh() error {
	if p.ttl <= 0 {
		return nil
	}
	last := p.file.LastRefresh()
	if last.IsZero() {
		return fmt.Errorf("%w: never refreshed", ErrStale)
	}
	if age := p.now().Sub(last); age > p.ttl {
		return fmt.Errorf("%w: last refresh %s ago (ttl %s)", ErrStale, age.Round(time.Second), p.ttl)
	}
	return nil
}

func oldest(a, b time.Time) time.Time {
	if a.IsZero() || (!b.IsZero() && b.Before(a)) {
		return b
	}
	return a
}
