package vtrade

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Direction of a trade, seen from the target currency.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// TradeRequest asks to buy or sell Amount units of Currency against the
// portfolio base currency.
type TradeRequest struct {
	Direction Direction
	Currency  Code
	Amount    decimal.Decimal
}

func (r TradeRequest) String() string {
	return fmt.Sprintf("%s %s %s", r.Direction, r.Amount, r.Currency)
}

// WalletChange records the effect of a trade on one wallet.
type WalletChange struct {
	Currency Code
	Delta    decimal.Decimal // signed
	Before   decimal.Decimal
	After    decimal.Decimal
}

// TradeResult records an executed trade.
type TradeResult struct {
	Direction    Direction
	Currency     Code            // traded currency
	Base         Code            // currency paid or received
	Amount       decimal.Decimal // in Currency, rounded to its precision
	Rate         decimal.Decimal // as quoted by the provider, see Engine.Execute
	Counter      decimal.Decimal // cost (buy) or proceeds (sell) in Base
	BaseChange   WalletChange
	TargetChange WalletChange
}

// TradeObserver is notified after each Engine.Execute call, successful or not.
// Observers see the outcome but cannot change it.
type TradeObserver interface {
	Traded(ctx context.Context, p *Portfolio, req TradeRequest, res TradeResult, err error)
}

// ObserverFunc adapts a function to a TradeObserver.
type ObserverFunc func(ctx context.Context, p *Portfolio, req TradeRequest, res TradeResult, err error)

// Traded calls f.
func (f ObserverFunc) Traded(ctx context.Context, p *Portfolio, req TradeRequest, res TradeResult, err error) {
	f(ctx, p, req, res, err)
}

// Engine executes trades on portfolios. It holds no state between calls
// other than its observers, its zero value is ready to use.
type Engine struct {
	observers []TradeObserver
}

// NewEngine returns an engine notifying observers.
func NewEngine(observers ...TradeObserver) *Engine {
	return &Engine{observers: observers}
}

// Observe registers an observer.
func (e *Engine) Observe(o TradeObserver) { e.observers = append(e.observers, o) }

// Execute applies req to p using rates.
//
// For a buy, the rate base→target is the amount of target bought per unit of
// base, so the cost is amount/rate. For a sell, the rate target→base is the
// amount of base received per unit of target, so the proceeds are
// amount×rate. Both are rounded half-even to the base precision.
//
// The debit is applied before the credit: when it fails p is left unchanged.
func (e *Engine) Execute(ctx context.Context, p *Portfolio, req TradeRequest, rates RateProvider) (res TradeResult, err error) {
	defer func() {
		for _, o := range e.observers {
			o.Traded(ctx, p, req, res, err)
		}
	}()
	res, err = execute(ctx, p, req, rates)
	if err != nil {
		return TradeResult{}, fmt.Errorf("cannot %s: %w", req, err)
	}
	return res, nil
}

func execute(ctx context.Context, p *Portfolio, req TradeRequest, rates RateProvider) (TradeResult, error) {
	if req.Direction != Buy && req.Direction != Sell {
		return TradeResult{}, fmt.Errorf("unknown direction %q", req.Direction)
	}
	family, err := FamilyOf(req.Currency)
	if err != nil {
		return TradeResult{}, err
	}
	if req.Currency == p.base {
		return TradeResult{}, fmt.Errorf("%w %s", ErrSameCurrency, p.base)
	}
	baseFamily, err := FamilyOf(p.base)
	if err != nil {
		return TradeResult{}, err
	}

	amount := req.Amount.RoundBank(family.Precision())
	if !amount.IsPositive() {
		return TradeResult{}, fmt.Errorf("%w: %s %s must be positive", ErrInvalidAmount, req.Amount, req.Currency)
	}
	if amount.LessThan(family.MinimumUnit()) {
		return TradeResult{}, fmt.Errorf("%w: %s %s is below the minimum unit %s", ErrInvalidAmount, req.Amount, req.Currency, family.MinimumUnit())
	}

	from, to := p.base, req.Currency
	if req.Direction == Sell {
		from, to = to, from
	}
	rate, err := quote(ctx, rates, from, to)
	if err != nil {
		return TradeResult{}, err
	}

	var counter decimal.Decimal
	if req.Direction == Buy {
		counter = amount.DivRound(rate, 16)
	} else {
		counter = amount.Mul(rate)
	}
	counter = counter.RoundBank(baseFamily.Precision())
	if !counter.IsPositive() {
		return TradeResult{}, fmt.Errorf("%w: %s %s is worth less than %s %s", ErrInvalidAmount, amount, req.Currency, baseFamily.MinimumUnit(), p.base)
	}

	existed := p.Has(req.Currency)
	target, err := p.Wallet(req.Currency)
	if err != nil {
		return TradeResult{}, err
	}
	base := p.wallets[p.base]

	res := TradeResult{
		Direction: req.Direction,
		Currency:  req.Currency,
		Base:      p.base,
		Amount:    amount,
		Rate:      rate,
		Counter:   counter,
	}
	baseBefore, targetBefore := base.balance, target.balance

	// debit first: it is the only step that can fail.
	debit, credit := base, target
	debitAmount, creditAmount := counter, amount
	if req.Direction == Sell {
		debit, credit = target, base
		debitAmount, creditAmount = amount, counter
	}
	if err := debit.Debit(debitAmount); err != nil {
		if !existed {
			p.drop(req.Currency)
		}
		return TradeResult{}, err
	}
	if err := credit.Credit(creditAmount); err != nil {
		// unreachable with rounded amounts, restore anyway.
		debit.balance = debit.balance.Add(debitAmount)
		if !existed {
			p.drop(req.Currency)
		}
		return TradeResult{}, err
	}

	res.BaseChange = WalletChange{Currency: p.base, Delta: base.balance.Sub(baseBefore), Before: baseBefore, After: base.balance}
	res.TargetChange = WalletChange{Currency: req.Currency, Delta: target.balance.Sub(targetBefore), Before: targetBefore, After: target.balance}
	return res, nil
}

// quote asks rates for a strictly positive rate.
func quote(ctx context.Context, rates RateProvider, from, to Code) (decimal.Decimal, error) {
	if rates == nil {
		return decimal.Zero, fmt.Errorf("%w: %s→%s: no rate provider", ErrRateUnavailable, from, to)
	}
	rate, err := rates.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s→%s: %w", ErrRateUnavailable, from, to, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s→%s: invalid rate %s", ErrRateUnavailable, from, to, rate)
	}
	return rate, nil
}
