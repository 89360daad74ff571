package vtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// Portfolio is the set of wallets of a single user, plus the base currency
// in which it is valued and in which trades are paid.
//
// There is at most one wallet per currency and the base wallet always exists.
// A Portfolio is not safe for concurrent use; callers sharing one must
// serialize access (see store.UpdatePortfolio).
type Portfolio struct {
	user    int
	base    Code
	wallets map[Code]*Wallet
}

// NewPortfolio creates an empty portfolio for user, with a zero balance base wallet.
func NewPortfolio(user int, base Code) (*Portfolio, error) {
	w, err := newWallet(base)
	if err != nil {
		return nil, fmt.Errorf("cannot create portfolio: %w", err)
	}
	return &Portfolio{
		user:    user,
		base:    base,
		wallets: map[Code]*Wallet{base: w},
	}, nil
}

// User returns the owner id.
func (p *Portfolio) User() int { return p.user }

// Base returns the base currency.
func (p *Portfolio) Base() Code { return p.base }

// Wallet returns the wallet for code, creating an empty one if needed.
// It only fails for codes outside the catalog.
func (p *Portfolio) Wallet(code Code) (*Wallet, error) {
	if w, ok := p.wallets[code]; ok {
		return w, nil
	}
	w, err := newWallet(code)
	if err != nil {
		return nil, err
	}
	p.wallets[code] = w
	return w, nil
}

// Has reports whether the portfolio has a wallet for code.
func (p *Portfolio) Has(code Code) bool {
	_, ok := p.wallets[code]
	return ok
}

// Balance returns the balance for code, zero if there is no such wallet.
func (p *Portfolio) Balance(code Code) decimal.Decimal {
	if w, ok := p.wallets[code]; ok {
		return w.balance
	}
	return decimal.Zero
}

// drop removes a wallet. The base wallet is never removed.
func (p *Portfolio) drop(code Code) {
	if code != p.base {
		delete(p.wallets, code)
	}
}

// Balance is a (currency, balance) pair.
type Balance struct {
	Currency Code
	Amount   decimal.Decimal
}

// Balances returns every wallet balance sorted by currency code.
func (p *Portfolio) Balances() []Balance {
	res := make([]Balance, 0, len(p.wallets))
	for _, code := range slices.Sorted(maps.Keys(p.wallets)) {
		res = append(res, Balance{Currency: code, Amount: p.wallets[code].balance})
	}
	return res
}

// Deposit credits amount to the base wallet.
func (p *Portfolio) Deposit(amount decimal.Decimal) error {
	return p.wallets[p.base].Credit(amount)
}

// Valuation is the value of one wallet in a target currency.
type Valuation struct {
	Currency Code
	Balance  decimal.Decimal
	Rate     decimal.Decimal // zero when no lookup was needed or it failed
	Value    decimal.Decimal // in the target currency, unrounded
	Err      error           // rate lookup failure, wraps ErrRateUnavailable
}

// Valuations values every wallet in target currency, in Balances order.
//
// Wallets in the target currency and empty wallets are valued without a rate
// lookup. Lookup failures are reported per wallet.
func (p *Portfolio) Valuations(ctx context.Context, target Code, rates RateProvider) ([]Valuation, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCurrency, string(target))
	}
	balances := p.Balances()
	res := make([]Valuation, 0, len(balances))
	for _, b := range balances {
		v := Valuation{Currency: b.Currency, Balance: b.Amount, Value: decimal.Zero}
		switch {
		case b.Currency == target:
			v.Value = b.Amount
		case b.Amount.IsZero():
		default:
			rate, err := quote(ctx, rates, b.Currency, target)
			if err != nil {
				v.Err = err
			} else {
				v.Rate = rate
				v.Value = b.Amount.Mul(rate)
			}
		}
		res = append(res, v)
	}
	return res, nil
}

// ValueIn returns the total value of the portfolio in target currency,
// rounded half-even to its precision.
func (p *Portfolio) ValueIn(ctx context.Context, target Code, rates RateProvider) (decimal.Decimal, error) {
	vals, err := p.Valuations(ctx, target, rates)
	if err != nil {
		return decimal.Zero, err
	}
	f, _ := FamilyOf(target)
	total := decimal.Zero
	for _, v := range vals {
		if v.Err != nil {
			return decimal.Zero, v.Err
		}
		total = total.Add(v.Value)
	}
	return total.RoundBank(f.Precision()), nil
}

// Valuate returns the total value of the portfolio in its base currency.
func (p *Portfolio) Valuate(ctx context.Context, rates RateProvider) (decimal.Decimal, error) {
	return p.ValueIn(ctx, p.base, rates)
}

// Snapshot is the plain structural form of a Portfolio.
type Snapshot struct {
	User    int
	Base    Code
	Wallets map[Code]decimal.Decimal
}

// Snapshot returns a copy of the portfolio state.
func (p *Portfolio) Snapshot() Snapshot {
	s := Snapshot{User: p.user, Base: p.base, Wallets: make(map[Code]decimal.Decimal, len(p.wallets))}
	for code, w := range p.wallets {
		s.Wallets[code] = w.balance
	}
	return s
}

// Equal reports whether two snapshots hold the same wallets and balances.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.User != o.User || s.Base != o.Base || len(s.Wallets) != len(o.Wallets) {
		return false
	}
	for code, b := range s.Wallets {
		ob, ok := o.Wallets[code]
		if !ok || !b.Equal(ob) {
			return false
		}
	}
	return true
}

// FromSnapshot rebuilds a portfolio. The base wallet is created if missing.
func FromSnapshot(s Snapshot) (*Portfolio, error) {
	p, err := NewPortfolio(s.User, s.Base)
	if err != nil {
		return nil, err
	}
	for code, balance := range s.Wallets {
		w, err := restoreWallet(code, balance)
		if err != nil {
			return nil, err
		}
		p.wallets[code] = w
	}
	return p, nil
}

// MarshalJSON implements the json.Marshaler interface for Portfolio.
func (p *Portfolio) MarshalJSON() ([]byte, error) {
	var w objectWriter
	return w.Field("user_id", p.user).
		Field("base_currency", p.base).
		Field("wallets", p.wallets).
		MarshalJSON()
}

// UnmarshalJSON implements the json.Unmarshaler interface for Portfolio.
// A missing base currency defaults to USD.
func (p *Portfolio) UnmarshalJSON(data []byte) error {
	var temp struct {
		User    int              `json:"user_id"`
		Base    Code             `json:"base_currency"`
		Wallets map[Code]*Wallet `json:"wallets"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	if temp.Base == "" {
		temp.Base = USD
	}
	s := Snapshot{User: temp.User, Base: temp.Base, Wallets: make(map[Code]decimal.Decimal, len(temp.Wallets))}
	for code, w := range temp.Wallets {
		if w == nil {
			return fmt.Errorf("wallet %q: missing", code)
		}
		if w.currency != code {
			return fmt.Errorf("wallet %q holds %q", code, w.currency)
		}
		s.Wallets[code] = w.balance
	}
	np, err := FromSnapshot(s)
	if err != nil {
		return err
	}
	*p = *np
	return nil
}
