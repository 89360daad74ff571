package vtrade

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Wallet holds the balance of a single currency. The balance is never
// negative and never has more decimal places than the currency family allows.
//
// Wallets are owned by a Portfolio, use Portfolio.Wallet to get one.
type Wallet struct {
	currency Code
	family   Family
	balance  decimal.Decimal
}

func newWallet(code Code) (*Wallet, error) {
	f, err := FamilyOf(code)
	if err != nil {
		return nil, err
	}
	return &Wallet{currency: code, family: f, balance: decimal.Zero}, nil
}

// Currency returns the wallet currency.
func (w *Wallet) Currency() Code { return w.currency }

// Balance returns the current balance.
func (w *Wallet) Balance() decimal.Decimal { return w.balance }

// check validates an amount to credit or debit.
func (w *Wallet) check(op string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%s %s %s: %w: must be positive", op, amount, w.currency, ErrInvalidAmount)
	}
	if p := w.family.Precision(); !fits(amount, p) {
		return fmt.Errorf("%s %s %s: %w: more than %d decimal places", op, amount, w.currency, ErrInvalidAmount, p)
	}
	return nil
}

// Credit increases the balance by amount.
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if err := w.check("credit", amount); err != nil {
		return err
	}
	w.balance = w.balance.Add(amount)
	return nil
}

// Debit decreases the balance by amount. The balance is left unchanged on failure.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if err := w.check("debit", amount); err != nil {
		return err
	}
	if amount.GreaterThan(w.balance) {
		return fmt.Errorf("debit %s %s: %w: available %s", amount, w.currency, ErrInsufficientFunds, w.balance)
	}
	w.balance = w.balance.Sub(amount)
	return nil
}

// MarshalJSON implements the json.Marshaler interface for Wallet.
func (w *Wallet) MarshalJSON() ([]byte, error) {
	var o objectWriter
	return o.Field("currency_code", w.currency).
		Amount("balance", w.balance, w.family.Precision()).
		MarshalJSON()
}

// UnmarshalJSON implements the json.Unmarshaler interface for Wallet.
// Balances may be JSON strings or numbers.
func (w *Wallet) UnmarshalJSON(data []byte) error {
	var temp struct {
		Currency Code            `json:"currency_code"`
		Balance  decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	nw, err := restoreWallet(temp.Currency, temp.Balance)
	if err != nil {
		return err
	}
	*w = *nw
	return nil
}

// restoreWallet rebuilds a wallet from a persisted balance.
//
// Balances written as binary floats (e.g. 891.3000000000001) are rounded
// half-even to the family precision.
func restoreWallet(code Code, balance decimal.Decimal) (*Wallet, error) {
	w, err := newWallet(code)
	if err != nil {
		return nil, err
	}
	if balance.IsNegative() {
		return nil, fmt.Errorf("wallet %s: %w: negative balance %s", code, ErrInvalidAmount, balance)
	}
	w.balance = balance.RoundBank(w.family.Precision())
	return w, nil
}
