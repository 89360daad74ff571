package cmd

import (
	"fmt"

	"github.com/etnz/vtrade"
	"github.com/shopspring/decimal"
)

// Bounds of amounts given on the command line. Exponents are rejected
// before they reach rounding, which expands them digit by digit.
const (
	maxAmountDigits = 30 // before the decimal point
	maxAmountPlaces = 18
)

// amountFlag is a decimal flag value.
type amountFlag struct {
	value decimal.Decimal
	set   bool
}

func (a *amountFlag) String() string {
	if a == nil || !a.set {
		return ""
	}
	return a.value.String()
}

func (a *amountFlag) Set(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	if exp := d.Exponent(); exp < -maxAmountPlaces || int(exp) > maxAmountDigits || d.NumDigits()+int(exp) > maxAmountDigits {
		return fmt.Errorf("amount %q out of range", s)
	}
	a.value, a.set = d, true
	return nil
}

// codeFlag is a currency code flag value, case insensitive.
type codeFlag struct {
	code vtrade.Code
}

func (c *codeFlag) String() string {
	if c == nil {
		return ""
	}
	return string(c.code)
}

func (c *codeFlag) Set(s string) error {
	code, err := vtrade.ParseCode(s)
	if err != nil {
		return err
	}
	c.code = code
	return nil
}
