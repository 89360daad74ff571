package vtrade

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Code identifies a currency supported by the catalog, e.g. "USD" or "BTC".
type Code string

// Supported currency codes.
const (
	USD Code = "USD"
	EUR Code = "EUR"
	RUB Code = "RUB"
	GBP Code = "GBP"
	JPY Code = "JPY"
	BTC Code = "BTC"
	ETH Code = "ETH"
	LTC Code = "LTC"
	ADA Code = "ADA"
)

// ParseCode normalizes s (trimmed, upper case) and checks it against the catalog.
func ParseCode(s string) (Code, error) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := catalog[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
	return c, nil
}

// Family returns the code's family, see FamilyOf.
func (c Code) Family() (Family, error) { return FamilyOf(c) }

// IsValid reports whether c is in the catalog.
func (c Code) IsValid() bool {
	_, ok := catalog[c]
	return ok
}

func (c Code) String() string { return string(c) }

// Family classifies currencies. It carries the precision rules shared by all
// the currencies of the family.
type Family int

const (
	Fiat Family = iota + 1
	Crypto
)

func (f Family) String() string {
	switch f {
	case Fiat:
		return "fiat"
	case Crypto:
		return "crypto"
	default:
		return "unknown"
	}
}

// Precision returns the number of decimal places allowed for amounts in this family.
func (f Family) Precision() int32 {
	if f == Crypto {
		return 8
	}
	return 2
}

// MinimumUnit returns the smallest tradable increment, 10^-Precision.
func (f Family) MinimumUnit() decimal.Decimal {
	return decimal.New(1, -f.Precision())
}

// Currency is a catalog entry.
type Currency struct {
	Code   Code
	Name   string
	Family Family

	// Fiat only.
	IssuingCountry string
	// Crypto only.
	Algorithm string
	MarketCap float64
}

// DisplayInfo returns a single line description of the currency.
func (c Currency) DisplayInfo() string {
	if c.Family == Crypto {
		mcap := fmt.Sprintf("%.2e", c.MarketCap)
		if c.MarketCap <= 1e9 {
			mcap = money.NewFormatter(2, ".", ",", "", "1").Format(decimal.NewFromFloat(c.MarketCap).Shift(2).IntPart())
		}
		return fmt.Sprintf("[CRYPTO] %s — %s (Algo: %s, MCAP: %s)", c.Code, c.Name, c.Algorithm, mcap)
	}
	return fmt.Sprintf("[FIAT] %s — %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
}

// Format renders amount with the family precision, rounded half-even.
//
// Fiat currencies use the ISO grapheme and template known to go-money, crypto
// currencies are suffixed with their code.
func (c Currency) Format(amount decimal.Decimal) string {
	places := c.Family.Precision()
	minor := amount.RoundBank(places).Shift(places).IntPart()
	return c.formatter().Format(minor)
}

func (c Currency) formatter() *money.Formatter {
	fraction := int(c.Family.Precision())
	if c.Family == Fiat {
		if cur := money.GetCurrency(string(c.Code)); cur != nil {
			return money.NewFormatter(fraction, cur.Decimal, cur.Thousand, cur.Grapheme, cur.Template)
		}
	}
	return money.NewFormatter(fraction, ".", ",", string(c.Code), "1 $")
}

// catalog is the rule table. Adding a currency is adding an entry here.
var catalog = map[Code]Currency{
	USD: {Code: USD, Name: "US Dollar", Family: Fiat, IssuingCountry: "United States"},
	EUR: {Code: EUR, Name: "Euro", Family: Fiat, IssuingCountry: "Eurozone"},
	RUB: {Code: RUB, Name: "Russian Ruble", Family: Fiat, IssuingCountry: "Russia"},
	GBP: {Code: GBP, Name: "British Pound", Family: Fiat, IssuingCountry: "United Kingdom"},
	JPY: {Code: JPY, Name: "Japanese Yen", Family: Fiat, IssuingCountry: "Japan"},
	BTC: {Code: BTC, Name: "Bitcoin", Family: Crypto, Algorithm: "SHA-256", MarketCap: 1.12e12},
	ETH: {Code: ETH, Name: "Ethereum", Family: Crypto, Algorithm: "Ethash", MarketCap: 3.5e11},
	LTC: {Code: LTC, Name: "Litecoin", Family: Crypto, Algorithm: "Scrypt", MarketCap: 5.8e9},
	ADA: {Code: ADA, Name: "Cardano", Family: Crypto, Algorithm: "Ouroboros", MarketCap: 1.2e10},
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Currency, error) {
	c, ok := catalog[code]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, string(code))
	}
	return c, nil
}

// FamilyOf returns the family of code or ErrUnknownCurrency.
func FamilyOf(code Code) (Family, error) {
	c, err := Lookup(code)
	if err != nil {
		return 0, err
	}
	return c.Family, nil
}

// PrecisionOf returns the decimal places allowed for a family.
func PrecisionOf(f Family) int32 { return f.Precision() }

// MinimumUnit returns the smallest tradable increment of a family.
func MinimumUnit(f Family) decimal.Decimal { return f.MinimumUnit() }

// Currencies returns all catalog entries sorted by code.
func Currencies() []Currency {
	res := make([]Currency, 0, len(catalog))
	for _, c := range catalog {
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b Currency) int { return strings.Compare(string(a.Code), string(b.Code)) })
	return res
}

// Codes returns all supported codes sorted.
func Codes() []Code {
	res := make([]Code, 0, len(catalog))
	for _, c := range Currencies() {
		res = append(res, c.Code)
	}
	return res
}
