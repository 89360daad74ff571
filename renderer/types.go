package renderer

import (
	"fmt"
	"time"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/rates"
	"github.com/shopspring/decimal"
)

// Portfolio is the view of a portfolio valued in a target currency.
type Portfolio struct {
	Username string
	Base     string
	Target   string
	Rows     []PortfolioRow
	Total    string
	Missing  int // wallets left out of Total
}

// PortfolioRow is one wallet.
type PortfolioRow struct {
	Currency string
	Balance  string
	Rate     string
	Value    string
}

// NewPortfolio builds the view of p from its valuations in target.
func NewPortfolio(username string, p *vtrade.Portfolio, target vtrade.Code, vals []vtrade.Valuation) *Portfolio {
	v := &Portfolio{Username: username, Base: string(p.Base()), Target: string(target)}
	total := decimal.Zero
	for _, val := range vals {
		row := PortfolioRow{Currency: string(val.Currency), Balance: format(val.Currency, val.Balance)}
		switch {
		case val.Err != nil:
			row.Rate, row.Value = "n/a", "rate not found"
			v.Missing++
		case val.Currency == target:
			row.Rate, row.Value = "1", format(target, val.Value)
			total = total.Add(val.Value)
		case val.Rate.IsZero():
			row.Rate, row.Value = "-", format(target, val.Value)
		default:
			row.Rate, row.Value = formatRate(val.Rate), format(target, val.Value)
			total = total.Add(val.Value)
		}
		v.Rows = append(v.Rows, row)
	}
	v.Total = format(target, total)
	return v
}

// Trade is the view of an executed trade.
type Trade struct {
	Title   string
	Summary string
	Rate    string
	Counter string
	Changes []Change
}

// Change is the view of a wallet change.
type Change struct {
	Currency string
	Before   string
	Delta    string
	After    string
}

// NewTrade builds the view of res.
func NewTrade(res vtrade.TradeResult) *Trade {
	t := &Trade{Changes: []Change{change(res.TargetChange), change(res.BaseChange)}}
	amount := format(res.Currency, res.Amount)
	counter := format(res.Base, res.Counter)
	switch res.Direction {
	case vtrade.Buy:
		t.Title = fmt.Sprintf("Bought %s", res.Currency)
		t.Summary = fmt.Sprintf("Bought %s for %s.", amount, counter)
		t.Rate = fmt.Sprintf("1 %s = %s %s", res.Base, formatRate(res.Rate), res.Currency)
		t.Counter = "Cost: " + counter
	default:
		t.Title = fmt.Sprintf("Sold %s", res.Currency)
		t.Summary = fmt.Sprintf("Sold %s for %s.", amount, counter)
		t.Rate = fmt.Sprintf("1 %s = %s %s", res.Currency, formatRate(res.Rate), res.Base)
		t.Counter = "Proceeds: " + counter
	}
	return t
}

func change(c vtrade.WalletChange) Change {
	delta := format(c.Currency, c.Delta)
	if c.Delta.IsPositive() {
		delta = "+" + delta
	}
	return Change{
		Currency: string(c.Currency),
		Before:   format(c.Currency, c.Before),
		Delta:    delta,
		After:    format(c.Currency, c.After),
	}
}

// Quote is the view of an exchange rate.
type Quote struct {
	From      string
	To        string
	Rate      string
	Inverse   string
	Derived   bool
	UpdatedAt string // empty when unknown
}

// NewQuote builds the view of q.
func NewQuote(q rates.Quote) *Quote {
	v := &Quote{
		From:    string(q.From),
		To:      string(q.To),
		Rate:    formatRate(q.Rate),
		Derived: q.Derived,
	}
	if !q.Rate.IsZero() {
		v.Inverse = formatRate(q.Reverse().Rate)
	}
	if !q.UpdatedAt.IsZero() {
		v.UpdatedAt = q.UpdatedAt.UTC().Format(time.DateTime) + " UTC"
	}
	return v
}

// CurrencyInfo is the view of a catalog entry.
type CurrencyInfo struct {
	Code      string
	Family    string
	Name      string
	Precision int32
	Info      string
}

// NewCurrencies builds the view of the catalog.
func NewCurrencies(cs []vtrade.Currency) []CurrencyInfo {
	res := make([]CurrencyInfo, 0, len(cs))
	for _, c := range cs {
		res = append(res, CurrencyInfo{
			Code:      string(c.Code),
			Family:    c.Family.String(),
			Name:      c.Name,
			Precision: c.Family.Precision(),
			Info:      c.DisplayInfo(),
		})
	}
	return res
}

// format renders amount in code, or as a plain decimal for unknown codes.
func format(code vtrade.Code, amount decimal.Decimal) string {
	c, err := vtrade.Lookup(code)
	if err != nil {
		return amount.String() + " " + string(code)
	}
	return c.Format(amount)
}

// formatRate rounds r to 8 decimal places.
func formatRate(r decimal.Decimal) string {
	return r.Round(8).String()
}
