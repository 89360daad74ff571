package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/audit"
	"github.com/etnz/vtrade/renderer"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type showPortfolioCmd struct {
	base codeFlag
}

func (*showPortfolioCmd) Name() string     { return "show-portfolio" }
func (*showPortfolioCmd) Synopsis() string { return "display wallet balances and their value" }
func (*showPortfolioCmd) Usage() string {
	return `vtrade show-portfolio [-base <code>]

  Displays every wallet of the logged in user with its value in the base
  currency, or in the currency given by -base, and the total value.
  Wallets without a known rate are shown but left out of the total.
`
}

func (c *showPortfolioCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.base, "base", "Currency to value the portfolio in (default the portfolio base currency)")
}

func (c *showPortfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		fmt.Fprintln(stderr, "Error: no arguments expected")
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening data: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	u, err := a.currentUser(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	p, err := a.store.Portfolio(ctx, u.ID)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	provider, err := a.rates()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading rates: %v\n", err)
		return subcommands.ExitFailure
	}

	target := c.base.code
	if target == "" {
		target = p.Base()
	}
	vals, err := p.Valuations(ctx, target, provider)
	if err != nil {
		fmt.Fprintf(stderr, "Error valuing portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderPortfolio(renderer.NewPortfolio(u.Username, p, target, vals)))
	return subcommands.ExitSuccess
}

type depositCmd struct {
	amount amountFlag
}

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "credit funds to the base wallet" }
func (*depositCmd) Usage() string {
	return `vtrade deposit -amount <amount>

  Credits amount, in the base currency, to the logged in user's portfolio.
`
}

func (c *depositCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.amount, "amount", "Amount to deposit in the base currency")
}

func (c *depositCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.amount.set || f.NArg() != 0 {
		fmt.Fprintln(stderr, "Error: deposit expects -amount and no arguments")
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening data: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	u, err := a.currentUser(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	var base vtrade.Code
	var after string
	err = a.store.UpdatePortfolio(ctx, u.ID, func(p *vtrade.Portfolio) error {
		base = p.Base()
		if err := p.Deposit(c.amount.value); err != nil {
			return err
		}
		after = format(base, p.Balance(base))
		return nil
	})
	a.audit.Record(audit.Event{Action: audit.Deposit, Username: u.Username, UserID: u.ID, Currency: base, Amount: c.amount.value, Err: err})
	if err != nil {
		fmt.Fprintf(stderr, "Error depositing: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Deposited %s, %s balance is now %s.\n", format(base, c.amount.value), base, after)
	return subcommands.ExitSuccess
}

// tradeCmd implements both buy and sell.
type tradeCmd struct {
	direction vtrade.Direction
	currency  string // checked by the engine, so that unknown codes are audited
	amount    amountFlag
}

func newTradeCmd(direction string) *tradeCmd {
	return &tradeCmd{direction: vtrade.Direction(direction)}
}

func (c *tradeCmd) Name() string { return string(c.direction) }
func (c *tradeCmd) Synopsis() string {
	if c.direction == vtrade.Sell {
		return "sell a currency for the base currency"
	}
	return "buy a currency with the base currency"
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`vtrade %s -currency <code> -amount <amount>

  Exchanges amount units of currency against the base currency of the logged
  in user's portfolio, at the current rate.
`, c.direction)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "", "Currency to "+string(c.direction))
	f.Var(&c.amount, "amount", "Amount of currency to "+string(c.direction))
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	code := vtrade.Code(strings.ToUpper(strings.TrimSpace(c.currency)))
	if code == "" || !c.amount.set || f.NArg() != 0 {
		fmt.Fprintf(stderr, "Error: %s expects -currency and -amount\n", c.direction)
		return subcommands.ExitUsageError
	}
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening data: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	u, err := a.currentUser(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	provider, err := a.rates()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading rates: %v\n", err)
		return subcommands.ExitFailure
	}

	engine := vtrade.NewEngine(a.audit.Trades(u.Username))
	req := vtrade.TradeRequest{Direction: c.direction, Currency: code, Amount: c.amount.value}
	var res vtrade.TradeResult
	err = a.store.UpdatePortfolio(ctx, u.ID, func(p *vtrade.Portfolio) error {
		var err error
		res, err = engine.Execute(ctx, p, req, provider)
		return err
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderTrade(renderer.NewTrade(res)))
	return subcommands.ExitSuccess
}

// format renders amount in code.
func format(code vtrade.Code, amount decimal.Decimal) string {
	c, err := vtrade.Lookup(code)
	if err != nil {
		return amount.String() + " " + string(code)
	}
	return c.Format(amount)
}
