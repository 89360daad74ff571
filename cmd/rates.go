package cmd

import (
	"context"
	"flag"
	"fmt"
	"sync"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/rates"
	"github.com/etnz/vtrade/renderer"
	"github.com/google/subcommands"
)

type getRateCmd struct {
	from, to codeFlag
}

func (*getRateCmd) Name() string     { return "get-rate" }
func (*getRateCmd) Synopsis() string { return "display the exchange rate between two currencies" }
func (*getRateCmd) Usage() string {
	return `vtrade get-rate -from <code> -to <code>

  Displays how many units of -to one unit of -from is worth, and the reverse
  rate. Rates are read from the rates file, see update-rates.
`
}

func (c *getRateCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.from, "from", "Currency to convert from")
	f.Var(&c.to, "to", "Currency to convert to")
}

func (c *getRateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.from.code == "" || c.to.code == "" || f.NArg() != 0 {
		fmt.Fprintln(stderr, "Error: get-rate expects -from and -to")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	file, err := rates.Load(cfg.RatesFile())
	if err != nil {
		fmt.Fprintf(stderr, "Error loading rates: %v\n", err)
		return subcommands.ExitFailure
	}
	q, err := rates.NewProvider(file, cfg.Rates.TTL).Quote(ctx, c.from.code, c.to.code)
	if err != nil {
		fmt.Fprintf(stderr, "Error: rate not found: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderQuote(renderer.NewQuote(q)))
	return subcommands.ExitSuccess
}

type currenciesCmd struct{}

func (*currenciesCmd) Name() string             { return "currencies" }
func (*currenciesCmd) Synopsis() string         { return "list supported currencies" }
func (*currenciesCmd) Usage() string            { return "vtrade currencies\n" }
func (*currenciesCmd) SetFlags(f *flag.FlagSet) {}

func (*currenciesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		fmt.Fprintln(stderr, "Error: no arguments expected")
		return subcommands.ExitUsageError
	}
	printMarkdown(renderer.RenderCurrencies(renderer.NewCurrencies(vtrade.Currencies())))
	return subcommands.ExitSuccess
}

type updateRatesCmd struct{}

func (*updateRatesCmd) Name() string { return "update-rates" }
func (*updateRatesCmd) Synopsis() string {
	return "refresh the rates file from CoinGecko and ExchangeRate-API"
}
func (*updateRatesCmd) Usage() string {
	return `vtrade update-rates

  Fetches crypto rates from CoinGecko and fiat rates from ExchangeRate-API
  (which needs EXCHANGERATE_API_KEY) and merges them into the rates file.
  Pairs of a failing source keep their previous value.
`
}
func (*updateRatesCmd) SetFlags(f *flag.FlagSet) {}

func (*updateRatesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		fmt.Fprintln(stderr, "Error: no arguments expected")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	rep, err := updater(cfg).Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error updating rates: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderUpdate(rep))
	return subcommands.ExitSuccess
}

type watchRatesCmd struct {
	schedule string
	now      bool
}

func (*watchRatesCmd) Name() string     { return "watch-rates" }
func (*watchRatesCmd) Synopsis() string { return "refresh the rates file on a schedule" }
func (*watchRatesCmd) Usage() string {
	return `vtrade watch-rates [-schedule <cron spec>] [-now]

  Runs update-rates on a cron schedule until interrupted. The schedule is a
  standard 5 fields cron spec, or a descriptor such as @hourly or @every 10m.
`
}

func (c *watchRatesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.schedule, "schedule", "", "Cron spec, overrides rates.schedule from the configuration")
	f.BoolVar(&c.now, "now", true, "Also update once at start")
}

func (c *watchRatesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		fmt.Fprintln(stderr, "Error: no arguments expected")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	spec := c.schedule
	if spec == "" {
		spec = cfg.Rates.Schedule
	}
	u := updater(cfg)

	// runs may overlap on short schedules
	var mu sync.Mutex
	report := func(rep rates.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			fmt.Fprintf(stderr, "Error updating rates: %v\n", err)
			return
		}
		printMarkdown(renderer.RenderUpdate(rep))
	}
	if c.now {
		report(u.Run(ctx))
	}
	fmt.Fprintf(stderr, "Watching rates on %q, interrupt to stop.\n", spec)
	if err := rates.Schedule(ctx, spec, u, report); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}
