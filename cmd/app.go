// Package cmd implements the vtrade CLI application.
package cmd

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/vtrade/account"
	"github.com/etnz/vtrade/audit"
	"github.com/etnz/vtrade/config"
	"github.com/etnz/vtrade/rates"
	"github.com/etnz/vtrade/store"
	"github.com/google/subcommands"
	"golang.org/x/term"
)

// Commands returns every subcommand by group.
func Commands() map[string][]subcommands.Command {
	return map[string][]subcommands.Command{
		"account": {
			&registerCmd{},
			&loginCmd{},
			&logoutCmd{},
			&whoamiCmd{},
		},
		"trading": {
			&showPortfolioCmd{},
			&depositCmd{},
			newTradeCmd("buy"),
			newTradeCmd("sell"),
		},
		"rates": {
			&getRateCmd{},
			&currenciesCmd{},
			&updateRatesCmd{},
			&watchRatesCmd{},
		},
		"help": {
			&topicCmd{},
			&assistCmd{},
		},
	}
}

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for group, cmds := range Commands() {
		for _, cmd := range cmds {
			c.Register(cmd, group)
		}
	}
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	configFile = flag.String("config", "", "Path to the YAML configuration file, "+config.DefaultFile+" is read if present")
	dataDir    = flag.String("data-dir", "", "Directory of users, portfolios and rates, overrides the configuration")
	rawOutput  = flag.Bool("raw", false, "Print plain markdown instead of styled terminal output")
	Verbose    = flag.Bool("v", false, "Log diagnostics to stderr")
)

// Standard streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

// SetupLogging routes diagnostics to stderr when -v is set and discards them
// otherwise.
func SetupLogging() {
	log.SetFlags(0)
	if *Verbose {
		log.SetOutput(stderr)
		return
	}
	log.SetOutput(io.Discard)
}

// loadConfig loads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	c, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	if *dataDir != "" {
		c.DataDir = *dataDir
	}
	return c, nil
}

// app holds the resources a command works with.
type app struct {
	cfg   *config.Config
	store store.Store
	audit *audit.Log
}

// openApp loads the configuration then opens the store and the audit log.
// Callers must Close it.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	s, err := store.Open(cfg.Storage, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a, err := audit.Open(cfg.AuditFile())
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Printf("using %s store in %s", cfg.Storage, cfg.DataDir)
	return &app{cfg: cfg, store: s, audit: a}, nil
}

func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.audit.Close())
}

func (a *app) accounts() *account.Service {
	return account.NewService(a.store, a.cfg.Base(), account.WithInitialBalance(a.cfg.Initial()))
}

// rates returns a provider over the rates file. Without a file every
// lookup fails, as with a file lacking the pair.
func (a *app) rates() (*rates.Provider, error) {
	f, err := rates.Load(a.cfg.RatesFile())
	if errors.Is(err, rates.ErrNoRates) {
		log.Printf("%v, run update-rates", err)
		f, err = rates.NewFile(), nil
	}
	if err != nil {
		return nil, err
	}
	return rates.NewProvider(f, a.cfg.Rates.TTL), nil
}

// updater returns an updater of the rates file from every configured source.
func updater(cfg *config.Config) *rates.Updater {
	client := rates.NewClient(cfg.Rates.Timeout, cfg.Rates.RequestsPerSecond)
	return &rates.Updater{
		Path: cfg.RatesFile(),
		Fetchers: []rates.Fetcher{
			&rates.CoinGecko{Client: client, URL: cfg.Rates.CoinGeckoURL},
			&rates.ExchangeRateAPI{Client: client, URL: cfg.Rates.ExchangeRateURL, Key: cfg.Rates.ExchangeRateKey},
		},
	}
}

// printMarkdown prints md styled for the terminal, or as is with -raw.
func printMarkdown(md string) {
	if !*rawOutput {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			if out, err := r.Render(md); err == nil {
				md = out
			}
		}
	}
	fmt.Fprint(stdout, md)
}

// readPassword returns flagValue if set, otherwise prompts for it. Terminal
// input is not echoed.
func readPassword(flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(stderr, prompt)
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("cannot read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
