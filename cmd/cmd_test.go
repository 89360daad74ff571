package cmd

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/config"
	"github.com/etnz/vtrade/docs"
	"github.com/etnz/vtrade/rates"
	"github.com/etnz/vtrade/store"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// setup points the global flags to a fresh data dir and captures the output.
func setup(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	for _, k := range []string{config.EnvDataDir, config.EnvBaseCurrency, config.EnvStorage, config.EnvExchangeRateKey} {
		t.Setenv(k, "")
	}
	oldConfig, oldDataDir, oldRaw, oldVerbose := *configFile, *dataDir, *rawOutput, *Verbose
	oldOut, oldErr, oldIn := stdout, stderr, stdin
	t.Cleanup(func() {
		*configFile, *dataDir, *rawOutput, *Verbose = oldConfig, oldDataDir, oldRaw, oldVerbose
		stdout, stderr, stdin = oldOut, oldErr, oldIn
	})

	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	*configFile, *dataDir, *rawOutput, *Verbose = "", t.TempDir(), true, false
	stdout, stderr, stdin = out, errOut, strings.NewReader("")
	return out, errOut
}

// command returns a fresh instance of the named subcommand.
func command(name string) subcommands.Command {
	for _, cmds := range Commands() {
		for _, c := range cmds {
			if c.Name() == name {
				return c
			}
		}
	}
	return nil
}

// run executes a command line, without the program name.
func run(t *testing.T, args ...string) subcommands.ExitStatus {
	t.Helper()
	c := command(args[0])
	if c == nil {
		t.Fatalf("unknown command %q", args[0])
	}
	f := flag.NewFlagSet(args[0], flag.ContinueOnError)
	f.SetOutput(io.Discard)
	c.SetFlags(f)
	if err := f.Parse(args[1:]); err != nil {
		return subcommands.ExitUsageError
	}
	return c.Execute(context.Background(), f)
}

func saveRates(t *testing.T, pairs map[string]string) {
	t.Helper()
	f := rates.NewFile()
	for k, v := range pairs {
		from, to, _ := strings.Cut(k, "_")
		f.Set(vtrade.Code(from), vtrade.Code(to), decimal.RequireFromString(v), f.LastRefresh())
	}
	if err := f.Save(filepath.Join(*dataDir, "rates.json")); err != nil {
		t.Fatal(err)
	}
}

func TestSession(t *testing.T) {
	out, errOut := setup(t)

	steps := []struct {
		args []string
		want subcommands.ExitStatus
		out  string // in stdout
		err  string // in stderr
	}{
		{[]string{"whoami"}, subcommands.ExitFailure, "", "not logged in"},
		{[]string{"register", "-password", "secret", "alice"}, subcommands.ExitSuccess, "User alice registered with a USD portfolio.", ""},
		{[]string{"register", "-password", "secret", "alice"}, subcommands.ExitFailure, "", "username already taken"},
		{[]string{"register", "-password", "abc", "bob"}, subcommands.ExitFailure, "", "at least 4 characters"},
		{[]string{"register", "-password", "secret"}, subcommands.ExitUsageError, "", "exactly one username"},
		{[]string{"login", "-password", "wrong", "alice"}, subcommands.ExitFailure, "", "invalid password"},
		{[]string{"login", "-password", "secret", "carol"}, subcommands.ExitFailure, "", "user not found"},
		{[]string{"login", "-password", "secret", "alice"}, subcommands.ExitSuccess, "Logged in as alice.", ""},
		{[]string{"whoami"}, subcommands.ExitSuccess, "alice (user 1,", ""},
		{[]string{"logout"}, subcommands.ExitSuccess, "Logged out.", ""},
		{[]string{"logout"}, subcommands.ExitSuccess, "Logged out.", ""},
		{[]string{"whoami"}, subcommands.ExitFailure, "", "not logged in"},
	}
	for _, s := range steps {
		out.Reset()
		errOut.Reset()
		if got := run(t, s.args...); got != s.want {
			t.Fatalf("%v = %v, want %v\nstdout: %s\nstderr: %s", s.args, got, s.want, out, errOut)
		}
		if !strings.Contains(out.String(), s.out) || !strings.Contains(errOut.String(), s.err) {
			t.Errorf("%v\nstdout: %q, want %q\nstderr: %q, want %q", s.args, out, s.out, errOut, s.err)
		}
	}
}

func TestRegister_PromptsPassword(t *testing.T) {
	out, errOut := setup(t)
	stdin = strings.NewReader("s3cret\n")
	if got := run(t, "register", "alice"); got != subcommands.ExitSuccess {
		t.Fatalf("register = %v: %s", got, errOut)
	}
	stdin = strings.NewReader("s3cret")
	if got := run(t, "login", "alice"); got != subcommands.ExitSuccess {
		t.Fatalf("login = %v: %s", got, errOut)
	}
	if !strings.Contains(errOut.String(), "Password: ") || !strings.Contains(out.String(), "Logged in as alice.") {
		t.Errorf("stdout: %q\nstderr: %q", out, errOut)
	}
}

func TestTrading(t *testing.T) {
	out, errOut := setup(t)
	run(t, "register", "-password", "secret", "alice")
	run(t, "login", "-password", "secret", "alice")
	saveRates(t, map[string]string{"USD_EUR": "0.92", "BTC_USD": "60000"})

	steps := []struct {
		args []string
		want subcommands.ExitStatus
		out  []string // in stdout
		err  string   // in stderr
	}{
		{[]string{"deposit", "-amount", "1000"}, subcommands.ExitSuccess, []string{"Deposited $1,000.00, USD balance is now $1,000.00."}, ""},
		{[]string{"deposit", "-amount", "-5"}, subcommands.ExitFailure, nil, "invalid amount"},
		{[]string{"deposit"}, subcommands.ExitUsageError, nil, "expects -amount"},
		{[]string{"buy", "-currency", "eur", "-amount", "92"}, subcommands.ExitSuccess, []string{"# Bought EUR", "Cost: $100.00", "1 USD = 0.92 EUR"}, ""},
		{[]string{"sell", "-currency", "EUR", "-amount", "100"}, subcommands.ExitFailure, nil, "insufficient funds"},
		{[]string{"sell", "-currency", "EUR", "-amount", "46"}, subcommands.ExitSuccess, []string{"# Sold EUR", "Proceeds: $50.00"}, ""},
		{[]string{"buy", "-currency", "JPY", "-amount", "100"}, subcommands.ExitFailure, nil, "rate unavailable"},
		{[]string{"buy", "-currency", "USD", "-amount", "1"}, subcommands.ExitFailure, nil, "against itself"},
		{[]string{"buy", "-currency", "xyz", "-amount", "1"}, subcommands.ExitFailure, nil, "unknown currency"},
		{[]string{"buy", "-currency", "EUR", "-amount", "1e1000000000"}, subcommands.ExitUsageError, nil, ""},
		{[]string{"buy", "-amount", "1"}, subcommands.ExitUsageError, nil, "expects -currency and -amount"},
		{[]string{"show-portfolio"}, subcommands.ExitSuccess, []string{"# Portfolio of alice", "| EUR | €46.00 | 1.08695652 | $50.00 |", "**Total: $1,000.00**"}, ""},
		{[]string{"show-portfolio", "-base", "EUR"}, subcommands.ExitSuccess, []string{"valued in **EUR**", "| USD | $950.00 | 0.92 | €874.00 |", "**Total: €920.00**"}, ""},
	}
	for _, s := range steps {
		out.Reset()
		errOut.Reset()
		if got := run(t, s.args...); got != s.want {
			t.Fatalf("%v = %v, want %v\nstdout: %s\nstderr: %s", s.args, got, s.want, out, errOut)
		}
		for _, w := range s.out {
			if !strings.Contains(out.String(), w) {
				t.Errorf("%v stdout does not contain %q:\n%s", s.args, w, out)
			}
		}
		if !strings.Contains(errOut.String(), s.err) {
			t.Errorf("%v stderr = %q, want %q", s.args, errOut, s.err)
		}
	}

	s, err := store.Open(store.KindJSON, *dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	p, err := s.Portfolio(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Balance(vtrade.USD).Equal(decimal.NewFromInt(950)) || !p.Balance(vtrade.EUR).Equal(decimal.NewFromInt(46)) {
		t.Errorf("saved balances = %v", p.Balances())
	}

	actions, err := os.ReadFile(filepath.Join(*dataDir, "logs", "actions.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"action":"REGISTER"`, `"action":"LOGIN"`, `"action":"DEPOSIT"`, `"action":"BUY"`, `"action":"SELL"`, `"result":"ERROR"`, `"currency":"XYZ"`} {
		if !bytes.Contains(actions, []byte(want)) {
			t.Errorf("actions.log does not contain %s:\n%s", want, actions)
		}
	}
}

func TestTrading_NotLoggedIn(t *testing.T) {
	_, errOut := setup(t)
	for _, args := range [][]string{
		{"show-portfolio"},
		{"deposit", "-amount", "1"},
		{"buy", "-currency", "EUR", "-amount", "1"},
	} {
		errOut.Reset()
		if got := run(t, args...); got != subcommands.ExitFailure || !strings.Contains(errOut.String(), "not logged in") {
			t.Errorf("%v = %v, %q", args, got, errOut)
		}
	}
}

func TestShowPortfolio_MissingRates(t *testing.T) {
	out, errOut := setup(t)
	run(t, "register", "-password", "secret", "alice")
	run(t, "login", "-password", "secret", "alice")
	run(t, "deposit", "-amount", "10")
	saveRates(t, map[string]string{"USD_EUR": "0.92"})
	run(t, "buy", "-currency", "EUR", "-amount", "4.60")
	os.Remove(filepath.Join(*dataDir, "rates.json"))

	out.Reset()
	if got := run(t, "show-portfolio"); got != subcommands.ExitSuccess {
		t.Fatalf("show-portfolio = %v: %s", got, errOut)
	}
	for _, want := range []string{"| EUR | €4.60 | n/a | rate not found |", "**Total: $5.00**", "1 wallet(s) left out"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("show-portfolio does not contain %q:\n%s", want, out)
		}
	}
}

func TestRates(t *testing.T) {
	out, errOut := setup(t)

	if got := run(t, "get-rate", "-from", "EUR", "-to", "USD"); got != subcommands.ExitFailure || !strings.Contains(errOut.String(), "no rates file") {
		t.Errorf("get-rate without rates = %v, %q", got, errOut)
	}
	saveRates(t, map[string]string{"USD_EUR": "0.92", "BTC_USD": "60000"})

	tests := []struct {
		args []string
		want subcommands.ExitStatus
		out  string
		err  string
	}{
		{[]string{"get-rate", "-from", "EUR", "-to", "USD"}, subcommands.ExitSuccess, "1 EUR = **1.08695652** USD (derived)", ""},
		{[]string{"get-rate", "-from", "usd", "-to", "eur"}, subcommands.ExitSuccess, "1 USD = **0.92** EUR\n", ""},
		{[]string{"get-rate", "-from", "BTC", "-to", "EUR"}, subcommands.ExitSuccess, "1 BTC = **55200** EUR (derived)", ""},
		{[]string{"get-rate", "-from", "JPY", "-to", "EUR"}, subcommands.ExitFailure, "", "rate not found"},
		{[]string{"get-rate", "-from", "EUR"}, subcommands.ExitUsageError, "", "expects -from and -to"},
		{[]string{"currencies"}, subcommands.ExitSuccess, "| ADA | crypto | 8 |", ""},
	}
	for _, tt := range tests {
		out.Reset()
		errOut.Reset()
		if got := run(t, tt.args...); got != tt.want {
			t.Fatalf("%v = %v, want %v\nstderr: %s", tt.args, got, tt.want, errOut)
		}
		if !strings.Contains(out.String(), tt.out) || !strings.Contains(errOut.String(), tt.err) {
			t.Errorf("%v\nstdout: %q, want %q\nstderr: %q, want %q", tt.args, out, tt.out, errOut, tt.err)
		}
	}
}

func TestUpdateRates(t *testing.T) {
	out, errOut := setup(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple/price":
			fmt.Fprint(w, `{"bitcoin": {"usd": 60000}}`)
		case "/k/latest/USD":
			fmt.Fprint(w, `{"result": "success", "conversion_rates": {"USD": 1, "EUR": 0.92}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	*configFile = filepath.Join(t.TempDir(), "vtrade.yaml")
	yaml := fmt.Sprintf("rates:\n  coingecko_url: %s\n  exchangerate_url: %s\n  exchangerate_key: k\n  requests_per_second: 0\n", srv.URL, srv.URL)
	if err := os.WriteFile(*configFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := run(t, "update-rates"); got != subcommands.ExitSuccess {
		t.Fatalf("update-rates = %v: %s", got, errOut)
	}
	if !strings.Contains(out.String(), "Updated 2 pair(s)") || !strings.Contains(out.String(), "from CoinGecko, ExchangeRate-API.") {
		t.Errorf("update-rates output = %q", out)
	}

	f, err := rates.Load(filepath.Join(*dataDir, "rates.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(f.Pairs(), ","); got != "BTC_USD,USD_EUR" {
		t.Errorf("rates pairs = %s", got)
	}

	out.Reset()
	if got := run(t, "update-rates", "extra"); got != subcommands.ExitUsageError {
		t.Errorf("update-rates extra = %v", got)
	}
}

func TestWatchRates_InvalidSchedule(t *testing.T) {
	_, errOut := setup(t)
	if got := run(t, "watch-rates", "-now=false", "-schedule", "every tuesday"); got != subcommands.ExitUsageError {
		t.Errorf("watch-rates = %v: %s", got, errOut)
	}
	if !strings.Contains(errOut.String(), "invalid schedule") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestTopic(t *testing.T) {
	out, errOut := setup(t)
	if got := run(t, "topic"); got != subcommands.ExitSuccess || !strings.Contains(out.String(), "vtrade") {
		t.Errorf("topic = %v: %q", got, out)
	}
	if got := run(t, "topic", "nope"); got != subcommands.ExitFailure || !strings.Contains(errOut.String(), "not found") {
		t.Errorf("topic nope = %v: %q", got, errOut)
	}
}

// Command lines quoted in the documentation must parse.
func TestDocumentedExamples(t *testing.T) {
	examples, err := docs.Examples()
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) == 0 {
		t.Fatal("no documented example")
	}
	for _, ex := range examples {
		pos := fmt.Sprintf("%s.md:%d", ex.Topic, ex.Line)
		if len(ex.Args) == 0 {
			t.Errorf("%s: empty command line", pos)
			continue
		}
		c := command(ex.Args[0])
		if c == nil {
			t.Errorf("%s: unknown command %q", pos, ex.Args[0])
			continue
		}
		f := flag.NewFlagSet(ex.Args[0], flag.ContinueOnError)
		f.SetOutput(io.Discard)
		c.SetFlags(f)
		if err := f.Parse(ex.Args[1:]); err != nil {
			t.Errorf("%s: %v: %v", pos, ex.Args, err)
		}
	}
}
