package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/agent"
	"github.com/google/subcommands"
	"google.golang.org/genai"
)

type assistCmd struct{}

func (*assistCmd) Name() string { return "assist" }
func (*assistCmd) Synopsis() string {
	return "chat with an AI assistant about your portfolio and the markets"
}
func (*assistCmd) Usage() string {
	return `vtrade assist [<question>]

  Starts an interactive session with the Gemini assistant. It reads the logged
  in user's portfolio and the rates but never trades.
  Needs GEMINI_API_KEY (or GOOGLE_API_KEY) in the environment.
`
}
func (*assistCmd) SetFlags(_ *flag.FlagSet) {}

func (*assistCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		fmt.Fprintln(stderr, "Error initializing Gemini's client:", err)
		return subcommands.ExitFailure
	}

	books := &agent.Books{
		Username: u.Username,
		Portfolio: func(ctx context.Context) (*vtrade.Portfolio, error) {
			return a.store.Portfolio(ctx, u.ID)
		},
		Rates: provider,
	}
	assistant := agent.New(stdout, stdin, agent.NewTrader(), agent.NewAccountant(books))

	var prompts []string
	if f.NArg() > 0 {
		prompts = append(prompts, strings.Join(f.Args(), " "))
	}
	if err := assistant.Run(ctx, client, prompts...); err != nil {
		fmt.Fprintln(stderr, "Agent failed:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
