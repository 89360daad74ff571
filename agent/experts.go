package agent

import (
	"context"
	"fmt"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/docs"
	"github.com/etnz/vtrade/rates"
	"github.com/etnz/vtrade/renderer"
	"google.golang.org/genai"
)

const model = "gemini-2.5-pro"

// Books gives read-only access to a user's portfolio and to the rates.
type Books struct {
	Username  string
	Portfolio func(ctx context.Context) (*vtrade.Portfolio, error)
	Rates     *rates.Provider
}

func instruction(s string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: s}}}
}

// creates the facilitator
func newFacilitator(experts ...*Expert) *Expert {
	return &Expert{
		Name:      "Facilitator",
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{FunctionDeclarations: NewDeclaration(experts)},
			},
			SystemInstruction: instruction(`
			As a facilitator you are in charge of the conversation and of solving the user's request.

			Learn about the experts' skills from the Tools and ask them questions.
			They are at your service and keep the context of your previous questions.

			The user holds a virtual portfolio of fiat and crypto currency wallets.
			They usually want to know what they hold, what it is worth, or how a rate moved.
			You cannot trade on their behalf: explain the buy and sell commands instead.

			Devise a plan of questions to each expert and come up with the best response.`),
		},
		Library: NewLibrary(experts),
	}
}

// NewTrader returns an expert of the currency markets, grounded with search.
func NewTrader() *Expert {
	return &Expert{
		Name: "Trader",
		Description: `This is an expert trader of fiat and crypto currencies,
		aware of the latest market news and of what moves exchange rates.
		Ask the Trader whenever you need recent or grounding information.`,
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
			SystemInstruction: instruction(`
			You are an expert currency trader. You search for anything related to
			central banks, fiat currencies, crypto currencies and their markets, and
			ground your assertions with Google Search.
			Relate the latest news to the user's request.`),
		},
	}
}

// NewAccountant returns the expert reading the user's portfolio and rates.
func NewAccountant(b *Books) *Expert {
	lib := []Function{ShowPortfolio(b), GetRate(b)}
	return &Expert{
		Name: "Accountant",
		Description: `This is the Accountant. It reads the user's portfolio: wallet balances,
		their value in any currency, and the exchange rates between currencies.`,
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{FunctionDeclarations: NewDeclaration(lib)},
			},
			SystemInstruction: instruction(fmt.Sprintf(`
				You are the accountant of %s's portfolio.
				Use the Tools to answer questions about wallets, their value and exchange rates.
				Pardon the approximate language of the other experts and figure out what they meant.

				Here is how trading works:

				%s`, b.Username, must(docs.GetTopic("trading")))),
		},
		Library: NewLibrary(lib),
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// ShowPortfolio declares the show_portfolio tool.
func ShowPortfolio(b *Books) *Func {
	const name = "show_portfolio"
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name:        name,
			Description: "Lists the wallets of the user's portfolio with their balance, rate and value, and the total value.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"currency": {
						Type:        genai.TypeString,
						Description: "Currency code to value the portfolio in, the base currency by default.",
						Enum:        codes(),
					},
				},
			},
			Response: &genai.Schema{
				Type:        genai.TypeString,
				Description: "A markdown table of the wallets followed by the total value.",
			},
		},
		Func: func(ctx context.Context, id string, args map[string]any) *genai.FunctionResponse {
			s, err := stringArg(args, "currency", false)
			if err != nil {
				return respond(id, name, "", err)
			}
			p, err := b.Portfolio(ctx)
			if err != nil {
				return respond(id, name, "", err)
			}
			target := p.Base()
			if s != "" {
				if target, err = vtrade.ParseCode(s); err != nil {
					return respond(id, name, "", err)
				}
			}
			vals, err := p.Valuations(ctx, target, b.Rates)
			if err != nil {
				return respond(id, name, "", err)
			}
			return respond(id, name, renderer.RenderPortfolio(renderer.NewPortfolio(b.Username, p, target, vals)), nil)
		},
	}
}

// GetRate declares the get_rate tool.
func GetRate(b *Books) *Func {
	const name = "get_rate"
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name:        name,
			Description: "Returns how many units of 'to' one unit of 'from' is worth, with the reverse rate and its update time.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"from": {Type: genai.TypeString, Description: "Currency code to convert from.", Enum: codes()},
					"to":   {Type: genai.TypeString, Description: "Currency code to convert to.", Enum: codes()},
				},
				Required: []string{"from", "to"},
			},
			Response: &genai.Schema{
				Type:        genai.TypeString,
				Description: "The rate in markdown.",
			},
		},
		Func: func(ctx context.Context, id string, args map[string]any) *genai.FunctionResponse {
			var pair [2]vtrade.Code
			for i, arg := range []string{"from", "to"} {
				s, err := stringArg(args, arg, true)
				if err != nil {
					return respond(id, name, "", err)
				}
				if pair[i], err = vtrade.ParseCode(s); err != nil {
					return respond(id, name, "", err)
				}
			}
			q, err := b.Rates.Quote(ctx, pair[0], pair[1])
			if err != nil {
				return respond(id, name, "", fmt.Errorf("rate not found: %w", err))
			}
			return respond(id, name, renderer.RenderQuote(renderer.NewQuote(q)), nil)
		},
	}
}

func codes() []string {
	var res []string
	for _, c := range vtrade.Codes() {
		res = append(res, string(c))
	}
	return res
}
