// Package renderer turns portfolios, trades and rates into markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

// Templates are named after the view they render. A partial is prefixed with
// the name of the assembly that includes it, followed by an underscore.
//
//go:embed *.md
var templates embed.FS

// RenderPortfolio renders a valued portfolio.
func RenderPortfolio(p *Portfolio) string {
	partials := map[string]string{
		"portfolio_title":   "portfolio_title.md",
		"portfolio_wallets": "portfolio_wallets.md",
		"portfolio_total":   "portfolio_total.md",
	}
	if len(p.Rows) == 0 {
		partials["portfolio_wallets"] = "portfolio_empty.md"
	}
	return renderTemplate("portfolio", "portfolio.md", partials, p)
}

// RenderTrade renders an executed trade.
func RenderTrade(t *Trade) string {
	partials := map[string]string{
		"trade_summary": "trade_summary.md",
		"trade_changes": "trade_changes.md",
	}
	return renderTemplate("trade", "trade.md", partials, t)
}

// RenderQuote renders a single exchange rate.
func RenderQuote(q *Quote) string {
	return renderTemplate("quote", "quote.md", nil, q)
}

// RenderCurrencies renders the currency catalog.
func RenderCurrencies(cs []CurrencyInfo) string {
	return renderTemplate("currencies", "currencies.md", nil, cs)
}

// renderTemplate renders mainFile with its partials bound to their alias.
// Failures are rendered in place of the output.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		// An empty file name is an empty template.
		if file != "" {
			content, err = fs.ReadFile(templates, file)
			if err != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, err)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
