package rates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/vtrade"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Default API endpoints.
const (
	CoinGeckoURL    = "https://api.coingecko.com/api/v3"
	ExchangeRateURL = "https://v6.exchangerate-api.com/v6"
)

// ErrNoAPIKey is returned by fetchers that need a key when none is set.
var ErrNoAPIKey = errors.New("missing API key")

// Pair is a fetched rate: units of To per unit of From.
type Pair struct {
	From, To vtrade.Code
	Rate     decimal.Decimal
}

// Fetcher retrieves current rates from a remote source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]Pair, error)
}

// Client performs throttled and retried JSON GET requests.
// Its zero value uses http.DefaultClient, no throttling and 3 attempts.
type Client struct {
	HTTP     *http.Client
	Limiter  *rate.Limiter
	Attempts int           // total attempts, 3 if zero
	Backoff  time.Duration // delay before the first retry, doubled each time, 1s if zero
}

// NewClient returns a client with a timeout and allowing rps requests per second.
func NewClient(timeout time.Duration, rps float64) *Client {
	c := &Client{HTTP: &http.Client{Timeout: timeout}}
	if rps > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// statusError is a non 200 response.
type statusError struct {
	url    string
	status int
	text   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("cannot http GET %s: %s", e.url, e.text)
}

// retryable reports whether the request may succeed if tried again.
func (e *statusError) retryable() bool {
	return e.status >= 500 || e.status == http.StatusTooManyRequests
}

// getJSON fetches addr and decodes its JSON body, numbers kept as json.Number.
// Failures are retried with exponential backoff.
func (c *Client) getJSON(ctx context.Context, addr string) (any, error) {
	attempts, delay := c.Attempts, c.Backoff
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = time.Second
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			log.Printf("retrying %s in %s: %v", redact(addr), delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		obj, err := c.get(ctx, addr)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, addr string) (any, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: redact(addr), status: resp.StatusCode, text: resp.Status}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	var obj any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid json from %s: %w", redact(addr), err)
	}
	return obj, nil
}

// lookup extracts a positive decimal at path.
func lookup(obj any, path string) (decimal.Decimal, error) {
	v, err := jsonpath.Get(path, obj)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot read %q: %w", path, err)
	}
	// jsonpath may wrap a single answer in a list.
	if l, ok := v.([]any); ok && len(l) > 0 {
		v = l[0]
	}
	var d decimal.Decimal
	switch x := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case float64:
		d = decimal.NewFromFloat(x)
	case string:
		d, err = decimal.NewFromString(x)
	default:
		err = fmt.Errorf("not a number: %v", v)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot read %q: %w", path, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("cannot read %q: invalid rate %s", path, d)
	}
	return d, nil
}

// redact hides anything that looks like an exchangerate-api key in a URL.
func redact(addr string) string {
	i := strings.Index(addr, "/v6/")
	if i < 0 {
		return addr
	}
	rest := addr[i+len("/v6/"):]
	j := strings.Index(rest, "/")
	if j < 0 {
		return addr
	}
	return addr[:i+len("/v6/")] + "***" + rest[j:]
}

// coinGeckoIDs maps crypto codes to CoinGecko coin ids.
var coinGeckoIDs = map[vtrade.Code]string{
	vtrade.BTC: "bitcoin",
	vtrade.ETH: "ethereum",
	vtrade.LTC: "litecoin",
	vtrade.ADA: "cardano",
}

// CoinGecko fetches crypto prices in USD from the CoinGecko simple price API.
// Pairs are quoted as CODE_USD.
type CoinGecko struct {
	Client *Client
	URL    string // API root, CoinGeckoURL if empty
}

func (*CoinGecko) Name() string { return "CoinGecko" }

// Fetch implements Fetcher.
func (g *CoinGecko) Fetch(ctx context.Context) ([]Pair, error) {
	root := g.URL
	if root == "" {
		root = CoinGeckoURL
	}
	codes := cryptoCodes()
	ids := make([]string, 0, len(codes))
	for _, c := range codes {
		ids = append(ids, coinGeckoIDs[c])
	}
	addr := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", strings.TrimSuffix(root, "/"), strings.Join(ids, ","))
	obj, err := client(g.Client).getJSON(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.Name(), err)
	}
	pairs := make([]Pair, 0, len(codes))
	for _, c := range codes {
		r, err := lookup(obj, fmt.Sprintf("$.%s.usd", coinGeckoIDs[c]))
		if err != nil {
			log.Printf("%s: skipping %s: %v", g.Name(), c, err)
			continue
		}
		pairs = append(pairs, Pair{From: c, To: vtrade.USD, Rate: r})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%s: no rate in response", g.Name())
	}
	return pairs, nil
}

// cryptoCodes returns the catalog crypto codes that CoinGecko knows.
func cryptoCodes() []vtrade.Code {
	var res []vtrade.Code
	for _, c := range vtrade.Currencies() {
		if _, ok := coinGeckoIDs[c.Code]; ok && c.Family == vtrade.Crypto {
			res = append(res, c.Code)
		}
	}
	return res
}

// ExchangeRateAPI fetches fiat rates against USD from exchangerate-api.com.
// Pairs are quoted as USD_CODE.
type ExchangeRateAPI struct {
	Client *Client
	URL    string // API root, ExchangeRateURL if empty
	Key    string
}

func (*ExchangeRateAPI) Name() string { return "ExchangeRate-API" }

// Fetch implements Fetcher.
func (x *ExchangeRateAPI) Fetch(ctx context.Context) ([]Pair, error) {
	if x.Key == "" {
		return nil, fmt.Errorf("%s: %w", x.Name(), ErrNoAPIKey)
	}
	root := x.URL
	if root == "" {
		root = ExchangeRateURL
	}
	addr := fmt.Sprintf("%s/%s/latest/%s", strings.TrimSuffix(root, "/"), x.Key, vtrade.USD)
	obj, err := client(x.Client).getJSON(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", x.Name(), err)
	}
	if res, err := jsonpath.Get("$.result", obj); err != nil || res != "success" {
		kind, _ := jsonpath.Get(`$["error-type"]`, obj)
		return nil, fmt.Errorf("%s: request failed: %v", x.Name(), kind)
	}
	var pairs []Pair
	for _, c := range vtrade.Currencies() {
		if c.Code == vtrade.USD || c.Family != vtrade.Fiat {
			continue
		}
		r, err := lookup(obj, fmt.Sprintf("$.conversion_rates.%s", c.Code))
		if err != nil {
			log.Printf("%s: skipping %s: %v", x.Name(), c.Code, err)
			continue
		}
		pairs = append(pairs, Pair{From: vtrade.USD, To: c.Code, Rate: r})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%s: no rate in response", x.Name())
	}
	return pairs, nil
}

func client(c *Client) *Client {
	if c == nil {
		return &Client{}
	}
	return c
}
