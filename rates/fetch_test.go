package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/vtrade"
)

func TestCoinGecko_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" || r.URL.Query().Get("vs_currencies") != "usd" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"bitcoin":{"usd":59337.21},"ethereum":{"usd":3720.004},"cardano":{"usd":0.4567}}`)
	}))
	defer srv.Close()

	g := &CoinGecko{Client: &Client{HTTP: srv.Client()}, URL: srv.URL}
	pairs, err := g.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := map[vtrade.Code]string{vtrade.BTC: "59337.21", vtrade.ETH: "3720.004", vtrade.ADA: "0.4567"}
	if len(pairs) != len(want) {
		t.Fatalf("Fetch() = %v, want %d pairs (LTC is missing)", pairs, len(want))
	}
	for _, p := range pairs {
		if p.To != vtrade.USD || !p.Rate.Equal(dec(want[p.From])) {
			t.Errorf("Fetch() pair %s_%s = %s, want %s", p.From, p.To, p.Rate, want[p.From])
		}
	}
}

func TestExchangeRateAPI_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/secret/latest/USD":
			fmt.Fprint(w, `{"result":"success","base_code":"USD","conversion_rates":{"USD":1,"EUR":0.9271,"GBP":0.7612,"RUB":98.42,"JPY":149.3}}`)
		default:
			fmt.Fprint(w, `{"result":"error","error-type":"invalid-key"}`)
		}
	}))
	defer srv.Close()

	x := &ExchangeRateAPI{Client: &Client{HTTP: srv.Client()}, URL: srv.URL, Key: "secret"}
	pairs, err := x.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("Fetch() = %v, want EUR, GBP, JPY and RUB", pairs)
	}
	for _, p := range pairs {
		if f, _ := p.To.Family(); p.From != vtrade.USD || f != vtrade.Fiat {
			t.Errorf("Fetch() pair %s_%s, want USD_<fiat>", p.From, p.To)
		}
	}

	x.Key = "wrong"
	if _, err := x.Fetch(context.Background()); err == nil {
		t.Error("Fetch() with an invalid key succeeded")
	}
	x.Key = ""
	if _, err := x.Fetch(context.Background()); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Fetch() without key error = %v, want %v", err, ErrNoAPIKey)
	}
}

func TestClient_Retry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky":
			if calls.Add(1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"ok":1}`)
		case "/denied":
			calls.Add(1)
			http.Error(w, "denied", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), Backoff: time.Millisecond}
	ctx := context.Background()

	if _, err := c.getJSON(ctx, srv.URL+"/flaky"); err != nil {
		t.Errorf("getJSON(flaky) error = %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("getJSON(flaky) made %d calls, want 3", n)
	}

	calls.Store(0)
	if _, err := c.getJSON(ctx, srv.URL+"/denied"); err == nil {
		t.Error("getJSON(denied) succeeded")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("getJSON(denied) made %d calls, want 1", n)
	}
}

func TestRedact(t *testing.T) {
	got := redact("https://v6.exchangerate-api.com/v6/abcdef/latest/USD")
	if want := "https://v6.exchangerate-api.com/v6/***/latest/USD"; got != want {
		t.Errorf("redact() = %s, want %s", got, want)
	}
}

type fakeFetcher struct {
	name  string
	pairs []Pair
	err   error
}

func (f fakeFetcher) Name() string { return f.name }

func (f fakeFetcher) Fetch(context.Context) ([]Pair, error) { return f.pairs, f.err }

func TestUpdater_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	old := testFile()
	if err := old.Save(path); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 10, 10, 8, 0, 0, 0, time.UTC)
	u := &Updater{
		Path: path,
		Now:  func() time.Time { return now },
		Fetchers: []Fetcher{
			fakeFetcher{name: "crypto", pairs: []Pair{{From: vtrade.BTC, To: vtrade.USD, Rate: dec("60000")}}},
			fakeFetcher{name: "fiat", err: errors.New("offline")},
		},
	}
	rep, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Updated != 1 || len(rep.Failed) != 1 {
		t.Errorf("Run() = %+v, want 1 update and 1 failure", rep)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	btc, _ := f.Get(vtrade.BTC, vtrade.USD)
	if !btc.Rate.Equal(dec("60000")) || !btc.UpdatedAt.Equal(now) {
		t.Errorf("BTC_USD = %+v, want 60000 at %v", btc, now)
	}
	eur, _ := f.Get(vtrade.EUR, vtrade.USD)
	if !eur.Rate.Equal(dec("1.0786")) {
		t.Errorf("EUR_USD = %s, want previous 1.0786", eur.Rate)
	}
	if f.Source() != "crypto" || !f.LastRefresh().Equal(now) {
		t.Errorf("refresh = %q at %v", f.Source(), f.LastRefresh())
	}

	u.Fetchers = []Fetcher{fakeFetcher{name: "fiat", err: errors.New("offline")}}
	if _, err := u.Run(context.Background()); err == nil {
		t.Error("Run() with every source failing succeeded")
	}
}

func TestSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the scheduler")
	}
	path := filepath.Join(t.TempDir(), "rates.json")
	u := &Updater{Path: path, Fetchers: []Fetcher{
		fakeFetcher{name: "crypto", pairs: []Pair{{From: vtrade.BTC, To: vtrade.USD, Rate: dec("60000")}}},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs := make(chan error, 10)
	stopped := make(chan error)
	go func() {
		stopped <- Schedule(ctx, "@every 1s", u, func(_ Report, err error) { runs <- err })
	}()
	select {
	case err := <-runs:
		if err != nil {
			t.Errorf("scheduled run error = %v", err)
		}
	case <-ctx.Done():
		t.Error("no scheduled run")
	}
	cancel()
	if err := <-stopped; err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Load() after scheduled run error = %v", err)
	}

	if err := Schedule(context.Background(), "every now and then", u, nil); err == nil {
		t.Error("Schedule() accepted an invalid spec")
	}
}
