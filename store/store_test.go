package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/account"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// backends returns a fresh store of every kind.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	res := make(map[string]Store)
	for _, kind := range []string{KindJSON, KindSQLite} {
		s, err := Open(kind, t.TempDir())
		if err != nil {
			t.Fatalf("Open(%s) error = %v", kind, err)
		}
		t.Cleanup(func() { s.Close() })
		res[kind] = s
	}
	return res
}

func addUser(t *testing.T, s Store, name string) account.User {
	t.Helper()
	u, err := s.AddUser(context.Background(), account.User{Username: name, PasswordHash: "hash", RegisteredAt: time.Date(2025, 10, 9, 12, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("AddUser(%s) error = %v", name, err)
	}
	return u
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	for kind, s := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			alice := addUser(t, s, "alice")
			bob := addUser(t, s, "bob")
			if alice.ID != 1 || bob.ID != 2 {
				t.Errorf("ids = %d, %d, want 1, 2", alice.ID, bob.ID)
			}
			if _, err := s.AddUser(ctx, account.User{Username: "alice"}); !errors.Is(err, account.ErrUsernameTaken) {
				t.Errorf("AddUser(alice) again error = %v, want %v", err, account.ErrUsernameTaken)
			}

			got, err := s.UserByName(ctx, "bob")
			if err != nil {
				t.Fatalf("UserByName() error = %v", err)
			}
			if got.ID != bob.ID || got.PasswordHash != "hash" || !got.RegisteredAt.Equal(bob.RegisteredAt) {
				t.Errorf("UserByName() = %+v, want %+v", got, bob)
			}
			if got, err := s.User(ctx, 1); err != nil || got.Username != "alice" {
				t.Errorf("User(1) = %+v, %v", got, err)
			}
			if _, err := s.UserByName(ctx, "carol"); !errors.Is(err, account.ErrUserNotFound) {
				t.Errorf("UserByName(carol) error = %v, want %v", err, account.ErrUserNotFound)
			}
			if _, err := s.User(ctx, 42); !errors.Is(err, account.ErrUserNotFound) {
				t.Errorf("User(42) error = %v, want %v", err, account.ErrUserNotFound)
			}
		})
	}
}

func TestStore_Portfolios(t *testing.T) {
	ctx := context.Background()
	for kind, s := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			u := addUser(t, s, "alice")
			if _, err := s.Portfolio(ctx, u.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Portfolio() before save error = %v, want %v", err, ErrNotFound)
			}

			p, _ := vtrade.NewPortfolio(u.ID, vtrade.EUR)
			p.Deposit(dec("891.30"))
			w, _ := p.Wallet(vtrade.BTC)
			w.Credit(dec("0.00012345"))
			if err := s.SavePortfolio(ctx, p); err != nil {
				t.Fatalf("SavePortfolio() error = %v", err)
			}

			got, err := s.Portfolio(ctx, u.ID)
			if err != nil {
				t.Fatalf("Portfolio() error = %v", err)
			}
			if !got.Snapshot().Equal(p.Snapshot()) {
				t.Errorf("Portfolio() = %v, want %v", got.Snapshot(), p.Snapshot())
			}

			// a failing update leaves the stored portfolio unchanged.
			boom := errors.New("boom")
			err = s.UpdatePortfolio(ctx, u.ID, func(p *vtrade.Portfolio) error {
				p.Deposit(dec("1"))
				return boom
			})
			if !errors.Is(err, boom) {
				t.Errorf("UpdatePortfolio() error = %v, want %v", err, boom)
			}
			got, _ = s.Portfolio(ctx, u.ID)
			if !got.Balance(vtrade.EUR).Equal(dec("891.30")) {
				t.Errorf("failed update saved balance %s", got.Balance(vtrade.EUR))
			}

			if err := s.UpdatePortfolio(ctx, u.ID, func(p *vtrade.Portfolio) error { return p.Deposit(dec("8.70")) }); err != nil {
				t.Fatalf("UpdatePortfolio() error = %v", err)
			}
			got, _ = s.Portfolio(ctx, u.ID)
			if !got.Balance(vtrade.EUR).Equal(dec("900")) {
				t.Errorf("balance after update = %s, want 900", got.Balance(vtrade.EUR))
			}

			if err := s.UpdatePortfolio(ctx, 99, func(*vtrade.Portfolio) error { return nil }); !errors.Is(err, ErrNotFound) {
				t.Errorf("UpdatePortfolio(99) error = %v, want %v", err, ErrNotFound)
			}
		})
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	for kind, s := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			u := addUser(t, s, "alice")
			p, _ := vtrade.NewPortfolio(u.ID, vtrade.USD)
			if err := s.SavePortfolio(ctx, p); err != nil {
				t.Fatal(err)
			}
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.UpdatePortfolio(ctx, u.ID, func(p *vtrade.Portfolio) error { return p.Deposit(dec("1.50")) })
					if err != nil {
						t.Errorf("UpdatePortfolio() error = %v", err)
					}
				}()
			}
			wg.Wait()
			got, _ := s.Portfolio(ctx, u.ID)
			if !got.Balance(vtrade.USD).Equal(dec("30")) {
				t.Errorf("balance = %s, want 30", got.Balance(vtrade.USD))
			}
		})
	}
}

// Handles opened on the same directory stand for separate processes.
func TestJSON_SharedDataDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var handles [2]*JSON
	for i := range handles {
		h, err := NewJSON(dir)
		if err != nil {
			t.Fatal(err)
		}
		defer h.Close()
		handles[i] = h
	}
	u := addUser(t, handles[0], "alice")
	p, _ := vtrade.NewPortfolio(u.ID, vtrade.USD)
	if err := handles[1].SavePortfolio(ctx, p); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(h *JSON) {
			defer wg.Done()
			if err := h.UpdatePortfolio(ctx, u.ID, func(p *vtrade.Portfolio) error { return p.Deposit(dec("1")) }); err != nil {
				t.Errorf("UpdatePortfolio() error = %v", err)
			}
		}(handles[i%2])
	}
	wg.Wait()

	got, err := handles[0].Portfolio(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance(vtrade.USD).Equal(dec("50")) {
		t.Errorf("balance after 50 deposits of 1 = %s, want 50", got.Balance(vtrade.USD))
	}
}

func TestJSON_LockCanceled(t *testing.T) {
	dir := t.TempDir()
	a, err := NewJSON(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewJSON(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	unlock, err := a.acquire(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Portfolio(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Portfolio() while locked error = %v, want %v", err, context.DeadlineExceeded)
	}
}

// Files written by earlier versions used floats for balances and had no base currency.
func TestJSON_LegacyFiles(t *testing.T) {
	dir := t.TempDir()
	legacy := `[
  {
    "user_id": 1,
    "wallets": {
      "USD": {"currency_code": "USD", "balance": 891.3000000000001},
      "EUR": {"currency_code": "EUR", "balance": 100.0}
    }
  }
]`
	if err := os.WriteFile(filepath.Join(dir, "portfolios.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewJSON(dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.Portfolio(context.Background(), 1)
	if err != nil {
		t.Fatalf("Portfolio() error = %v", err)
	}
	if p.Base() != vtrade.USD || !p.Balance(vtrade.USD).Equal(dec("891.30")) || !p.Balance(vtrade.EUR).Equal(dec("100")) {
		t.Errorf("Portfolio() = %s %v", p.Base(), p.Balances())
	}

	if err := s.SavePortfolio(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "portfolios.json"))
	if !strings.Contains(string(data), `"balance": "891.30"`) {
		t.Errorf("portfolios.json = %s, want decimal string balances", data)
	}
}

func TestOpen_Unknown(t *testing.T) {
	if _, err := Open("csv", t.TempDir()); err == nil {
		t.Error("Open(csv) succeeded")
	}
}
