package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/account"
	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"
)

// SQLite stores users and portfolios in a SQLite database.
type SQLite struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	registered_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS portfolios (
	user_id INTEGER PRIMARY KEY REFERENCES users(id),
	base_currency TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS wallets (
	user_id INTEGER NOT NULL REFERENCES portfolios(user_id),
	currency TEXT NOT NULL,
	balance TEXT NOT NULL,
	PRIMARY KEY (user_id, currency)
);
`

// OpenSQLite opens or creates the database at path, in WAL mode.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	// connection level pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

// immediate runs fn in a write transaction taken upfront, so that concurrent
// writers queue on the database lock instead of failing on upgrade.
func (s *SQLite) immediate(ctx context.Context, fn func(*sql.Conn) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
			return
		}
		if _, cerr := conn.ExecContext(ctx, "COMMIT"); cerr != nil {
			err = fmt.Errorf("cannot commit: %w", cerr)
		}
	}()
	return fn(conn)
}

// querier is implemented by *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AddUser implements account.Store.
func (s *SQLite) AddUser(ctx context.Context, u account.User) (account.User, error) {
	err := s.immediate(ctx, func(c *sql.Conn) error {
		var n int
		if err := c.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", u.Username).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %q", account.ErrUsernameTaken, u.Username)
		}
		res, err := c.ExecContext(ctx,
			"INSERT INTO users (username, password_hash, registered_at) VALUES (?, ?, ?)",
			u.Username, u.PasswordHash, u.RegisteredAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = int(id)
		return nil
	})
	if err != nil {
		return account.User{}, err
	}
	return u, nil
}

func scanUser(row *sql.Row) (account.User, error) {
	var u account.User
	var at string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &at); err != nil {
		return account.User{}, err
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return account.User{}, fmt.Errorf("invalid registration date %q: %w", at, err)
	}
	u.RegisteredAt = t
	return u, nil
}

// UserByName implements account.Store.
func (s *SQLite) UserByName(ctx context.Context, username string) (account.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT id, username, password_hash, registered_at FROM users WHERE username = ?", username))
	if errors.Is(err, sql.ErrNoRows) {
		return account.User{}, fmt.Errorf("%w: %q", account.ErrUserNotFound, username)
	}
	return u, err
}

// User implements Store.
func (s *SQLite) User(ctx context.Context, id int) (account.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT id, username, password_hash, registered_at FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return account.User{}, fmt.Errorf("%w: id %d", account.ErrUserNotFound, id)
	}
	return u, err
}

// Portfolio implements Store.
func (s *SQLite) Portfolio(ctx context.Context, user int) (*vtrade.Portfolio, error) {
	return loadPortfolio(ctx, s.db, user)
}

func loadPortfolio(ctx context.Context, q querier, user int) (*vtrade.Portfolio, error) {
	snap := vtrade.Snapshot{User: user, Wallets: make(map[vtrade.Code]decimal.Decimal)}
	err := q.QueryRowContext(ctx, "SELECT base_currency FROM portfolios WHERE user_id = ?", user).Scan(&snap.Base)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio of user %d: %w", user, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, "SELECT currency, balance FROM wallets WHERE user_id = ?", user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var code vtrade.Code
		var balance string
		if err := rows.Scan(&code, &balance); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("invalid %s balance %q: %w", code, balance, err)
		}
		snap.Wallets[code] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vtrade.FromSnapshot(snap)
}

func savePortfolio(ctx context.Context, q querier, p *vtrade.Portfolio) error {
	if _, err := q.ExecContext(ctx,
		"INSERT INTO portfolios (user_id, base_currency) VALUES (?, ?) ON CONFLICT(user_id) DO UPDATE SET base_currency=excluded.base_currency",
		p.User(), string(p.Base()),
	); err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM wallets WHERE user_id = ?", p.User()); err != nil {
		return fmt.Errorf("failed to save wallets: %w", err)
	}
	for _, b := range p.Balances() {
		f, err := b.Currency.Family()
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			"INSERT INTO wallets (user_id, currency, balance) VALUES (?, ?, ?)",
			p.User(), string(b.Currency), b.Amount.StringFixed(f.Precision()),
		); err != nil {
			return fmt.Errorf("failed to save wallet %s: %w", b.Currency, err)
		}
	}
	return nil
}

// SavePortfolio implements account.Store.
func (s *SQLite) SavePortfolio(ctx context.Context, p *vtrade.Portfolio) error {
	return s.immediate(ctx, func(c *sql.Conn) error { return savePortfolio(ctx, c, p) })
}

// UpdatePortfolio implements Store.
func (s *SQLite) UpdatePortfolio(ctx context.Context, user int, fn func(*vtrade.Portfolio) error) error {
	return s.immediate(ctx, func(c *sql.Conn) error {
		p, err := loadPortfolio(ctx, c, user)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		return savePortfolio(ctx, c, p)
	})
}
