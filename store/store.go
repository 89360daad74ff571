// Package store persists users and portfolios, either as JSON files or in a
// SQLite database.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/account"
)

// ErrNotFound is returned when a portfolio does not exist. Missing users are
// reported with account.ErrUserNotFound.
var ErrNotFound = errors.New("not found")

// Store is the persistence layer.
type Store interface {
	account.Store
	User(ctx context.Context, id int) (account.User, error)
	Portfolio(ctx context.Context, user int) (*vtrade.Portfolio, error)
	// UpdatePortfolio loads the user's portfolio, applies fn and saves the
	// result unless fn fails. Updates of the same store are serialized.
	UpdatePortfolio(ctx context.Context, user int, fn func(*vtrade.Portfolio) error) error
	Close() error
}

// Kinds of store.
const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
)

// Open opens the store of kind in dir.
func Open(kind, dir string) (Store, error) {
	switch kind {
	case KindJSON, "":
		return NewJSON(dir)
	case KindSQLite:
		return OpenSQLite(filepath.Join(dir, "vtrade.db"))
	default:
		return nil, fmt.Errorf("unknown storage %q, want %q or %q", kind, KindJSON, KindSQLite)
	}
}
