package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/etnz/vtrade"
	"github.com/etnz/vtrade/account"
	"github.com/gofrs/flock"
)

// JSON stores users in users.json and portfolios in portfolios.json.
//
// Files are read on every call and replaced atomically on every write.
// Every call holds the lock file .lock of the data directory, exclusive for
// read-modify-write cycles, so that several processes can share it.
type JSON struct {
	dir  string
	mu   sync.Mutex // serializes the goroutines sharing the lock file
	lock *flock.Flock
}

// lockRetry is the polling interval while another process holds the lock.
const lockRetry = 10 * time.Millisecond

// NewJSON returns a store in dir, creating it if needed.
func NewJSON(dir string) (*JSON, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	return &JSON{dir: dir, lock: flock.New(filepath.Join(dir, ".lock"))}, nil
}

// acquire locks the data directory, shared for reads, and returns the
// function releasing it.
func (s *JSON) acquire(ctx context.Context, shared bool) (func(), error) {
	s.mu.Lock()
	try := s.lock.TryLockContext
	if shared {
		try = s.lock.TryRLockContext
	}
	ok, err := try(ctx, lockRetry)
	if err == nil && !ok {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot lock %s: %w", s.dir, err)
	}
	return func() {
		s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *JSON) usersFile() string      { return filepath.Join(s.dir, "users.json") }
func (s *JSON) portfoliosFile() string { return filepath.Join(s.dir, "portfolios.json") }

// AddUser implements account.Store. Ids are allocated sequentially from 1.
func (s *JSON) AddUser(ctx context.Context, u account.User) (account.User, error) {
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return account.User{}, err
	}
	defer unlock()
	users, err := s.users()
	if err != nil {
		return account.User{}, err
	}
	id := 0
	for _, x := range users {
		if x.Username == u.Username {
			return account.User{}, fmt.Errorf("%w: %q", account.ErrUsernameTaken, u.Username)
		}
		id = max(id, x.ID)
	}
	u.ID = id + 1
	users = append(users, u)
	if err := writeJSON(s.usersFile(), users); err != nil {
		return account.User{}, err
	}
	return u, nil
}

// UserByName implements account.Store.
func (s *JSON) UserByName(ctx context.Context, username string) (account.User, error) {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return account.User{}, err
	}
	defer unlock()
	users, err := s.users()
	if err != nil {
		return account.User{}, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return account.User{}, fmt.Errorf("%w: %q", account.ErrUserNotFound, username)
}

// User returns the user with id.
func (s *JSON) User(ctx context.Context, id int) (account.User, error) {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return account.User{}, err
	}
	defer unlock()
	users, err := s.users()
	if err != nil {
		return account.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return account.User{}, fmt.Errorf("%w: id %d", account.ErrUserNotFound, id)
}

// Portfolio returns the portfolio of user.
func (s *JSON) Portfolio(ctx context.Context, user int) (*vtrade.Portfolio, error) {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ps, err := s.portfolios()
	if err != nil {
		return nil, err
	}
	if i := find(ps, user); i >= 0 {
		return ps[i], nil
	}
	return nil, fmt.Errorf("portfolio of user %d: %w", user, ErrNotFound)
}

// SavePortfolio implements account.Store.
func (s *JSON) SavePortfolio(ctx context.Context, p *vtrade.Portfolio) error {
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()
	return s.save(p)
}

// UpdatePortfolio implements Store.
func (s *JSON) UpdatePortfolio(ctx context.Context, user int, fn func(*vtrade.Portfolio) error) error {
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()
	ps, err := s.portfolios()
	if err != nil {
		return err
	}
	i := find(ps, user)
	if i < 0 {
		return fmt.Errorf("portfolio of user %d: %w", user, ErrNotFound)
	}
	if err := fn(ps[i]); err != nil {
		return err
	}
	return writeJSON(s.portfoliosFile(), ps)
}

// Close implements Store.
func (s *JSON) Close() error { return s.lock.Close() }

func (s *JSON) save(p *vtrade.Portfolio) error {
	ps, err := s.portfolios()
	if err != nil {
		return err
	}
	if i := find(ps, p.User()); i >= 0 {
		ps[i] = p
	} else {
		ps = append(ps, p)
	}
	return writeJSON(s.portfoliosFile(), ps)
}

func (s *JSON) users() ([]account.User, error) {
	var users []account.User
	if err := readJSON(s.usersFile(), &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *JSON) portfolios() ([]*vtrade.Portfolio, error) {
	var ps []*vtrade.Portfolio
	if err := readJSON(s.portfoliosFile(), &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func find(ps []*vtrade.Portfolio, user int) int {
	return slices.IndexFunc(ps, func(p *vtrade.Portfolio) bool { return p.User() == user })
}

// readJSON decodes path into v. A missing or empty file leaves v unchanged.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path with v indented, through a temporary file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
