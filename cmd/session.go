package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/vtrade/account"
	"github.com/etnz/vtrade/config"
)

var errNotLoggedIn = errors.New("not logged in, run login first")

// session is the logged in user, kept in the data dir between commands.
type session struct {
	UserID   int       `json:"user_id"`
	Username string    `json:"username"`
	LoginAt  time.Time `json:"login_at"`
}

func sessionFile(cfg *config.Config) string { return filepath.Join(cfg.DataDir, "session.json") }

func saveSession(cfg *config.Config, s session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(sessionFile(cfg), data, 0o600); err != nil {
		return fmt.Errorf("cannot save session: %w", err)
	}
	return nil
}

func loadSession(cfg *config.Config) (session, error) {
	var s session
	data, err := os.ReadFile(sessionFile(cfg))
	if errors.Is(err, fs.ErrNotExist) {
		return s, errNotLoggedIn
	}
	if err != nil {
		return s, fmt.Errorf("cannot read session: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("cannot parse session: %w", err)
	}
	return s, nil
}

// clearSession logs out. It is not an error to be logged out already.
func clearSession(cfg *config.Config) error {
	if err := os.Remove(sessionFile(cfg)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot remove session: %w", err)
	}
	return nil
}

// currentUser returns the logged in user. A session naming a user that no
// longer exists is not a session.
func (a *app) currentUser(ctx context.Context) (account.User, error) {
	s, err := loadSession(a.cfg)
	if err != nil {
		return account.User{}, err
	}
	u, err := a.store.User(ctx, s.UserID)
	if errors.Is(err, account.ErrUserNotFound) || (err == nil && u.Username != s.Username) {
		return account.User{}, errNotLoggedIn
	}
	return u, err
}
