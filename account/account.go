// Package account registers and authenticates the users owning portfolios.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/vtrade"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 4

var (
	ErrInvalidUsername    = errors.New("username must not be empty")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid password")
)

// User is a registered user. The password is only kept as a bcrypt hash.
type User struct {
	ID           int       `json:"user_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"hashed_password"`
	RegisteredAt time.Time `json:"registration_date"`
}

// Store persists users and their portfolios.
type Store interface {
	// AddUser stores u under a new id and returns it. It fails with
	// ErrUsernameTaken if the username exists.
	AddUser(ctx context.Context, u User) (User, error)
	// UserByName fails with ErrUserNotFound.
	UserByName(ctx context.Context, username string) (User, error)
	SavePortfolio(ctx context.Context, p *vtrade.Portfolio) error
}

// Service registers and logs users in.
type Service struct {
	store   Store
	base    vtrade.Code
	initial decimal.Decimal
	cost    int
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithInitialBalance deposits amount into the base wallet of new portfolios.
func WithInitialBalance(amount decimal.Decimal) Option {
	return func(s *Service) { s.initial = amount }
}

// WithCost sets the bcrypt cost.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService returns a service creating portfolios in base currency.
func NewService(store Store, base vtrade.Code, opts ...Option) *Service {
	s := &Service{store: store, base: base, cost: bcrypt.DefaultCost, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates a user and its portfolio.
func (s *Service) Register(ctx context.Context, username, password string) (User, *vtrade.Portfolio, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, nil, ErrInvalidUsername
	}
	if len([]rune(password)) < MinPasswordLength {
		return User{}, nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, nil, fmt.Errorf("cannot hash password: %w", err)
	}
	u, err := s.store.AddUser(ctx, User{
		Username:     username,
		PasswordHash: string(hash),
		RegisteredAt: s.now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return User{}, nil, err
	}

	p, err := vtrade.NewPortfolio(u.ID, s.base)
	if err != nil {
		return u, nil, err
	}
	if s.initial.IsPositive() {
		if err := p.Deposit(s.initial); err != nil {
			return u, nil, fmt.Errorf("cannot fund new portfolio: %w", err)
		}
	}
	if err := s.store.SavePortfolio(ctx, p); err != nil {
		return u, nil, err
	}
	return u, p, nil
}

// Login checks the password of username.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	u, err := s.store.UserByName(ctx, strings.TrimSpace(username))
	if err != nil {
		return User{}, err
	}
	if err := u.CheckPassword(password); err != nil {
		return User{}, err
	}
	return u, nil
}

// CheckPassword returns ErrInvalidCredentials unless password matches.
func (u User) CheckPassword(password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return err
}
