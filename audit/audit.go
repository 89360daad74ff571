// Package audit records user actions as JSON lines, one record per action.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/etnz/vtrade"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Action is the kind of a recorded action.
type Action string

const (
	Register Action = "REGISTER"
	Login    Action = "LOGIN"
	Deposit  Action = "DEPOSIT"
	Buy      Action = "BUY"
	Sell     Action = "SELL"
)

// Event is one user action.
type Event struct {
	Action   Action
	Username string
	UserID   int
	Currency vtrade.Code
	Amount   decimal.Decimal
	Rate     decimal.Decimal
	Base     vtrade.Code
	Err      error
}

// Log writes audit records.
type Log struct {
	log   *zap.Logger
	newID func() string
}

// New returns a Log writing to l.
func New(l *zap.Logger) *Log {
	return &Log{log: l, newID: func() string { return uuid.NewString() }}
}

// Open returns a Log appending to the file at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create log dir: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("cannot open audit log: %w", err)
	}
	return New(l), nil
}

// Nop returns a Log discarding records.
func Nop() *Log { return New(zap.NewNop()) }

// Record writes e. Failed actions are logged at error level.
func (l *Log) Record(e Event) {
	fields := []zap.Field{
		zap.String("id", l.newID()),
		zap.String("action", string(e.Action)),
		zap.String("username", e.Username),
	}
	if e.UserID != 0 {
		fields = append(fields, zap.Int("user_id", e.UserID))
	}
	if e.Currency != "" {
		fields = append(fields, zap.String("currency", string(e.Currency)))
	}
	if !e.Amount.IsZero() {
		fields = append(fields, zap.String("amount", e.Amount.String()))
	}
	if !e.Rate.IsZero() {
		fields = append(fields, zap.String("rate", e.Rate.String()))
	}
	if e.Base != "" {
		fields = append(fields, zap.String("base", string(e.Base)))
	}
	if e.Err != nil {
		fields = append(fields, zap.String("result", "ERROR"), zap.String("error", e.Err.Error()))
		l.log.Error(strings.ToLower(string(e.Action)), fields...)
		return
	}
	fields = append(fields, zap.String("result", "OK"))
	l.log.Info(strings.ToLower(string(e.Action)), fields...)
}

// Trades returns an observer recording every trade of username.
func (l *Log) Trades(username string) vtrade.TradeObserver {
	return vtrade.ObserverFunc(func(_ context.Context, p *vtrade.Portfolio, req vtrade.TradeRequest, res vtrade.TradeResult, err error) {
		action := Buy
		if req.Direction == vtrade.Sell {
			action = Sell
		}
		e := Event{
			Action:   action,
			Username: username,
			UserID:   p.User(),
			Currency: req.Currency,
			Amount:   req.Amount,
			Rate:     res.Rate,
			Base:     p.Base(),
			Err:      err,
		}
		if err == nil {
			e.Amount = res.Amount
		}
		l.Record(e)
	})
}

// Close flushes buffered records.
func (l *Log) Close() error { return l.log.Sync() }
