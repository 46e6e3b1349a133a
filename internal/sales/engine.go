// Package sales turns a cart into a committed sale and reverses committed
// sales, keeping stock, line items and the stock ledger consistent.
package sales

import (
	"time"

	"go.uber.org/zap"

	"pharmapos/m/internal/store"
)

const (
	defaultNumberAttempts = 5
	defaultStockAttempts  = 3
)

// Engine is safe for concurrent use; it holds no per-sale state.
type Engine struct {
	store          store.Store
	log            *zap.Logger
	now            func() time.Time
	newNumber      func(time.Time) string
	numberAttempts int
	stockAttempts  int
	profile        ReceiptProfile
	notifier       Notifier
	receipts       ReceiptSink
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNumberGenerator replaces the transaction number generator.
func WithNumberGenerator(fn func(time.Time) string) Option {
	return func(e *Engine) { e.newNumber = fn }
}

// WithNumberAttempts bounds retries after a duplicate transaction number.
func WithNumberAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.numberAttempts = n
		}
	}
}

// WithStockAttempts bounds re-reads after a concurrent stock update.
func WithStockAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.stockAttempts = n
		}
	}
}

func WithReceiptProfile(p ReceiptProfile) Option {
	return func(e *Engine) { e.profile = p }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithReceiptSink(r ReceiptSink) Option {
	return func(e *Engine) { e.receipts = r }
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		log:            zap.NewNop(),
		now:            func() time.Time { return time.Now().UTC() },
		newNumber:      NewTransactionNumber,
		numberAttempts: defaultNumberAttempts,
		stockAttempts:  defaultStockAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = LogNotifier{Log: e.log}
	}
	return e
}
