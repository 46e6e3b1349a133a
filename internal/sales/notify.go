package sales

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Outcome is the terminal result of an operation. Kind is empty on success.
type Outcome struct {
	Operation         string `json:"operation"`
	Kind              Kind   `json:"kind,omitempty"`
	TransactionID     int64  `json:"transaction_id,omitempty"`
	TransactionNumber string `json:"transaction_number,omitempty"`
	ProductID         int64  `json:"product_id,omitempty"`
	Compensated       bool   `json:"compensated,omitempty"`
}

func (o Outcome) Success() bool { return o.Kind == "" }

// Notifier is told about every terminal outcome.
type Notifier interface {
	Notify(ctx context.Context, o Outcome)
}

// ReceiptSink receives the projection of every committed sale.
type ReceiptSink interface {
	Receive(ctx context.Context, r Receipt) error
}

type NotifierFunc func(ctx context.Context, o Outcome)

func (f NotifierFunc) Notify(ctx context.Context, o Outcome) { f(ctx, o) }

// LogNotifier writes outcomes to the structured log.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, o Outcome) {
	fields := []zap.Field{
		zap.String("operation", o.Operation),
		zap.Int64("transaction_id", o.TransactionID),
		zap.String("transaction_number", o.TransactionNumber),
	}
	if o.Success() {
		n.Log.Info("sale outcome", fields...)
		return
	}
	fields = append(fields,
		zap.String("kind", string(o.Kind)),
		zap.Int64("product_id", o.ProductID),
		zap.Bool("compensated", o.Compensated),
	)
	n.Log.Warn("sale outcome", fields...)
}

func outcomeOf(op string, err error) Outcome {
	o := Outcome{Operation: op}
	var e *Error
	if errors.As(err, &e) {
		o.Kind = e.Kind
		o.ProductID = e.ProductID
		o.TransactionID = e.TransactionID
		o.Compensated = e.Compensated
	} else if err != nil {
		o.Kind = KindStoreUnavailable
	}
	return o
}
