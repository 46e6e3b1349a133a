package sales

import (
	"errors"
	"fmt"
	"strings"

	"pharmapos/m/internal/cart"
	"pharmapos/m/internal/store"
)

// Kind classifies an engine failure so callers can show an actionable message.
type Kind string

const (
	KindEmptyCart                  Kind = "EmptyCart"
	KindInvalidQuantity            Kind = "InvalidQuantity"
	KindInsufficientStock          Kind = "InsufficientStock"
	KindInsufficientPayment        Kind = "InsufficientPayment"
	KindProductArchived            Kind = "ProductArchived"
	KindTransactionNumberExhausted Kind = "TransactionNumberExhausted"
	KindNotFound                   Kind = "NotFound"
	KindAlreadyCancelled           Kind = "AlreadyCancelled"
	KindStoreUnavailable           Kind = "StoreUnavailable"
)

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrEmptyCart                  = &Error{Kind: KindEmptyCart}
	ErrInvalidQuantity            = &Error{Kind: KindInvalidQuantity}
	ErrInsufficientStock          = &Error{Kind: KindInsufficientStock}
	ErrInsufficientPayment        = &Error{Kind: KindInsufficientPayment}
	ErrProductArchived            = &Error{Kind: KindProductArchived}
	ErrTransactionNumberExhausted = &Error{Kind: KindTransactionNumberExhausted}
	ErrNotFound                   = &Error{Kind: KindNotFound}
	ErrAlreadyCancelled           = &Error{Kind: KindAlreadyCancelled}
	ErrStoreUnavailable           = &Error{Kind: KindStoreUnavailable}
)

// Error is the single terminal error returned by Commit and Cancel.
type Error struct {
	Kind          Kind
	ProductID     int64
	TransactionID int64
	// Compensated is set when writes had begun and were undone before returning.
	Compensated bool
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.ProductID != 0 {
		fmt.Fprintf(&b, " product=%d", e.ProductID)
	}
	if e.TransactionID != 0 {
		fmt.Fprintf(&b, " transaction=%d", e.TransactionID)
	}
	if e.Compensated {
		b.WriteString(" (compensated)")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind carried by err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// fromStore classifies a collaborator failure.
func fromStore(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, err)
	}
	return newError(KindStoreUnavailable, err)
}

// FromCartError maps a cart mutation failure onto an engine kind.
func FromCartError(err error, productID int64) *Error {
	var kind Kind
	switch {
	case errors.Is(err, cart.ErrInsufficientStock):
		kind = KindInsufficientStock
	case errors.Is(err, cart.ErrInactiveProduct):
		kind = KindProductArchived
	case errors.Is(err, cart.ErrLineNotFound):
		kind = KindNotFound
	default:
		kind = KindInvalidQuantity
	}
	return &Error{Kind: kind, ProductID: productID, Err: err}
}
