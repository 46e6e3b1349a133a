// Package store declares the persistence collaborators the sales engine
// talks to. Implementations live in the memory and sqlstore subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"pharmapos/m/domain"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrUnavailable     = errors.New("store unavailable")
	ErrDuplicateNumber = errors.New("transaction number already exists")
	ErrStockConflict   = errors.New("stock changed since it was read")
	ErrNegativeStock   = errors.New("stock cannot go below zero")
	ErrDuplicateEmail  = errors.New("email already registered")
)

// ProductStore owns product rows and their stock counters.
type ProductStore interface {
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	// SetStock writes newTotal only if the stored stock still equals expected.
	SetStock(ctx context.Context, id, expected, newTotal int64) (domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
}

// TransactionStore owns sale headers and their line items.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t domain.SaleTransaction) (domain.SaleTransaction, error)
	CreateLineItem(ctx context.Context, li domain.SaleLineItem) (domain.SaleLineItem, error)
	GetTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error)
	// LockTransaction reads the header and, inside a unit of work, holds it
	// against concurrent writers until the unit ends.
	LockTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error)
	GetTransactionByNumber(ctx context.Context, number string) (domain.SaleTransaction, error)
	GetLineItems(ctx context.Context, transactionID int64) ([]domain.SaleLineItem, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status, reason string, at time.Time) error
	ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.SaleTransaction, error)
}

// Ledger is the append-only stock movement log.
type Ledger interface {
	AppendMovement(ctx context.Context, e domain.StockMovementEntry) (domain.StockMovementEntry, error)
	ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovementEntry, error)
}

// UserStore owns staff accounts. Emails are stored lower-cased.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// Store bundles every collaborator.
type Store interface {
	ProductStore
	TransactionStore
	Ledger
}

// Transactor is implemented by stores that can apply several writes as one
// all-or-nothing unit. If fn returns an error nothing it wrote is kept.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// RunInTx uses the store's unit of work when it has one and reports whether it did.
func RunInTx(ctx context.Context, s Store, fn func(Store) error) (bool, error) {
	if tx, ok := s.(Transactor); ok {
		return true, tx.InTx(ctx, fn)
	}
	return false, fn(s)
}
