// Package ledger reads the stock movement log back.
package ledger

import (
	"context"
	"fmt"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

// Reconciliation compares a product's stock counter with its ledger.
type Reconciliation struct {
	ProductID    int64 `json:"product_id"`
	Stock        int64 `json:"stock"`
	LedgerTotal  int64 `json:"ledger_total"`
	Entries      int   `json:"entries"`
	Drift        int64 `json:"drift"`
	LastBalanced int64 `json:"last_balanced"`
	// Mismatch is the first entry whose remaining stock disagrees with the running sum.
	Mismatch *domain.StockMovementEntry `json:"mismatch,omitempty"`
}

func (r Reconciliation) Balanced() bool { return r.Drift == 0 && r.Mismatch == nil }

type source interface {
	store.Ledger
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// Reconcile sums every movement of a product and checks it against the counter.
func Reconcile(ctx context.Context, s source, productID int64) (Reconciliation, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Reconciliation{}, err
	}
	entries, err := s.ListMovements(ctx, domain.MovementFilter{ProductID: productID})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("list movements: %w", err)
	}

	r := Reconciliation{ProductID: productID, Stock: p.TotalStock, Entries: len(entries)}
	for i := range entries {
		r.LedgerTotal += entries[i].QuantityChange
		if r.Mismatch == nil && entries[i].RemainingStock != r.LedgerTotal {
			m := entries[i]
			r.Mismatch = &m
		}
		if r.Mismatch == nil {
			r.LastBalanced = entries[i].ID
		}
	}
	r.Drift = p.TotalStock - r.LedgerTotal
	return r, nil
}

// History lists a product's movements oldest first.
func History(ctx context.Context, l store.Ledger, productID int64) ([]domain.StockMovementEntry, error) {
	entries, err := l.ListMovements(ctx, domain.MovementFilter{ProductID: productID})
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return entries, nil
}
