package sales

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

// CancelResult reports what a cancellation restored.
type CancelResult struct {
	Transaction domain.SaleTransaction      `json:"transaction"`
	Restored    []domain.StockMovementEntry `json:"restored"`
	// Skipped counts lines that were already restored or never decremented.
	Skipped int `json:"skipped"`
}

// Cancel restores stock for every line of a completed sale and marks it
// cancelled. A run that stops partway may be repeated; lines that already
// carry a cancellation movement are not restored twice.
func (e *Engine) Cancel(ctx context.Context, transactionID int64, reason string) (*CancelResult, error) {
	res, err := e.cancel(ctx, transactionID, reason)
	if err != nil {
		e.notifier.Notify(ctx, outcomeOf("cancel", err))
		return nil, err
	}
	e.notifier.Notify(ctx, Outcome{
		Operation:         "cancel",
		TransactionID:     res.Transaction.ID,
		TransactionNumber: res.Transaction.TransactionNumber,
	})
	return res, nil
}

func (e *Engine) cancel(ctx context.Context, id int64, reason string) (*CancelResult, error) {
	fail := func(err error, productID int64) error {
		f := withProduct(fromStore(err), productID)
		f.TransactionID = id
		return f
	}

	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fail(err, 0)
	}
	if txn.Status == domain.StatusCancelled {
		return nil, &Error{Kind: KindAlreadyCancelled, TransactionID: id}
	}
	items, err := e.store.GetLineItems(ctx, id)
	if err != nil {
		return nil, fail(err, 0)
	}
	sold, err := lineMarks(ctx, e.store, domain.RefSale, id)
	if err != nil {
		return nil, fail(err, 0)
	}
	restored, err := lineMarks(ctx, e.store, domain.RefCancellation, id)
	if err != nil {
		return nil, fail(err, 0)
	}

	out := &CancelResult{}
	for _, item := range items {
		if _, done := restored[item.ID]; done {
			out.Skipped++
			continue
		}
		if _, ok := sold[item.ID]; !ok {
			e.log.Debug("line was never decremented", zap.Int64("line_item_id", item.ID))
			out.Skipped++
			continue
		}

		entry, err := e.restoreLine(ctx, txn, item, reason)
		if errors.Is(err, ErrAlreadyCancelled) {
			return nil, &Error{Kind: KindAlreadyCancelled, TransactionID: id}
		}
		if err != nil {
			e.log.Error("cancellation stopped; transaction left completed",
				zap.Int64("transaction_id", id),
				zap.Int64("line_item_id", item.ID),
				zap.Error(err))
			return nil, fail(err, item.ProductID)
		}
		if entry.ID == 0 {
			out.Skipped++
			continue
		}
		out.Restored = append(out.Restored, entry)
	}

	at := e.now()
	_, err = store.RunInTx(ctx, e.store, func(s store.Store) error {
		locked, err := s.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status == domain.StatusCancelled {
			return &Error{Kind: KindAlreadyCancelled, TransactionID: id}
		}
		return s.UpdateTransactionStatus(ctx, id, domain.StatusCancelled, reason, at)
	})
	if errors.Is(err, ErrAlreadyCancelled) {
		return nil, &Error{Kind: KindAlreadyCancelled, TransactionID: id}
	}
	if err != nil {
		return nil, fail(err, 0)
	}
	txn.Status = domain.StatusCancelled
	txn.CancelReason = reason
	txn.CancelledAt = &at
	out.Transaction = txn

	e.log.Info("sale cancelled",
		zap.Int64("transaction_id", id),
		zap.String("transaction_number", txn.TransactionNumber),
		zap.Int("restored", len(out.Restored)),
		zap.String("reason", reason))
	return out, nil
}

// restoreLine returns a zero entry when another run restored the line first,
// and ErrAlreadyCancelled when another run finished the whole sale.
func (e *Engine) restoreLine(ctx context.Context, txn domain.SaleTransaction, item domain.SaleLineItem, reason string) (domain.StockMovementEntry, error) {
	var entry domain.StockMovementEntry
	_, err := store.RunInTx(ctx, e.store, func(s store.Store) error {
		entry = domain.StockMovementEntry{}
		// Concurrent cancels of the same sale queue here, so the re-check
		// below sees lines the other run restored.
		locked, err := s.LockTransaction(ctx, txn.ID)
		if err != nil {
			return err
		}
		if locked.Status == domain.StatusCancelled {
			return &Error{Kind: KindAlreadyCancelled, TransactionID: txn.ID}
		}
		marks, err := lineMarks(ctx, s, domain.RefCancellation, txn.ID)
		if err != nil {
			return err
		}
		if _, done := marks[item.ID]; done {
			return nil
		}
		after, err := e.adjustStock(ctx, s, item.ProductID, item.TotalPieces)
		if err != nil {
			return err
		}
		ref, lineID := txn.ID, item.ID
		entry, err = s.AppendMovement(ctx, domain.StockMovementEntry{
			ProductID:      item.ProductID,
			MovementType:   domain.MovementIn,
			QuantityChange: item.TotalPieces,
			RemainingStock: after.TotalStock,
			ReferenceType:  domain.RefCancellation,
			ReferenceID:    &ref,
			LineItemID:     &lineID,
			Note:           fmt.Sprintf("cancel %s: %s", txn.TransactionNumber, reason),
		})
		return err
	})
	return entry, err
}

// lineMarks collects the line item ids that carry a movement of refType for a transaction.
func lineMarks(ctx context.Context, l store.Ledger, refType string, transactionID int64) (map[int64]struct{}, error) {
	entries, err := l.ListMovements(ctx, domain.MovementFilter{ReferenceType: refType, ReferenceID: transactionID})
	if err != nil {
		return nil, err
	}
	marks := make(map[int64]struct{}, len(entries))
	for _, en := range entries {
		if en.LineItemID != nil {
			marks[*en.LineItemID] = struct{}{}
		}
	}
	return marks, nil
}
