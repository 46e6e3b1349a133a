package sales

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/cart"
	"pharmapos/m/internal/pricing"
	"pharmapos/m/internal/store"
)

// Payment is the tender captured at checkout. A zero AmountPaid means exact payment.
type Payment struct {
	AmountPaid   float64
	Method       string
	CustomerName string
	CashierID    *int64
}

// Result is everything a successful commit produced.
type Result struct {
	Transaction domain.SaleTransaction `json:"transaction"`
	LineItems   []domain.SaleLineItem  `json:"line_items"`
	Receipt     Receipt                `json:"receipt"`
}

type appliedLine struct {
	item        domain.SaleLineItem
	decremented bool
	logged      bool
}

// Commit validates the cart against live stock and writes the sale. Either
// every line is applied or the partial sale is undone before returning.
// Commit does not deduplicate resubmissions; callers must block them.
func (e *Engine) Commit(ctx context.Context, c *cart.Cart, pay Payment) (*Result, error) {
	res, err := e.commit(ctx, c, pay)
	if err != nil {
		e.notifier.Notify(ctx, outcomeOf("commit", err))
		return nil, err
	}
	e.notifier.Notify(ctx, Outcome{
		Operation:         "commit",
		TransactionID:     res.Transaction.ID,
		TransactionNumber: res.Transaction.TransactionNumber,
	})
	return res, nil
}

func (e *Engine) commit(ctx context.Context, c *cart.Cart, pay Payment) (*Result, error) {
	if c == nil || c.IsEmpty() {
		return nil, newError(KindEmptyCart, nil)
	}
	lines := c.Lines()
	for _, l := range lines {
		if l.TotalPieces <= 0 {
			return nil, &Error{Kind: KindInvalidQuantity, ProductID: l.ProductID}
		}
	}

	totals := c.Totals().Rounded()
	paid := pricing.Round2(pay.AmountPaid)
	if paid == 0 {
		paid = totals.Total
	}
	if paid < totals.Total {
		return nil, newError(KindInsufficientPayment, fmt.Errorf("paid %.2f of %.2f", paid, totals.Total))
	}

	if err := e.recheckStock(ctx, lines); err != nil {
		return nil, err
	}

	customer := c.Customer()
	if pay.CustomerName != "" {
		customer.Name = pay.CustomerName
	}
	header := domain.SaleTransaction{
		CashierID:               pay.CashierID,
		CustomerName:            customer.Name,
		PaymentMethod:           pay.Method,
		DiscountPercent:         c.DiscountPercent(),
		IsPwdSenior:             c.PwdSenior(),
		Subtotal:                totals.Subtotal,
		DiscountAmount:          totals.DiscountAmount,
		StatutoryDiscountAmount: totals.StatutoryDiscountAmount,
		TotalAmount:             totals.Total,
		AmountPaid:              paid,
		ChangeAmount:            pricing.Change(totals.Total, paid),
		Status:                  domain.StatusCompleted,
	}

	for attempt := 1; attempt <= e.numberAttempts; attempt++ {
		header.CreatedAt = e.now()
		header.TransactionNumber = e.newNumber(header.CreatedAt)

		res, err := e.write(ctx, header, lines)
		if errors.Is(err, store.ErrDuplicateNumber) {
			e.log.Warn("transaction number collision",
				zap.String("transaction_number", header.TransactionNumber),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		c.Clear()
		res.Receipt = BuildReceipt(e.profile, res.Transaction, res.LineItems, customer)
		if e.receipts != nil {
			if err := e.receipts.Receive(ctx, res.Receipt); err != nil {
				e.log.Warn("receipt delivery failed",
					zap.String("transaction_number", res.Transaction.TransactionNumber), zap.Error(err))
			}
		}
		e.log.Info("sale committed",
			zap.Int64("transaction_id", res.Transaction.ID),
			zap.String("transaction_number", res.Transaction.TransactionNumber),
			zap.Float64("total", res.Transaction.TotalAmount),
			zap.Int("lines", len(res.LineItems)))
		return res, nil
	}
	return nil, newError(KindTransactionNumberExhausted,
		fmt.Errorf("%d attempts produced duplicate numbers", e.numberAttempts))
}

// recheckStock compares every line with the live product row before any write.
func (e *Engine) recheckStock(ctx context.Context, lines []cart.Line) error {
	need := make(map[int64]int64, len(lines))
	var order []int64
	for _, l := range lines {
		if _, seen := need[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		need[l.ProductID] += l.TotalPieces
	}
	for _, id := range order {
		p, err := e.store.GetProduct(ctx, id)
		if err != nil {
			return withProduct(fromStore(err), id)
		}
		if !p.IsActive {
			return &Error{Kind: KindProductArchived, ProductID: id}
		}
		if need[id] > p.TotalStock {
			return &Error{
				Kind:      KindInsufficientStock,
				ProductID: id,
				Err:       fmt.Errorf("%s: need %d, have %d", p.Name, need[id], p.TotalStock),
			}
		}
	}
	return nil
}

func (e *Engine) write(ctx context.Context, header domain.SaleTransaction, lines []cart.Line) (*Result, error) {
	var (
		res     *Result
		applied []appliedLine
	)
	atomic, err := store.RunInTx(ctx, e.store, func(s store.Store) error {
		res = &Result{}
		applied = applied[:0]

		txn, err := s.CreateTransaction(ctx, header)
		if err != nil {
			return err
		}
		res.Transaction = txn

		for _, l := range lines {
			item, err := s.CreateLineItem(ctx, lineItemFor(txn.ID, l))
			if err != nil {
				return withProduct(fromStore(err), l.ProductID)
			}
			res.LineItems = append(res.LineItems, item)
			applied = append(applied, appliedLine{item: item})
			cur := &applied[len(applied)-1]

			after, err := e.adjustStock(ctx, s, l.ProductID, -l.TotalPieces)
			if err != nil {
				return err
			}
			cur.decremented = true

			ref, lineID := txn.ID, item.ID
			if _, err := s.AppendMovement(ctx, domain.StockMovementEntry{
				ProductID:      l.ProductID,
				MovementType:   domain.MovementOut,
				QuantityChange: -l.TotalPieces,
				RemainingStock: after.TotalStock,
				ReferenceType:  domain.RefSale,
				ReferenceID:    &ref,
				LineItemID:     &lineID,
				Note:           "sale " + txn.TransactionNumber,
			}); err != nil {
				return withProduct(fromStore(err), l.ProductID)
			}
			cur.logged = true
		}
		return nil
	})
	if err == nil {
		return res, nil
	}
	if res == nil || res.Transaction.ID == 0 {
		if errors.Is(err, store.ErrDuplicateNumber) {
			return nil, err
		}
		return nil, fromStore(err)
	}

	failure := fromStore(err)
	if atomic {
		failure.Compensated = true
		e.log.Warn("sale rolled back",
			zap.String("transaction_number", header.TransactionNumber), zap.Error(err))
		return nil, failure
	}

	failure.TransactionID = res.Transaction.ID
	if cerr := e.compensate(ctx, res.Transaction, applied); cerr != nil {
		e.log.Error("sale compensation failed; retry cancellation for this transaction",
			zap.Int64("transaction_id", res.Transaction.ID), zap.Error(cerr))
		failure.Err = errors.Join(failure.Err, fmt.Errorf("compensation: %w", cerr))
		return nil, failure
	}
	failure.Compensated = true
	return nil, failure
}

// compensate undoes a partially written sale on stores without transactions.
func (e *Engine) compensate(ctx context.Context, txn domain.SaleTransaction, applied []appliedLine) error {
	for _, a := range applied {
		if a.decremented && !a.logged {
			// no sale movement landed for this line, so restore it without a ledger pair
			if _, err := e.adjustStock(ctx, e.store, a.item.ProductID, a.item.TotalPieces); err != nil {
				return err
			}
		}
	}
	_, err := e.cancel(ctx, txn.ID, "commit compensation")
	return err
}

// adjustStock applies delta with compare-and-set, re-reading on conflicts.
func (e *Engine) adjustStock(ctx context.Context, s store.ProductStore, productID, delta int64) (domain.Product, error) {
	var lastErr error
	for i := 0; i < e.stockAttempts; i++ {
		p, err := s.GetProduct(ctx, productID)
		if err != nil {
			return domain.Product{}, withProduct(fromStore(err), productID)
		}
		next := p.TotalStock + delta
		if next < 0 {
			return domain.Product{}, &Error{
				Kind:      KindInsufficientStock,
				ProductID: productID,
				Err:       fmt.Errorf("%s: need %d, have %d", p.Name, -delta, p.TotalStock),
			}
		}
		updated, err := s.SetStock(ctx, productID, p.TotalStock, next)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, store.ErrStockConflict):
			lastErr = err
			e.log.Debug("stock changed underneath, re-reading", zap.Int64("product_id", productID))
		case errors.Is(err, store.ErrNegativeStock):
			return domain.Product{}, &Error{Kind: KindInsufficientStock, ProductID: productID, Err: err}
		default:
			return domain.Product{}, withProduct(fromStore(err), productID)
		}
	}
	return domain.Product{}, &Error{Kind: KindStoreUnavailable, ProductID: productID, Err: lastErr}
}

func lineItemFor(transactionID int64, l cart.Line) domain.SaleLineItem {
	return domain.SaleLineItem{
		TransactionID: transactionID,
		ProductID:     l.ProductID,
		ProductName:   l.ProductName,
		Boxes:         l.Quantity.Boxes,
		Sheets:        l.Quantity.Sheets,
		Pieces:        l.Quantity.Pieces,
		TotalPieces:   l.TotalPieces,
		UnitPrice:     l.UnitPrice,
		LineTotal:     pricing.LineTotal(l.UnitPrice, l.TotalPieces),
	}
}

func withProduct(e *Error, productID int64) *Error {
	if e.ProductID == 0 {
		e.ProductID = productID
	}
	return e
}
