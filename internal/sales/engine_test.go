package sales_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/m/domain"
	"pharmapos/m/internal/cart"
	"pharmapos/m/internal/packaging"
	"pharmapos/m/internal/sales"
	"pharmapos/m/internal/store"
	"pharmapos/m/internal/store/memory"
)

var errInjected = errors.New("injected failure")

// faults fails the nth call of an operation, counted across the whole test.
type faults struct {
	mu     sync.Mutex
	counts map[string]int
	failAt map[string]int
}

func newFaults(failAt map[string]int) *faults {
	return &faults{counts: map[string]int{}, failAt: failAt}
}

func (f *faults) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[op]++
	if n, ok := f.failAt[op]; ok && f.counts[op] == n {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

// faultStore hides InTx, so the engine takes its compensation path.
type faultStore struct {
	store.Store
	f *faults
}

func (s faultStore) SetStock(ctx context.Context, id, expected, newTotal int64) (domain.Product, error) {
	if err := s.f.hit("SetStock"); err != nil {
		return domain.Product{}, err
	}
	return s.Store.SetStock(ctx, id, expected, newTotal)
}

func (s faultStore) CreateLineItem(ctx context.Context, li domain.SaleLineItem) (domain.SaleLineItem, error) {
	if err := s.f.hit("CreateLineItem"); err != nil {
		return domain.SaleLineItem{}, err
	}
	return s.Store.CreateLineItem(ctx, li)
}

func (s faultStore) LockTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error) {
	if err := s.f.hit("LockTransaction"); err != nil {
		return domain.SaleTransaction{}, err
	}
	return s.Store.LockTransaction(ctx, id)
}

func (s faultStore) AppendMovement(ctx context.Context, e domain.StockMovementEntry) (domain.StockMovementEntry, error) {
	if err := s.f.hit("AppendMovement"); err != nil {
		return domain.StockMovementEntry{}, err
	}
	return s.Store.AppendMovement(ctx, e)
}

// txFaultStore injects the same faults inside the memory store's unit of work.
type txFaultStore struct {
	faultStore
	inner *memory.Store
}

func (s txFaultStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return s.inner.InTx(ctx, func(tx store.Store) error {
		return fn(faultStore{Store: tx, f: s.f})
	})
}

type recorder struct {
	mu       sync.Mutex
	outcomes []sales.Outcome
	receipts []sales.Receipt
}

func (r *recorder) Notify(_ context.Context, o sales.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) Receive(_ context.Context, rc sales.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, rc)
	return nil
}

func stock(t *testing.T, s store.Store, name string, total int64, price float64) domain.Product {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, domain.Product{
		Name: name, PiecesPerSheet: 10, SheetsPerBox: 10,
		TotalStock: total, SellingPrice: price, CriticalLevel: 5, IsActive: true,
	})
	require.NoError(t, err)
	_, err = s.AppendMovement(ctx, domain.StockMovementEntry{
		ProductID: p.ID, MovementType: domain.MovementIn, QuantityChange: total,
		RemainingStock: total, ReferenceType: domain.RefInitialStock,
	})
	require.NoError(t, err)
	return p
}

func cartWith(t *testing.T, items ...any) *cart.Cart {
	t.Helper()
	c := cart.New()
	for i := 0; i < len(items); i += 2 {
		_, err := c.Add(items[i].(domain.Product), packaging.Quantity{Pieces: int64(items[i+1].(int))})
		require.NoError(t, err)
	}
	return c
}

func currentStock(t *testing.T, s store.Store, id int64) int64 {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.TotalStock
}

func movementsFor(t *testing.T, s store.Store, f domain.MovementFilter) []domain.StockMovementEntry {
	t.Helper()
	m, err := s.ListMovements(context.Background(), f)
	require.NoError(t, err)
	return m
}

func assertConserved(t *testing.T, s store.Store, productID int64) {
	t.Helper()
	entries := movementsFor(t, s, domain.MovementFilter{ProductID: productID})
	var sum int64
	for _, e := range entries {
		sum += e.QuantityChange
	}
	assert.Equal(t, currentStock(t, s, productID), sum, "ledger does not explain stock:\n%s", spew.Sdump(entries))
}

func TestCommit_HappyPath(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := &recorder{}
	e := sales.New(s, sales.WithNotifier(rec), sales.WithReceiptSink(rec),
		sales.WithReceiptProfile(sales.ReceiptProfile{StoreName: "Corner Pharmacy", Footer: "Thank you"}))
	p := stock(t, s, "Paracetamol 500mg", 50, 5.25)
	c := cartWith(t, p, 4)

	res, err := e.Commit(ctx, c, sales.Payment{Method: "cash"})
	require.NoError(t, err)

	assert.Equal(t, 21.00, res.Transaction.TotalAmount)
	assert.Equal(t, 21.00, res.Transaction.AmountPaid)
	assert.Equal(t, 0.0, res.Transaction.ChangeAmount)
	assert.Equal(t, domain.StatusCompleted, res.Transaction.Status)
	assert.Regexp(t, `^TXN-\d{8}-\d{6}\.\d{6}-[0-9A-F]{6}$`, res.Transaction.TransactionNumber)
	require.Len(t, res.LineItems, 1)
	assert.Equal(t, int64(4), res.LineItems[0].TotalPieces)
	assert.Equal(t, 21.00, res.LineItems[0].LineTotal)

	assert.Equal(t, int64(46), currentStock(t, s, p.ID))
	out := movementsFor(t, s, domain.MovementFilter{ReferenceType: domain.RefSale, ReferenceID: res.Transaction.ID})
	require.Len(t, out, 1)
	assert.Equal(t, domain.MovementOut, out[0].MovementType)
	assert.Equal(t, int64(-4), out[0].QuantityChange)
	assert.Equal(t, int64(46), out[0].RemainingStock)
	require.NotNil(t, out[0].LineItemID)
	assert.Equal(t, res.LineItems[0].ID, *out[0].LineItemID)

	assert.True(t, c.IsEmpty())
	assert.Equal(t, "Corner Pharmacy", res.Receipt.Header.StoreName)
	assert.Equal(t, "4 pieces", res.Receipt.Lines[0].Packaging)
	require.Len(t, rec.receipts, 1)
	require.Len(t, rec.outcomes, 1)
	assert.True(t, rec.outcomes[0].Success())
	assertConserved(t, s, p.ID)
}

func TestCommit_DiscountsAndChange(t *testing.T) {
	s := memory.New()
	e := sales.New(s)
	p := stock(t, s, "Amoxicillin", 200, 10)
	c := cartWith(t, p, 100)
	require.NoError(t, c.SetDiscountPercent(10))
	c.SetPwdSenior(true)

	res, err := e.Commit(context.Background(), c, sales.Payment{AmountPaid: 750, Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.Transaction.Subtotal)
	assert.Equal(t, 100.0, res.Transaction.DiscountAmount)
	assert.Equal(t, 200.0, res.Transaction.StatutoryDiscountAmount)
	assert.Equal(t, 700.0, res.Transaction.TotalAmount)
	assert.Equal(t, 50.0, res.Transaction.ChangeAmount)
	assert.Equal(t, int64(100), res.Receipt.Totals.ItemCount)
}

func TestCommit_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		e := sales.New(memory.New())
		_, err := e.Commit(ctx, cart.New(), sales.Payment{})
		assert.ErrorIs(t, err, sales.ErrEmptyCart)
	})

	t.Run("insufficient payment", func(t *testing.T) {
		s := memory.New()
		p := stock(t, s, "Ibuprofen", 50, 5.25)
		_, err := sales.New(s).Commit(ctx, cartWith(t, p, 4), sales.Payment{AmountPaid: 20})
		assert.ErrorIs(t, err, sales.ErrInsufficientPayment)
		assert.Equal(t, int64(50), currentStock(t, s, p.ID))
	})

	t.Run("stock sold elsewhere", func(t *testing.T) {
		s := memory.New()
		p := stock(t, s, "Loratadine", 10, 2)
		c := cartWith(t, p, 5)
		_, err := s.SetStock(ctx, p.ID, 10, 3)
		require.NoError(t, err)

		_, err = sales.New(s).Commit(ctx, c, sales.Payment{})
		require.ErrorIs(t, err, sales.ErrInsufficientStock)
		var se *sales.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, p.ID, se.ProductID)
		assert.False(t, se.Compensated)
		assert.Equal(t, int64(3), currentStock(t, s, p.ID))
		txns, err := s.ListTransactions(ctx, domain.TransactionFilter{})
		require.NoError(t, err)
		assert.Empty(t, txns)
		assert.False(t, c.IsEmpty())
	})

	t.Run("same product on the cart twice is summed", func(t *testing.T) {
		s := memory.New()
		p := stock(t, s, "Cetirizine", 10, 2)
		c := cartWith(t, p, 3, p, 3)
		_, err := s.SetStock(ctx, p.ID, 10, 5)
		require.NoError(t, err)
		_, err = sales.New(s).Commit(ctx, c, sales.Payment{})
		assert.ErrorIs(t, err, sales.ErrInsufficientStock)
	})

	t.Run("archived after it was added", func(t *testing.T) {
		s := memory.New()
		p := stock(t, s, "Mefenamic Acid", 10, 2)
		c := cartWith(t, p, 1)
		p.IsActive = false
		_, err := s.UpdateProduct(ctx, p)
		require.NoError(t, err)

		_, err = sales.New(s).Commit(ctx, c, sales.Payment{})
		assert.ErrorIs(t, err, sales.ErrProductArchived)
		assert.Equal(t, sales.KindProductArchived, sales.KindOf(err))
	})
}

func TestCommit_RetriesDuplicateNumbers(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := stock(t, s, "Salbutamol", 20, 1)
	numbers := []string{"TXN-A", "TXN-A", "TXN-B"}
	next := 0
	e := sales.New(s, sales.WithNumberGenerator(func(time.Time) string {
		n := numbers[next]
		next++
		return n
	}))

	first, err := e.Commit(ctx, cartWith(t, p, 1), sales.Payment{})
	require.NoError(t, err)
	second, err := e.Commit(ctx, cartWith(t, p, 1), sales.Payment{})
	require.NoError(t, err)

	assert.Equal(t, "TXN-A", first.Transaction.TransactionNumber)
	assert.Equal(t, "TXN-B", second.Transaction.TransactionNumber)
	assert.Equal(t, int64(18), currentStock(t, s, p.ID))
}

func TestCommit_NumberExhaustion(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := stock(t, s, "Salbutamol", 20, 1)
	e := sales.New(s,
		sales.WithNumberAttempts(3),
		sales.WithNumberGenerator(func(time.Time) string { return "TXN-SAME" }))

	_, err := e.Commit(ctx, cartWith(t, p, 1), sales.Payment{})
	require.NoError(t, err)

	_, err = e.Commit(ctx, cartWith(t, p, 2), sales.Payment{})
	assert.ErrorIs(t, err, sales.ErrTransactionNumberExhausted)
	assert.Equal(t, int64(19), currentStock(t, s, p.ID))
	assert.Len(t, movementsFor(t, s, domain.MovementFilter{ReferenceType: domain.RefSale}), 1)
}

func TestCommit_RollsBackInsideUnitOfWork(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	a := stock(t, inner, "Losartan", 10, 4)
	b := stock(t, inner, "Metformin", 10, 3)
	s := txFaultStore{faultStore: faultStore{Store: inner, f: newFaults(map[string]int{"AppendMovement": 2})}, inner: inner}
	rec := &recorder{}

	_, err := sales.New(s, sales.WithNotifier(rec)).Commit(ctx, cartWith(t, a, 2, b, 3), sales.Payment{})
	require.ErrorIs(t, err, sales.ErrStoreUnavailable)
	require.ErrorIs(t, err, errInjected)
	var se *sales.Error
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Compensated)
	assert.Zero(t, se.TransactionID)
	assert.Equal(t, b.ID, se.ProductID)

	assert.Equal(t, int64(10), currentStock(t, inner, a.ID))
	assert.Equal(t, int64(10), currentStock(t, inner, b.ID))
	txns, err := inner.ListTransactions(ctx, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Empty(t, movementsFor(t, inner, domain.MovementFilter{ReferenceType: domain.RefSale}))
	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, sales.KindStoreUnavailable, rec.outcomes[0].Kind)
	assert.True(t, rec.outcomes[0].Compensated)
}

func TestCommit_CompensatesWithoutUnitOfWork(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	a := stock(t, inner, "Losartan", 10, 4)
	b := stock(t, inner, "Metformin", 10, 3)

	tests := []struct {
		name   string
		failAt map[string]int
	}{
		{"ledger write of second line", map[string]int{"AppendMovement": 2}},
		{"stock write of second line", map[string]int{"SetStock": 2}},
		{"second line item", map[string]int{"CreateLineItem": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := faultStore{Store: inner, f: newFaults(tt.failAt)}
			c := cartWith(t, a, 2, b, 3)

			_, err := sales.New(s).Commit(ctx, c, sales.Payment{})
			require.ErrorIs(t, err, sales.ErrStoreUnavailable)
			var se *sales.Error
			require.ErrorAs(t, err, &se)
			assert.True(t, se.Compensated)
			require.NotZero(t, se.TransactionID)

			assert.Equal(t, int64(10), currentStock(t, inner, a.ID))
			assert.Equal(t, int64(10), currentStock(t, inner, b.ID))
			txn, err := inner.GetTransaction(ctx, se.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCancelled, txn.Status)
			assert.Equal(t, "commit compensation", txn.CancelReason)
			assertConserved(t, inner, a.ID)
			assertConserved(t, inner, b.ID)
			assert.False(t, c.IsEmpty())
		})
	}
}

func TestCancel_RestoresStock(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := stock(t, s, "Paracetamol 500mg", 50, 5.25)
	e := sales.New(s)

	res, err := e.Commit(ctx, cartWith(t, p, 4), sales.Payment{})
	require.NoError(t, err)

	cancelled, err := e.Cancel(ctx, res.Transaction.ID, "wrong item")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Transaction.Status)
	require.NotNil(t, cancelled.Transaction.CancelledAt)
	require.Len(t, cancelled.Restored, 1)
	assert.Equal(t, int64(50), cancelled.Restored[0].RemainingStock)
	assert.Equal(t, int64(50), currentStock(t, s, p.ID))

	byTxn := func(ref string) []domain.StockMovementEntry {
		return movementsFor(t, s, domain.MovementFilter{ReferenceType: ref, ReferenceID: res.Transaction.ID})
	}
	assert.Len(t, byTxn(domain.RefSale), 1)
	assert.Len(t, byTxn(domain.RefCancellation), 1)

	stored, err := s.GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, "wrong item", stored.CancelReason)

	_, err = e.Cancel(ctx, res.Transaction.ID, "again")
	assert.ErrorIs(t, err, sales.ErrAlreadyCancelled)
	assert.Equal(t, int64(50), currentStock(t, s, p.ID))
	assertConserved(t, s, p.ID)
}

func TestCancel_UnknownTransaction(t *testing.T) {
	_, err := sales.New(memory.New()).Cancel(context.Background(), 404, "x")
	assert.ErrorIs(t, err, sales.ErrNotFound)
}

func TestCancel_ResumesAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	a := stock(t, inner, "Losartan", 10, 4)
	b := stock(t, inner, "Metformin", 10, 3)
	// two stock writes for the commit, the fourth is the second cancelled line
	f := newFaults(map[string]int{"SetStock": 4})
	s := txFaultStore{faultStore: faultStore{Store: inner, f: f}, inner: inner}
	e := sales.New(s)

	res, err := e.Commit(ctx, cartWith(t, a, 2, b, 3), sales.Payment{})
	require.NoError(t, err)

	_, err = e.Cancel(ctx, res.Transaction.ID, "customer returned")
	require.ErrorIs(t, err, sales.ErrStoreUnavailable)
	var se *sales.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, b.ID, se.ProductID)
	assert.Equal(t, res.Transaction.ID, se.TransactionID)

	txn, err := inner.GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, txn.Status)
	assert.Equal(t, int64(10), currentStock(t, inner, a.ID))
	assert.Equal(t, int64(7), currentStock(t, inner, b.ID))

	again, err := e.Cancel(ctx, res.Transaction.ID, "customer returned")
	require.NoError(t, err)
	assert.Len(t, again.Restored, 1)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, int64(10), currentStock(t, inner, a.ID))
	assert.Equal(t, int64(10), currentStock(t, inner, b.ID))
	assertConserved(t, inner, a.ID)
	assertConserved(t, inner, b.ID)
}

func TestCancel_LockFailureLeavesSaleCompleted(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	p := stock(t, inner, "Amlodipine", 20, 2)
	s := txFaultStore{faultStore: faultStore{Store: inner, f: newFaults(map[string]int{"LockTransaction": 1})}, inner: inner}
	e := sales.New(s)

	res, err := e.Commit(ctx, cartWith(t, p, 5), sales.Payment{})
	require.NoError(t, err)

	_, err = e.Cancel(ctx, res.Transaction.ID, "wrong strength")
	require.ErrorIs(t, err, sales.ErrStoreUnavailable)
	assert.Equal(t, int64(15), currentStock(t, inner, p.ID))
	txn, err := inner.GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, txn.Status)

	again, err := e.Cancel(ctx, res.Transaction.ID, "wrong strength")
	require.NoError(t, err)
	assert.Len(t, again.Restored, 1)
	assert.Equal(t, int64(20), currentStock(t, inner, p.ID))
}

func TestCancel_ConcurrentCallsRestoreOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := stock(t, s, "Losartan", 30, 4)
	b := stock(t, s, "Metformin", 30, 3)
	e := sales.New(s)

	res, err := e.Commit(ctx, cartWith(t, a, 4, b, 6), sales.Payment{})
	require.NoError(t, err)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dupe int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Cancel(ctx, res.Transaction.ID, "duplicate click")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, sales.ErrAlreadyCancelled):
				dupe++
			default:
				t.Errorf("unexpected cancel error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, dupe)
	assert.Equal(t, int64(30), currentStock(t, s, a.ID))
	assert.Equal(t, int64(30), currentStock(t, s, b.ID))
	assert.Len(t, movementsFor(t, s, domain.MovementFilter{ReferenceType: domain.RefCancellation, ReferenceID: res.Transaction.ID}), 2)
	assertConserved(t, s, a.ID)
	assertConserved(t, s, b.ID)
}

func TestCommit_ConcurrentSalesNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := stock(t, s, "Omeprazole", 10, 7.5)
	e := sales.New(s)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, short int
		failures []error
	)
	for i := 0; i < 20; i++ {
		c := cartWith(t, p, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Commit(ctx, c, sales.Payment{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, sales.ErrInsufficientStock):
				short++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, short)
	assert.Equal(t, int64(0), currentStock(t, s, p.ID))
	assertConserved(t, s, p.ID)
}

func TestLedgerConservation_MixedHistory(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := stock(t, s, "Losartan", 100, 4)
	b := stock(t, s, "Metformin", 60, 3)
	e := sales.New(s)

	var ids []int64
	for i := 1; i <= 6; i++ {
		res, err := e.Commit(ctx, cartWith(t, a, i, b, 2*i), sales.Payment{})
		require.NoError(t, err)
		ids = append(ids, res.Transaction.ID)
	}
	for i, id := range ids {
		if i%2 == 0 {
			_, err := e.Cancel(ctx, id, "audit")
			require.NoError(t, err)
		}
	}

	assert.Equal(t, int64(100-(2+4+6)), currentStock(t, s, a.ID))
	assert.Equal(t, int64(60-(4+8+12)), currentStock(t, s, b.ID))
	assertConserved(t, s, a.ID)
	assertConserved(t, s, b.ID)
}
