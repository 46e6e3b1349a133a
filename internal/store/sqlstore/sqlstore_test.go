package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/m/domain"
	"pharmapos/m/internal/database"
	"pharmapos/m/internal/migrations"
	"pharmapos/m/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	return New(db)
}

func seedProduct(t *testing.T, s *Store, stock int64) domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		Name: "Losartan 50mg", PiecesPerSheet: 10, SheetsPerBox: 3, TotalStock: stock,
		CostPrice: 4, SellingPrice: 6.5, CriticalLevel: 20, IsActive: true,
	})
	require.NoError(t, err)
	return p
}

func TestProductRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedProduct(t, s, 40)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Losartan 50mg", got.Name)
	assert.Equal(t, int64(40), got.TotalStock)
	assert.True(t, got.IsActive)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetProduct(ctx, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetStock_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedProduct(t, s, 40)

	got, err := s.SetStock(ctx, p.ID, 40, 36)
	require.NoError(t, err)
	assert.Equal(t, int64(36), got.TotalStock)

	_, err = s.SetStock(ctx, p.ID, 40, 30)
	assert.ErrorIs(t, err, store.ErrStockConflict)

	_, err = s.SetStock(ctx, p.ID, 36, -4)
	assert.ErrorIs(t, err, store.ErrNegativeStock)

	_, err = s.SetStock(ctx, 404, 0, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListProducts_HidesInactiveAndSearches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedProduct(t, s, 40)
	_, err := s.CreateProduct(ctx, domain.Product{Name: "Metformin", GenericName: "metformin hcl", PiecesPerSheet: 1, SheetsPerBox: 1, IsActive: true})
	require.NoError(t, err)

	p.IsActive = false
	_, err = s.UpdateProduct(ctx, p)
	require.NoError(t, err)

	active, err := s.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Metformin", active[0].Name)

	all, err := s.ListProducts(ctx, domain.ProductFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := s.ListProducts(ctx, domain.ProductFilter{Query: "HCL"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestTransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedProduct(t, s, 40)

	txn, err := s.CreateTransaction(ctx, domain.SaleTransaction{
		TransactionNumber: "TXN-A", Subtotal: 13, TotalAmount: 13, AmountPaid: 20, ChangeAmount: 7,
		Status: domain.StatusCompleted,
	})
	require.NoError(t, err)
	assert.NotZero(t, txn.ID)

	_, err = s.CreateTransaction(ctx, domain.SaleTransaction{TransactionNumber: "TXN-A", Status: domain.StatusCompleted})
	assert.ErrorIs(t, err, store.ErrDuplicateNumber)

	li, err := s.CreateLineItem(ctx, domain.SaleLineItem{
		TransactionID: txn.ID, ProductID: p.ID, ProductName: p.Name, Pieces: 2, TotalPieces: 2, UnitPrice: 6.5, LineTotal: 13,
	})
	require.NoError(t, err)

	items, err := s.GetLineItems(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, li.ID, items[0].ID)

	at := time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC)
	require.NoError(t, s.UpdateTransactionStatus(ctx, txn.ID, domain.StatusCancelled, "customer changed mind", at))

	got, err := s.GetTransactionByNumber(ctx, "TXN-A")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(at))
}

func TestLockTransaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	txn, err := s.CreateTransaction(ctx, domain.SaleTransaction{TransactionNumber: "TXN-L", Status: domain.StatusCompleted})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx store.Store) error {
		got, err := tx.LockTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, "TXN-L", got.TransactionNumber)

		_, err = tx.LockTransaction(ctx, txn.ID+100)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, " FOR UPDATE", forUpdate("pgx"))
	assert.Equal(t, " FOR UPDATE", forUpdate("postgres"))
	assert.Empty(t, forUpdate("sqlite"))
}

func TestListTransactions_Range(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, n := range []string{"A", "B", "C"} {
		_, err := s.CreateTransaction(ctx, domain.SaleTransaction{
			TransactionNumber: n, Status: domain.StatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	got, err := s.ListTransactions(ctx, domain.TransactionFilter{From: base.Add(time.Hour), To: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].TransactionNumber)
	assert.Equal(t, "B", got[1].TransactionNumber)
}

func TestInTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedProduct(t, s, 40)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.SetStock(ctx, p.ID, 40, 10); err != nil {
			return err
		}
		ref := int64(1)
		if _, err := tx.AppendMovement(ctx, domain.StockMovementEntry{
			ProductID: p.ID, MovementType: domain.MovementOut, QuantityChange: -30, RemainingStock: 10,
			ReferenceType: domain.RefSale, ReferenceID: &ref,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.TotalStock)
	moves, err := s.ListMovements(ctx, domain.MovementFilter{ProductID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestMovements_FilterByReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedProduct(t, s, 40)
	ref, line := int64(9), int64(3)

	_, err := s.AppendMovement(ctx, domain.StockMovementEntry{
		ProductID: p.ID, MovementType: domain.MovementIn, QuantityChange: 2, RemainingStock: 42,
		ReferenceType: domain.RefCancellation, ReferenceID: &ref, LineItemID: &line, Note: "TXN-A",
	})
	require.NoError(t, err)

	got, err := s.ListMovements(ctx, domain.MovementFilter{ReferenceType: domain.RefCancellation, ReferenceID: 9})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].LineItemID)
	assert.Equal(t, int64(3), *got[0].LineItemID)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.CreateUser(ctx, domain.User{Username: "ana", Email: "Ana@Example.com", Password: "hash", Role: domain.RoleOwner})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEmpty(t, u.CreatedAt)

	_, err = s.CreateUser(ctx, domain.User{Username: "other", Email: "ana@example.com", Password: "x", Role: domain.RoleCashier})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	require.NoError(t, s.UpdatePassword(ctx, u.ID, "new-hash"))
	got, err := s.GetUserByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.Password)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdatePassword(ctx, 999, "x"), store.ErrNotFound)
}
