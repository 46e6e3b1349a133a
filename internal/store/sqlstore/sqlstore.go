// Package sqlstore persists the POS records through sqlx. The same queries
// run on SQLite and PostgreSQL; placeholders are rebound per driver.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

// timeLayout is fixed-width so stored timestamps also sort as text on SQLite.
const timeLayout = "2006-01-02 15:04:05.000000-07:00"

const productColumns = `id, name, generic_name, manufacturer, pieces_per_sheet, sheets_per_box, total_stock,
	cost_price, selling_price, critical_level, is_active, created_at, updated_at`

const transactionColumns = `id, transaction_number, cashier_id, customer_name, payment_method, discount_percent,
	is_pwd_senior, subtotal, discount_amount, statutory_discount_amount, total_amount, amount_paid,
	change_amount, status, cancel_reason, created_at, cancelled_at`

const lineItemColumns = `id, transaction_id, product_id, product_name, boxes, sheets, pieces, total_pieces,
	unit_price, line_total`

const movementColumns = `id, product_id, movement_type, quantity_change, remaining_stock, reference_type,
	reference_id, line_item_id, note, created_at`

// Store is safe for concurrent use when backed by *sqlx.DB.
type Store struct {
	db  *sqlx.DB
	q   sqlx.ExtContext
	now func() time.Time
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db, now: func() time.Time { return time.Now().UTC() }}
}

// InTx runs fn inside a database transaction. Calls made on a store that is
// already inside a transaction join it.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback()

	if err := fn(&Store{q: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Store) rebind(query string) string {
	return s.q.Rebind(query)
}

func ts(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := sqlx.GetContext(ctx, s.q, &p, s.rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) SetStock(ctx context.Context, id, expected, newTotal int64) (domain.Product, error) {
	if newTotal < 0 {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, store.ErrNegativeStock)
	}
	res, err := s.q.ExecContext(ctx, s.rebind(`UPDATE products SET total_stock = ?, updated_at = ? WHERE id = ? AND total_stock = ?`),
		newTotal, ts(s.now()), id, expected)
	if err != nil {
		return domain.Product{}, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, mapErr(err)
	}
	if n == 0 {
		if _, err := s.GetProduct(ctx, id); err != nil {
			return domain.Product{}, err
		}
		return domain.Product{}, fmt.Errorf("product %d: %w", id, store.ErrStockConflict)
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	now := s.now()
	err := s.q.QueryRowxContext(ctx, s.rebind(`INSERT INTO products (name, generic_name, manufacturer, pieces_per_sheet, sheets_per_box,
		total_stock, cost_price, selling_price, critical_level, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		p.Name, p.GenericName, p.Manufacturer, p.PiecesPerSheet, p.SheetsPerBox, p.TotalStock,
		p.CostPrice, p.SellingPrice, p.CriticalLevel, p.IsActive, ts(now), ts(now)).Scan(&p.ID)
	if err != nil {
		return domain.Product{}, mapErr(err)
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	res, err := s.q.ExecContext(ctx, s.rebind(`UPDATE products SET name = ?, generic_name = ?, manufacturer = ?, pieces_per_sheet = ?,
		sheets_per_box = ?, cost_price = ?, selling_price = ?, critical_level = ?, is_active = ?, updated_at = ? WHERE id = ?`),
		p.Name, p.GenericName, p.Manufacturer, p.PiecesPerSheet, p.SheetsPerBox, p.CostPrice, p.SellingPrice,
		p.CriticalLevel, p.IsActive, ts(s.now()), p.ID)
	if err != nil {
		return domain.Product{}, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Product{}, fmt.Errorf("product %d: %w", p.ID, store.ErrNotFound)
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var (
		args    []any
		clauses []string
	)
	if !f.IncludeInactive {
		args = append(args, true)
		clauses = append(clauses, "is_active = ?")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like)
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(generic_name) LIKE ?)")
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name, id"

	var out []domain.Product
	if err := sqlx.SelectContext(ctx, s.q, &out, s.rebind(query), args...); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t domain.SaleTransaction) (domain.SaleTransaction, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	err := s.q.QueryRowxContext(ctx, s.rebind(`INSERT INTO sale_transactions (transaction_number, cashier_id, customer_name, payment_method,
		discount_percent, is_pwd_senior, subtotal, discount_amount, statutory_discount_amount, total_amount, amount_paid,
		change_amount, status, cancel_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		t.TransactionNumber, t.CashierID, t.CustomerName, t.PaymentMethod, t.DiscountPercent, t.IsPwdSenior,
		t.Subtotal, t.DiscountAmount, t.StatutoryDiscountAmount, t.TotalAmount, t.AmountPaid, t.ChangeAmount,
		t.Status, t.CancelReason, ts(t.CreatedAt)).Scan(&t.ID)
	if err != nil {
		return domain.SaleTransaction{}, mapErr(err)
	}
	return s.GetTransaction(ctx, t.ID)
}

func (s *Store) CreateLineItem(ctx context.Context, li domain.SaleLineItem) (domain.SaleLineItem, error) {
	err := s.q.QueryRowxContext(ctx, s.rebind(`INSERT INTO sale_line_items (transaction_id, product_id, product_name, boxes, sheets,
		pieces, total_pieces, unit_price, line_total) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		li.TransactionID, li.ProductID, li.ProductName, li.Boxes, li.Sheets, li.Pieces, li.TotalPieces,
		li.UnitPrice, li.LineTotal).Scan(&li.ID)
	if err != nil {
		return domain.SaleLineItem{}, mapErr(err)
	}
	return li, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error) {
	return s.getTransaction(ctx, `id = ?`, id)
}

// LockTransaction takes a row lock on PostgreSQL. SQLite runs one writer at a
// time, so the plain read is enough there.
func (s *Store) LockTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error) {
	return s.getTransaction(ctx, `id = ?`+forUpdate(s.q.DriverName()), id)
}

func forUpdate(driverName string) string {
	switch driverName {
	case "pgx", "postgres":
		return " FOR UPDATE"
	}
	return ""
}

func (s *Store) GetTransactionByNumber(ctx context.Context, number string) (domain.SaleTransaction, error) {
	return s.getTransaction(ctx, `transaction_number = ?`, number)
}

func (s *Store) getTransaction(ctx context.Context, where string, arg any) (domain.SaleTransaction, error) {
	var t domain.SaleTransaction
	err := sqlx.GetContext(ctx, s.q, &t, s.rebind(`SELECT `+transactionColumns+` FROM sale_transactions WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SaleTransaction{}, fmt.Errorf("transaction %v: %w", arg, store.ErrNotFound)
	}
	if err != nil {
		return domain.SaleTransaction{}, mapErr(err)
	}
	return t, nil
}

func (s *Store) GetLineItems(ctx context.Context, transactionID int64) ([]domain.SaleLineItem, error) {
	var out []domain.SaleLineItem
	err := sqlx.SelectContext(ctx, s.q, &out,
		s.rebind(`SELECT `+lineItemColumns+` FROM sale_line_items WHERE transaction_id = ? ORDER BY id`), transactionID)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id int64, status, reason string, at time.Time) error {
	var cancelledAt *string
	if status == domain.StatusCancelled {
		stamp := ts(at)
		cancelledAt = &stamp
	}
	res, err := s.q.ExecContext(ctx, s.rebind(`UPDATE sale_transactions SET status = ?, cancel_reason = ?, cancelled_at = ? WHERE id = ?`),
		status, reason, cancelledAt, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.SaleTransaction, error) {
	var (
		args    []any
		clauses []string
	)
	if !f.From.IsZero() {
		args = append(args, ts(f.From))
		clauses = append(clauses, "created_at >= ?")
	}
	if !f.To.IsZero() {
		args = append(args, ts(f.To))
		clauses = append(clauses, "created_at < ?")
	}
	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, "status = ?")
	}
	query := `SELECT ` + transactionColumns + ` FROM sale_transactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var out []domain.SaleTransaction
	if err := sqlx.SelectContext(ctx, s.q, &out, s.rebind(query), args...); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) AppendMovement(ctx context.Context, e domain.StockMovementEntry) (domain.StockMovementEntry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	err := s.q.QueryRowxContext(ctx, s.rebind(`INSERT INTO stock_movements (product_id, movement_type, quantity_change, remaining_stock,
		reference_type, reference_id, line_item_id, note, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		e.ProductID, e.MovementType, e.QuantityChange, e.RemainingStock, e.ReferenceType, e.ReferenceID,
		e.LineItemID, e.Note, ts(e.CreatedAt)).Scan(&e.ID)
	if err != nil {
		return domain.StockMovementEntry{}, mapErr(err)
	}
	return e, nil
}

func (s *Store) ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovementEntry, error) {
	var (
		args    []any
		clauses []string
	)
	if f.ProductID != 0 {
		args = append(args, f.ProductID)
		clauses = append(clauses, "product_id = ?")
	}
	if f.ReferenceType != "" {
		args = append(args, f.ReferenceType)
		clauses = append(clauses, "reference_type = ?")
	}
	if f.ReferenceID != 0 {
		args = append(args, f.ReferenceID)
		clauses = append(clauses, "reference_id = ?")
	}
	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	var out []domain.StockMovementEntry
	if err := sqlx.SelectContext(ctx, s.q, &out, s.rebind(query), args...); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// mapErr folds driver errors into the store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key"):
		return fmt.Errorf("%w: %v", store.ErrDuplicateNumber, err)
	case strings.Contains(msg, "check constraint") && strings.Contains(msg, "total_stock"):
		return fmt.Errorf("%w: %v", store.ErrNegativeStock, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
