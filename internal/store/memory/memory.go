// Package memory is the in-process store used for demos and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

type state struct {
	products     map[int64]domain.Product
	transactions map[int64]domain.SaleTransaction
	numbers      map[string]int64
	lineItems    map[int64][]domain.SaleLineItem
	movements    []domain.StockMovementEntry
	users        map[int64]domain.User
	nextID       int64
}

func newState() *state {
	return &state{
		products:     make(map[int64]domain.Product),
		transactions: make(map[int64]domain.SaleTransaction),
		numbers:      make(map[string]int64),
		lineItems:    make(map[int64][]domain.SaleLineItem),
		users:        make(map[int64]domain.User),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.numbers {
		c.numbers[k] = v
	}
	for k, v := range s.lineItems {
		c.lineItems[k] = append([]domain.SaleLineItem(nil), v...)
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	c.movements = append([]domain.StockMovementEntry(nil), s.movements...)
	c.nextID = s.nextID
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store keeps everything in maps guarded by one lock.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
	_ store.UserStore  = (*Store)(nil)
)

func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) view() *view { return &view{st: s.st, now: s.now} }

// InTx runs fn against a private view and discards its writes if fn fails.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	snapshot := s.st.clone()
	if err := fn(s.view()); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetProduct(ctx, id)
}

func (s *Store) SetStock(ctx context.Context, id, expected, newTotal int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SetStock(ctx, id, expected, newTotal)
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateProduct(ctx, p)
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateProduct(ctx, p)
}

func (s *Store) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListProducts(ctx, f)
}

func (s *Store) CreateTransaction(ctx context.Context, t domain.SaleTransaction) (domain.SaleTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateTransaction(ctx, t)
}

func (s *Store) CreateLineItem(ctx context.Context, li domain.SaleLineItem) (domain.SaleLineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateLineItem(ctx, li)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTransaction(ctx, id)
}

func (s *Store) LockTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().LockTransaction(ctx, id)
}

func (s *Store) GetTransactionByNumber(ctx context.Context, number string) (domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTransactionByNumber(ctx, number)
}

func (s *Store) GetLineItems(ctx context.Context, transactionID int64) ([]domain.SaleLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetLineItems(ctx, transactionID)
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id int64, status, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateTransactionStatus(ctx, id, status, reason, at)
}

func (s *Store) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListTransactions(ctx, f)
}

func (s *Store) AppendMovement(ctx context.Context, e domain.StockMovementEntry) (domain.StockMovementEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendMovement(ctx, e)
}

func (s *Store) ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListMovements(ctx, f)
}

// view implements store.Store on a state without locking; callers hold the lock.
type view struct {
	st  *state
	now func() time.Time
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (v *view) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Product{}, err
	}
	p, ok := v.st.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return p, nil
}

func (v *view) SetStock(ctx context.Context, id, expected, newTotal int64) (domain.Product, error) {
	p, err := v.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if newTotal < 0 {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, store.ErrNegativeStock)
	}
	if p.TotalStock != expected {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, store.ErrStockConflict)
	}
	p.TotalStock = newTotal
	p.UpdatedAt = v.now()
	v.st.products[id] = p
	return p, nil
}

func (v *view) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Product{}, err
	}
	if p.TotalStock < 0 {
		return domain.Product{}, store.ErrNegativeStock
	}
	p.ID = v.st.id()
	p.CreatedAt = v.now()
	p.UpdatedAt = p.CreatedAt
	v.st.products[p.ID] = p
	return p, nil
}

func (v *view) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	existing, err := v.GetProduct(ctx, p.ID)
	if err != nil {
		return domain.Product{}, err
	}
	// stock only moves through SetStock
	p.TotalStock = existing.TotalStock
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = v.now()
	v.st.products[p.ID] = p
	return p, nil
}

func (v *view) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []domain.Product
	for _, p := range v.st.products {
		if !p.IsActive && !f.IncludeInactive {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.GenericName), q) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (v *view) CreateTransaction(ctx context.Context, t domain.SaleTransaction) (domain.SaleTransaction, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.SaleTransaction{}, err
	}
	if _, taken := v.st.numbers[t.TransactionNumber]; taken {
		return domain.SaleTransaction{}, store.ErrDuplicateNumber
	}
	t.ID = v.st.id()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = v.now()
	}
	v.st.transactions[t.ID] = t
	v.st.numbers[t.TransactionNumber] = t.ID
	return t, nil
}

func (v *view) CreateLineItem(ctx context.Context, li domain.SaleLineItem) (domain.SaleLineItem, error) {
	if _, err := v.GetTransaction(ctx, li.TransactionID); err != nil {
		return domain.SaleLineItem{}, err
	}
	li.ID = v.st.id()
	v.st.lineItems[li.TransactionID] = append(v.st.lineItems[li.TransactionID], li)
	return li, nil
}

func (v *view) GetTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.SaleTransaction{}, err
	}
	t, ok := v.st.transactions[id]
	if !ok {
		return domain.SaleTransaction{}, fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	return t, nil
}

// LockTransaction is a plain read; InTx already holds the store's write lock.
func (v *view) LockTransaction(ctx context.Context, id int64) (domain.SaleTransaction, error) {
	return v.GetTransaction(ctx, id)
}

func (v *view) GetTransactionByNumber(ctx context.Context, number string) (domain.SaleTransaction, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.SaleTransaction{}, err
	}
	id, ok := v.st.numbers[number]
	if !ok {
		return domain.SaleTransaction{}, fmt.Errorf("transaction %s: %w", number, store.ErrNotFound)
	}
	return v.st.transactions[id], nil
}

func (v *view) GetLineItems(ctx context.Context, transactionID int64) ([]domain.SaleLineItem, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	return append([]domain.SaleLineItem(nil), v.st.lineItems[transactionID]...), nil
}

func (v *view) UpdateTransactionStatus(ctx context.Context, id int64, status, reason string, at time.Time) error {
	t, err := v.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	t.Status = status
	t.CancelReason = reason
	if status == domain.StatusCancelled {
		stamp := at.UTC()
		t.CancelledAt = &stamp
	}
	v.st.transactions[id] = t
	return nil
}

func (v *view) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.SaleTransaction, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	var out []domain.SaleTransaction
	for _, t := range v.st.transactions {
		if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !t.CreatedAt.Before(f.To) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (v *view) AppendMovement(ctx context.Context, e domain.StockMovementEntry) (domain.StockMovementEntry, error) {
	if _, err := v.GetProduct(ctx, e.ProductID); err != nil {
		return domain.StockMovementEntry{}, err
	}
	e.ID = v.st.id()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = v.now()
	}
	v.st.movements = append(v.st.movements, e)
	return e, nil
}

func (v *view) ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovementEntry, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	var out []domain.StockMovementEntry
	for _, e := range v.st.movements {
		if f.ProductID != 0 && e.ProductID != f.ProductID {
			continue
		}
		if f.ReferenceType != "" && e.ReferenceType != f.ReferenceType {
			continue
		}
		if f.ReferenceID != 0 && (e.ReferenceID == nil || *e.ReferenceID != f.ReferenceID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkCtx(ctx); err != nil {
		return domain.User{}, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.st.users {
		if existing.Email == u.Email {
			return domain.User{}, store.ErrDuplicateEmail
		}
	}
	u.ID = s.st.id()
	u.CreatedAt = s.now().Format(time.RFC3339)
	s.st.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := checkCtx(ctx); err != nil {
		return domain.User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkCtx(ctx); err != nil {
		return err
	}
	u, ok := s.st.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	u.Password = hash
	s.st.users[id] = u
	return nil
}
