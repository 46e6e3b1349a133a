// Package catalog manages products and every stock movement that is not a sale.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/packaging"
	"pharmapos/m/internal/store"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidStock   = errors.New("invalid stock quantity")
	ErrAlreadyActive  = errors.New("product is already active")
	ErrArchived       = errors.New("product is archived")
)

const casAttempts = 3

// ProductInput carries the editable fields of a product.
type ProductInput struct {
	Name           string  `json:"name"`
	GenericName    string  `json:"generic_name"`
	Manufacturer   string  `json:"manufacturer"`
	PiecesPerSheet int64   `json:"pieces_per_sheet"`
	SheetsPerBox   int64   `json:"sheets_per_box"`
	CostPrice      float64 `json:"cost_price"`
	SellingPrice   float64 `json:"selling_price"`
	CriticalLevel  int64   `json:"critical_level"`
	// InitialStock is only read on create.
	InitialStock int64 `json:"initial_stock"`
}

// Created is a new product plus anything worth telling the operator.
type Created struct {
	Product  domain.Product `json:"product"`
	Warnings []string       `json:"warnings,omitempty"`
}

type Service struct {
	store store.Store
	log   *zap.Logger
}

func New(s store.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, log: log}
}

func (in ProductInput) validate() error {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if in.PiecesPerSheet < 1 || in.SheetsPerBox < 1 {
		problems = append(problems, "pieces per sheet and sheets per box must be at least 1")
	}
	if in.CostPrice < 0 || in.SellingPrice < 0 {
		problems = append(problems, "prices cannot be negative")
	}
	if in.CriticalLevel < 0 {
		problems = append(problems, "critical level cannot be negative")
	}
	if in.InitialStock < 0 {
		problems = append(problems, "initial stock cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProduct, strings.Join(problems, "; "))
	}
	return nil
}

func (in ProductInput) warnings() []string {
	if in.SellingPrice < in.CostPrice {
		return []string{fmt.Sprintf("selling price %.2f is below cost %.2f", in.SellingPrice, in.CostPrice)}
	}
	return nil
}

// CreateProduct stores a product and records its opening stock in the ledger.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Created, error) {
	return s.create(ctx, in, domain.RefInitialStock)
}

func (s *Service) create(ctx context.Context, in ProductInput, ref string) (Created, error) {
	if err := in.validate(); err != nil {
		return Created{}, err
	}
	out := Created{Warnings: in.warnings()}
	_, err := store.RunInTx(ctx, s.store, func(tx store.Store) error {
		p, err := tx.CreateProduct(ctx, domain.Product{
			Name:           strings.TrimSpace(in.Name),
			GenericName:    strings.TrimSpace(in.GenericName),
			Manufacturer:   strings.TrimSpace(in.Manufacturer),
			PiecesPerSheet: in.PiecesPerSheet,
			SheetsPerBox:   in.SheetsPerBox,
			TotalStock:     in.InitialStock,
			CostPrice:      in.CostPrice,
			SellingPrice:   in.SellingPrice,
			CriticalLevel:  in.CriticalLevel,
			IsActive:       true,
		})
		if err != nil {
			return err
		}
		out.Product = p
		if in.InitialStock == 0 {
			return nil
		}
		_, err = tx.AppendMovement(ctx, domain.StockMovementEntry{
			ProductID:      p.ID,
			MovementType:   domain.MovementIn,
			QuantityChange: in.InitialStock,
			RemainingStock: in.InitialStock,
			ReferenceType:  ref,
		})
		return err
	})
	if err != nil {
		return Created{}, fmt.Errorf("create product: %w", err)
	}
	for _, w := range out.Warnings {
		s.log.Warn("product created with warning", zap.Int64("product_id", out.Product.ID), zap.String("warning", w))
	}
	return out, nil
}

// UpdateProduct replaces the editable fields. Stock is left alone.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Created, error) {
	in.InitialStock = 0
	if err := in.validate(); err != nil {
		return Created{}, err
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Created{}, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.GenericName = strings.TrimSpace(in.GenericName)
	p.Manufacturer = strings.TrimSpace(in.Manufacturer)
	p.PiecesPerSheet = in.PiecesPerSheet
	p.SheetsPerBox = in.SheetsPerBox
	p.CostPrice = in.CostPrice
	p.SellingPrice = in.SellingPrice
	p.CriticalLevel = in.CriticalLevel
	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return Created{}, fmt.Errorf("update product: %w", err)
	}
	return Created{Product: updated, Warnings: in.warnings()}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	return s.store.ListProducts(ctx, f)
}

// ReceiveStock adds delivered stock, given in any packaging unit.
func (s *Service) ReceiveStock(ctx context.Context, id int64, q packaging.Quantity, note string) (domain.Product, error) {
	var updated domain.Product
	_, err := store.RunInTx(ctx, s.store, func(tx store.Store) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return ErrArchived
		}
		pieces := packaging.ToPieces(q, p)
		if pieces <= 0 {
			return ErrInvalidStock
		}
		updated, err = s.move(ctx, tx, id, func(cur int64) int64 { return cur + pieces },
			domain.MovementIn, domain.RefRestock, note)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("stock received", zap.Int64("product_id", id), zap.Int64("stock", updated.TotalStock))
	return updated, nil
}

// AdjustStock sets the counted stock and records the signed difference.
func (s *Service) AdjustStock(ctx context.Context, id, newTotal int64, note string) (domain.Product, error) {
	if newTotal < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock cannot go below zero", ErrInvalidStock)
	}
	var updated domain.Product
	_, err := store.RunInTx(ctx, s.store, func(tx store.Store) error {
		var err error
		updated, err = s.move(ctx, tx, id, func(int64) int64 { return newTotal },
			domain.MovementAdjustment, domain.RefAdjustment, note)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("stock adjusted", zap.Int64("product_id", id), zap.Int64("stock", newTotal), zap.String("note", note))
	return updated, nil
}

// ArchiveProduct hides a product from the till and notes it in the ledger.
func (s *Service) ArchiveProduct(ctx context.Context, id int64, note string) (domain.Product, error) {
	return s.setActive(ctx, id, false, note)
}

func (s *Service) RestoreProduct(ctx context.Context, id int64) (domain.Product, error) {
	return s.setActive(ctx, id, true, "")
}

func (s *Service) setActive(ctx context.Context, id int64, active bool, note string) (domain.Product, error) {
	var updated domain.Product
	_, err := store.RunInTx(ctx, s.store, func(tx store.Store) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if p.IsActive == active {
			if active {
				return ErrAlreadyActive
			}
			return ErrArchived
		}
		p.IsActive = active
		if updated, err = tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		if active {
			return nil
		}
		_, err = tx.AppendMovement(ctx, domain.StockMovementEntry{
			ProductID:      id,
			MovementType:   domain.MovementArchived,
			RemainingStock: updated.TotalStock,
			ReferenceType:  domain.RefArchive,
			Note:           note,
		})
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("product active flag changed", zap.Int64("product_id", id), zap.Bool("active", active))
	return updated, nil
}

// LowStock lists active products at or below their critical level.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	all, err := s.store.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return nil, err
	}
	var low []domain.Product
	for _, p := range all {
		if p.IsActive && p.IsLowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

// move applies a stock change with compare-and-set and appends its ledger entry.
func (s *Service) move(ctx context.Context, tx store.Store, id int64, next func(int64) int64, typ, ref, note string) (domain.Product, error) {
	for i := 0; i < casAttempts; i++ {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		target := next(p.TotalStock)
		if target < 0 {
			return domain.Product{}, fmt.Errorf("%w: stock cannot go below zero", ErrInvalidStock)
		}
		updated, err := tx.SetStock(ctx, id, p.TotalStock, target)
		if errors.Is(err, store.ErrStockConflict) {
			continue
		}
		if err != nil {
			return domain.Product{}, err
		}
		_, err = tx.AppendMovement(ctx, domain.StockMovementEntry{
			ProductID:      id,
			MovementType:   typ,
			QuantityChange: target - p.TotalStock,
			RemainingStock: target,
			ReferenceType:  ref,
			Note:           note,
		})
		return updated, err
	}
	return domain.Product{}, store.ErrStockConflict
}
