package domain

import "time"

// Movement types.
const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
	MovementArchived   = "archived"
)

// Reference types naming the cause of a movement.
const (
	RefSale         = "sale"
	RefCancellation = "cancellation"
	RefImport       = "import"
	RefInitialStock = "initial_stock"
	RefRestock      = "restock"
	RefAdjustment   = "adjustment"
	RefArchive      = "archive"
)

// StockMovementEntry is one row of the append-only stock ledger.
type StockMovementEntry struct {
	ID             int64     `db:"id" json:"id"`
	ProductID      int64     `db:"product_id" json:"product_id"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	QuantityChange int64     `db:"quantity_change" json:"quantity_change"`
	RemainingStock int64     `db:"remaining_stock" json:"remaining_stock"`
	ReferenceType  string    `db:"reference_type" json:"reference_type"`
	ReferenceID    *int64    `db:"reference_id" json:"reference_id,omitempty"`
	LineItemID     *int64    `db:"line_item_id" json:"line_item_id,omitempty"`
	Note           string    `db:"note" json:"note"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MovementFilter narrows ledger listings. Zero values match everything.
type MovementFilter struct {
	ProductID     int64
	ReferenceType string
	ReferenceID   int64
}
