package domain

import "time"

// Product is a sellable item stocked in pieces and packaged in sheets and boxes.
type Product struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	GenericName    string    `db:"generic_name" json:"generic_name"`
	Manufacturer   string    `db:"manufacturer" json:"manufacturer"`
	PiecesPerSheet int64     `db:"pieces_per_sheet" json:"pieces_per_sheet"`
	SheetsPerBox   int64     `db:"sheets_per_box" json:"sheets_per_box"`
	TotalStock     int64     `db:"total_stock" json:"total_stock"`
	CostPrice      float64   `db:"cost_price" json:"cost_price"`
	SellingPrice   float64   `db:"selling_price" json:"selling_price"`
	CriticalLevel  int64     `db:"critical_level" json:"critical_level"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// PiecesPerBox is the number of pieces in one full box.
func (p Product) PiecesPerBox() int64 {
	return atLeastOne(p.SheetsPerBox) * atLeastOne(p.PiecesPerSheet)
}

// IsLowStock reports whether the product has reached its reorder threshold.
func (p Product) IsLowStock() bool {
	return p.TotalStock <= p.CriticalLevel
}

func atLeastOne(v int64) int64 {
	if v < 1 {
		return 1
	}
	return v
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	IncludeInactive bool
	Query           string
}
