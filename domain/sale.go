package domain

import "time"

// Transaction statuses. The only transition is completed -> cancelled.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// SaleTransaction is the header record of a committed sale.
type SaleTransaction struct {
	ID                      int64      `db:"id" json:"id"`
	TransactionNumber       string     `db:"transaction_number" json:"transaction_number"`
	CashierID               *int64     `db:"cashier_id" json:"cashier_id,omitempty"`
	CustomerName            string     `db:"customer_name" json:"customer_name"`
	PaymentMethod           string     `db:"payment_method" json:"payment_method"`
	DiscountPercent         float64    `db:"discount_percent" json:"discount_percent"`
	IsPwdSenior             bool       `db:"is_pwd_senior" json:"is_pwd_senior"`
	Subtotal                float64    `db:"subtotal" json:"subtotal"`
	DiscountAmount          float64    `db:"discount_amount" json:"discount_amount"`
	StatutoryDiscountAmount float64    `db:"statutory_discount_amount" json:"statutory_discount_amount"`
	TotalAmount             float64    `db:"total_amount" json:"total_amount"`
	AmountPaid              float64    `db:"amount_paid" json:"amount_paid"`
	ChangeAmount            float64    `db:"change_amount" json:"change_amount"`
	Status                  string     `db:"status" json:"status"`
	CancelReason            string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	CancelledAt             *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// SaleLineItem is one product line of a transaction. Line items are never updated.
type SaleLineItem struct {
	ID            int64   `db:"id" json:"id"`
	TransactionID int64   `db:"transaction_id" json:"transaction_id"`
	ProductID     int64   `db:"product_id" json:"product_id"`
	ProductName   string  `db:"product_name" json:"product_name"`
	Boxes         int64   `db:"boxes" json:"boxes"`
	Sheets        int64   `db:"sheets" json:"sheets"`
	Pieces        int64   `db:"pieces" json:"pieces"`
	TotalPieces   int64   `db:"total_pieces" json:"total_pieces"`
	UnitPrice     float64 `db:"unit_price" json:"unit_price"`
	LineTotal     float64 `db:"line_total" json:"line_total"`
}

// TransactionFilter narrows transaction listings. Zero times are unbounded.
type TransactionFilter struct {
	From   time.Time
	To     time.Time
	Status string
	Limit  int
}
