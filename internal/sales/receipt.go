package sales

import (
	"time"

	"pharmapos/m/domain"
	"pharmapos/m/internal/cart"
	"pharmapos/m/internal/packaging"
	"pharmapos/m/internal/pricing"
)

// ReceiptProfile is the static header and footer printed on every receipt.
type ReceiptProfile struct {
	StoreName string `yaml:"store_name" json:"store_name"`
	Address   string `yaml:"address" json:"address"`
	Contact   string `yaml:"contact" json:"contact"`
	TaxID     string `yaml:"tax_id" json:"tax_id"`
	Footer    string `yaml:"footer" json:"footer"`
}

type ReceiptLine struct {
	ProductID   int64   `json:"product_id"`
	Name        string  `json:"name"`
	Packaging   string  `json:"packaging"`
	TotalPieces int64   `json:"total_pieces"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

// Receipt is the print-ready projection of a sale. Layout belongs to the printer.
type Receipt struct {
	Header            ReceiptProfile `json:"header"`
	TransactionNumber string         `json:"transaction_number"`
	Date              time.Time      `json:"date"`
	Status            string         `json:"status"`
	CashierID         *int64         `json:"cashier_id,omitempty"`
	Customer          cart.Customer  `json:"customer"`
	PwdSenior         bool           `json:"pwd_senior"`
	DiscountPercent   float64        `json:"discount_percent"`
	Lines             []ReceiptLine  `json:"lines"`
	Totals            pricing.Totals `json:"totals"`
	PaymentMethod     string         `json:"payment_method"`
	AmountPaid        float64        `json:"amount_paid"`
	Change            float64        `json:"change"`
	Footer            string         `json:"footer"`
}

// BuildReceipt projects a stored sale. It also serves reprints, where only
// the customer name survives.
func BuildReceipt(profile ReceiptProfile, txn domain.SaleTransaction, items []domain.SaleLineItem, customer cart.Customer) Receipt {
	if customer.Name == "" {
		customer.Name = txn.CustomerName
	}
	r := Receipt{
		Header:            profile,
		TransactionNumber: txn.TransactionNumber,
		Date:              txn.CreatedAt,
		Status:            txn.Status,
		CashierID:         txn.CashierID,
		Customer:          customer,
		PwdSenior:         txn.IsPwdSenior,
		DiscountPercent:   txn.DiscountPercent,
		Totals: pricing.Totals{
			Subtotal:                txn.Subtotal,
			DiscountAmount:          txn.DiscountAmount,
			StatutoryDiscountAmount: txn.StatutoryDiscountAmount,
			TotalDiscount:           pricing.Round2(txn.DiscountAmount + txn.StatutoryDiscountAmount),
			Total:                   txn.TotalAmount,
		},
		PaymentMethod: txn.PaymentMethod,
		AmountPaid:    txn.AmountPaid,
		Change:        txn.ChangeAmount,
		Footer:        profile.Footer,
	}
	for _, li := range items {
		r.Totals.ItemCount += li.TotalPieces
		r.Lines = append(r.Lines, ReceiptLine{
			ProductID:   li.ProductID,
			Name:        li.ProductName,
			Packaging:   packaging.Format(packaging.Quantity{Boxes: li.Boxes, Sheets: li.Sheets, Pieces: li.Pieces}),
			TotalPieces: li.TotalPieces,
			UnitPrice:   li.UnitPrice,
			LineTotal:   li.LineTotal,
		})
	}
	return r
}
