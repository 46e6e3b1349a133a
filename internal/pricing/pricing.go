// Package pricing derives sale totals from cart lines.
package pricing

import "math"

// StatutoryRate is the mandated PWD/Senior discount.
const StatutoryRate = 0.20

// Item is the priced view of one cart line.
type Item struct {
	UnitPrice float64
	Pieces    int64
}

// Totals are unrounded until Rounded is called.
type Totals struct {
	Subtotal                float64 `json:"subtotal"`
	DiscountAmount          float64 `json:"discount_amount"`
	StatutoryDiscountAmount float64 `json:"statutory_discount_amount"`
	TotalDiscount           float64 `json:"total_discount"`
	Total                   float64 `json:"total"`
	ItemCount               int64   `json:"item_count"`
}

// ComputeTotals applies the promotional percentage and the statutory discount
// side by side against the same subtotal. The total never drops below zero.
func ComputeTotals(items []Item, discountPercent float64, pwdSenior bool) Totals {
	var t Totals
	for _, it := range items {
		if it.Pieces <= 0 {
			continue
		}
		t.Subtotal += it.UnitPrice * float64(it.Pieces)
		t.ItemCount += it.Pieces
	}

	pct := math.Min(math.Max(discountPercent, 0), 100)
	t.DiscountAmount = t.Subtotal * pct / 100
	if pwdSenior {
		t.StatutoryDiscountAmount = t.Subtotal * StatutoryRate
	}
	t.TotalDiscount = t.DiscountAmount + t.StatutoryDiscountAmount
	t.Total = math.Max(0, t.Subtotal-t.TotalDiscount)
	return t
}

// Rounded returns a copy with every monetary field rounded to cents.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:                Round2(t.Subtotal),
		DiscountAmount:          Round2(t.DiscountAmount),
		StatutoryDiscountAmount: Round2(t.StatutoryDiscountAmount),
		TotalDiscount:           Round2(t.TotalDiscount),
		Total:                   Round2(t.Total),
		ItemCount:               t.ItemCount,
	}
}

// LineTotal is the rounded amount for one line.
func LineTotal(unitPrice float64, pieces int64) float64 {
	return Round2(unitPrice * float64(pieces))
}

// Change is the amount handed back for a payment, never negative.
func Change(total, paid float64) float64 {
	return Round2(math.Max(0, paid-total))
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
