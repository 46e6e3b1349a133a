// Package packaging converts between a product's box/sheet/piece hierarchy
// and a flat piece count.
package packaging

import (
	"fmt"
	"strings"

	"pharmapos/m/domain"
)

// Quantity is a packaging breakdown as entered at the counter.
type Quantity struct {
	Boxes  int64 `json:"boxes"`
	Sheets int64 `json:"sheets"`
	Pieces int64 `json:"pieces"`
}

// IsZero reports whether nothing is selected.
func (q Quantity) IsZero() bool {
	return q.Boxes <= 0 && q.Sheets <= 0 && q.Pieces <= 0
}

// ToPieces flattens q into pieces. Negative components count as zero.
func ToPieces(q Quantity, p domain.Product) int64 {
	perSheet := multiplier(p.PiecesPerSheet)
	perBox := multiplier(p.SheetsPerBox) * perSheet
	return clamp(q.Boxes)*perBox + clamp(q.Sheets)*perSheet + clamp(q.Pieces)
}

// FromPieces returns the canonical breakdown of n: as many boxes as possible,
// then sheets, then the remaining pieces.
func FromPieces(n int64, p domain.Product) Quantity {
	if n <= 0 {
		return Quantity{}
	}
	perSheet := multiplier(p.PiecesPerSheet)
	perBox := multiplier(p.SheetsPerBox) * perSheet

	boxes := n / perBox
	rest := n % perBox
	return Quantity{
		Boxes:  boxes,
		Sheets: rest / perSheet,
		Pieces: rest % perSheet,
	}
}

// Format renders q as e.g. "2 boxes, 1 sheet, 3 pieces".
func Format(q Quantity) string {
	var parts []string
	if b := clamp(q.Boxes); b > 0 {
		parts = append(parts, plural(b, "box", "boxes"))
	}
	if s := clamp(q.Sheets); s > 0 {
		parts = append(parts, plural(s, "sheet", "sheets"))
	}
	if p := clamp(q.Pieces); p > 0 {
		parts = append(parts, plural(p, "piece", "pieces"))
	}
	if len(parts) == 0 {
		return "0 pieces"
	}
	return strings.Join(parts, ", ")
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func multiplier(v int64) int64 {
	if v < 1 {
		return 1
	}
	return v
}
