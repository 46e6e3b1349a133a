package packaging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pharmapos/m/domain"
)

func blister() domain.Product {
	return domain.Product{ID: 1, Name: "Paracetamol 500mg", PiecesPerSheet: 10, SheetsPerBox: 10, TotalStock: 500}
}

func TestToPieces(t *testing.T) {
	p := blister()
	tests := []struct {
		name string
		q    Quantity
		want int64
	}{
		{"nothing selected", Quantity{}, 0},
		{"pieces only", Quantity{Pieces: 7}, 7},
		{"sheets only", Quantity{Sheets: 2}, 20},
		{"mixed", Quantity{Boxes: 2, Sheets: 1, Pieces: 3}, 213},
		{"negative clamps to zero", Quantity{Boxes: -1, Sheets: 2, Pieces: -5}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToPieces(tt.q, p))
		})
	}
}

func TestToPieces_InvalidMultipliersTreatedAsOne(t *testing.T) {
	p := domain.Product{PiecesPerSheet: 0, SheetsPerBox: -3}
	assert.Equal(t, int64(6), ToPieces(Quantity{Boxes: 1, Sheets: 2, Pieces: 3}, p))
}

func TestFromPieces_Canonical(t *testing.T) {
	p := blister()
	assert.Equal(t, Quantity{Boxes: 2, Sheets: 1, Pieces: 3}, FromPieces(213, p))
	assert.Equal(t, Quantity{Sheets: 9, Pieces: 9}, FromPieces(99, p))
	assert.Equal(t, Quantity{}, FromPieces(0, p))
	assert.Equal(t, Quantity{}, FromPieces(-4, p))
}

func TestRoundTrip(t *testing.T) {
	products := []domain.Product{
		blister(),
		{PiecesPerSheet: 1, SheetsPerBox: 1},
		{PiecesPerSheet: 4, SheetsPerBox: 3},
		{PiecesPerSheet: 12, SheetsPerBox: 1},
	}
	for _, p := range products {
		for n := int64(0); n <= 500; n++ {
			q := FromPieces(n, p)
			if !assert.Equal(t, n, ToPieces(q, p), "product %+v n=%d", p, n) {
				return
			}
			assert.Less(t, q.Pieces, p.PiecesPerSheet)
			assert.Less(t, q.Sheets, p.SheetsPerBox)
		}
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2 boxes, 1 sheet, 3 pieces", Format(Quantity{Boxes: 2, Sheets: 1, Pieces: 3}))
	assert.Equal(t, "1 box", Format(Quantity{Boxes: 1}))
	assert.Equal(t, "4 sheets, 1 piece", Format(Quantity{Sheets: 4, Pieces: 1}))
	assert.Equal(t, "0 pieces", Format(Quantity{}))
}
