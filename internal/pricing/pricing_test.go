package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTotals_DiscountsAreAdditive(t *testing.T) {
	got := ComputeTotals([]Item{{UnitPrice: 100, Pieces: 10}}, 10, true).Rounded()

	assert.Equal(t, 1000.0, got.Subtotal)
	assert.Equal(t, 100.0, got.DiscountAmount)
	assert.Equal(t, 200.0, got.StatutoryDiscountAmount)
	assert.Equal(t, 300.0, got.TotalDiscount)
	assert.Equal(t, 700.0, got.Total)
	assert.Equal(t, int64(10), got.ItemCount)
}

func TestComputeTotals_NoDiscount(t *testing.T) {
	got := ComputeTotals([]Item{{UnitPrice: 5.25, Pieces: 4}}, 0, false).Rounded()

	assert.Equal(t, 21.0, got.Subtotal)
	assert.Zero(t, got.TotalDiscount)
	assert.Equal(t, 21.0, got.Total)
}

func TestComputeTotals_NeverNegative(t *testing.T) {
	got := ComputeTotals([]Item{{UnitPrice: 50, Pieces: 2}}, 90, true)

	assert.Equal(t, 90.0, got.DiscountAmount)
	assert.Equal(t, 20.0, got.StatutoryDiscountAmount)
	assert.Zero(t, got.Total)
}

func TestComputeTotals_ItemCountIsPieces(t *testing.T) {
	got := ComputeTotals([]Item{{UnitPrice: 1, Pieces: 3}, {UnitPrice: 2, Pieces: 12}}, 0, false)

	assert.Equal(t, int64(15), got.ItemCount)
	assert.Equal(t, 27.0, got.Subtotal)
}

func TestComputeTotals_RoundsOnlyAtTheEnd(t *testing.T) {
	items := []Item{{UnitPrice: 0.333, Pieces: 3}, {UnitPrice: 0.333, Pieces: 3}}
	got := ComputeTotals(items, 0, false)

	assert.InDelta(t, 1.998, got.Subtotal, 1e-9)
	assert.Equal(t, 2.0, got.Rounded().Subtotal)
}

func TestComputeTotals_EmptyCart(t *testing.T) {
	assert.Equal(t, Totals{}, ComputeTotals(nil, 15, true))
}

func TestChange(t *testing.T) {
	assert.Equal(t, 3.75, Change(46.25, 50))
	assert.Zero(t, Change(46.25, 40))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.01, Round2(1.005000001))
	assert.Equal(t, -2.5, Round2(-2.499999))
	assert.Equal(t, 10.0, Round2(9.999))
}
