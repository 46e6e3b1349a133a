// Package cart holds the in-memory basket of one checkout session.
package cart

import (
	"errors"

	"pharmapos/m/domain"
	"pharmapos/m/internal/packaging"
	"pharmapos/m/internal/pricing"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must resolve to at least one piece")
	ErrInsufficientStock = errors.New("requested quantity exceeds available stock")
	ErrInactiveProduct   = errors.New("product is archived")
	ErrLineNotFound      = errors.New("product is not in the cart")
	ErrInvalidDiscount   = errors.New("discount percent must be between 0 and 100")
)

// Line is one product in the cart. Stock is the ceiling known when the line
// was last touched; the authoritative check happens at commit.
type Line struct {
	Product     domain.Product     `json:"-"`
	ProductID   int64              `json:"product_id"`
	ProductName string             `json:"product_name"`
	Quantity    packaging.Quantity `json:"quantity"`
	TotalPieces int64              `json:"total_pieces"`
	UnitPrice   float64            `json:"unit_price"`
	Stock       int64              `json:"stock"`
}

// Customer is free-form metadata captured at checkout.
type Customer struct {
	Name     string `json:"name"`
	Contact  string `json:"contact,omitempty"`
	IDNumber string `json:"id_number,omitempty"`
}

// AddResult reports what Add actually did to the line.
type AddResult struct {
	Line      Line  `json:"line"`
	Requested int64 `json:"requested"`
	Merged    bool  `json:"merged"`
	Capped    bool  `json:"capped"`
	// Dropped is the number of requested pieces that did not fit under the stock ceiling.
	Dropped int64 `json:"dropped"`
}

// UpdateResult reports the outcome of UpdateQuantity.
type UpdateResult struct {
	Line      Line  `json:"line"`
	Requested int64 `json:"requested"`
	Removed   bool  `json:"removed"`
	Capped    bool  `json:"capped"`
}

// Cart is not safe for concurrent use.
type Cart struct {
	lines           []*Line
	discountPercent float64
	pwdSenior       bool
	customer        Customer
}

func New() *Cart {
	return &Cart{}
}

// Add resolves quantity to pieces and appends or merges a line. A merge is
// capped at the product's current stock; when none is left the line is dropped.
func (c *Cart) Add(product domain.Product, quantity packaging.Quantity) (AddResult, error) {
	if !product.IsActive {
		return AddResult{}, ErrInactiveProduct
	}
	pieces := packaging.ToPieces(quantity, product)
	if pieces <= 0 {
		return AddResult{}, ErrInvalidQuantity
	}

	if line := c.find(product.ID); line != nil {
		requested := line.TotalPieces + pieces
		total := requested
		if total > product.TotalStock {
			total = product.TotalStock
		}
		if total <= 0 {
			c.Remove(product.ID)
			return AddResult{Requested: requested, Merged: true, Dropped: requested}, ErrInsufficientStock
		}
		line.Product = product
		line.Stock = product.TotalStock
		line.TotalPieces = total
		line.Quantity = packaging.FromPieces(total, product)
		return AddResult{
			Line:      *line,
			Requested: requested,
			Merged:    true,
			Capped:    total < requested,
			Dropped:   requested - total,
		}, nil
	}

	if pieces > product.TotalStock {
		return AddResult{Requested: pieces}, ErrInsufficientStock
	}
	line := &Line{
		Product:     product,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		TotalPieces: pieces,
		UnitPrice:   product.SellingPrice,
		Stock:       product.TotalStock,
	}
	c.lines = append(c.lines, line)
	return AddResult{Line: *line, Requested: pieces}, nil
}

// UpdateQuantity replaces a line's piece count, clamped to its stock ceiling.
// A non-positive count removes the line.
func (c *Cart) UpdateQuantity(productID, pieces int64) (UpdateResult, error) {
	line := c.find(productID)
	if line == nil {
		return UpdateResult{}, ErrLineNotFound
	}
	if pieces <= 0 {
		removed := *line
		c.Remove(productID)
		return UpdateResult{Line: removed, Requested: pieces, Removed: true}, nil
	}

	total := pieces
	if total > line.Stock {
		total = line.Stock
	}
	line.TotalPieces = total
	line.Quantity = packaging.FromPieces(total, line.Product)
	return UpdateResult{Line: *line, Requested: pieces, Capped: total < pieces}, nil
}

// Remove deletes the product's line if present.
func (c *Cart) Remove(productID int64) {
	for i, l := range c.lines {
		if l.ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// Clear empties the cart and resets discount and customer metadata.
func (c *Cart) Clear() {
	c.lines = nil
	c.discountPercent = 0
	c.pwdSenior = false
	c.customer = Customer{}
}

func (c *Cart) SetDiscountPercent(pct float64) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidDiscount
	}
	c.discountPercent = pct
	return nil
}

func (c *Cart) SetPwdSenior(v bool) { c.pwdSenior = v }

func (c *Cart) SetCustomer(cu Customer) { c.customer = cu }

func (c *Cart) DiscountPercent() float64 { return c.discountPercent }

func (c *Cart) PwdSenior() bool { return c.pwdSenior }

func (c *Cart) Customer() Customer { return c.customer }

func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	for i, l := range c.lines {
		out[i] = *l
	}
	return out
}

// Totals prices the current cart without mutating it.
func (c *Cart) Totals() pricing.Totals {
	items := make([]pricing.Item, len(c.lines))
	for i, l := range c.lines {
		items[i] = pricing.Item{UnitPrice: l.UnitPrice, Pieces: l.TotalPieces}
	}
	return pricing.ComputeTotals(items, c.discountPercent, c.pwdSenior)
}

func (c *Cart) find(productID int64) *Line {
	for _, l := range c.lines {
		if l.ProductID == productID {
			return l
		}
	}
	return nil
}
