// Package basket holds the shopping basket: immutable snapshots, the pure
// transitions applied to them and the per-owner store that persists every
// committed snapshot.
package basket

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Product is the catalog view needed to put something in the basket.
type Product struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	QuantityAvailable int             `json:"quantity_available"`
}

// CartLine is one product in the basket. UnitPrice and QuantityAvailable are
// snapshots taken when the line was created and are never re-fetched.
type CartLine struct {
	ProductID         int64           `json:"product_id"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	QuantityAvailable int             `json:"quantity_available"`
	Quantity          int             `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Basket is a read-only snapshot. Every transition returns a new value and
// leaves the receiver untouched, so a Basket can be shared between readers.
type Basket struct {
	lines []CartLine
}

func New(lines ...CartLine) Basket {
	b := Basket{}
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := b.index(l.ProductID); i >= 0 {
			b.lines[i] = l
			continue
		}
		b.lines = append(b.lines, l)
	}
	return b
}

// Lines returns a copy of the lines in insertion order.
func (b Basket) Lines() []CartLine {
	out := make([]CartLine, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b Basket) Line(productID int64) (CartLine, bool) {
	if i := b.index(productID); i >= 0 {
		return b.lines[i], true
	}
	return CartLine{}, false
}

func (b Basket) Len() int { return len(b.lines) }

func (b Basket) IsEmpty() bool { return len(b.lines) == 0 }

// Quantity is the total number of units across all lines.
func (b Basket) Quantity() int {
	n := 0
	for _, l := range b.lines {
		n += l.Quantity
	}
	return n
}

func (b Basket) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (b Basket) ProductIDs() []int64 {
	ids := make([]int64, 0, len(b.lines))
	for _, l := range b.lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (b Basket) index(productID int64) int {
	for i := range b.lines {
		if b.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

type wireBasket struct {
	Items []CartLine `json:"items"`
}

func (b Basket) MarshalJSON() ([]byte, error) {
	items := b.lines
	if items == nil {
		items = []CartLine{}
	}
	return json.Marshal(wireBasket{Items: items})
}

func (b *Basket) UnmarshalJSON(data []byte) error {
	var w wireBasket
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = New(w.Items...)
	return nil
}
