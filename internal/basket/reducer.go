package basket

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrOutOfStock     = errors.New("product out of stock")
	// ErrStockLimit is a warning: the line already sits at its stock ceiling
	// and the basket is returned unchanged.
	ErrStockLimit = errors.New("stock limit reached")
)

// Transition maps one snapshot to the next. On error the returned Basket is
// the unchanged input.
type Transition func(Basket) (Basket, error)

func (b Basket) withLines(lines []CartLine) Basket {
	if len(lines) == 0 {
		return Basket{}
	}
	return Basket{lines: lines}
}

// AddOrIncrement adds one unit of p, inserting a new line when p is absent.
func (b Basket) AddOrIncrement(p Product) (Basket, error) {
	if i := b.index(p.ID); i >= 0 {
		line := b.lines[i]
		if line.Quantity >= line.QuantityAvailable {
			return b, fmt.Errorf("product %d: %w (%d)", p.ID, ErrStockLimit, line.QuantityAvailable)
		}
		lines := b.Lines()
		lines[i].Quantity++
		return b.withLines(lines), nil
	}

	if p.ID <= 0 || p.Price.IsNegative() {
		return b, fmt.Errorf("product %d: %w", p.ID, ErrInvalidProduct)
	}
	if p.QuantityAvailable <= 0 {
		return b, fmt.Errorf("product %d: %w", p.ID, ErrOutOfStock)
	}

	lines := append(b.Lines(), CartLine{
		ProductID:         p.ID,
		Name:              p.Name,
		UnitPrice:         p.Price,
		QuantityAvailable: p.QuantityAvailable,
		Quantity:          1,
	})
	return b.withLines(lines), nil
}

// Decrement removes one unit; a line at quantity 1 is removed entirely.
func (b Basket) Decrement(productID int64) Basket {
	i := b.index(productID)
	if i < 0 {
		return b
	}
	if b.lines[i].Quantity > 1 {
		lines := b.Lines()
		lines[i].Quantity--
		return b.withLines(lines)
	}
	return b.Remove(productID)
}

func (b Basket) Remove(productID int64) Basket {
	i := b.index(productID)
	if i < 0 {
		return b
	}
	lines := b.Lines()
	return b.withLines(slices.Delete(lines, i, i+1))
}

func (b Basket) Clear() Basket {
	return Basket{}
}

// RemoveCompleted drops the lines whose product id is in ordered.
func (b Basket) RemoveCompleted(ordered []int64) Basket {
	if len(ordered) == 0 {
		return b
	}
	lines := slices.DeleteFunc(b.Lines(), func(l CartLine) bool {
		return slices.Contains(ordered, l.ProductID)
	})
	return b.withLines(lines)
}

func AddOrIncrement(p Product) Transition {
	return func(b Basket) (Basket, error) { return b.AddOrIncrement(p) }
}

func Decrement(productID int64) Transition {
	return func(b Basket) (Basket, error) { return b.Decrement(productID), nil }
}

func Remove(productID int64) Transition {
	return func(b Basket) (Basket, error) { return b.Remove(productID), nil }
}

func Clear() Transition {
	return func(b Basket) (Basket, error) { return b.Clear(), nil }
}

func RemoveCompleted(ordered []int64) Transition {
	return func(b Basket) (Basket, error) { return b.RemoveCompleted(ordered), nil }
}
