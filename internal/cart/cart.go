// Package cart accumulates draft order lines in memory before placement.
package cart

import (
	"fmt"
	"strings"

	"github.com/jayjaytrn/freshflow/models"
	"github.com/shopspring/decimal"
)

const DefaultLineName = "Juice"

// ErrIndex is returned for a line position outside the cart.
var ErrIndex = fmt.Errorf("%w: line index out of range", models.ErrValidation)

// Candidate is an unchecked line as it comes from a builder screen or a client.
type Candidate struct {
	Name        string          `json:"name"`
	Ingredients []string        `json:"ingredients"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

type Cart struct {
	lines []models.CartLine
}

func New() *Cart {
	return &Cart{}
}

// AddLine repairs the candidate and appends it. Quantity is clamped, a
// negative price becomes zero and ingredients are cleaned.
// It fails only when no ingredient survives cleaning.
func (c *Cart) AddLine(candidate Candidate) (models.CartLine, error) {
	line := models.CartLine{
		Name:        strings.TrimSpace(candidate.Name),
		Ingredients: models.CleanIngredients(candidate.Ingredients),
		UnitPrice:   candidate.UnitPrice,
		Quantity:    clampQuantity(candidate.Quantity),
	}
	if line.Name == "" {
		line.Name = DefaultLineName
	}
	if line.UnitPrice.IsNegative() {
		line.UnitPrice = decimal.Zero
	}
	if len(line.Ingredients) == 0 {
		return models.CartLine{}, models.Validationf("line %q has no ingredients", line.Name)
	}

	c.lines = append(c.lines, line)
	return line, nil
}

// AddFromMenu snapshots a catalog item. Later catalog edits do not affect the line.
func (c *Cart) AddFromMenu(item models.MenuItem, quantity int) (models.CartLine, error) {
	return c.AddLine(Candidate{
		Name:        item.Name,
		Ingredients: append([]string(nil), item.Ingredients...),
		UnitPrice:   item.Price,
		Quantity:    quantity,
	})
}

// UpdateQuantity shifts a line quantity by delta within the allowed range.
func (c *Cart) UpdateQuantity(index, delta int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrIndex
	}
	c.lines[index].Quantity = clampQuantity(c.lines[index].Quantity + delta)
	return nil
}

func (c *Cart) RemoveLine(index int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrIndex
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	return nil
}

func (c *Cart) Subtotal() decimal.Decimal {
	return models.SumLines(c.lines)
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy of the cart lines.
func (c *Cart) Lines() []models.CartLine {
	out := make([]models.CartLine, len(c.lines))
	for i, l := range c.lines {
		l.Ingredients = append([]string(nil), l.Ingredients...)
		out[i] = l
	}
	return out
}

func (c *Cart) Clear() {
	c.lines = nil
}

// FromCandidates builds a cart from client supplied lines, stopping at the first bad one.
func FromCandidates(candidates []Candidate) (*Cart, error) {
	c := New()
	for i, cand := range candidates {
		if _, err := c.AddLine(cand); err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
	}
	return c, nil
}

func clampQuantity(q int) int {
	if q < models.MinQuantity {
		return models.MinQuantity
	}
	if q > models.MaxQuantity {
		return models.MaxQuantity
	}
	return q
}
