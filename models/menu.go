package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	maxMenuNameLen  = 80
	maxGradientLen  = 120
	DefaultGradient = "from-fuchsia-500/40 to-pink-500/40"
)

// MenuItem is a purchasable preset owned by the catalog.
type MenuItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Ingredients []string        `json:"ingredients"`
	Price       decimal.Decimal `json:"price"`
	Active      bool            `json:"active"`
	Gradient    string          `json:"gradient"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// MenuItemPatch carries optional fields of a catalog update.
type MenuItemPatch struct {
	Name        *string          `json:"name,omitempty"`
	Ingredients []string         `json:"ingredients,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Active      *bool            `json:"active,omitempty"`
	Gradient    *string          `json:"gradient,omitempty"`
}

// CleanIngredients trims entries, drops empty ones and keeps at most MaxIngredients.
func CleanIngredients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == MaxIngredients {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func cleanGradient(g string) string {
	g = strings.TrimSpace(g)
	if g == "" {
		return DefaultGradient
	}
	return truncate(g, maxGradientLen)
}

// Normalize applies the catalog rules and reports the first violation.
func (m *MenuItem) Normalize() error {
	m.Name = truncate(strings.TrimSpace(m.Name), maxMenuNameLen)
	m.Ingredients = CleanIngredients(m.Ingredients)
	m.Gradient = cleanGradient(m.Gradient)

	if m.Name == "" {
		return Validationf("menu item name is required")
	}
	if len(m.Ingredients) == 0 {
		return Validationf("menu item needs at least one ingredient")
	}
	if !m.Price.IsPositive() {
		return Validationf("menu item price must be > 0")
	}
	return nil
}

// Apply merges a patch into the item and renormalizes it.
func (m *MenuItem) Apply(p MenuItemPatch) error {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Ingredients != nil {
		m.Ingredients = p.Ingredients
	}
	if p.Price != nil {
		m.Price = *p.Price
	}
	if p.Active != nil {
		m.Active = *p.Active
	}
	if p.Gradient != nil {
		m.Gradient = *p.Gradient
	}
	return m.Normalize()
}
