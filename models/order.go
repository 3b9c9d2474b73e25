package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxIngredients = 20
	MinQuantity    = 1
	MaxQuantity    = 50
	summaryLimit   = 10
)

// CartLine is one purchasable entry. Once copied into an Order it is never changed.
type CartLine struct {
	Name        string          `json:"name"`
	Ingredients []string        `json:"ingredients"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

// Subtotal is UnitPrice × Quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MinorUnits rounds the unit price to cents before multiplying by the quantity.
func (l CartLine) MinorUnits() int64 {
	return l.UnitMinorUnits() * int64(l.Quantity)
}

func (l CartLine) UnitMinorUnits() int64 {
	return l.UnitPrice.Shift(2).Round(0).IntPart()
}

func (l CartLine) clone() CartLine {
	l.Ingredients = append([]string(nil), l.Ingredients...)
	return l
}

// Validate checks a line that is about to be persisted. It does not repair anything.
func (l CartLine) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return Validationf("line name is required")
	}
	if len(l.Ingredients) == 0 || len(l.Ingredients) > MaxIngredients {
		return Validationf("line %q must have 1..%d ingredients", l.Name, MaxIngredients)
	}
	for _, ing := range l.Ingredients {
		if strings.TrimSpace(ing) == "" {
			return Validationf("line %q has an empty ingredient", l.Name)
		}
	}
	if l.UnitPrice.IsNegative() {
		return Validationf("line %q has a negative price", l.Name)
	}
	if l.Quantity < MinQuantity || l.Quantity > MaxQuantity {
		return Validationf("line %q quantity must be within %d..%d", l.Name, MinQuantity, MaxQuantity)
	}
	return nil
}

// SumLines is the order total over lines.
func SumLines(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

type DeliveryMode string

const (
	DeliveryUnset   DeliveryMode = ""
	DeliveryExpress DeliveryMode = "express"
	DeliveryPickup  DeliveryMode = "pickup"
)

func (m DeliveryMode) Valid() bool {
	switch m {
	case DeliveryUnset, DeliveryExpress, DeliveryPickup:
		return true
	}
	return false
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	District   string `json:"district"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

// Complete reports whether every field is filled in.
func (a *Address) Complete() bool {
	if a == nil {
		return false
	}
	for _, f := range []string{a.Street, a.Number, a.District, a.City, a.PostalCode} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// OrderDraft is what the client submits when placing an order.
type OrderDraft struct {
	OwnerID       string       `json:"ownerId"`
	Lines         []CartLine   `json:"lines"`
	DeliveryMode  DeliveryMode `json:"deliveryMode,omitempty"`
	Address       *Address     `json:"address,omitempty"`
	PaymentMethod string       `json:"paymentMethod"`
}

// ProviderInfo links an order to a gateway charge.
type ProviderInfo struct {
	Provider       string `json:"provider"`
	TransactionID  string `json:"transactionId"`
	ProviderStatus string `json:"providerStatus"`
}

type Order struct {
	ID                    string          `json:"id"`
	OwnerID               string          `json:"ownerId"`
	Lines                 []CartLine      `json:"lines"`
	TotalPrice            decimal.Decimal `json:"totalPrice"`
	DeliveryMode          DeliveryMode    `json:"deliveryMode,omitempty"`
	Address               *Address        `json:"address,omitempty"`
	PaymentMethod         string          `json:"paymentMethod"`
	Status                OrderStatus     `json:"status"`
	PaymentProvider       string          `json:"paymentProvider,omitempty"`
	ProviderTransactionID string          `json:"providerTransactionId,omitempty"`
	ProviderStatus        string          `json:"providerStatus,omitempty"`
	Version               int64           `json:"version"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// HasCharge reports whether a gateway charge is linked to the order.
func (o *Order) HasCharge() bool {
	return o.ProviderTransactionID != ""
}

// ItemsSummary lists the first line names for compact displays.
func (o *Order) ItemsSummary() []string {
	n := len(o.Lines)
	if n > summaryLimit {
		n = summaryLimit
	}
	names := make([]string, 0, n)
	for _, l := range o.Lines[:n] {
		names = append(names, l.Name)
	}
	return names
}

// Clone returns a deep copy so callers never share line slices with a store.
func (o Order) Clone() Order {
	lines := make([]CartLine, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = l.clone()
	}
	o.Lines = lines
	if o.Address != nil {
		a := *o.Address
		o.Address = &a
	}
	return o
}
