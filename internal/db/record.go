package db

import (
	"encoding/json"
	"time"

	"github.com/jayjaytrn/freshflow/models"
	"github.com/shopspring/decimal"
)

// LegacyLineName names the single line synthesized from old one-item orders.
const LegacyLineName = "Suco Freshflow"

// lineRecord accepts both the current and the older line field names.
type lineRecord struct {
	Name        string           `json:"name"`
	Ingredients []string         `json:"ingredients,omitempty"`
	Items       []string         `json:"items,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unitPrice,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Quantity    int              `json:"quantity,omitempty"`
	Qty         int              `json:"qty,omitempty"`
}

func (r lineRecord) line() models.CartLine {
	l := models.CartLine{Name: r.Name, Ingredients: r.Ingredients, Quantity: r.Quantity}
	if len(l.Ingredients) == 0 {
		l.Ingredients = r.Items
	}
	switch {
	case r.UnitPrice != nil:
		l.UnitPrice = *r.UnitPrice
	case r.Price != nil:
		l.UnitPrice = *r.Price
	}
	if l.Quantity == 0 {
		l.Quantity = r.Qty
	}
	if l.Quantity < models.MinQuantity {
		l.Quantity = models.MinQuantity
	}
	if l.Name == "" {
		l.Name = LegacyLineName
	}
	return l
}

// orderRecord is the stored document. Items/Price/Qty are the legacy one-line shape.
type orderRecord struct {
	ID                    string              `json:"id"`
	OwnerID               string              `json:"ownerId"`
	Lines                 []lineRecord        `json:"lines,omitempty"`
	TotalPrice            *decimal.Decimal    `json:"totalPrice,omitempty"`
	Items                 []string            `json:"items,omitempty"`
	Price                 *decimal.Decimal    `json:"price,omitempty"`
	Qty                   int                 `json:"qty,omitempty"`
	DeliveryMode          models.DeliveryMode `json:"deliveryMode,omitempty"`
	Address               *models.Address     `json:"address,omitempty"`
	PaymentMethod         string              `json:"paymentMethod"`
	Status                models.OrderStatus  `json:"status"`
	PaymentProvider       string              `json:"paymentProvider,omitempty"`
	ProviderTransactionID string              `json:"providerTransactionId,omitempty"`
	ProviderStatus        string              `json:"providerStatus,omitempty"`
	Version               int64               `json:"version"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

func toRecord(o models.Order) orderRecord {
	lines := make([]lineRecord, len(o.Lines))
	for i, l := range o.Lines {
		price := l.UnitPrice
		lines[i] = lineRecord{Name: l.Name, Ingredients: l.Ingredients, UnitPrice: &price, Quantity: l.Quantity}
	}
	total := o.TotalPrice
	return orderRecord{
		ID:                    o.ID,
		OwnerID:               o.OwnerID,
		Lines:                 lines,
		TotalPrice:            &total,
		DeliveryMode:          o.DeliveryMode,
		Address:               o.Address,
		PaymentMethod:         o.PaymentMethod,
		Status:                o.Status,
		PaymentProvider:       o.PaymentProvider,
		ProviderTransactionID: o.ProviderTransactionID,
		ProviderStatus:        o.ProviderStatus,
		Version:               o.Version,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

// order normalizes the record so nothing past the store sees the legacy shape.
// The total is always recomputed from the lines.
func (r orderRecord) order() models.Order {
	var lines []models.CartLine
	if len(r.Lines) > 0 {
		lines = make([]models.CartLine, len(r.Lines))
		for i, lr := range r.Lines {
			lines[i] = lr.line()
		}
	} else if len(r.Items) > 0 || r.Price != nil {
		lines = []models.CartLine{lineRecord{Items: r.Items, Price: r.Price, Qty: r.Qty}.line()}
	}

	status := r.Status
	if status == "" {
		status = models.StatusPending
	}
	version := r.Version
	if version == 0 {
		version = 1
	}
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = r.CreatedAt
	}

	return models.Order{
		ID:                    r.ID,
		OwnerID:               r.OwnerID,
		Lines:                 lines,
		TotalPrice:            models.SumLines(lines),
		DeliveryMode:          r.DeliveryMode,
		Address:               r.Address,
		PaymentMethod:         r.PaymentMethod,
		Status:                status,
		PaymentProvider:       r.PaymentProvider,
		ProviderTransactionID: r.ProviderTransactionID,
		ProviderStatus:        r.ProviderStatus,
		Version:               version,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             updated,
	}
}

func encodeOrder(o models.Order) ([]byte, error) {
	return json.Marshal(toRecord(o))
}

func decodeOrder(data []byte) (models.Order, error) {
	var r orderRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Order{}, err
	}
	return r.order(), nil
}
