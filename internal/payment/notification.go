package payment

import (
	"encoding/json"

	"github.com/jayjaytrn/freshflow/models"
)

type metadata struct {
	OrderID flexString `json:"orderId"`
}

type transaction struct {
	ID            flexString `json:"id"`
	Status        string     `json:"status"`
	CurrentStatus string     `json:"current_status"`
	Metadata      *metadata  `json:"metadata"`
}

func (t transaction) notification(status string) models.Notification {
	n := models.Notification{TransactionID: string(t.ID), Status: status}
	if t.Metadata != nil {
		n.OrderID = string(t.Metadata.OrderID)
	}
	return n
}

// envelope holds every field any known webhook shape uses. The embedded
// transaction carries the bare-object form.
type envelope struct {
	Event   string       `json:"event"`
	Payload *transaction `json:"payload"`
	Type    string       `json:"type"`
	Data    *transaction `json:"data"`
	Object  string       `json:"object"`
	transaction
}

type ShapeRule struct {
	Name    string
	Extract func(e envelope) (models.Notification, bool)
}

// NotificationShapes are tried in order; the first that matches wins.
var NotificationShapes = []ShapeRule{
	{
		Name: "event",
		Extract: func(e envelope) (models.Notification, bool) {
			if e.Event != "transaction_status_changed" || e.Payload == nil {
				return models.Notification{}, false
			}
			return e.Payload.notification(firstNonEmpty(e.Payload.CurrentStatus, e.Payload.Status)), true
		},
	},
	{
		Name: "data",
		Extract: func(e envelope) (models.Notification, bool) {
			if e.Type == "" || e.Data == nil {
				return models.Notification{}, false
			}
			return e.Data.notification(firstNonEmpty(e.Data.Status, e.Data.CurrentStatus)), true
		},
	},
	{
		Name: "object",
		Extract: func(e envelope) (models.Notification, bool) {
			if e.Object != "transaction" {
				return models.Notification{}, false
			}
			return e.transaction.notification(e.Status), true
		},
	},
}

// ParseNotification extracts the transaction, status and correlation order id
// from a webhook body. ok is false when no shape matched or the body is not JSON.
func ParseNotification(raw []byte) (n models.Notification, shape string, ok bool) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return models.Notification{}, "", false
	}
	for _, rule := range NotificationShapes {
		if n, ok := rule.Extract(e); ok {
			return n, rule.Name, true
		}
	}
	return models.Notification{}, "", false
}
