package models

import (
	"encoding/json"
	"time"
)

const (
	ProviderPagarme  = "pagarme"
	PaymentMethodPix = "pix"
)

// ChargeItem is one line of a charge creation request, amounts in minor units.
type ChargeItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Tangible  bool   `json:"tangible"`
}

type ChargeMetadata struct {
	OrderID string `json:"orderId"`
}

// ChargeRequest is the body sent to the gateway to create a Pix charge.
type ChargeRequest struct {
	APIKey        string         `json:"api_key,omitempty"`
	Amount        int64          `json:"amount"`
	PaymentMethod string         `json:"payment_method"`
	Expiration    int64          `json:"expiration"`
	Metadata      ChargeMetadata `json:"metadata"`
	Items         []ChargeItem   `json:"items"`
}

// Charge is what the bridge returns after the gateway accepted a charge.
type Charge struct {
	OrderID          string    `json:"orderId"`
	TransactionID    string    `json:"transactionId"`
	QRPayload        string    `json:"qrCode,omitempty"`
	QRImageURL       string    `json:"qrCodeUrl,omitempty"`
	ProviderStatus   string    `json:"providerStatus"`
	AmountMinorUnits int64     `json:"amount"`
	ExpiresAt        time.Time `json:"expiresAt,omitempty"`
	Existing         bool      `json:"existing,omitempty"`
}

// StatusResult is a raw gateway status read.
type StatusResult struct {
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"raw"`
}

// Notification is what a webhook payload boils down to.
type Notification struct {
	TransactionID string
	Status        string
	OrderID       string
}

// NotificationResult is the webhook acknowledgement body.
type NotificationResult struct {
	OK      bool   `json:"ok"`
	Ignored bool   `json:"ignored,omitempty"`
	OrderID string `json:"-"`
	Matched bool   `json:"-"`
}
