package db

import (
	"context"

	"github.com/jayjaytrn/freshflow/models"
)

// Notifier is told about every committed order mutation, after the commit.
type Notifier interface {
	OrderChanged(ctx context.Context, eventType string, order models.Order)
}

type Notifiers []Notifier

func (n Notifiers) OrderChanged(ctx context.Context, eventType string, order models.Order) {
	for _, notifier := range n {
		notifier.OrderChanged(ctx, eventType, order.Clone())
	}
}

// Notifying wraps a Database and reports committed order changes. No-op
// mutations are not reported.
type Notifying struct {
	Database
	Notifier Notifier
}

func NewNotifying(database Database, notifier Notifier) *Notifying {
	return &Notifying{Database: database, Notifier: notifier}
}

func (n *Notifying) Create(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	o, err := n.Database.Create(ctx, draft)
	if err != nil {
		return o, err
	}
	n.Notifier.OrderChanged(ctx, models.EventOrderPlaced, o)
	return o, nil
}

func (n *Notifying) ApplyStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, bool, error) {
	o, changed, err := n.Database.ApplyStatus(ctx, id, status)
	if err == nil && changed {
		n.Notifier.OrderChanged(ctx, models.EventOrderStatusChanged, o)
	}
	return o, changed, err
}

func (n *Notifying) ApplyProviderInfo(ctx context.Context, id string, info models.ProviderInfo) (models.Order, bool, error) {
	o, changed, err := n.Database.ApplyProviderInfo(ctx, id, info)
	if err == nil && changed {
		n.Notifier.OrderChanged(ctx, models.EventOrderPaymentUpdated, o)
	}
	return o, changed, err
}
