package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jayjaytrn/freshflow/internal/db"
	"github.com/jayjaytrn/freshflow/models"
	"go.uber.org/zap"
)

// Webhook outcomes reported through Bridge.Observe.
const (
	OutcomeIgnored    = "ignored"
	OutcomeUnmatched  = "unmatched"
	OutcomeReconciled = "reconciled"
	OutcomeStale      = "stale"
	OutcomeFailed     = "failed"
)

// PaidRule returns the status a paid charge moves order to, and whether it moves at all.
type PaidRule func(order models.Order) (models.OrderStatus, bool)

// Bridge ties the gateway to the order store. It keeps no order state of its own.
type Bridge struct {
	Gateway Gateway
	Store   db.OrderStore
	Logger  *zap.SugaredLogger
	Observe func(outcome string)
	// Paid decides the fulfillment move for a paid charge. When nil the bridge
	// only mirrors provider fields.
	Paid PaidRule
}

func NewBridge(gateway Gateway, store db.OrderStore, logger *zap.SugaredLogger) *Bridge {
	return &Bridge{Gateway: gateway, Store: store, Logger: logger}
}

func (b *Bridge) CreateCharge(ctx context.Context, order models.Order) (models.Charge, error) {
	return b.Gateway.CreateCharge(ctx, order)
}

func (b *Bridge) PollStatus(ctx context.Context, transactionID string) (models.StatusResult, error) {
	return b.Gateway.PollStatus(ctx, transactionID)
}

// Reconcile mirrors a gateway status into the order. A paid charge moves the
// order as Paid decides; every other status leaves fulfillment alone.
// Running it again with the same input changes nothing.
func (b *Bridge) Reconcile(ctx context.Context, orderID, transactionID, status string) (models.Order, error) {
	if status == "" {
		status = models.ProviderUnknown
	}
	order, _, err := b.Store.ApplyProviderInfo(ctx, orderID, models.ProviderInfo{
		Provider:       models.ProviderPagarme,
		TransactionID:  transactionID,
		ProviderStatus: status,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to store provider status: %w", err)
	}

	if status != models.ProviderPaid || b.Paid == nil {
		return order, nil
	}
	next, move := b.Paid(order)
	if !move {
		return order, nil
	}

	advanced, changed, err := b.Store.ApplyStatus(ctx, orderID, next)
	switch {
	case errors.Is(err, models.ErrIllegalTransition):
		// moved past pending concurrently
		return b.Store.GetByID(ctx, orderID)
	case err != nil:
		return models.Order{}, fmt.Errorf("failed to advance paid order: %w", err)
	}
	if changed {
		b.Logger.Infow("order paid", "order_id", orderID, "transaction_id", transactionID)
	}
	return advanced, nil
}

// HandleNotification processes one webhook body. Only store and transport
// failures are returned; everything else is acknowledged.
func (b *Bridge) HandleNotification(ctx context.Context, raw []byte) (models.NotificationResult, error) {
	n, shape, ok := ParseNotification(raw)
	if !ok || n.TransactionID == "" {
		b.Logger.Warnw("webhook payload ignored", "shape", shape, "bytes", len(raw))
		b.observe(OutcomeIgnored)
		return models.NotificationResult{OK: true, Ignored: true}, nil
	}

	var (
		order models.Order
		err   error
	)
	if n.OrderID != "" {
		order, err = b.Store.GetByID(ctx, n.OrderID)
	} else {
		order, err = b.Store.GetByTransactionID(ctx, n.TransactionID)
	}
	if errors.Is(err, models.ErrNotFound) {
		b.Logger.Infow("webhook matched no order",
			"transaction_id", n.TransactionID, "order_id", n.OrderID, "status", n.Status)
		b.observe(OutcomeUnmatched)
		return models.NotificationResult{OK: true}, nil
	}
	if err != nil {
		b.observe(OutcomeFailed)
		return models.NotificationResult{}, fmt.Errorf("failed to find order for transaction %s: %w", n.TransactionID, err)
	}

	if order.HasCharge() && order.ProviderTransactionID != n.TransactionID && n.Status != models.ProviderPaid {
		b.Logger.Infow("webhook for a replaced charge ignored",
			"order_id", order.ID, "transaction_id", n.TransactionID,
			"current_transaction_id", order.ProviderTransactionID, "status", n.Status)
		b.observe(OutcomeStale)
		return models.NotificationResult{OK: true, OrderID: order.ID}, nil
	}

	updated, err := b.Reconcile(ctx, order.ID, n.TransactionID, n.Status)
	if errors.Is(err, models.ErrNotFound) {
		b.observe(OutcomeUnmatched)
		return models.NotificationResult{OK: true}, nil
	}
	if err != nil {
		b.observe(OutcomeFailed)
		return models.NotificationResult{}, err
	}

	b.Logger.Infow("webhook reconciled",
		"shape", shape, "order_id", updated.ID, "transaction_id", n.TransactionID,
		"status", updated.Status, "provider_status", updated.ProviderStatus)
	b.observe(OutcomeReconciled)
	return models.NotificationResult{OK: true, OrderID: updated.ID, Matched: true}, nil
}

func (b *Bridge) observe(outcome string) {
	if b.Observe != nil {
		b.Observe(outcome)
	}
}
