package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jayjaytrn/freshflow/internal/cart"
	"github.com/jayjaytrn/freshflow/internal/db"
	"github.com/jayjaytrn/freshflow/internal/payment"
	"github.com/jayjaytrn/freshflow/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PlaceRequest is the client body for order placement. The owner always comes
// from the principal.
type PlaceRequest struct {
	OwnerID       string              `json:"ownerId,omitempty"`
	Lines         []cart.Candidate    `json:"lines"`
	DeliveryMode  models.DeliveryMode `json:"deliveryMode,omitempty"`
	Address       *models.Address     `json:"address,omitempty"`
	PaymentMethod string              `json:"paymentMethod"`
}

// Controller drives orders through their lifecycle. The store stays the only
// holder of order state.
type Controller struct {
	Store  db.OrderStore
	Bridge *payment.Bridge
	Logger *zap.SugaredLogger

	// charges collapses concurrent charge starts for one order id.
	charges singleflight.Group
}

// NewController also hands the bridge the paid transition when it has none.
func NewController(store db.OrderStore, bridge *payment.Bridge, logger *zap.SugaredLogger) *Controller {
	if bridge != nil && bridge.Paid == nil {
		bridge.Paid = PaidTransition
	}
	return &Controller{Store: store, Bridge: bridge, Logger: logger}
}

// PaidTransition is the move a confirmed payment makes, as Decide rules it.
func PaidTransition(order models.Order) (models.OrderStatus, bool) {
	d, err := Decide(order, Intent{Kind: IntentPaid})
	return d.Status, err == nil && d.Changed
}

// Place turns the submitted cart into a pending order.
func (c *Controller) Place(ctx context.Context, p models.Principal, req PlaceRequest) (models.Order, error) {
	if !p.Authenticated() {
		return models.Order{}, models.ErrAuth
	}
	if req.OwnerID != "" && req.OwnerID != p.UserID && !p.Admin {
		return models.Order{}, models.ErrForbidden
	}

	built, err := cart.FromCandidates(req.Lines)
	if err != nil {
		return models.Order{}, err
	}

	draft := models.Order{OwnerID: p.UserID, Lines: built.Lines(), Status: models.StatusDraft}
	if _, err := Decide(draft, Intent{Kind: IntentPlace, Actor: p}); err != nil {
		return models.Order{}, err
	}

	order, err := c.Store.Create(ctx, models.OrderDraft{
		OwnerID:       p.UserID,
		Lines:         draft.Lines,
		DeliveryMode:  req.DeliveryMode,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return models.Order{}, err
	}

	c.Logger.Infow("order placed", "order_id", order.ID, "owner_id", order.OwnerID,
		"lines", len(order.Lines), "total", order.TotalPrice.StringFixed(2))
	return order, nil
}

// Get returns an order its owner or an admin may see.
func (c *Controller) Get(ctx context.Context, p models.Principal, id string) (models.Order, error) {
	if !p.Authenticated() {
		return models.Order{}, models.ErrAuth
	}
	order, err := c.Store.GetByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if !p.CanView(order.OwnerID) {
		return models.Order{}, models.ErrForbidden
	}
	return order, nil
}

func (c *Controller) ListMine(ctx context.Context, p models.Principal) ([]models.Order, error) {
	if !p.Authenticated() {
		return nil, models.ErrAuth
	}
	return c.Store.ListByOwner(ctx, p.UserID)
}

func (c *Controller) ListAll(ctx context.Context, p models.Principal) ([]models.Order, error) {
	if !p.Authenticated() {
		return nil, models.ErrAuth
	}
	if !p.Admin {
		return nil, models.ErrForbidden
	}
	return c.Store.ListAll(ctx)
}

// AdvanceStatus is the administrative transition. Repeating it is a no-op.
func (c *Controller) AdvanceStatus(ctx context.Context, p models.Principal, id string, status models.OrderStatus) (models.Order, error) {
	order, err := c.Store.GetByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	decision, err := Decide(order, Intent{Kind: IntentAdvance, Actor: p, Status: status})
	if err != nil {
		return models.Order{}, err
	}
	if !decision.Changed {
		return order, nil
	}

	updated, changed, err := c.Store.ApplyStatus(ctx, id, decision.Status)
	if err != nil {
		return models.Order{}, err
	}
	if changed {
		c.Logger.Infow("order status changed", "order_id", id, "from", order.Status, "status", updated.Status, "by", p.UserID)
	}
	return updated, nil
}

// StartPayment creates a charge for a pending order. When the order already
// carries a live charge, that charge is polled and returned instead.
// Concurrent calls for one order share a single gateway charge.
func (c *Controller) StartPayment(ctx context.Context, p models.Principal, id string) (models.Charge, error) {
	order, err := c.Get(ctx, p, id)
	if err != nil {
		return models.Charge{}, err
	}
	if _, err := Decide(order, Intent{Kind: IntentCharge, Actor: p}); err != nil {
		return models.Charge{}, err
	}

	v, err, shared := c.charges.Do(id, func() (any, error) {
		return c.startCharge(ctx, p, id)
	})
	if err != nil {
		return models.Charge{}, err
	}
	if shared {
		c.Logger.Debugw("charge start shared with a concurrent request", "order_id", id)
	}
	return v.(models.Charge), nil
}

// startCharge rereads the order so a charge linked by an earlier call is seen.
func (c *Controller) startCharge(ctx context.Context, p models.Principal, id string) (models.Charge, error) {
	order, err := c.Store.GetByID(ctx, id)
	if err != nil {
		return models.Charge{}, err
	}
	if _, err := Decide(order, Intent{Kind: IntentCharge, Actor: p}); err != nil {
		return models.Charge{}, err
	}

	if order.HasCharge() && !chargeDead(order.ProviderStatus) {
		result, err := c.Bridge.PollStatus(ctx, order.ProviderTransactionID)
		if err != nil {
			return models.Charge{}, err
		}
		updated, err := c.Bridge.Reconcile(ctx, order.ID, order.ProviderTransactionID, result.Status)
		if err != nil {
			return models.Charge{}, err
		}
		if !chargeDead(updated.ProviderStatus) {
			c.Logger.Infow("reusing existing charge", "order_id", id,
				"transaction_id", updated.ProviderTransactionID, "status", updated.ProviderStatus)
			charge, err := payment.ExistingCharge(updated, result)
			if err != nil {
				c.Logger.Debugw("existing charge returned without qr data", "order_id", id, "error", err)
			}
			return charge, nil
		}
		order = updated
	}

	charge, err := c.Bridge.CreateCharge(ctx, order)
	if err != nil {
		c.Logger.Warnw("charge creation failed", "order_id", id, "error", err)
		return models.Charge{}, err
	}
	if _, err := c.Bridge.Reconcile(ctx, order.ID, charge.TransactionID, charge.ProviderStatus); err != nil {
		return models.Charge{}, fmt.Errorf("charge %s created but not recorded: %w", charge.TransactionID, err)
	}
	return charge, nil
}

// RefreshPayment polls the gateway for the order's charge and reconciles the
// result. A gateway failure leaves the order untouched.
func (c *Controller) RefreshPayment(ctx context.Context, p models.Principal, id string) (models.Order, models.StatusResult, error) {
	order, err := c.Get(ctx, p, id)
	if err != nil {
		return models.Order{}, models.StatusResult{}, err
	}
	if !order.HasCharge() {
		return models.Order{}, models.StatusResult{}, fmt.Errorf("%w: order %s has no charge", models.ErrNotFound, id)
	}

	result, err := c.Bridge.PollStatus(ctx, order.ProviderTransactionID)
	if err != nil {
		return models.Order{}, models.StatusResult{}, err
	}
	updated, err := c.Bridge.Reconcile(ctx, order.ID, order.ProviderTransactionID, result.Status)
	if err != nil {
		return models.Order{}, models.StatusResult{}, err
	}
	return updated, result, nil
}

// TransactionStatus is the raw admin read of any transaction.
func (c *Controller) TransactionStatus(ctx context.Context, p models.Principal, transactionID string) (models.StatusResult, error) {
	if !p.Authenticated() {
		return models.StatusResult{}, models.ErrAuth
	}
	if !p.Admin {
		return models.StatusResult{}, models.ErrForbidden
	}
	return c.Bridge.PollStatus(ctx, transactionID)
}

// chargeDead reports whether a new charge may replace the current one.
func chargeDead(status string) bool {
	return status == models.ProviderFailed || status == models.ProviderExpired ||
		status == "refused" || status == "canceled"
}

// IsClientError separates caller mistakes from server faults for logging.
func IsClientError(err error) bool {
	for _, target := range []error{
		models.ErrValidation, models.ErrInvalidAmount, models.ErrAuth, models.ErrForbidden,
		models.ErrNotFound, models.ErrIllegalTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
