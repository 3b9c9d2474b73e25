// Package lifecycle owns the order state machine and the operations that drive it.
package lifecycle

import (
	"fmt"

	"github.com/jayjaytrn/freshflow/models"
)

type IntentKind string

const (
	// IntentPlace submits a draft cart.
	IntentPlace IntentKind = "place"
	// IntentCharge starts a gateway charge for a pending order.
	IntentCharge IntentKind = "charge"
	// IntentPaid reports that the gateway observed a paid charge.
	IntentPaid IntentKind = "paid"
	// IntentAdvance is an administrative status change.
	IntentAdvance IntentKind = "advance"
)

type Intent struct {
	Kind   IntentKind
	Actor  models.Principal
	Status models.OrderStatus
}

// Decision is the status an order should end up in after an intent.
type Decision struct {
	Status  models.OrderStatus
	Changed bool
}

// Decide is the pure transition function over an order snapshot. It never
// touches storage; the store applies the result atomically.
func Decide(order models.Order, intent Intent) (Decision, error) {
	current := order.Status
	if current == "" {
		current = models.StatusDraft
	}
	stay := Decision{Status: current}

	switch intent.Kind {
	case IntentPlace:
		if !intent.Actor.Authenticated() {
			return stay, models.ErrAuth
		}
		if current != models.StatusDraft {
			return stay, fmt.Errorf("%w: order already placed", models.ErrIllegalTransition)
		}
		if len(order.Lines) == 0 {
			return stay, models.Validationf("cart is empty")
		}
		return Decision{Status: models.StatusPending, Changed: true}, nil

	case IntentCharge:
		if !intent.Actor.Authenticated() {
			return stay, models.ErrAuth
		}
		if !intent.Actor.CanView(order.OwnerID) {
			return stay, models.ErrForbidden
		}
		if current != models.StatusPending {
			return stay, fmt.Errorf("%w: cannot charge an order that is %s", models.ErrIllegalTransition, current)
		}
		return stay, nil

	case IntentPaid:
		if current == models.StatusPending {
			return Decision{Status: models.StatusPreparing, Changed: true}, nil
		}
		return stay, nil

	case IntentAdvance:
		if !intent.Actor.Authenticated() {
			return stay, models.ErrAuth
		}
		if !intent.Actor.Admin {
			return stay, models.ErrForbidden
		}
		changed, err := models.CheckTransition(current, intent.Status)
		if err != nil || !changed {
			return stay, err
		}
		return Decision{Status: intent.Status, Changed: true}, nil
	}

	return stay, models.Validationf("unknown intent %q", intent.Kind)
}
