package models

import "fmt"

type OrderStatus string

func (s OrderStatus) String() string {
	return string(s)
}

// Fulfillment states. StatusDraft never reaches the store.
const (
	StatusDraft     OrderStatus = "draft"
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusOnTheWay  OrderStatus = "on_the_way"
	StatusDelivered OrderStatus = "delivered"
)

var statusRank = map[OrderStatus]int{
	StatusDraft:     0,
	StatusPending:   1,
	StatusPreparing: 2,
	StatusOnTheWay:  3,
	StatusDelivered: 4,
}

// Rank orders the fulfillment states; unknown states rank -1.
func (s OrderStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

func (s OrderStatus) Valid() bool {
	return s.Rank() >= 0
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered
}

// Label is the customer facing name of the state.
func (s OrderStatus) Label() string {
	switch s {
	case StatusPending:
		return "Received"
	case StatusPreparing:
		return "Preparing"
	case StatusOnTheWay:
		return "On the way"
	case StatusDelivered:
		return "Delivered"
	default:
		return string(s)
	}
}

// CheckTransition reports whether a stored order may move from cur to next.
// Skipping forward is allowed, moving backward or into draft is not.
// changed is false when next equals cur, which callers treat as a no-op.
func CheckTransition(cur, next OrderStatus) (changed bool, err error) {
	if !next.Valid() {
		return false, Validationf("unknown status %q", next)
	}
	if next == StatusDraft {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next)
	}
	if next == cur {
		return false, nil
	}
	if next.Rank() < cur.Rank() {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next)
	}
	return true, nil
}

// Gateway charge states mirrored into Order.ProviderStatus.
const (
	ProviderPending = "pending"
	ProviderPaid    = "paid"
	ProviderFailed  = "failed"
	ProviderExpired = "expired"
	ProviderUnknown = "unknown"
)

// ProviderSettled reports whether a charge in this state can no longer be paid.
func ProviderSettled(status string) bool {
	switch status {
	case ProviderPaid, ProviderFailed, ProviderExpired, "refused", "refunded", "canceled":
		return true
	}
	return false
}
