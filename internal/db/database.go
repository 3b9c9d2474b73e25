package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jayjaytrn/freshflow/models"
)

var ErrDuplicateUser = errors.New("login already exists")

// OrderStore is the single source of truth for order status.
// Mutating calls report whether anything was committed.
type OrderStore interface {
	Create(ctx context.Context, draft models.OrderDraft) (models.Order, error)
	GetByID(ctx context.Context, id string) (models.Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (models.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	ApplyStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, bool, error)
	ApplyProviderInfo(ctx context.Context, id string, info models.ProviderInfo) (models.Order, bool, error)
}

type UserStore interface {
	PutUniqueUserData(ctx context.Context, user models.User) error
	GetUserData(ctx context.Context, email string) (models.User, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	PutAdmin(ctx context.Context, userID string) error
}

type MenuStore interface {
	ListMenu(ctx context.Context, activeOnly bool) ([]models.MenuItem, error)
	GetMenuItem(ctx context.Context, id string) (models.MenuItem, error)
	PutMenuItem(ctx context.Context, item models.MenuItem) error
}

// Database is everything a backend provides.
type Database interface {
	OrderStore
	UserStore
	MenuStore
	Ping(ctx context.Context) error
	Close() error
}

type clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// newOrder validates a draft and builds the pending order a backend persists.
func newOrder(draft models.OrderDraft, now time.Time) (models.Order, error) {
	if strings.TrimSpace(draft.OwnerID) == "" {
		return models.Order{}, models.ErrAuth
	}
	if len(draft.Lines) == 0 {
		return models.Order{}, models.Validationf("order has no lines")
	}
	lines := make([]models.CartLine, len(draft.Lines))
	for i, l := range draft.Lines {
		if err := l.Validate(); err != nil {
			return models.Order{}, fmt.Errorf("line %d: %w", i, err)
		}
		l.Ingredients = append([]string(nil), l.Ingredients...)
		lines[i] = l
	}
	if !draft.DeliveryMode.Valid() {
		return models.Order{}, models.Validationf("unknown delivery mode %q", draft.DeliveryMode)
	}
	if draft.DeliveryMode == models.DeliveryExpress && !draft.Address.Complete() {
		return models.Order{}, models.Validationf("express delivery requires a complete address")
	}
	if strings.TrimSpace(draft.PaymentMethod) == "" {
		return models.Order{}, models.Validationf("payment method is required")
	}

	var address *models.Address
	if draft.Address != nil {
		a := *draft.Address
		address = &a
	}

	return models.Order{
		ID:            uuid.NewString(),
		OwnerID:       draft.OwnerID,
		Lines:         lines,
		TotalPrice:    models.SumLines(lines),
		DeliveryMode:  draft.DeliveryMode,
		Address:       address,
		PaymentMethod: strings.TrimSpace(draft.PaymentMethod),
		Status:        models.StatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// applyStatus moves o to status in place. status and updatedAt change together.
func applyStatus(o *models.Order, status models.OrderStatus, now time.Time) (bool, error) {
	changed, err := models.CheckTransition(o.Status, status)
	if err != nil || !changed {
		return false, err
	}
	o.Status = status
	o.UpdatedAt = now
	o.Version++
	return true, nil
}

// applyProvider copies gateway fields into o. Re-applying the same info is a no-op.
func applyProvider(o *models.Order, info models.ProviderInfo, now time.Time) (bool, error) {
	if strings.TrimSpace(info.TransactionID) == "" {
		return false, models.Validationf("transaction id is required")
	}
	provider := info.Provider
	if provider == "" {
		provider = o.PaymentProvider
	}
	if o.ProviderTransactionID == info.TransactionID &&
		o.ProviderStatus == info.ProviderStatus &&
		o.PaymentProvider == provider {
		return false, nil
	}
	o.PaymentProvider = provider
	o.ProviderTransactionID = info.TransactionID
	o.ProviderStatus = info.ProviderStatus
	o.UpdatedAt = now
	o.Version++
	return true, nil
}

func sortNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", models.ErrNotFound, kind, id)
}

func sortMenu(items []models.MenuItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
