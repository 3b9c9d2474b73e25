package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jayjaytrn/freshflow/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type storeFactory func(t *testing.T, clk clock) Database

func memoryFactory(_ *testing.T, clk clock) Database {
	s := NewMemoryStore()
	s.now = clk
	return s
}

func pebbleFactory(t *testing.T, clk clock) Database {
	s, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	s.now = clk
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scenarioDraft(owner string) models.OrderDraft {
	return models.OrderDraft{
		OwnerID: owner,
		Lines: []models.CartLine{{
			Name:        "Custom",
			Ingredients: []string{"Apple", "Kale"},
			UnitPrice:   decimal.RequireFromString("18.90"),
			Quantity:    2,
		}},
		DeliveryMode:  models.DeliveryPickup,
		PaymentMethod: "pix-gateway",
	}
}

func assertLinesEqual(t *testing.T, want, got []models.CartLine) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Ingredients, got[i].Ingredients)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice), "price %s != %s", want[i].UnitPrice, got[i].UnitPrice)
	}
}

func TestOrderStores(t *testing.T) {
	for name, factory := range map[string]storeFactory{"Memory": memoryFactory, "Pebble": pebbleFactory} {
		t.Run(name, func(t *testing.T) { runOrderStoreSuite(t, factory) })
	}
}

func runOrderStoreSuite(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := factory(t, newFakeClock().now)
		draft := scenarioDraft("owner-1")

		created, err := s.Create(ctx, draft)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, models.StatusPending, created.Status)
		assert.True(t, decimal.RequireFromString("37.80").Equal(created.TotalPrice))
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)

		got, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", got.OwnerID)
		assertLinesEqual(t, draft.Lines, got.Lines)
		assert.True(t, created.TotalPrice.Equal(got.TotalPrice))
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("CreateValidation", func(t *testing.T) {
		s := factory(t, newFakeClock().now)

		_, err := s.Create(ctx, models.OrderDraft{OwnerID: "o", PaymentMethod: "pix"})
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = s.Create(ctx, scenarioDraft(""))
		assert.ErrorIs(t, err, models.ErrAuth)

		express := scenarioDraft("o")
		express.DeliveryMode = models.DeliveryExpress
		_, err = s.Create(ctx, express)
		assert.ErrorIs(t, err, models.ErrValidation)

		express.Address = &models.Address{Street: "Rua A", Number: "10", District: "Centro", City: "Recife", PostalCode: "50000-000"}
		_, err = s.Create(ctx, express)
		assert.NoError(t, err)

		badLine := scenarioDraft("o")
		badLine.Lines[0].Quantity = 0
		_, err = s.Create(ctx, badLine)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("ApplyStatusIsMonotonic", func(t *testing.T) {
		s := factory(t, newFakeClock().now)
		o, err := s.Create(ctx, scenarioDraft("owner"))
		require.NoError(t, err)

		delivered, changed, err := s.ApplyStatus(ctx, o.ID, models.StatusDelivered)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.StatusDelivered, delivered.Status)
		assert.True(t, delivered.UpdatedAt.After(o.UpdatedAt))
		assert.Equal(t, o.Version+1, delivered.Version)

		_, _, err = s.ApplyStatus(ctx, o.ID, models.StatusPending)
		assert.ErrorIs(t, err, models.ErrIllegalTransition)

		again, changed, err := s.ApplyStatus(ctx, o.ID, models.StatusDelivered)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, delivered.UpdatedAt.Equal(again.UpdatedAt))

		got, err := s.GetByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDelivered, got.Status)
	})

	t.Run("ApplyProviderInfoIsIdempotent", func(t *testing.T) {
		s := factory(t, newFakeClock().now)
		o, err := s.Create(ctx, scenarioDraft("owner"))
		require.NoError(t, err)
		info := models.ProviderInfo{Provider: models.ProviderPagarme, TransactionID: "tx1", ProviderStatus: models.ProviderPending}

		first, changed, err := s.ApplyProviderInfo(ctx, o.ID, info)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "tx1", first.ProviderTransactionID)

		second, changed, err := s.ApplyProviderInfo(ctx, o.ID, info)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, first.Version, second.Version)
		assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
		assert.Equal(t, models.StatusPending, second.Status)

		byTx, err := s.GetByTransactionID(ctx, "tx1")
		require.NoError(t, err)
		assert.Equal(t, o.ID, byTx.ID)

		_, err = s.GetByTransactionID(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := factory(t, newFakeClock().now)
		first, err := s.Create(ctx, scenarioDraft("alice"))
		require.NoError(t, err)
		_, err = s.Create(ctx, scenarioDraft("bob"))
		require.NoError(t, err)
		third, err := s.Create(ctx, scenarioDraft("alice"))
		require.NoError(t, err)

		mine, err := s.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, third.ID, mine[0].ID)
		assert.Equal(t, first.ID, mine[1].ID)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, third.ID, all[0].ID)

		none, err := s.ListByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := factory(t, newFakeClock().now)
		_, err := s.GetByID(ctx, "nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, _, err = s.ApplyStatus(ctx, "nope", models.StatusPreparing)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, _, err = s.ApplyProviderInfo(ctx, "nope", models.ProviderInfo{TransactionID: "t"})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Users", func(t *testing.T) {
		s := factory(t, newFakeClock().now)
		user := models.User{UUID: "u1", Email: "a@b.c", Password: "hash"}
		require.NoError(t, s.PutUniqueUserData(ctx, user))
		assert.ErrorIs(t, s.PutUniqueUserData(ctx, user), ErrDuplicateUser)

		got, err := s.GetUserData(ctx, "a@b.c")
		require.NoError(t, err)
		assert.Equal(t, "hash", got.Password)
		assert.False(t, got.IsAdmin)

		require.NoError(t, s.PutAdmin(ctx, "u1"))
		admin, err := s.IsAdmin(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, admin)
	})

	t.Run("Menu", func(t *testing.T) {
		s := factory(t, newFakeClock().now)
		now := time.Now().UTC()
		require.NoError(t, s.PutMenuItem(ctx, models.MenuItem{ID: "m1", Name: "Green", Ingredients: []string{"Kale"}, Price: decimal.NewFromInt(10), Active: true, CreatedAt: now}))
		require.NoError(t, s.PutMenuItem(ctx, models.MenuItem{ID: "m2", Name: "Old", Ingredients: []string{"Beet"}, Price: decimal.NewFromInt(9), CreatedAt: now.Add(time.Second)}))

		active, err := s.ListMenu(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "m1", active[0].ID)

		all, err := s.ListMenu(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		_, err = s.GetMenuItem(ctx, "m3")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestLegacyOrdersAreNormalized(t *testing.T) {
	ctx := context.Background()
	price := decimal.RequireFromString("12.50")
	legacy := orderRecord{
		ID:            "legacy-1",
		OwnerID:       "owner",
		Items:         []string{"Orange", "Carrot"},
		Price:         &price,
		Qty:           3,
		PaymentMethod: "Pix",
		Status:        models.StatusPreparing,
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	mem := NewMemoryStore()
	mem.putRecord(legacy)

	peb, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	defer peb.Close()
	require.NoError(t, peb.putRecord(legacy))

	for name, s := range map[string]OrderStore{"Memory": mem, "Pebble": peb} {
		t.Run(name, func(t *testing.T) {
			o, err := s.GetByID(ctx, "legacy-1")
			require.NoError(t, err)
			require.Len(t, o.Lines, 1)
			assert.Equal(t, LegacyLineName, o.Lines[0].Name)
			assert.Equal(t, []string{"Orange", "Carrot"}, o.Lines[0].Ingredients)
			assert.Equal(t, 3, o.Lines[0].Quantity)
			assert.True(t, decimal.RequireFromString("37.50").Equal(o.TotalPrice))
			assert.Equal(t, models.StatusPreparing, o.Status)
			assert.True(t, o.UpdatedAt.Equal(legacy.CreatedAt))
		})
	}
}

func TestLegacyLineFieldNames(t *testing.T) {
	doc := []byte(`{"id":"o1","ownerId":"u","lines":[{"name":"Tropical","items":["Mango"],"price":"10.5","qty":2}],"paymentMethod":"Pix","status":"pending"}`)
	o, err := decodeOrder(doc)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, []string{"Mango"}, o.Lines[0].Ingredients)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("21").Equal(o.TotalPrice))
}

func TestMemoryStoreConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	o, err := s.Create(ctx, scenarioDraft("owner"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = s.ApplyStatus(ctx, o.ID, models.StatusPreparing)
		}()
		go func(i int) {
			defer wg.Done()
			status := models.ProviderPending
			if i%2 == 0 {
				status = models.ProviderPaid
			}
			_, _, _ = s.ApplyProviderInfo(ctx, o.ID, models.ProviderInfo{TransactionID: "tx", ProviderStatus: status})
		}(i)
	}
	wg.Wait()

	got, err := s.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, got.Status)
	assert.Equal(t, "tx", got.ProviderTransactionID)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) OrderChanged(_ context.Context, eventType string, _ models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func TestNotifyingSkipsNoops(t *testing.T) {
	ctx := context.Background()
	rec := &recordingNotifier{}
	s := NewNotifying(NewMemoryStore(), rec)

	o, err := s.Create(ctx, scenarioDraft("owner"))
	require.NoError(t, err)
	_, _, err = s.ApplyProviderInfo(ctx, o.ID, models.ProviderInfo{TransactionID: "tx", ProviderStatus: "pending"})
	require.NoError(t, err)
	_, _, err = s.ApplyProviderInfo(ctx, o.ID, models.ProviderInfo{TransactionID: "tx", ProviderStatus: "pending"})
	require.NoError(t, err)
	_, _, err = s.ApplyStatus(ctx, o.ID, models.StatusPreparing)
	require.NoError(t, err)
	_, _, err = s.ApplyStatus(ctx, o.ID, models.StatusPreparing)
	require.NoError(t, err)
	_, _, err = s.ApplyStatus(ctx, o.ID, models.StatusPending)
	require.ErrorIs(t, err, models.ErrIllegalTransition)

	assert.Equal(t, []string{
		models.EventOrderPlaced,
		models.EventOrderPaymentUpdated,
		models.EventOrderStatusChanged,
	}, rec.events)
}
