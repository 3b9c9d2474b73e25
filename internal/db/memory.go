package db

import (
	"context"
	"sync"

	"github.com/jayjaytrn/freshflow/models"
)

// MemoryStore keeps everything in process. Reads and writes copy orders so
// no caller ever holds a reference into the store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]models.Order
	users  map[string]models.User
	admins map[string]bool
	menu   map[string]models.MenuItem
	now    clock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]models.Order),
		users:  make(map[string]models.User),
		admins: make(map[string]bool),
		menu:   make(map[string]models.MenuItem),
		now:    utcNow,
	}
}

func (s *MemoryStore) Create(_ context.Context, draft models.OrderDraft) (models.Order, error) {
	o, err := newOrder(draft, s.now())
	if err != nil {
		return models.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return o, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, notFound("order", id)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) GetByTransactionID(_ context.Context, transactionID string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if transactionID != "" && o.ProviderTransactionID == transactionID {
			return o.Clone(), nil
		}
	}
	return models.Order{}, notFound("transaction", transactionID)
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.Order, 0)
	for _, o := range s.orders {
		if o.OwnerID == ownerID {
			list = append(list, o.Clone())
		}
	}
	sortNewestFirst(list)
	return list, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		list = append(list, o.Clone())
	}
	sortNewestFirst(list)
	return list, nil
}

func (s *MemoryStore) ApplyStatus(_ context.Context, id string, status models.OrderStatus) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, false, notFound("order", id)
	}
	changed, err := applyStatus(&o, status, s.now())
	if err != nil {
		return models.Order{}, false, err
	}
	if changed {
		s.orders[id] = o
	}
	return o.Clone(), changed, nil
}

func (s *MemoryStore) ApplyProviderInfo(_ context.Context, id string, info models.ProviderInfo) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, false, notFound("order", id)
	}
	changed, err := applyProvider(&o, info, s.now())
	if err != nil {
		return models.Order{}, false, err
	}
	if changed {
		s.orders[id] = o
	}
	return o.Clone(), changed, nil
}

// putRecord stores a raw record, used to seed legacy documents.
func (s *MemoryStore) putRecord(r orderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[r.ID] = r.order()
}

func (s *MemoryStore) PutUniqueUserData(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Email]; exists {
		return ErrDuplicateUser
	}
	s.users[user.Email] = user
	return nil
}

func (s *MemoryStore) GetUserData(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	if !ok {
		return models.User{}, notFound("user", email)
	}
	u.IsAdmin = s.admins[u.UUID]
	return u, nil
}

func (s *MemoryStore) IsAdmin(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admins[userID], nil
}

func (s *MemoryStore) PutAdmin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = true
	return nil
}

func (s *MemoryStore) ListMenu(_ context.Context, activeOnly bool) ([]models.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.MenuItem, 0, len(s.menu))
	for _, m := range s.menu {
		if activeOnly && !m.Active {
			continue
		}
		m.Ingredients = append([]string(nil), m.Ingredients...)
		list = append(list, m)
	}
	sortMenu(list)
	return list, nil
}

func (s *MemoryStore) GetMenuItem(_ context.Context, id string) (models.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.menu[id]
	if !ok {
		return models.MenuItem{}, notFound("menu item", id)
	}
	m.Ingredients = append([]string(nil), m.Ingredients...)
	return m, nil
}

func (s *MemoryStore) PutMenuItem(_ context.Context, item models.MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Ingredients = append([]string(nil), item.Ingredients...)
	s.menu[item.ID] = item
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
