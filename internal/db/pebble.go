package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/jayjaytrn/freshflow/models"
)

const (
	orderPrefix = "order/"
	userPrefix  = "user/"
	adminPrefix = "admin/"
	menuPrefix  = "menu/"
)

// PebbleStore is an embedded single-node backend. Pebble offers no secondary
// indexes, so owner and transaction lookups scan the order keyspace and sort in memory.
type PebbleStore struct {
	db  *pebble.DB
	mu  sync.Mutex // serializes read-modify-write cycles
	now clock
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d, now: utcNow}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) Ping(context.Context) error {
	_, closer, err := p.db.Get([]byte("ping"))
	if err == nil {
		return closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (p *PebbleStore) get(key string) ([]byte, bool, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), true, nil
}

func (p *PebbleStore) set(key string, value []byte) error {
	return p.db.Set([]byte(key), value, pebble.Sync)
}

// scan calls fn for every value under prefix.
func (p *PebbleStore) scan(prefix string, fn func(v []byte) error) error {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		v := append([]byte(nil), it.Value()...)
		if err := fn(v); err != nil {
			return err
		}
	}
	return it.Error()
}

func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

func (p *PebbleStore) loadOrder(id string) (models.Order, error) {
	v, ok, err := p.get(orderPrefix + id)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to read order: %w", err)
	}
	if !ok {
		return models.Order{}, notFound("order", id)
	}
	return decodeOrder(v)
}

func (p *PebbleStore) saveOrder(o models.Order) error {
	data, err := encodeOrder(o)
	if err != nil {
		return err
	}
	return p.set(orderPrefix+o.ID, data)
}

// putRecord writes a raw document, used to seed legacy orders.
func (p *PebbleStore) putRecord(r orderRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return p.set(orderPrefix+r.ID, data)
}

func (p *PebbleStore) Create(_ context.Context, draft models.OrderDraft) (models.Order, error) {
	o, err := newOrder(draft, p.now())
	if err != nil {
		return models.Order{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.saveOrder(o); err != nil {
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}
	return o, nil
}

func (p *PebbleStore) GetByID(_ context.Context, id string) (models.Order, error) {
	return p.loadOrder(id)
}

func (p *PebbleStore) filterOrders(keep func(models.Order) bool) ([]models.Order, error) {
	list := make([]models.Order, 0)
	err := p.scan(orderPrefix, func(v []byte) error {
		o, err := decodeOrder(v)
		if err != nil {
			return err
		}
		if keep(o) {
			list = append(list, o)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return list, nil
}

func (p *PebbleStore) GetByTransactionID(_ context.Context, transactionID string) (models.Order, error) {
	list, err := p.filterOrders(func(o models.Order) bool {
		return transactionID != "" && o.ProviderTransactionID == transactionID
	})
	if err != nil {
		return models.Order{}, err
	}
	if len(list) == 0 {
		return models.Order{}, notFound("transaction", transactionID)
	}
	return list[0], nil
}

func (p *PebbleStore) ListByOwner(_ context.Context, ownerID string) ([]models.Order, error) {
	list, err := p.filterOrders(func(o models.Order) bool { return o.OwnerID == ownerID })
	if err != nil {
		return nil, err
	}
	sortNewestFirst(list)
	return list, nil
}

func (p *PebbleStore) ListAll(_ context.Context) ([]models.Order, error) {
	list, err := p.filterOrders(func(models.Order) bool { return true })
	if err != nil {
		return nil, err
	}
	sortNewestFirst(list)
	return list, nil
}

func (p *PebbleStore) ApplyStatus(_ context.Context, id string, status models.OrderStatus) (models.Order, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, err := p.loadOrder(id)
	if err != nil {
		return models.Order{}, false, err
	}
	changed, err := applyStatus(&o, status, p.now())
	if err != nil || !changed {
		return o, false, err
	}
	if err := p.saveOrder(o); err != nil {
		return models.Order{}, false, fmt.Errorf("failed to update order status: %w", err)
	}
	return o, true, nil
}

func (p *PebbleStore) ApplyProviderInfo(_ context.Context, id string, info models.ProviderInfo) (models.Order, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, err := p.loadOrder(id)
	if err != nil {
		return models.Order{}, false, err
	}
	changed, err := applyProvider(&o, info, p.now())
	if err != nil || !changed {
		return o, false, err
	}
	if err := p.saveOrder(o); err != nil {
		return models.Order{}, false, fmt.Errorf("failed to update provider info: %w", err)
	}
	return o, true, nil
}

func (p *PebbleStore) PutUniqueUserData(_ context.Context, user models.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists, err := p.get(userPrefix + user.Email)
	if err != nil {
		return fmt.Errorf("failed to insert user data: %w", err)
	}
	if exists {
		return ErrDuplicateUser
	}
	data, err := json.Marshal(storedUser{UUID: user.UUID, Email: user.Email, Password: user.Password})
	if err != nil {
		return err
	}
	return p.set(userPrefix+user.Email, data)
}

// storedUser keeps the password hash that models.User hides from JSON.
type storedUser struct {
	UUID     string `json:"uuid"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p *PebbleStore) GetUserData(ctx context.Context, email string) (models.User, error) {
	v, ok, err := p.get(userPrefix + email)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user data: %w", err)
	}
	if !ok {
		return models.User{}, notFound("user", email)
	}
	var su storedUser
	if err := json.Unmarshal(v, &su); err != nil {
		return models.User{}, err
	}
	admin, err := p.IsAdmin(ctx, su.UUID)
	if err != nil {
		return models.User{}, err
	}
	return models.User{UUID: su.UUID, Email: su.Email, Password: su.Password, IsAdmin: admin}, nil
}

func (p *PebbleStore) IsAdmin(_ context.Context, userID string) (bool, error) {
	_, ok, err := p.get(adminPrefix + userID)
	return ok, err
}

func (p *PebbleStore) PutAdmin(_ context.Context, userID string) error {
	return p.set(adminPrefix+userID, []byte{1})
}

func (p *PebbleStore) ListMenu(_ context.Context, activeOnly bool) ([]models.MenuItem, error) {
	list := make([]models.MenuItem, 0)
	err := p.scan(menuPrefix, func(v []byte) error {
		var m models.MenuItem
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		if !activeOnly || m.Active {
			list = append(list, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan menu: %w", err)
	}
	sortMenu(list)
	return list, nil
}

func (p *PebbleStore) GetMenuItem(_ context.Context, id string) (models.MenuItem, error) {
	v, ok, err := p.get(menuPrefix + id)
	if err != nil {
		return models.MenuItem{}, err
	}
	if !ok {
		return models.MenuItem{}, notFound("menu item", id)
	}
	var m models.MenuItem
	if err := json.Unmarshal(v, &m); err != nil {
		return models.MenuItem{}, err
	}
	return m, nil
}

func (p *PebbleStore) PutMenuItem(_ context.Context, item models.MenuItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return p.set(menuPrefix+item.ID, data)
}
