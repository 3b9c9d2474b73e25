// Package projector fans committed order snapshots out to live subscribers.
package projector

import (
	"context"
	"errors"
	"sync"

	"github.com/jayjaytrn/freshflow/models"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("projector closed")

// Loader reads the current order snapshot.
type Loader interface {
	GetByID(ctx context.Context, id string) (models.Order, error)
}

// Hub delivers order snapshots to subscribers. It keeps no order state beyond
// the one undelivered snapshot per subscription.
type Hub struct {
	Store  Loader
	Logger *zap.SugaredLogger

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewHub(store Loader, logger *zap.SugaredLogger) *Hub {
	return &Hub{Store: store, Logger: logger, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription is one live view of an order. Callbacks run on its own goroutine,
// one at a time, in version order.
type Subscription struct {
	hub      *Hub
	orderID  string
	onChange func(models.Order)
	onError  func(error)

	mu      sync.Mutex
	pending *models.Order
	err     error
	last    int64

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Subscribe delivers the current snapshot of orderID and then every newer one
// until Unsubscribe is called or ctx ends.
func (h *Hub) Subscribe(ctx context.Context, orderID string, onChange func(models.Order), onError func(error)) (*Subscription, error) {
	s := &Subscription{
		hub:      h,
		orderID:  orderID,
		onChange: onChange,
		onError:  onError,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	// register before reading so no commit falls between the read and the registration
	if err := h.add(s); err != nil {
		return nil, err
	}
	snapshot, err := h.Store.GetByID(ctx, orderID)
	if err != nil {
		h.remove(s)
		return nil, err
	}
	s.offer(snapshot)

	go s.run(ctx)
	return s, nil
}

func (h *Hub) add(s *Subscription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	set, ok := h.subs[s.orderID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[s.orderID] = set
	}
	set[s] = struct{}{}
	return nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.orderID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.orderID)
	}
}

// OrderChanged feeds a committed snapshot to the order's subscribers.
func (h *Hub) OrderChanged(_ context.Context, _ string, order models.Order) {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs[order.ID]))
	for s := range h.subs[order.ID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.offer(order)
	}
}

// Count is the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Close ends every subscription with ErrClosed and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.fail(ErrClosed)
	}
}

// offer keeps the newest snapshot not yet delivered.
func (s *Subscription) offer(order models.Order) {
	s.mu.Lock()
	if s.pending == nil || order.Version > s.pending.Version {
		o := order.Clone()
		s.pending = &o
	}
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer s.Unsubscribe()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.signal:
		}

		s.mu.Lock()
		next, err := s.pending, s.err
		s.pending = nil
		s.mu.Unlock()

		if next != nil && next.Version > s.last {
			s.last = next.Version
			s.onChange(*next)
		}
		if err != nil {
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
	}
}

// Unsubscribe releases the subscription. Calling it again does nothing.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
