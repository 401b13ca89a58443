package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store without product row locks: stock is claimed
// with a compare-and-decrement under a mutex and given back from an undo log
// when the unit fails. Order and cart writes are buffered until commit. Each
// cart has a lock that ReadCart takes and the unit holds until it ends.
type memStore struct {
	mu        sync.Mutex
	products  map[string]catalog.Product
	carts     map[string][]cart.Line
	orders    map[string]orders.Order
	cartLocks map[string]chan struct{}

	// hooks
	afterLock     func()        // runs after LockProducts returns
	blockLocks    chan struct{} // LockProducts waits on this (or ctx) when non-nil
	conflictsLeft int           // Atomically fails with ErrConcurrencyConflict this many times
	failInsert    error
	failPrune     error
	onCartWait    func() // runs when ReadCart finds the cart held by another unit
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[string]catalog.Product{},
		carts:     map[string][]cart.Line{},
		orders:    map[string]orders.Order{},
		cartLocks: map[string]chan struct{}{},
	}
}

func (s *memStore) addProduct(id, price string, stock int) {
	s.products[id] = catalog.Product{ID: id, Title: "product " + id, Price: decimal.RequireFromString(price), Stock: stock}
}

func (s *memStore) addToCart(userID, productID string, qty int) {
	s.carts[userID] = append(s.carts[userID], cart.Line{ProductID: productID, Quantity: qty})
}

func (s *memStore) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) cartOf(userID string) []cart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cart.Line(nil), s.carts[userID]...)
}

func (s *memStore) setPrice(id, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Price = decimal.RequireFromString(price)
	s.products[id] = p
}

func (s *memStore) storedOrder(id string) (orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		s.mu.Unlock()
		return fmt.Errorf("%w: simulated", ErrConcurrencyConflict)
	}
	s.mu.Unlock()

	tx := &memTx{s: s}
	defer tx.unlockCart()
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (s *memStore) PruneCart(_ context.Context, userID string, productIDs []string) error {
	if s.failPrune != nil {
		return s.failPrune
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range productIDs {
		drop[id] = true
	}
	var keep []cart.Line
	for _, l := range s.carts[userID] {
		if !drop[l.ProductID] {
			keep = append(keep, l)
		}
	}
	s.carts[userID] = keep
	return nil
}

type memTx struct {
	s         *memStore
	undo      map[string]int
	newOrders []orders.Order
	clear     []string
	held      chan struct{}
}

func (t *memTx) ReadCart(ctx context.Context, userID string) ([]cart.Line, error) {
	if t.held == nil {
		t.s.mu.Lock()
		l, ok := t.s.cartLocks[userID]
		if !ok {
			l = make(chan struct{}, 1)
			t.s.cartLocks[userID] = l
		}
		t.s.mu.Unlock()

		select {
		case l <- struct{}{}:
		default:
			if t.s.onCartWait != nil {
				t.s.onCartWait()
			}
			select {
			case l <- struct{}{}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		t.held = l
	}
	return t.s.cartOf(userID), nil
}

func (t *memTx) unlockCart() {
	if t.held != nil {
		<-t.held
		t.held = nil
	}
}

func (t *memTx) LockProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	if t.s.blockLocks != nil {
		select {
		case <-t.s.blockLocks:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	t.s.mu.Lock()
	out := map[string]catalog.Product{}
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	t.s.mu.Unlock()
	if t.s.afterLock != nil {
		t.s.afterLock()
	}
	return out, nil
}

func (t *memTx) TryDecrementStock(_ context.Context, id string, qty int) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[id]
	if !ok {
		return 0, catalog.ErrProductNotFound
	}
	if p.Stock < qty {
		return 0, &catalog.InsufficientStockError{ProductID: id, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	t.s.products[id] = p
	if t.undo == nil {
		t.undo = map[string]int{}
	}
	t.undo[id] += qty
	return p.Stock, nil
}

func (t *memTx) InsertOrder(_ context.Context, o orders.Order) error {
	if t.s.failInsert != nil {
		return t.s.failInsert
	}
	if !o.Consistent() {
		return errors.New("inconsistent order")
	}
	t.newOrders = append(t.newOrders, o)
	return nil
}

func (t *memTx) ClearCart(_ context.Context, userID string) error {
	t.clear = append(t.clear, userID)
	return nil
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, qty := range t.undo {
		p := t.s.products[id]
		p.Stock += qty
		t.s.products[id] = p
	}
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, o := range t.newOrders {
		o.Items = append([]orders.OrderItem(nil), o.Items...)
		t.s.orders[o.ID] = o
	}
	for _, u := range t.clear {
		delete(t.s.carts, u)
	}
}
