package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(s *memStore) *Coordinator {
	return &Coordinator{Store: s, MaxAttempts: 3, Backoff: time.Millisecond}
}

func TestCheckoutSingleLine(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "10.0", 5)
	s.addToCart("u1", "A", 2)

	o, err := newCoordinator(s).Checkout(context.Background(), "u1")
	require.NoError(t, err)

	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(20)), o.TotalPrice.String())
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, 3, s.stock("A"))
	assert.Empty(t, s.cartOf("u1"))

	stored, ok := s.storedOrder(o.ID)
	require.True(t, ok)
	assert.True(t, stored.TotalPrice.Equal(o.TotalPrice))
}

func TestCheckoutDecrementsEveryLineAndSnapshotsPrices(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "10.00", 5)
	s.addProduct("B", "0.35", 10)
	s.addProduct("C", "99.99", 1)
	s.addToCart("u1", "C", 1)
	s.addToCart("u1", "A", 5)
	s.addToCart("u1", "B", 7)

	o, err := newCoordinator(s).Checkout(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 0, s.stock("A"))
	assert.Equal(t, 3, s.stock("B"))
	assert.Equal(t, 0, s.stock("C"))
	assert.Empty(t, s.cartOf("u1"))

	require.Len(t, o.Items, 3)
	// items follow the cart order, not the lock order
	assert.Equal(t, []string{"C", "A", "B"}, []string{o.Items[0].ProductID, o.Items[1].ProductID, o.Items[2].ProductID})

	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	assert.True(t, sum.Equal(o.TotalPrice))
	assert.True(t, o.TotalPrice.Equal(decimal.RequireFromString("152.44")), o.TotalPrice.String())
}

func TestCheckoutMergesDuplicateCartRows(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1.00", 5)
	s.addToCart("u1", "A", 2)
	s.addToCart("u1", "A", 3)

	o, err := newCoordinator(s).Checkout(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 5, o.Items[0].Quantity)
	assert.Equal(t, 0, s.stock("A"))
}

func TestCheckoutInsufficientStockChangesNothing(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "10.0", 5)
	s.addProduct("B", "20.0", 0)
	s.addToCart("u1", "A", 2)
	s.addToCart("u1", "B", 1)
	before := s.cartOf("u1")

	_, err := newCoordinator(s).Checkout(context.Background(), "u1")

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, []Shortage{{ProductID: "B", Requested: 1, Available: 0}}, ise.Shortages)
	assert.Equal(t, 5, s.stock("A"))
	assert.Equal(t, 0, s.stock("B"))
	assert.Equal(t, before, s.cartOf("u1"))
	assert.Zero(t, s.orderCount())
}

func TestCheckoutReportsEveryShortage(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 1)
	s.addProduct("B", "1", 2)
	s.addProduct("C", "1", 9)
	s.addToCart("u1", "A", 2)
	s.addToCart("u1", "B", 3)
	s.addToCart("u1", "C", 1)

	_, err := newCoordinator(s).Checkout(context.Background(), "u1")
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, []Shortage{
		{ProductID: "A", Requested: 2, Available: 1},
		{ProductID: "B", Requested: 3, Available: 2},
	}, ise.Shortages)
	assert.Equal(t, 9, s.stock("C"))
}

func TestCheckoutEmptyCart(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 1)

	_, err := newCoordinator(s).Checkout(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 1, s.stock("A"))
	assert.Zero(t, s.orderCount())
}

func TestCheckoutRetryAfterSuccessSeesEmptyCart(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 3)
	s.addToCart("u1", "A", 1)
	c := newCoordinator(s)

	_, err := c.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	_, err = c.Checkout(context.Background(), "u1")
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 1, s.orderCount())
	assert.Equal(t, 2, s.stock("A"))
}

func TestCheckoutMissingProductPrunesStaleLines(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 3)
	s.addToCart("u1", "A", 1)
	s.addToCart("u1", "gone", 2)

	_, err := newCoordinator(s).Checkout(context.Background(), "u1")

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, []string{"gone"}, pnf.ProductIDs)
	assert.Equal(t, 3, s.stock("A"))
	assert.Equal(t, []cart.Line{{ProductID: "A", Quantity: 1}}, s.cartOf("u1"))
	assert.Zero(t, s.orderCount())
}

func TestCheckoutMissingProductPruneFailure(t *testing.T) {
	s := newMemStore()
	s.addToCart("u1", "gone", 1)
	s.failPrune = errors.New("db down")

	_, err := newCoordinator(s).Checkout(context.Background(), "u1")
	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.ErrorContains(t, err, "db down")
}

func TestCheckoutStorageFailureRollsBackStock(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 4)
	s.addProduct("B", "1", 4)
	s.addToCart("u1", "A", 2)
	s.addToCart("u1", "B", 2)
	boom := errors.New("disk full")
	s.failInsert = boom

	_, err := newCoordinator(s).Checkout(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, s.stock("A"))
	assert.Equal(t, 4, s.stock("B"))
	assert.Len(t, s.cartOf("u1"), 2)
	assert.Zero(t, s.orderCount())
}

func TestCheckoutPriceChangeDoesNotTouchOrder(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "10.00", 5)
	s.addToCart("u1", "A", 2)

	o, err := newCoordinator(s).Checkout(context.Background(), "u1")
	require.NoError(t, err)

	s.setPrice("A", "99.00")

	stored, ok := s.storedOrder(o.ID)
	require.True(t, ok)
	assert.True(t, stored.TotalPrice.Equal(decimal.NewFromInt(20)))
	assert.True(t, stored.Items[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, stored.Consistent())
}

func TestConcurrentCheckoutsForLastUnits(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "5.00", 3)
	s.addToCart("u1", "A", 3)
	s.addToCart("u2", "A", 3)

	// both checkouts read stock=3 before either decrements
	var gate sync.WaitGroup
	gate.Add(2)
	s.afterLock = func() {
		gate.Done()
		gate.Wait()
	}

	c := newCoordinator(s)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, u := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, errs[i] = c.Checkout(context.Background(), u)
		}(i, u)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		var ise *InsufficientStockError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &ise):
			short++
			assert.Equal(t, 0, ise.Shortages[0].Available)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 0, s.stock("A"))
	assert.Equal(t, 1, s.orderCount())
}

func TestConcurrentCheckoutsOfOneCartMakeOneOrder(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "5.00", 10)
	s.addToCart("u1", "A", 2)

	started, release, waiting := make(chan struct{}), make(chan struct{}), make(chan struct{})
	var once sync.Once
	s.afterLock = func() {
		once.Do(func() {
			close(started)
			<-release
		})
	}
	s.onCartWait = func() { close(waiting) }

	c := newCoordinator(s)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = c.Checkout(context.Background(), "u1")
	}()
	<-started
	go func() {
		defer wg.Done()
		_, errs[1] = c.Checkout(context.Background(), "u1")
	}()
	// second checkout is parked on the cart while the first holds it
	<-waiting
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.ErrorIs(t, errs[1], ErrEmptyCart)
	assert.Equal(t, 1, s.orderCount())
	assert.Equal(t, 8, s.stock("A"))
	assert.Empty(t, s.cartOf("u1"))
}

func TestManyConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1.00", 5)
	s.addProduct("B", "2.00", 100)
	const buyers = 20
	for i := 0; i < buyers; i++ {
		u := string(rune('a' + i))
		s.addToCart(u, "B", 1)
		s.addToCart(u, "A", 1)
	}

	c := newCoordinator(s)
	var wg sync.WaitGroup
	var won int32
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if _, err := c.Checkout(context.Background(), u); err == nil {
				atomic.AddInt32(&won, 1)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, int32(5), won)
	assert.Equal(t, 0, s.stock("A"))
	// losers must not keep their claim on B
	assert.Equal(t, 95, s.stock("B"))
}

func TestCheckoutLockWaitTimesOut(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 1)
	s.addToCart("u1", "A", 1)
	s.blockLocks = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newCoordinator(s).Checkout(ctx, "u1")
	require.ErrorIs(t, err, ErrCheckoutTimeout)
	assert.True(t, Retryable(err))
	assert.Equal(t, 1, s.stock("A"))
	assert.Len(t, s.cartOf("u1"), 1)
}

func TestCheckoutRetriesConflicts(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 1)
	s.addToCart("u1", "A", 1)
	s.conflictsLeft = 2

	_, err := newCoordinator(s).Checkout(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.stock("A"))
}

func TestCheckoutGivesUpAfterMaxAttempts(t *testing.T) {
	s := newMemStore()
	s.addProduct("A", "1", 1)
	s.addToCart("u1", "A", 1)
	s.conflictsLeft = 5

	_, err := newCoordinator(s).Checkout(context.Background(), "u1")
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.True(t, Retryable(err))
	assert.Equal(t, 2, s.conflictsLeft)
	assert.Equal(t, 1, s.stock("A"))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "cart references missing products: x, y", (&ProductNotFoundError{ProductIDs: []string{"x", "y"}}).Error())
	assert.Equal(t, "insufficient stock: B (requested 1, available 0)",
		(&InsufficientStockError{Shortages: []Shortage{{ProductID: "B", Requested: 1}}}).Error())
	assert.False(t, Retryable(ErrEmptyCart))
}
