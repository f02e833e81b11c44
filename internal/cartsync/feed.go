package cartsync

import (
	"context"
	"sync"

	"bassinshop-storefront/internal/domain"
)

// Feed is the single-writer broadcast of the current cart. Subscribers
// always observe the latest known state; intermediate emissions may be
// dropped for slow consumers, never reordered. Subscriptions are tied to
// the subscriber's context and detach on cancellation.
type Feed struct {
	mu      sync.Mutex
	current *domain.Cart
	subs    map[int]chan *domain.Cart
	next    int
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan *domain.Cart)}
}

// Publish replaces the current value and notifies every subscriber with
// latest-value semantics. Only the reconciliation service calls this.
func (f *Feed) Publish(cart *domain.Cart) {
	snapshot := cart.Clone()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = snapshot
	for _, ch := range f.subs {
		select {
		case <-ch: // drop the stale value
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Current returns the latest published cart, nil before the first publish.
func (f *Feed) Current() *domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone()
}

// Subscribe registers a consumer. A late subscriber receives the current
// value immediately. The channel closes when ctx is cancelled.
func (f *Feed) Subscribe(ctx context.Context) <-chan *domain.Cart {
	ch := make(chan *domain.Cart, 1)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	if f.current != nil {
		ch <- f.current
	}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		close(ch)
	}()
	return ch
}
