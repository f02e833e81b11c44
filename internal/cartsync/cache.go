package cartsync

import (
	"context"
	"errors"
	"strconv"

	"bassinshop-storefront/internal/domain"
	"bassinshop-storefront/internal/store"
)

// cachedCart is the device-local snapshot kept as an offline fallback and
// as the durable side of anonymous optimistic updates.
type cachedCart struct {
	Cart      *domain.Cart `json:"cart"`
	ExpiresAt int64        `json:"expiresAt"` // epoch millis
}

func (s *Service) writeCache(ctx context.Context, cart *domain.Cart) {
	rec := cachedCart{
		Cart:      cart,
		ExpiresAt: s.now().Add(s.cacheTTL).UnixMilli(),
	}
	if err := store.SetJSON(ctx, s.store, store.KeyCartSnapshot, rec, s.cacheTTL); err != nil {
		s.logger.Printf("persist cart snapshot: %v", err)
		return
	}
	if cart.ID != domain.UnassignedCartID {
		if err := s.store.Set(ctx, store.KeyCartID, []byte(strconv.FormatInt(cart.ID, 10)), 0); err != nil {
			s.logger.Printf("persist cart id: %v", err)
		}
	}
}

// readCache returns the cached cart, or nil when absent or past its
// expiresAt stamp.
func (s *Service) readCache(ctx context.Context) *domain.Cart {
	var rec cachedCart
	if err := store.GetJSON(ctx, s.store, store.KeyCartSnapshot, &rec); err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			s.logger.Printf("read cart snapshot: %v", err)
		}
		return nil
	}
	if rec.Cart == nil || s.now().UnixMilli() > rec.ExpiresAt {
		return nil
	}
	return rec.Cart
}

func (s *Service) dropCache(ctx context.Context) {
	if err := s.store.Delete(ctx, store.KeyCartSnapshot); err != nil {
		s.logger.Printf("drop cart snapshot: %v", err)
	}
}
