// Package cartsync reconciles the server cart, the device-local snapshot
// and in-flight optimistic mutations into one broadcast cart state.
package cartsync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"bassinshop-storefront/internal/apiclient"
	"bassinshop-storefront/internal/domain"
	"bassinshop-storefront/internal/store"
)

type backendAPI interface {
	FetchCart(ctx context.Context) (*domain.Cart, error)
	CreateCart(ctx context.Context) (*domain.Cart, error)
	AddItem(ctx context.Context, req apiclient.AddItemRequest) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, lineID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, lineID int64) (*domain.Cart, error)
	ClearCart(ctx context.Context) error
	MigrateCart(ctx context.Context, sessionID string) (*domain.Cart, error)
}

type identity interface {
	Authenticated() bool
	SessionID(ctx context.Context) (string, bool)
	ClearSessionID(ctx context.Context) error
}

// Options tune the service; zero values take the defaults.
type Options struct {
	CacheTTL     time.Duration // local snapshot TTL, default 2h
	RecheckEvery time.Duration // promotion ticker period, default 60s
	Now          func() time.Time
}

// Service is the cart reconciliation service. All mutating operations
// follow the optimistic-update/rollback discipline; it is the only writer
// of the cart feed.
type Service struct {
	api    backendAPI
	ident  identity
	store  store.Store
	logger *log.Logger
	feed   *Feed

	cacheTTL     time.Duration
	recheckEvery time.Duration
	now          func() time.Time

	mu       sync.Mutex
	cart     *domain.Cart
	migrated bool
}

// New builds a Service around the backend client, identity provider and
// device store.
func New(api backendAPI, ident identity, st store.Store, logger *log.Logger, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 2 * time.Hour
	}
	if opts.RecheckEvery <= 0 {
		opts.RecheckEvery = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		api:          api,
		ident:        ident,
		store:        st,
		logger:       logger,
		feed:         NewFeed(),
		cacheTTL:     opts.CacheTTL,
		recheckEvery: opts.RecheckEvery,
		now:          opts.Now,
		cart:         domain.EmptyCart(),
	}
}

// Subscribe attaches a consumer to the cart feed for the lifetime of ctx.
func (s *Service) Subscribe(ctx context.Context) <-chan *domain.Cart {
	return s.feed.Subscribe(ctx)
}

// Current returns a copy of the current cart.
func (s *Service) Current() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// LoadCart fetches the server cart. A 404 creates a fresh server cart and
// retries the fetch once. The "non-unique result" 500 signature and every
// other failure fall back to the local snapshot without raising: cart
// reads must never block the UI.
func (s *Service) LoadCart(ctx context.Context) (*domain.Cart, error) {
	cart, err := s.api.FetchCart(ctx)
	if err != nil && apiclient.IsNotFound(err) {
		if _, cerr := s.api.CreateCart(ctx); cerr != nil {
			err = cerr
		} else {
			cart, err = s.api.FetchCart(ctx)
		}
	}
	if err != nil {
		if apiclient.IsNonUniqueResult(err) {
			s.logger.Printf("duplicate server carts for this identity, using local snapshot: %v", err)
		} else {
			s.logger.Printf("cart fetch failed, using local snapshot: %v", err)
		}
		cached := s.readCache(ctx)
		if cached == nil {
			cached = domain.EmptyCart()
		}
		s.mu.Lock()
		s.adoptLocked(ctx, cached)
		out := s.cart.Clone()
		s.mu.Unlock()
		return out, nil
	}

	s.mu.Lock()
	s.adoptLocked(ctx, cart)
	out := s.cart.Clone()
	s.mu.Unlock()
	return out, nil
}

// AddItem adds a line to the cart. A customized item identical to an
// existing line (same bassin, material, dimension, color and accessory
// set, order ignored) becomes a quantity merge instead of a new line.
func (s *Service) AddItem(ctx context.Context, req apiclient.AddItemRequest) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if req.IsCustomized && req.Customization != nil {
		candidate := domain.CartLine{
			BassinID:      req.BassinID,
			IsCustomized:  true,
			Customization: req.Customization,
		}
		s.mu.Lock()
		match := s.cart.FindCustomizedMatch(candidate)
		var matchID int64
		var merged int
		if match != nil {
			matchID = match.ID
			merged = match.Quantity + req.Quantity
		}
		s.mu.Unlock()
		if match != nil {
			return s.UpdateQuantity(ctx, matchID, merged)
		}
	}

	cart, err := s.api.AddItem(ctx, req)
	if err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	s.mu.Lock()
	s.adoptLocked(ctx, cart)
	s.mu.Unlock()
	return nil
}

// UpdateQuantity sets a line quantity with an optimistic local mutation.
// Quantities <= 0 delegate to Remove. Standard lines are capped by the
// catalog stock; customized lines have no ceiling. On network failure the
// authenticated cart rolls back to its pre-mutation snapshot, while the
// anonymous cart keeps the optimistic state and persists it locally.
func (s *Service) UpdateQuantity(ctx context.Context, lineID int64, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, lineID)
	}

	s.mu.Lock()
	line := s.cart.FindLine(lineID)
	if line == nil {
		s.mu.Unlock()
		return domain.ErrLineNotFound
	}
	// Stock is the denormalized catalog count; 0 means the payload did
	// not carry it, so only a known positive stock enforces the ceiling.
	// The server still rejects a true oversell on its side.
	if !line.IsCustomized && line.Stock > 0 && quantity > line.Stock {
		s.mu.Unlock()
		return fmt.Errorf("quantity %d over stock %d: %w", quantity, line.Stock, domain.ErrStockExceeded)
	}
	snapshot := s.cart.Clone()
	line.Quantity = quantity
	line.Version++
	issued := line.Version
	s.cart.RecomputeTotal()
	s.feed.Publish(s.cart)
	auth := s.ident.Authenticated()
	if !auth {
		s.writeCache(ctx, s.cart)
	}
	s.mu.Unlock()

	serverCart, err := s.api.UpdateQuantity(ctx, lineID, quantity)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if auth {
			s.cart = snapshot
			s.feed.Publish(s.cart)
			return fmt.Errorf("update quantity: %w", err)
		}
		s.logger.Printf("quantity update not acknowledged, keeping local state: %v", err)
		s.writeCache(ctx, s.cart)
		return nil
	}
	if cur := s.cart.FindLine(lineID); cur == nil || cur.Version != issued {
		// A newer local mutation superseded this request.
		s.logger.Printf("discarding stale quantity response for line %d", lineID)
		return nil
	}
	if serverCart != nil {
		s.adoptLocked(ctx, serverCart)
	}
	return nil
}

// Remove deletes a line with the same optimistic/rollback discipline as
// UpdateQuantity.
func (s *Service) Remove(ctx context.Context, lineID int64) error {
	s.mu.Lock()
	if s.cart.FindLine(lineID) == nil {
		s.mu.Unlock()
		return domain.ErrLineNotFound
	}
	snapshot := s.cart.Clone()
	s.cart.RemoveLine(lineID)
	s.cart.RecomputeTotal()
	s.feed.Publish(s.cart)
	auth := s.ident.Authenticated()
	if !auth {
		s.writeCache(ctx, s.cart)
	}
	s.mu.Unlock()

	serverCart, err := s.api.RemoveItem(ctx, lineID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if auth {
			s.cart = snapshot
			s.feed.Publish(s.cart)
			return fmt.Errorf("remove item: %w", err)
		}
		s.logger.Printf("removal not acknowledged, keeping local state: %v", err)
		s.writeCache(ctx, s.cart)
		return nil
	}
	if serverCart != nil && s.cart.FindLine(lineID) == nil {
		s.adoptLocked(ctx, serverCart)
	}
	return nil
}

// Clear empties the cart. Authenticated users roll back when the server
// delete fails; anonymous users keep the empty cart regardless.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.cart.Clone()
	emptied := &domain.Cart{ID: s.cart.ID, UserID: s.cart.UserID, SessionID: s.cart.SessionID, Lines: []domain.CartLine{}}
	s.cart = emptied
	s.cart.RecomputeTotal()
	s.feed.Publish(s.cart)
	auth := s.ident.Authenticated()
	if !auth {
		s.writeCache(ctx, s.cart)
	}
	s.mu.Unlock()

	err := s.api.ClearCart(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if auth {
			s.cart = snapshot
			s.feed.Publish(s.cart)
			return fmt.Errorf("clear cart: %w", err)
		}
		s.logger.Printf("clear not acknowledged, keeping empty local cart: %v", err)
		s.writeCache(ctx, s.cart)
	}
	return nil
}

// MigrateSessionCart merges the anonymous session cart into the
// authenticated user's server cart. At most once per login transition; on
// success the session id is discarded. On failure the session id is kept
// so a later transition can still absorb the session cart, and the user
// cart is loaded as the displayed fallback.
func (s *Service) MigrateSessionCart(ctx context.Context) error {
	s.mu.Lock()
	if s.migrated {
		s.mu.Unlock()
		return nil
	}
	s.migrated = true
	s.mu.Unlock()

	sessionID, ok := s.ident.SessionID(ctx)
	if !ok {
		_, err := s.LoadCart(ctx)
		return err
	}

	merged, err := s.api.MigrateCart(ctx, sessionID)
	if err != nil {
		s.logger.Printf("cart migration failed, session id retained for retry: %v", err)
		s.mu.Lock()
		s.migrated = false
		s.mu.Unlock()
		if _, lerr := s.LoadCart(ctx); lerr != nil {
			return lerr
		}
		return fmt.Errorf("migrate session cart: %w", err)
	}

	if err := s.ident.ClearSessionID(ctx); err != nil {
		s.logger.Printf("clear session id after migration: %v", err)
	}
	s.mu.Lock()
	s.adoptLocked(ctx, merged)
	s.mu.Unlock()
	s.dropCache(ctx)
	return nil
}

// RecheckPromotions re-evaluates every line's promotion window. The cart
// is re-totalled and republished only when a line actually changed, so an
// unchanged clock produces no churn.
func (s *Service) RecheckPromotions(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	changed := false
	for i := range s.cart.Lines {
		if s.cart.Lines[i].RefreshPromotion(now) {
			changed = true
		}
	}
	if !changed {
		return false
	}
	s.cart.RecomputeTotal()
	s.feed.Publish(s.cart)
	if !s.ident.Authenticated() {
		s.writeCache(ctx, s.cart)
	}
	return true
}

// Run drives the promotion recheck ticker until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.recheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RecheckPromotions(ctx)
		}
	}
}

// adoptLocked installs a server cart as current state: promotion fields
// are refreshed, line versions carry over by id, the feed and the local
// snapshot are updated. Caller holds s.mu.
func (s *Service) adoptLocked(ctx context.Context, cart *domain.Cart) {
	if cart == nil {
		cart = domain.EmptyCart()
	}
	adopted := cart.Clone()
	now := s.now()
	for i := range adopted.Lines {
		if prev := s.cart.FindLine(adopted.Lines[i].ID); prev != nil {
			adopted.Lines[i].Version = prev.Version
		}
		adopted.Lines[i].RefreshPromotion(now)
	}
	adopted.RecomputeTotal()
	s.cart = adopted
	s.feed.Publish(s.cart)
	s.writeCache(ctx, s.cart)
}
