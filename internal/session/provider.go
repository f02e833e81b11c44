// Package session issues the anonymous session identity and tracks bearer
// credentials for the authenticated state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bassinshop-storefront/internal/store"
)

// Provider persists a random anonymous session token and holds the bearer
// token once the user authenticates. The session token is retained across
// login and cleared only after a confirmed cart migration.
type Provider struct {
	store  store.Store
	logger *log.Logger

	mu     sync.RWMutex
	bearer string
	now    func() time.Time
}

// New builds a Provider on top of the given store.
func New(st store.Store, logger *log.Logger) *Provider {
	return &Provider{store: st, logger: logger, now: time.Now}
}

// GetOrCreateSessionID returns the persisted anonymous token, generating
// and persisting one when absent. Must be called before any anonymous cart
// request.
func (p *Provider) GetOrCreateSessionID(ctx context.Context) (string, error) {
	raw, err := p.store.Get(ctx, store.KeySessionToken)
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return "", fmt.Errorf("read session token: %w", err)
	}
	token := newSessionToken()
	if err := p.store.Set(ctx, store.KeySessionToken, []byte(token), 0); err != nil {
		return "", fmt.Errorf("persist session token: %w", err)
	}
	p.logger.Printf("issued anonymous session %s", token)
	return token, nil
}

// SessionID returns the persisted token without creating one.
func (p *Provider) SessionID(ctx context.Context) (string, bool) {
	raw, err := p.store.Get(ctx, store.KeySessionToken)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

// ClearSessionID discards the anonymous token. Called only after the
// server has confirmed it absorbed the session cart.
func (p *Provider) ClearSessionID(ctx context.Context) error {
	return p.store.Delete(ctx, store.KeySessionToken)
}

// SetBearer installs the authenticated JWT.
func (p *Provider) SetBearer(token string) {
	p.mu.Lock()
	p.bearer = token
	p.mu.Unlock()
}

// ClearBearer drops the authenticated credentials.
func (p *Provider) ClearBearer() {
	p.mu.Lock()
	p.bearer = ""
	p.mu.Unlock()
}

// Bearer returns the JWT when a non-expired one is held. The signature is
// not checked here; verification is the backend's job.
func (p *Provider) Bearer() (string, bool) {
	p.mu.RLock()
	token := p.bearer
	p.mu.RUnlock()
	if token == "" {
		return "", false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(p.now()) {
			return "", false
		}
	}
	return token, true
}

// Authenticated reports whether a usable bearer token is held.
func (p *Provider) Authenticated() bool {
	_, ok := p.Bearer()
	return ok
}

// newSessionToken produces a UUID-v4 shaped token from a non-cryptographic
// PRNG; it identifies a cart, not a secret.
func newSessionToken() string {
	var b [16]byte
	hi, lo := rand.Uint64(), rand.Uint64()
	for i := 0; i < 8; i++ {
		b[i] = byte(hi >> (8 * i))
		b[8+i] = byte(lo >> (8 * i))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		b[0], b[1], b[2], b[3],
		b[4], b[5],
		b[6], b[7],
		b[8], b[9],
		b[10], b[11], b[12], b[13], b[14], b[15],
	)
}
