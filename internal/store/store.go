// Package store is the persistent key-value abstraction standing in for
// the browser's local/session storage. Implementations: in-memory, Redis,
// Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned for absent or expired entries.
var ErrKeyNotFound = errors.New("key not found")

// Store persists small records with an optional TTL. A zero TTL means no
// expiry. Expired entries read as not found.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Keys for the storefront records. Callers namespace them per device.
const (
	KeySessionToken   = "session.token"
	KeyCartSnapshot   = "cart.snapshot"
	KeyCartID         = "cart.id"
	KeyPendingPayment = "payment.pending"
)

// GetJSON reads and unmarshals a record into out.
func GetJSON(ctx context.Context, s Store, key string, out interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals and writes a record.
func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

type namespaced struct {
	inner  Store
	prefix string
}

// Namespaced wraps a store so every key is prefixed with scope. Used to
// keep per-device records apart in a shared backend.
func Namespaced(inner Store, scope string) Store {
	return &namespaced{inner: inner, prefix: scope + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.inner.Set(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *namespaced) Ping(ctx context.Context) error {
	return n.inner.Ping(ctx)
}
