package httpserver

import (
	"context"
	"log"
	"sync"

	"bassinshop-storefront/internal/apiclient"
	"bassinshop-storefront/internal/cartsync"
	"bassinshop-storefront/internal/checkout"
	"bassinshop-storefront/internal/payment"
	"bassinshop-storefront/internal/session"
	"bassinshop-storefront/internal/store"
)

// Deps carries everything the routes need.
type Deps struct {
	Store          store.Store
	BackendBaseURL string
	Checkout       checkout.Config
	CartOpts       cartsync.Options
	AllowedOrigins []string
	Logger         *log.Logger
}

// bundle groups the per-device service instances. Each browser device
// gets its own session provider, cart service and payment flow so that
// concurrent shoppers never share state.
type bundle struct {
	session  *session.Provider
	api      *apiclient.Client
	cart     *cartsync.Service
	checkout *checkout.Orchestrator
	store    store.Store
}

type bundleRegistry struct {
	mu      sync.Mutex
	ctx     context.Context // server lifecycle, cancels background work
	deps    Deps
	bundles map[string]*bundle
	flows   *payment.Registry
}

func newBundleRegistry(ctx context.Context, deps Deps) *bundleRegistry {
	return &bundleRegistry{
		ctx:     ctx,
		deps:    deps,
		bundles: make(map[string]*bundle),
		flows:   payment.NewRegistry(),
	}
}

// forDevice returns the bundle for the given device id, creating it on
// first sight. Creation is cheap so holding the lock for it is fine.
func (r *bundleRegistry) forDevice(deviceID string) *bundle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bundles[deviceID]; ok {
		return b
	}

	scoped := store.Namespaced(r.deps.Store, deviceID)
	sess := session.New(scoped, r.deps.Logger)
	api := apiclient.New(r.deps.BackendBaseURL, sess, r.deps.Logger)
	cart := cartsync.New(api, sess, scoped, r.deps.Logger, r.deps.CartOpts)
	orch := checkout.New(api, r.deps.Checkout, r.deps.Logger)

	b := &bundle{
		session:  sess,
		api:      api,
		cart:     cart,
		checkout: orch,
		store:    scoped,
	}
	r.bundles[deviceID] = b

	// Promotion windows are re-evaluated while the cart idles.
	go cart.Run(r.ctx)
	return b
}
