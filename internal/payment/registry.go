package payment

import "sync"

// Registry tracks the active flow per device so the HTTP surface can
// route card/verify/abandon calls to the right state machine.
type Registry struct {
	mu    sync.Mutex
	flows map[string]*Flow
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]*Flow)}
}

// Get returns the device's active flow, if any.
func (r *Registry) Get(deviceID string) (*Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[deviceID]
	return f, ok
}

// Put installs the device's active flow, replacing any previous one.
func (r *Registry) Put(deviceID string, f *Flow) {
	r.mu.Lock()
	r.flows[deviceID] = f
	r.mu.Unlock()
}

// Remove drops a finished flow.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	delete(r.flows, deviceID)
	r.mu.Unlock()
}
