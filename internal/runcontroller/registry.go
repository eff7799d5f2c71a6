package runcontroller

import "sync"

// Registry holds the per-runtime target device sets, with lifetime bounded
// by the Run Controller rather than the process. It holds targets only:
// per-runtime logs and live state are kept in the statestore.Store, keyed
// by runtime.
type Registry struct {
	mu      sync.RWMutex
	targets map[string][]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string][]string)}
}

// SetTargets records the RBAC-resolved device set for runtime, written
// once at Run start.
func (r *Registry) SetTargets(runtime string, devices []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[runtime] = devices
}

// Targets returns the device set previously stored for runtime.
func (r *Registry) Targets(runtime string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.targets[runtime]
}

// Clear removes runtime's entry, called at Run finalization.
func (r *Registry) Clear(runtime string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, runtime)
}
