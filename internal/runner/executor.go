package runner

import "context"

// Executor is the black-box leaf implementation of one Service against one
// device: SSH/NETCONF/SNMP drivers and whatever else a service descriptor's
// custom code resolves to. The Runner never interprets what happens inside
// Execute; it only observes its error and result map.
//
// When the Runner resolves no devices for an invocation, Execute is called
// once with device empty; no target device set is passed in that case.
type Executor interface {
	Execute(ctx context.Context, device string, payload map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a plain function to an Executor.
type ExecutorFunc func(ctx context.Context, device string, payload map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
	return f(ctx, device, payload)
}

// Registry resolves a Service to the Executor that runs it, keyed by
// Service.ID. cmd/server installs an echoing fallback executor and tests
// populate it directly with stub executors; nothing in this module loads
// executors from the configured custom-code path (paths.custom_code).
type Registry struct {
	executors map[string]Executor
	fallback  Executor
}

// NewRegistry builds an empty registry. Register fallback with
// SetFallback for services with no dedicated entry (useful in tests).
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds serviceID to executor.
func (r *Registry) Register(serviceID string, executor Executor) {
	r.executors[serviceID] = executor
}

// SetFallback sets the executor used when no dedicated entry exists.
func (r *Registry) SetFallback(executor Executor) { r.fallback = executor }

// Resolve returns the Executor for serviceID, or the fallback if unset.
func (r *Registry) Resolve(serviceID string) (Executor, bool) {
	if e, ok := r.executors[serviceID]; ok {
		return e, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}
