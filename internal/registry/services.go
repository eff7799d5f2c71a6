// Package registry holds the in-process catalog of Services and
// Workflows a server instance knows about. Persistence of the catalog
// itself (a database, a Git-backed config store) is out of scope; this
// just keeps what has been registered at runtime reachable by ID for
// the REST surface and the scheduler.
package registry

import (
	"sync"

	"github.com/netloom/flowengine/pkg/models"
)

// ServiceRegistry maps service IDs to their Service (and, for
// workflow-kind services, the owning Workflow).
type ServiceRegistry struct {
	mu        sync.RWMutex
	services  map[string]*models.Service
	workflows map[string]*models.Workflow // keyed by the workflow's own service ID
}

// NewServiceRegistry returns an empty ServiceRegistry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services:  make(map[string]*models.Service),
		workflows: make(map[string]*models.Workflow),
	}
}

// RegisterService adds a standalone atomic/connection service.
func (r *ServiceRegistry) RegisterService(s *models.Service) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.ID] = s
	return nil
}

// RegisterWorkflow adds a workflow, indexing every member service's ID
// to its own Service record (not the workflow's) so Lookup can
// distinguish a direct workflow start from a dispatch of one of its
// members.
func (r *ServiceRegistry) RegisterWorkflow(w *models.Workflow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[w.ID] = &w.Service
	r.workflows[w.ID] = w
	for _, s := range w.Services {
		r.services[s.ID] = s
	}
	return nil
}

// Lookup resolves a service ID to its Service and, when it names a
// workflow, that workflow (nil otherwise).
func (r *ServiceRegistry) Lookup(id string) (*models.Service, *models.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	if !ok {
		return nil, nil, false
	}
	return svc, r.workflows[id], true
}

// List returns every indexed service: top-level services, workflows, and
// each workflow's member services including its Start and End.
func (r *ServiceRegistry) List() []*models.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	return out
}
