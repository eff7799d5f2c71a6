package models

import "fmt"

// EdgeSubtype selects which outcome of the source service an edge fires on.
type EdgeSubtype string

const (
	EdgeSuccess EdgeSubtype = "success"
	EdgeFailure EdgeSubtype = "failure"
)

// Edge is a directed link between two services inside one workflow, fired
// when the source service's outcome matches Subtype. An Edge carries no
// loop-specific fields at all: cycles are an ordinary property of the
// graph, bounded purely by the destination service's MaximumRuns dispatch
// cap (see engine package), not by a per-edge iteration count. Self-loops
// are legal.
type Edge struct {
	ID          string      `json:"id"`
	WorkflowID  string      `json:"workflow_id"`
	Source      string      `json:"source"`      // Service.ID
	Destination string      `json:"destination"` // Service.ID
	Subtype     EdgeSubtype `json:"subtype"`
}

// Validate checks edge-local invariants. Uniqueness of
// (subtype, source, destination, workflow) is checked at the Workflow level.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Message: "edge ID is required"}
	}
	if e.Source == "" || e.Destination == "" {
		return &ValidationError{Field: "edge", Message: "source and destination are required"}
	}
	if e.Subtype != EdgeSuccess && e.Subtype != EdgeFailure {
		return &ValidationError{Field: "subtype", Message: fmt.Sprintf("unknown edge subtype %q", e.Subtype)}
	}
	return nil
}

// Workflow is a Service whose body is a sub-graph: an unordered set of
// member Services plus a set of Edges between them. A Workflow is itself a
// Service with Kind == KindWorkflow; the Services and Edges fields hold the
// graph-specific payload that single-table inheritance folded onto the same
// row in the source.
type Workflow struct {
	Service

	Services []*Service `json:"services"`
	Edges    []*Edge    `json:"edges"`

	// SuperworkflowID optionally names the workflow that embeds this one as
	// a sub-workflow service; empty at the top level.
	SuperworkflowID string `json:"superworkflow_id,omitempty"`
}

// NewWorkflow builds a Workflow pre-seeded with the two reserved Start/End
// services every workflow graph must contain.
func NewWorkflow(id, scopedName string) *Workflow {
	w := &Workflow{
		Service: Service{
			ID:         id,
			ScopedName: scopedName,
			Kind:       KindWorkflow,
			Priority:   1,
			MaximumRuns: 1,
			RunMethod:  RunMethodPerDevice,
		},
	}
	w.SetName("")
	start := &Service{ID: id + "/start", ScopedName: ScopedNameStart, Kind: KindAtomic, Priority: 1, MaximumRuns: 1, RunMethod: RunMethodPerDevice}
	end := &Service{ID: id + "/end", ScopedName: ScopedNameEnd, Kind: KindAtomic, Priority: 1, MaximumRuns: 1, RunMethod: RunMethodPerDevice}
	w.Services = append(w.Services, start, end)
	return w
}

// Start returns the reserved Start service.
func (w *Workflow) Start() (*Service, error) { return w.serviceByScopedName(ScopedNameStart) }

// End returns the reserved End service.
func (w *Workflow) End() (*Service, error) { return w.serviceByScopedName(ScopedNameEnd) }

func (w *Workflow) serviceByScopedName(name string) (*Service, error) {
	for _, s := range w.Services {
		if s.ScopedName == name {
			return s, nil
		}
	}
	if name == ScopedNameStart {
		return nil, ErrStartNotFound
	}
	return nil, ErrEndNotFound
}

// GetService returns a member service by ID.
func (w *Workflow) GetService(id string) (*Service, error) {
	for _, s := range w.Services {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, ErrServiceNotFound
}

// GetEdge returns a member edge by ID.
func (w *Workflow) GetEdge(id string) (*Edge, error) {
	for _, e := range w.Edges {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEdgeNotFound
}

// AddService appends a service to the workflow, enforcing unique IDs.
func (w *Workflow) AddService(s *Service) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, existing := range w.Services {
		if existing.ID == s.ID {
			return &ValidationError{Field: "id", Message: "service ID already exists in workflow"}
		}
	}
	s.SetName(w.ScopedName)
	w.Services = append(w.Services, s)
	return nil
}

// AddEdge appends an edge, enforcing the (subtype, source, destination)
// uniqueness invariant and that both endpoints exist.
func (w *Workflow) AddEdge(e *Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := w.GetService(e.Source); err != nil {
		return &ValidationError{Field: "source", Message: "source service does not exist in workflow"}
	}
	if _, err := w.GetService(e.Destination); err != nil {
		return &ValidationError{Field: "destination", Message: "destination service does not exist in workflow"}
	}
	for _, existing := range w.Edges {
		if existing.Subtype == e.Subtype && existing.Source == e.Source && existing.Destination == e.Destination {
			return &ValidationError{Field: "edge", Message: "duplicate (subtype, source, destination) edge"}
		}
	}
	e.WorkflowID = w.ID
	w.Edges = append(w.Edges, e)
	return nil
}

// Neighbors yields the (peer service, edge) pairs reachable from s in the
// given direction and subtype, restricted to this workflow's graph.
//
// direction == "destination": peers s points to (s is the edge's Source).
// direction == "source": peers that point to s (s is the edge's Destination).
//
// This mirrors the source's `neighbors(workflow, direction, subtype)`,
// which reads `getattr(self, f"{direction}s")` — i.e. direction names the
// *endpoint role of the peer being yielded*, not the edge's own traversal
// direction. That is confusingly backwards from typical graph terminology
// (where "destination" usually means "the edge points toward its
// destination", not "give me the peers that are destinations of edges I
// source"), so it is spelled out here explicitly: direction="destination"
// walks outgoing edges (s is Source), direction="source" walks incoming
// edges (s is Destination).
func (w *Workflow) Neighbors(s *Service, direction string, subtype EdgeSubtype) []NeighborEdge {
	var out []NeighborEdge
	for _, e := range w.Edges {
		if e.Subtype != subtype {
			continue
		}
		switch direction {
		case "destination":
			if e.Source != s.ID {
				continue
			}
			if peer, err := w.GetService(e.Destination); err == nil {
				out = append(out, NeighborEdge{Peer: peer, Edge: e})
			}
		case "source":
			if e.Destination != s.ID {
				continue
			}
			if peer, err := w.GetService(e.Source); err == nil {
				out = append(out, NeighborEdge{Peer: peer, Edge: e})
			}
		}
	}
	return out
}

// NeighborEdge pairs a reachable peer service with the edge that reaches it.
type NeighborEdge struct {
	Peer *Service
	Edge *Edge
}

// Validate checks the whole-graph invariants: unique service IDs, edges
// reference existing endpoints, unique (subtype, source, destination), and
// that the reserved Start/End services are present.
func (w *Workflow) Validate() error {
	if w.ScopedName == "" {
		return &ValidationError{Field: "scoped_name", Message: "scoped name is required"}
	}
	ids := make(map[string]bool, len(w.Services))
	for _, s := range w.Services {
		if err := s.Validate(); err != nil {
			return err
		}
		if ids[s.ID] {
			return &ValidationError{Field: "services", Message: fmt.Sprintf("duplicate service ID: %s", s.ID)}
		}
		ids[s.ID] = true
	}
	if _, err := w.Start(); err != nil {
		return err
	}
	if _, err := w.End(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(w.Edges))
	for _, e := range w.Edges {
		if err := e.Validate(); err != nil {
			return err
		}
		if !ids[e.Source] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge references unknown source: %s", e.Source)}
		}
		if !ids[e.Destination] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge references unknown destination: %s", e.Destination)}
		}
		key := fmt.Sprintf("%s|%s|%s", e.Subtype, e.Source, e.Destination)
		if seen[key] {
			return &ValidationError{Field: "edges", Message: "duplicate (subtype, source, destination) edge"}
		}
		seen[key] = true
	}
	return nil
}

// DeepServices returns this workflow's own Service followed by its direct
// member services. Members are plain Services, so a member of KindWorkflow
// contributes only its own record; services nested inside it are not
// included.
func (w *Workflow) DeepServices() []*Service {
	out := []*Service{&w.Service}
	for _, s := range w.Services {
		out = append(out, s)
	}
	return out
}
