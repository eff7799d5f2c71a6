package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netloom/flowengine/pkg/models"
)

func TestRegisterService_LookupRoundTrip(t *testing.T) {
	r := NewServiceRegistry()
	svc := &models.Service{ID: "svc1", ScopedName: "svc1", Kind: models.KindAtomic}

	require.NoError(t, r.RegisterService(svc))

	got, wf, ok := r.Lookup("svc1")
	assert.True(t, ok)
	assert.Equal(t, svc, got)
	assert.Nil(t, wf)
}

func TestRegisterService_InvalidServiceRejected(t *testing.T) {
	r := NewServiceRegistry()
	err := r.RegisterService(&models.Service{ID: "", ScopedName: "svc1"})
	assert.Error(t, err)
}

func TestRegisterWorkflow_IndexesMemberServicesAndWorkflow(t *testing.T) {
	r := NewServiceRegistry()
	wf, err := newValidWorkflow()
	require.NoError(t, err)

	require.NoError(t, r.RegisterWorkflow(wf))

	svc, gotWF, ok := r.Lookup(wf.ID)
	assert.True(t, ok)
	assert.Equal(t, &wf.Service, svc)
	assert.Same(t, wf, gotWF)

	member, memberWF, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.NotNil(t, member)
	assert.Nil(t, memberWF, "a member service's own Lookup must not resolve to the owning workflow")
}

func TestLookup_UnknownIDNotFound(t *testing.T) {
	r := NewServiceRegistry()
	_, _, ok := r.Lookup("missing")
	assert.False(t, ok)
}

func TestList_ReturnsEveryIndexedService(t *testing.T) {
	r := NewServiceRegistry()
	require.NoError(t, r.RegisterService(&models.Service{ID: "svc1", ScopedName: "svc1", Kind: models.KindAtomic}))
	wf, err := newValidWorkflow()
	require.NoError(t, err)
	require.NoError(t, r.RegisterWorkflow(wf))

	list := r.List()
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"svc1", wf.ID, "a", "wf1/start", "wf1/end"}, ids)
}

func newValidWorkflow() (*models.Workflow, error) {
	wf := models.NewWorkflow("wf1", "WF1")
	start, err := wf.Start()
	if err != nil {
		return nil, err
	}
	end, err := wf.End()
	if err != nil {
		return nil, err
	}
	a := &models.Service{ID: "a", ScopedName: "A", Kind: models.KindAtomic, Priority: 1, MaximumRuns: 1}
	if err := wf.AddService(a); err != nil {
		return nil, err
	}
	if err := wf.AddEdge(&models.Edge{ID: "e1", Source: start.ID, Destination: a.ID, Subtype: models.EdgeSuccess}); err != nil {
		return nil, err
	}
	if err := wf.AddEdge(&models.Edge{ID: "e2", Source: a.ID, Destination: end.ID, Subtype: models.EdgeSuccess}); err != nil {
		return nil, err
	}
	return wf, nil
}
