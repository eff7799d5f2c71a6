package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netloom/flowengine/internal/runner"
	"github.com/netloom/flowengine/internal/statestore"
	"github.com/netloom/flowengine/pkg/models"
)

func linearWorkflow(t *testing.T, runMethod models.RunMethod) (*models.Workflow, *models.Service) {
	t.Helper()
	wf := models.NewWorkflow("wf1", "WF1")
	start, err := wf.Start()
	require.NoError(t, err)
	end, err := wf.End()
	require.NoError(t, err)

	a := &models.Service{ID: "a", ScopedName: "A", Kind: models.KindAtomic, Priority: 1, MaximumRuns: 1, RunMethod: runMethod}
	require.NoError(t, wf.AddService(a))
	require.NoError(t, wf.AddEdge(&models.Edge{ID: "e1", Source: start.ID, Destination: a.ID, Subtype: models.EdgeSuccess}))
	require.NoError(t, wf.AddEdge(&models.Edge{ID: "e2", Source: a.ID, Destination: end.ID, Subtype: models.EdgeSuccess}))
	return wf, a
}

func TestEngine_Walk_PerDeviceReachesEnd(t *testing.T) {
	wf, a := linearWorkflow(t, models.RunMethodPerDevice)
	reg := runner.NewRegistry()
	reg.Register(a.ID, runner.ExecutorFunc(func(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}))
	store := statestore.NewLocalStore()
	rn := runner.New(reg, store, nil)
	eng := New(rn, store, nil)

	run := &models.Run{Runtime: "r1", RunMethod: models.RunMethodPerDevice}
	outcome, err := eng.Walk(context.Background(), run, wf, []string{"dev1"}, "dev1")

	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestEngine_Walk_BFSPropagatesTargetsToEnd(t *testing.T) {
	wf, a := linearWorkflow(t, models.RunMethodPerServiceWithServiceTargets)
	reg := runner.NewRegistry()
	reg.Register(a.ID, runner.ExecutorFunc(func(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}))
	store := statestore.NewLocalStore()
	rn := runner.New(reg, store, nil)
	eng := New(rn, store, nil)

	run := &models.Run{Runtime: "r1", RunMethod: models.RunMethodPerServiceWithServiceTargets}
	outcome, err := eng.Walk(context.Background(), run, wf, []string{"dev1", "dev2"}, "")

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.ElementsMatch(t, []string{"dev1", "dev2"}, outcome.Summary.Success)
	assert.Empty(t, outcome.Summary.Failure)
}

func TestEngine_Walk_StoppedRunAborts(t *testing.T) {
	wf, a := linearWorkflow(t, models.RunMethodPerDevice)
	reg := runner.NewRegistry()
	reg.Register(a.ID, runner.ExecutorFunc(func(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}))
	store := statestore.NewLocalStore()
	rn := runner.New(reg, store, nil)
	eng := New(rn, store, nil)

	run := &models.Run{Runtime: "r1", RunMethod: models.RunMethodPerDevice}
	run.Stop()
	outcome, err := eng.Walk(context.Background(), run, wf, []string{"dev1"}, "dev1")

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Aborted", outcome.Result)
}

func TestEngine_Walk_MaximumRunsCapsDispatch(t *testing.T) {
	wf := models.NewWorkflow("wf1", "WF1")
	start, _ := wf.Start()
	end, _ := wf.End()
	a := &models.Service{ID: "a", ScopedName: "A", Kind: models.KindAtomic, Priority: 1, MaximumRuns: 1, RunMethod: models.RunMethodPerDevice}
	require.NoError(t, wf.AddService(a))
	require.NoError(t, wf.AddEdge(&models.Edge{ID: "e1", Source: start.ID, Destination: a.ID, Subtype: models.EdgeSuccess}))
	// a self-loop on failure would re-dispatch a indefinitely without the cap
	require.NoError(t, wf.AddEdge(&models.Edge{ID: "e2", Source: a.ID, Destination: a.ID, Subtype: models.EdgeFailure}))
	require.NoError(t, wf.AddEdge(&models.Edge{ID: "e3", Source: a.ID, Destination: end.ID, Subtype: models.EdgeSuccess}))

	var calls int
	reg := runner.NewRegistry()
	reg.Register(a.ID, runner.ExecutorFunc(func(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
		calls++
		return nil, errors.New("executor failure")
	}))
	store := statestore.NewLocalStore()
	rn := runner.New(reg, store, nil)
	eng := New(rn, store, nil)

	run := &models.Run{Runtime: "r1", RunMethod: models.RunMethodPerDevice}
	outcome, err := eng.Walk(context.Background(), run, wf, []string{"dev1"}, "dev1")

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, 1, calls, "MaximumRuns=1 must prevent the failure self-loop from re-dispatching a")
}

func TestEngine_Walk_CollectsPerDeviceResults(t *testing.T) {
	wf, a := linearWorkflow(t, models.RunMethodPerDevice)
	reg := runner.NewRegistry()
	reg.Register(a.ID, runner.ExecutorFunc(func(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
		return map[string]any{"device": device}, nil
	}))
	store := statestore.NewLocalStore()
	rn := runner.New(reg, store, nil)
	eng := New(rn, store, nil)

	run := &models.Run{Runtime: "r1", RunMethod: models.RunMethodPerDevice}
	outcome, err := eng.Walk(context.Background(), run, wf, []string{"dev1"}, "dev1")

	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "dev1", outcome.Results[0].DeviceName)
	assert.Equal(t, a.ID, outcome.Results[0].ServiceID)
}

func TestEngine_Walk_WaitingTimePausesBeforePropagation(t *testing.T) {
	wf, a := linearWorkflow(t, models.RunMethodPerDevice)
	a.WaitingTime = 1
	reg := runner.NewRegistry()
	reg.Register(a.ID, runner.ExecutorFunc(func(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}))
	store := statestore.NewLocalStore()
	rn := runner.New(reg, store, nil)
	eng := New(rn, store, nil)

	run := &models.Run{Runtime: "r1", RunMethod: models.RunMethodPerDevice}
	start := time.Now()
	outcome, err := eng.Walk(context.Background(), run, wf, []string{"dev1"}, "dev1")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.GreaterOrEqual(t, elapsed, time.Second, "waiting_time_seconds must pause before successors are pushed")
}

