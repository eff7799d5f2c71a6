// Package runcontroller implements the Run Controller: the lifecycle
// owner of one top-level run. It mints the runtime id, resolves
// the caller's device access, builds the root Runner/Engine pair,
// awaits completion, commits the aggregate result, and clears the
// per-runtime target registry.
package runcontroller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/netloom/flowengine/internal/engine"
	"github.com/netloom/flowengine/internal/runner"
	"github.com/netloom/flowengine/internal/statestore"
	"github.com/netloom/flowengine/pkg/models"
)

// DeviceAccessResolver resolves the devices a caller (user/token) may
// target. RBAC itself is out of scope; this is the narrow seam the
// engine depends on to obtain an already-filtered device list.
type DeviceAccessResolver interface {
	Resolve(ctx context.Context, creator string, requested []string, pools []string) ([]string, error)
}

// DeviceAccessFunc adapts a function to a DeviceAccessResolver.
type DeviceAccessFunc func(ctx context.Context, creator string, requested []string, pools []string) ([]string, error)

func (f DeviceAccessFunc) Resolve(ctx context.Context, creator string, requested []string, pools []string) ([]string, error) {
	return f(ctx, creator, requested, pools)
}

// Controller owns Run lifecycle.
type Controller struct {
	Engine   *engine.Engine
	Runner   *runner.Runner
	Store    statestore.Store
	Access   DeviceAccessResolver
	Registry *Registry
	Log      *slog.Logger

	mu     sync.Mutex
	lastMs int64
}

// New builds a Controller.
func New(e *engine.Engine, r *runner.Runner, store statestore.Store, access DeviceAccessResolver, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{Engine: e, Runner: r, Store: store, Access: access, Registry: NewRegistry(), Log: log}
}

// NewRuntime mints a monotonic runtime id, collision-free to the
// millisecond: if two calls land in the same millisecond, the second is
// bumped forward by one so runtimes stay strictly increasing and unique
// even under a burst of concurrent run starts.
func (c *Controller) NewRuntime(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := now.UnixMilli()
	if ms <= c.lastMs {
		ms = c.lastMs + 1
	}
	c.lastMs = ms
	return fmt.Sprintf("%d", ms)
}

// StartOptions configures one top-level run.
type StartOptions struct {
	Runtime       string
	Service       *models.Service
	Workflow      *models.Workflow // non-nil when Service.Kind == KindWorkflow
	Creator       string
	Trigger       models.Trigger
	Payload       map[string]any
	TargetDevices []string
	TargetPools   []string
	StartServices []string
	Properties    map[string]any
	RestartFrom   *models.Run // optional: inherit targets, not state
}

// Start builds and drives one Run to completion, returning the finalized
// Run and its Runner/Engine outcome.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (*models.Run, models.RunnerOutcome, error) {
	devices := opts.TargetDevices
	pools := opts.TargetPools
	if opts.RestartFrom != nil {
		devices = opts.RestartFrom.TargetDevices
		pools = opts.RestartFrom.TargetPools
	}

	resolved, err := c.Access.Resolve(ctx, opts.Creator, devices, pools)
	if err != nil {
		return nil, models.RunnerOutcome{}, fmt.Errorf("runcontroller: resolve device access: %w", err)
	}
	c.Registry.SetTargets(opts.Runtime, resolved)
	defer c.Registry.Clear(opts.Runtime)

	run := &models.Run{
		Runtime:       opts.Runtime,
		Creator:       opts.Creator,
		ServiceID:     opts.Service.ID,
		StartServices: opts.StartServices,
		Payload:       opts.Payload,
		TargetDevices: resolved,
		TargetPools:   pools,
		Properties:    opts.Properties,
		RunMethod:     opts.Service.RunMethod,
		Trigger:       opts.Trigger,
		Status:        models.RunStatusRunning,
		CreatedAt:     time.Now(),
	}
	if opts.RestartFrom != nil {
		run.RestartRunID = opts.RestartFrom.Runtime
	}

	var outcome models.RunnerOutcome
	if opts.Service.Kind == models.KindWorkflow && opts.Workflow != nil {
		if run.RunMethod == models.RunMethodPerDevice {
			outcome = c.walkPerDevice(ctx, run, opts.Workflow, resolved)
		} else {
			outcome, err = c.Engine.Walk(ctx, run, opts.Workflow, resolved, "")
		}
	} else {
		outcome = c.Runner.Run(ctx, runner.Invocation{
			Run:           run,
			Service:       opts.Service,
			Payload:       opts.Payload,
			TargetDevices: resolved,
		})
	}
	if err != nil {
		run.Status = models.RunStatusAborted
		return run, outcome, err
	}

	run.Success = outcome.Success
	switch {
	case run.Stopped() || outcome.Result == "Aborted":
		run.Status = models.RunStatusAborted
	default:
		run.Status = models.RunStatusCompleted
	}

	run.Results = outcome.Results

	state, stateErr := c.Store.GetState(ctx, run.Runtime)
	if stateErr != nil {
		c.Log.Warn("failed to read final state tree", "runtime", run.Runtime, "error", stateErr)
	}
	run.State = state

	return run, outcome, nil
}

// walkPerDevice drives the engine once per device for a workflow whose
// RunMethod is per_device, aggregating success across all devices.
func (c *Controller) walkPerDevice(ctx context.Context, run *models.Run, workflow *models.Workflow, devices []string) models.RunnerOutcome {
	allSucceeded := true
	var results []*models.Result
	for _, device := range devices {
		if run.Stopped() {
			return models.RunnerOutcome{Success: false, Result: "Aborted", Results: results}
		}
		out, err := c.Engine.Walk(ctx, run, workflow, []string{device}, device)
		if err != nil {
			c.Log.Error("per-device walk failed", "runtime", run.Runtime, "device", device, "error", err)
			allSucceeded = false
			continue
		}
		results = append(results, out.Results...)
		if !out.Success {
			allSucceeded = false
		}
	}
	return models.RunnerOutcome{Success: allSucceeded, Results: results}
}

// Stop requests cancellation of an in-flight run.
func (c *Controller) Stop(run *models.Run) {
	run.Stop()
}
