// Package runner implements the Runner component: the executor for one
// Service within a Run. It resolves targets, expands
// iteration, honors skip rules, fans work across devices with retry and
// validation, and aggregates a per-device summary the Workflow Engine
// propagates along edges.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/netloom/flowengine/internal/expreval"
	"github.com/netloom/flowengine/internal/statestore"
	"github.com/netloom/flowengine/pkg/models"
)

// errAborted marks a device attempt short-circuited by the run's stop flag.
var errAborted = errors.New("runner: run stopped")

// Invocation carries everything one Runner.Run call needs: the service
// being executed, the run it belongs to, and the workflow context the
// Workflow Engine supplies when the service is a workflow member.
type Invocation struct {
	Run     *models.Run
	Service *models.Service

	// Workflow is the containing graph, nil when Service is invoked
	// standalone (not as a workflow member).
	Workflow *models.Workflow

	ParentRuntime     string
	WorkflowRunMethod models.RunMethod

	TargetDevices []string
	Payload       map[string]any
}

// Runner executes one Service against its resolved target set.
type Runner struct {
	Registry            *Registry
	Store                statestore.Store
	Log                  *slog.Logger
	MaxProcessesDefault  int
}

// New builds a Runner. A nil logger falls back to slog.Default().
func New(registry *Registry, store statestore.Store, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	maxProcesses := 5
	return &Runner{Registry: registry, Store: store, Log: log, MaxProcessesDefault: maxProcesses}
}

// Run executes inv.Service through its resolve/skip/retry/validate pipeline
// and returns the per-invocation outcome the Workflow Engine reads
// results/summary from.
func (r *Runner) Run(ctx context.Context, inv Invocation) models.RunnerOutcome {
	start := time.Now()
	service := inv.Service
	run := inv.Run
	payload := cloneMap(inv.Payload)

	// Step 1: resolve targets.
	devices := dedup(inv.TargetDevices)
	if service.RunMethod == models.RunMethodPerDevice && len(devices) == 0 {
		devices = dedup(run.TargetDevices)
	}

	workflowName := ""
	if inv.Workflow != nil {
		workflowName = inv.Workflow.Name
	}

	env := expreval.Env{Payload: payload, Run: runEnv(run), Results: map[string]any{}}

	// Step 2: iteration expansion.
	iterValues, err := r.resolveIterationValues(service, env)
	if err != nil {
		r.Log.Warn("iteration_values evaluation failed, treating as single iteration", "service", service.ID, "error", err)
		iterValues = []any{nil}
	}
	if len(iterValues) == 0 {
		iterValues = []any{nil}
	}
	if iterDevices, err := r.resolveIterationDevices(service, env); err != nil {
		r.Log.Warn("iteration_devices evaluation failed, keeping resolved targets", "service", service.ID, "error", err)
	} else if iterDevices != nil {
		devices = iterDevices
	}

	// Step 3: skip.
	if skipped, outcome := r.checkSkip(service, workflowName, env, devices); skipped {
		return outcome
	}

	// Step 4: preprocessing, once per iteration value, side effects into payload.
	for _, iv := range iterValues {
		iterEnv := env
		if service.Iteration.VariableName != "" && iv != nil {
			iterEnv.Payload = mergeOverlay(payload, service.Iteration.VariableName, iv)
		}
		if err := r.runCodeHook(service.Preprocessing, iterEnv, payload); err != nil {
			r.Log.Warn("preprocessing failed", "service", service.ID, "error", err)
			r.logLine(ctx, run.Runtime, service.ID, fmt.Sprintf("preprocessing failed: %v", err))
		}
	}

	if run.Stopped() {
		return models.RunnerOutcome{Payload: payload, Success: false, Result: "Aborted"}
	}

	// Step 5 & 6: per-device execution with retry and validation.
	summary := &models.Summary{}
	overallSuccess := true
	var resultsMu sync.Mutex
	results := make([]*models.Result, 0, len(devices))

	runOne := func(device string) {
		if run.Stopped() {
			resultsMu.Lock()
			summary.Failure = append(summary.Failure, device)
			resultsMu.Unlock()
			return
		}
		attemptStart := time.Now()
		last := runWithRetry(ctx, run, service.Retry, func(ctx context.Context) attemptResult {
			exec, ok := r.Registry.Resolve(service.ID)
			if !ok {
				return attemptResult{success: false, err: fmt.Errorf("runner: no executor registered for service %s", service.ID)}
			}
			data, err := exec.Execute(ctx, device, payload)
			return attemptResult{success: err == nil, data: data, err: err}
		}, func(a attemptResult) bool {
			validated, verr := validate(service.Validation, a.success, a.data)
			if verr != nil {
				r.Log.Warn("validation failed, treating attempt as failure", "service", service.ID, "device", device, "error", verr)
				return false
			}
			return validated
		})

		success, _ := validate(service.Validation, last.success, last.data)
		resultsMu.Lock()
		if success {
			summary.Success = append(summary.Success, device)
		} else {
			summary.Failure = append(summary.Failure, device)
			overallSuccess = false
		}
		result := &models.Result{
			RunRuntime:    run.Runtime,
			ParentRuntime: inv.ParentRuntime,
			ServiceID:     service.ID,
			ServiceName:   service.Name,
			DeviceName:    device,
			Success:       success,
			Data:          last.data,
			Runtime:       run.Runtime,
			Duration:      time.Since(attemptStart),
		}
		if !service.DisableResultCreation {
			results = append(results, result)
		}
		resultsMu.Unlock()
		r.recordDeviceProgress(ctx, run.Runtime, service.ID, success)
		if !service.DisableResultCreation {
			r.persistResult(ctx, result)
		}
		if !success {
			r.logLine(ctx, run.Runtime, service.ID, fmt.Sprintf("device %s failed: %v", device, last.err))
		}
	}

	switch {
	case len(devices) == 0:
		// No devices resolved: run the leaf once with device "" (see runBulk).
		// A non-per_device service that was handed targets runs per device
		// like any other.
		runBulk(ctx, run, service, r.Registry, payload, func(success bool) {
			overallSuccess = success
		})
	case service.Multiprocessing:
		r.runFanOut(devices, service.MaxProcesses, runOne)
	default:
		for _, d := range devices {
			if run.Stopped() {
				break
			}
			runOne(d)
		}
	}
	sort.Strings(summary.Success)
	sort.Strings(summary.Failure)

	// Step 7: postprocessing.
	postEnv := env
	postEnv.Results = map[string]any{"success": overallSuccess, "summary": summaryToMap(summary)}
	mode := service.PostprocessingMode
	if mode == models.PostprocessingAlways ||
		(mode == models.PostprocessingSuccess && overallSuccess) ||
		(mode == models.PostprocessingFailure && !overallSuccess) {
		if err := r.runCodeHook(service.Postprocessing, postEnv, payload); err != nil {
			r.Log.Warn("postprocessing failed", "service", service.ID, "error", err)
			r.logLine(ctx, run.Runtime, service.ID, fmt.Sprintf("postprocessing failed: %v", err))
		}
	}

	// Step 9: notification (best-effort, errors never change run outcome).
	if service.Notification.Send {
		r.notify(service, overallSuccess, summary)
	}

	_ = start
	return models.RunnerOutcome{
		Payload: payload,
		Success: overallSuccess,
		Summary: summary,
		Results: results,
	}
}

// recordDeviceProgress increments the canonical per-service device tally
// (progress/service/<id>/device/{success,failure,total}) at the point a
// device attempt's outcome is actually known.
func (r *Runner) recordDeviceProgress(ctx context.Context, runtime, serviceID string, success bool) {
	if r.Store == nil {
		return
	}
	base := "progress/service/" + serviceID + "/device/"
	outcome := "failure"
	if success {
		outcome = "success"
	}
	_ = r.Store.WriteState(ctx, runtime, base+outcome, 1, statestore.ModeIncrement)
	_ = r.Store.WriteState(ctx, runtime, base+"total", 1, statestore.ModeIncrement)
}

// persistResult records one device Result onto the run's state tree as a
// JSON-encoded line, since the shared backend only stores scalars.
func (r *Runner) persistResult(ctx context.Context, result *models.Result) {
	if r.Store == nil {
		return
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		r.Log.Warn("failed to encode result", "service", result.ServiceID, "device", result.DeviceName, "error", err)
		return
	}
	path := "results/" + result.ServiceID
	_ = r.Store.WriteState(ctx, result.RunRuntime, path, string(encoded), statestore.ModeAppend)
}

// logLine appends a line to the run's per-service log queue, the durable
// sibling of the slog.Warn calls scattered through the hook/retry paths.
func (r *Runner) logLine(ctx context.Context, runtime, serviceID, line string) {
	if r.Store == nil {
		return
	}
	if _, err := r.Store.LogQueue(ctx, runtime, serviceID, statestore.LogAdd, line, 0); err != nil {
		r.Log.Warn("failed to append log line", "service", serviceID, "error", err)
	}
}

func (r *Runner) checkSkip(service *models.Service, workflowName string, env expreval.Env, devices []string) (bool, models.RunnerOutcome) {
	skip := service.IsSkipped(workflowName)
	if !skip && service.Skip.Query != "" {
		program, err := expreval.Compile(service.Skip.Query)
		if err != nil {
			r.Log.Warn("skip_query compile failed, not skipping", "service", service.ID, "error", err)
		} else if truthy, err := program.EvalBool(env); err != nil {
			r.Log.Warn("skip_query evaluation failed, not skipping", "service", service.ID, "error", err)
		} else {
			skip = truthy
		}
	}
	if !skip {
		return false, models.RunnerOutcome{}
	}
	success := service.Skip.Value == models.SkipValueSuccess
	summary := &models.Summary{}
	if success {
		summary.Success = devices
	} else {
		summary.Failure = devices
	}
	return true, models.RunnerOutcome{Payload: env.Payload, Success: success, Result: "skipped", Summary: summary}
}

func (r *Runner) resolveIterationValues(service *models.Service, env expreval.Env) ([]any, error) {
	if service.Iteration.Values == "" {
		return nil, nil
	}
	program, err := expreval.Compile(service.Iteration.Values)
	if err != nil {
		return nil, err
	}
	return program.EvalSlice(env)
}

func (r *Runner) resolveIterationDevices(service *models.Service, env expreval.Env) ([]string, error) {
	if service.Iteration.Devices == "" {
		return nil, nil
	}
	program, err := expreval.Compile(service.Iteration.Devices)
	if err != nil {
		return nil, err
	}
	values, err := program.EvalSlice(env)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return dedup(out), nil
}

// runCodeHook compiles and runs a preprocessing/postprocessing expression,
// merging any returned map back into payload in place.
func (r *Runner) runCodeHook(source string, env expreval.Env, payload map[string]any) error {
	if source == "" {
		return nil
	}
	program, err := expreval.Compile(source)
	if err != nil {
		return err
	}
	updates, err := program.EvalMap(env)
	if err != nil {
		return err
	}
	for k, v := range updates {
		payload[k] = v
	}
	return nil
}

func (r *Runner) runFanOut(devices []string, maxProcesses int, runOne func(string)) {
	if maxProcesses <= 0 {
		maxProcesses = r.MaxProcessesDefault
	}
	sem := make(chan struct{}, maxProcesses)
	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		sem <- struct{}{}
		go func(device string) {
			defer wg.Done()
			defer func() { <-sem }()
			runOne(device)
		}(d)
	}
	wg.Wait()
}

// runBulk executes a service once with device "" and the payload, for an
// invocation that resolved no devices. No target device set is passed to
// the leaf implementation.
func runBulk(ctx context.Context, run *models.Run, service *models.Service, registry *Registry, payload map[string]any, report func(bool)) {
	if run.Stopped() {
		report(false)
		return
	}
	exec, ok := registry.Resolve(service.ID)
	if !ok {
		report(false)
		return
	}
	_, err := exec.Execute(ctx, "", payload)
	report(err == nil)
}

func (r *Runner) notify(service *models.Service, success bool, summary *models.Summary) {
	r.Log.Info("notification dispatched",
		"service", service.ID,
		"method", service.Notification.Method,
		"header", service.Notification.Header,
		"success", success,
		"devices_succeeded", len(summary.Success),
		"devices_failed", len(summary.Failure),
	)
}

func summaryToMap(s *models.Summary) map[string]any {
	return map[string]any{"success": s.Success, "failure": s.Failure}
}

func runEnv(run *models.Run) map[string]any {
	return map[string]any{
		"runtime":  run.Runtime,
		"creator":  run.Creator,
		"trigger":  string(run.Trigger),
		"properties": run.Properties,
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeOverlay(base map[string]any, key string, value any) map[string]any {
	out := cloneMap(base)
	out[key] = value
	return out
}

func dedup(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
