// Package engine implements the Workflow Engine: the priority-ordered
// graph walker that pops pending services from a heap,
// invokes a Runner for each, and propagates device targets along
// success/failure edges until the heap drains or the run's stop flag is
// observed.
package engine

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/netloom/flowengine/internal/progress"
	"github.com/netloom/flowengine/internal/runner"
	"github.com/netloom/flowengine/internal/statestore"
	"github.com/netloom/flowengine/pkg/models"
)

// Engine walks one workflow graph for one Run.
type Engine struct {
	Runner   *runner.Runner
	Store    statestore.Store
	Log      *slog.Logger
	Progress *progress.Dispatcher // optional; nil disables event emission entirely
}

// New builds an Engine.
func New(r *runner.Runner, store statestore.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Runner: r, Store: store, Log: log}
}

// emit notifies the engine's Dispatcher, if any, swallowing the
// observer error into a log line so a misbehaving subscriber never
// disrupts a walk.
func (w *walk) emit(ctx context.Context, event progress.Event) {
	if w.engine.Progress == nil {
		return
	}
	event.Runtime = w.run.Runtime
	if err := w.engine.Progress.Emit(ctx, event); err != nil {
		w.engine.Log.Warn("progress observer failed", "runtime", w.run.Runtime, "error", err)
	}
}

// Walk drives the graph rooted at workflow for run, starting from
// startTargets bound to run.StartServices (or {Start} when empty).
//
// device is non-empty only when the *containing* run uses per_device mode
// and an outer driver is calling Walk once per device; it is empty for
// both BFS run-methods, which
// walk the whole device set in a single call.
func (e *Engine) Walk(ctx context.Context, run *models.Run, workflow *models.Workflow, startTargets []string, device string) (models.RunnerOutcome, error) {
	w := &walk{
		engine:   e,
		run:      run,
		workflow: workflow,
		device:   device,
		isBFS:    run.RunMethod.IsBFS(),
		// trackingBFS flags only the workflow-target-propagating BFS
		// variant, not its service-target sibling, so the narrower
		// flag drives the progress-aggregate quirk below while the
		// wider IsBFS() covers everything else (termination, edge
		// bookkeeping).
		trackingBFS: run.RunMethod == models.RunMethodPerServiceWithWorkflowTargets,
		pending:     &pendingQueue{},
		visited:     make(map[string]bool),
		runCount:    make(map[string]int),
		targets:     make(map[string][]string),
	}
	heap.Init(w.pending)
	return w.execute(ctx, startTargets)
}

type walk struct {
	engine      *Engine
	run         *models.Run
	workflow    *models.Workflow
	device      string
	isBFS       bool
	trackingBFS bool

	pending  *pendingQueue
	seq      int
	visited  map[string]bool
	runCount map[string]int
	targets  map[string][]string
	results  []*models.Result
}

func (w *walk) execute(ctx context.Context, startTargets []string) (models.RunnerOutcome, error) {
	start, err := w.workflow.Start()
	if err != nil {
		return models.RunnerOutcome{}, err
	}
	end, err := w.workflow.End()
	if err != nil {
		return models.RunnerOutcome{}, err
	}

	seeds := w.run.StartServices
	if len(seeds) == 0 {
		seeds = []string{start.ID}
	}
	for _, id := range seeds {
		svc, err := w.workflow.GetService(id)
		if err != nil {
			return models.RunnerOutcome{}, err
		}
		w.targets[svc.Name] = append([]string(nil), startTargets...)
		w.push(svc)
	}

	w.emit(ctx, progress.Event{Type: progress.EventRunStarted, Status: "running"})

	for w.pending.Len() > 0 {
		if w.run.Stopped() {
			w.emit(ctx, progress.Event{Type: progress.EventRunAborted, Status: "aborted"})
			return models.RunnerOutcome{Success: false, Result: "Aborted", Results: w.results}, nil
		}
		item := heap.Pop(w.pending).(*pendingItem)
		svc, err := w.workflow.GetService(item.serviceID)
		if err != nil {
			continue
		}
		if w.runCount[svc.ID] >= svc.MaximumRuns {
			continue
		}
		w.runCount[svc.ID]++
		w.visited[svc.ID] = true

		outcome, dispatched := w.dispatch(ctx, svc)
		if !dispatched {
			continue
		}
		w.results = append(w.results, outcome.Results...)

		status := models.EdgeFailure
		if outcome.Success {
			status = models.EdgeSuccess
		}
		summary := outcome.Summary
		if summary == nil {
			summary = &models.Summary{}
		}

		if !w.trackingBFS && w.device == "" {
			mode := statestore.ModeIncrement
			_ = w.engine.Store.WriteState(ctx, w.run.Runtime, "progress/service/"+string(status), 1, mode)
		}

		w.waitAfterCompletion(svc)
		w.propagate(ctx, svc, status, summary)
	}

	if w.isBFS || w.device != "" {
		startSet := w.targets[start.Name]
		endSet := w.targets[end.Name]
		failed := difference(startSet, endSet)
		outcome := models.RunnerOutcome{
			Success: len(failed) == 0,
			Summary: &models.Summary{Success: endSet, Failure: failed},
			Results: w.results,
		}
		w.emit(ctx, progress.Event{Type: progress.EventRunCompleted, Status: successStatus(outcome.Success)})
		return outcome, nil
	}
	outcome := models.RunnerOutcome{Success: w.visited[end.ID], Results: w.results}
	w.emit(ctx, progress.Event{Type: progress.EventRunCompleted, Status: successStatus(outcome.Success)})
	return outcome, nil
}

// waitAfterCompletion pauses waiting_time seconds after svc completes,
// before its successors are pushed. The run's stop flag is checked first
// so a stopped run never sleeps out a pending pause.
func (w *walk) waitAfterCompletion(svc *models.Service) {
	if svc.WaitingTime <= 0 || w.run.Stopped() {
		return
	}
	time.Sleep(time.Duration(svc.WaitingTime) * time.Second)
}

func successStatus(success bool) string {
	if success {
		return "completed"
	}
	return "failed"
}

// dispatch synthesizes a skip/Start/End result or invokes a Runner,
// returning (outcome, true) when edge propagation should proceed, or
// (zero, false) when the Runner silently failed and the pop should be
// ignored (the pop continues without updating counters).
func (w *walk) dispatch(ctx context.Context, svc *models.Service) (models.RunnerOutcome, bool) {
	start, _ := w.workflow.Start()
	end, _ := w.workflow.End()
	workflowScopedSkip := svc.IsSkipped(w.workflow.Name)

	if svc.ID == start.ID || svc.ID == end.ID || workflowScopedSkip {
		success := svc.Skip.Value == models.SkipValueSuccess
		if svc.ID == start.ID || svc.ID == end.ID {
			success = true
		}
		var summary *models.Summary
		if w.isBFS || w.device != "" {
			devices := w.targets[svc.Name]
			if success {
				summary = &models.Summary{Success: devices}
			} else {
				summary = &models.Summary{Failure: devices}
			}
		}
		if workflowScopedSkip {
			w.emit(ctx, progress.Event{Type: progress.EventServiceSkipped, ServiceID: svc.ID, Status: "skipped"})
		}
		return models.RunnerOutcome{Success: success, Result: "skipped", Summary: summary}, true
	}

	target := svc
	if svc.ScopedName == models.ScopedNamePlaceholder {
		if resolved, err := w.workflow.GetService(w.run.PlaceholderID); err == nil {
			target = resolved
		}
	}

	var targetDevices []string
	if w.isBFS || w.device != "" {
		targetDevices = w.targets[svc.Name]
	}

	inv := runner.Invocation{
		Run:               w.run,
		Service:           target,
		Workflow:          w.workflow,
		ParentRuntime:     w.run.ParentRuntime,
		WorkflowRunMethod: w.run.RunMethod,
		TargetDevices:     targetDevices,
		Payload:           w.run.Payload,
	}
	w.emit(ctx, progress.Event{Type: progress.EventServiceDispatched, ServiceID: svc.ID, Status: "running"})
	outcome := w.engine.Runner.Run(ctx, inv)
	if outcome.Summary == nil && outcome.Payload == nil && outcome.Result == "" && !outcome.Success {
		// An empty outcome is the Runner's internal-error sentinel (it
		// already logged); the source treats this as "continue" rather
		// than as a failed dispatch.
		return models.RunnerOutcome{}, false
	}
	eventType := progress.EventServiceCompleted
	if !outcome.Success {
		eventType = progress.EventServiceFailed
	}
	w.emit(ctx, progress.Event{Type: eventType, ServiceID: svc.ID, Status: successStatus(outcome.Success)})
	return outcome, true
}

func (w *walk) propagate(ctx context.Context, svc *models.Service, status models.EdgeSubtype, summary *models.Summary) {
	for _, edgeType := range []models.EdgeSubtype{models.EdgeSuccess, models.EdgeFailure} {
		if !w.isBFS && w.device == "" && edgeType != status {
			continue
		}
		var bucket []string
		switch edgeType {
		case models.EdgeSuccess:
			bucket = summary.Success
		case models.EdgeFailure:
			bucket = summary.Failure
		}
		if (w.isBFS || w.device != "") && len(bucket) == 0 {
			continue
		}
		for _, ne := range w.workflow.Neighbors(svc, "destination", edgeType) {
			if w.isBFS || w.device != "" {
				w.targets[ne.Peer.Name] = union(w.targets[ne.Peer.Name], bucket)
				_ = w.engine.Store.WriteState(ctx, w.run.Runtime, "edges/"+ne.Edge.ID, len(bucket), statestore.ModeIncrement)
			} else {
				_ = w.engine.Store.WriteState(ctx, w.run.Runtime, "edges/"+ne.Edge.ID, "DONE", statestore.ModeSet)
			}
			w.push(ne.Peer)
		}
	}
}

func (w *walk) push(svc *models.Service) {
	heap.Push(w.pending, &pendingItem{serviceID: svc.ID, priority: svc.PriorityKey(), seq: w.seq})
	w.seq++
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func difference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}
	var out []string
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	return out
}
