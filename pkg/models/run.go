package models

import (
	"sync/atomic"
	"time"
)

// Trigger names what originated a Run.
type Trigger string

const (
	TriggerUI        Trigger = "UI"
	TriggerScheduler Trigger = "Scheduler"
	TriggerREST      Trigger = "REST"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "Running"
	RunStatusIdle      RunStatus = "Idle"
	RunStatusAborted   RunStatus = "Aborted"
	RunStatusCompleted RunStatus = "Completed"
)

// Run is one execution of a top-level service. Runtime is its primary key,
// collision-free to the millisecond (see runcontroller.Controller.NewRuntime).
//
// Stop is a flag rather than a channel/context because the cancellation
// contract is "in-flight device attempts complete or time out at their
// own clocks" — there is no forced interruption, only
// a flag later checkpoints observe, so an atomic bool is the right shape;
// wrapping it in a context would imply forced cancellation semantics that
// don't hold here.
type Run struct {
	Runtime       string
	ParentRuntime string
	Creator       string
	Server        string

	ServiceID     string
	PlaceholderID string
	StartServices []string

	Payload      map[string]any
	TargetDevices []string
	TargetPools   []string
	Properties    map[string]any

	ParentID     string
	ParentDevice string
	RestartRunID string

	RunMethod RunMethod
	Trigger   Trigger

	Success bool
	Status  RunStatus

	// Results holds every per-device Result recorded while this run
	// executed, across every service it dispatched.
	Results []*Result
	// State is the live state tree read back at finalization: the
	// progress/edges keys the engine wrote over the run's lifetime,
	// nested by path segment.
	State map[string]any

	stopped atomic.Bool

	CreatedAt time.Time
}

// Stop requests cancellation. Safe for concurrent use.
func (r *Run) Stop() { r.stopped.Store(true) }

// Stopped reports whether Stop has been called.
func (r *Run) Stopped() bool { return r.stopped.Load() }

// Result is the per-(run, service, device) outcome.
type Result struct {
	ID             string         `json:"id"`
	RunRuntime     string         `json:"run_runtime"`
	ParentRuntime  string         `json:"parent_runtime,omitempty"`
	ServiceID      string         `json:"service_id"`
	ServiceName    string         `json:"service_name"`
	WorkflowID     string         `json:"workflow_id,omitempty"`
	DeviceName     string         `json:"device_name,omitempty"`
	Success        bool           `json:"success"`
	Data           map[string]any `json:"result"`
	Runtime        string         `json:"runtime"`
	Duration       time.Duration  `json:"duration"`
}

// RunnerOutcome is what a Runner invocation returns to its caller (the
// Workflow Engine or the Run Controller): the per-invocation aggregate the
// source calls `results`.
type RunnerOutcome struct {
	Payload map[string]any
	Success bool
	Result  string // e.g. "skipped", "Aborted", or a free-form summary label
	// Summary buckets devices by outcome; only populated in BFS/per-device
	// modes.
	Summary *Summary
	// Results carries every per-device Result this invocation recorded
	// (or, for a workflow dispatch, the Results its member services
	// recorded), bubbled up for the Run Controller to attach to the Run.
	Results []*Result
}

// Summary buckets device names by outcome, the unit BFS/per-device target
// propagation moves along an edge.
type Summary struct {
	Success []string
	Failure []string
}
