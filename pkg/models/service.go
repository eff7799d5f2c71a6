package models

import (
	"fmt"
)

// Kind distinguishes the single-table-inheritance variants of the original
// source (Service, ConnectionService, Workflow) as a tagged variant instead:
// one Service record, dispatch on Kind.
type Kind string

const (
	KindAtomic     Kind = "atomic"
	KindConnection Kind = "connection"
	KindWorkflow   Kind = "workflow"
)

// RunMethod selects how the Workflow Engine propagates targets through a
// graph walk. See EdgeSubtype and the engine package for the algorithm.
type RunMethod string

const (
	RunMethodPerDevice                      RunMethod = "per_device"
	RunMethodPerServiceWithWorkflowTargets   RunMethod = "per_service_with_workflow_targets"
	RunMethodPerServiceWithServiceTargets    RunMethod = "per_service_with_service_targets"
)

// IsBFS reports whether the run method propagates device sets along edges
// (both edge subtypes can be taken simultaneously), as opposed to per_device
// mode where exactly one edge subtype is taken per device.
func (m RunMethod) IsBFS() bool {
	return m == RunMethodPerServiceWithWorkflowTargets || m == RunMethodPerServiceWithServiceTargets
}

// ValidationCondition controls whether Runner step 6 alters the raw outcome.
type ValidationCondition string

const (
	ValidationConditionNone    ValidationCondition = "none"
	ValidationConditionSuccess ValidationCondition = "success"
	ValidationConditionFailure ValidationCondition = "failure"
)

// ValidationMethod selects how content_match/dict_match are interpreted.
type ValidationMethod string

const (
	ValidationMethodText ValidationMethod = "text"
	ValidationMethodDict ValidationMethod = "dict"
)

// PostprocessingMode selects when postprocessing runs.
type PostprocessingMode string

const (
	PostprocessingAlways  PostprocessingMode = "always"
	PostprocessingSuccess PostprocessingMode = "success"
	PostprocessingFailure PostprocessingMode = "failure"
)

// SkipValue is the outcome synthesized for a skipped service.
type SkipValue string

const (
	SkipValueSuccess SkipValue = "success"
	SkipValueFailure SkipValue = "failure"
)

// Reserved scoped names with fixed meaning inside every workflow graph.
const (
	ScopedNameStart       = "Start"
	ScopedNameEnd         = "End"
	ScopedNamePlaceholder = "Placeholder"
)

// RetryPolicy is the retry shape carried by every Service. It is
// deliberately a value type embedded in Service
// rather than a shared pointer, since each service's retry behavior is
// config, not shared mutable state.
type RetryPolicy struct {
	NumberOfRetries    int `json:"number_of_retries"`
	TimeBetweenRetries int `json:"time_between_retries_seconds"`
	MaxNumberOfRetries int `json:"max_number_of_retries"`
}

// Attempts returns the number of attempts a single device gets: the
// configured retry count, hard-capped by MaxNumberOfRetries, plus the
// initial attempt.
func (r RetryPolicy) Attempts() int {
	n := r.NumberOfRetries
	if n > r.MaxNumberOfRetries {
		n = r.MaxNumberOfRetries
	}
	if n < 0 {
		n = 0
	}
	return n + 1
}

// Validation holds the Runner's step-6 validation configuration.
type Validation struct {
	Condition                 ValidationCondition `json:"validation_condition"`
	Method                    ValidationMethod    `json:"validation_method"`
	Section                   string              `json:"validation_section"`
	ContentMatch              string              `json:"content_match,omitempty"`
	ContentMatchRegex         bool                `json:"content_match_regex"`
	DictMatch                 map[string]any      `json:"dict_match,omitempty"`
	NegativeLogic             bool                `json:"negative_logic"`
	DeleteSpacesBeforeMatching bool               `json:"delete_spaces_before_matching"`
	ConversionMethod          string              `json:"conversion_method,omitempty"`
}

// Iteration holds the Runner's step-2 iteration expansion configuration.
type Iteration struct {
	Values               string `json:"iteration_values,omitempty"`
	VariableName         string `json:"iteration_variable_name,omitempty"`
	Devices              string `json:"iteration_devices,omitempty"`
	DevicesProperty      string `json:"iteration_devices_property,omitempty"`
}

// Skip holds the Runner's step-3 skip rule.
type Skip struct {
	// PerWorkflow maps a workflow name to an unconditional skip flag.
	PerWorkflow map[string]bool `json:"skip,omitempty"`
	Query       string          `json:"skip_query,omitempty"`
	Value       SkipValue       `json:"skip_value"`
}

// Notification holds the Runner's step-9 notification configuration.
type Notification struct {
	Send           bool   `json:"send_notification"`
	Method         string `json:"send_notification_method"`
	Header         string `json:"notification_header,omitempty"`
	IncludeLink    bool   `json:"include_link_in_summary"`
	Recipient      string `json:"mail_recipient,omitempty"`
	ReplyTo        string `json:"reply_to,omitempty"`
}

// Service is a node in the automation graph: either an atomic unit of work,
// a connection-oriented variant of one, or a Workflow (a Service whose body
// is itself a graph of Services). Persistence, RBAC, and UI-facing fields
// from the original single-table model are intentionally not carried over —
// those concerns are out of scope here.
type Service struct {
	ID         string `json:"id"`
	ScopedName string `json:"scoped_name"`
	// Name is the fully-qualified "[<workflow>] <scoped_name>" or
	// "[Shared] <scoped_name>" form; computed by SetName, not hand-set.
	Name   string `json:"name"`
	Shared bool   `json:"shared"`
	Kind   Kind   `json:"kind"`

	Priority      int       `json:"priority"`
	MaximumRuns   int       `json:"maximum_runs"`
	RunMethod     RunMethod `json:"run_method"`
	Multiprocessing bool    `json:"multiprocessing"`
	MaxProcesses  int       `json:"max_processes"`

	Retry      RetryPolicy  `json:"retry"`
	Skip       Skip         `json:"skip_rule"`
	Iteration  Iteration    `json:"iteration"`
	Validation Validation   `json:"validation"`
	Notification Notification `json:"notification"`

	Preprocessing      string             `json:"preprocessing,omitempty"`
	Postprocessing     string             `json:"postprocessing,omitempty"`
	PostprocessingMode PostprocessingMode `json:"postprocessing_mode"`

	DisableResultCreation bool `json:"disable_result_creation"`

	// WaitingTime is a post-completion pause, distinct from TimeBetweenRetries.
	WaitingTime int `json:"waiting_time_seconds"`

	// CredentialType/CloseConnection are opaque hints for Connection-kind
	// services; the engine never interprets them, it just threads them
	// through to the (out-of-scope) leaf implementation.
	CredentialType  string `json:"credential_type,omitempty"`
	CloseConnection bool   `json:"close_connection,omitempty"`

	Config map[string]any `json:"config,omitempty"`
}

// SetName computes the fully-qualified name from the owning workflow's name
// (empty for shared/top-level services), mirroring the source's
// Service.set_name.
func (s *Service) SetName(workflowName string) {
	switch {
	case s.Shared:
		s.Name = fmt.Sprintf("[Shared] %s", s.ScopedName)
	case workflowName == "":
		s.Name = s.ScopedName
	default:
		s.Name = fmt.Sprintf("[%s] %s", workflowName, s.ScopedName)
	}
}

// EffectivePriority coerces a non-positive priority to 1: priority=0 is
// illegal and must be coerced to >= 1 so that 1/priority stays finite.
func (s *Service) EffectivePriority() int {
	if s.Priority < 1 {
		return 1
	}
	return s.Priority
}

// PriorityKey is the min-heap sort key: higher priority services sort
// first because their key is smaller.
func (s *Service) PriorityKey() float64 {
	return 1.0 / float64(s.EffectivePriority())
}

// IsSkipped evaluates the unconditional half of the skip rule; the
// expression half (Query) is evaluated by the caller, which has access
// to the expression environment this package does not.
func (s *Service) IsSkipped(workflowName string) bool {
	return s.Skip.PerWorkflow[workflowName]
}

// Validate checks the structural invariants of a Service in isolation
// (cross-service invariants like unique names live on Workflow).
func (s *Service) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "service ID is required"}
	}
	if s.ScopedName == "" {
		return &ValidationError{Field: "scoped_name", Message: "scoped name is required"}
	}
	switch s.Kind {
	case KindAtomic, KindConnection, KindWorkflow:
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", s.Kind)}
	}
	switch s.RunMethod {
	case RunMethodPerDevice, RunMethodPerServiceWithWorkflowTargets, RunMethodPerServiceWithServiceTargets:
	case "":
		s.RunMethod = RunMethodPerDevice
	default:
		return &ValidationError{Field: "run_method", Message: fmt.Sprintf("unknown run_method %q", s.RunMethod)}
	}
	if s.MaximumRuns <= 0 {
		s.MaximumRuns = 1
	}
	if s.Retry.NumberOfRetries < 0 || s.Retry.TimeBetweenRetries < 0 || s.Retry.MaxNumberOfRetries < 0 {
		return &ValidationError{Field: "retry", Message: "retry fields must be non-negative"}
	}
	if s.Skip.Value == "" {
		s.Skip.Value = SkipValueSuccess
	}
	if s.Validation.Condition == "" {
		s.Validation.Condition = ValidationConditionNone
	}
	if s.Validation.Method == "" {
		s.Validation.Method = ValidationMethodText
	}
	if s.Validation.Section == "" {
		s.Validation.Section = "result"
	}
	if s.PostprocessingMode == "" {
		s.PostprocessingMode = PostprocessingSuccess
	}
	if s.Multiprocessing && s.MaxProcesses <= 0 {
		s.MaxProcesses = 5
	}
	return nil
}
