// Package domain defines the core entities, ports, and sentinel errors
// shared by every other package in the worker.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels). internal/httpenvelope classifies raw
// transport errors into its own RetryableError/FatalError wrappers; of
// these sentinels it returns only ErrCircuitOpen.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrModelUnsupported  = errors.New("model unsupported")
	ErrInternal          = errors.New("internal error")
)

// TaskKind enumerates the five job kinds the worker dispatches.
type TaskKind string

// Task kind values.
const (
	KindTextEmbedding    TaskKind = "text-embedding"
	KindIdentifyingData  TaskKind = "identifying-data"
	KindDefiningTopics   TaskKind = "defining-topics"
	KindDefiningImpact   TaskKind = "defining-impact-area"
	KindDefiningSeverity TaskKind = "defining-severity"
)

// TaskState captures the lifecycle state of a task as observed from the
// control plane. Workers only ever observe Pending; they never write state
// locally, they report outcomes via TaskResult.
type TaskState string

// Task state values.
const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in-progress"
	TaskSucceeded  TaskState = "succeeded"
	TaskFailed     TaskState = "failed"
)

// Task is the unit of work claimed from the control plane.
//
// Invariants: a task in Pending may be claimed by any worker — claim is
// implicit in the status-update PATCH and races are resolved by the
// control plane. A worker never mutates a task locally.
type Task struct {
	ID             string
	Kind           TaskKind
	State          TaskState
	Content        []byte // raw JSON; see content.go for per-kind decoding
	CallbackRoute  string
	CallbackParams map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskResult is reported back to the control plane for a claimed task.
// Invariant: exactly one of Output or Error is populated.
type TaskResult struct {
	TaskID string
	Status TaskState // TaskSucceeded or TaskFailed
	Output any
	Error  string
}

// Succeeded builds a successful TaskResult.
func Succeeded(taskID string, output any) TaskResult {
	return TaskResult{TaskID: taskID, Status: TaskSucceeded, Output: output}
}

// Failed builds a failed TaskResult with the given message.
func Failed(taskID, message string) TaskResult {
	return TaskResult{TaskID: taskID, Status: TaskFailed, Error: message}
}

// RetryableFailed builds a failed TaskResult for an error that exhausted
// its retry budget, prefixed per the error-handling taxonomy (§7).
func RetryableFailed(taskID string, err error) TaskResult {
	return Failed(taskID, "Retryable error: "+err.Error())
}

// RateLimitPeriod names one of the five admission-control tiers.
type RateLimitPeriod string

// Rate limit period values.
const (
	PeriodMinute RateLimitPeriod = "minute"
	PeriodHour   RateLimitPeriod = "hour"
	PeriodDay    RateLimitPeriod = "day"
	PeriodWeek   RateLimitPeriod = "week"
	PeriodMonth  RateLimitPeriod = "month"
)

// AllPeriods lists every tier in a stable, check-order-independent order.
var AllPeriods = []RateLimitPeriod{PeriodMinute, PeriodHour, PeriodDay, PeriodWeek, PeriodMonth}

// RateLimitWindow is the persisted counter state for one tier.
// Invariants: WindowStart < WindowEnd; Count is monotonic within a window.
type RateLimitWindow struct {
	Period      RateLimitPeriod
	Count       int64
	WindowStart time.Time
	WindowEnd   time.Time
	UpdatedAt   time.Time
}

// TaskCompletionRecord backs the rolling-window strategy for day/week/
// month tiers. Retained for 35 days then pruned.
type TaskCompletionRecord struct {
	ID          int64
	CompletedAt time.Time
	Kind        TaskKind
	TaskID      string
}

// CircuitState is one of closed/open/half-open.
type CircuitState int

// Circuit breaker states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String renders the state as a log label ("closed", "open",
// "half-open"); GaugeValue gives the numeric circuit_breaker_state value.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// GaugeValue returns the numeric value published on the
// circuit_breaker_state gauge.
func (s CircuitState) GaugeValue() float64 { return float64(s) }

// KGEntity is a knowledge-graph entity enriched with quantitative and
// qualitative signals. ID is the canonical KG identifier.
type KGEntity struct {
	ID           string
	Label        string
	Description  string
	Aliases      []string
	Sitelinks    map[string]string
	Statements   map[string][]string
	InboundLinks int64
	Pageviews    int64
	Followers    *int64
	Occupations  []string
	Positions    []string
	Awards       []string
	InstanceOf   []string
	Source       string // "" for a resolved KG match, "user_provided" for a fallback
}

// Context aliases context.Context for readability across layers that
// otherwise only talk about domain types.
type Context = context.Context
