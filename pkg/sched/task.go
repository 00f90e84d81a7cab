package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Action is a unit of deferred work. The scheduler invokes it at most once per
// attempt; a non-nil error or a panic counts as a failed attempt and drives
// the retry policy.
type Action func(ctx context.Context) error

type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func ParsePriority(str string) (Priority, error) {
	switch str {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", str)
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// MetadataLastError carries the last attempt error of a FAILED task.
const MetadataLastError = "last_error"

type task struct {
	id            uuid.UUID
	action        Action
	scheduledTime time.Time
	priority      Priority
	status        Status
	retryCount    int
	maxRetries    int
	timeout       time.Duration
	metadata      map[string]string
	dependsOn     []uuid.UUID
	retryDelay    backoff.BackOff
	lastErr       error
	interval      time.Duration // > 0 for recurring tasks
	createdAt     time.Time
}

type taskConfig struct {
	delay      time.Duration
	priority   Priority
	maxRetries int
	timeout    time.Duration
	metadata   map[string]string
	dependsOn  []uuid.UUID
}

func defaultTaskConfig() taskConfig {
	return taskConfig{
		priority:   PriorityNormal,
		maxRetries: 3,
	}
}

type TaskOption func(*taskConfig)

// WithDelay defers the first execution attempt by the given duration.
func WithDelay(delay time.Duration) TaskOption {
	return func(cfg *taskConfig) {
		cfg.delay = delay
	}
}

func WithPriority(priority Priority) TaskOption {
	return func(cfg *taskConfig) {
		cfg.priority = priority
	}
}

func WithMaxRetries(maxRetries int) TaskOption {
	return func(cfg *taskConfig) {
		if maxRetries >= 0 {
			cfg.maxRetries = maxRetries
		}
	}
}

// WithTimeout bounds the wall-clock time of a single execution attempt.
func WithTimeout(timeout time.Duration) TaskOption {
	return func(cfg *taskConfig) {
		cfg.timeout = timeout
	}
}

func WithMetadata(metadata map[string]string) TaskOption {
	return func(cfg *taskConfig) {
		if cfg.metadata == nil {
			cfg.metadata = make(map[string]string, len(metadata))
		}
		for key, value := range metadata {
			cfg.metadata[key] = value
		}
	}
}

// WithDependencies makes the task eligible to run only after every listed
// task has completed.
func WithDependencies(ids ...uuid.UUID) TaskOption {
	return func(cfg *taskConfig) {
		cfg.dependsOn = append(cfg.dependsOn, ids...)
	}
}

// TaskSummary is a read-only view of a queued task.
type TaskSummary struct {
	ID            uuid.UUID         `json:"id"`
	ScheduledTime time.Time         `json:"scheduled_time"`
	Priority      Priority          `json:"priority"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TaskInfo is a read-only view of any registered task, terminal ones included.
type TaskInfo struct {
	ID            uuid.UUID         `json:"id"`
	Status        Status            `json:"status"`
	Priority      Priority          `json:"priority"`
	ScheduledTime time.Time         `json:"scheduled_time"`
	Attempts      int               `json:"attempts"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Statistics struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	HeapSize  int `json:"heap_size"`
}

// Result describes a task that reached a terminal status.
type Result struct {
	ID       uuid.UUID
	Status   Status
	Priority Priority
	Attempts int
	Err      error
	Duration time.Duration
	Metadata map[string]string
}

func (t *task) summary() TaskSummary {
	return TaskSummary{
		ID:            t.id,
		ScheduledTime: t.scheduledTime,
		Priority:      t.priority,
		Metadata:      copyMetadata(t.metadata),
	}
}

func (t *task) info() TaskInfo {
	return TaskInfo{
		ID:            t.id,
		Status:        t.status,
		Priority:      t.priority,
		ScheduledTime: t.scheduledTime,
		Attempts:      t.attempts(),
		Metadata:      copyMetadata(t.metadata),
	}
}

// attempts is the number of executions performed so far, retries included.
// retryCount counts failed attempts, so a running or completed task has one
// attempt on top of it.
func (t *task) attempts() int {
	switch t.status {
	case StatusRunning, StatusCompleted:
		return t.retryCount + 1
	default:
		return t.retryCount
	}
}

func copyMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for key, value := range metadata {
		result[key] = value
	}

	return result
}
