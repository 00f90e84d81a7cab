package sched

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// taskHeap orders tasks by priority descending, then scheduled time ascending.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].scheduledTime.Before(h[j].scheduledTime)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// store is the shared mutable state of a scheduler: the task heap, the
// registry for lookups by id and the dependency graph. One mutex guards all
// of it; task run-state is only mutated while the mutex is held.
type store struct {
	mu         sync.Mutex
	heap       taskHeap
	registry   map[uuid.UUID]*task
	dependents map[uuid.UUID][]uuid.UUID
	completed  map[uuid.UUID]struct{}
	failed     map[uuid.UUID]struct{}
}

func newStore() *store {
	return &store{
		registry:   make(map[uuid.UUID]*task),
		dependents: make(map[uuid.UUID][]uuid.UUID),
		completed:  make(map[uuid.UUID]struct{}),
		failed:     make(map[uuid.UUID]struct{}),
	}
}

// add registers a task and queues it, unless one of its dependencies has
// already failed: then the task is failed right away, the same propagation a
// live dependency failure would trigger. Failure marks outlive purging, so
// this holds for purged dependencies too.
func (s *store) add(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry[t.id] = t
	for _, depID := range t.dependsOn {
		s.dependents[depID] = append(s.dependents[depID], t.id)
	}

	for _, depID := range t.dependsOn {
		if _, ok := s.failed[depID]; ok {
			s.failLocked(t, fmt.Errorf("dependency %s failed", depID))
			return
		}
	}

	heap.Push(&s.heap, t)
}

// popReady returns the highest-ranked task that is time-ready and
// dependency-ready, marking it RUNNING, or nil if none is ready.
//
// Cancelled (and dependency-failed) entries are discarded lazily here.
// Dependency-blocked tasks are set aside and re-pushed at the end of the
// scan, so a single call never revisits a task. The scan stops at the first
// task whose scheduled time has not arrived: priority outranks readiness, so
// a not-yet-due high-priority task is never overtaken by lower-ranked work.
func (s *store) popReady(now time.Time) *task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ready    *task
		deferred []*task
	)
	for len(s.heap) > 0 {
		t := heap.Pop(&s.heap).(*task)

		if t.status != StatusPending {
			continue
		}
		if t.scheduledTime.After(now) {
			deferred = append(deferred, t)
			break
		}
		if !s.dependenciesMetLocked(t) {
			deferred = append(deferred, t)
			continue
		}

		t.status = StatusRunning
		ready = t
		break
	}

	for _, t := range deferred {
		heap.Push(&s.heap, t)
	}

	return ready
}

func (s *store) dependenciesMetLocked(t *task) bool {
	for _, depID := range t.dependsOn {
		if _, ok := s.completed[depID]; !ok {
			return false
		}
	}
	return true
}

// cancel marks a task CANCELLED and reports whether the call had effect.
// A PENDING entry is removed from the heap lazily by popReady; a RUNNING task
// only gets a best-effort flag, the in-flight attempt is not preempted.
func (s *store) cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.registry[id]
	if !ok {
		return false
	}

	switch t.status {
	case StatusPending, StatusRunning:
		t.status = StatusCancelled
		return true
	default:
		return false
	}
}

type attemptOutcome int

const (
	outcomeCompleted attemptOutcome = iota
	outcomeRetry
	outcomeFailed
	outcomeCancelled
)

type attemptResult struct {
	outcome    attemptOutcome
	retryDelay time.Duration
	attempts   int
}

// finishAttempt applies the result of one execution attempt and decides what
// happens next. A task cancelled while running keeps its CANCELLED status and
// triggers no retry or completion side effects. The attempt count is
// snapshotted under the lock: a retried task is back in the heap and may be
// picked up by another worker right away.
func (s *store) finishAttempt(t *task, attemptErr error, now time.Time) attemptResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.status == StatusCancelled {
		return attemptResult{outcome: outcomeCancelled}
	}

	if attemptErr == nil {
		t.status = StatusCompleted
		s.completed[t.id] = struct{}{}
		return attemptResult{outcome: outcomeCompleted, attempts: t.attempts()}
	}

	t.lastErr = attemptErr
	t.retryCount++
	if t.retryCount <= t.maxRetries {
		delay := t.retryDelay.NextBackOff()
		if delay >= 0 {
			t.scheduledTime = now.Add(delay)
			t.status = StatusPending
			heap.Push(&s.heap, t)
			return attemptResult{outcome: outcomeRetry, retryDelay: delay, attempts: t.retryCount}
		}
	}

	s.failLocked(t, attemptErr)
	return attemptResult{outcome: outcomeFailed, attempts: t.attempts()}
}

// failLocked marks a task FAILED and propagates the failure to every
// transitive dependent still waiting on it, so they do not stay queued
// forever behind a dependency that can never complete.
func (s *store) failLocked(t *task, cause error) {
	t.status = StatusFailed
	t.lastErr = cause
	if t.metadata == nil {
		t.metadata = make(map[string]string, 1)
	}
	t.metadata[MetadataLastError] = cause.Error()
	s.failed[t.id] = struct{}{}

	for _, depID := range s.dependents[t.id] {
		dependent, ok := s.registry[depID]
		if !ok || dependent.status != StatusPending {
			continue
		}
		s.failLocked(dependent, fmt.Errorf("dependency %s failed: %w", t.id, cause))
	}
}

func (s *store) status(id uuid.UUID) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.registry[id]
	if !ok {
		return "", false
	}
	return t.status, true
}

func (s *store) info(id uuid.UUID) (TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.registry[id]
	if !ok {
		return TaskInfo{}, false
	}
	return t.info(), true
}

// snapshotPending lists queued tasks in heap rank order without disturbing
// the heap itself.
func (s *store) snapshotPending(limit int) []TaskSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]TaskSummary, 0, len(s.heap))
	for _, t := range s.heap {
		if t.status != StatusPending {
			continue
		}
		summaries = append(summaries, t.summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Priority != summaries[j].Priority {
			return summaries[i].Priority > summaries[j].Priority
		}
		return summaries[i].ScheduledTime.Before(summaries[j].ScheduledTime)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}

	return summaries
}

func (s *store) statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, t := range s.heap {
		if t.status == StatusPending {
			pending++
		}
	}

	return Statistics{
		Total:     len(s.registry),
		Pending:   pending,
		Completed: len(s.completed),
		Failed:    len(s.failed),
		HeapSize:  len(s.heap),
	}
}

// purgeFinished drops terminal tasks from the registry and returns how many
// were removed. Completion marks are kept so dependency gating of tasks
// scheduled later still sees purged dependencies as satisfied.
func (s *store) purgeFinished() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, t := range s.registry {
		switch t.status {
		case StatusCompleted, StatusFailed, StatusCancelled:
			delete(s.registry, id)
			delete(s.dependents, id)
			purged++
		}
	}

	return purged
}
