package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Sameeryadav12/tasksched/pkg/clock"
	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/metric"
)

var (
	ErrNilAction        = errors.New("action must not be nil")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
	ErrAttemptTimeout   = errors.New("attempt timed out")
	ErrShutdownTimeout  = errors.New("shutdown timed out waiting for workers")
)

const (
	defaultWorkersCount = 4
	defaultPollInterval = 100 * time.Millisecond
)

// Scheduler executes deferred work ordered by priority and scheduled time.
// A fixed pool of worker goroutines polls the shared heap store; construct
// one explicitly with New and pass it to whatever needs to submit tasks.
type Scheduler struct {
	store        *store
	clock        clock.Clock
	logger       log.Logger
	metrics      metric.Metrics
	workersCount int
	pollInterval time.Duration
	newBackoff   func() backoff.BackOff
	onFinished   []func(context.Context, Result)

	baseCtx  context.Context
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Scheduler)

func WithWorkers(count int) Option {
	return func(s *Scheduler) {
		if count > 0 {
			s.workersCount = count
		}
	}
}

// WithPollInterval sets how long an idle worker sleeps before rescanning the
// heap.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithLogger(logger log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(metrics metric.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// WithRetryBackoff replaces the per-task retry delay policy. The factory is
// called once per task so retry state is never shared between tasks.
func WithRetryBackoff(factory func() backoff.BackOff) Option {
	return func(s *Scheduler) {
		s.newBackoff = factory
	}
}

// OnTaskFinished registers a hook invoked after a task reaches COMPLETED or
// FAILED. Hooks run on the worker goroutine that executed the attempt.
func OnTaskFinished(hook func(context.Context, Result)) Option {
	return func(s *Scheduler) {
		s.onFinished = append(s.onFinished, hook)
	}
}

// DefaultRetryBackoff returns the deterministic retry delay policy: the k-th
// retry waits min(2^k, 60) seconds.
func DefaultRetryBackoff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(2*time.Second),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(60*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
}

// New creates a scheduler and starts its worker pool immediately.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        newStore(),
		clock:        clock.New(),
		logger:       log.NewStub(),
		metrics:      metric.NewStub(),
		workersCount: defaultWorkersCount,
		pollInterval: defaultPollInterval,
		newBackoff:   DefaultRetryBackoff,
		baseCtx:      context.Background(),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := 0; i < s.workersCount; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	return s
}

// Schedule submits an action for execution and returns the task id.
func (s *Scheduler) Schedule(action Action, opts ...TaskOption) (uuid.UUID, error) {
	return s.schedule(action, 0, opts)
}

// ScheduleRecurring submits an action executed immediately and then again
// every interval after each successful completion. Each occurrence is an
// independent task instance sharing no mutable state with the previous one.
func (s *Scheduler) ScheduleRecurring(action Action, interval time.Duration, opts ...TaskOption) (uuid.UUID, error) {
	if interval <= 0 {
		return uuid.Nil, fmt.Errorf("recurring interval must be positive, got %s", interval)
	}
	return s.schedule(action, interval, opts)
}

func (s *Scheduler) schedule(action Action, interval time.Duration, opts []TaskOption) (uuid.UUID, error) {
	if action == nil {
		return uuid.Nil, ErrNilAction
	}
	if s.isStopped() {
		return uuid.Nil, ErrSchedulerStopped
	}

	cfg := defaultTaskConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	now := s.clock.Now()
	t := &task{
		id:            uuid.New(),
		action:        action,
		scheduledTime: now.Add(cfg.delay),
		priority:      cfg.priority,
		status:        StatusPending,
		maxRetries:    cfg.maxRetries,
		timeout:       cfg.timeout,
		metadata:      cfg.metadata,
		dependsOn:     cfg.dependsOn,
		retryDelay:    s.newBackoff(),
		interval:      interval,
		createdAt:     now,
	}
	s.store.add(t)

	s.metrics.Increment("schedTasksScheduled", "priority", t.priority.String())
	s.logger.
		WithField("taskID", t.id).
		WithField("priority", t.priority.String()).
		Debug(s.baseCtx, "task scheduled")

	return t.id, nil
}

// Cancel marks a task cancelled. A PENDING task is never executed afterwards;
// a RUNNING task finishes its current attempt but skips completion and retry
// side effects. Reports whether the call changed anything.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	cancelled := s.store.cancel(id)
	if cancelled {
		s.metrics.Increment("schedTasksCancelled")
		s.logger.WithField("taskID", id).Debug(s.baseCtx, "task cancelled")
	}
	return cancelled
}

func (s *Scheduler) Status(id uuid.UUID) (Status, bool) {
	return s.store.status(id)
}

func (s *Scheduler) Inspect(id uuid.UUID) (TaskInfo, bool) {
	return s.store.info(id)
}

func (s *Scheduler) PendingSummary(limit int) []TaskSummary {
	return s.store.snapshotPending(limit)
}

func (s *Scheduler) Statistics() Statistics {
	return s.store.statistics()
}

// PurgeFinished removes terminal tasks from the registry and reports how
// many were dropped.
func (s *Scheduler) PurgeFinished() int {
	return s.store.purgeFinished()
}

// Shutdown stops the worker loops and waits up to timeout for in-flight
// attempts to finish naturally. Pending tasks stay in the heap and registry
// for inspection.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		go func() {
			s.wg.Wait()
			close(s.doneChan)
		}()
	})

	select {
	case <-s.doneChan:
		return nil
	case <-time.After(timeout):
		select {
		case <-s.doneChan:
			return nil
		default:
			return ErrShutdownTimeout
		}
	}
}

func (s *Scheduler) isStopped() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

func (s *Scheduler) workerLoop(workerID int) {
	defer s.wg.Done()

	ctx := s.logger.WithContext(s.baseCtx, log.Fields{"worker": workerID})
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		t := s.store.popReady(s.clock.Now())
		if t == nil {
			select {
			case <-s.stopChan:
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}

		s.execute(ctx, t)
	}
}

func (s *Scheduler) execute(ctx context.Context, t *task) {
	ctx = s.logger.WithContext(ctx, log.Fields{"taskID": t.id})

	started := time.Now()
	attemptErr := s.runAttempt(ctx, t)
	elapsed := time.Since(started)

	result := s.store.finishAttempt(t, attemptErr, s.clock.Now())
	switch result.outcome {
	case outcomeCompleted:
		s.metrics.Increment("schedTasksCompleted", "priority", t.priority.String())
		s.metrics.Duration("schedTaskDuration", elapsed, "priority", t.priority.String(), "status", string(StatusCompleted))
		s.logger.Debug(ctx, "task completed")
		s.notifyFinished(ctx, t, result.attempts, nil, elapsed)
		s.resubmitRecurring(ctx, t)
	case outcomeRetry:
		s.metrics.Increment("schedTaskRetries", "priority", t.priority.String())
		s.logger.
			WithError(attemptErr).
			WithField("retryIn", result.retryDelay.String()).
			WithField("attempt", result.attempts).
			Warn(ctx, "task attempt failed, retry scheduled")
	case outcomeFailed:
		s.metrics.Increment("schedTasksFailed", "priority", t.priority.String())
		s.metrics.Duration("schedTaskDuration", elapsed, "priority", t.priority.String(), "status", string(StatusFailed))
		s.logger.
			WithError(attemptErr).
			WithField("attempts", result.attempts).
			Error(ctx, "task failed, retries exhausted")
		s.notifyFinished(ctx, t, result.attempts, attemptErr, elapsed)
	case outcomeCancelled:
		s.logger.Debug(ctx, "task cancelled while running, result discarded")
	}
}

// runAttempt invokes the action once, converting panics to errors so a
// misbehaving action can never take a worker down.
func (s *Scheduler) runAttempt(ctx context.Context, t *task) (err error) {
	if t.timeout <= 0 {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("action panic: %v", r)
			}
		}()
		return t.action(ctx)
	}

	return s.runAttemptWithTimeout(ctx, t)
}

// runAttemptWithTimeout bounds one attempt by the task's timeout. The action
// runs on its own goroutine and gets a context cancelled at the deadline as a
// cooperative stop signal; a result arriving after the deadline is discarded.
func (s *Scheduler) runAttemptWithTimeout(ctx context.Context, t *task) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("action panic: %v", r)
			}
		}()
		done <- t.action(ctx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrAttemptTimeout, t.timeout)
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrAttemptTimeout, t.timeout)
	}
}

func (s *Scheduler) notifyFinished(ctx context.Context, t *task, attempts int, err error, elapsed time.Duration) {
	if len(s.onFinished) == 0 {
		return
	}

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	result := Result{
		ID:       t.id,
		Status:   status,
		Priority: t.priority,
		Attempts: attempts,
		Err:      err,
		Duration: elapsed,
		Metadata: copyMetadata(t.metadata),
	}
	for _, hook := range s.onFinished {
		hook(ctx, result)
	}
}

// resubmitRecurring schedules the next occurrence of a recurring task as a
// fresh instance with the same policy and a delay of one interval.
func (s *Scheduler) resubmitRecurring(ctx context.Context, t *task) {
	if t.interval <= 0 {
		return
	}

	opts := []TaskOption{
		WithDelay(t.interval),
		WithPriority(t.priority),
		WithMaxRetries(t.maxRetries),
		WithTimeout(t.timeout),
		WithMetadata(t.metadata),
	}
	if _, err := s.ScheduleRecurring(t.action, t.interval, opts...); err != nil {
		// Stopped scheduler, the chain simply ends here.
		s.logger.WithError(err).Debug(ctx, "recurring task not resubmitted")
	}
}
