package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sameeryadav12/tasksched/pkg/clock"
	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/sched"
)

const (
	metadataType       = "type"
	metadataMessage    = "message"
	metadataReminderID = "reminder_id"

	typeReminder          = "reminder"
	typeRecurringReminder = "recurring_reminder"
)

var ErrEmptyMessage = errors.New("reminder message must not be empty")

// NotifyFunc delivers a due reminder to the user-facing layer.
type NotifyFunc func(ctx context.Context, r Reminder)

type Reminder struct {
	ID        uuid.UUID      `json:"id"`
	Message   string         `json:"message"`
	At        time.Time      `json:"at"`
	Interval  time.Duration  `json:"interval,omitempty"`
	Recurring bool           `json:"recurring"`
	Priority  sched.Priority `json:"priority"`
}

// Manager keeps user reminders on top of the task scheduler. Each reminder
// is a scheduled task whose action hands the message to the notify callback.
// The reminder id is its own identifier, not a task id: recurring reminders
// respawn as fresh task instances after each firing, and the reminder id in
// the task metadata is what ties the chain together.
type Manager struct {
	scheduler *sched.Scheduler
	clock     clock.Clock
	logger    log.Logger
	notify    NotifyFunc

	mu        sync.RWMutex
	reminders map[uuid.UUID]Reminder
}

type Option func(*Manager)

func WithNotify(notify NotifyFunc) Option {
	return func(m *Manager) {
		m.notify = notify
	}
}

func NewManager(scheduler *sched.Scheduler, c clock.Clock, logger log.Logger, opts ...Option) *Manager {
	m := &Manager{
		scheduler: scheduler,
		clock:     c,
		logger:    logger,
		reminders: make(map[uuid.UUID]Reminder),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notify == nil {
		m.notify = func(ctx context.Context, r Reminder) {
			logger.WithField("message", r.Message).Info(ctx, "reminder due")
		}
	}

	return m
}

// Set schedules a one-shot reminder for the given time.
func (m *Manager) Set(message string, at time.Time, priority sched.Priority) (uuid.UUID, error) {
	if message == "" {
		return uuid.Nil, ErrEmptyMessage
	}

	delay := at.Sub(m.clock.Now())
	if delay < 0 {
		delay = 0
	}

	id := uuid.New()
	_, err := m.scheduler.Schedule(
		m.action(message, false),
		sched.WithDelay(delay),
		sched.WithPriority(priority),
		sched.WithMetadata(map[string]string{
			metadataType:       typeReminder,
			metadataMessage:    message,
			metadataReminderID: id.String(),
		}),
	)
	if err != nil {
		return uuid.Nil, err
	}

	m.remember(Reminder{
		ID:       id,
		Message:  message,
		At:       at,
		Priority: priority,
	})

	return id, nil
}

// SetRecurring schedules a reminder repeating at the given interval.
func (m *Manager) SetRecurring(message string, interval time.Duration, priority sched.Priority) (uuid.UUID, error) {
	if message == "" {
		return uuid.Nil, ErrEmptyMessage
	}

	id := uuid.New()
	_, err := m.scheduler.ScheduleRecurring(
		m.action(message, true),
		interval,
		sched.WithPriority(priority),
		sched.WithMetadata(map[string]string{
			metadataType:       typeRecurringReminder,
			metadataMessage:    message,
			metadataReminderID: id.String(),
		}),
	)
	if err != nil {
		return uuid.Nil, err
	}

	m.remember(Reminder{
		ID:        id,
		Message:   message,
		At:        m.clock.Now(),
		Interval:  interval,
		Recurring: true,
		Priority:  priority,
	})

	return id, nil
}

// Cancel stops a reminder. Recurring occurrences run as fresh task instances,
// so the live instance is located through the reminder id in its metadata;
// cancelling it ends the chain because only a completed occurrence respawns.
func (m *Manager) Cancel(id uuid.UUID) bool {
	m.mu.Lock()
	_, known := m.reminders[id]
	delete(m.reminders, id)
	m.mu.Unlock()

	if m.scheduler.Cancel(id) {
		return true
	}
	if !known {
		return false
	}

	for _, summary := range m.scheduler.PendingSummary(0) {
		if summary.Metadata[metadataReminderID] == id.String() {
			return m.scheduler.Cancel(summary.ID)
		}
	}

	return false
}

// Upcoming lists reminders still queued in the scheduler, soonest first.
func (m *Manager) Upcoming(limit int) []Reminder {
	pending := m.scheduler.PendingSummary(0)

	upcoming := make([]Reminder, 0, len(pending))
	for _, summary := range pending {
		kind := summary.Metadata[metadataType]
		if kind != typeReminder && kind != typeRecurringReminder {
			continue
		}

		id := summary.ID
		if rid, err := uuid.Parse(summary.Metadata[metadataReminderID]); err == nil {
			id = rid
		}
		upcoming = append(upcoming, Reminder{
			ID:        id,
			Message:   summary.Metadata[metadataMessage],
			At:        summary.ScheduledTime,
			Recurring: kind == typeRecurringReminder,
			Priority:  summary.Priority,
		})
	}

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].At.Before(upcoming[j].At)
	})
	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}

	return upcoming
}

func (m *Manager) action(message string, recurring bool) sched.Action {
	return func(ctx context.Context) error {
		m.notify(ctx, Reminder{
			Message:   message,
			Recurring: recurring,
		})
		return nil
	}
}

func (m *Manager) remember(r Reminder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[r.ID] = r
}
