package reminder_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sameeryadav12/tasksched/internal/reminder"
	"github.com/Sameeryadav12/tasksched/pkg/clock"
	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/sched"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 5 * time.Millisecond
)

type notifyRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *notifyRecorder) notify(_ context.Context, rem reminder.Reminder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, rem.Message)
}

func (r *notifyRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func newTestManager(t *testing.T, c clock.Clock) (*reminder.Manager, *notifyRecorder) {
	t.Helper()

	scheduler := sched.New(
		sched.WithWorkers(1),
		sched.WithPollInterval(5*time.Millisecond),
		sched.WithClock(c),
	)
	t.Cleanup(func() {
		_ = scheduler.Shutdown(waitTimeout)
	})

	recorder := &notifyRecorder{}
	manager := reminder.NewManager(scheduler, c, log.NewStub(), reminder.WithNotify(recorder.notify))

	return manager, recorder
}

func TestManager_SetFiresAtTime(t *testing.T) {
	adjustable := clock.NewAdjustable(time.Now())
	manager, recorder := newTestManager(t, adjustable)

	_, err := manager.Set("call mom", adjustable.Now().Add(time.Minute), sched.PriorityNormal)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, recorder.count(), "reminder fired before its time")

	adjustable.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return recorder.count() == 1 }, waitTimeout, waitTick)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, []string{"call mom"}, recorder.messages)
}

func TestManager_SetRejectsEmptyMessage(t *testing.T) {
	manager, _ := newTestManager(t, clock.New())

	_, err := manager.Set("", time.Now().Add(time.Minute), sched.PriorityNormal)
	assert.ErrorIs(t, err, reminder.ErrEmptyMessage)
}

func TestManager_Upcoming(t *testing.T) {
	adjustable := clock.NewAdjustable(time.Now())
	manager, _ := newTestManager(t, adjustable)

	laterID, err := manager.Set("later", adjustable.Now().Add(2*time.Hour), sched.PriorityHigh)
	require.NoError(t, err)
	soonID, err := manager.Set("soon", adjustable.Now().Add(time.Hour), sched.PriorityLow)
	require.NoError(t, err)

	upcoming := manager.Upcoming(0)
	require.Len(t, upcoming, 2)
	assert.Equal(t, soonID, upcoming[0].ID)
	assert.Equal(t, "soon", upcoming[0].Message)
	assert.Equal(t, laterID, upcoming[1].ID)

	limited := manager.Upcoming(1)
	require.Len(t, limited, 1)
	assert.Equal(t, soonID, limited[0].ID)
}

func TestManager_Cancel(t *testing.T) {
	adjustable := clock.NewAdjustable(time.Now())
	manager, recorder := newTestManager(t, adjustable)

	id, err := manager.Set("cancel me", adjustable.Now().Add(time.Hour), sched.PriorityNormal)
	require.NoError(t, err)

	assert.True(t, manager.Cancel(id))
	assert.False(t, manager.Cancel(id))
	assert.False(t, manager.Cancel(uuid.New()))

	adjustable.Advance(2 * time.Hour)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, recorder.count(), "cancelled reminder must not fire")
}

func TestManager_CancelRecurringAfterFirstFire(t *testing.T) {
	adjustable := clock.NewAdjustable(time.Now())
	manager, recorder := newTestManager(t, adjustable)

	id, err := manager.SetRecurring("hydrate", time.Minute, sched.PriorityNormal)
	require.NoError(t, err)

	// First occurrence fires immediately; its successor runs as a fresh task
	// instance that must still be reachable through the reminder id.
	require.Eventually(t, func() bool { return recorder.count() == 1 }, waitTimeout, waitTick)
	require.Eventually(t, func() bool {
		upcoming := manager.Upcoming(0)
		return len(upcoming) == 1 && upcoming[0].ID == id
	}, waitTimeout, waitTick)

	assert.True(t, manager.Cancel(id), "recurring reminder must stay cancellable after firing")

	adjustable.Advance(10 * time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, recorder.count(), "cancelled recurring reminder must not fire again")
}

func TestManager_Recurring(t *testing.T) {
	manager, recorder := newTestManager(t, clock.New())

	_, err := manager.SetRecurring("drink water", 50*time.Millisecond, sched.PriorityNormal)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return recorder.count() >= 3 }, waitTimeout, waitTick)
}
