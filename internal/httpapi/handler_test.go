package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sameeryadav12/tasksched/internal/httpapi"
	"github.com/Sameeryadav12/tasksched/internal/reminder"
	"github.com/Sameeryadav12/tasksched/pkg/clock"
	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/sched"
)

func newTestHandler(t *testing.T) (*httpapi.Handler, *sched.Scheduler, *reminder.Manager) {
	t.Helper()

	adjustable := clock.NewAdjustable(time.Now())
	scheduler := sched.New(
		sched.WithWorkers(1),
		sched.WithPollInterval(5*time.Millisecond),
		sched.WithClock(adjustable),
	)
	t.Cleanup(func() {
		_ = scheduler.Shutdown(3 * time.Second)
	})

	reminders := reminder.NewManager(scheduler, adjustable, log.NewStub())
	return httpapi.NewHandler(scheduler, reminders, log.NewStub()), scheduler, reminders
}

func doRequest(t *testing.T, handler *httpapi.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}

	recorder := httptest.NewRecorder()
	handler.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestHandler_Statistics(t *testing.T) {
	handler, scheduler, _ := newTestHandler(t)

	_, err := scheduler.Schedule(func(context.Context) error { return nil }, sched.WithDelay(time.Hour))
	require.NoError(t, err)

	resp := doRequest(t, handler, http.MethodGet, "/tasks/stats", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var stats sched.Statistics
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Pending)
}

func TestHandler_PendingTasks(t *testing.T) {
	handler, scheduler, _ := newTestHandler(t)

	id, err := scheduler.Schedule(func(context.Context) error { return nil },
		sched.WithDelay(time.Hour),
		sched.WithPriority(sched.PriorityHigh),
	)
	require.NoError(t, err)

	resp := doRequest(t, handler, http.MethodGet, "/tasks/pending", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var summaries []sched.TaskSummary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)

	resp = doRequest(t, handler, http.MethodGet, "/tasks/pending?limit=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandler_TaskInfoAndCancel(t *testing.T) {
	handler, scheduler, _ := newTestHandler(t)

	id, err := scheduler.Schedule(func(context.Context) error { return nil }, sched.WithDelay(time.Hour))
	require.NoError(t, err)

	resp := doRequest(t, handler, http.MethodGet, "/tasks/"+id.String(), "")
	require.Equal(t, http.StatusOK, resp.Code)

	var info sched.TaskInfo
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &info))
	assert.Equal(t, sched.StatusPending, info.Status)

	resp = doRequest(t, handler, http.MethodDelete, "/tasks/"+id.String(), "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = doRequest(t, handler, http.MethodDelete, "/tasks/"+id.String(), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(t, handler, http.MethodDelete, "/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(t, handler, http.MethodDelete, "/tasks/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandler_CreateAndListReminders(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	resp := doRequest(t, handler, http.MethodPost, "/reminders",
		`{"message":"stand up","in":"1h","priority":"high"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.Nil, created.ID)

	resp = doRequest(t, handler, http.MethodGet, "/reminders", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var reminders []reminder.Reminder
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &reminders))
	require.Len(t, reminders, 1)
	assert.Equal(t, "stand up", reminders[0].Message)

	resp = doRequest(t, handler, http.MethodDelete, "/reminders/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestHandler_CreateReminderValidation(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid_json", body: `{`},
		{name: "missing_schedule", body: `{"message":"hi"}`},
		{name: "empty_message", body: `{"message":"","in":"1h"}`},
		{name: "bad_priority", body: `{"message":"hi","in":"1h","priority":"urgent"}`},
		{name: "bad_duration", body: `{"message":"hi","in":"tomorrow"}`},
		{name: "bad_time", body: `{"message":"hi","at":"tomorrow"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, handler, http.MethodPost, "/reminders", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestHandler_Health(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	resp := doRequest(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}
