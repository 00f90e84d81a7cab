package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sameeryadav12/tasksched/internal/reminder"
	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/sched"
)

const defaultListLimit = 50

// Handler exposes the scheduler and reminder manager for monitoring and
// control. It is the surface schedctl talks to.
type Handler struct {
	scheduler *sched.Scheduler
	reminders *reminder.Manager
	logger    log.Logger
}

func NewHandler(scheduler *sched.Scheduler, reminders *reminder.Manager, logger log.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		reminders: reminders,
		logger:    logger,
	}
}

func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/tasks/pending", h.pendingTasks).Methods(http.MethodGet)
	router.HandleFunc("/tasks/stats", h.statistics).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{id}", h.taskInfo).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{id}", h.cancelTask).Methods(http.MethodDelete)
	router.HandleFunc("/reminders", h.createReminder).Methods(http.MethodPost)
	router.HandleFunc("/reminders", h.listReminders).Methods(http.MethodGet)
	router.HandleFunc("/reminders/{id}", h.cancelReminder).Methods(http.MethodDelete)

	return router
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) pendingTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultListLimit)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, h.scheduler.PendingSummary(limit))
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.scheduler.Statistics())
}

func (h *Handler) taskInfo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	info, ok := h.scheduler.Inspect(id)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, errors.New("task not found"))
		return
	}

	h.writeJSON(w, r, http.StatusOK, info)
}

func (h *Handler) cancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if !h.scheduler.Cancel(id) {
		h.writeError(w, r, http.StatusNotFound, errors.New("task not found or already finished"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createReminderRequest struct {
	Message  string `json:"message"`
	At       string `json:"at,omitempty"`       // RFC3339, one-shot
	In       string `json:"in,omitempty"`       // duration from now, one-shot
	Interval string `json:"interval,omitempty"` // duration, recurring
	Priority string `json:"priority,omitempty"`
}

type createReminderResponse struct {
	ID uuid.UUID `json:"id"`
}

func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	priority, err := sched.ParsePriority(req.Priority)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var id uuid.UUID
	switch {
	case req.Interval != "":
		interval, err := time.ParseDuration(req.Interval)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, errors.New("invalid interval"))
			return
		}
		id, err = h.reminders.SetRecurring(req.Message, interval, priority)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	case req.In != "":
		in, err := time.ParseDuration(req.In)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, errors.New("invalid delay"))
			return
		}
		id, err = h.reminders.Set(req.Message, time.Now().Add(in), priority)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	case req.At != "":
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, errors.New("invalid time, RFC3339 expected"))
			return
		}
		id, err = h.reminders.Set(req.Message, at, priority)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	default:
		h.writeError(w, r, http.StatusBadRequest, errors.New("one of at, in or interval is required"))
		return
	}

	h.writeJSON(w, r, http.StatusCreated, createReminderResponse{ID: id})
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultListLimit)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, h.reminders.Upcoming(limit))
}

func (h *Handler) cancelReminder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if !h.reminders.Cancel(id) {
		h.writeError(w, r, http.StatusNotFound, errors.New("reminder not found"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error(r.Context(), "failed to write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, errors.New("invalid task id")
	}
	return id, nil
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}
