package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/sched"
)

const tableName = "task_journal"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS task_journal (
	task_id     UUID        NOT NULL,
	status      TEXT        NOT NULL,
	priority    TEXT        NOT NULL,
	attempts    INT         NOT NULL,
	error       TEXT        NOT NULL DEFAULT '',
	metadata    JSONB       NOT NULL DEFAULT '{}',
	duration_ms BIGINT      NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (task_id, finished_at)
)`

// Entry is one terminal task result.
type Entry struct {
	TaskID     uuid.UUID
	Status     sched.Status
	Priority   sched.Priority
	Attempts   int
	Error      string
	Metadata   map[string]string
	Duration   time.Duration
	FinishedAt time.Time
}

// Journal persists terminal task results to Postgres so the calling
// application can inspect task history across restarts. The scheduler core
// itself stays persistence-free.
type Journal struct {
	db     *sqlx.DB
	logger log.Logger
}

func Open(ctx context.Context, dsn string, logger log.Logger) (*Journal, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to journal database: %w", err)
	}

	if _, err = db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

func (j *Journal) Record(ctx context.Context, entry Entry) error {
	query, args, err := buildInsert(entry)
	if err != nil {
		return fmt.Errorf("build journal insert: %w", err)
	}

	if _, err = j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	return nil
}

// Recent returns the latest terminal results, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query, args, err := buildSelectRecent(limit)
	if err != nil {
		return nil, fmt.Errorf("build journal select: %w", err)
	}

	var rows []entryRow
	if err = j.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select journal entries: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Hook adapts the journal to the scheduler's task-finished hook. Write
// failures are logged, never propagated: journaling must not affect task
// outcome.
func (j *Journal) Hook() func(context.Context, sched.Result) {
	return func(ctx context.Context, result sched.Result) {
		errMessage := ""
		if result.Err != nil {
			errMessage = result.Err.Error()
		}

		err := j.Record(ctx, Entry{
			TaskID:     result.ID,
			Status:     result.Status,
			Priority:   result.Priority,
			Attempts:   result.Attempts,
			Error:      errMessage,
			Metadata:   result.Metadata,
			Duration:   result.Duration,
			FinishedAt: time.Now(),
		})
		if err != nil {
			j.logger.WithError(err).WithField("taskID", result.ID).Error(ctx, "failed to journal task result")
		}
	}
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func buildInsert(entry Entry) (string, []any, error) {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("marshal journal metadata: %w", err)
	}

	return sq.Insert(tableName).
		Columns("task_id", "status", "priority", "attempts", "error", "metadata", "duration_ms", "finished_at").
		Values(
			entry.TaskID,
			string(entry.Status),
			entry.Priority.String(),
			entry.Attempts,
			entry.Error,
			metadata,
			entry.Duration.Milliseconds(),
			entry.FinishedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func buildSelectRecent(limit int) (string, []any, error) {
	builder := sq.Select("task_id", "status", "priority", "attempts", "error", "metadata", "duration_ms", "finished_at").
		From(tableName).
		OrderBy("finished_at DESC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	return builder.ToSql()
}

type entryRow struct {
	TaskID     uuid.UUID `db:"task_id"`
	Status     string    `db:"status"`
	Priority   string    `db:"priority"`
	Attempts   int       `db:"attempts"`
	Error      string    `db:"error"`
	Metadata   []byte    `db:"metadata"`
	DurationMS int64     `db:"duration_ms"`
	FinishedAt time.Time `db:"finished_at"`
}

func (r entryRow) toEntry() (Entry, error) {
	var metadata map[string]string
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return Entry{}, fmt.Errorf("unmarshal journal metadata: %w", err)
		}
	}

	priority, err := sched.ParsePriority(r.Priority)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		TaskID:     r.TaskID,
		Status:     sched.Status(r.Status),
		Priority:   priority,
		Attempts:   r.Attempts,
		Error:      r.Error,
		Metadata:   metadata,
		Duration:   time.Duration(r.DurationMS) * time.Millisecond,
		FinishedAt: r.FinishedAt,
	}, nil
}
