package journal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sameeryadav12/tasksched/pkg/sched"
)

func TestBuildInsert(t *testing.T) {
	t.Parallel()

	entry := Entry{
		TaskID:     uuid.New(),
		Status:     sched.StatusFailed,
		Priority:   sched.PriorityHigh,
		Attempts:   3,
		Error:      "boom",
		Metadata:   map[string]string{"kind": "test"},
		Duration:   1500 * time.Millisecond,
		FinishedAt: time.Now(),
	}

	query, args, err := buildInsert(entry)
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO task_journal (task_id,status,priority,attempts,error,metadata,duration_ms,finished_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8)",
		query,
	)
	require.Len(t, args, 8)
	assert.Equal(t, entry.TaskID, args[0])
	assert.Equal(t, "failed", args[1])
	assert.Equal(t, "high", args[2])
	assert.Equal(t, 3, args[3])
	assert.Equal(t, "boom", args[4])
	assert.JSONEq(t, `{"kind":"test"}`, string(args[5].([]byte)))
	assert.Equal(t, int64(1500), args[6])
}

func TestBuildSelectRecent(t *testing.T) {
	t.Parallel()

	query, args, err := buildSelectRecent(10)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT task_id, status, priority, attempts, error, metadata, duration_ms, finished_at "+
			"FROM task_journal ORDER BY finished_at DESC LIMIT 10",
		query,
	)
	assert.Empty(t, args)

	query, _, err = buildSelectRecent(0)
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
}

func TestEntryRowRoundTrip(t *testing.T) {
	t.Parallel()

	row := entryRow{
		TaskID:     uuid.New(),
		Status:     "completed",
		Priority:   "critical",
		Attempts:   1,
		Metadata:   []byte(`{"source":"reminder"}`),
		DurationMS: 42,
		FinishedAt: time.Now(),
	}

	entry, err := row.toEntry()
	require.NoError(t, err)
	assert.Equal(t, sched.StatusCompleted, entry.Status)
	assert.Equal(t, sched.PriorityCritical, entry.Priority)
	assert.Equal(t, 42*time.Millisecond, entry.Duration)
	assert.Equal(t, "reminder", entry.Metadata["source"])
}
