package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sameeryadav12/tasksched/pkg/clock"
)

func TestSystemClock(t *testing.T) {
	t.Parallel()

	before := time.Now()
	now := clock.New().Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
}

func TestAdjustable(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	adjustable := clock.NewAdjustable(start)

	assert.Equal(t, start, adjustable.Now())

	adjustable.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), adjustable.Now())

	later := start.Add(24 * time.Hour)
	adjustable.Set(later)
	assert.Equal(t, later, adjustable.Now())
}
