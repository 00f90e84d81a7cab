package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sameeryadav12/tasksched/pkg/log"
	"github.com/Sameeryadav12/tasksched/pkg/worker"
)

func TestRun_StopsAllJobsWhenOneCompletes(t *testing.T) {
	t.Parallel()

	var otherStopped atomic.Bool
	err := worker.Run(context.Background(), log.NewStub(),
		func(context.Context) error {
			return nil
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			otherStopped.Store(true)
			return ctx.Err()
		},
	)

	require.NoError(t, err)
	assert.True(t, otherStopped.Load())
}

func TestRun_ReturnsFirstError(t *testing.T) {
	t.Parallel()

	expected := errors.New("job broke")
	err := worker.Run(context.Background(), log.NewStub(),
		func(context.Context) error {
			return expected
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)

	assert.ErrorIs(t, err, expected)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := worker.Run(ctx, log.NewStub(),
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)

	assert.NoError(t, err)
}
