package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/Sameeryadav12/tasksched/pkg/log"
)

type ErrorJob func(context.Context) error

// Run executes the given jobs concurrently and blocks until the context is
// cancelled or any job returns. The first failure cancels the shared context
// so the remaining jobs can stop gracefully.
func Run(ctx context.Context, logger log.Logger, jobs ...ErrorJob) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	wg := &sync.WaitGroup{}
	for _, job := range jobs {
		wg.Add(1)
		go func(job ErrorJob) {
			defer wg.Done()

			err := job(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error(ctx, "job completed with error")
			}

			select {
			case errChan <- err:
			default:
			}
			cancel()
		}(job)
	}

	wg.Wait()

	var err error
	select {
	case err = <-errChan:
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
