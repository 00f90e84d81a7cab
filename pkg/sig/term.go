package sig

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// TermContext returns a context that is cancelled on SIGTERM or SIGINT.
func TermContext(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}
