package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
			return
		case <-ch:
			cancel()
		}
	}()

	return ctx, cancel
}

// Component is a long-running part of a binary: an HTTP server, a gRPC server,
// a background worker. Start blocks until the component stops; Stop asks it to
// drain within the given context.
type Component struct {
	Name  string
	Start func() error
	Stop  func(ctx context.Context) error
}

// Run starts every component and blocks until ctx is cancelled or one of them
// fails. Components are then stopped, each bounded by timeout.
func Run(ctx context.Context, log *slog.Logger, timeout time.Duration, components ...Component) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, c := range components {
		c := c
		g.Go(func() error {
			log.Info("component starting", slog.String("component", c.Name))
			if err := c.Start(); err != nil {
				log.Error("component failed", slog.String("component", c.Name), slog.Any("err", err))
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")

		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs error
		for _, c := range components {
			if c.Stop == nil {
				continue
			}
			if err := c.Stop(stopCtx); err != nil {
				log.Warn("component stop error", slog.String("component", c.Name), slog.Any("err", err))
				errs = errors.Join(errs, err)
			}
		}
		return errs
	})

	err := g.Wait()
	log.Info("bye")
	return err
}
