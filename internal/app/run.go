package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownGrace bounds how long Run waits for the runner after a signal.
const ShutdownGrace = 15 * time.Second

type Runner func(ctx context.Context) error

func Run(logger zerolog.Logger, serviceName string, run Runner) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runContext(ctx, logger, serviceName, run, ShutdownGrace)
}

func runContext(ctx context.Context, logger zerolog.Logger, serviceName string, run Runner, grace time.Duration) int {
	logger.Info().Str("service", serviceName).Msg("starting")

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info().Str("service", serviceName).Msg("shutting down")
		select {
		case err := <-errCh:
			if !stoppedCleanly(ctx, err) {
				logger.Error().Err(err).Str("service", serviceName).Msg("failed during shutdown")
				return 1
			}
			logger.Info().Str("service", serviceName).Msg("stopped")
			return 0
		case <-time.After(grace):
			logger.Warn().Str("service", serviceName).Dur("grace", grace).Msg("shutdown grace period exceeded")
			return 1
		}
	case err := <-errCh:
		if !stoppedCleanly(ctx, err) {
			logger.Error().Err(err).Str("service", serviceName).Msg("failed")
			return 1
		}
		logger.Info().Str("service", serviceName).Msg("stopped")
		return 0
	}
}

// stoppedCleanly reports whether err is nil or only the cancellation the
// runner was asked to stop with. Any other error after a signal is a failed
// shutdown.
func stoppedCleanly(ctx context.Context, err error) bool {
	if err == nil {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
