package observability

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FlushTelemetry releases telemetry and backend resources before process exit.
// Closers (remote cache clients) are closed first so their shutdown errors still reach the log,
// then the logger is synced. Prometheus is pull-based, nothing to push.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			if logger != nil {
				logger.Warn("close on shutdown", zap.Error(err))
			}
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
