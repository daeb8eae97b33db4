// Package logger wires the process-wide structured logger plus the
// error-reporting sink that the security core reports LogicError and
// Overflow kinds to (spec §7).
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// Setup configures the logger based on the environment. It returns the
// logger instance and also sets it as the default global logger so
// packages outside the core (cmd/, chi handlers) can use slog directly.
func Setup(env string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// InitSentry initializes the Sentry client used by ReportFault. A no-op
// if dsn is empty, so local/dev runs never require a Sentry project.
func InitSentry(dsn, env string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
	}); err != nil {
		return nil, err
	}

	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// ReportFault logs err at Error level and, when Sentry is initialized,
// captures it as an exception. Intended for the security core's
// LogicError and Overflow kinds (spec §7) — configuration/wiring bugs and
// clamped arithmetic overflows an operator should be paged on, not just
// a request-scoped failure the caller already sees via its future.
func ReportFault(ctx context.Context, log *slog.Logger, event string, err error, attrs ...any) {
	args := append([]any{"error", err}, attrs...)
	log.ErrorContext(ctx, event, args...)
	sentry.CaptureException(err)
}
