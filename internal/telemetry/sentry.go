package telemetry

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	// DSN is the Sentry Data Source Name (required if Enabled is true)
	DSN string

	// Enabled controls whether Sentry is active
	// Set to false to disable during development or when DSN is not configured
	Enabled bool

	// Environment identifies the deployment environment (dev, staging, prod)
	Environment string

	// Release is the application version/release identifier
	Release string

	// SampleRate controls the percentage of errors to capture (0.0 to 1.0)
	// Default: 1.0 (capture all errors)
	SampleRate float64

	// Debug enables Sentry SDK debug logging
	Debug bool
}

// Hub is the part of *sentry.Hub the reporter uses.
type Hub interface {
	WithScope(f func(scope *sentry.Scope))
	CaptureException(exception error) *sentry.EventID
	Recover(err interface{}) *sentry.EventID
	Flush(timeout time.Duration) bool
}

// SentryReporter sends errors to Sentry with string tags. A reporter with a
// nil hub is a no-op, so callers never check whether Sentry is enabled.
type SentryReporter struct {
	hub Hub
}

// NewSentryReporter wraps hub. Pass nil for a disabled reporter.
func NewSentryReporter(hub Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

// InitSentry builds a hub from cfg and returns a reporter bound to it.
// The cleanup function flushes buffered events and should run on shutdown.
func InitSentry(cfg SentryConfig, logger *slog.Logger) (*SentryReporter, func(), error) {
	if !cfg.Enabled {
		logger.Info("Sentry disabled (SENTRY_ENABLED=false or DSN not configured)")
		return NewSentryReporter(nil), func() {}, nil
	}

	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured, disabling error tracking")
		return NewSentryReporter(nil), func() {}, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  sampleRate,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	hub := sentry.NewHub(client, sentry.NewScope())

	logger.Info("Sentry initialized",
		"environment", cfg.Environment,
		"release", cfg.Release,
		"sample_rate", sampleRate,
	)

	cleanup := func() {
		hub.Flush(2 * time.Second)
	}
	return NewSentryReporter(hub), cleanup, nil
}

// Enabled reports whether errors are actually sent.
func (r *SentryReporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureError captures err tagged with tags.
// Safe to call even when Sentry is disabled
func (r *SentryReporter) CaptureError(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Middleware reports panics from the bridge API and answers 500.
func (r *SentryReporter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Enabled() {
			next.ServeHTTP(w, req)
			return
		}

		defer func() {
			if err := recover(); err != nil {
				r.hub.WithScope(func(scope *sentry.Scope) {
					scope.SetRequest(req)
					r.hub.Recover(err)
				})
				r.hub.Flush(2 * time.Second)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, req)
	})
}
