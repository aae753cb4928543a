// Package supervisor implements the PID-aware retry/restart coordinator
// (spec §4.1) shared by every local GPU-backed service. One
// ServiceConnection wraps one logical service; it is process-wide state,
// shared by all providers that call that service.
package supervisor

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
)

// Config holds the supervisor's timing knobs, overridable via environment
// variables per spec §6.
type Config struct {
	QuickRetries     int
	QuickRetryDelay  time.Duration
	PostRestartDelay time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		QuickRetries:     2,
		QuickRetryDelay:  500 * time.Millisecond,
		PostRestartDelay: 2 * time.Second,
	}
}

// ConfigFromEnv reads QUICK_RETRIES, QUICK_RETRY_DELAY_MS and
// POST_RESTART_DELAY_MS, falling back to DefaultConfig for anything unset
// or unparsable.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := envInt("QUICK_RETRIES", -1); v >= 0 {
		cfg.QuickRetries = v
	}
	if v := envInt("QUICK_RETRY_DELAY_MS", -1); v >= 0 {
		cfg.QuickRetryDelay = time.Duration(v) * time.Millisecond
	}
	if v := envInt("POST_RESTART_DELAY_MS", -1); v >= 0 {
		cfg.PostRestartDelay = time.Duration(v) * time.Millisecond
	}
	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// restartFuture is the single in-flight restart shared by all concurrent
// callers for one service.
type restartFuture struct {
	done chan struct{}
	err  error
}

// ServiceConnection wraps one logical remote service, identified by
// serviceName, with PID-aware retry, restart, and URL-refresh.
type ServiceConnection struct {
	serviceName string
	manager     collaborator.ServiceManager
	restarter   collaborator.Restarter    // optional; nil means "cannot restart"
	refresher   collaborator.URLRefresher // optional
	cfg         Config

	mu              sync.Mutex
	inFlightRestart *restartFuture
}

// New creates a ServiceConnection for serviceName. restarter and refresher
// may be nil; a nil restarter makes every restart path terminal.
func New(serviceName string, manager collaborator.ServiceManager, restarter collaborator.Restarter, refresher collaborator.URLRefresher, cfg Config) *ServiceConnection {
	return &ServiceConnection{
		serviceName: serviceName,
		manager:     manager,
		restarter:   restarter,
		refresher:   refresher,
		cfg:         cfg,
	}
}

// Options configures a single WithRetry call.
type Options struct {
	OperationName  string
	AttemptRestart bool
}

// NewOptions builds Options with AttemptRestart defaulted to true.
func NewOptions(operationName string) Options {
	return Options{OperationName: operationName, AttemptRestart: true}
}

// ServiceName returns the service this connection supervises.
func (s *ServiceConnection) ServiceName() string {
	return s.serviceName
}

// WithRetry executes operation under the supervisor's retry/restart state
// machine (spec §4.1):
//  1. run operation once.
//  2. on a non-connection error, return it unchanged (application errors
//     never trigger restart).
//  3. on a connection error, check whether the process is still alive; if
//     so, quick-retry a few times before giving up on that path.
//  4. otherwise fall through to the restart path.
func (s *ServiceConnection) WithRetry(ctx context.Context, operation func(ctx context.Context) (any, error), opts Options) (any, error) {
	if opts.OperationName == "" {
		opts.OperationName = "call"
	}

	result, err := operation(ctx)
	if err == nil {
		return result, nil
	}
	if !IsConnectionError(err) {
		return nil, err
	}

	alive, liveErr := s.manager.IsServiceRunning(ctx, s.serviceName)
	if liveErr != nil {
		alive = false
	}

	if alive {
		result, err := s.quickRetry(ctx, operation)
		if err == nil {
			return result, nil
		}
		if !IsConnectionError(err) {
			return nil, err
		}
	}

	return s.restartPath(ctx, operation, opts)
}

// quickRetry performs up to cfg.QuickRetries retries, each after
// cfg.QuickRetryDelay, returning on the first success.
func (s *ServiceConnection) quickRetry(ctx context.Context, operation func(ctx context.Context) (any, error)) (any, error) {
	var lastErr error
	for i := 0; i < s.cfg.QuickRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.QuickRetryDelay):
		}

		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsConnectionError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// restartPath implements spec §4.1's restart branch: stop-lock check,
// in-flight restart dedup, URL refresh, exactly one post-restart retry.
func (s *ServiceConnection) restartPath(ctx context.Context, operation func(ctx context.Context) (any, error), opts Options) (any, error) {
	if !opts.AttemptRestart || s.restarter == nil {
		return nil, newError(CodeRestartBlocked, s.serviceName, opts.OperationName,
			"service not running and cannot be restarted", nil)
	}

	locked, lockErr := s.manager.HasStopLock(ctx, s.serviceName)
	if lockErr == nil && locked {
		return nil, newError(CodeRestartBlocked, s.serviceName, opts.OperationName,
			"user-stopped: restart suppressed by stop-lock", nil)
	}

	if err := s.joinOrStartRestart(ctx); err != nil {
		return nil, newError(CodeMaxRestartsExceeded, s.serviceName, opts.OperationName,
			"restart failed: "+err.Error(), err)
	}

	if url, err := s.manager.GetServiceURL(ctx, s.serviceName); err == nil && s.refresher != nil {
		if refreshErr := s.refresher.RefreshURL(ctx, url); refreshErr != nil {
			log.Printf("[supervisor] %s: URL refresh after restart failed: %v", s.serviceName, refreshErr)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.cfg.PostRestartDelay):
	}

	return operation(ctx)
}

// joinOrStartRestart starts a restart for s.serviceName, or joins one
// already in flight. Exactly one Restart call is ever outstanding per
// service at a time (spec §5 shared-resource policy).
func (s *ServiceConnection) joinOrStartRestart(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlightRestart != nil {
		future := s.inFlightRestart
		s.mu.Unlock()
		select {
		case <-future.done:
			return future.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	future := &restartFuture{done: make(chan struct{})}
	s.inFlightRestart = future
	s.mu.Unlock()

	log.Printf("[supervisor] %s: restarting", s.serviceName)
	err := s.restarter.Restart(ctx, s.serviceName)

	s.mu.Lock()
	s.inFlightRestart = nil
	s.mu.Unlock()

	future.err = err
	close(future.done)
	return err
}
