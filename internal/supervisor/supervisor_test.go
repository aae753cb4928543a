package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		QuickRetries:     2,
		QuickRetryDelay:  time.Millisecond,
		PostRestartDelay: time.Millisecond,
	}
}

func TestWithRetry_SucceedsImmediately(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	conn := New("sd", mgr, nil, nil, fastConfig())

	calls := 0
	result, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	}, NewOptions("generate"))

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ApplicationErrorNeverRestarts(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	restarter := &collaborator.MockRestarter{}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	wantErr := errors.New("400 bad request: invalid prompt")
	_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		return nil, wantErr
	}, NewOptions("generate"))

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, restarter.CallCount())
}

func TestWithRetry_QuickRetrySucceedsWhileServiceAlive(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", true)
	restarter := &collaborator.MockRestarter{}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	attempts := 0
	result, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("connection refused")
		}
		return "recovered", nil
	}, NewOptions("generate"))

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 0, restarter.CallCount(), "quick retry should not trigger a restart")
}

func TestWithRetry_ApplicationErrorMidQuickRetryNeverRestarts(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", true)
	restarter := &collaborator.MockRestarter{}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	wantErr := errors.New("400 bad request: invalid prompt")
	attempts := 0
	_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return nil, wantErr
	}, NewOptions("generate"))

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, restarter.CallCount(), "application error surfaced mid quick-retry must not trigger a restart")
}

func TestWithRetry_RestartsWhenServiceDead(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", false)
	restarter := &collaborator.MockRestarter{}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	attempts := 0
	result, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return "alive again", nil
	}, NewOptions("generate"))

	require.NoError(t, err)
	assert.Equal(t, "alive again", result)
	assert.Equal(t, 1, restarter.CallCount())
}

func TestWithRetry_StopLockBlocksRestart(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", false)
	mgr.SetStopLock("sd", true)
	restarter := &collaborator.MockRestarter{}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}, NewOptions("generate"))

	require.Error(t, err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, CodeRestartBlocked, svcErr.Code)
	assert.Equal(t, 0, restarter.CallCount())
}

func TestWithRetry_NoRestarterBlocksRestart(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", false)
	conn := New("sd", mgr, nil, nil, fastConfig())

	_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}, NewOptions("generate"))

	require.Error(t, err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, CodeRestartBlocked, svcErr.Code)
}

func TestWithRetry_AttemptRestartFalseBlocksRestart(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", false)
	restarter := &collaborator.MockRestarter{}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	opts := Options{OperationName: "generate", AttemptRestart: false}
	_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}, opts)

	require.Error(t, err)
	assert.Equal(t, 0, restarter.CallCount())
}

func TestWithRetry_ConcurrentCallersShareOneRestart(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", false)
	restarter := &collaborator.MockRestarter{}
	restarter.OnRestart = func(name string) {
		time.Sleep(20 * time.Millisecond)
	}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	const n = 5
	var arrived sync.WaitGroup
	arrived.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			attempts := 0
			_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
				attempts++
				if attempts == 1 {
					// force every caller onto the restart path together
					arrived.Done()
					arrived.Wait()
					return nil, errors.New("connection refused")
				}
				return "ok", nil
			}, NewOptions("generate"))
			errs <- err
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, 1, restarter.CallCount())
}

func TestWithRetry_URLRefreshedAfterRestart(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", false)
	mgr.URLs["sd"] = "http://localhost:9999"
	restarter := &collaborator.MockRestarter{}
	refresher := &recordingRefresher{}
	conn := New("sd", mgr, restarter, refresher, fastConfig())

	attempts := 0
	_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return "ok", nil
	}, NewOptions("generate"))

	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:9999"}, refresher.urls)
}

func TestWithRetry_RestartFailurePropagatesAsMaxRestartsExceeded(t *testing.T) {
	mgr := collaborator.NewMockServiceManager()
	mgr.SetRunning("sd", false)
	restarter := &collaborator.MockRestarter{Err: errors.New("exec: not found")}
	conn := New("sd", mgr, restarter, nil, fastConfig())

	_, err := conn.WithRetry(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}, NewOptions("generate"))

	require.Error(t, err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, CodeMaxRestartsExceeded, svcErr.Code)
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"no such host", errors.New("lookup sd: no such host"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"application error", errors.New("400 bad request"), false},
		{"typed transport error", newError(CodeTransportUnreachable, "sd", "op", "down", nil), true},
		{"typed application error", newError(CodeServiceApplication, "sd", "op", "bad prompt", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}

type recordingRefresher struct {
	urls []string
}

func (r *recordingRefresher) RefreshURL(ctx context.Context, url string) error {
	r.urls = append(r.urls, url)
	return nil
}
