// Package servicemgr implements collaborator.ServiceManager for local
// GPU-backed image-generation and vision-comparison services. Liveness and
// URL lookups read a per-service port-record file on disk (written by
// whatever process launcher starts the service); the stop-lock is stored
// in Redis so that a stop issued from one orchestrator process is honored
// by every other process sharing the same service.
package servicemgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// portRecord is the on-disk shape a service launcher writes after starting
// a process: its PID (for liveness) and its current base URL (for
// refreshing a provider's client after a restart moves it to a new port).
type portRecord struct {
	PID int    `json:"pid"`
	URL string `json:"url"`
}

// Manager implements collaborator.ServiceManager. RecordDir holds one
// <name>.json port record per service; stop-locks live in Redis under
// lockPrefix+name.
type Manager struct {
	client     *redis.Client
	recordDir  string
	lockPrefix string
}

// New builds a Manager. client may be nil, in which case HasStopLock
// always reports false (no distributed coordination, single-process mode).
func New(client *redis.Client, recordDir, lockPrefix string) *Manager {
	if lockPrefix == "" {
		lockPrefix = "imagegen:stoplock:"
	}
	return &Manager{client: client, recordDir: recordDir, lockPrefix: lockPrefix}
}

func (m *Manager) recordPath(name string) string {
	return filepath.Join(m.recordDir, name+".json")
}

func (m *Manager) readRecord(name string) (*portRecord, error) {
	data, err := os.ReadFile(m.recordPath(name))
	if err != nil {
		return nil, err
	}
	var rec portRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse port record for %s: %w", name, err)
	}
	return &rec, nil
}

// WriteRecord persists a service's PID and URL after it starts. Called by
// a Restarter implementation once the new process is confirmed alive.
func (m *Manager) WriteRecord(name string, pid int, url string) error {
	if err := os.MkdirAll(m.recordDir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	data, err := json.Marshal(portRecord{PID: pid, URL: url})
	if err != nil {
		return err
	}
	return os.WriteFile(m.recordPath(name), data, 0o644)
}

// IsServiceRunning checks the recorded PID with signal 0, the standard
// liveness probe that does not actually deliver a signal.
func (m *Manager) IsServiceRunning(ctx context.Context, name string) (bool, error) {
	rec, err := m.readRecord(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	process, err := os.FindProcess(rec.PID)
	if err != nil {
		return false, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}

// GetServiceURL reads the service's current base URL from its port record.
func (m *Manager) GetServiceURL(ctx context.Context, name string) (string, error) {
	rec, err := m.readRecord(name)
	if err != nil {
		return "", fmt.Errorf("get service url for %s: %w", name, err)
	}
	return rec.URL, nil
}

// HasStopLock reports whether an operator stop-lock is set for name, via a
// Redis key shared across every orchestrator process. With no client
// configured, a stop-lock can only ever be local-process state, so this
// always reports false.
func (m *Manager) HasStopLock(ctx context.Context, name string) (bool, error) {
	if m.client == nil {
		return false, nil
	}
	n, err := m.client.Exists(ctx, m.lockPrefix+name).Result()
	if err != nil {
		return false, fmt.Errorf("check stop-lock for %s: %w", name, err)
	}
	return n > 0, nil
}

// SetStopLock sets or clears an operator stop-lock for name. A locked
// service is never automatically restarted by the supervisor until the
// lock is cleared, regardless of which process observes the dead service.
func (m *Manager) SetStopLock(ctx context.Context, name string, locked bool) error {
	if m.client == nil {
		return errors.New("servicemgr: no redis client configured, cannot set a distributed stop-lock")
	}
	key := m.lockPrefix + name
	if !locked {
		return m.client.Del(ctx, key).Err()
	}
	return m.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), 0).Err()
}
