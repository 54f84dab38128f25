// Package lockfile guards a replica root against concurrent runs.
//
// The lock file lives beside the replica root, never inside it, since the
// mirror pass deletes everything under the root. The holder refreshes the
// file periodically; a lock whose timestamp stops moving is considered
// abandoned and reclaimed.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mwidmann/replica/pkg/plog"
)

// LockContent is the data written to the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	LastUpdate time.Time `json:"last_update"`
	AppID      string    `json:"app_id"`
}

// ErrLockActive is returned when the lock is held by another live process.
type ErrLockActive struct {
	PID       int64
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("lock is active, held by PID %d (app: %s), last updated %s ago", e.PID, e.AppID, e.TimeSince.Truncate(time.Second))
}

// Lock is an acquired run lock.
type Lock struct {
	path              string
	appID             string
	heartbeatInterval time.Duration
	cancel            context.CancelFunc
	ctx               context.Context
	mu                sync.Mutex
	held              bool
}

const (
	// staleTimeout: a lock not refreshed for 3 minutes belongs to a dead run.
	staleTimeout     = 3 * time.Minute
	lockFileMode     = 0644
	defaultHeartbeat = 30 * time.Second
)

// PathFor returns the lock file path for a replica root: a dot-file in the
// root's parent directory, named after the root.
func PathFor(replicaRoot string) string {
	root := filepath.Clean(replicaRoot)
	return filepath.Join(filepath.Dir(root), "."+filepath.Base(root)+".replica.lock")
}

// Acquire takes the run lock for a replica root, reclaiming stale locks.
func Acquire(ctx context.Context, replicaRoot, appID string) (*Lock, error) {
	lockPath := PathFor(replicaRoot)

	// A few attempts cover the race between stale-lock removal and
	// re-acquisition by another starter.
	const maxAttempts = 3
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := tryAcquire(lockPath, appID)
		if err == nil {
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to access lock file: %w", err)
		}

		content, readErr := readLockContentSafely(lockPath)
		if readErr != nil {
			// Possibly mid-update by the holder; back off briefly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		elapsed := time.Since(content.LastUpdate)
		if elapsed < staleTimeout {
			return nil, &ErrLockActive{PID: content.PID, AppID: content.AppID, TimeSince: elapsed}
		}

		plog.Warn("Found stale lock", "path", lockPath, "pid", content.PID, "age", elapsed)
		if removeErr := os.Remove(lockPath); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", removeErr)
		}
		plog.Info("Stale lock removed, retrying acquisition")
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

// tryAcquire attempts atomic creation using O_EXCL.
func tryAcquire(path, appID string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFileMode)
	if err != nil {
		return nil, err
	}
	f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Lock{
		path:              path,
		appID:             appID,
		heartbeatInterval: defaultHeartbeat,
		ctx:               ctx,
		cancel:            cancel,
		held:              true,
	}

	if err := l.updateContent(); err != nil {
		l.cleanup()
		cancel()
		return nil, err
	}

	go l.heartbeat()
	return l, nil
}

// Release stops the heartbeat and removes the lock file. Safe to call more
// than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.cancel()
	l.cleanup()
	l.held = false
}

func (l *Lock) cleanup() {
	if err := os.Remove(l.path); err != nil {
		if !os.IsNotExist(err) {
			plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		}
		return
	}
	plog.Info("Lock released", "path", l.path)
}

func (l *Lock) heartbeat() {
	ticker := time.NewTicker(l.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.updateContent(); err != nil {
				plog.Warn("Heartbeat failed to update lock file", "path", l.path, "error", err)
			}
		}
	}
}

func (l *Lock) updateContent() error {
	content := LockContent{
		PID:        int64(os.Getpid()),
		LastUpdate: time.Now(),
		AppID:      l.appID,
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, lockFileMode)
}

// readLockContentSafely reads the lock file, tolerating the window where the
// holder is rewriting it (empty or partial JSON).
func readLockContentSafely(path string) (LockContent, error) {
	var lastErr error

	for i := 0; i < 3; i++ {
		f, err := os.Open(path)
		if err != nil {
			return LockContent{}, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}

		var content LockContent
		if err := json.Unmarshal(data, &content); err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return content, nil
	}

	if lastErr == nil {
		lastErr = errors.New("lock file unreadable")
	}
	return LockContent{}, fmt.Errorf("failed to read lock content: %w", lastErr)
}
