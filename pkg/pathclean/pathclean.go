// Package pathclean empties a replica root before it is re-mirrored.
//
// Every descendant entry is deleted, hidden entries included. Read-only
// flags are cleared before deletion so they cannot block it. A failed
// deletion is retried once after a fixed delay; if the retry fails too the
// entry is skipped with a warning and the run continues.
package pathclean

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mwidmann/replica/pkg/fileattr"
	"github.com/mwidmann/replica/pkg/plog"
	"github.com/mwidmann/replica/pkg/syncmetrics"
	"github.com/mwidmann/replica/pkg/util"
)

// ErrReplicaCreate signals that a missing replica root could not be created.
// This is a fatal setup condition for the run.
var ErrReplicaCreate = errors.New("replica directory could not be created")

// defaultRetryDelay is the pause before the single deletion retry.
const defaultRetryDelay = 2 * time.Second

// Cleaner removes all existing entries under a replica root.
type Cleaner struct {
	retryDelay time.Duration
	metrics    syncmetrics.Metrics
}

// NewCleaner creates a Cleaner reporting into m.
func NewCleaner(m syncmetrics.Metrics) *Cleaner {
	return &Cleaner{
		retryDelay: defaultRetryDelay,
		metrics:    m,
	}
}

// EnsureRoot prepares the replica root for mirroring: an existing root is
// emptied, a missing one is created. Creation failure is fatal.
func (c *Cleaner) EnsureRoot(ctx context.Context, root string) error {
	info, err := os.Stat(root)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s exists but is not a directory", ErrReplicaCreate, root)
		}
		return c.Clean(ctx, root)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: cannot stat %s: %v", ErrReplicaCreate, root, err)
	}

	if err := os.MkdirAll(root, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReplicaCreate, root, err)
	}
	plog.Info("Created replica root", "path", root)
	return nil
}

// Clean recursively deletes everything under root, keeping root itself.
// It only returns an error when the context is cancelled; per-entry
// failures are counted as warnings and skipped.
func (c *Cleaner) Clean(ctx context.Context, root string) error {
	plog.Info("Cleaning replica root", "path", root)

	entries, err := os.ReadDir(root)
	if err != nil {
		plog.Warn("Failed to enumerate replica root", "path", root, "error", err)
		c.metrics.AddWarnings(1)
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.removeTree(ctx, filepath.Join(root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// removeTree deletes one entry. Directories are cleared of their read-only
// flag first so children can be unlinked, then emptied depth-first, then
// removed themselves.
func (c *Cleaner) removeTree(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		plog.Warn("Failed to stat entry during cleanup, skipping", "path", path, "error", err)
		c.metrics.AddWarnings(1)
		return nil
	}

	// Symlinks are unlinked directly; their mode bits belong to the target.
	if info.Mode()&os.ModeSymlink == 0 && fileattr.IsReadOnly(info) {
		if err := fileattr.MakeWritable(path, info); err != nil {
			plog.Warn("Failed to clear read-only flag during cleanup", "path", path, "error", err)
			c.metrics.AddWarnings(1)
		}
	}

	if info.IsDir() {
		children, err := os.ReadDir(path)
		if err != nil {
			plog.Warn("Failed to enumerate directory during cleanup, skipping", "path", path, "error", err)
			c.metrics.AddWarnings(1)
			return nil
		}
		for _, child := range children {
			if err := c.removeTree(ctx, filepath.Join(path, child.Name())); err != nil {
				return err
			}
		}
	}

	c.remove(path)
	return nil
}

// remove deletes a single entry, retrying once after the fixed delay.
// A second failure increments the warning counter and the entry is skipped.
func (c *Cleaner) remove(path string) {
	err := os.Remove(path)
	if err == nil {
		c.metrics.AddEntriesDeleted(1)
		plog.Info("DELETE", "path", path)
		return
	}

	plog.Warn("Failed to delete entry, retrying once", "path", path, "error", err, "after", c.retryDelay)
	time.Sleep(c.retryDelay)

	if err := os.Remove(path); err != nil {
		plog.Warn("Failed to delete entry, skipping", "path", path, "error", err)
		c.metrics.AddWarnings(1)
		return
	}
	c.metrics.AddEntriesDeleted(1)
	plog.Info("DELETE", "path", path)
}
