// Package engine orchestrates one mirroring run: validate the setup, take
// the run lock, prepare the replica root, mirror the tree, report.
package engine

import (
	"context"
	"fmt"

	"github.com/mwidmann/replica/pkg/buildinfo"
	"github.com/mwidmann/replica/pkg/config"
	"github.com/mwidmann/replica/pkg/copyverify"
	"github.com/mwidmann/replica/pkg/lockfile"
	"github.com/mwidmann/replica/pkg/pathclean"
	"github.com/mwidmann/replica/pkg/pathmirror"
	"github.com/mwidmann/replica/pkg/plog"
	"github.com/mwidmann/replica/pkg/preflight"
	"github.com/mwidmann/replica/pkg/syncmetrics"
)

// RootPreparer empties an existing replica root or creates a missing one.
type RootPreparer interface {
	EnsureRoot(ctx context.Context, root string) error
}

// TreeMirrorer rebuilds the source tree under the replica root.
type TreeMirrorer interface {
	Mirror(ctx context.Context, srcRoot, dstRoot string) error
}

// validateFunc runs the setup checks. Swapped out in tests.
type validateFunc func(srcPath, dstPath string) error

// acquireLockFunc takes the run lock. Swapped out in tests.
type acquireLockFunc func(ctx context.Context, replicaRoot, appID string) (*lockfile.Lock, error)

// Runner executes mirroring runs for one configuration.
type Runner struct {
	cfg     config.Config
	metrics syncmetrics.Metrics

	preparer    RootPreparer
	mirrorer    TreeMirrorer
	validate    validateFunc
	acquireLock acquireLockFunc
}

// New wires a Runner from the configuration.
func New(cfg config.Config, m syncmetrics.Metrics) *Runner {
	verifier := copyverify.NewVerifier(cfg.MaxRetries, cfg.BufferSizeKB, cfg.Permissions, m)
	return &Runner{
		cfg:         cfg,
		metrics:     m,
		preparer:    pathclean.NewCleaner(m),
		mirrorer:    pathmirror.NewMirrorer(verifier, cfg.Permissions, m),
		validate:    preflight.Run,
		acquireLock: lockfile.Acquire,
	}
}

// ExecuteSync performs one full mirroring run. The returned error covers
// only fatal setup conditions and cancellation; per-entry failures end up
// in the counters instead.
func (r *Runner) ExecuteSync(ctx context.Context) error {
	plog.Info("Starting mirror run", "source", r.cfg.Source, "replica", r.cfg.Replica)

	if err := r.validate(r.cfg.Source, r.cfg.Replica); err != nil {
		return err
	}

	lock, err := r.acquireLock(ctx, r.cfg.Replica, buildinfo.Name)
	if err != nil {
		return fmt.Errorf("another run may be active: %w", err)
	}
	defer lock.Release()

	if err := r.preparer.EnsureRoot(ctx, r.cfg.Replica); err != nil {
		return err
	}

	if err := r.mirrorer.Mirror(ctx, r.cfg.Source, r.cfg.Replica); err != nil {
		return err
	}

	r.metrics.LogSummary("Mirror run finished")
	return nil
}
