// Package pathmirror walks a source tree and rebuilds it under a replica
// root. Directories are created first, files are copied through a verifying
// copier, and directory attributes are applied deepest-first at the end so
// copying into a directory can never disturb timestamps already set on it.
package pathmirror

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mwidmann/replica/pkg/fileattr"
	"github.com/mwidmann/replica/pkg/plog"
	"github.com/mwidmann/replica/pkg/syncmetrics"
	"github.com/mwidmann/replica/pkg/util"
)

// FileCopier copies a single file and verifies the result. Attempt-level
// logging and counting happens inside the copier; an error means the file
// was abandoned.
type FileCopier interface {
	CopyFile(ctx context.Context, srcPath, dstPath string, srcInfo os.FileInfo) error
}

// dirPair remembers a created directory so its attributes can be applied
// after all content below it has been written.
type dirPair struct {
	srcPath string
	dstPath string
	info    os.FileInfo
}

// Mirrorer rebuilds a source tree under a replica root.
type Mirrorer struct {
	copier  FileCopier
	copyACL bool
	metrics syncmetrics.Metrics
}

// NewMirrorer creates a Mirrorer that copies files through copier.
func NewMirrorer(copier FileCopier, copyACL bool, m syncmetrics.Metrics) *Mirrorer {
	return &Mirrorer{
		copier:  copier,
		copyACL: copyACL,
		metrics: m,
	}
}

// Mirror walks srcRoot and recreates its structure and regular files under
// dstRoot. Per-entry failures are logged, counted and skipped; the returned
// error only signals a cancelled context or an unreadable source root.
func (m *Mirrorer) Mirror(ctx context.Context, srcRoot, dstRoot string) error {
	plog.Info("Mirroring tree", "source", srcRoot, "replica", dstRoot)

	var dirs []dirPair

	err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(srcRoot, path)
		if relErr != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, relErr)
		}

		if walkErr != nil {
			if relPath == "." {
				return fmt.Errorf("failed to read source root %s: %w", srcRoot, walkErr)
			}
			plog.Error("Failed to read source entry, skipping", "path", path, "error", walkErr)
			m.metrics.AddErrors(1)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		// The root itself already exists on the replica side; its
		// attributes are applied with the rest of the directories.
		if relPath == "." {
			info, err := d.Info()
			if err != nil {
				plog.Error("Failed to stat source root", "path", path, "error", err)
				m.metrics.AddErrors(1)
				return nil
			}
			dirs = append(dirs, dirPair{srcPath: path, dstPath: dstRoot, info: info})
			return nil
		}

		dstPath := filepath.Join(dstRoot, relPath)

		info, err := d.Info()
		if err != nil {
			plog.Error("Failed to stat source entry, skipping", "path", path, "error", err)
			m.metrics.AddErrors(1)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			// Created user-writable so content can be copied in; the
			// real mode lands during the deepest-first attribute pass.
			if err := os.MkdirAll(dstPath, util.WithUserWritePermission(info.Mode().Perm())); err != nil {
				plog.Error("Failed to create directory, skipping subtree", "path", dstPath, "error", err)
				m.metrics.AddErrors(1)
				return fs.SkipDir
			}
			m.metrics.AddDirsCreated(1)
			plog.Done("MKDIR", "path", dstPath)
			dirs = append(dirs, dirPair{srcPath: path, dstPath: dstPath, info: info})

		case info.Mode().IsRegular():
			if err := m.copier.CopyFile(ctx, path, dstPath, info); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				// Already logged and counted by the copier.
				return nil
			}

		default:
			// Symlinks, devices, sockets and the like are not part of
			// a verified mirror.
			plog.Info("SKIP non-regular entry", "path", path, "mode", info.Mode().String())
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.applyDirAttributes(ctx, dirs)
	return nil
}

// applyDirAttributes replays directory attributes deepest-first, so setting
// a parent's timestamps happens after all writes into it are done.
func (m *Mirrorer) applyDirAttributes(ctx context.Context, dirs []dirPair) {
	sort.SliceStable(dirs, func(i, j int) bool {
		return strings.Count(dirs[i].dstPath, string(os.PathSeparator)) >
			strings.Count(dirs[j].dstPath, string(os.PathSeparator))
	})

	for _, d := range dirs {
		if ctx.Err() != nil {
			return
		}
		if err := fileattr.Replicate(d.srcPath, d.dstPath, d.info, m.copyACL, m.metrics); err != nil {
			plog.Warn("Failed to replicate directory attributes", "path", d.dstPath, "error", err)
			m.metrics.AddWarnings(1)
		}
	}
}
