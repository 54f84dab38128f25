// Package fileattr propagates filesystem entry attributes from a source
// entry to its replicated counterpart: timestamps, the read-only flag and,
// optionally, access-control information.
//
// The read-only flag needs careful sequencing: a read-only destination
// rejects attribute writes on some platforms, so the flag is lifted before
// timestamps are applied and restored afterwards when the source carries it.
package fileattr

import (
	"fmt"
	"os"

	"github.com/mwidmann/replica/pkg/plog"
	"github.com/mwidmann/replica/pkg/syncmetrics"
)

// Replicate copies timestamps and the read-only flag from the source entry
// to dstPath. For directories the full platform attribute set is copied;
// for files only the read-only flag and timestamps apply. When copyACL is
// true the source's access-control information is applied as well; a
// failure in that sub-step is logged as a warning and counted, but does not
// fail the call.
func Replicate(srcPath, dstPath string, srcInfo os.FileInfo, copyACL bool, m syncmetrics.Metrics) error {
	dstInfo, err := os.Stat(dstPath)
	if err != nil {
		return fmt.Errorf("failed to stat destination %s: %w", dstPath, err)
	}

	// A read-only destination rejects attribute writes; lift the flag first.
	if IsReadOnly(dstInfo) {
		if err := MakeWritable(dstPath, dstInfo); err != nil {
			return fmt.Errorf("failed to make destination %s writable: %w", dstPath, err)
		}
	}

	if srcInfo.IsDir() {
		if err := replicateDirAttributes(srcPath, dstPath, srcInfo); err != nil {
			return fmt.Errorf("failed to replicate directory attributes on %s: %w", dstPath, err)
		}
	}

	if err := replicateTimes(srcPath, dstPath, srcInfo); err != nil {
		return fmt.Errorf("failed to replicate timestamps on %s: %w", dstPath, err)
	}

	if copyACL {
		if err := replicateACL(srcPath, dstPath); err != nil {
			plog.Warn("Failed to replicate access control entries", "path", dstPath, "error", err)
			m.AddWarnings(1)
		}
	}

	if IsReadOnly(srcInfo) {
		if err := SetReadOnly(dstPath); err != nil {
			return fmt.Errorf("failed to restore read-only flag on %s: %w", dstPath, err)
		}
	}
	return nil
}
