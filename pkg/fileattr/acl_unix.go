//go:build !windows

package fileattr

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// replicateACL carries the unix access-control information of the source to
// the destination: ownership plus the full mode bits including setuid,
// setgid and sticky.
func replicateACL(srcPath, dstPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", srcPath, err)
	}
	st, ok := srcInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("no unix ownership information available for %s", srcPath)
	}

	if err := unix.Chown(dstPath, int(st.Uid), int(st.Gid)); err != nil {
		return fmt.Errorf("failed to chown %s: %w", dstPath, err)
	}

	mode := srcInfo.Mode().Perm() | srcInfo.Mode()&(os.ModeSetuid|os.ModeSetgid|os.ModeSticky)
	if err := os.Chmod(dstPath, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", dstPath, err)
	}
	return nil
}
