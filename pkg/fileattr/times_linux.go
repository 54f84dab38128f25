//go:build linux

package fileattr

import (
	"os"
	"syscall"
	"time"
)

// replicateTimes applies the source's last-access and last-write times.
// Linux has no API to set a file's creation (birth) time, so only the two
// settable timestamps are carried over.
func replicateTimes(srcPath, dstPath string, srcInfo os.FileInfo) error {
	atime := srcInfo.ModTime()
	if st, ok := srcInfo.Sys().(*syscall.Stat_t); ok {
		atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	}
	return os.Chtimes(dstPath, atime, srcInfo.ModTime())
}
