//go:build windows

package fileattr

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// replicateTimes applies the source's creation, last-access and last-write
// times through a file handle. FILE_FLAG_BACKUP_SEMANTICS is required to
// obtain handles on directories.
func replicateTimes(srcPath, dstPath string, srcInfo os.FileInfo) error {
	d, ok := srcInfo.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		// No native timestamp data; fall back to the settable pair.
		return os.Chtimes(dstPath, srcInfo.ModTime(), srcInfo.ModTime())
	}

	p, err := windows.UTF16PtrFromString(dstPath)
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", dstPath, err)
	}
	h, err := windows.CreateFile(
		p,
		windows.FILE_WRITE_ATTRIBUTES,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to open %s for attribute writes: %w", dstPath, err)
	}
	defer windows.CloseHandle(h)

	ctime := windows.Filetime{LowDateTime: d.CreationTime.LowDateTime, HighDateTime: d.CreationTime.HighDateTime}
	atime := windows.Filetime{LowDateTime: d.LastAccessTime.LowDateTime, HighDateTime: d.LastAccessTime.HighDateTime}
	wtime := windows.Filetime{LowDateTime: d.LastWriteTime.LowDateTime, HighDateTime: d.LastWriteTime.HighDateTime}

	if err := windows.SetFileTime(h, &ctime, &atime, &wtime); err != nil {
		return fmt.Errorf("failed to set file times on %s: %w", dstPath, err)
	}
	return nil
}
