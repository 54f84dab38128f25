//go:build !linux && !windows

package fileattr

import "os"

// replicateTimes applies the source's last-write time to both settable
// timestamps. The platform-specific access time field is not portable
// across the remaining unix variants, so the modification time stands in.
func replicateTimes(srcPath, dstPath string, srcInfo os.FileInfo) error {
	return os.Chtimes(dstPath, srcInfo.ModTime(), srcInfo.ModTime())
}
