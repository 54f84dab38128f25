//go:build !windows

package fileattr

import (
	"os"

	"github.com/mwidmann/replica/pkg/util"
)

// IsReadOnly reports whether the entry carries no write permission at all,
// the closest unix equivalent of the read-only attribute.
func IsReadOnly(fi os.FileInfo) bool {
	return fi.Mode().Perm()&util.PermAnyWrite == 0
}

// MakeWritable restores the owner-write bit so the entry can be modified or deleted.
func MakeWritable(path string, fi os.FileInfo) error {
	return os.Chmod(path, fi.Mode().Perm()|util.PermUserWrite)
}

// SetReadOnly strips all write bits from the entry.
func SetReadOnly(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, fi.Mode().Perm()&^util.PermAnyWrite)
}

// replicateDirAttributes copies the full permission bit-set of a directory.
func replicateDirAttributes(srcPath, dstPath string, srcInfo os.FileInfo) error {
	return os.Chmod(dstPath, srcInfo.Mode().Perm())
}
