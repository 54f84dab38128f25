//go:build windows

package fileattr

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// IsReadOnly reports whether the entry carries the read-only attribute.
func IsReadOnly(fi os.FileInfo) bool {
	if d, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return d.FileAttributes&windows.FILE_ATTRIBUTE_READONLY != 0
	}
	return false
}

// MakeWritable clears the read-only attribute so the entry can be modified or deleted.
func MakeWritable(path string, fi os.FileInfo) error {
	attrs, err := getAttributes(path)
	if err != nil {
		return err
	}
	return setAttributes(path, attrs&^windows.FILE_ATTRIBUTE_READONLY)
}

// SetReadOnly sets the read-only attribute on the entry.
func SetReadOnly(path string) error {
	attrs, err := getAttributes(path)
	if err != nil {
		return err
	}
	return setAttributes(path, attrs|windows.FILE_ATTRIBUTE_READONLY)
}

// replicateDirAttributes copies the full attribute bit-set of a directory,
// with the read-only bit masked out; Replicate restores it last so that
// intermediate attribute writes are not rejected.
func replicateDirAttributes(srcPath, dstPath string, srcInfo os.FileInfo) error {
	attrs, err := getAttributes(srcPath)
	if err != nil {
		return err
	}
	return setAttributes(dstPath, attrs&^windows.FILE_ATTRIBUTE_READONLY)
}

func getAttributes(path string) (uint32, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, fmt.Errorf("invalid path %s: %w", path, err)
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return 0, fmt.Errorf("failed to read attributes of %s: %w", path, err)
	}
	return attrs, nil
}

func setAttributes(path string, attrs uint32) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", path, err)
	}
	if err := windows.SetFileAttributes(p, attrs); err != nil {
		return fmt.Errorf("failed to set attributes on %s: %w", path, err)
	}
	return nil
}
