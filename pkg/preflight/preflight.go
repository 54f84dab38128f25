// Package preflight validates a sync setup before any filesystem state is
// touched. The checks are stateless; the typed errors let the CLI map each
// fatal setup condition to its own exit code.
package preflight

import (
	"errors"
	"fmt"
	"os"

	"github.com/mwidmann/replica/pkg/util"
)

// ErrSamePath signals that source and replica resolve to the same location.
var ErrSamePath = errors.New("source and replica are the same path")

// ErrSourceMissing signals that the source directory does not exist.
var ErrSourceMissing = errors.New("source directory does not exist")

// CheckPathsDistinct verifies that source and replica do not address the
// same filesystem location. Paths are compared cleaned, case-folded on
// hosts with case-insensitive filesystems.
func CheckPathsDistinct(srcPath, dstPath string) error {
	if util.SamePath(srcPath, dstPath) {
		return fmt.Errorf("%w: %s", ErrSamePath, srcPath)
	}
	return nil
}

// CheckSourceAccessible validates that the source path exists and is a
// directory.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// Run executes all setup checks in order and returns the first failure.
func Run(srcPath, dstPath string) error {
	if err := CheckPathsDistinct(srcPath, dstPath); err != nil {
		return err
	}
	return CheckSourceAccessible(srcPath)
}
