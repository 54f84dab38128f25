//go:build windows

package fileattr

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// replicateACL reads the source's discretionary access-control list and
// applies it verbatim to the destination. The DACL is written as protected
// so inherited entries from the replica's parent do not dilute it.
func replicateACL(srcPath, dstPath string) error {
	sd, err := windows.GetNamedSecurityInfo(srcPath, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return fmt.Errorf("failed to read security descriptor of %s: %w", srcPath, err)
	}

	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("failed to extract DACL of %s: %w", srcPath, err)
	}

	err = windows.SetNamedSecurityInfo(
		dstPath,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil,
		nil,
		dacl,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to apply DACL to %s: %w", dstPath, err)
	}
	return nil
}
