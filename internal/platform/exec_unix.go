//go:build linux || darwin

package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CheckExecutable returns nil when path is a regular file the effective
// user may execute.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if err := unix.Faccessat(unix.AT_FDCWD, path, unix.X_OK, unix.AT_EACCESS); err != nil {
		return fmt.Errorf("%s is not executable: %w", path, err)
	}
	return nil
}
