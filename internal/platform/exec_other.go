//go:build !linux && !darwin

package platform

import (
	"fmt"
	"os"
	"runtime"
)

// CheckExecutable returns nil when path is a regular file that can be run.
// Windows has no execute bit, so only existence is checked there; other
// systems fall back to the permission bits.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
