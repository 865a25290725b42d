package toolcache

import (
	"fmt"
	"os"
	"path/filepath"
)

func (c *Cache) lockPath(assetName, version string) string {
	return filepath.Join(c.versionDir(assetName, version), c.arch+".lock")
}

// lock takes the exclusive entry lock, waiting for any other holder.
// The lock file stays on disk after unlock: unlinking it would let a
// waiter that already opened the old inode run alongside a newcomer that
// creates a fresh one.
func (c *Cache) lock(assetName, version string) (func(), error) {
	path := c.lockPath(assetName, version)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	ok, err := tryLockFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		c.logger.Info("waiting for another job to finish writing the cache entry", "asset", assetName, "version", version)
		if err := lockFile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
	}

	return func() {
		_ = unlockFile(f)
		f.Close()
	}, nil
}
