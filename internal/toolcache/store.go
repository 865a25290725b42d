package toolcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Store copies the binary at localPath into the cache as
// <assetName>/<version>/<arch>/<fileName>, replacing any previous entry.
// The copy keeps the source file's permission bits.
func (c *Cache) Store(localPath, assetName, fileName, version string) (*Entry, error) {
	for _, name := range []string{assetName, fileName, version} {
		if err := validName(name); err != nil {
			return nil, err
		}
	}
	if version == AnyVersion {
		return nil, fmt.Errorf("cannot store version %q", version)
	}

	src, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	if !src.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", localPath)
	}

	vdir := c.versionDir(assetName, version)
	if err := os.MkdirAll(vdir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	unlock, err := c.lock(assetName, version)
	if err != nil {
		return nil, err
	}
	defer unlock()

	staging, err := os.MkdirTemp(vdir, ".staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	size, err := copyFile(localPath, filepath.Join(staging, fileName), src.Mode().Perm())
	if err != nil {
		return nil, err
	}

	// Invalidate before replacing so a reader never pairs an old marker
	// with a half-replaced directory.
	if err := os.Remove(c.markerPath(assetName, version)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove old marker: %w", err)
	}
	dir := filepath.Join(vdir, c.arch)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to remove old entry: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return nil, fmt.Errorf("failed to move entry into place: %w", err)
	}

	m := marker{Owner: markerOwner, File: fileName, Size: size, StoredAt: time.Now().UTC()}
	if err := c.writeMarker(assetName, version, m); err != nil {
		return nil, err
	}

	c.logger.Debug("cached binary", "asset", assetName, "version", version, "path", filepath.Join(dir, fileName))
	return &Entry{
		AssetName: assetName,
		Version:   version,
		Arch:      c.arch,
		Dir:       dir,
		Path:      filepath.Join(dir, fileName),
		Size:      size,
		StoredAt:  m.StoredAt,
	}, nil
}

// Remove deletes setup-tool entries for assetName. An empty version or
// AnyVersion removes every version. It returns the number of entries
// removed.
func (c *Cache) Remove(assetName, version string) (int, error) {
	if err := validName(assetName); err != nil {
		return 0, err
	}
	if version != "" && version != AnyVersion {
		if err := validName(version); err != nil {
			return 0, err
		}
		if _, err := c.read(assetName, version); err != nil {
			return 0, nil
		}
		if err := c.remove(assetName, version); err != nil {
			return 0, err
		}
		return 1, nil
	}

	removed := 0
	for _, e := range c.versions(assetName) {
		if err := c.remove(assetName, e.Version); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear removes every setup-tool entry and leaves everything else in the
// root alone.
func (c *Cache) Clear() (int, error) {
	entries, err := c.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if err := c.remove(e.AssetName, e.Version); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (c *Cache) remove(assetName, version string) error {
	unlock, err := c.lock(assetName, version)
	if err != nil {
		return err
	}
	if err := os.Remove(c.markerPath(assetName, version)); err != nil && !errors.Is(err, os.ErrNotExist) {
		unlock()
		return fmt.Errorf("failed to remove marker: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(c.versionDir(assetName, version), c.arch)); err != nil {
		unlock()
		return fmt.Errorf("failed to remove entry: %w", err)
	}
	unlock()

	c.logger.Debug("removed cache entry", "asset", assetName, "version", version)
	return nil
}

func (c *Cache) writeMarker(assetName, version string, m marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	path := c.markerPath(assetName, version)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to copy binary: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to copy binary: %w", err)
	}
	// OpenFile applies the umask; restore the source bits
	if err := os.Chmod(dst, perm); err != nil {
		return 0, err
	}
	return n, nil
}
