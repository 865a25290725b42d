// Package toolcache stores downloaded and built binaries between jobs.
//
// The layout matches the Actions runner tool cache so entries can live in
// $RUNNER_TOOL_CACHE next to the runner's own:
//
//	<root>/<assetName>/<version>/<arch>/<file>
//	<root>/<assetName>/<version>/<arch>.complete
//	<root>/<assetName>/<version>/<arch>.lock
//
// Writers hold an exclusive lock on the .lock file, stage the binary in a
// temporary directory beside the entry, rename it into place and write the
// .complete marker last. Readers only trust entries whose marker exists and
// describes a file that is still present with the recorded size. A second
// writer of the same entry waits for the first and then replaces it.
package toolcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/tsukumogami/setup-tool/internal/log"
)

// markerOwner tags markers written by setup-tool so entries created by
// other tools in a shared cache are never listed or removed.
const markerOwner = "setup-tool"

// AnyVersion asks FindExact for the newest cached version.
const AnyVersion = "*"

// Entry is a complete cache entry.
type Entry struct {
	AssetName string
	Version   string
	Arch      string
	Dir       string // directory holding the binary
	Path      string // the binary itself
	Size      int64
	StoredAt  time.Time
}

type marker struct {
	Owner    string    `json:"owner"`
	File     string    `json:"file"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// Cache is a tool cache rooted at a directory.
type Cache struct {
	root   string
	arch   string
	logger log.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithArch overrides the architecture directory name (default: the
// runner's naming for the host, e.g. x64 or arm64).
func WithArch(arch string) Option {
	return func(c *Cache) {
		c.arch = arch
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New returns a cache rooted at root. The directory is created lazily on
// the first Store.
func New(root string, opts ...Option) *Cache {
	c := &Cache{root: root, arch: hostArch()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.Component(c.logger, "toolcache")
	return c
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// hostArch names the architecture the way the runner's tool cache does.
func hostArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return runtime.GOARCH
	}
}

// FindExact returns the entry for (assetName, version). An empty version or
// AnyVersion delegates to FindAny.
func (c *Cache) FindExact(assetName, version string) (*Entry, bool) {
	if version == "" || version == AnyVersion {
		return c.FindAny(assetName)
	}
	if validName(assetName) != nil || validName(version) != nil {
		return nil, false
	}
	e, err := c.read(assetName, version)
	if err != nil {
		c.logger.Debug("cache miss", "asset", assetName, "version", version, "reason", err)
		return nil, false
	}
	return e, true
}

// FindAny returns the newest complete entry for assetName by semantic
// version order. Versions that are not semver sort below all that are.
func (c *Cache) FindAny(assetName string) (*Entry, bool) {
	if validName(assetName) != nil {
		return nil, false
	}
	entries := c.versions(assetName)
	if len(entries) == 0 {
		return nil, false
	}
	return entries[0], true
}

// List returns every setup-tool entry in the cache, ordered by asset name
// and then newest version first.
func (c *Cache) List() ([]*Entry, error) {
	assets, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var all []*Entry
	for _, a := range assets {
		if a.IsDir() && validName(a.Name()) == nil {
			all = append(all, c.versions(a.Name())...)
		}
	}
	return all, nil
}

// versions returns the complete entries for assetName, newest first.
func (c *Cache) versions(assetName string) []*Entry {
	dirs, err := os.ReadDir(filepath.Join(c.root, assetName))
	if err != nil {
		return nil
	}

	var entries []*Entry
	for _, d := range dirs {
		if !d.IsDir() || validName(d.Name()) != nil {
			continue
		}
		if e, err := c.read(assetName, d.Name()); err == nil {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return compareVersions(entries[i].Version, entries[j].Version) > 0
	})
	return entries
}

func (c *Cache) versionDir(assetName, version string) string {
	return filepath.Join(c.root, assetName, version)
}

func (c *Cache) markerPath(assetName, version string) string {
	return filepath.Join(c.versionDir(assetName, version), c.arch+".complete")
}

// read loads and validates one entry.
func (c *Cache) read(assetName, version string) (*Entry, error) {
	data, err := os.ReadFile(c.markerPath(assetName, version))
	if err != nil {
		return nil, err
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unreadable marker: %w", err)
	}
	if m.Owner != markerOwner || validName(m.File) != nil {
		return nil, errors.New("marker not written by setup-tool")
	}

	dir := filepath.Join(c.versionDir(assetName, version), c.arch)
	path := filepath.Join(dir, m.File)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() != m.Size {
		return nil, fmt.Errorf("size mismatch: have %d, marker says %d", info.Size(), m.Size)
	}

	return &Entry{
		AssetName: assetName,
		Version:   version,
		Arch:      c.arch,
		Dir:       dir,
		Path:      path,
		Size:      m.Size,
		StoredAt:  m.StoredAt,
	}, nil
}

// validName rejects cache path components that could escape their parent.
func validName(s string) error {
	switch {
	case s == "", s == ".", s == "..":
		return fmt.Errorf("invalid name %q", s)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("invalid name %q: contains a path separator", s)
	case strings.HasPrefix(s, "."):
		return fmt.Errorf("invalid name %q: must not start with a dot", s)
	}
	return nil
}
