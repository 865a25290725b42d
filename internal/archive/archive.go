// Package archive extracts source archives for builds.
//
// Supported formats are tar, tar.gz, tar.xz, tar.zst, tar.lz, tar.bz2 and
// zip. Entries that would land outside the destination, absolute or escaping
// symlinks, and hard links are rejected.
package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// Format is an archive format.
type Format string

const (
	Unknown Format = ""
	Tar     Format = "tar"
	TarGz   Format = "tar.gz"
	TarXz   Format = "tar.xz"
	TarZst  Format = "tar.zst"
	TarLz   Format = "tar.lz"
	TarBz2  Format = "tar.bz2"
	Zip     Format = "zip"
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGz}, {".tgz", TarGz},
	{".tar.xz", TarXz}, {".txz", TarXz},
	{".tar.zst", TarZst}, {".tzst", TarZst},
	{".tar.lz", TarLz}, {".tlz", TarLz},
	{".tar.bz2", TarBz2}, {".tbz2", TarBz2}, {".tbz", TarBz2},
	{".tar", Tar},
	{".zip", Zip},
}

// DetectFormat returns the format implied by a file name or URL path, or
// Unknown.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return Unknown
}

// Options controls extraction.
type Options struct {
	// StripComponents drops this many leading path elements from every
	// entry, like tar --strip-components. Entries with no elements left
	// are skipped.
	StripComponents int
}

// ErrUnsupportedFormat is returned for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// Extract unpacks the archive at path into dest, creating dest if needed.
func Extract(path, dest string, format Format, opts Options) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if format == Zip {
		return extractZip(path, dest, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	r, closeFn, err := decompressor(format, f)
	if err != nil {
		return err
	}
	defer closeFn()

	return extractTar(tar.NewReader(r), dest, opts)
}

// decompressor wraps r for the tar stream of the given format.
func decompressor(format Format, r io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch format {
	case Tar:
		return r, noop, nil
	case TarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case TarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xr, noop, nil
	case TarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	case TarLz:
		lr, err := lzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create lzip reader: %w", err)
		}
		return lr, noop, nil
	case TarBz2:
		return bzip2.NewReader(r), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

// target maps an archive entry name to its destination path. ok is false
// when the entry is stripped away entirely.
func target(name, dest string, strip int) (string, bool, error) {
	clean := strings.TrimPrefix(filepath.ToSlash(name), "./")
	clean = strings.Trim(clean, "/")
	if clean == "" || clean == "." {
		return "", false, nil
	}
	parts := strings.Split(clean, "/")
	if len(parts) <= strip {
		return "", false, nil
	}
	rel := filepath.Join(parts[strip:]...)
	path := filepath.Join(dest, rel)
	if !within(path, dest) {
		return "", false, fmt.Errorf("archive entry escapes destination directory: %s", name)
	}
	return path, true, nil
}

// within reports whether path is dest or below it.
func within(path, dest string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return false
	}
	return absPath == absDest || strings.HasPrefix(absPath, absDest+string(os.PathSeparator))
}

func checkSymlink(linkname, location, dest string) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return fmt.Errorf("absolute symlink targets are not allowed: %s -> %s", location, linkname)
	}
	resolved := filepath.Join(filepath.Dir(location), linkname)
	if !within(resolved, dest) {
		return fmt.Errorf("symlink target escapes destination directory: %s -> %s", location, linkname)
	}
	return nil
}

func extractTar(tr *tar.Reader, dest string, opts Options) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		path, ok, err := target(hdr.Name, dest, opts.StripComponents)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkSymlink(hdr.Linkname, path, dest); err != nil {
				return err
			}
			if err := symlink(hdr.Linkname, path); err != nil {
				return err
			}
		case tar.TypeLink:
			return fmt.Errorf("hard links are not supported: %s", hdr.Name)
		}
		// pax headers, character devices and the like are skipped
	}
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// symlink replaces path with a link to linkname via a rename so an
// existing entry is never briefly missing.
func symlink(linkname, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	tmp := path + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(linkname, tmp); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}
