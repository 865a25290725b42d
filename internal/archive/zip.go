package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// maxLinkTarget bounds how much of a zip symlink entry is read as its
// target.
const maxLinkTarget = 4096

func extractZip(path, dest string, opts Options) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		out, ok, err := target(f.Name, dest, opts.StripComponents)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(out, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case mode&os.ModeSymlink != 0:
			linkname, err := readZipEntry(f, maxLinkTarget)
			if err != nil {
				return err
			}
			if err := checkSymlink(linkname, out, dest); err != nil {
				return err
			}
			if err := symlink(linkname, out); err != nil {
				return err
			}
		default:
			if err := extractZipFile(f, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in zip: %w", f.Name, err)
	}
	defer rc.Close()
	return writeFile(target, rc, f.Mode().Perm())
}

func readZipEntry(f *zip.File, limit int64) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s in zip: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return "", fmt.Errorf("failed to read %s in zip: %w", f.Name, err)
	}
	return string(data), nil
}
