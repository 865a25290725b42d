package platform

import (
	"bufio"
	"bytes"
	"context"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// Host describes the machine a run executes on. It is logged when an asset
// is missing so users can tell which build they would need; it never
// influences the platform key.
type Host struct {
	Key     Key
	GOOS    string
	GOARCH  string
	Distro  string // e.g. "ubuntu"; linux only
	Version string // e.g. "22.04"; linux only
	Family  string // e.g. "debian"; linux only
	Libc    string // "glibc" or "musl"; linux only
}

// platformInfo is swapped in tests.
var platformInfo = host.PlatformInformationWithContext

// Detect reports host details. Distribution lookups degrade silently: if
// gopsutil cannot identify the distro, /etc/os-release is consulted, and if
// that fails too only OS and architecture are filled in. Only context
// cancellation is returned as an error.
func Detect(ctx context.Context) (Host, error) {
	h := Host{
		Key:    Current(),
		GOOS:   runtime.GOOS,
		GOARCH: runtime.GOARCH,
	}
	if runtime.GOOS != "linux" {
		return h, nil
	}

	distro, family, version, err := platformInfo(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return h, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		if rel, rerr := ReadOSRelease("/etc/os-release"); rerr == nil {
			distro, version = rel.ID, rel.VersionID
			family = FamilyOf(rel.ID, rel.IDLike)
		}
	}

	h.Distro = strings.ToLower(strings.TrimSpace(distro))
	h.Version = strings.TrimSpace(version)
	h.Family = strings.ToLower(strings.TrimSpace(family))
	h.Libc = DetectLibc("")
	return h, nil
}

// String renders a one-line summary for logs.
func (h Host) String() string {
	s := h.GOOS + "/" + h.GOARCH
	if h.Distro != "" {
		s += " " + h.Distro
		if h.Version != "" {
			s += " " + h.Version
		}
	}
	if h.Libc != "" {
		s += " (" + h.Libc + ")"
	}
	return s
}

// OSRelease holds the /etc/os-release fields used for diagnostics.
type OSRelease struct {
	ID        string
	IDLike    []string
	VersionID string
}

// ReadOSRelease parses an os-release file.
func ReadOSRelease(path string) (*OSRelease, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rel := &OSRelease{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "ID":
			rel.ID = value
		case "ID_LIKE":
			rel.IDLike = strings.Fields(value)
		case "VERSION_ID":
			rel.VersionID = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rel, nil
}

var families = map[string]string{
	"debian":              "debian",
	"ubuntu":              "debian",
	"linuxmint":           "debian",
	"pop":                 "debian",
	"fedora":              "rhel",
	"rhel":                "rhel",
	"centos":              "rhel",
	"rocky":               "rhel",
	"almalinux":           "rhel",
	"arch":                "arch",
	"manjaro":             "arch",
	"alpine":              "alpine",
	"opensuse-leap":       "suse",
	"opensuse-tumbleweed": "suse",
	"sles":                "suse",
}

// FamilyOf maps a distro ID, falling back through ID_LIKE, to its family.
// Unknown distros yield "".
func FamilyOf(id string, idLike []string) string {
	if f, ok := families[id]; ok {
		return f
	}
	for _, like := range idLike {
		if f, ok := families[like]; ok {
			return f
		}
	}
	return ""
}

// DetectLibc reports "musl" or "glibc". It reads the ELF interpreter of
// <root>/bin/sh and falls back to looking for the musl loader under
// <root>/lib. An empty root means the real filesystem.
func DetectLibc(root string) string {
	if root == "" {
		root = "/"
	}
	if libc := libcFromInterp(filepath.Join(root, "bin", "sh")); libc != "" {
		return libc
	}
	if m, _ := filepath.Glob(filepath.Join(root, "lib", "ld-musl-*.so.1")); len(m) > 0 {
		return "musl"
	}
	return "glibc"
}

func libcFromInterp(path string) string {
	f, err := elf.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	for _, p := range f.Progs {
		if p.Type != elf.PT_INTERP {
			continue
		}
		data := make([]byte, p.Filesz)
		if _, err := p.ReadAt(data, 0); err != nil {
			return ""
		}
		if bytes.Contains(data, []byte("musl")) {
			return "musl"
		}
		return "glibc"
	}
	return ""
}
