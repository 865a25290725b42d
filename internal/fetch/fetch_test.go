package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tsukumogami/setup-tool/internal/acquire"
	"github.com/tsukumogami/setup-tool/internal/platform"
	"github.com/tsukumogami/setup-tool/internal/release"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

const binary = "#!/bin/sh\necho ziglint 1.2.0\n"

type recordingRegistrar struct{ dirs []string }

func (r *recordingRegistrar) AddPath(dir string) error {
	r.dirs = append(r.dirs, dir)
	return nil
}

type recordingReporter struct{ infos, warnings []string }

func (r *recordingReporter) Info(msg string)    { r.infos = append(r.infos, msg) }
func (r *recordingReporter) Warning(msg string) { r.warnings = append(r.warnings, msg) }

type failingStore struct{}

func (failingStore) Store(string, string, string, string) (*toolcache.Entry, error) {
	return nil, errors.New("read-only file system")
}

func assetServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func linux() platform.Key {
	return platform.Identify("linux", "x64")
}

func metadataFor(ts *httptest.Server, names ...string) *release.Metadata {
	md := &release.Metadata{Name: "v1.2.0"}
	for _, n := range names {
		md.Assets = append(md.Assets, release.Asset{Name: n, DownloadURL: ts.URL + "/download/" + n})
	}
	return md
}

func TestFetch_DownloadsRegistersAndCaches(t *testing.T) {
	ts, _ := assetServer(t, http.StatusOK, binary)
	cache := toolcache.New(t.TempDir(), toolcache.WithArch("x64"))
	reg := &recordingRegistrar{}
	rep := &recordingReporter{}
	f := New("ziglint", cache, reg,
		WithHTTPClient(ts.Client()),
		WithReporter(rep),
		WithExecutableCheck(func(string) error { return nil }))

	work := t.TempDir()
	dest := filepath.Join(work, "ziglint")
	res, err := f.Fetch(context.Background(), metadataFor(ts, "ziglint-macos-aarch64", "ziglint-linux-x86_64"), linux(), dest)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.BinaryPath != dest || res.SourceKind != acquire.SourceFreshDownload || res.Version != "v1.2.0" {
		t.Errorf("Fetch() = %+v", res)
	}

	got, err := os.ReadFile(dest)
	if err != nil || string(got) != binary {
		t.Fatalf("dest content = %q, %v", got, err)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(dest)
		if info.Mode().Perm() != 0755 {
			t.Errorf("mode = %v, want 0755", info.Mode().Perm())
		}
	}
	if len(reg.dirs) != 1 || reg.dirs[0] != work {
		t.Errorf("registered %v, want [%s]", reg.dirs, work)
	}

	e, ok := cache.FindExact("ziglint-linux-x86_64", "v1.2.0")
	if !ok {
		t.Fatal("no cache entry keyed by asset name and release name")
	}
	if filepath.Base(e.Path) != "ziglint" {
		t.Errorf("cached file = %s", e.Path)
	}
	if len(rep.warnings) != 0 {
		t.Errorf("unexpected warnings %v", rep.warnings)
	}

	// no temporary download files left behind
	entries, _ := os.ReadDir(work)
	if len(entries) != 1 {
		t.Errorf("work dir holds %d entries, want 1", len(entries))
	}
}

func TestFetch_NotAvailable(t *testing.T) {
	ts, hits := assetServer(t, http.StatusOK, binary)
	reg := &recordingRegistrar{}
	f := New("ziglint", nil, reg, WithHTTPClient(ts.Client()))

	md := metadataFor(ts, "ziglint-linux-x86_64.tar.gz", "ziglint-linux-aarch64")
	_, err := f.Fetch(context.Background(), md, linux(), filepath.Join(t.TempDir(), "ziglint"))
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("Fetch() error = %v, want ErrNotAvailable", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("no download may start without a matching asset")
	}
	if len(reg.dirs) != 0 {
		t.Error("nothing may be registered")
	}
}

func TestFetch_WindowsAssetName(t *testing.T) {
	ts, _ := assetServer(t, http.StatusOK, "MZ")
	reg := &recordingRegistrar{}
	f := New("ziglint", nil, reg, WithHTTPClient(ts.Client()), WithExecutableCheck(func(string) error { return nil }))

	dest := filepath.Join(t.TempDir(), "ziglint.exe")
	md := metadataFor(ts, "ziglint-windows-x86_64", "ziglint-windows-x86_64.exe")
	if _, err := f.Fetch(context.Background(), md, platform.Identify("win32", "x64"), dest); err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(dest)
		if info.Mode().Perm()&0111 != 0 {
			t.Errorf("windows assets are not chmodded, got %v", info.Mode().Perm())
		}
	}
}

func TestFetch_BadStatusIsFatal(t *testing.T) {
	ts, _ := assetServer(t, http.StatusNotFound, "Not Found")
	reg := &recordingRegistrar{}
	f := New("ziglint", nil, reg, WithHTTPClient(ts.Client()))

	dest := filepath.Join(t.TempDir(), "ziglint")
	_, err := f.Fetch(context.Background(), metadataFor(ts, "ziglint-linux-x86_64"), linux(), dest)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Fetch() error = %v", err)
	}
	if errors.Is(err, ErrNotAvailable) {
		t.Error("a failed download is not a missing asset")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("dest must not exist after a failed download")
	}
	if len(reg.dirs) != 0 {
		t.Error("nothing may be registered")
	}
}

func TestFetch_TransportFailure(t *testing.T) {
	ts, _ := assetServer(t, http.StatusOK, binary)
	client := ts.Client()
	ts.Close()

	f := New("ziglint", nil, &recordingRegistrar{}, WithHTTPClient(client))
	_, err := f.Fetch(context.Background(), metadataFor(ts, "ziglint-linux-x86_64"), linux(), filepath.Join(t.TempDir(), "ziglint"))
	if err == nil {
		t.Fatal("Fetch() against a closed server should fail")
	}
}

func TestFetch_TruncatedBody(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "ziglint")
	f := New("ziglint", nil, &recordingRegistrar{}, WithHTTPClient(ts.Client()))
	if _, err := f.Fetch(context.Background(), metadataFor(ts, "ziglint-linux-x86_64"), linux(), dest); err == nil {
		t.Fatal("Fetch() of a truncated body should fail")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("a truncated download must not be left at dest")
	}
}

func TestFetch_RequiresHTTPS(t *testing.T) {
	f := New("ziglint", nil, &recordingRegistrar{})
	md := &release.Metadata{Name: "v1", Assets: []release.Asset{
		{Name: "ziglint-linux-x86_64", DownloadURL: "http://example.com/ziglint"},
	}}
	if _, err := f.Fetch(context.Background(), md, linux(), filepath.Join(t.TempDir(), "ziglint")); err == nil {
		t.Error("plain HTTP downloads must be refused")
	}
}

func TestFetch_NotExecutableIsNotRegistered(t *testing.T) {
	ts, _ := assetServer(t, http.StatusOK, binary)
	reg := &recordingRegistrar{}
	f := New("ziglint", nil, reg,
		WithHTTPClient(ts.Client()),
		WithExecutableCheck(func(string) error { return errors.New("noexec mount") }))

	if _, err := f.Fetch(context.Background(), metadataFor(ts, "ziglint-linux-x86_64"), linux(), filepath.Join(t.TempDir(), "ziglint")); err == nil {
		t.Fatal("Fetch() should fail when the binary cannot be executed")
	}
	if len(reg.dirs) != 0 {
		t.Errorf("registered %v for an unexecutable binary", reg.dirs)
	}
}

func TestFetch_CacheFailureIsAWarning(t *testing.T) {
	ts, _ := assetServer(t, http.StatusOK, binary)
	reg := &recordingRegistrar{}
	rep := &recordingReporter{}
	f := New("ziglint", failingStore{}, reg,
		WithHTTPClient(ts.Client()),
		WithReporter(rep),
		WithExecutableCheck(func(string) error { return nil }))

	if _, err := f.Fetch(context.Background(), metadataFor(ts, "ziglint-linux-x86_64"), linux(), filepath.Join(t.TempDir(), "ziglint")); err != nil {
		t.Fatalf("a cache failure must not fail the run: %v", err)
	}
	if len(reg.dirs) != 1 {
		t.Error("binary should still be registered")
	}
	if len(rep.warnings) != 1 || !strings.Contains(rep.warnings[0], "read-only file system") {
		t.Errorf("warnings = %v", rep.warnings)
	}
}

func TestFetch_ProgressOutput(t *testing.T) {
	ts, _ := assetServer(t, http.StatusOK, strings.Repeat("x", 4096))
	var out bytes.Buffer
	f := New("ziglint", nil, &recordingRegistrar{},
		WithHTTPClient(ts.Client()),
		WithProgress(&out),
		WithExecutableCheck(func(string) error { return nil }))

	if _, err := f.Fetch(context.Background(), metadataFor(ts, "ziglint-linux-x86_64"), linux(), filepath.Join(t.TempDir(), "ziglint")); err != nil {
		t.Fatal(err)
	}
	// redraws are throttled, but Finish always clears the line
	if !strings.HasPrefix(out.String(), "\r") {
		t.Errorf("progress output = %q", out.String())
	}
}
