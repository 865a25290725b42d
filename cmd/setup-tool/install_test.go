package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsukumogami/setup-tool/internal/acquire"
	"github.com/tsukumogami/setup-tool/internal/config"
	"github.com/tsukumogami/setup-tool/internal/host"
	"github.com/tsukumogami/setup-tool/internal/log"
	"github.com/tsukumogami/setup-tool/internal/platform"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

const (
	latestPath = "/repos/AnnikaCodes/ziglint/releases/latest"
	asset      = "ziglint-linux-x86_64"
	binary     = "#!/bin/sh\necho ziglint 0.5.2\n"
)

// fakeGitHub serves the latest-release endpoint and release downloads.
type fakeGitHub struct {
	*httptest.Server
	release     string // release name; "" means no releases
	assets      []string
	rateLimited bool
	downloads   int32
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{release: "v0.5.2", assets: []string{asset}}
	f.Server = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == latestPath && f.rateLimited:
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"API rate limit exceeded for 203.0.113.7."}`))
	case r.URL.Path == latestPath && f.release == "":
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	case r.URL.Path == latestPath:
		type assetJSON struct {
			Name string `json:"name"`
			URL  string `json:"browser_download_url"`
		}
		body := struct {
			Name    string      `json:"name"`
			TagName string      `json:"tag_name"`
			Assets  []assetJSON `json:"assets"`
		}{Name: f.release, TagName: f.release}
		for _, name := range f.assets {
			body.Assets = append(body.Assets, assetJSON{Name: name, URL: f.URL + "/download/" + f.release + "/" + name})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	case filepath.Dir(r.URL.Path) == "/download/"+f.release:
		atomic.AddInt32(&f.downloads, 1)
		w.Header().Set("Content-Length", strconv.Itoa(len(binary)))
		w.Write([]byte(binary))
	default:
		http.NotFound(w, r)
	}
}

// job is one CI job's environment.
type job struct {
	env        map[string]string
	workDir    string
	cacheDir   string
	pathFile   string
	outputFile string
	gh         *fakeGitHub
}

func newJob(t *testing.T, gh *fakeGitHub) *job {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fixtures use sh scripts")
	}
	dir := t.TempDir()
	j := &job{
		workDir:    filepath.Join(dir, "work"),
		cacheDir:   filepath.Join(dir, "cache"),
		pathFile:   filepath.Join(dir, "github_path"),
		outputFile: filepath.Join(dir, "github_output"),
		gh:         gh,
	}
	require.NoError(t, os.MkdirAll(j.workDir, 0755))
	require.NoError(t, os.WriteFile(j.pathFile, nil, 0644))
	require.NoError(t, os.WriteFile(j.outputFile, nil, 0644))
	j.env = map[string]string{
		"GITHUB_ACTIONS":   "true",
		"GITHUB_PATH":      j.pathFile,
		"GITHUB_OUTPUT":    j.outputFile,
		"INPUT_API-URL":    gh.URL,
		"INPUT_CACHE-DIR":  j.cacheDir,
		"INPUT_SOURCE-URL": gh.URL + "/source/ziglint.tar.gz",
	}
	return j
}

func (j *job) run(t *testing.T, flags config.Values) (*acquire.Result, error) {
	t.Helper()
	h := host.New(
		host.WithGetenv(func(k string) string { return j.env[k] }),
		host.WithWriter(io.Discard),
	)
	env := installEnv{
		host:    h,
		key:     platform.Identify("linux", "x64"),
		goos:    "linux",
		workDir: j.workDir,
		home:    t.TempDir(),
		logger:  log.NewNoop(),
		client:  j.gh.Client(),
	}
	return runInstall(context.Background(), env, flags, "")
}

// cache opens the job's tool cache the way an install run does.
func (j *job) cache() *toolcache.Cache {
	return toolcache.New(j.cacheDir)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestInstall_FreshDownloadThenCacheHit(t *testing.T) {
	gh := newFakeGitHub(t)
	j := newJob(t, gh)

	res, err := j.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, acquire.SourceFreshDownload, res.SourceKind)
	assert.Equal(t, filepath.Join(j.workDir, "ziglint"), res.BinaryPath)
	assert.Contains(t, readFile(t, j.pathFile), j.workDir)

	outputs := readFile(t, j.outputFile)
	assert.Contains(t, outputs, "download")
	assert.Contains(t, outputs, "v0.5.2")

	// a later job on the same runner reuses the cached binary
	j2 := newJob(t, gh)
	j2.cacheDir = j.cacheDir
	j2.env["INPUT_CACHE-DIR"] = j.cacheDir
	res, err = j2.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, acquire.SourceCache, res.SourceKind)
	assert.False(t, res.Stale)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gh.downloads))
	assert.NotContains(t, readFile(t, j2.pathFile), j2.workDir, "cache hits register the cache directory")
}

func TestInstall_RateLimitedUsesStaleCache(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.rateLimited = true
	j := newJob(t, gh)

	src := filepath.Join(t.TempDir(), "ziglint")
	require.NoError(t, os.WriteFile(src, []byte(binary), 0755))
	_, err := j.cache().Store(src, asset, "ziglint", "v0.5.1")
	require.NoError(t, err)

	res, err := j.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, acquire.SourceCache, res.SourceKind)
	assert.True(t, res.Stale)
	assert.Equal(t, "v0.5.1", res.Version)
	assert.Contains(t, readFile(t, j.outputFile), "v0.5.1")
}

func TestInstall_RateLimitedNoCache(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.rateLimited = true
	j := newJob(t, gh)

	_, err := j.run(t, config.Values{config.KeyMaxAttempts: "1"})
	require.Error(t, err)
	kind, ok := acquire.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, acquire.KindRateLimited, kind)
	assert.Equal(t, ExitNetwork, exitCodeFor(err))
	assert.Empty(t, readFile(t, j.pathFile))

	var re *runError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "AnnikaCodes/ziglint", re.ctx.Repo)
}

func TestInstall_FlagsOverrideInputs(t *testing.T) {
	gh := newFakeGitHub(t)
	j := newJob(t, gh)
	j.env["INPUT_BINARY-NAME"] = "from-input"

	res, err := j.run(t, config.Values{config.KeyBinaryName: "zl"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(j.workDir, "zl"), res.BinaryPath)
}

func TestInstall_ConfigFile(t *testing.T) {
	gh := newFakeGitHub(t)
	j := newJob(t, gh)
	require.NoError(t, os.WriteFile(filepath.Join(j.workDir, config.DefaultFileName),
		[]byte("binary-name = \"ziglint-file\"\n"), 0644))

	res, err := j.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, "ziglint-file", filepath.Base(res.BinaryPath))
}

func TestInstall_UsageErrors(t *testing.T) {
	gh := newFakeGitHub(t)
	tests := map[string]config.Values{
		"bad repo":        {config.KeyRepo: "ziglint"},
		"path binary":     {config.KeyBinaryName: "bin/ziglint"},
		"bad cache-build": {config.KeyCacheBuild: "sometimes"},
	}
	for name, flags := range tests {
		t.Run(name, func(t *testing.T) {
			j := newJob(t, gh)
			_, err := j.run(t, flags)
			require.Error(t, err)
			assert.Equal(t, ExitUsage, exitCodeFor(err))
		})
	}
}

func TestInstall_MissingConfigFile(t *testing.T) {
	gh := newFakeGitHub(t)
	j := newJob(t, gh)
	env := installEnv{
		host:    host.New(host.WithGetenv(func(k string) string { return j.env[k] }), host.WithWriter(io.Discard)),
		key:     platform.Identify("linux", "x64"),
		goos:    "linux",
		workDir: j.workDir,
		home:    t.TempDir(),
		logger:  log.NewNoop(),
		client:  gh.Client(),
	}
	_, err := runInstall(context.Background(), env, nil, filepath.Join(j.workDir, "nope.toml"))
	assert.Equal(t, ExitUsage, exitCodeFor(err))
}
