package functional

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/tsukumogami/setup-tool/internal/platform"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

const (
	tool       = "ziglint"
	latestPath = "/repos/AnnikaCodes/ziglint/releases/latest"
	sourcePath = "/source/ziglint.tar.gz"
)

// fakeGitHub serves the latest-release API, release downloads and a
// source archive.
type fakeGitHub struct {
	*httptest.Server
	release     string
	assets      []string
	rateLimited bool
	source      []byte
}

func (f *fakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == latestPath && f.rateLimited:
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded for 203.0.113.7."}`)
	case r.URL.Path == latestPath && f.release == "":
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	case r.URL.Path == latestPath:
		type assetJSON struct {
			Name string `json:"name"`
			URL  string `json:"browser_download_url"`
		}
		body := struct {
			Name    string      `json:"name"`
			TagName string      `json:"tag_name"`
			Assets  []assetJSON `json:"assets"`
		}{Name: f.release, TagName: f.release, Assets: []assetJSON{}}
		for _, name := range f.assets {
			body.Assets = append(body.Assets, assetJSON{Name: name, URL: f.URL + "/download/" + name})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	case strings.HasPrefix(r.URL.Path, "/download/"):
		fmt.Fprintf(w, "#!/bin/sh\necho %s %s\n", tool, f.release)
	case r.URL.Path == sourcePath && f.source != nil:
		w.Write(f.source)
	default:
		http.NotFound(w, r)
	}
}

// github starts the scenario's fake API on first use and trusts its
// certificate for the binary under test.
func (s *testState) github() (*fakeGitHub, error) {
	if s.gh != nil {
		return s.gh, nil
	}
	f := &fakeGitHub{}
	f.Server = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	s.gh = f

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: f.Certificate().Raw})
	if err := os.WriteFile(s.certFile, pemBytes, 0o644); err != nil {
		return nil, err
	}
	return f, nil
}

func gitHubPublishesRelease(ctx context.Context, release string) error {
	gh, err := getState(ctx).github()
	if err != nil {
		return err
	}
	gh.release = release
	gh.assets = []string{
		platform.Current().AssetName(tool),
		tool + "-plan9-mips",
	}
	return nil
}

func gitHubPublishesReleaseWithoutBinaries(ctx context.Context, release string) error {
	gh, err := getState(ctx).github()
	if err != nil {
		return err
	}
	gh.release = release
	gh.assets = []string{tool + "-plan9-mips"}
	return nil
}

func theRepositoryHasNoReleases(ctx context.Context) error {
	gh, err := getState(ctx).github()
	if err != nil {
		return err
	}
	gh.release = ""
	return nil
}

func theGitHubAPIIsRateLimited(ctx context.Context) error {
	gh, err := getState(ctx).github()
	if err != nil {
		return err
	}
	gh.rateLimited = true
	return nil
}

func theToolCacheHoldsVersion(ctx context.Context, version string) error {
	state := getState(ctx)
	src := filepath.Join(state.rootDir, "seed-"+version)
	if err := os.WriteFile(src, []byte("#!/bin/sh\necho "+tool+" "+version+"\n"), 0o755); err != nil {
		return err
	}
	c := toolcache.New(state.cacheDir)
	_, err := c.Store(src, platform.Current().AssetName(tool), tool, version)
	return err
}

func theSourceArchiveBuilds(ctx context.Context, version string) error {
	script := "mkdir -p zig-out/bin\n" +
		"printf '#!/bin/sh\\necho " + tool + " " + version + "\\n' > zig-out/bin/" + tool + "\n"
	return serveSource(ctx, script)
}

func theSourceArchiveFailsToBuild(ctx context.Context) error {
	return serveSource(ctx, "echo 'error: unable to find zig' >&2\nexit 1\n")
}

func serveSource(ctx context.Context, script string) error {
	gh, err := getState(ctx).github()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	hdr := &tar.Header{Name: tool + "-src/build.sh", Mode: 0o644, Size: int64(len(script)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write([]byte(script)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	gh.source = buf.Bytes()
	return nil
}

// jobEnv is the process environment of a runner step, without anything
// inherited from a surrounding CI job.
func (s *testState) jobEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "GITHUB_") || strings.HasPrefix(key, "INPUT_") ||
			strings.HasPrefix(key, "RUNNER_") || strings.HasPrefix(key, "SETUP_TOOL_") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env,
		"GITHUB_ACTIONS=true",
		"GITHUB_PATH="+s.pathFile,
		"GITHUB_OUTPUT="+s.outputFile,
		"SETUP_TOOL_HOME="+s.homeDir,
		"INPUT_CACHE-DIR="+s.cacheDir,
		"INPUT_MAX-ATTEMPTS=1",
	)
	if s.gh != nil {
		env = append(env,
			"SSL_CERT_FILE="+s.certFile,
			"INPUT_API-URL="+s.gh.URL,
			"INPUT_SOURCE-URL="+s.gh.URL+sourcePath,
			"INPUT_BUILD-COMMAND=sh build.sh",
		)
	}
	return env
}

// iRun executes a command string, replacing "setup-tool" with the test binary path.
func iRun(ctx context.Context, command string) (context.Context, error) {
	state := getState(ctx)
	if state == nil {
		return ctx, fmt.Errorf("no test state; is the Before hook running?")
	}

	args := strings.Fields(command)
	if len(args) > 0 && args[0] == "setup-tool" {
		args[0] = state.binPath
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = state.workDir
	cmd.Env = state.jobEnv()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	state.stdout = stdout.String()
	state.stderr = stderr.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.exitCode = exitErr.ExitCode()
		} else {
			return ctx, fmt.Errorf("command execution failed: %w", err)
		}
	} else {
		state.exitCode = 0
	}

	return ctx, nil
}

func theExitCodeIs(ctx context.Context, expected int) error {
	state := getState(ctx)
	if state.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nstdout: %s\nstderr: %s",
			expected, state.exitCode, state.stdout, state.stderr)
	}
	return nil
}

func theOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	if !strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

func theOutputDoesNotContain(ctx context.Context, text string) error {
	state := getState(ctx)
	if strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout not to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

// stepOutputs parses GITHUB_OUTPUT in both the name=value and the
// name<<delimiter forms.
func stepOutputs(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	lines := strings.Split(string(data), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		if name, delim, ok := strings.Cut(line, "<<"); ok {
			var value []string
			for i++; i < len(lines) && strings.TrimRight(lines[i], "\r") != delim; i++ {
				value = append(value, lines[i])
			}
			out[name] = strings.Join(value, "\n")
			continue
		}
		if name, value, ok := strings.Cut(line, "="); ok {
			out[name] = value
		}
	}
	return out, nil
}

func theStepOutputIs(ctx context.Context, name, want string) error {
	state := getState(ctx)
	outputs, err := stepOutputs(state.outputFile)
	if err != nil {
		return err
	}
	if got, ok := outputs[name]; !ok || got != want {
		return fmt.Errorf("expected step output %s=%q, got %q (all: %v)\nstdout: %s", name, want, got, outputs, state.stdout)
	}
	return nil
}

func pathEntries(state *testState) ([]string, error) {
	data, err := os.ReadFile(state.pathFile)
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(data)), nil
}

func theWorkDirectoryIsOnPATH(ctx context.Context) error {
	state := getState(ctx)
	entries, err := pathEntries(state)
	if err != nil {
		return err
	}
	if len(entries) != 1 || entries[0] != state.workDir {
		return fmt.Errorf("expected GITHUB_PATH to hold only %s, got %v", state.workDir, entries)
	}
	return nil
}

func nothingIsAddedToPATH(ctx context.Context) error {
	state := getState(ctx)
	entries, err := pathEntries(state)
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("expected empty GITHUB_PATH, got %v", entries)
	}
	return nil
}

func theBinaryExists(ctx context.Context, name string) error {
	state := getState(ctx)
	path := filepath.Join(state.workDir, name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("expected %s to exist: %w", path, err)
	}
	return nil
}

func theToolCacheHoldsEntries(ctx context.Context, n int) error {
	state := getState(ctx)
	entries, err := toolcache.New(state.cacheDir).List()
	if err != nil {
		return err
	}
	if len(entries) != n {
		return fmt.Errorf("expected %d cache entries, got %d", n, len(entries))
	}
	return nil
}
