// Package build compiles the tool from source when no prebuilt binary can
// be used.
//
// A build is a fixed sequence of blocking steps: obtain the source (git
// clone or source archive), run the build command in the source tree,
// locate the produced binary, copy it into place, run it with the version
// argument and register its directory. Any failing step ends the build
// with a *StepError naming it.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tsukumogami/setup-tool/internal/acquire"
	"github.com/tsukumogami/setup-tool/internal/config"
	"github.com/tsukumogami/setup-tool/internal/httputil"
	"github.com/tsukumogami/setup-tool/internal/log"
	"github.com/tsukumogami/setup-tool/internal/progress"
	"github.com/tsukumogami/setup-tool/internal/release"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

// tailSize bounds how much process output a StepError carries.
const tailSize = 4096

// Config describes what to build and where the result lands.
type Config struct {
	AssetName  string   // cache key for cache-build
	SourceURL  string   // git URL or source archive URL
	Command    []string // build command, run in the source root
	Output     string   // binary path relative to the source root, slash separated
	VersionArg string   // argument the built binary answers with its version
	CacheBuild bool     // store the built binary under the release name
	Windows    bool     // target platform is windows; skip chmod
}

// Store writes a binary into the tool cache.
type Store interface {
	Store(localPath, assetName, fileName, version string) (*toolcache.Entry, error)
}

// Builder runs source builds.
type Builder struct {
	cfg       Config
	registrar acquire.Registrar
	cache     Store
	reporter  acquire.Reporter
	client    *http.Client
	logger    log.Logger
	output    io.Writer
	spinner   *progress.Spinner
	scratch   string
}

// Option configures a Builder.
type Option func(*Builder)

// WithCache enables cache-build storage.
func WithCache(s Store) Option {
	return func(b *Builder) {
		b.cache = s
	}
}

// WithReporter sends progress and warnings to r.
func WithReporter(r acquire.Reporter) Option {
	return func(b *Builder) {
		b.reporter = r
	}
}

// WithHTTPClient replaces the source archive download client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Builder) {
		b.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithOutput streams build command output to w (default os.Stderr). On a
// terminal a spinner is shown instead and output is only reported on
// failure.
func WithOutput(w io.Writer) Option {
	return func(b *Builder) {
		b.output = w
	}
}

// WithScratchDir sets where source trees are unpacked (default: the
// system temp directory).
func WithScratchDir(dir string) Option {
	return func(b *Builder) {
		b.scratch = dir
	}
}

// New validates cfg and returns a builder.
func New(cfg Config, registrar acquire.Registrar, opts ...Option) (*Builder, error) {
	switch {
	case cfg.SourceURL == "":
		return nil, errors.New("build: source URL is required")
	case len(cfg.Command) == 0 || cfg.Command[0] == "":
		return nil, errors.New("build: build command is required")
	case cfg.Output == "":
		return nil, errors.New("build: build output path is required")
	case filepath.IsAbs(cfg.Output) || escapes(cfg.Output):
		return nil, fmt.Errorf("build: output path %q must stay inside the source tree", cfg.Output)
	case registrar == nil:
		return nil, errors.New("build: registrar is required")
	}

	b := &Builder{cfg: cfg, registrar: registrar}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = log.Component(b.logger, "build")
	if b.client == nil {
		b.client = httputil.NewSecureClient(httputil.ClientOptions{
			Timeout: config.GetDownloadTimeout(),
		})
	}
	if b.output == nil {
		b.output = os.Stderr
	}
	if progress.Enabled() {
		b.spinner = progress.NewSpinner(os.Stderr)
	}
	return b, nil
}

// Build compiles the tool into destName and registers its directory. md
// may be nil or nameless; with cache-build enabled a named release gets
// the build stored under its name.
func (b *Builder) Build(ctx context.Context, md *release.Metadata, destName string) (*acquire.Result, error) {
	defer b.stopSpinner()

	scratch, err := os.MkdirTemp(b.scratch, "setup-tool-build-")
	if err != nil {
		return nil, &StepError{Step: StepPrepare, Err: err}
	}
	defer os.RemoveAll(scratch)
	src := filepath.Join(scratch, "src")

	if err := b.obtainSource(ctx, src, scratch); err != nil {
		return nil, err
	}
	if err := b.compile(ctx, src); err != nil {
		return nil, err
	}

	built := filepath.Join(src, filepath.FromSlash(b.cfg.Output))
	info, err := os.Stat(built)
	if err != nil || !info.Mode().IsRegular() {
		if err == nil {
			err = errors.New("not a regular file")
		}
		return nil, &StepError{Step: StepLocate, Err: fmt.Errorf("%s: %w", b.cfg.Output, err)}
	}

	if err := copyBinary(built, destName, b.cfg.Windows); err != nil {
		return nil, &StepError{Step: StepCopy, Err: err}
	}

	version, err := b.verify(ctx, destName)
	if err != nil {
		os.Remove(destName)
		return nil, err
	}
	b.stopSpinner()

	dir, err := filepath.Abs(filepath.Dir(destName))
	if err != nil {
		return nil, err
	}
	if err := b.registrar.AddPath(dir); err != nil {
		return nil, &acquire.Error{Kind: acquire.KindRegister, Stage: acquire.StateBuilding, Err: err}
	}
	b.info(fmt.Sprintf("Built %s (%s); added %s to PATH", filepath.Base(destName), version, dir))

	if b.cfg.CacheBuild && b.cache != nil && md != nil && md.Name != "" {
		if _, err := b.cache.Store(destName, b.cfg.AssetName, filepath.Base(destName), md.Name); err != nil {
			b.warn(fmt.Sprintf("Could not cache the built %s: %v", b.cfg.AssetName, err))
		}
	}

	return &acquire.Result{
		BinaryPath: destName,
		SourceKind: acquire.SourceBuiltFromSource,
		Version:    version,
	}, nil
}

func (b *Builder) compile(ctx context.Context, src string) error {
	b.spin(fmt.Sprintf("Running %s", strings.Join(b.cfg.Command, " ")))

	tail := newTail(tailSize)
	var out io.Writer = tail
	if b.spinner == nil {
		out = io.MultiWriter(tail, b.output)
	}
	cmd := exec.CommandContext(ctx, b.cfg.Command[0], b.cfg.Command[1:]...)
	cmd.Dir = src
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return &StepError{Step: StepCompile, Err: err, Output: tail.String()}
	}
	b.logger.Debug("build command finished", "command", b.cfg.Command)
	return nil
}

// verify runs the built binary with the version argument and returns its
// trimmed output.
func (b *Builder) verify(ctx context.Context, path string) (string, error) {
	var args []string
	if b.cfg.VersionArg != "" {
		args = strings.Fields(b.cfg.VersionArg)
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", &StepError{Step: StepVerify, Err: err, Output: out.String()}
	}
	version := strings.TrimSpace(out.String())
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = strings.TrimSpace(version[:i])
	}
	return version, nil
}

func escapes(rel string) bool {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	return clean == ".." || strings.HasPrefix(clean, "../")
}

func copyBinary(src, dst string, windows bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".build-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if !windows {
		if err := os.Chmod(tmp.Name(), 0755); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), dst)
}

func (b *Builder) spin(msg string) {
	if b.spinner != nil {
		b.spinner.Start(msg)
		return
	}
	b.info(msg)
}

func (b *Builder) stopSpinner() {
	if b.spinner != nil {
		b.spinner.Stop()
	}
}

func (b *Builder) info(msg string) {
	if b.reporter != nil {
		b.reporter.Info(msg)
		return
	}
	b.logger.Info(msg)
}

func (b *Builder) warn(msg string) {
	if b.reporter != nil {
		b.reporter.Warning(msg)
		return
	}
	b.logger.Warn(msg)
}
