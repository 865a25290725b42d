// Package acquire decides where a run's binary comes from.
//
// The orchestrator resolves the latest release, then takes the first
// source that works: an exact-version cache entry, the release asset for
// the platform, or a build from source. While the release API is rate
// limited, any cached version is preferred over waiting out the backoff.
// Exactly one directory is registered per successful run and nothing is
// registered on failure.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tsukumogami/setup-tool/internal/log"
	"github.com/tsukumogami/setup-tool/internal/platform"
	"github.com/tsukumogami/setup-tool/internal/release"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

// Resolver fetches the latest release, retrying while rate limited.
type Resolver interface {
	Resolve(ctx context.Context, onRateLimit release.RateLimitFunc) (*release.Metadata, error)
}

// Cache looks up previously stored binaries.
type Cache interface {
	FindExact(assetName, version string) (*toolcache.Entry, bool)
	FindAny(assetName string) (*toolcache.Entry, bool)
}

// Fetcher downloads the platform's release asset to destName and
// registers it. It returns ErrNotAvailable when the release has no such
// asset.
type Fetcher interface {
	Fetch(ctx context.Context, md *release.Metadata, key platform.Key, destName string) (*Result, error)
}

// Builder builds the tool from source into destName and registers it. md
// may describe a release without a name.
type Builder interface {
	Build(ctx context.Context, md *release.Metadata, destName string) (*Result, error)
}

// Reporter surfaces progress and warnings to whoever runs the job.
type Reporter interface {
	Info(msg string)
	Warning(msg string)
}

// Context is the fixed description of one run. It is copied into the
// orchestrator at construction.
type Context struct {
	Key        platform.Key
	Tool       string
	BinaryName string
	WorkDir    string
}

// AssetName is the release asset name for the run's platform.
func (c Context) AssetName() string {
	return c.Key.AssetName(c.Tool)
}

// DestPath is where downloads and builds are written.
func (c Context) DestPath() string {
	return filepath.Join(c.WorkDir, c.BinaryName)
}

// Deps are the orchestrator's collaborators. Registrar is wrapped in a
// OnceRegistrar unless it already is one; pass the same OnceRegistrar to
// the fetcher and builder.
type Deps struct {
	Resolver  Resolver
	Cache     Cache
	Fetcher   Fetcher
	Builder   Builder
	Registrar Registrar
	Reporter  Reporter
	Logger    log.Logger

	// CheckExecutable vets cached binaries before they are registered.
	// Defaults to platform.CheckExecutable.
	CheckExecutable func(path string) error
}

// Orchestrator runs the acquisition state machine once.
type Orchestrator struct {
	rc        Context
	resolver  Resolver
	cache     Cache
	fetcher   Fetcher
	builder   Builder
	registrar Registrar
	reporter  Reporter
	logger    log.Logger
	checkExec func(string) error

	trace []State
}

// New validates deps and returns an orchestrator for rc.
func New(rc Context, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Resolver == nil:
		return nil, errors.New("acquire: resolver is required")
	case deps.Cache == nil:
		return nil, errors.New("acquire: cache is required")
	case deps.Fetcher == nil:
		return nil, errors.New("acquire: fetcher is required")
	case deps.Builder == nil:
		return nil, errors.New("acquire: builder is required")
	case deps.Registrar == nil:
		return nil, errors.New("acquire: registrar is required")
	case deps.Reporter == nil:
		return nil, errors.New("acquire: reporter is required")
	}
	if rc.Tool == "" || rc.BinaryName == "" {
		return nil, errors.New("acquire: tool and binary name are required")
	}

	reg := deps.Registrar
	if _, ok := reg.(*OnceRegistrar); !ok {
		reg = Once(reg)
	}
	check := deps.CheckExecutable
	if check == nil {
		check = platform.CheckExecutable
	}

	return &Orchestrator{
		rc:        rc,
		resolver:  deps.Resolver,
		cache:     deps.Cache,
		fetcher:   deps.Fetcher,
		builder:   deps.Builder,
		registrar: reg,
		reporter:  deps.Reporter,
		logger:    log.Component(deps.Logger, "acquire"),
		checkExec: check,
	}, nil
}

// Trace returns the states visited so far, in order.
func (o *Orchestrator) Trace() []State {
	return append([]State(nil), o.trace...)
}

// Run acquires and registers the binary.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	asset := o.rc.AssetName()
	o.enter(StateResolvingMetadata)
	o.reporter.Info(fmt.Sprintf("Looking for %s...", asset))

	// A cached binary of any version beats waiting out the backoff.
	var stale *toolcache.Entry
	md, err := o.resolver.Resolve(ctx, func(ctx context.Context, requests int) bool {
		if e, ok := o.usable(asset, toolcache.AnyVersion); ok {
			stale = e
			return true
		}
		o.logger.Debug("rate limited with nothing cached", "asset", asset, "requests", requests)
		return false
	})
	if err != nil {
		return nil, o.fail(resolveError(err))
	}

	if md.RateLimited {
		if stale != nil {
			o.enter(StateUsingStaleCache)
			o.reporter.Warning(fmt.Sprintf(
				"GitHub API rate limit exceeded; using cached %s %s, which may be outdated", asset, stale.Version))
			return o.useCached(stale, StateUsingStaleCache, true)
		}
		o.enter(StateRateLimitedNoCache)
		return nil, o.fail(&Error{
			Kind:  KindRateLimited,
			Stage: StateRateLimitedNoCache,
			Err:   fmt.Errorf("GitHub API rate limit exceeded and no cached %s is available", asset),
		})
	}

	if !md.HasRelease() {
		o.enter(StateNoReleasesEver)
		o.reporter.Warning(fmt.Sprintf("%s has no published releases; building from source", o.rc.Tool))
		return o.build(ctx, md)
	}

	o.enter(StateMetadataOK)
	o.reporter.Info(fmt.Sprintf("Latest release is %s", md.Name))
	if e, ok := o.usable(asset, md.Name); ok {
		o.reporter.Info(fmt.Sprintf("Using cached %s %s", asset, md.Name))
		return o.useCached(e, StateMetadataOK, false)
	}

	o.enter(StateLocatingAsset)
	if _, ok := md.FindAsset(asset); !ok {
		return o.assetMissing(ctx, md, asset)
	}

	o.enter(StateAssetFound)
	o.enter(StateDownloading)
	res, err := o.fetcher.Fetch(ctx, md, o.rc.Key, o.rc.DestPath())
	if errors.Is(err, ErrNotAvailable) {
		return o.assetMissing(ctx, md, asset)
	}
	if err != nil {
		return nil, o.fail(wrap(KindTransport, StateDownloading, err))
	}
	return o.succeed(res), nil
}

func (o *Orchestrator) assetMissing(ctx context.Context, md *release.Metadata, asset string) (*Result, error) {
	o.enter(StateAssetMissing)
	o.reporter.Warning(fmt.Sprintf(
		"%s release %s is not available for your platform (%s not found); building from source", o.rc.Tool, md.Name, asset))
	return o.build(ctx, md)
}

func (o *Orchestrator) build(ctx context.Context, md *release.Metadata) (*Result, error) {
	o.enter(StateBuilding)
	res, err := o.builder.Build(ctx, md, o.rc.DestPath())
	if err != nil {
		return nil, o.fail(wrap(KindBuild, StateBuilding, err))
	}
	return o.succeed(res), nil
}

func (o *Orchestrator) useCached(e *toolcache.Entry, stage State, stale bool) (*Result, error) {
	dir, path, err := o.placeCached(e)
	if err != nil {
		return nil, o.fail(&Error{Kind: KindCache, Stage: stage, Err: err})
	}
	if err := o.registrar.AddPath(dir); err != nil {
		return nil, o.fail(&Error{Kind: KindRegister, Stage: stage, Err: err})
	}
	return o.succeed(&Result{
		BinaryPath: path,
		SourceKind: SourceCache,
		Version:    e.Version,
		Stale:      stale,
	}), nil
}

// placeCached returns the directory to register for e and the binary in
// it. An entry stored under another binary name is copied to DestPath so
// the registered directory holds the configured name.
func (o *Orchestrator) placeCached(e *toolcache.Entry) (dir, path string, err error) {
	if filepath.Base(e.Path) == o.rc.BinaryName {
		return e.Dir, e.Path, nil
	}
	dest := o.rc.DestPath()
	if err := copyExecutable(e.Path, dest); err != nil {
		return "", "", fmt.Errorf("copy cached %s to %s: %w", filepath.Base(e.Path), dest, err)
	}
	o.logger.Debug("cached binary copied under the configured name", "from", e.Path, "to", dest)
	return filepath.Dir(dest), dest, nil
}

// copyExecutable writes src to dst through a temp file in dst's directory.
func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".setup-tool-*")
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
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// usable looks up a cache entry and drops it if it cannot be executed.
func (o *Orchestrator) usable(asset, version string) (*toolcache.Entry, bool) {
	e, ok := o.cache.FindExact(asset, version)
	if !ok {
		return nil, false
	}
	if err := o.checkExec(e.Path); err != nil {
		o.logger.Warn("ignoring cached binary", "path", e.Path, "error", err)
		return nil, false
	}
	return e, true
}

func (o *Orchestrator) enter(s State) {
	o.trace = append(o.trace, s)
	o.logger.Debug("state", "name", s.String())
}

func (o *Orchestrator) fail(err error) error {
	o.enter(StateFailed)
	return err
}

func (o *Orchestrator) succeed(res *Result) *Result {
	o.enter(StateSuccess)
	o.logger.Debug("acquired", "path", res.BinaryPath, "source", res.SourceKind.String(), "version", res.Version)
	return res
}

func resolveError(err error) error {
	var re *release.Error
	if errors.As(err, &re) && re.Type == release.ErrTypeParsing {
		return &Error{Kind: KindMalformedResponse, Stage: StateResolvingMetadata, Err: err}
	}
	return &Error{Kind: KindTransport, Stage: StateResolvingMetadata, Err: err}
}

// wrap keeps an *Error from a collaborator and classifies anything else.
func wrap(kind Kind, stage State, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
