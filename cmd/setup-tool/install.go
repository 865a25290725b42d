package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/setup-tool/internal/acquire"
	"github.com/tsukumogami/setup-tool/internal/build"
	"github.com/tsukumogami/setup-tool/internal/buildinfo"
	"github.com/tsukumogami/setup-tool/internal/config"
	"github.com/tsukumogami/setup-tool/internal/errmsg"
	"github.com/tsukumogami/setup-tool/internal/fetch"
	"github.com/tsukumogami/setup-tool/internal/host"
	"github.com/tsukumogami/setup-tool/internal/httputil"
	"github.com/tsukumogami/setup-tool/internal/log"
	"github.com/tsukumogami/setup-tool/internal/platform"
	"github.com/tsukumogami/setup-tool/internal/release"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

// settingFlags are the install flags, one per setting key.
var settingFlags = []struct {
	key   string
	usage string
}{
	{config.KeyRepo, "GitHub repository publishing the releases (owner/name)"},
	{config.KeyTool, "Tool name used in asset names (default: the repository name)"},
	{config.KeyBinaryName, "File name of the installed binary"},
	{config.KeyToken, "GitHub token for API requests"},
	{config.KeyAPIURL, "GitHub REST API root"},
	{config.KeyCacheDir, "Tool cache directory"},
	{config.KeyMaxAttempts, "Metadata requests allowed while rate limited"},
	{config.KeySourceURL, "Git URL or source archive URL for source builds"},
	{config.KeyBuildCommand, "Command that builds the tool in the source root"},
	{config.KeyBuildOutput, "Built binary path relative to the source root"},
	{config.KeyVersionArg, "Argument the built binary prints its version for"},
	{config.KeyCacheBuild, "Cache binaries built from source (true or false)"},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the tool and add it to PATH",
	Long: `Install the tool and add its directory to PATH.

Settings are taken, in order, from flags, action inputs (INPUT_*), the
config file and built-in defaults.

Examples:
  setup-tool install
  setup-tool install --repo AnnikaCodes/ziglint --binary-name ziglint
  setup-tool install --build-command "zig build -Doptimize=ReleaseSafe"`,
	Args: cobra.NoArgs,
	RunE: installRun,
}

func init() {
	addInstallFlags(installCmd)
}

func addInstallFlags(cmd *cobra.Command) {
	for _, f := range settingFlags {
		cmd.Flags().String(f.key, "", f.usage)
	}
	cmd.Flags().String("config", "", "Config file (default: ./"+config.DefaultFileName+")")
}

// flagValues collects the setting flags the user actually set.
func flagValues(cmd *cobra.Command) config.Values {
	v := config.Values{}
	for _, f := range settingFlags {
		if cmd.Flags().Changed(f.key) {
			v[f.key], _ = cmd.Flags().GetString(f.key)
		}
	}
	return v
}

// runError carries the formatting context for a failed install.
type runError struct {
	err error
	ctx *errmsg.ErrorContext
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

// installEnv is what an install run depends on outside its settings.
type installEnv struct {
	host    *host.Host
	key     platform.Key
	goos    string
	workDir string
	home    string
	logger  log.Logger
	quiet   bool

	// client replaces the secure clients for API and downloads
	client *http.Client
}

func installRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.DefaultConfig()
	if err != nil {
		return err
	}
	configPath, _ := cmd.Flags().GetString("config")

	env := installEnv{
		host:    runner,
		key:     platform.Current(),
		goos:    runtime.GOOS,
		workDir: cfg.WorkDir,
		home:    cfg.HomeDir,
		logger:  log.Default(),
		quiet:   quiet(),
	}
	_, err = runInstall(cmd.Context(), env, flagValues(cmd), configPath)
	return err
}

// runInstall resolves settings, acquires the binary and sets the step
// outputs.
func runInstall(ctx context.Context, env installEnv, flags config.Values, configPath string) (*acquire.Result, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(env.workDir, config.DefaultFileName)
	}
	if explicit {
		if _, err := os.Stat(configPath); err != nil {
			return nil, &usageError{err: fmt.Errorf("config file: %w", err)}
		}
	}
	file, err := config.LoadFile(configPath)
	if err != nil {
		return nil, &usageError{err: err}
	}

	settings, err := config.Resolve(env.goos, flags, env.host, file)
	if err != nil {
		return nil, &usageError{err: err}
	}
	env.host.Mask(settings.Token)
	errCtx := &errmsg.ErrorContext{Tool: settings.Tool, Repo: settings.FullRepo()}
	fail := func(err error) error { return &runError{err: err, ctx: errCtx} }

	logger := env.logger
	if h, err := platform.Detect(ctx); err == nil {
		logger.Debug("host", "platform", h.String())
	}

	root := config.CacheRootFor(settings.CacheDir, env.home)
	cache := toolcache.New(root, toolcache.WithLogger(logger))
	logger.Debug("tool cache", "root", cache.Root())

	var rep acquire.Reporter = env.host
	if env.quiet {
		rep = quietReporter{env.host}
	}
	registrar := acquire.Once(env.host)

	client := env.client
	if client == nil {
		client = httputil.NewSecureClient(httputil.ClientOptions{
			Timeout:   config.GetDownloadTimeout(),
			UserAgent: buildinfo.UserAgent(),
		})
	}

	resolverOpts := []release.Option{
		release.WithBaseURL(settings.APIURL),
		release.WithToken(settings.Token),
		release.WithUserAgent(buildinfo.UserAgent()),
		release.WithMaxAttempts(settings.MaxAttempts),
		release.WithLogger(logger),
		release.WithWarner(rep),
	}
	if env.client != nil {
		resolverOpts = append(resolverOpts, release.WithHTTPClient(env.client))
	}
	resolver, err := release.New(settings.Owner, settings.Repo, resolverOpts...)
	if err != nil {
		return nil, &usageError{err: err}
	}

	fetcher := fetch.New(settings.Tool, cache, registrar,
		fetch.WithHTTPClient(client),
		fetch.WithReporter(rep),
		fetch.WithLogger(logger),
	)

	builder, err := build.New(build.Config{
		AssetName:  env.key.AssetName(settings.Tool),
		SourceURL:  settings.SourceURL,
		Command:    settings.BuildCommand,
		Output:     settings.BuildOutput,
		VersionArg: settings.VersionArg,
		CacheBuild: settings.CacheBuild,
		Windows:    env.key.IsWindows(),
	}, registrar,
		build.WithCache(cache),
		build.WithReporter(rep),
		build.WithHTTPClient(client),
		build.WithLogger(logger),
	)
	if err != nil {
		return nil, &usageError{err: err}
	}

	orch, err := acquire.New(acquire.Context{
		Key:        env.key,
		Tool:       settings.Tool,
		BinaryName: settings.BinaryName,
		WorkDir:    env.workDir,
	}, acquire.Deps{
		Resolver:  resolver,
		Cache:     cache,
		Fetcher:   fetcher,
		Builder:   builder,
		Registrar: registrar,
		Reporter:  rep,
		Logger:    logger,
	})
	if err != nil {
		return nil, fail(err)
	}

	res, err := orch.Run(ctx)
	if err != nil {
		return nil, fail(err)
	}

	env.host.SetOutput("path", res.BinaryPath)
	env.host.SetOutput("source", res.SourceKind.String())
	env.host.SetOutput("version", res.Version)
	return res, nil
}

// quietReporter drops progress lines and keeps warnings.
type quietReporter struct {
	next acquire.Reporter
}

func (q quietReporter) Info(string)        {}
func (q quietReporter) Warning(msg string) { q.next.Warning(msg) }
