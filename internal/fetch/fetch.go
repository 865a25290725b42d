// Package fetch downloads a release's prebuilt binary for the platform.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tsukumogami/setup-tool/internal/acquire"
	"github.com/tsukumogami/setup-tool/internal/config"
	"github.com/tsukumogami/setup-tool/internal/httputil"
	"github.com/tsukumogami/setup-tool/internal/log"
	"github.com/tsukumogami/setup-tool/internal/platform"
	"github.com/tsukumogami/setup-tool/internal/progress"
	"github.com/tsukumogami/setup-tool/internal/release"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

// ErrNotAvailable is returned when the release has no asset named for the
// platform.
var ErrNotAvailable = acquire.ErrNotAvailable

// Store writes a binary into the tool cache.
type Store interface {
	Store(localPath, assetName, fileName, version string) (*toolcache.Entry, error)
}

// Fetcher downloads, registers and caches release assets.
type Fetcher struct {
	tool      string
	client    *http.Client
	cache     Store
	registrar acquire.Registrar
	reporter  acquire.Reporter
	logger    log.Logger
	progress  io.Writer
	checkExec func(string) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the secure download client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithProgress draws a progress bar on w. Without it a bar is drawn on
// stdout only when stdout is a terminal.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progress = w
	}
}

// WithReporter sends progress and cache write failures to r. Without it
// they are logged.
func WithReporter(r acquire.Reporter) Option {
	return func(f *Fetcher) {
		f.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithExecutableCheck replaces platform.CheckExecutable.
func WithExecutableCheck(fn func(string) error) Option {
	return func(f *Fetcher) {
		f.checkExec = fn
	}
}

// New returns a fetcher for tool's assets.
func New(tool string, cache Store, registrar acquire.Registrar, opts ...Option) *Fetcher {
	f := &Fetcher{
		tool:      tool,
		cache:     cache,
		registrar: registrar,
		checkExec: platform.CheckExecutable,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = log.Component(f.logger, "fetch")
	if f.client == nil {
		f.client = httputil.NewSecureClient(httputil.ClientOptions{
			Timeout: config.GetDownloadTimeout(),
		})
	}
	if f.progress == nil && progress.Enabled() {
		f.progress = os.Stdout
	}
	return f
}

// Fetch downloads the asset named key.AssetName(tool) to destName, makes
// it executable, registers its directory and caches it under the release
// name. The registered binary is left in place if caching fails.
func (f *Fetcher) Fetch(ctx context.Context, md *release.Metadata, key platform.Key, destName string) (*acquire.Result, error) {
	assetName := key.AssetName(f.tool)
	asset, ok := md.FindAsset(assetName)
	if !ok {
		f.logger.Debug("asset not in release", "asset", assetName, "available", md.AssetNames())
		return nil, ErrNotAvailable
	}

	f.info(fmt.Sprintf("Downloading %s...", log.SanitizeURL(asset.DownloadURL)))
	if err := f.download(ctx, asset.DownloadURL, destName); err != nil {
		return nil, err
	}

	if !key.IsWindows() {
		if err := os.Chmod(destName, 0755); err != nil {
			return nil, fmt.Errorf("failed to make %s executable: %w", destName, err)
		}
	}
	if err := f.checkExec(destName); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(destName))
	if err != nil {
		return nil, err
	}
	if err := f.registrar.AddPath(dir); err != nil {
		return nil, &acquire.Error{Kind: acquire.KindRegister, Stage: acquire.StateDownloading, Err: err}
	}
	f.info(fmt.Sprintf("Successfully added %s to PATH", dir))

	if f.cache != nil {
		if _, err := f.cache.Store(destName, assetName, filepath.Base(destName), md.Name); err != nil {
			f.warn(fmt.Sprintf("Could not cache %s %s: %v", assetName, md.Name, err))
		}
	}

	return &acquire.Result{
		BinaryPath: destName,
		SourceKind: acquire.SourceFreshDownload,
		Version:    md.Name,
	}, nil
}

func (f *Fetcher) info(msg string) {
	if f.reporter != nil {
		f.reporter.Info(msg)
		return
	}
	f.logger.Info(msg)
}

func (f *Fetcher) warn(msg string) {
	if f.reporter != nil {
		f.reporter.Warning(msg)
		return
	}
	f.logger.Warn(msg)
}

// download streams url into dest through a temporary file in the same
// directory, so dest is either absent or complete.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	if err := httputil.RequireHTTPS(url); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", log.SanitizeURL(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed: bad status %s", log.SanitizeURL(url), resp.Status)
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return fmt.Errorf("compressed responses not supported (got %s)", enc)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".download-")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var w io.Writer = tmp
	var pw *progress.Writer
	if f.progress != nil {
		pw = progress.NewWriter(tmp, resp.ContentLength, f.progress)
		w = pw
	}
	n, err := io.Copy(w, resp.Body)
	if pw != nil {
		pw.Finish()
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download of %s interrupted: %w", log.SanitizeURL(url), err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		tmp.Close()
		return fmt.Errorf("download of %s truncated: got %d of %d bytes", log.SanitizeURL(url), n, resp.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	f.logger.Debug("download complete", "dest", dest, "bytes", n)
	return nil
}
