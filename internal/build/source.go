package build

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"github.com/tsukumogami/setup-tool/internal/archive"
	"github.com/tsukumogami/setup-tool/internal/httputil"
	"github.com/tsukumogami/setup-tool/internal/log"
)

var scpLike = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:`)

// isRemote reports whether a git URL names a network remote. Only remote
// clones are shallow.
func isRemote(url string) bool {
	for _, scheme := range []string{"https://", "http://", "ssh://", "git://"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return scpLike.MatchString(url)
}

// obtainSource fills dir with the source tree, from an archive when the
// URL names one and by cloning otherwise.
func (b *Builder) obtainSource(ctx context.Context, dir, scratch string) error {
	url := b.cfg.SourceURL
	if format := archive.DetectFormat(url); format != archive.Unknown {
		return b.fromArchive(ctx, url, format, dir, scratch)
	}
	return b.clone(ctx, url, dir)
}

func (b *Builder) clone(ctx context.Context, url, dir string) error {
	b.spin(fmt.Sprintf("Cloning %s", log.SanitizeURL(url)))
	out := newTail(tailSize)
	opts := &gogit.CloneOptions{
		URL:          url,
		SingleBranch: true,
		Tags:         gogit.NoTags,
		Progress:     out,
	}
	if isRemote(url) {
		opts.Depth = 1
	}
	if _, err := gogit.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return &StepError{Step: StepClone, Err: fmt.Errorf("clone %s: %w", log.SanitizeURL(url), err), Output: out.String()}
	}
	b.logger.Debug("cloned source", "url", log.SanitizeURL(url), "dir", dir, "shallow", opts.Depth > 0)
	return nil
}

func (b *Builder) fromArchive(ctx context.Context, url string, format archive.Format, dir, scratch string) error {
	b.spin(fmt.Sprintf("Downloading %s", log.SanitizeURL(url)))
	path := filepath.Join(scratch, "source."+string(format))
	if err := b.download(ctx, url, path); err != nil {
		return &StepError{Step: StepDownload, Err: err}
	}

	b.spin("Extracting source")
	if err := archive.Extract(path, dir, format, archive.Options{StripComponents: 1}); err != nil {
		return &StepError{Step: StepExtract, Err: err}
	}
	return nil
}

func (b *Builder) download(ctx context.Context, url, dest string) error {
	if err := httputil.RequireHTTPS(url); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", log.SanitizeURL(url), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed: bad status %s", log.SanitizeURL(url), resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download of %s interrupted: %w", log.SanitizeURL(url), err)
	}
	return f.Close()
}
