package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/tsukumogami/setup-tool/internal/config"
	"github.com/tsukumogami/setup-tool/internal/httputil"
	"github.com/tsukumogami/setup-tool/internal/log"
)

// RateLimitFunc is consulted after every rate-limited response, before any
// backoff sleep. requests is the number of requests made so far. Returning
// true ends Resolve immediately with the rate-limited metadata.
type RateLimitFunc func(ctx context.Context, requests int) bool

// Warner receives warnings that are shown regardless of log level.
type Warner interface {
	Warning(msg string)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Resolver fetches the latest release of one repository.
type Resolver struct {
	owner, repo string

	baseURL     string
	httpClient  *http.Client
	token       string
	userAgent   string
	maxAttempts int
	sleep       Sleeper
	logger      log.Logger
	warner      Warner

	client *github.Client
}

// New creates a resolver for owner/repo. Without options it talks to
// api.github.com unauthenticated through the secure client.
func New(owner, repo string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		owner:       owner,
		repo:        repo,
		baseURL:     config.DefaultAPIURL,
		userAgent:   "setup-tool",
		maxAttempts: config.DefaultMaxAttempts,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	r.logger = log.Component(r.logger, "release")

	hc := r.httpClient
	if hc == nil {
		hc = httputil.NewSecureClient(httputil.ClientOptions{
			Timeout:      config.GetAPITimeout(),
			DialTimeout:  10 * time.Second,
			MaxRedirects: 5,
		})
	}
	if r.token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: r.token})
		hc = oauth2.NewClient(context.WithValue(context.Background(), oauth2.HTTPClient, hc), ts)
	}

	client := github.NewClient(hc)
	base := r.baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", r.baseURL, err)
	}
	client.BaseURL = u
	client.UserAgent = r.userAgent
	r.client = client

	return r, nil
}

// Repo returns owner/name.
func (r *Resolver) Repo() string {
	return r.owner + "/" + r.repo
}

// Authenticated reports whether requests carry a token.
func (r *Resolver) Authenticated() bool {
	return r.token != ""
}

// Backoff is the wait before the next request once the attempt counter has
// reached attempt: 10 * 2^attempt seconds, so 40s then 80s under the
// default budget of three requests.
func Backoff(attempt int) time.Duration {
	return time.Duration(10*(1<<attempt)) * time.Second
}

// Resolve fetches the latest release. It issues at most the configured
// number of requests while the API reports a rate limit and then returns
// the last rate-limited metadata without an error.
func (r *Resolver) Resolve(ctx context.Context, onRateLimit RateLimitFunc) (*Metadata, error) {
	attempt := 1
	for {
		r.logger.Debug("requesting latest release", "repo", r.Repo(), "attempt", attempt)
		md, err := r.fetch(ctx)
		attempt++
		if err != nil {
			return nil, err
		}
		if !md.RateLimited {
			return md, nil
		}

		requests := attempt - 1
		if onRateLimit != nil && onRateLimit(ctx, requests) {
			r.logger.Debug("rate limit retries stopped by caller", "requests", requests)
			return md, nil
		}
		if attempt > r.maxAttempts {
			// the caller reports the fatal error
			r.logger.Debug("rate limit retries exhausted", "requests", requests)
			return md, nil
		}

		wait := Backoff(attempt)
		r.warn(fmt.Sprintf("GitHub API rate limit exceeded; retrying in %d seconds", int(wait.Seconds())))
		if err := r.sleep(ctx, wait); err != nil {
			return nil, WrapTransportError(err, r.Repo(), "interrupted while waiting for rate limit")
		}
	}
}

func (r *Resolver) warn(msg string) {
	if r.warner != nil {
		r.warner.Warning(msg)
		return
	}
	r.logger.Warn(msg)
}

func (r *Resolver) fetch(ctx context.Context) (*Metadata, error) {
	req, err := r.client.NewRequest(http.MethodGet, fmt.Sprintf("repos/%s/%s/releases/latest", r.owner, r.repo), nil)
	if err != nil {
		return nil, &Error{Type: ErrTypeNetwork, Repo: r.Repo(), Message: "building request", Err: err}
	}

	var body bytes.Buffer
	resp, err := r.client.Do(ctx, req, &body)
	if err != nil {
		return r.fromError(err)
	}

	var p payload
	if err := json.Unmarshal(body.Bytes(), &p); err != nil {
		return nil, &Error{Type: ErrTypeParsing, Repo: r.Repo(), Message: "malformed release payload", Err: err}
	}

	md := p.metadata()
	md.Rate = rateFrom(resp.Rate)
	if strings.Contains(p.Message, RateLimitMessage) {
		return rateLimited(p.Message, md.Rate), nil
	}
	r.logger.Debug("release metadata", "name", md.Name, "assets", len(md.Assets))
	return md, nil
}

// fromError maps a go-github error to metadata (rate limit, no releases)
// or a typed *Error.
func (r *Resolver) fromError(err error) (*Metadata, error) {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return rateLimited(rle.Message, rateFrom(rle.Rate)), nil
	}

	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		var rate *Rate
		if abuse.RetryAfter != nil {
			rate = &Rate{Reset: time.Now().Add(*abuse.RetryAfter)}
		}
		return rateLimited(abuse.Message, rate), nil
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) {
		status := 0
		var rate *Rate
		if er.Response != nil {
			status = er.Response.StatusCode
			rate = rateFromHeader(er.Response.Header)
		}
		if status == http.StatusTooManyRequests ||
			strings.Contains(er.Message, RateLimitMessage) ||
			strings.Contains(strings.ToLower(er.Message), "secondary rate limit") {
			return rateLimited(er.Message, rate), nil
		}
		switch status {
		case http.StatusNotFound:
			r.logger.Debug("no published releases", "repo", r.Repo())
			return &Metadata{Message: er.Message}, nil
		case http.StatusUnauthorized:
			return nil, &Error{Type: ErrTypeAuth, Repo: r.Repo(), Message: "authentication failed", Err: err}
		default:
			return nil, &Error{Type: ErrTypeHTTP, Repo: r.Repo(), Message: fmt.Sprintf("unexpected status %d", status), Err: err}
		}
	}

	return nil, WrapTransportError(err, r.Repo(), "request failed")
}

func rateLimited(message string, rate *Rate) *Metadata {
	return &Metadata{RateLimited: true, Message: message, Rate: rate}
}

func rateFrom(gr github.Rate) *Rate {
	if gr.Limit == 0 && gr.Reset.Time.IsZero() {
		return nil
	}
	return &Rate{Limit: gr.Limit, Remaining: gr.Remaining, Reset: gr.Reset.Time}
}

func rateFromHeader(h http.Header) *Rate {
	limit, err := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	if err != nil {
		return nil
	}
	rate := &Rate{Limit: limit}
	rate.Remaining, _ = strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		rate.Reset = time.Unix(reset, 0)
	}
	return rate
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
