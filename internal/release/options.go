package release

import (
	"net/http"

	"github.com/tsukumogami/setup-tool/internal/log"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithBaseURL points the resolver at another API root, such as a GitHub
// Enterprise instance or a test server.
func WithBaseURL(url string) Option {
	return func(r *Resolver) {
		r.baseURL = url
	}
}

// WithHTTPClient replaces the secure default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(r *Resolver) {
		r.token = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(r *Resolver) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithMaxAttempts bounds the number of requests per Resolve call.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		r.maxAttempts = n
	}
}

// WithSleeper replaces the backoff sleep. Tests use it to avoid waiting.
func WithSleeper(s Sleeper) Option {
	return func(r *Resolver) {
		if s != nil {
			r.sleep = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithWarner sends retry warnings to w instead of the logger, so they are
// shown even when logging is quiet.
func WithWarner(w Warner) Option {
	return func(r *Resolver) {
		r.warner = w
	}
}
