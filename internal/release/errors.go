package release

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrorType classifies resolver failures.
type ErrorType int

const (
	// ErrTypeNetwork is a transport failure that fits no narrower type.
	ErrTypeNetwork ErrorType = iota
	// ErrTypeParsing means the response body was not a release payload.
	ErrTypeParsing
	// ErrTypeHTTP is an unexpected status such as 401 or 500.
	ErrTypeHTTP
	// ErrTypeAuth means the API rejected the token.
	ErrTypeAuth
	// ErrTypeTimeout indicates a request timeout.
	ErrTypeTimeout
	// ErrTypeDNS indicates DNS resolution failure.
	ErrTypeDNS
	// ErrTypeConnection indicates connection refused or reset.
	ErrTypeConnection
	// ErrTypeTLS indicates certificate or handshake failure.
	ErrTypeTLS
	// ErrTypeCanceled means the run was interrupted.
	ErrTypeCanceled
)

var errorTypeNames = map[ErrorType]string{
	ErrTypeNetwork:    "network",
	ErrTypeParsing:    "parsing",
	ErrTypeHTTP:       "http",
	ErrTypeAuth:       "auth",
	ErrTypeTimeout:    "timeout",
	ErrTypeDNS:        "dns",
	ErrTypeConnection: "connection",
	ErrTypeTLS:        "tls",
	ErrTypeCanceled:   "canceled",
}

func (t ErrorType) String() string {
	if s, ok := errorTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// Error is a failed metadata request.
type Error struct {
	Type    ErrorType
	Repo    string // owner/name
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("latest release of %s: %s: %v", e.Repo, e.Message, e.Err)
	}
	return fmt.Sprintf("latest release of %s: %s", e.Repo, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Suggestion returns an actionable hint for the user, or "".
func (e *Error) Suggestion() string {
	switch e.Type {
	case ErrTypeParsing:
		return "The API returned something other than a release; check the api-url input points at the GitHub REST API"
	case ErrTypeAuth:
		return "The token input was rejected; check it has not expired"
	case ErrTypeHTTP:
		return "The GitHub API may be having problems; check https://www.githubstatus.com and retry the job"
	case ErrTypeTimeout:
		return "The GitHub API did not answer in time; retry the job or raise SETUP_TOOL_API_TIMEOUT"
	case ErrTypeDNS:
		return "Check the runner's DNS settings and network access"
	case ErrTypeConnection:
		return "The API host refused the connection; check proxies and firewall rules on the runner"
	case ErrTypeTLS:
		return "There may be a certificate issue; check the runner's clock and CA bundle"
	case ErrTypeNetwork:
		return "Check the runner's network access and retry the job"
	default:
		return ""
	}
}

// ClassifyError picks the most specific ErrorType for a transport error.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrTypeNetwork
	}
	if errors.Is(err, context.Canceled) {
		return ErrTypeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrTypeTimeout
		}
		return ErrTypeDNS
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ErrTypeTLS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return ErrTypeTimeout
		}
		return ErrTypeConnection
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ErrTypeTimeout
		}
		msg := urlErr.Err.Error()
		if strings.Contains(msg, "certificate") || strings.Contains(msg, "tls") || strings.Contains(msg, "x509") {
			return ErrTypeTLS
		}
		return ClassifyError(urlErr.Err)
	}

	return ErrTypeNetwork
}

// WrapTransportError builds an *Error typed by ClassifyError.
func WrapTransportError(err error, repo, message string) *Error {
	return &Error{
		Type:    ClassifyError(err),
		Repo:    repo,
		Message: message,
		Err:     err,
	}
}
