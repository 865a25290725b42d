// Package errmsg provides enhanced error message formatting with actionable suggestions.
package errmsg

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/tsukumogami/setup-tool/internal/acquire"
	"github.com/tsukumogami/setup-tool/internal/build"
	"github.com/tsukumogami/setup-tool/internal/release"
)

// ErrorContext provides additional context for error formatting
type ErrorContext struct {
	Tool string // tool being acquired, e.g. "ziglint"
	Repo string // owner/name of the release repository
}

// Format returns a formatted error message with possible causes and suggestions.
// The context parameter is optional - pass nil for generic formatting.
func Format(err error, ctx *ErrorContext) string {
	if err == nil {
		return ""
	}
	if ctx == nil {
		ctx = &ErrorContext{}
	}

	errMsg := err.Error()

	// Build step failures carry the build output, so they go first
	var stepErr *build.StepError
	if errors.As(err, &stepErr) {
		return formatBuildError(errMsg, stepErr, ctx)
	}

	var releaseErr *release.Error
	if errors.As(err, &releaseErr) {
		return formatReleaseError(errMsg, releaseErr, ctx)
	}

	var acqErr *acquire.Error
	if errors.As(err, &acqErr) {
		switch acqErr.Kind {
		case acquire.KindRateLimited:
			return formatRateLimitError(errMsg, ctx)
		case acquire.KindMalformedResponse:
			return formatMalformedError(errMsg)
		case acquire.KindRegister:
			return formatRegisterError(errMsg)
		case acquire.KindTransport:
			if acqErr.Stage == acquire.StateDownloading {
				return formatDownloadError(errMsg, ctx)
			}
		}
	}

	// Check for rate limit errors (string matching for unstructured errors)
	if isRateLimitError(errMsg) {
		return formatRateLimitError(errMsg, ctx)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr)
	}

	if isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg)
	}

	if isPermissionError(errMsg) {
		return formatPermissionError(errMsg)
	}

	return errMsg
}

// Fprint writes the formatted error to w.
func Fprint(w io.Writer, err error, ctx *ErrorContext) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "Error: %s\n", strings.TrimRight(Format(err, ctx), "\n"))
}

func formatBuildError(errMsg string, err *build.StepError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	switch err.Step {
	case build.StepClone:
		sb.WriteString("  - The source repository URL is wrong or private\n")
		sb.WriteString("  - The runner cannot reach the git host\n")
	case build.StepDownload, build.StepExtract:
		sb.WriteString("  - The source archive URL is wrong or no longer available\n")
		sb.WriteString("  - The download was interrupted or is not an archive\n")
	case build.StepCompile:
		sb.WriteString("  - The build toolchain is not installed on the runner\n")
		sb.WriteString("  - The toolchain version does not match what the source expects\n")
	case build.StepLocate:
		sb.WriteString("  - The build put the binary somewhere else\n")
	case build.StepVerify:
		sb.WriteString("  - The built binary crashed or does not accept the version argument\n")
	default:
		sb.WriteString("  - The runner's temporary or working directory is not writable\n")
	}

	sb.WriteString("\nSuggestions:\n")
	switch err.Step {
	case build.StepClone, build.StepDownload, build.StepExtract:
		sb.WriteString("  - Check the source-url input\n")
	case build.StepCompile:
		sb.WriteString("  - Install the toolchain in an earlier step (for zig: mlugg/setup-zig)\n")
		sb.WriteString("  - Check the build-command input\n")
	case build.StepLocate:
		sb.WriteString("  - Set the build-output input to the path the build writes\n")
	case build.StepVerify:
		sb.WriteString("  - Check the version-arg input\n")
	}
	if ctx.Repo != "" {
		sb.WriteString(fmt.Sprintf("  - Ask the maintainers of %s to publish a prebuilt binary for your platform\n", ctx.Repo))
	}

	return sb.String()
}

func formatReleaseError(errMsg string, err *release.Error, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	switch err.Type {
	case release.ErrTypeParsing:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The api-url input does not point at a GitHub REST API\n")
		sb.WriteString("  - A proxy replaced the API response\n")
	case release.ErrTypeAuth:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The token has expired or was revoked\n")
		sb.WriteString("  - The token cannot read this repository\n")
	case release.ErrTypeCanceled:
		return sb.String()
	default:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - GitHub API temporarily unavailable\n")
	}

	sb.WriteString("\nSuggestions:\n")
	if s := err.Suggestion(); s != "" {
		sb.WriteString("  - " + s + "\n")
	}
	sb.WriteString("  - Try again in a few minutes\n")

	return sb.String()
}

func formatRateLimitError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Too many requests to the API\n")
	sb.WriteString("  - Unauthenticated requests have lower limits\n")
	sb.WriteString("  - Runners behind a shared IP address share one limit\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Pass token: ${{ secrets.GITHUB_TOKEN }} to increase the rate limit\n")
	sb.WriteString("  - Wait a few minutes before retrying\n")
	if ctx.Tool != "" {
		sb.WriteString(fmt.Sprintf("  - Cache the tool cache directory so a stale %s can be used next time\n", ctx.Tool))
	}

	return sb.String()
}

func formatMalformedError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The api-url input does not point at a GitHub REST API\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Remove the api-url input to use api.github.com\n")

	return sb.String()
}

func formatDownloadError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The release asset was deleted or replaced while downloading\n")
	sb.WriteString("  - Network connectivity issue\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Re-run the job\n")
	if ctx.Repo != "" {
		sb.WriteString(fmt.Sprintf("  - Check the assets of the latest release at https://github.com/%s/releases/latest\n", ctx.Repo))
	}

	return sb.String()
}

func formatRegisterError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The binary's directory was removed before it could be added to PATH\n")
	sb.WriteString("  - GITHUB_PATH is not writable\n")

	return sb.String()
}

func formatNetworkError(err net.Error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("  - Firewall or proxy blocking the connection\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check the runner's network access\n")
	sb.WriteString("  - Try again in a few minutes\n")
	if err.Timeout() {
		sb.WriteString("  - Raise SETUP_TOOL_API_TIMEOUT or SETUP_TOOL_DOWNLOAD_TIMEOUT\n")
	}

	return sb.String()
}

func formatGenericNetworkError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - DNS resolution failure\n")
	sb.WriteString("  - Service temporarily unavailable\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check the runner's network access\n")
	sb.WriteString("  - Try again in a few minutes\n")

	return sb.String()
}

func formatPermissionError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The tool cache or working directory is owned by a different user\n")
	sb.WriteString("  - The file system is mounted read-only or noexec\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Set the cache-dir input to a writable directory\n")
	sb.WriteString("  - Check permissions on $SETUP_TOOL_HOME (default ~/.setup-tool)\n")

	return sb.String()
}

// isRateLimitError checks if the error message indicates a rate limit
func isRateLimitError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate-limit") ||
		strings.Contains(lower, "too many requests")
}

// isNetworkError checks if the error message indicates a network issue
func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "i/o timeout")
}

// isPermissionError checks if the error message indicates a permission issue
func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
