package main

import (
	"errors"
	"os"

	"github.com/tsukumogami/setup-tool/internal/acquire"
)

// Exit codes for different error types.
// These enable scripts to distinguish between failure modes.
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0

	// ExitGeneral indicates a general error
	ExitGeneral = 1

	// ExitUsage indicates invalid arguments, flags or settings
	ExitUsage = 2

	// ExitNetwork indicates the release metadata could not be resolved,
	// including an exhausted rate limit
	ExitNetwork = 5

	// ExitDownloadFailed indicates the release asset download failed
	ExitDownloadFailed = 6

	// ExitBuildFailed indicates the source build failed
	ExitBuildFailed = 7
)

// usageError marks bad flags or settings.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCodeFor maps an error returned by a command to its exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}

	var ae *acquire.Error
	if !errors.As(err, &ae) {
		return ExitGeneral
	}
	switch ae.Kind {
	case acquire.KindRateLimited, acquire.KindMalformedResponse:
		return ExitNetwork
	case acquire.KindTransport:
		if ae.Stage == acquire.StateDownloading {
			return ExitDownloadFailed
		}
		return ExitNetwork
	case acquire.KindBuild:
		return ExitBuildFailed
	default:
		return ExitGeneral
	}
}

// exitWithCode exits with the specified exit code
func exitWithCode(code int) {
	os.Exit(code)
}
