package acquire

import (
	"errors"
	"fmt"
)

// ErrNotAvailable means the release carries no asset for the platform.
// The orchestrator falls back to building from source.
var ErrNotAvailable = errors.New("no release asset for this platform")

// ErrAlreadyRegistered is returned by a OnceRegistrar on its second use.
var ErrAlreadyRegistered = errors.New("a binary has already been registered for this run")

// Kind classifies a fatal acquisition error.
type Kind int

const (
	KindRateLimited Kind = iota
	KindTransport
	KindMalformedResponse
	KindBuild
	KindCache
	KindRegister
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate limited"
	case KindTransport:
		return "transport failure"
	case KindMalformedResponse:
		return "malformed response"
	case KindBuild:
		return "build failure"
	case KindCache:
		return "cache failure"
	case KindRegister:
		return "registration failure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a fatal acquisition error. Stage is the state the run was in
// when it failed.
type Error struct {
	Kind  Kind
	Stage State
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s while %s", e.Kind, stageVerb(e.Stage))
	}
	return fmt.Sprintf("%s while %s: %v", e.Kind, stageVerb(e.Stage), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stageVerb(s State) string {
	switch s {
	case StateResolvingMetadata, StateRateLimitedNoCache:
		return "resolving the latest release"
	case StateUsingStaleCache, StateMetadataOK:
		return "using the cached binary"
	case StateLocatingAsset, StateAssetFound, StateDownloading:
		return "downloading the release asset"
	case StateNoReleasesEver, StateAssetMissing, StateBuilding:
		return "building from source"
	default:
		return s.String()
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
