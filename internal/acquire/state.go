package acquire

import "fmt"

// State is a step of the acquisition state machine.
type State int

const (
	StateResolvingMetadata State = iota
	StateRateLimitedNoCache
	StateUsingStaleCache
	StateNoReleasesEver
	StateMetadataOK
	StateLocatingAsset
	StateAssetFound
	StateAssetMissing
	StateDownloading
	StateBuilding
	StateSuccess
	StateFailed
)

var stateNames = map[State]string{
	StateResolvingMetadata:  "ResolvingMetadata",
	StateRateLimitedNoCache: "RateLimitedNoCache",
	StateUsingStaleCache:    "UsingStaleCache",
	StateNoReleasesEver:     "NoReleasesEver",
	StateMetadataOK:         "MetadataOK",
	StateLocatingAsset:      "LocatingAsset",
	StateAssetFound:         "AssetFound",
	StateAssetMissing:       "AssetMissing",
	StateDownloading:        "Downloading",
	StateBuilding:           "Building",
	StateSuccess:            "Success",
	StateFailed:             "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SourceKind says where the registered binary came from.
type SourceKind int

const (
	SourceCache SourceKind = iota
	SourceFreshDownload
	SourceBuiltFromSource
)

func (k SourceKind) String() string {
	switch k {
	case SourceCache:
		return "cache"
	case SourceFreshDownload:
		return "download"
	case SourceBuiltFromSource:
		return "build"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Result is the one binary registered by a run.
type Result struct {
	BinaryPath string
	SourceKind SourceKind
	// Version is the release name for cached and downloaded binaries and
	// the trimmed version output for builds.
	Version string
	// Stale is set when a cached binary was used because the release API
	// was rate limited, so a newer release may exist.
	Stale bool
}
