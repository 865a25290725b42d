package toolcache

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// compareVersions orders cache versions: semver versions by precedence,
// any semver above any non-semver, and non-semver strings lexically.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		if c := va.Compare(vb); c != 0 {
			return c
		}
		// "v1.2.0" and "1.2.0" are equal by precedence; keep the order stable
		return strings.Compare(a, b)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}
