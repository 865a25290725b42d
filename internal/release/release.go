// Package release queries the GitHub "latest release" endpoint for a
// repository, retrying with exponential backoff while the API reports a
// rate limit.
//
// Resolve has three non-error outcomes, all carried in Metadata:
//
//   - a genuine release (Name set, RateLimited false)
//   - no releases published (Name empty, RateLimited false); callers fall
//     back to building from source
//   - rate limited after the retry budget or an early stop (RateLimited
//     true, Name empty)
//
// Malformed payloads and transport failures are returned as *Error.
package release

import "time"

// RateLimitMessage is the substring GitHub puts in the message of a
// rate-limit response.
const RateLimitMessage = "API rate limit exceeded"

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// Metadata describes the latest release, or why none is available.
type Metadata struct {
	Name        string
	TagName     string
	Assets      []Asset
	RateLimited bool

	// Message is the API's message field, if any. It explains rate-limit
	// and error responses.
	Message string

	// Rate holds the rate-limit counters reported with the last response.
	// Nil when the response carried no rate-limit headers.
	Rate *Rate
}

// Rate mirrors GitHub's rate-limit headers.
type Rate struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// HasRelease reports whether m names a published release.
func (m *Metadata) HasRelease() bool {
	return m != nil && !m.RateLimited && m.Name != ""
}

// FindAsset returns the asset whose name equals name exactly.
func (m *Metadata) FindAsset(name string) (Asset, bool) {
	if m == nil {
		return Asset{}, false
	}
	for _, a := range m.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// AssetNames lists the asset names, for "not available" diagnostics.
func (m *Metadata) AssetNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Assets))
	for _, a := range m.Assets {
		names = append(names, a.Name)
	}
	return names
}

// payload is the subset of the GitHub release object setup-tool reads.
// Message is only present on error or rate-limit bodies.
type payload struct {
	Name    string  `json:"name"`
	TagName string  `json:"tag_name"`
	Message string  `json:"message"`
	Assets  []Asset `json:"assets"`
}

func (p payload) metadata() *Metadata {
	md := &Metadata{
		Name:    p.Name,
		TagName: p.TagName,
		Assets:  p.Assets,
		Message: p.Message,
	}
	if md.Name == "" {
		md.Name = p.TagName
	}
	return md
}
