package log

import "net/url"

// SanitizeURL removes credentials, query strings, and fragments from a URL
// before it is logged. Release download URLs can carry signed query
// parameters and source URLs can embed tokens in the userinfo part.
// Unparseable input is returned unchanged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.User != nil {
		u.User = url.User("REDACTED")
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
