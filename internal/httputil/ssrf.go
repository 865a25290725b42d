package httputil

import (
	"fmt"
	"net"
)

var blockedRanges = []struct {
	kind string
	is   func(net.IP) bool
}{
	{"private", net.IP.IsPrivate},
	{"loopback", net.IP.IsLoopback},
	{"link-local", net.IP.IsLinkLocalUnicast},
	{"link-local multicast", net.IP.IsLinkLocalMulticast},
	{"multicast", net.IP.IsMulticast},
	{"unspecified", net.IP.IsUnspecified},
}

// ValidateIP returns an error when ip is not a public unicast address.
// Link-local covers the cloud metadata endpoint (169.254.169.254).
func ValidateIP(ip net.IP, host string) error {
	for _, r := range blockedRanges {
		if r.is(ip) {
			return fmt.Errorf("refusing redirect to %s IP: %s (%s)", r.kind, host, ip)
		}
	}
	return nil
}
