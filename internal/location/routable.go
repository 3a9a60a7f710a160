package location

import (
	"net"
	"strings"

	manet "github.com/multiformats/go-multiaddr/net"
)

// IsRoutable reports whether ip can be geolocated: it must parse, and be
// neither the unspecified address nor in a private, loopback, CGNAT or
// link-local range.
func IsRoutable(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	maddr, err := manet.FromIP(parsed)
	if err != nil {
		return false
	}
	return !manet.IsIPUnspecified(maddr) && !manet.IsPrivateAddr(maddr)
}

// hostOf extracts the host from addresses such as "tcp://1.2.3.4:26656",
// "1.2.3.4:26656" or "[2001:db8::1]:26656".
func hostOf(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if i := strings.IndexByte(addr, ':'); i >= 0 && strings.Count(addr, ":") == 1 {
		return addr[:i]
	}
	return addr
}

// portOf returns the segment after the last colon of addr.
func portOf(addr string) string {
	addr = strings.TrimSpace(addr)
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return ""
	}
	return addr[i+1:]
}
