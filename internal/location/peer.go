package location

import (
	"encoding/json"
	"net"
	"strings"
)

// PeerRecord is a candidate peer taken from one upstream source. IP is empty
// when the peer has no routable address.
type PeerRecord struct {
	ID   string `json:"id"`
	IP   string `json:"ip"`
	Port string `json:"port"`
}

func (p PeerRecord) Routable() bool {
	return p.IP != ""
}

// EnrichedPeerRecord is a routable peer with the geolocation document for
// its IP. Location is null when the lookup failed.
type EnrichedPeerRecord struct {
	PeerRecord
	Location json.RawMessage `json:"location"`
}

// Merge concatenates the lists, drops unroutable records and keeps only the
// first record seen for each IP. IPs are compared and returned in canonical
// form, so an IPv4-mapped IPv6 address matches its IPv4 spelling. Order of
// first occurrence is preserved.
func Merge(lists ...[]PeerRecord) []PeerRecord {
	seen := make(map[string]bool)
	var out []PeerRecord
	for _, list := range lists {
		for _, p := range list {
			if !p.Routable() {
				continue
			}
			p.IP = canonicalIP(p.IP)
			if seen[p.IP] {
				continue
			}
			seen[p.IP] = true
			out = append(out, p)
		}
	}
	return out
}

func canonicalIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ip
}
