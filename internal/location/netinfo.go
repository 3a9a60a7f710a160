package location

import "strings"

// NetInfo is the node's live peer list (/net_info).
type NetInfo struct {
	Result struct {
		Peers []NetInfoPeer `json:"peers"`
	} `json:"result"`
}

type NetInfoPeer struct {
	NodeInfo struct {
		ID         string `json:"id"`
		ListenAddr string `json:"listen_addr"`
		Other      struct {
			RPCAddress string `json:"rpc_address"`
		} `json:"other"`
	} `json:"node_info"`
	RemoteIP string `json:"remote_ip"`
}

// ipCandidate extracts one possible address for a peer.
type ipCandidate struct {
	name    string
	extract func(p NetInfoPeer) string
}

// netInfoCandidates are tried in order; the first routable one wins.
var netInfoCandidates = []ipCandidate{
	{name: "remote_ip", extract: func(p NetInfoPeer) string { return p.RemoteIP }},
	{name: "listen_addr", extract: func(p NetInfoPeer) string { return hostOf(p.NodeInfo.ListenAddr) }},
	{name: "rpc_address", extract: func(p NetInfoPeer) string { return hostOf(p.NodeInfo.Other.RPCAddress) }},
}

// resolveIP returns the first routable candidate address, or "".
func resolveIP(p NetInfoPeer) string {
	for _, c := range netInfoCandidates {
		ip := strings.TrimSpace(c.extract(p))
		if IsRoutable(ip) {
			return ip
		}
	}
	return ""
}

// ParseNetInfo turns connected peers into records.
func ParseNetInfo(info *NetInfo) []PeerRecord {
	if info == nil {
		return nil
	}
	out := make([]PeerRecord, 0, len(info.Result.Peers))
	for _, p := range info.Result.Peers {
		out = append(out, PeerRecord{
			ID:   p.NodeInfo.ID,
			IP:   resolveIP(p),
			Port: portOf(p.NodeInfo.ListenAddr),
		})
	}
	return out
}
