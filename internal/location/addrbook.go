package location

import (
	"bytes"
	"encoding/json"
	"strings"
)

// AddressBook is the operator-published peer list (CometBFT addrbook.json).
type AddressBook struct {
	Addrs []struct {
		Addr struct {
			ID   string     `json:"id"`
			IP   string     `json:"ip"`
			Port flexString `json:"port"`
		} `json:"addr"`
	} `json:"addrs"`
}

// ParseAddressBook turns announced peers into records. Private and
// unspecified IPs become unroutable.
func ParseAddressBook(book *AddressBook) []PeerRecord {
	if book == nil {
		return nil
	}
	out := make([]PeerRecord, 0, len(book.Addrs))
	for _, a := range book.Addrs {
		ip := strings.TrimSpace(a.Addr.IP)
		if !IsRoutable(ip) {
			ip = ""
		}
		out = append(out, PeerRecord{
			ID:   a.Addr.ID,
			IP:   ip,
			Port: string(a.Addr.Port),
		})
	}
	return out
}

// flexString accepts a JSON string or number. Address books encode ports as
// numbers, node RPC as strings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
