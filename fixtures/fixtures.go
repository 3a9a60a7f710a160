package fixtures

import (
	_ "embed"
)

// ConfigTemplate is written by `gateway init`.
//
//go:embed config/gateway.yaml.template
var ConfigTemplate []byte

// Sample upstream documents, as served by a CometBFT node and an operator
// address book.
var (
	//go:embed upstream/addrbook.json
	AddressBook []byte

	//go:embed upstream/net_info.json
	NetInfo []byte
)
