package config

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// Network is one entry of the network table.
type Network struct {
	RPCURL string `toml:"rpc_url"`
}

// Networks maps a network name to its endpoints.
type Networks map[string]Network

// DefaultNetworks are the public Sui fullnodes plus a local node.
func DefaultNetworks() Networks {
	return Networks{
		"mainnet":  {RPCURL: "https://fullnode.mainnet.sui.io:443"},
		"testnet":  {RPCURL: "https://fullnode.testnet.sui.io:443"},
		"devnet":   {RPCURL: "https://fullnode.devnet.sui.io:443"},
		"localnet": {RPCURL: "http://127.0.0.1:9000"},
	}
}

type networksFile struct {
	Networks Networks `toml:"networks"`
}

// LoadNetworks returns the default table overlaid with entries from the TOML
// file at path. An empty path returns the defaults.
//
//	[networks.staging]
//	rpc_url = "https://rpc.staging.example:443"
func LoadNetworks(path string) (Networks, error) {
	networks := DefaultNetworks()
	if path == "" {
		return networks, nil
	}

	var f networksFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("RECONCILER_NETWORKS_FILE: %w", err)
	}
	for name, n := range f.Networks {
		if n.RPCURL == "" {
			return nil, fmt.Errorf("RECONCILER_NETWORKS_FILE: network %q has no rpc_url", name)
		}
		networks[name] = n
	}
	return networks, nil
}

// Names returns the network names in sorted order.
func (n Networks) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
