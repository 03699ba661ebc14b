package constants

import "time"

// Blockchain Constants
const (
	// BlockInterval is the TRON block production interval
	BlockInterval = 3 * time.Second

	// SunPerTRX is the number of sun in one TRX
	SunPerTRX = 1_000_000
)

// Network names accepted in configuration
const (
	NetworkMainnet = "mainnet"
	NetworkShasta  = "shasta"
	NetworkNile    = "nile"
)

// networkEndpoints maps a network name to its public HTTP API
var networkEndpoints = map[string]string{
	NetworkMainnet: DefaultRPCEndpoint,
	NetworkShasta:  "https://api.shasta.trongrid.io",
	NetworkNile:    "https://nile.trongrid.io",
}

// EndpointForNetwork returns the public endpoint of a known network
func EndpointForNetwork(network string) (string, bool) {
	ep, ok := networkEndpoints[network]
	return ep, ok
}

// IsValidNetwork reports whether network is a known network name
func IsValidNetwork(network string) bool {
	_, ok := networkEndpoints[network]
	return ok
}
