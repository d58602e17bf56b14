package config

import "github.com/gordafarid/shadowrelay/internal/relayerr"

// Re-exported for callers that only import config, mirroring the relayerr
// taxonomy so config errors wrap cleanly into the rest of the relay.
var (
	ErrInvalidConfigFile = relayerr.ErrInvalidConfigFile
	ErrNoServers         = relayerr.ErrNoServers
)
