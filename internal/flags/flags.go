// Package flags declares the command-line flags shared by the local and
// server entry points: package-level vars populated from flag.StringVar
// in init, so every entry point sees them parsed before main runs.
package flags

import "flag"

// The program's flags.
var (
	// CfgPathFlag is the path to the TOML configuration file.
	CfgPathFlag string

	// LogLevelFlag selects the minimum log level logged at startup (debug,
	// info, warn, error).
	LogLevelFlag string
)

const (
	defaultConfigFilePath = "./config.toml"
	defaultLogLevel       = "debug"
)

func init() {
	flag.StringVar(&CfgPathFlag, "config", defaultConfigFilePath, "path to config file")
	flag.StringVar(&LogLevelFlag, "logLevel", defaultLogLevel, "minimum log level (debug, info, warn, error)")
	flag.Parse()
}
