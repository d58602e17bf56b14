// Package config provides TOML configuration loading for both relay roles,
// following the same sync.Once-guarded singleton loader shape used
// throughout this codebase.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/gordafarid/shadowrelay/internal/cryptostream"
	"github.com/gordafarid/shadowrelay/internal/logger"
)

// Mode selects which transport(s) a role serves.
type Mode string

const (
	ModeTCP  Mode = "tcp"
	ModeUDP  Mode = "udp"
	ModeBoth Mode = "both"
)

const (
	defaultIdleTimeout = 300 // seconds
	defaultDNSPoolSize = 4
	defaultUDPTimeout  = 5 // seconds
)

// PluginConfig describes a SIP003 plugin subprocess that should front a
// server's real address.
type PluginConfig struct {
	Path string `toml:"path"` // executable path
	Opts string `toml:"opts"` // passed verbatim as SS_PLUGIN_OPTIONS
}

// ServerConfig is one upstream shadowsocks-style backend.
type ServerConfig struct {
	Address  string              `toml:"address"` // host:port, literal or DNS name
	Password string              `toml:"password"`
	Method   cryptostream.Method `toml:"method"`
	Timeout  int                 `toml:"timeout"` // per-connection seconds, 0 = use global default
	Plugin   *PluginConfig       `toml:"plugin"`
}

// Config is the root configuration consumed by both cmd/client (local role)
// and cmd/server (server role).
type Config struct {
	Local        string         `toml:"local"` // loopback listen address, local role only
	Servers      []ServerConfig `toml:"servers"`
	Mode         Mode           `toml:"mode"`
	ForbiddenIPs []string       `toml:"forbiddenIPs"`
	IdleTimeout  int            `toml:"idleTimeout"` // seconds, 0 = default
	DNSPoolSize  int            `toml:"dnsPoolSize"` // 0 = default
	UDPTimeout   int            `toml:"udpTimeout"`  // seconds, 0 = default
	TCPNoDelay   bool           `toml:"tcpNoDelay"`  // disable Nagle's algorithm on accepted sockets
	TCPKeepAlive int            `toml:"tcpKeepAlive"` // seconds, 0 = leave the accepted socket's keepalive setting unchanged
}

var (
	cfg      *Config
	loadOnce sync.Once
	loadErr  error
)

// Load reads and validates the TOML file at path, caching the result. Later
// calls (even with a different path) return the first-loaded Config, matching
// the singleton-loader discipline the rest of this codebase uses.
func Load(path string) (*Config, error) {
	loadOnce.Do(func() {
		var c Config
		if _, err := toml.DecodeFile(path, &c); err != nil {
			loadErr = errors.Join(ErrInvalidConfigFile, err)
			return
		}
		if err := c.validate(); err != nil {
			loadErr = err
			return
		}
		c.applyDefaultValues()
		cfg = &c
	})
	return cfg, loadErr
}

// MustLoad is Load but fatal on error, for use in cmd/ main functions where
// a bad config is unrecoverable.
func MustLoad(path string) *Config {
	c, err := Load(path)
	if err != nil {
		logger.Fatal(err)
	}
	return c
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return ErrNoServers
	}
	switch c.Mode {
	case "":
		c.Mode = ModeTCP
	case ModeTCP, ModeUDP, ModeBoth:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	var missing []string
	for i, sc := range c.Servers {
		if len(sc.Address) == 0 {
			missing = append(missing, fmt.Sprintf("servers[%d].address", i))
		}
		if len(sc.Method) == 0 {
			missing = append(missing, fmt.Sprintf("servers[%d].method", i))
			continue
		}
		if !cryptostream.IsSupported(sc.Method) {
			return fmt.Errorf("config: servers[%d].method %q is not supported", i, sc.Method)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) applyDefaultValues() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.DNSPoolSize == 0 {
		c.DNSPoolSize = defaultDNSPoolSize
	}
	if c.UDPTimeout == 0 {
		c.UDPTimeout = defaultUDPTimeout
	}
	for i := range c.Servers {
		if c.Servers[i].Timeout == 0 {
			c.Servers[i].Timeout = c.IdleTimeout
		}
	}
}

// TCPEnabled reports whether this role should run the TCP relay.
func (c *Config) TCPEnabled() bool { return c.Mode == ModeTCP || c.Mode == ModeBoth }

// UDPEnabled reports whether this role should run the UDP relay.
func (c *Config) UDPEnabled() bool { return c.Mode == ModeUDP || c.Mode == ModeBoth }
