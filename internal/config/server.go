package config

import (
	"net"
	"time"
)

// ConnTimeout returns this server's per-connection timeout as a
// time.Duration, falling back to the global idle timeout when unset.
func (sc ServerConfig) ConnTimeout(c *Config) time.Duration {
	t := sc.Timeout
	if t == 0 {
		t = c.IdleTimeout
	}
	return time.Duration(t) * time.Second
}

// UDPTimeoutDuration returns the configured UDP per-datagram deadline.
func (c *Config) UDPTimeoutDuration() time.Duration {
	return time.Duration(c.UDPTimeout) * time.Second
}

// HasPlugin reports whether this server should be fronted by a SIP003
// plugin subprocess rather than dialed directly.
func (sc ServerConfig) HasPlugin() bool {
	return sc.Plugin != nil && len(sc.Plugin.Path) > 0
}

// ApplyTCPTuning applies this config's TCPNoDelay/TCPKeepAlive knobs to conn
// when it is a *net.TCPConn. Non-TCP conns (e.g. in tests) are left alone.
func (c *Config) ApplyTCPTuning(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if c.TCPNoDelay {
		_ = tc.SetNoDelay(true)
	}
	if c.TCPKeepAlive > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(time.Duration(c.TCPKeepAlive) * time.Second)
	}
}
