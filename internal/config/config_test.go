package config

import (
	"net"
	"testing"

	"github.com/gordafarid/shadowrelay/internal/cryptostream"
)

func validConfig() Config {
	return Config{
		Servers: []ServerConfig{
			{Address: "example.com:8388", Password: "hunter2", Method: cryptostream.MethodAES256CFB},
		},
	}
}

func TestValidateRejectsNoServers(t *testing.T) {
	c := Config{}
	if err := c.validate(); err != ErrNoServers {
		t.Fatalf("got %v, want ErrNoServers", err)
	}
}

func TestValidateRejectsUnsupportedMethod(t *testing.T) {
	c := validConfig()
	c.Servers[0].Method = "rot13"
	if err := c.validate(); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}

func TestValidateDefaultsModeToTCP(t *testing.T) {
	c := validConfig()
	if err := c.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Mode != ModeTCP {
		t.Fatalf("got mode %q, want tcp", c.Mode)
	}
}

func TestApplyDefaultValues(t *testing.T) {
	c := validConfig()
	if err := c.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	c.applyDefaultValues()
	if c.IdleTimeout != defaultIdleTimeout {
		t.Fatalf("got IdleTimeout %d, want %d", c.IdleTimeout, defaultIdleTimeout)
	}
	if c.DNSPoolSize != defaultDNSPoolSize {
		t.Fatalf("got DNSPoolSize %d, want %d", c.DNSPoolSize, defaultDNSPoolSize)
	}
	if c.Servers[0].Timeout != c.IdleTimeout {
		t.Fatalf("got server timeout %d, want %d", c.Servers[0].Timeout, c.IdleTimeout)
	}
}

func TestTCPUDPEnabled(t *testing.T) {
	c := Config{Mode: ModeBoth}
	if !c.TCPEnabled() || !c.UDPEnabled() {
		t.Fatal("expected both enabled for ModeBoth")
	}
	c.Mode = ModeUDP
	if c.TCPEnabled() || !c.UDPEnabled() {
		t.Fatal("expected only UDP enabled for ModeUDP")
	}
}

func TestForbiddenSetLiteralAndCIDR(t *testing.T) {
	fs, err := NewForbiddenSet([]string{"10.0.0.1", "192.168.0.0/16"})
	if err != nil {
		t.Fatalf("NewForbiddenSet: %v", err)
	}
	if !fs.Contains(net.ParseIP("10.0.0.1")) {
		t.Fatal("expected 10.0.0.1 to be forbidden")
	}
	if !fs.Contains(net.ParseIP("192.168.5.5")) {
		t.Fatal("expected 192.168.5.5 to be forbidden by CIDR")
	}
	if fs.Contains(net.ParseIP("8.8.8.8")) {
		t.Fatal("did not expect 8.8.8.8 to be forbidden")
	}
}

func TestForbiddenSetRejectsGarbage(t *testing.T) {
	if _, err := NewForbiddenSet([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for unparsable entry")
	}
}

func TestApplyTCPTuningIgnoresNonTCPConn(t *testing.T) {
	c := &Config{TCPNoDelay: true, TCPKeepAlive: 30}
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// net.Pipe conns are not *net.TCPConn; ApplyTCPTuning must be a no-op
	// rather than panicking on the type assertion.
	c.ApplyTCPTuning(client)
}

func TestApplyTCPTuningSetsRealTCPConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer (<-accepted).Close()

	c := &Config{TCPNoDelay: true, TCPKeepAlive: 30}
	c.ApplyTCPTuning(conn) // must not error or panic on a real *net.TCPConn
}
