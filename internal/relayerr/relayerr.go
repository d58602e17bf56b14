// Package relayerr is the sentinel-error taxonomy shared by every relay
// package: protocol, crypto, resolution, transport, and configuration
// failures, grouped the way the rest of this codebase groups its error vars.
package relayerr

import "errors"

// Protocol errors: SOCKS5 version mismatch, malformed header, unsupported
// command.
var (
	ErrUnsupportedVersion   = errors.New("relay: unsupported SOCKS5 version")
	ErrAuthUnsupported      = errors.New("relay: client offered no acceptable auth method")
	ErrCommandNotSupported  = errors.New("relay: SOCKS5 command not supported")
	ErrMalformedHeader      = errors.New("relay: malformed SOCKS5 header")
	ErrUDPAssociateDisabled = errors.New("relay: UDP is disabled for this server")
)

// Crypto errors: unknown method, short IV read, cipher failure. These are
// distinct values from cryptostream's own sentinels of similar names;
// errors.Is does not match one against the other.
var (
	ErrUnsupportedMethod = errors.New("relay: unsupported cipher method")
	ErrInvalidKey        = errors.New("relay: invalid key for cipher method")
	ErrShortIV           = errors.New("relay: short IV read")
	ErrCipherFailure     = errors.New("relay: cipher operation failed")
)

// Resolution errors: no DNS answer, forbidden IP.
var (
	ErrNoDNSAnswer = errors.New("relay: no DNS answer for host")
	ErrForbidden   = errors.New("relay: resolved IP is forbidden")
)

// Transport errors: connect refused/reset/aborted, broken pipe, read/write
// error, timeout.
var (
	ErrConnectionRefused  = errors.New("relay: connection refused")
	ErrHostUnreachable    = errors.New("relay: host unreachable")
	ErrNetworkUnreachable = errors.New("relay: network unreachable")
	ErrConnectionClosed   = errors.New("relay: connection unexpectedly closed")
	ErrAcceptFailed       = errors.New("relay: failed to accept incoming connection")
	ErrIdleTimeout        = errors.New("relay: session idle timeout")
	ErrServerDialFailed   = errors.New("relay: server failed to establish connection with target")
)

// Configuration errors: fatal at startup.
var (
	ErrNoServers         = errors.New("relay: config has no servers")
	ErrNoLocalListener   = errors.New("relay: local role requires a listen address")
	ErrEmptyMethod       = errors.New("relay: server has an empty cipher method")
	ErrInvalidConfigFile = errors.New("relay: invalid config file")
)

// ErrNoBackendAvailable is logged, not propagated as a session error, when every
// backend in the load-balancer pool has failed a pick.
var ErrNoBackendAvailable = errors.New("relay: no backend available")
