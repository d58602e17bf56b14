// Package socks5 implements the client-facing SOCKS5 codec: handshake,
// request/reply headers, and address fields. Only the no-authentication
// method is offered (username/password negotiation is out of scope), and
// every operation returns an error instead of panicking on a protocol
// violation, so a misbehaving client tears down its own session only.
package socks5

import (
	"context"
	"fmt"

	"github.com/gordafarid/shadowrelay/internal/relayerr"
	"github.com/gordafarid/shadowrelay/internal/socksaddr"
)

const Version byte = 0x05

// Authentication methods (RFC 1928 §3).
const (
	MethodNoAuth       byte = 0x00
	MethodNoAcceptable byte = 0xFF
)

// Commands (RFC 1928 §4).
const (
	CmdConnect      byte = 0x01
	CmdBind         byte = 0x02
	CmdUDPAssociate byte = 0x03
)

// Reply codes (RFC 1928 §6).
const (
	ReplySucceeded           byte = 0x00
	ReplyGeneralFailure      byte = 0x01
	ReplyNetworkUnreachable  byte = 0x03
	ReplyHostUnreachable     byte = 0x04
	ReplyConnectionRefused   byte = 0x05
	ReplyCommandNotSupported byte = 0x07
	ReplyAddressNotSupported byte = 0x08
)

// rawReadWriter is the minimal surface Handshake/ReadRequest/WriteReply need;
// net.Conn satisfies it, as does anything context-aware I/O can wrap.
type rawReadWriter interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Handshake performs the greeting exchange: read the client's offered
// methods, and reply with no-auth if offered, else reply 0xFF and return
// relayerr.ErrAuthUnsupported so the caller closes the session.
func Handshake(ctx context.Context, rw rawReadWriter) error {
	hdr := make([]byte, 2)
	if _, err := readFull(ctx, rw, hdr); err != nil {
		return fmt.Errorf("socks5: read greeting header: %w", err)
	}
	if hdr[0] != Version {
		return fmt.Errorf("%w: %d", relayerr.ErrUnsupportedVersion, hdr[0])
	}
	nMethods := hdr[1]
	if nMethods == 0 {
		return fmt.Errorf("%w: zero methods offered", relayerr.ErrMalformedHeader)
	}
	methods := make([]byte, nMethods)
	if _, err := readFull(ctx, rw, methods); err != nil {
		return fmt.Errorf("socks5: read methods: %w", err)
	}

	offered := false
	for _, m := range methods {
		if m == MethodNoAuth {
			offered = true
			break
		}
	}
	if !offered {
		_, _ = writeFull(ctx, rw, []byte{Version, MethodNoAcceptable})
		return relayerr.ErrAuthUnsupported
	}
	if _, err := writeFull(ctx, rw, []byte{Version, MethodNoAuth}); err != nil {
		return fmt.Errorf("socks5: write method selection: %w", err)
	}
	return nil
}

// ReadRequest reads the TCP request header and returns the command and
// destination address. A version mismatch fails with ErrUnsupportedVersion
// without touching the connection further; the caller is responsible for
// sending a reply and closing.
func ReadRequest(ctx context.Context, rw rawReadWriter) (cmd byte, addr socksaddr.Addr, err error) {
	hdr := make([]byte, 3)
	if _, err = readFull(ctx, rw, hdr); err != nil {
		return 0, socksaddr.Addr{}, fmt.Errorf("socks5: read request header: %w", err)
	}
	if hdr[0] != Version {
		return 0, socksaddr.Addr{}, fmt.Errorf("%w: %d", relayerr.ErrUnsupportedVersion, hdr[0])
	}
	cmd = hdr[1]
	// hdr[2] is RSV, always 0x00, intentionally ignored.

	addr, err = socksaddr.Read(ctx, rw)
	if err != nil {
		return 0, socksaddr.Addr{}, fmt.Errorf("socks5: read destination address: %w", err)
	}
	return cmd, addr, nil
}

// WriteReply writes the TCP response header: reply code and bound address.
// bound is typically the relay's own local socket address; SOCKS5 requires
// a well-formed address in every reply regardless of whether the client
// cares about its value.
func WriteReply(ctx context.Context, rw rawReadWriter, reply byte, bound socksaddr.Addr) error {
	out := make([]byte, 0, 3+bound.Size())
	out = append(out, Version, reply, 0x00)
	out = append(out, bound.Bytes()...)
	_, err := writeFull(ctx, rw, out)
	return err
}

func readFull(ctx context.Context, r rawReadWriter, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		total := 0
		for total < len(buf) {
			n, err := r.Read(buf[total:])
			total += n
			if err != nil {
				done <- result{total, err}
				return
			}
		}
		done <- result{total, nil}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case v := <-done:
		return v.n, v.err
	}
}

func writeFull(ctx context.Context, w rawReadWriter, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := w.Write(buf)
		done <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case v := <-done:
		return v.n, v.err
	}
}
