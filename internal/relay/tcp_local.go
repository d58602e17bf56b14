package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gordafarid/shadowrelay/internal/balancer"
	"github.com/gordafarid/shadowrelay/internal/config"
	"github.com/gordafarid/shadowrelay/internal/cryptostream"
	"github.com/gordafarid/shadowrelay/internal/logger"
	"github.com/gordafarid/shadowrelay/internal/relayerr"
	"github.com/gordafarid/shadowrelay/internal/resolver"
	"github.com/gordafarid/shadowrelay/internal/socks5"
	"github.com/gordafarid/shadowrelay/internal/socksaddr"
	"github.com/gordafarid/shadowrelay/internal/wireconn"
)

// Local is the local-role TCP relay: it exposes a SOCKS5 endpoint, picks a
// backend server per accepted client via round-robin, and forwards
// encrypted bytes over a single persistent TCP connection per session.
type Local struct {
	cfg      *config.Config
	lb       *balancer.RoundRobin[config.ServerConfig]
	resolver *resolver.Resolver
	udpAddr  net.Addr // this local instance's bound UDP relay address, nil if UDP disabled
}

// NewLocal builds a Local relay over cfg's server pool. udpAddr is the
// address of the already-bound UDP relay socket, used to answer
// UDP_ASSOCIATE requests; pass nil when UDP is disabled.
func NewLocal(cfg *config.Config, res *resolver.Resolver, udpAddr net.Addr) *Local {
	return &Local{
		cfg:      cfg,
		lb:       balancer.New(cfg.Servers),
		resolver: res,
		udpAddr:  udpAddr,
	}
}

// Serve accepts client connections on cfg.Local until ctx is cancelled or
// the listener errors.
func (l *Local) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Local)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn(errors.Join(relayerr.ErrAcceptFailed, err))
			continue
		}
		go l.handle(ctx, conn)
	}
}

func (l *Local) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	l.cfg.ApplyTCPTuning(conn)

	if err := socks5.Handshake(ctx, conn); err != nil {
		logger.Debug("socks5 handshake:", err)
		return
	}

	cmd, addr, err := socks5.ReadRequest(ctx, conn)
	if err != nil {
		logger.Debug("socks5 request:", err)
		_ = socks5.WriteReply(ctx, conn, socks5.ReplyGeneralFailure, zeroAddr)
		return
	}

	switch cmd {
	case socks5.CmdBind:
		_ = socks5.WriteReply(ctx, conn, socks5.ReplyCommandNotSupported, zeroAddr)
	case socks5.CmdUDPAssociate:
		l.handleUDPAssociate(ctx, conn)
	case socks5.CmdConnect:
		l.handleConnect(ctx, conn, addr)
	default:
		_ = socks5.WriteReply(ctx, conn, socks5.ReplyCommandNotSupported, zeroAddr)
	}
}

func (l *Local) handleUDPAssociate(ctx context.Context, conn net.Conn) {
	if !l.cfg.UDPEnabled() || l.udpAddr == nil {
		_ = socks5.WriteReply(ctx, conn, socks5.ReplyCommandNotSupported, zeroAddr)
		return
	}
	bound := zeroAddr
	if ua, ok := l.udpAddr.(*net.UDPAddr); ok {
		bound = socksaddr.NewIP(ua.IP, uint16(ua.Port))
	}
	if err := socks5.WriteReply(ctx, conn, socks5.ReplySucceeded, bound); err != nil {
		return
	}
	// The control connection anchors the association's lifetime: hold it
	// open, discarding anything the client sends, until it closes.
	_, _ = io.Copy(io.Discard, conn)
}

func (l *Local) handleConnect(ctx context.Context, conn net.Conn, dst socksaddr.Addr) {
	backendConn, sc, err := l.dialBackend(ctx)
	if err != nil {
		logger.Warn(errors.Join(relayerr.ErrNoBackendAvailable, err))
		_ = socks5.WriteReply(ctx, conn, replyCodeFor(err), zeroAddr)
		return
	}
	defer backendConn.Close()

	bound := tcpAddrToSocksAddr(conn.LocalAddr())
	if err := socks5.WriteReply(ctx, conn, socks5.ReplySucceeded, bound); err != nil {
		return
	}

	key := cryptostream.DeriveKey([]byte(sc.Password), mustKeySize(sc.Method))
	encrypted := wireconn.New(backendConn, sc.Method, key)
	if _, err := encrypted.Write(dst.Bytes()); err != nil {
		logger.Debug("write destination address:", err)
		return
	}

	duplexCopy(conn, encrypted, sc.ConnTimeout(l.cfg))
}

// dialBackend tries each configured server in round-robin order, up to the
// pool size times, returning the first one that accepts a TCP connection.
func (l *Local) dialBackend(ctx context.Context) (net.Conn, config.ServerConfig, error) {
	var conn net.Conn
	var lastErr error
	sc, err := l.lb.PickWithRetry(func(candidate config.ServerConfig) bool {
		tcpAddr, err := l.resolver.ResolveHostPort(ctx, candidate.Address)
		if err != nil {
			lastErr = err
			return false
		}
		c, err := net.DialTimeout("tcp", tcpAddr.String(), candidate.ConnTimeout(l.cfg))
		if err != nil {
			lastErr = err
			return false
		}
		conn = c
		return true
	})
	if err != nil {
		if lastErr != nil {
			return nil, config.ServerConfig{}, lastErr
		}
		return nil, config.ServerConfig{}, relayerr.ErrNoBackendAvailable
	}
	return conn, sc, nil
}

var zeroAddr = socksaddr.NewIP(net.IPv4zero, 0)

func tcpAddrToSocksAddr(a net.Addr) socksaddr.Addr {
	tcpAddr, ok := a.(*net.TCPAddr)
	if !ok {
		return zeroAddr
	}
	return socksaddr.NewIP(tcpAddr.IP, uint16(tcpAddr.Port))
}

func mustKeySize(method cryptostream.Method) int {
	size, err := cryptostream.KeySize(method)
	if err != nil {
		return 0
	}
	return size
}

// replyCodeFor maps a dial/connect failure to the SOCKS5 reply code the
// client should see: refused/reset/aborted connects map to HostUnreachable,
// anything else (DNS failure, routing failure, timeout) maps to
// NetworkUnreachable.
func replyCodeFor(err error) byte {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return socks5.ReplyHostUnreachable
	}
	return socks5.ReplyNetworkUnreachable
}
