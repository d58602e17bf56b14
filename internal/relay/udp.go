package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gordafarid/shadowrelay/internal/balancer"
	"github.com/gordafarid/shadowrelay/internal/config"
	"github.com/gordafarid/shadowrelay/internal/cryptostream"
	"github.com/gordafarid/shadowrelay/internal/logger"
	"github.com/gordafarid/shadowrelay/internal/relayerr"
	"github.com/gordafarid/shadowrelay/internal/resolver"
	"github.com/gordafarid/shadowrelay/internal/socksaddr"
)

// MaxUDPPayloadSize bounds the receive buffer for every UDP socket this
// relay owns; any framed datagram that would exceed it is dropped.
const MaxUDPPayloadSize = 65536

// ephemeralBindRate and ephemeralBindBurst bound how fast a single UDP
// relay will open new one-shot NAT sockets. A flood of datagrams aimed at a
// forbidden or unreachable target shouldn't be able to exhaust ephemeral
// ports or file descriptors before the forbidden-IP check or a dial
// timeout has a chance to reject it.
const (
	ephemeralBindRate  = 500
	ephemeralBindBurst = 100
)

func newEphemeralLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(ephemeralBindRate), ephemeralBindBurst)
}

// encryptDatagram encrypts plaintext as a single datagram: a fresh IV
// (omitted entirely for IV-less methods) followed by the ciphertext.
func encryptDatagram(method cryptostream.Method, key, plaintext []byte) ([]byte, error) {
	ivSize, err := cryptostream.IVSize(method)
	if err != nil {
		return nil, err
	}
	var iv []byte
	if ivSize > 0 {
		iv, err = cryptostream.NewIV(ivSize)
		if err != nil {
			return nil, err
		}
	}
	t, err := cryptostream.NewTransform(method, key, iv, cryptostream.Encrypt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(iv)+len(plaintext))
	out = append(out, iv...)
	out = t.Update(out, plaintext)
	return out, nil
}

// decryptDatagram reverses encryptDatagram: it reads the leading IV (if the
// method has one) and decrypts the remainder.
func decryptDatagram(method cryptostream.Method, key, datagram []byte) ([]byte, error) {
	ivSize, err := cryptostream.IVSize(method)
	if err != nil {
		return nil, err
	}
	if len(datagram) < ivSize {
		return nil, relayerr.ErrShortIV
	}
	iv, ciphertext := datagram[:ivSize], datagram[ivSize:]
	t, err := cryptostream.NewTransform(method, key, iv, cryptostream.Decrypt)
	if err != nil {
		return nil, err
	}
	return t.Update(nil, ciphertext), nil
}

// splitAddrPayload parses a leading socksaddr.Addr off buf and returns it
// alongside the remaining payload bytes.
func splitAddrPayload(buf []byte) (socksaddr.Addr, []byte, error) {
	r := &sliceReader{buf: buf}
	addr, err := socksaddr.Read(context.Background(), r)
	if err != nil {
		return socksaddr.Addr{}, nil, err
	}
	return addr, buf[r.off:], nil
}

type sliceReader struct {
	buf []byte
	off int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.off >= len(s.buf) {
		return 0, errors.New("relay: short datagram")
	}
	n := copy(p, s.buf[s.off:])
	s.off += n
	return n, nil
}

// UDPServer is the server-role UDP relay for one configured backend.
type UDPServer struct {
	sc       config.ServerConfig
	key      []byte
	resolver *resolver.Resolver
	timeout  time.Duration

	conn    *net.UDPConn
	sendMu  sync.Mutex
	limiter *rate.Limiter
}

// NewUDPServer builds a UDPServer for one ServerConfig.
func NewUDPServer(sc config.ServerConfig, res *resolver.Resolver, timeout time.Duration) *UDPServer {
	keySize, _ := cryptostream.KeySize(sc.Method)
	return &UDPServer{
		sc:       sc,
		key:      cryptostream.DeriveKey([]byte(sc.Password), keySize),
		resolver: res,
		timeout:  timeout,
		limiter:  newEphemeralLimiter(),
	}
}

// Serve binds a UDP socket at sc.Address and relays datagrams until ctx is
// cancelled.
func (u *UDPServer) Serve(ctx context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", u.sc.Address)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	u.conn = conn
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, MaxUDPPayloadSize)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		datagram := append([]byte(nil), buf[:n]...)
		go u.handleDatagram(ctx, datagram, src)
	}
}

func (u *UDPServer) handleDatagram(ctx context.Context, datagram []byte, src *net.UDPAddr) {
	plaintext, err := decryptDatagram(u.sc.Method, u.key, datagram)
	if err != nil {
		logger.Debug("udp decrypt:", err)
		return
	}
	addr, payload, err := splitAddrPayload(plaintext)
	if err != nil {
		logger.Debug("udp parse address:", err)
		return
	}
	ip, err := u.resolver.Resolve(ctx, addr)
	if err != nil {
		if errors.Is(err, relayerr.ErrForbidden) {
			logger.Warn(errors.Join(relayerr.ErrForbidden, errors.New(addr.String())))
		} else {
			logger.Debug("udp resolve target:", err)
		}
		return
	}
	target := &net.UDPAddr{IP: ip, Port: int(addr.Port)}

	if !u.limiter.Allow() {
		logger.Warn("udp ephemeral bind rate exceeded, dropping datagram for ", addr.String())
		return
	}
	ephemeral, err := net.ListenUDP("udp", nil)
	if err != nil {
		logger.Warn("udp ephemeral bind:", err)
		return
	}
	defer ephemeral.Close()

	ephemeral.SetWriteDeadline(time.Now().Add(u.timeout))
	if _, err := ephemeral.WriteToUDP(payload, target); err != nil {
		logger.Warn("udp send to target:", err)
		return
	}

	reply := make([]byte, MaxUDPPayloadSize)
	ephemeral.SetReadDeadline(time.Now().Add(u.timeout))
	n, _, err := ephemeral.ReadFromUDP(reply)
	if err != nil {
		logger.Debug("udp reply timeout:", err)
		return
	}

	out := append(append([]byte(nil), addr.Bytes()...), reply[:n]...)
	encrypted, err := encryptDatagram(u.sc.Method, u.key, out)
	if err != nil {
		logger.Warn("udp encrypt reply:", err)
		return
	}
	if len(encrypted) > MaxUDPPayloadSize {
		logger.Warn("udp reply exceeds max payload size, dropping")
		return
	}

	u.sendMu.Lock()
	u.conn.SetWriteDeadline(time.Now().Add(u.timeout))
	_, err = u.conn.WriteToUDP(encrypted, src)
	u.sendMu.Unlock()
	if err != nil {
		logger.Warn("udp send-back timeout:", err)
	}
}

// UDPLocal is the local-role UDP relay: it receives plaintext
// SOCKS5-Address-framed datagrams from a UDP_ASSOCIATE client, encrypts and
// forwards them to a round-robin-picked backend, and relays the decrypted
// reply back to the originating client address.
type UDPLocal struct {
	cfg      *config.Config
	lb       *balancer.RoundRobin[config.ServerConfig]
	resolver *resolver.Resolver
	timeout  time.Duration

	conn    *net.UDPConn
	limiter *rate.Limiter
}

// NewUDPLocal builds a UDPLocal relay over cfg's server pool.
func NewUDPLocal(cfg *config.Config, res *resolver.Resolver) *UDPLocal {
	return &UDPLocal{
		cfg:      cfg,
		lb:       balancer.New(cfg.Servers),
		resolver: res,
		timeout:  cfg.UDPTimeoutDuration(),
		limiter:  newEphemeralLimiter(),
	}
}

// Listen binds a UDP socket at cfg.Local and returns its bound address, the
// one a SOCKS5 UDP_ASSOCIATE reply hands to clients. It must be called, and
// must succeed, before Serve.
func (u *UDPLocal) Listen() (net.Addr, error) {
	laddr, err := net.ResolveUDPAddr("udp", u.cfg.Local)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	u.conn = conn
	return conn.LocalAddr(), nil
}

// Serve runs the accept loop over the socket Listen already bound.
func (u *UDPLocal) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		u.conn.Close()
	}()

	buf := make([]byte, MaxUDPPayloadSize)
	for {
		n, src, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		datagram := append([]byte(nil), buf[:n]...)
		go u.handleDatagram(ctx, datagram, src)
	}
}

func (u *UDPLocal) handleDatagram(ctx context.Context, datagram []byte, src *net.UDPAddr) {
	addr, payload, err := splitAddrPayload(datagram)
	if err != nil {
		logger.Debug("udp parse client address:", err)
		return
	}

	var backendAddr *net.UDPAddr
	var lastErr error
	sc, err := u.lb.PickWithRetry(func(candidate config.ServerConfig) bool {
		tcpAddr, err := u.resolver.ResolveHostPort(ctx, candidate.Address)
		if err != nil {
			lastErr = err
			return false
		}
		backendAddr = &net.UDPAddr{IP: tcpAddr.IP, Port: tcpAddr.Port}
		return true
	})
	if err != nil {
		logger.Warn(errors.Join(relayerr.ErrNoBackendAvailable, lastErr))
		return
	}

	keySize, _ := cryptostream.KeySize(sc.Method)
	key := cryptostream.DeriveKey([]byte(sc.Password), keySize)

	out := append(append([]byte(nil), addr.Bytes()...), payload...)
	encrypted, err := encryptDatagram(sc.Method, key, out)
	if err != nil {
		logger.Warn("udp encrypt request:", err)
		return
	}

	if !u.limiter.Allow() {
		logger.Warn("udp ephemeral bind rate exceeded, dropping datagram to ", backendAddr.String())
		return
	}
	ephemeral, err := net.ListenUDP("udp", nil)
	if err != nil {
		logger.Warn("udp ephemeral bind:", err)
		return
	}
	defer ephemeral.Close()

	ephemeral.SetWriteDeadline(time.Now().Add(u.timeout))
	if _, err := ephemeral.WriteToUDP(encrypted, backendAddr); err != nil {
		logger.Warn("udp send to backend:", err)
		return
	}

	reply := make([]byte, MaxUDPPayloadSize)
	ephemeral.SetReadDeadline(time.Now().Add(u.timeout))
	n, _, err := ephemeral.ReadFromUDP(reply)
	if err != nil {
		logger.Debug("udp backend reply timeout:", err)
		return
	}

	plaintext, err := decryptDatagram(sc.Method, key, reply[:n])
	if err != nil {
		logger.Debug("udp decrypt reply:", err)
		return
	}
	_, replyPayload, err := splitAddrPayload(plaintext)
	if err != nil {
		logger.Debug("udp parse reply address:", err)
		return
	}

	out2 := append(append([]byte(nil), addr.Bytes()...), replyPayload...)

	u.conn.SetWriteDeadline(time.Now().Add(u.timeout))
	if _, err := u.conn.WriteToUDP(out2, src); err != nil {
		logger.Warn("udp send-back to client:", err)
	}
}
