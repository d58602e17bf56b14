package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gordafarid/shadowrelay/internal/config"
	"github.com/gordafarid/shadowrelay/internal/cryptostream"
	"github.com/gordafarid/shadowrelay/internal/logger"
	"github.com/gordafarid/shadowrelay/internal/relayerr"
	"github.com/gordafarid/shadowrelay/internal/resolver"
	"github.com/gordafarid/shadowrelay/internal/socksaddr"
	"github.com/gordafarid/shadowrelay/internal/wireconn"
)

// Server is the server-role TCP relay for one configured backend: it
// decrypts an inbound connection, reads the embedded destination address,
// and relays plaintext bytes to the real target.
type Server struct {
	cfg         *config.Config
	sc          config.ServerConfig
	key         []byte
	resolver    *resolver.Resolver
	connTimeout time.Duration
}

// NewServer builds a Server relay for one ServerConfig.
func NewServer(cfg *config.Config, sc config.ServerConfig, res *resolver.Resolver, connTimeout time.Duration) *Server {
	keySize, _ := cryptostream.KeySize(sc.Method)
	return &Server{
		cfg:         cfg,
		sc:          sc,
		key:         cryptostream.DeriveKey([]byte(sc.Password), keySize),
		resolver:    res,
		connTimeout: connTimeout,
	}
}

// Serve accepts inbound local-role connections on sc.Address until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.sc.Address)
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
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.cfg.ApplyTCPTuning(conn)

	wc := wireconn.New(conn, s.sc.Method, s.key)

	addr, err := socksaddr.Read(ctx, wc)
	if err != nil {
		logger.Debug("read destination address:", err)
		return
	}

	ip, err := s.resolver.Resolve(ctx, addr)
	if err != nil {
		if errors.Is(err, relayerr.ErrForbidden) {
			logger.Warn(errors.Join(relayerr.ErrForbidden, errors.New(addr.String())))
		} else {
			logger.Debug("resolve target:", err)
		}
		return
	}

	target := &net.TCPAddr{IP: ip, Port: int(addr.Port)}
	targetConn, err := net.DialTimeout("tcp", target.String(), s.connTimeout)
	if err != nil {
		logger.Warn(errors.Join(relayerr.ErrServerDialFailed, err))
		return
	}
	defer targetConn.Close()

	duplexCopy(wc, targetConn, s.connTimeout)
}
