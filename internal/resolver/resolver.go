// Package resolver turns a SOCKS5 address into a concrete socket address,
// off the accept path, enforcing the forbidden-IP set before any connect.
package resolver

import (
	"context"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gordafarid/shadowrelay/internal/config"
	"github.com/gordafarid/shadowrelay/internal/relayerr"
	"github.com/gordafarid/shadowrelay/internal/socksaddr"
)

// Resolver resolves socksaddr.Addr values through a fixed-size worker pool,
// so a slow or blocking DNS lookup never stalls the accept loop. Backend
// host:port answers are cached per literal string with no expiry, matching
// the minimal design the duplex relay needs; a TTL is a possible later
// extension.
type Resolver struct {
	forbidden  *config.ForbiddenSet
	jobs       chan resolveJob
	backendMu  sync.RWMutex
	backendTTL map[string]*net.TCPAddr
	backendSF  singleflight.Group
}

type resolveJob struct {
	host   string
	result chan<- resolveResult
}

type resolveResult struct {
	ip  net.IP
	err error
}

// New starts a Resolver backed by poolSize worker goroutines, each running
// blocking net.LookupIP calls. poolSize <= 0 defaults to 4, matching this
// relay's documented default DNS worker pool size.
func New(forbidden *config.ForbiddenSet, poolSize int) *Resolver {
	if poolSize <= 0 {
		poolSize = 4
	}
	r := &Resolver{
		forbidden:  forbidden,
		jobs:       make(chan resolveJob),
		backendTTL: make(map[string]*net.TCPAddr),
	}
	for i := 0; i < poolSize; i++ {
		go r.worker()
	}
	return r
}

func (r *Resolver) worker() {
	for job := range r.jobs {
		ips, err := net.LookupIP(job.host)
		if err != nil {
			job.result <- resolveResult{err: err}
			continue
		}
		if len(ips) == 0 {
			job.result <- resolveResult{err: relayerr.ErrNoDNSAnswer}
			continue
		}
		job.result <- resolveResult{ip: ips[0]}
	}
}

// Resolve turns addr into the IP to dial (callers pair it with addr.Port to
// build a net.TCPAddr or net.UDPAddr), enforcing the forbidden-IP set on the
// resolved IP.
// IPv4/IPv6 addresses pass through without touching the worker pool; domain
// names are dispatched to a worker and only the first answer is used.
func (r *Resolver) Resolve(ctx context.Context, addr socksaddr.Addr) (net.IP, error) {
	var ip net.IP
	switch addr.Type {
	case socksaddr.ATypIPv4, socksaddr.ATypIPv6:
		ip = net.IP(addr.Host)
	case socksaddr.ATypDomain:
		resolved, err := r.lookup(ctx, string(addr.Host))
		if err != nil {
			return nil, err
		}
		ip = resolved
	default:
		return nil, relayerr.ErrNoDNSAnswer
	}
	if r.forbidden.Contains(ip) {
		return nil, relayerr.ErrForbidden
	}
	return ip, nil
}

func (r *Resolver) lookup(ctx context.Context, host string) (net.IP, error) {
	result := make(chan resolveResult, 1)
	select {
	case r.jobs <- resolveJob{host: host, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-result:
		return res.ip, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResolveHostPort resolves a "host:port" string, as used when dialing a
// configured backend server rather than a client-supplied SOCKS5 address.
// Answers are cached by the literal hostport string for the Resolver's
// lifetime. Concurrent first-time lookups of the same hostport (e.g. several
// client connections picking the same backend before it's ever been
// resolved) collapse into a single net.LookupIP call via singleflight,
// rather than firing one DNS query per waiting caller.
func (r *Resolver) ResolveHostPort(ctx context.Context, hostport string) (*net.TCPAddr, error) {
	r.backendMu.RLock()
	cached, ok := r.backendTTL[hostport]
	r.backendMu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := r.backendSF.Do(hostport, func() (any, error) {
		host, portStr, err := net.SplitHostPort(hostport)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, err
		}
		var addr socksaddr.Addr
		if ip := net.ParseIP(host); ip != nil {
			addr = socksaddr.NewIP(ip, uint16(port))
		} else {
			addr = socksaddr.NewDomain(host, uint16(port))
		}
		ip, err := r.Resolve(ctx, addr)
		if err != nil {
			return nil, err
		}
		tcpAddr := &net.TCPAddr{IP: ip, Port: port}

		r.backendMu.Lock()
		r.backendTTL[hostport] = tcpAddr
		r.backendMu.Unlock()
		return tcpAddr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*net.TCPAddr), nil
}
