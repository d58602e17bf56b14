// Package relay implements the TCP and UDP session machinery: duplex byte
// copying with half-close, the local-role and server-role TCP accept loops,
// and the UDP NAT relay.
package relay

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gordafarid/shadowrelay/internal/logger"
	"github.com/gordafarid/shadowrelay/internal/relayerr"
)

// halfCloser is implemented by every conn type this relay copies between:
// plain net.Conn (via CloseWrite/CloseRead on TCPConn) and wireconn.Conn
// (which forwards through to the same on its embedded net.Conn).
type halfCloser interface {
	CloseWrite() error
}

type halfReadCloser interface {
	CloseRead() error
}

// duplexCopy runs two independent one-way copies, left to right and right
// to left, and returns once both have terminated. Each direction is its own
// goroutine sharing no mutable state with the other. Half-close is layered
// on top: when one direction's copy ends, it shuts down the write half of
// its destination and the read half of its source, so the peer direction
// can keep draining whatever is still in flight instead of being killed
// outright.
//
// idleTimeout, if non-zero, bounds how long either direction may go without
// forward progress: each Read refreshes the source's read deadline by
// idleTimeout, so a direction that stalls for that long is torn down rather
// than held open indefinitely, per the per-session idle timeout in the
// concurrency model. A zero idleTimeout disables the deadline.
func duplexCopy(left, right net.Conn, idleTimeout time.Duration) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		copyHalf(right, left, idleTimeout)
	}()
	go func() {
		defer wg.Done()
		copyHalf(left, right, idleTimeout)
	}()

	wg.Wait()
}

// copyHalf copies src into dst until EOF, error, or idle timeout, then
// half-closes: the write half of dst (no more data is coming from this
// direction) and the read half of src (nothing more will ever be read from
// it either).
func copyHalf(dst, src net.Conn, idleTimeout time.Duration) {
	r := io.Reader(src)
	if idleTimeout > 0 {
		r = &idleReader{Conn: src, timeout: idleTimeout}
	}

	_, err := io.Copy(dst, r)
	if err != nil {
		if isIdleTimeout(err) {
			logger.Debug(errors.Join(relayerr.ErrIdleTimeout, err))
		} else if !isExpectedCopyError(err) {
			logger.Debug(errors.Join(relayerr.ErrConnectionClosed, err))
		}
	}

	if hc, ok := dst.(halfCloser); ok {
		_ = hc.CloseWrite()
	}
	if hc, ok := src.(halfReadCloser); ok {
		_ = hc.CloseRead()
	}
}

// idleReader refreshes its underlying conn's read deadline by timeout
// before every Read, so io.Copy only blocks for up to timeout between
// chunks of activity instead of enforcing one deadline for the whole copy.
type idleReader struct {
	net.Conn
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	_ = r.Conn.SetReadDeadline(time.Now().Add(r.timeout))
	return r.Conn.Read(p)
}

func isIdleTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isExpectedCopyError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
