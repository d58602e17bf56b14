// Package wireconn wraps a net.Conn with the shadowsocks-style stream-cipher
// framing: a per-connection IV sent once in cleartext, then a continuous
// transformed byte stream. No length prefix, no nonce-per-message; unlike
// an AEAD channel, the cipher here is keyed once and just keeps running.
package wireconn

import (
	"io"
	"net"
	"sync"

	"github.com/gordafarid/shadowrelay/internal/cryptostream"
)

// Conn is a net.Conn whose Read decrypts and whose Write encrypts, each
// direction lazily generating or consuming its own IV on first use. It's
// like a phone line where the first few words exchanged are the two ends
// agreeing, in the clear, on which secret code they'll speak for the rest
// of the call.
type Conn struct {
	net.Conn
	method cryptostream.Method
	key    []byte

	encMu  sync.Once
	enc    *cryptostream.Transform
	encErr error

	decMu   sync.Once
	dec     *cryptostream.Transform
	decErr  error
	pending []byte // leftover decrypted bytes from the last Read
}

// New wraps conn for method, keyed by key. Key must already be the right
// size for method (see cryptostream.DeriveKey).
func New(conn net.Conn, method cryptostream.Method, key []byte) *Conn {
	return &Conn{Conn: conn, method: method, key: key}
}

// Write encrypts b and writes it to the underlying connection, generating
// and sending a fresh IV first if this is the first write on this Conn.
func (c *Conn) Write(b []byte) (int, error) {
	if err := c.ensureEncryptor(); err != nil {
		return 0, err
	}
	ciphertext := c.enc.Update(nil, b)
	if _, err := c.Conn.Write(ciphertext); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *Conn) ensureEncryptor() error {
	c.encMu.Do(func() {
		ivSize, err := cryptostream.IVSize(c.method)
		if err != nil {
			c.encErr = err
			return
		}
		iv, err := cryptostream.NewIV(ivSize)
		if err != nil {
			c.encErr = err
			return
		}
		if ivSize > 0 {
			if _, err := c.Conn.Write(iv); err != nil {
				c.encErr = err
				return
			}
		}
		c.enc, c.encErr = cryptostream.NewTransform(c.method, c.key, iv, cryptostream.Encrypt)
	})
	return c.encErr
}

// Read decrypts from the underlying connection into b, first consuming the
// peer's cleartext IV if this is the first read on this Conn. A short IV
// read before the full size is accumulated surfaces as io.ErrUnexpectedEOF.
func (c *Conn) Read(b []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(b, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}

	if err := c.ensureDecryptor(); err != nil {
		return 0, err
	}

	n, err := c.Conn.Read(b)
	if n == 0 {
		return 0, err
	}
	plaintext := c.dec.Update(nil, b[:n])
	m := copy(b, plaintext)
	if m < len(plaintext) {
		c.pending = plaintext[m:]
	}
	return m, err
}

// CloseWrite half-closes the write side, forwarding to the underlying
// conn's CloseWrite when it has one (e.g. *net.TCPConn), matching the relay
// layer's half-close contract on duplex copies.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}

// CloseRead half-closes the read side, forwarding to the underlying conn's
// CloseRead when it has one.
func (c *Conn) CloseRead() error {
	if cr, ok := c.Conn.(interface{ CloseRead() error }); ok {
		return cr.CloseRead()
	}
	return c.Conn.Close()
}

func (c *Conn) ensureDecryptor() error {
	c.decMu.Do(func() {
		ivSize, e := cryptostream.IVSize(c.method)
		if e != nil {
			c.decErr = e
			return
		}
		var iv []byte
		if ivSize > 0 {
			iv = make([]byte, ivSize)
			if _, e := io.ReadFull(c.Conn, iv); e != nil {
				c.decErr = e
				return
			}
		}
		c.dec, c.decErr = cryptostream.NewTransform(c.method, c.key, iv, cryptostream.Decrypt)
	})
	return c.decErr
}
