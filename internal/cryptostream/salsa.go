package cryptostream

import (
	"crypto/cipher"
	"encoding/binary"

	"golang.org/x/crypto/salsa20/salsa"
)

const salsaBlockSize = 64

// salsa20Stream adapts golang.org/x/crypto/salsa20/salsa's block-counter API
// to the incremental cipher.Stream contract the relay needs: callers hand it
// arbitrarily sized chunks as bytes arrive off the wire, not whole messages.
// It buffers up to one 64-byte keystream block to serve non-block-aligned
// reads/writes without recomputing already-consumed keystream.
type salsa20Stream struct {
	key     [32]byte
	counter [16]byte // first 8 bytes nonce, last 8 bytes little-endian block counter

	block [salsaBlockSize]byte
	pos   int // unread bytes remaining in block are block[pos:]
}

func newSalsa20Stream(key, iv []byte, _ Direction) (cipher.Stream, error) {
	s := &salsa20Stream{pos: salsaBlockSize}
	copy(s.key[:], key)
	copy(s.counter[:8], iv)
	return s, nil
}

func (s *salsa20Stream) XORKeyStream(dst, src []byte) {
	for len(src) > 0 {
		if s.pos == salsaBlockSize {
			salsa.XORKeyStream(s.block[:], zeroBlock[:], &s.counter, &s.key)
			s.incrementCounter()
			s.pos = 0
		}
		n := copy(dst, src[:min(len(src), salsaBlockSize-s.pos)])
		for i := 0; i < n; i++ {
			dst[i] = src[i] ^ s.block[s.pos+i]
		}
		s.pos += n
		dst = dst[n:]
		src = src[n:]
	}
}

func (s *salsa20Stream) incrementCounter() {
	ctr := binary.LittleEndian.Uint64(s.counter[8:])
	ctr++
	binary.LittleEndian.PutUint64(s.counter[8:], ctr)
}

var zeroBlock [salsaBlockSize]byte
