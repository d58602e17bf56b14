package cryptostream

import (
	"crypto/cipher"
	"encoding/binary"
)

// IDEA is a 64-bit block cipher with a 128-bit key, used here as the block
// primitive for the idea-cfb wire method. It needs no fixed substitution
// tables (every round is modular arithmetic over 16-bit words), so it can
// be implemented directly from the well-known round structure.
const (
	ideaBlockSize = 8
	ideaRounds    = 8
)

// mulModMod65537 is IDEA's multiplication "o", an operation on 16-bit values
// treating 0 as 2^16 (mod 65537, which is prime).
func mulModMod65537(a, b uint32) uint32 {
	if a == 0 {
		a = 0x10000
	}
	if b == 0 {
		b = 0x10000
	}
	p := uint32((uint64(a) * uint64(b)) % 65537)
	if p == 0x10000 {
		p = 0
	}
	return p
}

// invMod65537 returns the multiplicative inverse of a modulo 65537 using the
// extended Euclidean algorithm, needed to derive the decryption subkeys from
// the encryption subkeys.
func invMod65537(a uint32) uint32 {
	if a == 0 {
		return 0
	}
	var t0, t1 int64 = 0, 1
	var r0, r1 int64 = 65537, int64(a)
	for r1 != 0 {
		q := r0 / r1
		r0, r1 = r1, r0-q*r1
		t0, t1 = t1, t0-q*t1
	}
	if t0 < 0 {
		t0 += 65537
	}
	return uint32(t0)
}

// negMod65536 returns the additive inverse of a modulo 2^16.
func negMod65536(a uint32) uint32 {
	return (0x10000 - a) & 0xFFFF
}

// ideaExpandKey derives the 52 16-bit encryption subkeys from a 16-byte key,
// by rotating the key material left 25 bits at a time.
func ideaExpandKey(key []byte) [52]uint16 {
	var bits [128]byte
	for i, b := range key {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = (b >> (7 - j)) & 1
		}
	}

	var sub [52]uint16
	for i := 0; i < 52; i++ {
		base := (25*(i/8) + 16*(i%8)) % 128
		var v uint16
		for j := 0; j < 16; j++ {
			v = v<<1 | uint16(bits[(base+j)%128])
		}
		sub[i] = v
	}
	return sub
}

// ideaDecryptKeys derives the decryption subkey schedule from the
// encryption schedule, per the standard IDEA key-inversion rule: additive
// subkeys are negated, multiplicative subkeys are inverted mod 65537, and
// the round order (and the two middle subkeys per round) is reversed.
func ideaDecryptKeys(enc [52]uint16) [52]uint16 {
	var dec [52]uint16
	for round := 0; round < ideaRounds; round++ {
		encBase := round * 6
		decBase := (ideaRounds - round) * 6

		k1 := uint32(enc[encBase+0])
		k2 := uint32(enc[encBase+1])
		k3 := uint32(enc[encBase+2])
		k4 := uint32(enc[encBase+3])

		dec[decBase+0] = uint16(invMod65537(k1))
		if round == 0 {
			dec[decBase+1] = uint16(negMod65536(k2))
			dec[decBase+2] = uint16(negMod65536(k3))
		} else {
			dec[decBase+1] = uint16(negMod65536(k3))
			dec[decBase+2] = uint16(negMod65536(k2))
		}
		dec[decBase+3] = uint16(invMod65537(k4))

		dec[decBase-2] = enc[encBase+4]
		dec[decBase-1] = enc[encBase+5]
	}
	// The encryption output transformation (indices 48..51) becomes the
	// first four subkeys of the decryption schedule, unswapped.
	dec[0] = uint16(invMod65537(uint32(enc[48])))
	dec[1] = uint16(negMod65536(uint32(enc[49])))
	dec[2] = uint16(negMod65536(uint32(enc[50])))
	dec[3] = uint16(invMod65537(uint32(enc[51])))
	return dec
}

func ideaCrypt(subkeys [52]uint16, block []byte) {
	x1 := uint32(binary.BigEndian.Uint16(block[0:2]))
	x2 := uint32(binary.BigEndian.Uint16(block[2:4]))
	x3 := uint32(binary.BigEndian.Uint16(block[4:6]))
	x4 := uint32(binary.BigEndian.Uint16(block[6:8]))

	k := 0
	for round := 0; round < ideaRounds; round++ {
		k1, k2, k3, k4 := uint32(subkeys[k]), uint32(subkeys[k+1]), uint32(subkeys[k+2]), uint32(subkeys[k+3])
		k5, k6 := uint32(subkeys[k+4]), uint32(subkeys[k+5])
		k += 6

		y1 := mulModMod65537(x1, k1)
		y2 := (x2 + k2) & 0xFFFF
		y3 := (x3 + k3) & 0xFFFF
		y4 := mulModMod65537(x4, k4)

		p := y1 ^ y3
		q := y2 ^ y4
		p = mulModMod65537(p, k5)
		q = (p + q) & 0xFFFF
		q = mulModMod65537(q, k6)
		p = (p + q) & 0xFFFF

		x1 = y1 ^ q
		x2 = y3 ^ q
		x3 = y2 ^ p
		x4 = y4 ^ p
	}

	z1 := mulModMod65537(x1, uint32(subkeys[48]))
	z2 := (x3 + uint32(subkeys[49])) & 0xFFFF
	z3 := (x2 + uint32(subkeys[50])) & 0xFFFF
	z4 := mulModMod65537(x4, uint32(subkeys[51]))

	binary.BigEndian.PutUint16(block[0:2], uint16(z1))
	binary.BigEndian.PutUint16(block[2:4], uint16(z2))
	binary.BigEndian.PutUint16(block[4:6], uint16(z3))
	binary.BigEndian.PutUint16(block[6:8], uint16(z4))
}

// ideaCipher implements cipher.Block over the standard library's interface
// so it can drive the same CFB construction every other block-cipher
// method here uses.
type ideaCipher struct {
	encKeys [52]uint16
	decKeys [52]uint16
}

func newIDEACipher(key []byte) (cipher.Block, error) {
	enc := ideaExpandKey(key)
	return &ideaCipher{encKeys: enc, decKeys: ideaDecryptKeys(enc)}, nil
}

func (c *ideaCipher) BlockSize() int { return ideaBlockSize }

func (c *ideaCipher) Encrypt(dst, src []byte) {
	var buf [ideaBlockSize]byte
	copy(buf[:], src[:ideaBlockSize])
	ideaCrypt(c.encKeys, buf[:])
	copy(dst, buf[:])
}

func (c *ideaCipher) Decrypt(dst, src []byte) {
	var buf [ideaBlockSize]byte
	copy(buf[:], src[:ideaBlockSize])
	ideaCrypt(c.decKeys, buf[:])
	copy(dst, buf[:])
}
