package cryptostream

import (
	"crypto/md5"
	"crypto/rand"
)

// DeriveKey turns a password into key material of the given size using
// repeated MD5 extension: key = MD5(password) || MD5(MD5(password)||password) || ...
// truncated to size. This is the same key-stretching rule the shadowsocks
// wire protocol has always used, independent of the chosen cipher method.
func DeriveKey(password []byte, size int) []byte {
	out := make([]byte, 0, size+md5.Size)
	var prev []byte
	for len(out) < size {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		sum := h.Sum(nil)
		out = append(out, sum...)
		prev = sum
	}
	return out[:size]
}

// rc4MD5Key computes the effective RC4 key as MD5(key || iv).
func rc4MD5Key(key, iv []byte) []byte {
	h := md5.New()
	h.Write(key)
	h.Write(iv)
	return h.Sum(nil)
}

// NewIV generates a fresh random IV of the given size from a cryptographic
// RNG. IVs are not secret; they are transmitted in the clear as the first
// bytes of every new connection (or datagram, for the block-cipher UDP arms).
func NewIV(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	iv := make([]byte, size)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}
