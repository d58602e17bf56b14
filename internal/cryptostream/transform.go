package cryptostream

import "crypto/cipher"

// Transform is the two-operation contract spec'd for the cipher factory:
// Update appends the transformed bytes for an incremental chunk, Finalize
// emits any trailing bytes once the stream ends. Every supported method here
// is a pure stream cipher, so Finalize never has anything to emit. It
// exists so the contract matches methods (block-padding ciphers) that could
// be added to the registry later without changing callers.
type Transform struct {
	stream cipher.Stream
}

// NewTransform builds the encrypt or decrypt transform for method, keyed by
// key (already the right size; see DeriveKey) and iv (already the right
// size; see NewIV). An unknown method fails with ErrUnsupportedMethod; a
// wrong-sized key fails with ErrInvalidKey; a wrong-sized iv fails with
// ErrInvalidIV; a failure inside the underlying cipher constructor is
// wrapped in ErrCipherFailure.
func NewTransform(method Method, key, iv []byte, dir Direction) (*Transform, error) {
	meta, ok := registry[method]
	if !ok {
		return nil, ErrUnsupportedMethod
	}
	if len(key) != meta.KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != meta.IVSize {
		return nil, ErrInvalidIV
	}
	s, err := meta.New(key, iv, dir)
	if err != nil {
		return nil, err
	}
	return &Transform{stream: s}, nil
}

// Update transforms src into dst, appending to whatever dst already holds,
// and returns the grown slice. dst and src may be the same underlying array
// only if they are also the same offset (in-place transform).
func (t *Transform) Update(dst, src []byte) []byte {
	out := dst
	n := len(out)
	out = append(out, src...)
	t.stream.XORKeyStream(out[n:], src)
	return out
}

// Finalize emits any bytes trailing the last Update call. Always empty for
// the stream-cipher methods this package implements.
func (t *Transform) Finalize(dst []byte) []byte { return dst }
