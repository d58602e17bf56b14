package cryptostream

import "errors"

var (
	// ErrUnsupportedMethod is returned for an unknown cipher method name.
	ErrUnsupportedMethod = errors.New("cryptostream: unsupported cipher method")
	// ErrInvalidKey is returned when derived key material is the wrong size
	// for the selected method.
	ErrInvalidKey = errors.New("cryptostream: invalid key size")
	// ErrInvalidIV is returned when the supplied IV is the wrong size for
	// the selected method.
	ErrInvalidIV = errors.New("cryptostream: invalid IV size")
	// ErrCipherFailure wraps any underlying cryptographic construction error.
	ErrCipherFailure = errors.New("cryptostream: cipher construction failed")
)
