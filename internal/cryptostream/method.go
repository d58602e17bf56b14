// Package cryptostream implements the stream-cipher method registry used by
// the shadowsocks-style wire protocol: key derivation, IV sizing, and
// construction of the encrypt/decrypt transforms for each supported method.
package cryptostream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rc4"
	"fmt"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
	"golang.org/x/crypto/chacha20"
)

// Method identifies one of the closed set of stream-cipher wire methods.
type Method string

// Direction selects which half of a cipher pair a Transform drives.
type Direction int

const (
	Encrypt Direction = iota
	Decrypt
)

// The supported cipher methods. table and dummy ignore the IV; rc4-md5
// derives its RC4 key from MD5(key||iv); the "-cfb" family runs the named
// block cipher in CFB mode; chacha20 and salsa20 are stream ciphers that
// consume the IV as their nonce.
const (
	MethodTable       Method = "table"
	MethodDummy       Method = "dummy"
	MethodRC4MD5      Method = "rc4-md5"
	MethodAES128CFB   Method = "aes-128-cfb"
	MethodAES192CFB   Method = "aes-192-cfb"
	MethodAES256CFB   Method = "aes-256-cfb"
	MethodDESCFB      Method = "des-cfb"
	MethodBlowfishCFB Method = "blowfish-cfb"
	MethodCAST5CFB    Method = "cast5-cfb"
	MethodIDEACFB     Method = "idea-cfb"
	MethodChaCha20    Method = "chacha20"
	MethodSalsa20     Method = "salsa20"
)

// newStreamFunc builds the cipher.Stream for one direction of one method.
type newStreamFunc func(key, iv []byte, dir Direction) (cipher.Stream, error)

type methodMeta struct {
	KeySize int
	IVSize  int
	New     newStreamFunc
}

// registry is the closed enumeration of supported methods. It is never
// mutated after init; dispatch is a map lookup, not a plugin registration.
var registry = map[Method]methodMeta{
	MethodTable:  {KeySize: 16, IVSize: 0, New: newTableStream},
	MethodDummy:  {KeySize: 16, IVSize: 0, New: newDummyStream},
	MethodRC4MD5: {KeySize: 16, IVSize: 16, New: newRC4MD5Stream},

	MethodAES128CFB: {KeySize: 16, IVSize: aes.BlockSize, New: newCFBStream(newAESBlock)},
	MethodAES192CFB: {KeySize: 24, IVSize: aes.BlockSize, New: newCFBStream(newAESBlock)},
	MethodAES256CFB: {KeySize: 32, IVSize: aes.BlockSize, New: newCFBStream(newAESBlock)},
	MethodDESCFB:     {KeySize: 8, IVSize: des.BlockSize, New: newCFBStream(newDESBlock)},
	MethodBlowfishCFB: {KeySize: 16, IVSize: blowfish.BlockSize, New: newCFBStream(newBlowfishBlock)},
	MethodCAST5CFB:   {KeySize: cast5.KeySize, IVSize: 8, New: newCFBStream(newCAST5Block)},
	MethodIDEACFB:    {KeySize: 16, IVSize: ideaBlockSize, New: newCFBStream(newIDEACipher)},

	MethodChaCha20: {KeySize: chacha20.KeySize, IVSize: chacha20.NonceSize, New: newChaCha20Stream},
	MethodSalsa20:  {KeySize: 32, IVSize: 8, New: newSalsa20Stream},
}

// IsSupported reports whether method is a known wire method name.
func IsSupported(method Method) bool {
	_, ok := registry[method]
	return ok
}

// KeySize returns the key length in bytes required by method.
func KeySize(method Method) (int, error) {
	m, ok := registry[method]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return m.KeySize, nil
}

// IVSize returns the IV (block) length in bytes required by method. A
// return value of 0 means the method transmits no IV at all (table, dummy).
func IVSize(method Method) (int, error) {
	m, ok := registry[method]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return m.IVSize, nil
}

func newAESBlock(key []byte) (cipher.Block, error)      { return aes.NewCipher(key) }
func newDESBlock(key []byte) (cipher.Block, error)      { return des.NewCipher(key) }
func newBlowfishBlock(key []byte) (cipher.Block, error) { return blowfish.NewCipher(key) }
func newCAST5Block(key []byte) (cipher.Block, error)    { return cast5.NewCipher(key) }

func newCFBStream(newBlock func([]byte) (cipher.Block, error)) newStreamFunc {
	return func(key, iv []byte, dir Direction) (cipher.Stream, error) {
		block, err := newBlock(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
		}
		if dir == Encrypt {
			return cipher.NewCFBEncrypter(block, iv), nil
		}
		return cipher.NewCFBDecrypter(block, iv), nil
	}
}

func newRC4MD5Stream(key, iv []byte, _ Direction) (cipher.Stream, error) {
	rc4Key := rc4MD5Key(key, iv)
	s, err := rc4.NewCipher(rc4Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}
	return s, nil
}

func newChaCha20Stream(key, iv []byte, _ Direction) (cipher.Stream, error) {
	s, err := chacha20.NewUnauthenticatedCipher(key, iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}
	return s, nil
}
