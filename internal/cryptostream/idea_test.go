package cryptostream

import (
	"bytes"
	"crypto/rand"
	"testing"
)

// TestIDEABlockRoundTrip exercises the IDEA block primitive directly (not
// through the CFB wrapper every other test in this package goes through),
// checking that the decryption subkey schedule really is the inverse of the
// encryption schedule for several independent blocks.
func TestIDEABlockRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	block, err := newIDEACipher(key)
	if err != nil {
		t.Fatalf("newIDEACipher: %v", err)
	}

	for i := 0; i < 16; i++ {
		plain := make([]byte, ideaBlockSize)
		if _, err := rand.Read(plain); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}
		cipherText := make([]byte, ideaBlockSize)
		block.Encrypt(cipherText, plain)

		recovered := make([]byte, ideaBlockSize)
		block.Decrypt(recovered, cipherText)

		if !bytes.Equal(plain, recovered) {
			t.Fatalf("block %d: got %x, want %x", i, recovered, plain)
		}
	}
}

func TestIDEABlockSize(t *testing.T) {
	block, err := newIDEACipher(make([]byte, 16))
	if err != nil {
		t.Fatalf("newIDEACipher: %v", err)
	}
	if got := block.BlockSize(); got != 8 {
		t.Fatalf("got block size %d, want 8", got)
	}
}

func TestMulModMod65537Identity(t *testing.T) {
	// 1 is the multiplicative identity under this operation.
	if got := mulModMod65537(12345, 1); got != 12345 {
		t.Fatalf("got %d, want 12345", got)
	}
	// 0 is treated as 2^16, so 0 "o" 0 == 1 (2^16 * 2^16 mod 65537 == 1).
	if got := mulModMod65537(0, 0); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestInvMod65537RoundTrips(t *testing.T) {
	for _, a := range []uint32{1, 2, 3, 12345, 65536} {
		inv := invMod65537(a)
		if got := mulModMod65537(a, inv); got != 1 {
			t.Fatalf("invMod65537(%d)=%d: a*inv mod 65537 = %d, want 1", a, inv, got)
		}
	}
}
