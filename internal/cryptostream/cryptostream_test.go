package cryptostream

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func allMethods() []Method {
	return []Method{
		MethodTable, MethodDummy, MethodRC4MD5,
		MethodAES128CFB, MethodAES192CFB, MethodAES256CFB,
		MethodDESCFB, MethodBlowfishCFB, MethodCAST5CFB, MethodIDEACFB,
		MethodChaCha20, MethodSalsa20,
	}
}

// TestRoundTrip checks the core law every wire method must satisfy:
// decrypt(encrypt(m)) == m, for a single-shot transform over the whole
// message.
func TestRoundTrip(t *testing.T) {
	for _, method := range allMethods() {
		method := method
		t.Run(string(method), func(t *testing.T) {
			keySize, err := KeySize(method)
			if err != nil {
				t.Fatalf("KeySize: %v", err)
			}
			ivSize, err := IVSize(method)
			if err != nil {
				t.Fatalf("IVSize: %v", err)
			}
			key := DeriveKey([]byte("correct horse battery staple"), keySize)
			iv, err := NewIV(ivSize)
			if err != nil {
				t.Fatalf("NewIV: %v", err)
			}

			plain := make([]byte, 4096)
			if _, err := rand.Read(plain); err != nil {
				t.Fatalf("rand.Read: %v", err)
			}

			enc, err := NewTransform(method, key, iv, Encrypt)
			if err != nil {
				t.Fatalf("NewTransform(Encrypt): %v", err)
			}
			cipherText := enc.Update(nil, plain)
			cipherText = enc.Finalize(cipherText)

			dec, err := NewTransform(method, key, iv, Decrypt)
			if err != nil {
				t.Fatalf("NewTransform(Decrypt): %v", err)
			}
			recovered := dec.Update(nil, cipherText)
			recovered = dec.Finalize(recovered)

			if !bytes.Equal(plain, recovered) {
				t.Fatalf("round trip mismatch for %s", method)
			}
		})
	}
}

// TestIncrementalMatchesSingleShot checks that feeding a message in
// arbitrary small chunks produces the same ciphertext as one call, which
// matters for every stream method here since the relay never buffers a
// whole message before transforming it.
func TestIncrementalMatchesSingleShot(t *testing.T) {
	for _, method := range allMethods() {
		method := method
		t.Run(string(method), func(t *testing.T) {
			keySize, _ := KeySize(method)
			ivSize, _ := IVSize(method)
			key := DeriveKey([]byte("incremental-password"), keySize)
			iv, err := NewIV(ivSize)
			if err != nil {
				t.Fatalf("NewIV: %v", err)
			}

			plain := make([]byte, 777)
			if _, err := rand.Read(plain); err != nil {
				t.Fatalf("rand.Read: %v", err)
			}

			whole, err := NewTransform(method, key, iv, Encrypt)
			if err != nil {
				t.Fatalf("NewTransform: %v", err)
			}
			wantCipher := whole.Update(nil, plain)

			chunked, err := NewTransform(method, key, iv, Encrypt)
			if err != nil {
				t.Fatalf("NewTransform: %v", err)
			}
			var gotCipher []byte
			for off := 0; off < len(plain); {
				n := off + 3
				if n > len(plain) {
					n = len(plain)
				}
				gotCipher = chunked.Update(gotCipher, plain[off:n])
				off = n
			}

			if !bytes.Equal(wantCipher, gotCipher) {
				t.Fatalf("chunked transform diverged from single-shot for %s", method)
			}
		})
	}
}

func TestNewTransformRejectsUnknownMethod(t *testing.T) {
	if _, err := NewTransform(Method("not-a-method"), nil, nil, Encrypt); err != ErrUnsupportedMethod {
		t.Fatalf("got %v, want ErrUnsupportedMethod", err)
	}
}

func TestNewTransformRejectsBadKeySize(t *testing.T) {
	iv, _ := NewIV(0)
	if _, err := NewTransform(MethodTable, []byte("short"), iv, Encrypt); err != ErrInvalidKey {
		t.Fatalf("got %v, want ErrInvalidKey", err)
	}
}

func TestNewTransformRejectsBadIVSize(t *testing.T) {
	key := DeriveKey([]byte("pw"), 32)
	if _, err := NewTransform(MethodAES256CFB, key, []byte{1, 2, 3}, Encrypt); err != ErrInvalidIV {
		t.Fatalf("got %v, want ErrInvalidIV", err)
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported(MethodChaCha20) {
		t.Fatal("expected chacha20 to be supported")
	}
	if IsSupported(Method("rot13")) {
		t.Fatal("did not expect rot13 to be supported")
	}
}
