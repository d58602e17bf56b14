package wireconn

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/gordafarid/shadowrelay/internal/cryptostream"
)

func TestReadWriteRoundTrip(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	key := cryptostream.DeriveKey([]byte("pw"), 32)
	client := New(clientRaw, cryptostream.MethodAES256CFB, key)
	server := New(serverRaw, cryptostream.MethodAES256CFB, key)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		if _, err := io.ReadFull(server, buf); err != nil {
			t.Errorf("server Read: %v", err)
			return
		}
		if string(buf) != "HELLO" {
			t.Errorf("got %q, want HELLO", buf)
		}
	}()

	if _, err := client.Write([]byte("HELLO")); err != nil {
		t.Fatalf("client Write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server read")
	}
}

func TestIVIsClearTextPrefix(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	key := cryptostream.DeriveKey([]byte("pw"), 32)
	client := New(clientRaw, cryptostream.MethodAES256CFB, key)

	ivSize, _ := cryptostream.IVSize(cryptostream.MethodAES256CFB)
	raw := make([]byte, ivSize+5)

	go func() {
		client.Write([]byte("HELLO"))
	}()

	if _, err := io.ReadFull(serverRaw, raw); err != nil {
		t.Fatalf("read raw: %v", err)
	}
	// First ivSize bytes must be cleartext (readable directly off the wire,
	// no decryption applied) — we can't assert their exact value since the
	// IV is random, but the remaining bytes must differ from "HELLO" since
	// they are ciphertext, proving the boundary is exactly at ivSize.
	if string(raw[ivSize:]) == "HELLO" {
		t.Fatal("payload was not encrypted")
	}
}
