package socksaddr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
)

func TestRoundTripIPv4(t *testing.T) {
	a := NewIP(net.ParseIP("203.0.113.7"), 8080)
	buf := a.Bytes()
	got, err := Read(context.Background(), bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Type != ATypIPv4 || got.Port != 8080 || !net.IP(got.Host).Equal(net.ParseIP("203.0.113.7")) {
		t.Fatalf("got %+v", got)
	}
}

func TestRoundTripIPv6(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	a := NewIP(ip, 53)
	got, err := Read(context.Background(), bytes.NewReader(a.Bytes()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Type != ATypIPv6 || !net.IP(got.Host).Equal(ip) {
		t.Fatalf("got %+v", got)
	}
}

func TestRoundTripDomain(t *testing.T) {
	a := NewDomain("example.com", 443)
	got, err := Read(context.Background(), bytes.NewReader(a.Bytes()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Type != ATypDomain || string(got.Host) != "example.com" || got.Port != 443 {
		t.Fatalf("got %+v", got)
	}
}

func TestReadUnsupportedType(t *testing.T) {
	_, err := Read(context.Background(), bytes.NewReader([]byte{0x7f, 0, 0}))
	if err == nil {
		t.Fatal("expected error for unsupported address type")
	}
}

func TestReadShortBufferIsUnexpectedEOF(t *testing.T) {
	// An IPv4 address header truncated mid-host.
	_, err := Read(context.Background(), bytes.NewReader([]byte{ATypIPv4, 1, 2}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestSizeMatchesBytesLength(t *testing.T) {
	a := NewDomain("a.example", 1)
	if a.Size() != len(a.Bytes()) {
		t.Fatalf("Size()=%d but len(Bytes())=%d", a.Size(), len(a.Bytes()))
	}
}
