package socks5

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gordafarid/shadowrelay/internal/relayerr"
	"github.com/gordafarid/shadowrelay/internal/socksaddr"
)

func TestHandshakeSelectsNoAuth(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Handshake(context.Background(), server)
	}()

	if _, err := client.Write([]byte{Version, 1, MethodNoAuth}); err != nil {
		t.Fatalf("client write: %v", err)
	}
	resp := make([]byte, 2)
	if _, err := client.Read(resp); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if resp[0] != Version || resp[1] != MethodNoAuth {
		t.Fatalf("got %v, want [05 00]", resp)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Handshake: %v", err)
	}
}

func TestHandshakeRejectsWithoutNoAuth(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Handshake(context.Background(), server)
	}()

	if _, err := client.Write([]byte{Version, 1, 0x02}); err != nil {
		t.Fatalf("client write: %v", err)
	}
	resp := make([]byte, 2)
	if _, err := client.Read(resp); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if resp[0] != Version || resp[1] != MethodNoAcceptable {
		t.Fatalf("got %v, want [05 ff]", resp)
	}
	if err := <-errCh; err != relayerr.ErrAuthUnsupported {
		t.Fatalf("got %v, want ErrAuthUnsupported", err)
	}
}

func TestReadRequestConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type result struct {
		cmd  byte
		addr socksaddr.Addr
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		cmd, addr, err := ReadRequest(context.Background(), server)
		resultCh <- result{cmd, addr, err}
	}()

	req := []byte{Version, CmdConnect, 0x00}
	req = append(req, socksaddr.NewIP(net.ParseIP("127.0.0.1"), 80).Bytes()...)
	if _, err := client.Write(req); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("ReadRequest: %v", res.err)
		}
		if res.cmd != CmdConnect {
			t.Fatalf("got cmd %d, want CmdConnect", res.cmd)
		}
		if res.addr.Port != 80 {
			t.Fatalf("got port %d, want 80", res.addr.Port)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestWriteReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		bound := socksaddr.NewIP(net.ParseIP("0.0.0.0"), 0)
		WriteReply(context.Background(), server, ReplySucceeded, bound)
	}()

	buf := make([]byte, 10)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if buf[0] != Version || buf[1] != ReplySucceeded {
		t.Fatalf("got %v", buf)
	}
}
