package main

import (
	"bytes"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/xtaci/trojanc/trojan"
)

// startHangingTLSHandshakeListener accepts TCP connections but never speaks
// TLS back, so any client performing a handshake against it blocks until
// its context is cancelled. This lets tests exercise NATSession's
// pre-handshake buffering without racing a real relay's response.
func startHangingTLSHandshakeListener(t *testing.T) (addr string, cleanup func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	cleanup = func() {
		ln.Close()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
	}
	return ln.Addr().String(), cleanup
}

func natTestConfig(t *testing.T, relayAddr string) *trojan.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(relayAddr)
	if err != nil {
		t.Fatalf("split relay address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse relay port: %v", err)
	}
	return &trojan.Config{
		RemoteAddr: host,
		RemotePort: port,
		Password:   []trojan.PasswordEntry{trojan.NewPasswordEntry("secret")},
		TargetAddr: "10.0.0.1",
		TargetPort: 9999,
		UDPTimeout: 3600,
	}
}

func TestNATSessionBuffersBeforeTunnelOpensAndCapsOverflow(t *testing.T) {
	relayAddr, cleanup := startHangingTLSHandshakeListener(t)
	defer cleanup()

	cfg := natTestConfig(t, relayAddr)
	peer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40000}

	closed := make(chan struct{})
	sess := NewNATSession(cfg, trojan.NewSingleSlotCache(), peer, func(*net.UDPAddr, []byte) {}, func() { close(closed) })

	if !sess.Process(peer, []byte("packet-1")) {
		t.Fatalf("Process rejected a datagram from the session's own peer")
	}

	sess.mu.Lock()
	firstLen := len(sess.preBuf)
	sess.mu.Unlock()
	if firstLen == 0 {
		t.Fatalf("expected the first datagram to be buffered pending the tunnel")
	}

	// A datagram whose framed size alone exceeds the pre-handshake cap
	// must be dropped, leaving the buffer exactly as it was.
	oversized := bytes.Repeat([]byte{0xAB}, natPreHandshakeCap)
	sess.Process(peer, oversized)

	sess.mu.Lock()
	afterLen := len(sess.preBuf)
	sess.mu.Unlock()
	if afterLen != firstLen {
		t.Fatalf("buffer grew from %d to %d bytes, want the oversized packet dropped", firstLen, afterLen)
	}

	otherPeer := &net.UDPAddr{IP: net.ParseIP("127.0.0.2"), Port: 1}
	if sess.Process(otherPeer, []byte("not mine")) {
		t.Fatalf("Process accepted a datagram from a different peer")
	}

	sess.destroy()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("onClose was never called after destroy")
	}
}

func TestNATSessionIdleTimeoutDestroysSession(t *testing.T) {
	relayAddr, cleanup := startHangingTLSHandshakeListener(t)
	defer cleanup()

	cfg := natTestConfig(t, relayAddr)
	cfg.UDPTimeout = 1

	closed := make(chan struct{})
	peer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 50000}
	NewNATSession(cfg, trojan.NewSingleSlotCache(), peer, func(*net.UDPAddr, []byte) {}, func() { close(closed) })

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("session was not destroyed after its idle timeout")
	}
}

func TestNATListenerDispatchCreatesOneSessionPerPeer(t *testing.T) {
	relayAddr, cleanup := startHangingTLSHandshakeListener(t)
	defer cleanup()

	cfg := natTestConfig(t, relayAddr)
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer serverConn.Close()

	l := NewNATListener(serverConn, cfg, trojan.NewSingleSlotCache())

	peerA := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40001}
	peerB := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40002}

	l.dispatch(peerA, []byte("a1"))
	l.dispatch(peerA, []byte("a2"))
	l.dispatch(peerB, []byte("b1"))

	var countA, countB int
	l.sessions.Range(func(k, v any) bool {
		switch k.(string) {
		case peerA.String():
			countA++
		case peerB.String():
			countB++
		}
		return true
	})
	if countA != 1 || countB != 1 {
		t.Fatalf("expected exactly one session per peer, got countA=%d countB=%d", countA, countB)
	}

	if v, ok := l.sessions.Load(peerA.String()); ok {
		v.(*NATSession).destroy()
	}
	if v, ok := l.sessions.Load(peerB.String()); ok {
		v.(*NATSession).destroy()
	}
}
