package main

import (
	"log"
	"net"
	"sync"

	"github.com/xtaci/trojanc/trojan"
)

// NATListener owns the single shared UDP socket NAT mode listens on and
// demultiplexes it by peer address into one NATSession per distinct
// source, grounded in the sync.Map-keyed per-client-session pattern used
// by UDP forwarders elsewhere in the retrieved examples.
type NATListener struct {
	conn  *net.UDPConn
	cfg   *trojan.Config
	cache *trojan.SingleSlotCache

	sessions sync.Map // peer.String() -> *NATSession
}

// NewNATListener wraps an already-bound UDP socket.
func NewNATListener(conn *net.UDPConn, cfg *trojan.Config, cache *trojan.SingleSlotCache) *NATListener {
	return &NATListener{conn: conn, cfg: cfg, cache: cache}
}

// Serve reads datagrams until the socket closes, routing each to the
// session for its peer address, creating one on first sight.
func (l *NATListener) Serve() {
	buf := make([]byte, maxUDPFrame)
	for {
		n, peer, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		l.dispatch(peer, payload)
	}
}

func (l *NATListener) dispatch(peer *net.UDPAddr, payload []byte) {
	key := peer.String()
	if v, ok := l.sessions.Load(key); ok {
		sess := v.(*NATSession)
		if sess.Process(peer, payload) {
			return
		}
		l.sessions.Delete(key)
	}

	sess := NewNATSession(l.cfg, l.cache, peer,
		func(p *net.UDPAddr, data []byte) {
			if _, err := l.conn.WriteToUDP(data, p); err != nil {
				log.Println(p, "write to local UDP peer failed:", err)
			}
		},
		func() { l.sessions.Delete(key) },
	)
	l.sessions.Store(key, sess)
	sess.Process(peer, payload)
}
