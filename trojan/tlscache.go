package trojan

import (
	"crypto/tls"
	"sync"
)

// SingleSlotCache is the process-wide, single-slot TLS session ticket
// store from spec.md §4.4: it remembers only the most recently established
// session and hands it back on the next outbound connection when
// ssl.reuse_session is set. It implements tls.ClientSessionCache, so the
// standard library does the actual ticket extraction/attachment that the
// source performs by hand against OpenSSL's SSL_SESSION API.
//
// Access is protected by a mutex rather than left unsynchronised: unlike
// the source's single-threaded reactor, this client may run one goroutine
// per session, and the slot is touched at most twice per outbound
// connection (spec.md §9), so a lightweight lock costs nothing.
type SingleSlotCache struct {
	mu      sync.Mutex
	key     string
	session *tls.ClientSessionState
}

// NewSingleSlotCache returns an empty cache.
func NewSingleSlotCache() *SingleSlotCache {
	return &SingleSlotCache{}
}

// Get implements tls.ClientSessionCache. The session key is ignored beyond
// bookkeeping: spec.md's slot is shared across every outbound connection
// regardless of server name, matching the source's single global slot.
func (c *SingleSlotCache) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, false
	}
	return c.session, true
}

// Put implements tls.ClientSessionCache, replacing the slot on every
// successful handshake.
func (c *SingleSlotCache) Put(sessionKey string, cs *tls.ClientSessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = sessionKey
	c.session = cs
}
