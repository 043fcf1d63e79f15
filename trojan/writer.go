package trojan

import (
	"io"
	"sync"
)

// WritePump is the Go expression of spec.md §3's invariant "outbound TLS
// writes are strictly serialised per session: at most one write in flight;
// subsequent data is accumulated in out_write_buf until the in-flight
// write completes." Enqueue never blocks the caller on the network: it
// appends under a mutex and, if no flush is already running, starts one;
// an in-flight flush picks up newly enqueued bytes itself rather than
// letting a second flush start.
//
// This mirrors the source's out_async_write / out_sent pair and the
// UDPForwardSession FORWARD/FORWARDING state alternation, but needs no
// explicit state field: "writing" already says everything destroy() and
// the property tests in spec.md §8 need to observe.
type WritePump struct {
	mu      sync.Mutex
	buf     []byte
	writing bool
	closed  bool

	w       io.Writer
	onError func(error)
}

// NewWritePump creates a pump that flushes to w, calling onError at most
// once if a write ever fails.
func NewWritePump(w io.Writer, onError func(error)) *WritePump {
	return &WritePump{w: w, onError: onError}
}

// Enqueue appends p to the pending buffer and, if nothing is currently
// flushing, starts a flush goroutine. Safe to call from any goroutine.
func (p *WritePump) Enqueue(data []byte) {
	if len(data) == 0 {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.buf = append(p.buf, data...)
	if p.writing {
		p.mu.Unlock()
		return
	}
	p.writing = true
	pending := p.buf
	p.buf = nil
	p.mu.Unlock()

	go p.flush(pending)
}

func (p *WritePump) flush(pending []byte) {
	for {
		if _, err := p.w.Write(pending); err != nil {
			p.mu.Lock()
			p.writing = false
			p.closed = true
			p.mu.Unlock()
			if p.onError != nil {
				p.onError(err)
			}
			return
		}

		p.mu.Lock()
		if len(p.buf) == 0 {
			p.writing = false
			p.mu.Unlock()
			return
		}
		pending = p.buf
		p.buf = nil
		p.mu.Unlock()
	}
}

// Close marks the pump closed: subsequent Enqueue calls are no-ops. It
// does not touch the underlying writer; sessions close their own sockets
// as part of destroy().
func (p *WritePump) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
