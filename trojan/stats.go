package trojan

import (
	"fmt"
	"sync/atomic"
)

// globalStats aggregates counters across every session a process has run,
// feeding the CSV stats logger and the SIGUSR1 snapshot (spec.md's
// ambient-stack expansion, SPEC_FULL.md §2 item 10).
var globalStats struct {
	active  int64
	total   uint64
	sent    uint64
	recv    uint64
	errored uint64
}

// SessionOpened records that a new session started.
func SessionOpened() {
	atomic.AddInt64(&globalStats.active, 1)
	atomic.AddUint64(&globalStats.total, 1)
}

// SessionClosed records a finished session's final byte counts. failed
// marks whether the session ended via an error path rather than a clean
// relay shutdown.
func SessionClosed(sent, recv uint64, failed bool) {
	atomic.AddInt64(&globalStats.active, -1)
	atomic.AddUint64(&globalStats.sent, sent)
	atomic.AddUint64(&globalStats.recv, recv)
	if failed {
		atomic.AddUint64(&globalStats.errored, 1)
	}
}

// Stats is a point-in-time snapshot of globalStats.
type Stats struct {
	ActiveSessions int64
	TotalSessions  uint64
	SentBytes      uint64
	RecvBytes      uint64
	Errors         uint64
}

// Snapshot reads the current aggregate counters.
func Snapshot() Stats {
	return Stats{
		ActiveSessions: atomic.LoadInt64(&globalStats.active),
		TotalSessions:  atomic.LoadUint64(&globalStats.total),
		SentBytes:      atomic.LoadUint64(&globalStats.sent),
		RecvBytes:      atomic.LoadUint64(&globalStats.recv),
		Errors:         atomic.LoadUint64(&globalStats.errored),
	}
}

// Header implements std.StatRow.
func (s Stats) Header() []string {
	return []string{"active_sessions", "total_sessions", "sent_bytes", "recv_bytes", "errors"}
}

// ToSlice implements std.StatRow.
func (s Stats) ToSlice() []string {
	return []string{
		fmt.Sprint(s.ActiveSessions),
		fmt.Sprint(s.TotalSessions),
		fmt.Sprint(s.SentBytes),
		fmt.Sprint(s.RecvBytes),
		fmt.Sprint(s.Errors),
	}
}

// String renders a one-line summary for the SIGUSR1 log handler.
func (s Stats) String() string {
	return fmt.Sprintf("active=%d total=%d sent=%d recv=%d errors=%d",
		s.ActiveSessions, s.TotalSessions, s.SentBytes, s.RecvBytes, s.Errors)
}
