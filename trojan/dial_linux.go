//go:build linux

package trojan

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// fastOpenControl sets TCP_FASTOPEN_CONNECT on the dialing socket before
// connect(2), letting the kernel fold the SYN and the first outbound write
// into one round trip. It is best-effort: a kernel too old to know the
// option is silently ignored, per spec.md §6 ("the last is best-effort;
// unsupported platforms ignore silently").
func fastOpenControl(cfg *Config) func(network, address string, c syscall.RawConn) error {
	if !cfg.TCP.FastOpen {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		c.Control(func(fd uintptr) {
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_FASTOPEN_CONNECT, 1)
		})
		return nil
	}
}
