//go:build !linux

package trojan

import "syscall"

// fastOpenControl is a no-op outside Linux: TCP_FASTOPEN_CONNECT has no
// portable equivalent, so tcp.fast_open is silently ignored, per spec.md
// §6's "best-effort; unsupported platforms ignore silently".
func fastOpenControl(cfg *Config) func(network, address string, c syscall.RawConn) error {
	return nil
}
