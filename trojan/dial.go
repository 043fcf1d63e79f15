package trojan

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/pkg/errors"
)

// dialTCP opens the outbound TCP leg, applying the configured socket
// options before connect (fast-open) and after connect (no-delay,
// keep-alive), mirroring spec.md §4.2 step 5.
func dialTCP(ctx context.Context, cfg *Config) (*net.TCPConn, error) {
	d := net.Dialer{Control: fastOpenControl(cfg)}
	conn, err := d.DialContext(ctx, "tcp", cfg.RemoteHostPort())
	if err != nil {
		return nil, err
	}
	tcpConn := conn.(*net.TCPConn)
	if cfg.TCP.NoDelay {
		_ = tcpConn.SetNoDelay(true)
	}
	if cfg.TCP.KeepAlive {
		_ = tcpConn.SetKeepAlive(true)
	}
	return tcpConn, nil
}

// DialRemote performs the outbound connect + TLS handshake shared by both
// the TCP client session and the NAT-mode UDP session (spec.md §4.2 steps
// 5-6, reused verbatim by §4.3 step 1). SNI defaults to the relay hostname
// so certificate verification has something to check against; setting
// cfg.SSL.SNI overrides it to mimic a different host, per spec.md §3.
//
// If cfg.SSL.ReuseSession is set, cache is attached to the handshake so a
// previously stored ticket can shortcut it; on success the cache is always
// updated with whatever ticket this handshake yields.
func DialRemote(ctx context.Context, cfg *Config, cache *SingleSlotCache) (conn *tls.Conn, resumed bool, err error) {
	tcpConn, err := dialTCP(ctx, cfg)
	if err != nil {
		return nil, false, errors.Wrapf(err, "connect to remote server %s", cfg.RemoteHostPort())
	}

	serverName := cfg.SSL.SNI
	if serverName == "" {
		serverName = cfg.RemoteAddr
	}
	tlsConfig := &tls.Config{ServerName: serverName, InsecureSkipVerify: !cfg.SSL.Verify}
	if cfg.SSL.ReuseSession && cache != nil {
		tlsConfig.ClientSessionCache = cache
	}

	tlsConn := tls.Client(tcpConn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tcpConn.Close()
		return nil, false, errors.Wrapf(err, "SSL handshake failed with %s", cfg.RemoteHostPort())
	}

	return tlsConn, tlsConn.ConnectionState().DidResume, nil
}
