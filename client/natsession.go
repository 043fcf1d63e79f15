package main

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/trojanc/trojan"
)

// natPreHandshakeCap bounds how many bytes of framed UDP packets a
// NATSession will buffer while its outbound tunnel is still connecting,
// spec.md §4.3's "soft cap of MAX_LENGTH bytes, dropping and
// un-accounting further data beyond that cap."
const natPreHandshakeCap = 1 << 20

type natState int32

const (
	natConnect natState = iota
	natForwarding
	natForward
	natDestroy
)

// UDPWriter delivers a decoded inner payload back to the peer a NATSession
// was created for.
type UDPWriter func(peer *net.UDPAddr, payload []byte)

// NATSession is the UDP-ASSOCIATE-less counterpart of ClientSession: one
// instance per distinct source UDP endpoint seen on the shared listening
// socket (spec.md §4.3), forwarding every datagram fed to it towards a
// single fixed destination through its own outbound tunnel. Unlike
// ClientSession there is no local TCP control connection; the session's
// only liveness signal is its own idle timer.
type NATSession struct {
	cfg        *trojan.Config
	cache      *trojan.SingleSlotCache
	peer       *net.UDPAddr
	write      UDPWriter
	onClose    func()
	targetAddr trojan.Address

	mu     sync.Mutex
	state  natState
	pump   *trojan.WritePump
	preBuf []byte
	remote net.Conn
	opened bool

	startTime time.Time
	sentLen   uint64
	recvLen   uint64

	idleTimer   *time.Timer
	cancel      context.CancelFunc
	destroyOnce sync.Once
}

// NewNATSession constructs a session for peer and immediately starts its
// idle timer and outbound connect+handshake.
func NewNATSession(cfg *trojan.Config, cache *trojan.SingleSlotCache, peer *net.UDPAddr, write UDPWriter, onClose func()) *NATSession {
	s := &NATSession{
		cfg:        cfg,
		cache:      cache,
		peer:       peer,
		write:      write,
		onClose:    onClose,
		targetAddr: hostAddress(cfg.TargetAddr, cfg.TargetPort),
		state:      natConnect,
		startTime:  time.Now(),
	}
	s.mu.Lock()
	s.resetIdleTimerLocked()
	s.mu.Unlock()
	go s.open()
	return s
}

// Process feeds datagram into the session if it came from the peer this
// session was created for, returning false otherwise so an external
// demultiplexer can route it elsewhere (spec.md §4.3 step 2).
func (s *NATSession) Process(from *net.UDPAddr, datagram []byte) bool {
	if from.String() != s.peer.String() {
		return false
	}
	s.feed(datagram)
	return true
}

// feed frames datagram for the configured target and either hands it to
// the write pump (tunnel already open) or buffers it until the tunnel is
// ready, subject to natPreHandshakeCap.
func (s *NATSession) feed(datagram []byte) {
	packet := trojan.GenerateUDPPacket(s.targetAddr, datagram)
	length := uint64(len(datagram))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == natDestroy {
		return
	}
	s.resetIdleTimerLocked()

	if s.pump != nil {
		atomic.AddUint64(&s.sentLen, length)
		s.pump.Enqueue(packet)
		return
	}
	if len(s.preBuf)+len(packet) > natPreHandshakeCap {
		log.Println(s.peer, "dropped a UDP packet due to rate limit")
		return
	}
	atomic.AddUint64(&s.sentLen, length)
	s.preBuf = append(s.preBuf, packet...)
}

func (s *NATSession) resetIdleTimerLocked() {
	timeout := time.Duration(s.cfg.UDPTimeout) * time.Second
	if s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(timeout, s.onIdleTimeout)
		return
	}
	s.idleTimer.Reset(timeout)
}

func (s *NATSession) onIdleTimeout() {
	log.Println(s.peer, "UDP session timeout")
	s.destroy()
}

// open performs the outbound connect+TLS-handshake flow shared with
// ClientSession (§4.2 steps 5-6), with the framing header pre-populated
// from the fixed target_addr/target_port instead of a SOCKS5 request.
func (s *NATSession) open() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	log.Println(s.peer, "forwarding UDP packets to", s.targetAddr, "via", s.cfg.RemoteHostPort())

	remote, resumed, err := trojan.DialRemote(ctx, s.cfg, s.cache)
	if err != nil {
		log.Println(s.peer, "cannot establish connection to remote server", s.cfg.RemoteHostPort(), err)
		s.destroy()
		return
	}
	log.Println(s.peer, "tunnel established")
	if s.cfg.SSL.ReuseSession {
		if resumed {
			log.Println(s.peer, "SSL session reused")
		} else {
			log.Println(s.peer, "SSL session not reused")
		}
	}
	trojan.SessionOpened()

	header := trojan.GenerateRequest(s.cfg.PasswordHex(), trojan.CmdConnect, s.targetAddr)
	pump := trojan.NewWritePump(remote, func(err error) {
		log.Println(s.peer, "tunnel write failed:", err)
		s.destroy()
	})

	s.mu.Lock()
	if s.state == natDestroy {
		s.mu.Unlock()
		remote.Close()
		return
	}
	pending := append(header, s.preBuf...)
	s.preBuf = nil
	s.pump = pump
	s.remote = remote
	s.opened = true
	s.state = natForwarding
	s.mu.Unlock()

	pump.Enqueue(pending)
	s.readLoop(remote)
}

// readLoop drains the tunnel into udp_data_buf and delivers each complete
// inner packet back to the peer via the injected write callback.
func (s *NATSession) readLoop(remote net.Conn) {
	var buf []byte
	readBuf := make([]byte, maxUDPFrame)
	for {
		n, err := remote.Read(readBuf)
		if err != nil {
			break
		}
		s.mu.Lock()
		s.resetIdleTimerLocked()
		s.mu.Unlock()

		buf = append(buf, readBuf[:n]...)
		for {
			pkt, consumed, perr := trojan.ParseUDPPacket(buf)
			if perr == trojan.ErrNeedMore {
				break
			}
			if perr != nil {
				log.Println(s.peer, "bad UDP packet from tunnel:", perr)
				s.destroy()
				return
			}
			buf = buf[consumed:]
			atomic.AddUint64(&s.recvLen, uint64(len(pkt.Payload)))
			s.write(s.peer, pkt.Payload)
		}
		if len(buf) > udpBufferCap {
			log.Println(s.peer, "UDP packet too long")
			s.destroy()
			return
		}
	}
	s.destroy()
}

func (s *NATSession) destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		s.state = natDestroy
		cancel := s.cancel
		pump := s.pump
		remote := s.remote
		timer := s.idleTimer
		opened := s.opened
		s.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if cancel != nil {
			cancel()
		}
		if pump != nil {
			pump.Close()
		}
		if remote != nil {
			remote.Close()
		}
		if opened {
			trojan.SessionClosed(atomic.LoadUint64(&s.sentLen), atomic.LoadUint64(&s.recvLen), false)
		}
		log.Printf("%s disconnected, %d bytes received, %d bytes sent, lasted for %s",
			s.peer, atomic.LoadUint64(&s.recvLen), atomic.LoadUint64(&s.sentLen), time.Since(s.startTime).Round(time.Second))

		if s.onClose != nil {
			s.onClose()
		}
	})
}
