// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/trojanc/std"
	"github.com/xtaci/trojanc/trojan"
)

const (
	maxUDPFrame      = 64 * 1024
	udpBufferCap     = maxUDPFrame * 4
	sessionCloseWait = 0
)

type sessionState int32

const (
	stateHandshake sessionState = iota
	stateRequest
	stateConnect
	stateForward
	stateUDPForward
	stateInvalid
	stateDestroy
)

// ClientSession drives one accepted local SOCKS5 connection end to end:
// greeting, request, outbound trojan handshake, and relay, in that order,
// on a single goroutine. It is the one-goroutine-plus-write-pump
// realization of the state machine: HANDSHAKE, REQUEST, CONNECT, FORWARD
// or UDP_FORWARD, INVALID, DESTROY.
type ClientSession struct {
	cfg   *trojan.Config
	cache *trojan.SingleSlotCache

	in      *net.TCPConn
	udp     *net.UDPConn
	udpPeer *net.UDPAddr
	remote  net.Conn

	state sessionState

	startTime time.Time
	sentLen   uint64
	recvLen   uint64
	opened    bool
	failed    int32

	cancel      context.CancelFunc
	destroyOnce sync.Once
}

// markFailed records that the session is ending abnormally, for the
// failed column SessionClosed reports in the CSV stats log. Safe to call
// from any of the session's goroutines (pump callback, local-read
// watchers, the main forward loop).
func (s *ClientSession) markFailed() {
	atomic.StoreInt32(&s.failed, 1)
}

// NewClientSession wraps an already-accepted local connection.
func NewClientSession(cfg *trojan.Config, cache *trojan.SingleSlotCache, in *net.TCPConn) *ClientSession {
	return &ClientSession{cfg: cfg, cache: cache, in: in, state: stateHandshake}
}

func (s *ClientSession) peer() net.Addr {
	return s.in.RemoteAddr()
}

// Run blocks until the session is fully torn down.
func (s *ClientSession) Run() {
	s.startTime = time.Now()
	defer s.destroy()

	if err := s.handshake(); err != nil {
		if err == trojan.ErrUnsupported {
			log.Println(s.peer(), "unsupported auth method")
			s.in.Write(trojan.GreetingReject())
		} else {
			log.Println(s.peer(), "unknown protocol:", err)
		}
		return
	}

	cmd, addr, isUDP, err := s.request()
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	remote, resumed, rawFirst, err := s.openTunnel(ctx, isUDP)
	if err != nil {
		log.Println(s.peer(), "cannot establish connection to remote server", s.cfg.RemoteHostPort(), err)
		return
	}
	s.remote = remote
	log.Println(s.peer(), "tunnel established")
	if s.cfg.SSL.ReuseSession {
		if resumed {
			log.Println(s.peer(), "SSL session reused")
		} else {
			log.Println(s.peer(), "SSL session not reused")
		}
	}

	trojan.SessionOpened()
	s.opened = true

	firstFramed := s.frameFirstPayload(isUDP, rawFirst)

	header := trojan.GenerateRequest(s.cfg.PasswordHex(), cmd, addr)
	if _, err := remote.Write(append(header, firstFramed...)); err != nil {
		log.Println(s.peer(), "write to tunnel failed:", err)
		s.markFailed()
		remote.Close()
		return
	}

	if isUDP {
		s.state = stateUDPForward
		log.Println(s.peer(), "requested UDP associate to", addr, "via relay", s.udp.LocalAddr())
		s.forwardUDP(remote)
	} else {
		s.state = stateForward
		log.Println(s.peer(), "requested connection to", addr)
		s.forwardTCP(remote)
	}
}

func (s *ClientSession) handshake() error {
	buf := make([]byte, 4096)
	n, err := s.in.Read(buf)
	if err != nil {
		return err
	}
	if err := trojan.ParseGreeting(buf[:n]); err != nil {
		return err
	}
	_, err = s.in.Write(trojan.GreetingAccept())
	s.state = stateRequest
	return err
}

// request reads and parses the SOCKS5 request, replies, and for
// UDP_ASSOCIATE opens the local relay UDP socket. It returns isUDP so the
// caller knows which forwarding mode to drive.
func (s *ClientSession) request() (cmd trojan.Command, addr trojan.Address, isUDP bool, err error) {
	buf := make([]byte, 4096)
	n, rerr := s.in.Read(buf)
	if rerr != nil {
		return 0, trojan.Address{}, false, rerr
	}
	cmd, addr, perr := trojan.ParseSOCKS5Request(buf[:n])
	if perr == trojan.ErrUnsupported {
		log.Println(s.peer(), "unsupported command")
		s.in.Write(trojan.ReplyCommandNotSupported())
		s.state = stateInvalid
		return 0, trojan.Address{}, false, perr
	}
	if perr != nil {
		log.Println(s.peer(), "bad request:", perr)
		return 0, trojan.Address{}, false, perr
	}

	isUDP = cmd == trojan.CmdUDPAssociate
	if isUDP {
		localIP := s.in.LocalAddr().(*net.TCPAddr).IP
		udpConn, uerr := net.ListenUDP("udp", &net.UDPAddr{IP: localIP, Port: 0})
		if uerr != nil {
			log.Println(s.peer(), "cannot open UDP relay socket:", uerr)
			return 0, trojan.Address{}, false, uerr
		}
		s.udp = udpConn
		bound := addrFromUDP(udpConn.LocalAddr().(*net.UDPAddr))
		if _, werr := s.in.Write(trojan.ReplyUDPAssociate(bound)); werr != nil {
			return 0, trojan.Address{}, false, werr
		}
	} else {
		if _, werr := s.in.Write(trojan.ReplyConnectSuccess()); werr != nil {
			return 0, trojan.Address{}, false, werr
		}
	}
	s.state = stateConnect
	return cmd, addr, isUDP, nil
}

// openTunnel dials the remote relay and performs the TLS handshake,
// racing it against a read of the user's first payload when append_payload
// is configured. If the handshake wins the race the pending read is
// cancelled, and whatever bytes that read had already taken off the local
// socket are still returned as the first payload: the first-payload read
// is best-effort, never allowed to delay the tunnel's opening.
func (s *ClientSession) openTunnel(ctx context.Context, isUDP bool) (conn net.Conn, resumed bool, firstPayload []byte, err error) {
	type dialResult struct {
		conn    net.Conn
		resumed bool
		err     error
	}
	dialCh := make(chan dialResult, 1)
	go func() {
		c, r, e := trojan.DialRemote(ctx, s.cfg, s.cache)
		dialCh <- dialResult{c, r, e}
	}()

	if s.cfg.AppendPayload {
		payloadCh := make(chan []byte, 1)
		go func() {
			buf := make([]byte, maxUDPFrame)
			var n int
			var rerr error
			if isUDP {
				var peer *net.UDPAddr
				n, peer, rerr = s.udp.ReadFromUDP(buf)
				if rerr == nil {
					s.udpPeer = peer
				}
			} else {
				n, rerr = s.in.Read(buf)
			}
			if rerr != nil || n == 0 {
				payloadCh <- nil
				return
			}
			payloadCh <- buf[:n]
		}()

		select {
		case firstPayload = <-payloadCh:
		case dr := <-dialCh:
			// The handshake won the race: cancel the pending read and
			// clear the deadline again before forwarding begins, so it
			// does not poison the relay's own reads. select chooses
			// pseudo-randomly among ready cases, so the racer goroutine
			// may already have drained real payload bytes off the socket
			// by the time this branch runs; capture them rather than
			// discard them, since they can never be re-read.
			cutoff := time.Unix(0, 1)
			if isUDP {
				s.udp.SetReadDeadline(cutoff)
				firstPayload = <-payloadCh
				s.udp.SetReadDeadline(time.Time{})
			} else {
				s.in.SetReadDeadline(cutoff)
				firstPayload = <-payloadCh
				s.in.SetReadDeadline(time.Time{})
			}
			return dr.conn, dr.resumed, firstPayload, dr.err
		}
	}

	dr := <-dialCh
	return dr.conn, dr.resumed, firstPayload, dr.err
}

// frameFirstPayload turns the raw bytes openTunnel raced off the local
// peer into whatever belongs right after the TrojanRequest header: the
// bytes verbatim for CONNECT, or one framed inner UDP packet for
// UDP_ASSOCIATE (the source's udp_recv-while-CONNECT path). It also
// accounts the payload bytes into sentLen, exactly as the source does
// before out_write_buf ever touches the network.
func (s *ClientSession) frameFirstPayload(isUDP bool, raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	if !isUDP {
		atomic.AddUint64(&s.sentLen, uint64(len(raw)))
		return raw
	}
	addr, payload, err := trojan.ParseClientUDPDatagram(raw)
	if err != nil {
		log.Println(s.peer(), "bad UDP packet:", err)
		s.markFailed()
		s.destroy()
		return nil
	}
	atomic.AddUint64(&s.sentLen, uint64(len(payload)))
	return trojan.GenerateUDPPacket(addr, payload)
}

// forwardTCP relays bytes bidirectionally between the local connection and
// the outbound tunnel. Once the header has been written, every further
// byte in either direction is pure user payload, so wrapping remote in a
// MeteredConn here gives exact sent/recv accounting for free.
func (s *ClientSession) forwardTCP(remote net.Conn) {
	metered := std.NewMeteredConn(remote, &s.sentLen, &s.recvLen)
	err1, err2 := std.Pipe(s.in, metered, sessionCloseWait)
	if err1 != nil && err1 != io.EOF {
		log.Println(s.peer(), "pipe:", err1)
		s.markFailed()
	}
	if err2 != nil && err2 != io.EOF {
		log.Println(s.peer(), "pipe:", err2)
		s.markFailed()
	}
}

// forwardUDP drives the UDP_FORWARD leg: local datagrams are framed and
// handed to a WritePump; bytes read back from the tunnel accumulate into a
// growing buffer that is parsed in a loop, each complete inner packet
// rewrapped as a SOCKS5 UDP datagram and sent to whichever peer address
// was last heard from. A byte arriving on the TCP control connection, or
// that connection closing, destroys the session per spec.md's edge case:
// the control connection is expected to stay silent while UDP_FORWARD is
// active.
func (s *ClientSession) forwardUDP(remote net.Conn) {
	pump := trojan.NewWritePump(remote, func(err error) {
		log.Println(s.peer(), "tunnel write failed:", err)
		s.markFailed()
		s.destroy()
	})
	defer pump.Close()

	go func() {
		buf := make([]byte, 1)
		if n, err := s.in.Read(buf); err == nil && n > 0 {
			log.Println(s.peer(), "unexpected data from TCP port")
			s.markFailed()
		}
		s.destroy()
	}()

	localDone := make(chan struct{})
	go func() {
		defer close(localDone)
		buf := make([]byte, maxUDPFrame)
		for {
			n, peer, err := s.udp.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			s.udpPeer = peer
			addr, payload, perr := trojan.ParseClientUDPDatagram(buf[:n])
			if perr != nil {
				log.Println(s.peer(), "bad UDP packet:", perr)
				s.markFailed()
				s.destroy()
				return
			}
			atomic.AddUint64(&s.sentLen, uint64(len(payload)))
			pump.Enqueue(trojan.GenerateUDPPacket(addr, payload))
		}
	}()

	var udpDataBuf []byte
	readBuf := make([]byte, maxUDPFrame)
	for {
		n, err := remote.Read(readBuf)
		if err != nil {
			break
		}
		udpDataBuf = append(udpDataBuf, readBuf[:n]...)
		for {
			pkt, consumed, perr := trojan.ParseUDPPacket(udpDataBuf)
			if perr == trojan.ErrNeedMore {
				break
			}
			if perr != nil {
				log.Println(s.peer(), "bad UDP packet from tunnel:", perr)
				s.markFailed()
				s.destroy()
				return
			}
			udpDataBuf = udpDataBuf[consumed:]
			atomic.AddUint64(&s.recvLen, uint64(len(pkt.Payload)))
			if s.udpPeer != nil {
				reply := trojan.BuildLocalUDPDatagram(pkt.Address, pkt.Payload)
				s.udp.WriteToUDP(reply, s.udpPeer)
			}
		}
		if len(udpDataBuf) > udpBufferCap {
			log.Println(s.peer(), "UDP packet too long")
			s.markFailed()
			break
		}
	}
	<-localDone
}

// destroy is idempotent: the source's guard against double-teardown,
// expressed with sync.Once instead of a DESTROY state comparison.
func (s *ClientSession) destroy() {
	s.destroyOnce.Do(func() {
		failed := atomic.LoadInt32(&s.failed) != 0
		s.state = stateDestroy
		if s.cancel != nil {
			s.cancel()
		}
		s.in.Close()
		if s.udp != nil {
			s.udp.Close()
		}
		if s.remote != nil {
			s.remote.Close()
		}
		if s.opened {
			trojan.SessionClosed(atomic.LoadUint64(&s.sentLen), atomic.LoadUint64(&s.recvLen), failed)
		}
		log.Printf("%s disconnected, %d bytes received, %d bytes sent, lasted for %s",
			s.peer(), s.recvLen, s.sentLen, time.Since(s.startTime).Round(time.Second))
	})
}

