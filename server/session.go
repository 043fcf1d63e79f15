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
	"crypto/tls"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/xtaci/trojanc/std"
	"github.com/xtaci/trojanc/trojan"
)

const (
	maxUDPFrame      = 64 * 1024
	udpBufferCap     = maxUDPFrame * 4
	requestBufferCap = 4096
	relayCloseWait   = 0
)

// ServerSession terminates one inbound TLS connection: it reads the
// TrojanRequest header, authenticates the presented secret, then relays
// either a plain TCP stream (CONNECT) or an inner UDP_FORWARD byte stream
// (UDP_ASSOCIATE) to the requested destination. It is the accept-side
// mirror of client.ClientSession.
type ServerSession struct {
	cfg  *trojan.Config
	conn *tls.Conn

	startTime time.Time
	sentLen   uint64
	recvLen   uint64
}

// NewServerSession wraps an already-handshaked inbound TLS connection.
func NewServerSession(cfg *trojan.Config, conn *tls.Conn) *ServerSession {
	return &ServerSession{cfg: cfg, conn: conn}
}

func (s *ServerSession) peer() net.Addr {
	return s.conn.RemoteAddr()
}

// Run blocks until the session is fully torn down.
func (s *ServerSession) Run() {
	s.startTime = time.Now()
	defer s.conn.Close()

	passwordHex, req, trailing, err := s.readRequest()
	if err != nil {
		log.Println(s.peer(), "bad request:", err)
		return
	}
	if !s.cfg.HasPasswordHex(passwordHex) {
		log.Println(s.peer(), "authentication failed")
		return
	}

	trojan.SessionOpened()
	failed := false
	defer func() {
		trojan.SessionClosed(atomic.LoadUint64(&s.sentLen), atomic.LoadUint64(&s.recvLen), failed)
		log.Printf("%s disconnected, %d bytes sent, %d bytes received, lasted for %s",
			s.peer(), s.sentLen, s.recvLen, time.Since(s.startTime).Round(time.Second))
	}()

	switch req.Command {
	case trojan.CmdConnect:
		log.Println(s.peer(), "requested connection to", req.Address)
		failed = s.relayTCP(req.Address, trailing)
	case trojan.CmdUDPAssociate:
		log.Println(s.peer(), "requested UDP associate")
		failed = s.relayUDP(trailing)
	default:
		failed = true
	}
}

// readRequest grows a buffer from the TLS connection until ParseRequest
// succeeds, returning any bytes past the header as already-arrived payload
// (the source's client_read -> out_write_buf carry-over, mirrored on the
// accept side).
func (s *ServerSession) readRequest() (passwordHex string, req trojan.TrojanRequest, trailing []byte, err error) {
	buf := make([]byte, 0, requestBufferCap)
	chunk := make([]byte, requestBufferCap)
	for {
		passwordHex, req, consumed, perr := trojan.ParseRequest(buf)
		if perr == nil {
			trailing = append([]byte(nil), buf[consumed:]...)
			return passwordHex, req, trailing, nil
		}
		if perr != trojan.ErrNeedMore {
			return "", trojan.TrojanRequest{}, nil, perr
		}
		n, rerr := s.conn.Read(chunk)
		if rerr != nil {
			return "", trojan.TrojanRequest{}, nil, rerr
		}
		buf = append(buf, chunk[:n]...)
	}
}

// relayTCP dials the requested destination and pipes the remainder of the
// TLS stream to it verbatim. It returns true if the session should be
// counted as a failure.
func (s *ServerSession) relayTCP(addr trojan.Address, trailing []byte) bool {
	target, err := net.Dial("tcp", addr.String())
	if err != nil {
		log.Println(s.peer(), "cannot connect to", addr, err)
		return true
	}
	defer target.Close()

	if len(trailing) > 0 {
		if _, werr := target.Write(trailing); werr != nil {
			log.Println(s.peer(), "write to target failed:", werr)
			return true
		}
		atomic.AddUint64(&s.sentLen, uint64(len(trailing)))
	}

	metered := std.NewMeteredConn(target, &s.sentLen, &s.recvLen)
	err1, err2 := std.Pipe(s.conn, metered, relayCloseWait)
	if err1 != nil && err1 != io.EOF {
		log.Println(s.peer(), "pipe:", err1)
	}
	if err2 != nil && err2 != io.EOF {
		log.Println(s.peer(), "pipe:", err2)
	}
	return false
}

// relayUDP drives the accept side of UDP_FORWARD: inner UDPPacket frames
// arriving over the TLS stream are unwrapped and sent from one shared
// outbound UDP socket (since distinct packets may target distinct
// destinations), and whatever that socket reads back is rewrapped and
// pushed back down the tunnel via a WritePump.
func (s *ServerSession) relayUDP(trailing []byte) bool {
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		log.Println(s.peer(), "cannot open UDP relay socket:", err)
		return true
	}
	defer udpConn.Close()

	pump := trojan.NewWritePump(s.conn, func(err error) {
		log.Println(s.peer(), "tunnel write failed:", err)
		udpConn.Close()
	})
	defer pump.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, maxUDPFrame)
		for {
			n, from, rerr := udpConn.ReadFromUDP(buf)
			if rerr != nil {
				return
			}
			if n == 0 {
				continue
			}
			atomic.AddUint64(&s.recvLen, uint64(n))
			payload := make([]byte, n)
			copy(payload, buf[:n])
			pump.Enqueue(trojan.GenerateUDPPacket(addrFromUDP(from), payload))
		}
	}()

	udpDataBuf := append([]byte(nil), trailing...)
	readBuf := make([]byte, maxUDPFrame)
	failed := false
readLoop:
	for {
		for {
			pkt, consumed, perr := trojan.ParseUDPPacket(udpDataBuf)
			if perr == trojan.ErrNeedMore {
				break
			}
			if perr != nil {
				log.Println(s.peer(), "bad UDP packet from tunnel:", perr)
				failed = true
				break readLoop
			}
			udpDataBuf = udpDataBuf[consumed:]
			if dest := resolveUDPAddr(pkt.Address); dest != nil {
				if _, werr := udpConn.WriteToUDP(pkt.Payload, dest); werr == nil {
					atomic.AddUint64(&s.sentLen, uint64(len(pkt.Payload)))
				}
			}
		}
		if len(udpDataBuf) > udpBufferCap {
			log.Println(s.peer(), "UDP packet too long")
			failed = true
			break
		}
		n, rerr := s.conn.Read(readBuf)
		if rerr != nil {
			break
		}
		udpDataBuf = append(udpDataBuf, readBuf[:n]...)
	}
	udpConn.Close()
	<-done
	return failed
}
