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

package std

import (
	"net"
	"sync/atomic"
	"time"
)

// MeteredConn is a net.Conn wrapper that accounts every byte crossing it.
// Sessions wrap their outbound connection (the client its TLS tunnel, the
// server its connection to the destination) in one of these so sent/recv
// byte counters fall out of normal Read/Write calls instead of being
// threaded through every call site by hand.
type MeteredConn struct {
	conn net.Conn
	sent *uint64
	recv *uint64
}

func (c *MeteredConn) Read(p []byte) (n int, err error) {
	n, err = c.conn.Read(p)
	if n > 0 {
		atomic.AddUint64(c.recv, uint64(n))
	}
	return n, err
}

func (c *MeteredConn) Write(p []byte) (n int, err error) {
	n, err = c.conn.Write(p)
	if n > 0 {
		atomic.AddUint64(c.sent, uint64(n))
	}
	return n, err
}

func (c *MeteredConn) Close() error {
	return c.conn.Close()
}

func (c *MeteredConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *MeteredConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *MeteredConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *MeteredConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *MeteredConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// NewMeteredConn wraps conn so every byte read/written is added to sent/recv.
// Both counters must outlive the conn; sessions typically point them at
// their own sentLen/recvLen fields.
func NewMeteredConn(conn net.Conn, sent, recv *uint64) *MeteredConn {
	return &MeteredConn{conn: conn, sent: sent, recv: recv}
}
