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
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/xtaci/trojanc/std"
	"github.com/xtaci/trojanc/trojan"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "trojan-client"
	myApp.Usage = "SOCKS5-speaking client for a TLS-tunneled circumvention proxy"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "localaddr, l",
			Value: "127.0.0.1:1080",
			Usage: "local SOCKS5 listen address",
		},
		cli.StringFlag{
			Name:  "remoteaddr, r",
			Value: "example.com:443",
			Usage: `TLS relay address, eg: "example.com:443"`,
		},
		cli.StringSliceFlag{
			Name:   "password",
			Usage:  "pre-shared secret presented to the relay; first value is used for framing",
			EnvVar: "TROJANC_PASSWORD",
		},
		cli.StringFlag{
			Name:  "sni",
			Value: "",
			Usage: "TLS server name to present; defaults to remoteaddr's host",
		},
		cli.BoolFlag{
			Name:  "verify-cert",
			Usage: "verify the relay's TLS certificate against the system trust store",
		},
		cli.BoolFlag{
			Name:  "reuse-session",
			Usage: "enable TLS session ticket resumption",
		},
		cli.BoolFlag{
			Name:  "tcp-nodelay",
			Usage: "disable Nagle's algorithm on the outbound leg",
		},
		cli.BoolFlag{
			Name:  "tcp-keepalive",
			Usage: "enable TCP keepalive on the outbound leg",
		},
		cli.BoolFlag{
			Name:  "tcp-fastopen",
			Usage: "enable TCP_FASTOPEN_CONNECT on the outbound leg (linux only, best-effort)",
		},
		cli.BoolFlag{
			Name:  "append-payload",
			Usage: "read the first user payload while connecting, so it can be sent with the request header",
		},
		cli.IntFlag{
			Name:  "udp-timeout",
			Value: 60,
			Usage: "seconds of idleness before a NAT-mode UDP session is destroyed",
		},
		cli.BoolFlag{
			Name:  "nat-mode",
			Usage: "run as a fixed-destination UDP forwarder instead of a SOCKS5 proxy",
		},
		cli.StringFlag{
			Name:  "nat-listen",
			Value: "127.0.0.1:1081",
			Usage: "UDP address to listen on in nat-mode",
		},
		cli.StringFlag{
			Name:  "target-addr",
			Usage: "fixed destination address:port forwarded to in nat-mode",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "collect session stats to a CSV file, aware of Go time formatting in the path",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 60,
			Usage: "stats collection period, in seconds",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on 127.0.0.1:6060",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from a JSON file; fields set in the file override the command-line flags",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.LocalAddr = c.String("localaddr")
		config.Remote = c.String("remoteaddr")
		config.Password = c.StringSlice("password")
		config.SSLSNI = c.String("sni")
		config.SSLVerify = c.Bool("verify-cert")
		config.SSLReuseSession = c.Bool("reuse-session")
		config.TCPNoDelay = c.Bool("tcp-nodelay")
		config.TCPKeepAlive = c.Bool("tcp-keepalive")
		config.TCPFastOpen = c.Bool("tcp-fastopen")
		config.AppendPayload = c.Bool("append-payload")
		config.UDPTimeout = c.Int("udp-timeout")
		config.NATMode = c.Bool("nat-mode")
		config.NATListen = c.String("nat-listen")
		config.TargetAddr = c.String("target-addr")
		config.Log = c.String("log")
		config.StatsLog = c.String("statslog")
		config.StatsEvery = c.Int("statsperiod")
		config.Pprof = c.Bool("pprof")

		if c.String("c") != "" {
			checkError(parseJSONConfig(&config, c.String("c")))
		}

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		if len(config.Password) == 0 {
			color.Red("ERROR: no password configured; at least one -password is required")
			os.Exit(-1)
		}
		if config.NATMode && config.TargetAddr == "" {
			log.Fatal("nat-mode requires -target-addr")
		}

		log.Println("version:", VERSION)
		log.Println("remote address:", config.Remote)
		log.Println("ssl reuse session:", config.SSLReuseSession)
		log.Println("append payload:", config.AppendPayload)
		log.Println("udp timeout:", config.UDPTimeout)
		log.Println("nat mode:", config.NATMode)

		trojanCfg, err := config.toTrojanConfig()
		checkError(err)

		cache := trojan.NewSingleSlotCache()

		if config.Pprof {
			go func() {
				log.Println(http.ListenAndServe("127.0.0.1:6060", nil))
			}()
		}

		if config.StatsLog != "" {
			go std.StatsLogger(config.StatsLog, config.StatsEvery, func() std.StatRow {
				return trojan.Snapshot()
			})
		}

		if config.NATMode {
			return runNATMode(trojanCfg, cache, &config)
		}
		return runSOCKS5(trojanCfg, cache, &config)
	}

	checkError(myApp.Run(os.Args))
}

// runSOCKS5 accepts local SOCKS5 connections forever, spawning one
// ClientSession per connection.
func runSOCKS5(cfg *trojan.Config, cache *trojan.SingleSlotCache, rawCfg *Config) error {
	listener, err := net.Listen("tcp", rawCfg.LocalAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", rawCfg.LocalAddr)
	}
	log.Println("listening on:", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Println("accept:", err)
			continue
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		go NewClientSession(cfg, cache, tcpConn).Run()
	}
}

// runNATMode listens on one UDP socket and forwards every peer it sees to
// the configured fixed destination.
func runNATMode(cfg *trojan.Config, cache *trojan.SingleSlotCache, rawCfg *Config) error {
	udpAddr, err := net.ResolveUDPAddr("udp", rawCfg.NATListen)
	if err != nil {
		return errors.Wrapf(err, "resolve nat-listen address %s", rawCfg.NATListen)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", rawCfg.NATListen)
	}
	log.Println("nat-mode listening on:", conn.LocalAddr(), "forwarding to", rawCfg.TargetAddr)

	NewNATListener(conn, cfg, cache).Serve()
	return nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
