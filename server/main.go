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
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/fatih/color"
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
	myApp.Name = "trojan-server"
	myApp.Usage = "TLS relay endpoint for a SOCKS5-speaking circumvention client"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: "0.0.0.0:443",
			Usage: "TLS listen address",
		},
		cli.StringFlag{
			Name:  "cert-file",
			Usage: "PEM certificate chain presented during the TLS handshake",
		},
		cli.StringFlag{
			Name:  "key-file",
			Usage: "PEM private key matching cert-file",
		},
		cli.StringSliceFlag{
			Name:   "password",
			Usage:  "pre-shared secret accepted from clients; may be repeated",
			EnvVar: "TROJANC_PASSWORD",
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
		config.Listen = c.String("listen")
		config.CertFile = c.String("cert-file")
		config.KeyFile = c.String("key-file")
		config.Password = c.StringSlice("password")
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
			color.Red("WARNING: no password configured; every inbound session will be rejected")
		}
		if config.CertFile == "" || config.KeyFile == "" {
			log.Fatal("cert-file and key-file are required")
		}

		log.Println("version:", VERSION)
		log.Println("listening on:", config.Listen)
		log.Println("cert file:", config.CertFile)

		cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		checkError(err)

		trojanCfg := config.toTrojanConfig()

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

		return runServer(trojanCfg, &config, cert)
	}

	checkError(myApp.Run(os.Args))
}

// runServer accepts inbound TLS connections forever, spawning one
// ServerSession per connection.
func runServer(cfg *trojan.Config, rawCfg *Config, cert tls.Certificate) error {
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}
	listener, err := tls.Listen("tcp", rawCfg.Listen, tlsConfig)
	if err != nil {
		return err
	}
	log.Println("relay listening on:", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Println("accept:", err)
			continue
		}
		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			conn.Close()
			continue
		}
		go NewServerSession(cfg, tlsConn).Run()
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
