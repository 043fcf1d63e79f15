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
	"encoding/json"
	"os"

	"github.com/xtaci/trojanc/trojan"
)

// Config is the flat, JSON-tagged CLI configuration for the client binary.
// It is populated first from command-line flags, then optionally
// overridden by a JSON file via -c, matching the teacher's own
// parseJSONConfig convention: fields present in the file replace the flag
// values, fields absent from it keep them.
type Config struct {
	LocalAddr string   `json:"local_addr"`
	Remote    string   `json:"remote_addr"`
	Password  []string `json:"password"`

	SSLSNI          string `json:"ssl_sni"`
	SSLVerify       bool   `json:"ssl_verify"`
	SSLReuseSession bool   `json:"ssl_reuse_session"`

	TCPNoDelay   bool `json:"tcp_no_delay"`
	TCPKeepAlive bool `json:"tcp_keep_alive"`
	TCPFastOpen  bool `json:"tcp_fast_open"`

	AppendPayload bool `json:"append_payload"`
	UDPTimeout    int  `json:"udp_timeout"`

	NATMode    bool   `json:"nat_mode"`
	NATListen  string `json:"nat_listen"`
	TargetAddr string `json:"target_addr"`

	Log        string `json:"log"`
	StatsLog   string `json:"stats_log"`
	StatsEvery int    `json:"stats_period"`
	Pprof      bool   `json:"pprof"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}

// toTrojanConfig builds the immutable per-session snapshot sessions will
// share for the lifetime of the process.
func (c *Config) toTrojanConfig() (*trojan.Config, error) {
	remoteHost, remotePort, err := splitHostPort(c.Remote)
	if err != nil {
		return nil, err
	}

	passwords := make([]trojan.PasswordEntry, 0, len(c.Password))
	for _, p := range c.Password {
		passwords = append(passwords, trojan.NewPasswordEntry(p))
	}

	cfg := &trojan.Config{
		RemoteAddr: remoteHost,
		RemotePort: remotePort,
		Password:   passwords,
		SSL: trojan.SSLConfig{
			SNI:          c.SSLSNI,
			Verify:       c.SSLVerify,
			ReuseSession: c.SSLReuseSession,
		},
		TCP: trojan.TCPConfig{
			NoDelay:   c.TCPNoDelay,
			KeepAlive: c.TCPKeepAlive,
			FastOpen:  c.TCPFastOpen,
		},
		AppendPayload: c.AppendPayload,
		UDPTimeout:    c.UDPTimeout,
	}

	if c.NATMode {
		targetHost, targetPort, terr := splitHostPort(c.TargetAddr)
		if terr != nil {
			return nil, terr
		}
		cfg.TargetAddr = targetHost
		cfg.TargetPort = targetPort
	}

	return cfg, nil
}
