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

// Config is the flat, JSON-tagged CLI configuration for the relay binary.
// It is populated first from command-line flags, then optionally overridden
// by a JSON file via -c, matching the client's own convention: fields
// present in the file replace the flag values, fields absent keep them.
type Config struct {
	Listen   string   `json:"listen"`
	CertFile string   `json:"cert_file"`
	KeyFile  string   `json:"key_file"`
	Password []string `json:"password"`

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

// toTrojanConfig builds the password set inbound requests are authenticated
// against. The server never frames an outbound request itself, so the
// other trojan.Config fields (remote dial target, TLS dial options,
// NAT-mode target) are left zero; only HasPasswordHex is ever called on
// the result.
func (c *Config) toTrojanConfig() *trojan.Config {
	passwords := make([]trojan.PasswordEntry, 0, len(c.Password))
	for _, p := range c.Password {
		passwords = append(passwords, trojan.NewPasswordEntry(p))
	}
	return &trojan.Config{Password: passwords}
}
