package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONConfigSuccessClient(t *testing.T) {
	path := writeTempClientConfig(t, `{"local_addr":"127.0.0.1:1080","remote_addr":"relay.example.com:443","password":["secret"],"ssl_reuse_session":true,"udp_timeout":60}`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("parseJSONConfig returned error: %v", err)
	}

	if cfg.LocalAddr != "127.0.0.1:1080" || cfg.Remote != "relay.example.com:443" {
		t.Fatalf("unexpected addresses: %+v", cfg)
	}
	if len(cfg.Password) != 1 || cfg.Password[0] != "secret" {
		t.Fatalf("unexpected password: %+v", cfg.Password)
	}
	if !cfg.SSLReuseSession || cfg.UDPTimeout != 60 {
		t.Fatalf("unexpected field values: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFileClient(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := parseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("parseJSONConfig expected error for missing file")
	}
}

func TestConfigToTrojanConfig(t *testing.T) {
	cfg := Config{
		Remote:    "relay.example.com:443",
		Password:  []string{"first", "second"},
		SSLVerify: true,
	}
	tc, err := cfg.toTrojanConfig()
	if err != nil {
		t.Fatalf("toTrojanConfig returned error: %v", err)
	}
	if tc.RemoteAddr != "relay.example.com" || tc.RemotePort != 443 {
		t.Fatalf("unexpected remote: %+v", tc)
	}
	if len(tc.Password) != 2 || tc.PasswordHex() != tc.Password[0].Hex {
		t.Fatalf("password ordering not preserved: %+v", tc.Password)
	}
	if !tc.SSL.Verify {
		t.Fatalf("expected SSLVerify to carry through to trojan.Config")
	}
}

func TestConfigToTrojanConfigBadRemote(t *testing.T) {
	cfg := Config{Remote: "not-a-hostport", Password: []string{"x"}}
	if _, err := cfg.toTrojanConfig(); err == nil {
		t.Fatalf("expected error for malformed remote address")
	}
}

func writeTempClientConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
