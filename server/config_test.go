package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONConfigSuccess(t *testing.T) {
	path := writeTempConfig(t, `{"listen":"0.0.0.0:443","cert_file":"/etc/trojanc/fullchain.pem","key_file":"/etc/trojanc/privkey.pem","password":["secret"],"stats_period":60}`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("parseJSONConfig returned error: %v", err)
	}

	if cfg.Listen != "0.0.0.0:443" {
		t.Fatalf("unexpected listen address: %+v", cfg)
	}
	if cfg.CertFile != "/etc/trojanc/fullchain.pem" || cfg.KeyFile != "/etc/trojanc/privkey.pem" {
		t.Fatalf("unexpected cert/key paths: %+v", cfg)
	}
	if len(cfg.Password) != 1 || cfg.Password[0] != "secret" {
		t.Fatalf("unexpected password: %+v", cfg.Password)
	}
	if cfg.StatsEvery != 60 {
		t.Fatalf("unexpected stats period: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFile(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := parseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("parseJSONConfig expected error for missing file")
	}
}

func TestConfigToTrojanConfigAuthenticatesConfiguredPasswords(t *testing.T) {
	cfg := Config{Password: []string{"first", "second"}}
	tc := cfg.toTrojanConfig()

	if len(tc.Password) != 2 {
		t.Fatalf("expected both passwords to be hashed: %+v", tc.Password)
	}
	if !tc.HasPasswordHex(tc.Password[1].Hex) {
		t.Fatalf("expected HasPasswordHex to recognise every configured password")
	}
	if tc.HasPasswordHex("0000") {
		t.Fatalf("HasPasswordHex accepted an unconfigured digest")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
