package trojan

import "testing"

func TestConfigPasswordHexUsesFirstEntry(t *testing.T) {
	cfg := &Config{Password: []PasswordEntry{
		NewPasswordEntry("first"),
		NewPasswordEntry("second"),
	}}
	if got, want := cfg.PasswordHex(), cfg.Password[0].Hex; got != want {
		t.Fatalf("PasswordHex() = %q, want %q", got, want)
	}
}

func TestConfigPasswordHexPanicsWithoutPassword(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("PasswordHex() did not panic with no configured password")
		}
	}()
	(&Config{}).PasswordHex()
}

func TestConfigHasPasswordHexMatchesAnyConfigured(t *testing.T) {
	cfg := &Config{Password: []PasswordEntry{
		NewPasswordEntry("alice-secret"),
		NewPasswordEntry("bob-secret"),
	}}

	if !cfg.HasPasswordHex(HashPassword("bob-secret")) {
		t.Fatalf("HasPasswordHex rejected a configured password's digest")
	}
	if cfg.HasPasswordHex(HashPassword("mallory-secret")) {
		t.Fatalf("HasPasswordHex accepted an unconfigured digest")
	}
}

func TestRemoteHostPort(t *testing.T) {
	cfg := &Config{RemoteAddr: "relay.example.com", RemotePort: 443}
	if got, want := cfg.RemoteHostPort(), "relay.example.com:443"; got != want {
		t.Fatalf("RemoteHostPort() = %q, want %q", got, want)
	}
}
