package trojan

import (
	"net"
	"testing"
)

func TestParseGreetingAccepted(t *testing.T) {
	greeting := []byte{0x05, 0x02, 0x00, 0x01}
	if err := ParseGreeting(greeting); err != nil {
		t.Fatalf("ParseGreeting returned error: %v", err)
	}
}

func TestParseGreetingUnsupportedMethod(t *testing.T) {
	// Offers only "username/password" (0x02), no "no auth" (0x00).
	greeting := []byte{0x05, 0x01, 0x02}
	if err := ParseGreeting(greeting); err != ErrUnsupported {
		t.Fatalf("ParseGreeting = %v, want ErrUnsupported", err)
	}
}

func TestParseGreetingRejectsFragmentedInput(t *testing.T) {
	// A well-formed 4-byte greeting delivered as a 2-byte prefix is a
	// structural error, not ErrNeedMore: the greeting parser requires the
	// whole greeting to arrive in one read, bug-compatible with the source.
	if err := ParseGreeting([]byte{0x05, 0x02}); err != ErrMalformed {
		t.Fatalf("ParseGreeting(truncated) = %v, want ErrMalformed", err)
	}
}

func TestParseGreetingRejectsWrongVersion(t *testing.T) {
	if err := ParseGreeting([]byte{0x04, 0x01, 0x00}); err != ErrMalformed {
		t.Fatalf("ParseGreeting(bad version) = %v, want ErrMalformed", err)
	}
}

func TestParseSOCKS5RequestConnect(t *testing.T) {
	req := append([]byte{0x05, byte(CmdConnect), 0x00}, Address{Type: AddrIPv4, IP: net.ParseIP("1.2.3.4").To4(), Port: 80}.Encode()...)
	cmd, addr, err := ParseSOCKS5Request(req)
	if err != nil {
		t.Fatalf("ParseSOCKS5Request returned error: %v", err)
	}
	if cmd != CmdConnect {
		t.Fatalf("cmd = %v, want CmdConnect", cmd)
	}
	if addr.String() != "1.2.3.4:80" {
		t.Fatalf("addr = %s, want 1.2.3.4:80", addr.String())
	}
}

func TestParseSOCKS5RequestUnsupportedCommand(t *testing.T) {
	req := append([]byte{0x05, 0x02, 0x00}, Address{Type: AddrIPv4, IP: net.ParseIP("1.2.3.4").To4(), Port: 80}.Encode()...)
	if _, _, err := ParseSOCKS5Request(req); err != ErrUnsupported {
		t.Fatalf("ParseSOCKS5Request(BIND) = %v, want ErrUnsupported", err)
	}
}

func TestClientUDPDatagramRoundTrip(t *testing.T) {
	addr := Address{Type: AddrDomain, Domain: "example.com", Port: 53}
	payload := []byte("query")

	datagram := BuildLocalUDPDatagram(addr, payload)
	gotAddr, gotPayload, err := ParseClientUDPDatagram(datagram)
	if err == nil {
		// BuildLocalUDPDatagram's shape is exactly what ParseClientUDPDatagram
		// expects, since both sides share RSV(2) FRAG(1) atyp addr payload.
		if gotAddr.String() != addr.String() {
			t.Fatalf("addr mismatch: got %s, want %s", gotAddr.String(), addr.String())
		}
		if string(gotPayload) != string(payload) {
			t.Fatalf("payload mismatch: got %q, want %q", gotPayload, payload)
		}
		return
	}
	t.Fatalf("ParseClientUDPDatagram returned error: %v", err)
}

func TestParseClientUDPDatagramRejectsNonZeroFrag(t *testing.T) {
	addr := Address{Type: AddrIPv4, IP: net.ParseIP("1.1.1.1").To4(), Port: 53}
	datagram := append([]byte{0x00, 0x00, 0x01}, addr.Encode()...)
	if _, _, err := ParseClientUDPDatagram(datagram); err != ErrMalformed {
		t.Fatalf("ParseClientUDPDatagram(frag=1) = %v, want ErrMalformed", err)
	}
}
