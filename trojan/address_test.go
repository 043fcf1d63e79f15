package trojan

import (
	"net"
	"testing"
)

func TestAddressEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Address{
		{Type: AddrIPv4, IP: net.ParseIP("1.2.3.4").To4(), Port: 443},
		{Type: AddrIPv6, IP: net.ParseIP("2001:db8::1").To16(), Port: 8443},
		{Type: AddrDomain, Domain: "example.com", Port: 80},
	}

	for _, addr := range cases {
		encoded := addr.Encode()
		decoded, n, err := DecodeAddress(encoded)
		if err != nil {
			t.Fatalf("DecodeAddress(%v) returned error: %v", addr, err)
		}
		if n != len(encoded) {
			t.Fatalf("DecodeAddress consumed %d, want %d", n, len(encoded))
		}
		if decoded.String() != addr.String() {
			t.Fatalf("round trip mismatch: got %s, want %s", decoded.String(), addr.String())
		}
	}
}

func TestDecodeAddressNeedsMoreOnTruncatedInput(t *testing.T) {
	full := Address{Type: AddrDomain, Domain: "example.com", Port: 443}.Encode()
	for n := 0; n < len(full); n++ {
		if _, _, err := DecodeAddress(full[:n]); err != ErrNeedMore {
			t.Fatalf("DecodeAddress(%d bytes) = %v, want ErrNeedMore", n, err)
		}
	}
}

func TestDecodeAddressUnsupportedType(t *testing.T) {
	if _, _, err := DecodeAddress([]byte{0x02, 0, 0, 0, 0}); err != ErrUnsupported {
		t.Fatalf("DecodeAddress with unknown atyp = %v, want ErrUnsupported", err)
	}
}

func TestAddressStringUsesDomainOverIP(t *testing.T) {
	addr := Address{Type: AddrDomain, Domain: "relay.example.com", Port: 443}
	if got, want := addr.String(), "relay.example.com:443"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
