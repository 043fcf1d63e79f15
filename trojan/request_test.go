package trojan

import (
	"net"
	"testing"
)

func TestGenerateParseRequestRoundTrip(t *testing.T) {
	passwordHex := HashPassword("correct horse battery staple")
	addr := Address{Type: AddrIPv4, IP: net.ParseIP("10.0.0.1").To4(), Port: 1234}

	wire := GenerateRequest(passwordHex, CmdConnect, addr)
	gotHex, req, consumed, err := ParseRequest(wire)
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("ParseRequest consumed %d, want %d", consumed, len(wire))
	}
	if gotHex != passwordHex {
		t.Fatalf("password mismatch: got %q, want %q", gotHex, passwordHex)
	}
	if req.Command != CmdConnect || req.Address.String() != addr.String() {
		t.Fatalf("request mismatch: %+v", req)
	}
}

func TestParseRequestWithTrailingPayload(t *testing.T) {
	passwordHex := HashPassword("secret")
	addr := Address{Type: AddrDomain, Domain: "example.com", Port: 443}
	header := GenerateRequest(passwordHex, CmdConnect, addr)
	payload := []byte("GET / HTTP/1.1\r\n\r\n")

	_, _, consumed, err := ParseRequest(append(append([]byte{}, header...), payload...))
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if consumed != len(header) {
		t.Fatalf("ParseRequest consumed %d, want exactly the header length %d", consumed, len(header))
	}
}

func TestParseRequestNeedsMoreOnTruncatedInput(t *testing.T) {
	passwordHex := HashPassword("secret")
	addr := Address{Type: AddrIPv4, IP: net.ParseIP("127.0.0.1").To4(), Port: 80}
	full := GenerateRequest(passwordHex, CmdConnect, addr)

	for n := 0; n < len(full); n++ {
		if _, _, _, err := ParseRequest(full[:n]); err != ErrNeedMore {
			t.Fatalf("ParseRequest(%d bytes) = %v, want ErrNeedMore", n, err)
		}
	}
}

func TestParseRequestRejectsUnsupportedCommand(t *testing.T) {
	passwordHex := HashPassword("secret")
	addr := Address{Type: AddrIPv4, IP: net.ParseIP("127.0.0.1").To4(), Port: 80}
	wire := GenerateRequest(passwordHex, CmdConnect, addr)
	wire[sha224HexLen+2] = 0x7F // an unrecognised command byte

	if _, _, _, err := ParseRequest(wire); err != ErrUnsupported {
		t.Fatalf("ParseRequest with bad command = %v, want ErrUnsupported", err)
	}
}

func TestParseRequestRejectsBrokenCRLF(t *testing.T) {
	passwordHex := HashPassword("secret")
	addr := Address{Type: AddrIPv4, IP: net.ParseIP("127.0.0.1").To4(), Port: 80}
	wire := GenerateRequest(passwordHex, CmdConnect, addr)
	wire[sha224HexLen] = 'X'

	if _, _, _, err := ParseRequest(wire); err != ErrMalformed {
		t.Fatalf("ParseRequest with broken CRLF = %v, want ErrMalformed", err)
	}
}
