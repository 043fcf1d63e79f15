package trojan

// Command is the one-byte SOCKS5 command that the inner TrojanRequest also
// carries verbatim, per spec.md §4.2.
type Command byte

const (
	CmdConnect      Command = 0x01
	CmdUDPAssociate Command = 0x03
)

const socks5Version = 0x05

// ParseGreeting validates a SOCKS5 method-negotiation greeting:
// 0x05 n m1 m2 ... mn. It deliberately requires the whole greeting to be
// present in one read — data.length() == data[1]+2 as a single-shot
// equality check, bug-compatible with the source (see spec.md §9, Open
// Questions). It returns ErrMalformed for any structural mismatch (the
// caller must destroy without replying), and ErrUnsupported when the
// greeting is well-formed but offers no "no authentication" method (the
// caller replies 0x05 0xFF before destroying).
func ParseGreeting(data []byte) error {
	if len(data) < 2 || data[0] != socks5Version || len(data) != int(data[1])+2 {
		return ErrMalformed
	}
	for _, m := range data[2:] {
		if m == 0x00 {
			return nil
		}
	}
	return ErrUnsupported
}

// GreetingAccept is the reply for a supported greeting.
func GreetingAccept() []byte { return []byte{0x05, 0x00} }

// GreetingReject is the reply when no acceptable auth method was offered.
func GreetingReject() []byte { return []byte{0x05, 0xFF} }

// ParseSOCKS5Request validates and decodes a SOCKS5 request:
// 0x05 cmd 0x00 addr. It returns ErrMalformed for structural violations
// (destroy without reply) and ErrUnsupported for a recognised-but-not-
// CONNECT/UDP_ASSOCIATE command (reply with CommandNotSupported, then
// INVALID).
func ParseSOCKS5Request(data []byte) (cmd Command, addr Address, err error) {
	if len(data) < 7 || data[0] != socks5Version || data[2] != 0x00 {
		return 0, Address{}, ErrMalformed
	}
	cmd = Command(data[1])
	if cmd != CmdConnect && cmd != CmdUDPAssociate {
		return 0, Address{}, ErrUnsupported
	}
	addr, n, aerr := DecodeAddress(data[3:])
	if aerr != nil {
		return 0, Address{}, ErrMalformed
	}
	_ = n
	return cmd, addr, nil
}

// ReplyCommandNotSupported is sent back when the request's command is
// neither CONNECT nor UDP_ASSOCIATE.
func ReplyCommandNotSupported() []byte {
	return []byte{0x05, 0x07, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// ReplyConnectSuccess is the stock success reply for a CONNECT request;
// the bound address fields are zeroed, matching the source, which never
// reports the outbound socket's real local address here.
func ReplyConnectSuccess() []byte {
	return []byte{0x05, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// ReplyUDPAssociate builds the UDP ASSOCIATE success reply, advertising
// bound as the address the client should send its UDP datagrams to.
func ReplyUDPAssociate(bound Address) []byte {
	return append([]byte{0x05, 0x00, 0x00}, bound.Encode()...)
}

// ParseClientUDPDatagram decodes a datagram the local peer sent to the
// relay UDP socket: RSV(2) FRAG(1) atyp addr payload. A non-zero RSV/FRAG
// is treated as a bad packet per spec.md §4.2 edge cases.
func ParseClientUDPDatagram(data []byte) (addr Address, payload []byte, err error) {
	if len(data) < 3 || data[0] != 0 || data[1] != 0 || data[2] != 0 {
		return Address{}, nil, ErrMalformed
	}
	addr, n, aerr := DecodeAddress(data[3:])
	if aerr != nil {
		return Address{}, nil, ErrMalformed
	}
	return addr, data[3+n:], nil
}

// BuildLocalUDPDatagram frames a datagram for delivery back to the local
// peer: 0x00 0x00 0x00 || addr || payload.
func BuildLocalUDPDatagram(addr Address, payload []byte) []byte {
	header := addr.Encode()
	out := make([]byte, 3+len(header)+len(payload))
	copy(out[3:], header)
	copy(out[3+len(header):], payload)
	return out
}
