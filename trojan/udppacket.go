package trojan

import "encoding/binary"

// UDPPacket is the {address, length, payload} triple carried inside the
// UDP_FORWARD byte stream, per spec.md §3/§4.1:
//
//	addr len_be16 CRLF payload
type UDPPacket struct {
	Address Address
	Length  uint16
	Payload []byte
}

// GenerateUDPPacket serialises a UDPPacket.
func GenerateUDPPacket(addr Address, payload []byte) []byte {
	addrBytes := addr.Encode()
	out := make([]byte, 0, len(addrBytes)+2+2+len(payload))
	out = append(out, addrBytes...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, '\r', '\n')
	out = append(out, payload...)
	return out
}

// ParseUDPPacket decodes one UDPPacket from the front of buf, returning the
// packet plus the number of bytes consumed. It returns ErrNeedMore when buf
// is a valid-so-far prefix of a packet (the caller, typically draining a
// growing udp_data_buf, must not treat this as a protocol error), and
// ErrMalformed when buf can never be completed into a valid packet (e.g. an
// unrecognised address type or a broken CRLF terminator).
func ParseUDPPacket(buf []byte) (UDPPacket, int, error) {
	addr, n, err := DecodeAddress(buf)
	if err == ErrNeedMore {
		return UDPPacket{}, 0, ErrNeedMore
	}
	if err != nil {
		return UDPPacket{}, 0, ErrMalformed
	}

	lenStart := n
	if len(buf) < lenStart+2+2 {
		return UDPPacket{}, 0, ErrNeedMore
	}
	length := binary.BigEndian.Uint16(buf[lenStart : lenStart+2])
	if buf[lenStart+2] != '\r' || buf[lenStart+3] != '\n' {
		return UDPPacket{}, 0, ErrMalformed
	}

	payloadStart := lenStart + 4
	total := payloadStart + int(length)
	if len(buf) < total {
		return UDPPacket{}, 0, ErrNeedMore
	}

	payload := make([]byte, length)
	copy(payload, buf[payloadStart:total])
	return UDPPacket{Address: addr, Length: length, Payload: payload}, total, nil
}
