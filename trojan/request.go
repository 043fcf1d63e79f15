package trojan

// sha224HexLen is the fixed length of hex(sha224(password)): 28 raw bytes,
// 2 hex characters each.
const sha224HexLen = 56

// TrojanRequest is the {command, address} pair sent once, at the start of
// the outbound TLS byte stream, per spec.md §3/§6.
type TrojanRequest struct {
	Command Command
	Address Address
}

// GenerateRequest serialises passwordHex (already hex(sha224(secret)),
// per spec.md's Open Question resolution — Config precomputes this) and
// the request as:
//
//	passwordHex CRLF cmd_byte address CRLF
func GenerateRequest(passwordHex string, cmd Command, addr Address) []byte {
	addrBytes := addr.Encode()
	out := make([]byte, 0, len(passwordHex)+2+1+len(addrBytes)+2)
	out = append(out, passwordHex...)
	out = append(out, '\r', '\n')
	out = append(out, byte(cmd))
	out = append(out, addrBytes...)
	out = append(out, '\r', '\n')
	return out
}

// ParseRequest decodes a TrojanRequest header from the front of data,
// returning the consumed byte count so the caller (the server side) can
// treat any trailing bytes as already-arrived payload. It returns
// ErrNeedMore while data is a valid-so-far prefix, ErrMalformed for a
// structural violation, and ErrUnsupported for a command outside
// {CONNECT, UDP_ASSOCIATE}.
func ParseRequest(data []byte) (passwordHex string, req TrojanRequest, consumed int, err error) {
	if len(data) < sha224HexLen+2+1 {
		return "", TrojanRequest{}, 0, ErrNeedMore
	}
	if data[sha224HexLen] != '\r' || data[sha224HexLen+1] != '\n' {
		return "", TrojanRequest{}, 0, ErrMalformed
	}
	passwordHex = string(data[:sha224HexLen])
	cmd := Command(data[sha224HexLen+2])
	if cmd != CmdConnect && cmd != CmdUDPAssociate {
		return "", TrojanRequest{}, 0, ErrUnsupported
	}

	addrStart := sha224HexLen + 3
	addr, n, aerr := DecodeAddress(data[addrStart:])
	if aerr == ErrNeedMore {
		return "", TrojanRequest{}, 0, ErrNeedMore
	}
	if aerr != nil {
		return "", TrojanRequest{}, 0, ErrMalformed
	}

	tail := addrStart + n
	if len(data) < tail+2 {
		return "", TrojanRequest{}, 0, ErrNeedMore
	}
	if data[tail] != '\r' || data[tail+1] != '\n' {
		return "", TrojanRequest{}, 0, ErrMalformed
	}

	return passwordHex, TrojanRequest{Command: cmd, Address: addr}, tail + 2, nil
}
