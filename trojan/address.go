package trojan

import (
	"encoding/binary"
	"fmt"
	"net"
)

// AddrType tags the three on-the-wire address shapes shared by the SOCKS5
// layer, the TrojanRequest header and the inner UDPPacket framing.
type AddrType byte

const (
	AddrIPv4   AddrType = 0x01
	AddrDomain AddrType = 0x03
	AddrIPv6   AddrType = 0x04
)

// Address is the tagged {IPv4, IPv6, DomainName} + port variant from
// spec.md §3, with one canonical wire encoding reused by every layer that
// carries an address.
type Address struct {
	Type   AddrType
	IP     net.IP // set when Type is AddrIPv4 or AddrIPv6
	Domain string // set when Type is AddrDomain
	Port   uint16
}

// String renders "host:port" the way the source's Log::log_with_endpoint
// calls do, for consistent log lines.
func (a Address) String() string {
	host := a.Domain
	if a.Type != AddrDomain {
		host = a.IP.String()
	}
	return fmt.Sprintf("%s:%d", host, a.Port)
}

// Encode returns the canonical wire form: one atyp byte, the address body,
// then the 16-bit big-endian port. This is the inverse of DecodeAddress.
func (a Address) Encode() []byte {
	switch a.Type {
	case AddrIPv4:
		buf := make([]byte, 1+4+2)
		buf[0] = byte(AddrIPv4)
		ip4 := a.IP.To4()
		copy(buf[1:5], ip4)
		binary.BigEndian.PutUint16(buf[5:7], a.Port)
		return buf
	case AddrIPv6:
		buf := make([]byte, 1+16+2)
		buf[0] = byte(AddrIPv6)
		ip16 := a.IP.To16()
		copy(buf[1:17], ip16)
		binary.BigEndian.PutUint16(buf[17:19], a.Port)
		return buf
	case AddrDomain:
		buf := make([]byte, 1+1+len(a.Domain)+2)
		buf[0] = byte(AddrDomain)
		buf[1] = byte(len(a.Domain))
		copy(buf[2:2+len(a.Domain)], a.Domain)
		binary.BigEndian.PutUint16(buf[2+len(a.Domain):], a.Port)
		return buf
	default:
		panic(fmt.Sprintf("trojan: unknown address type %d", a.Type))
	}
}

// DecodeAddress parses one atyp-tagged address from the front of data and
// returns the address plus the number of bytes consumed. It returns
// ErrNeedMore when data is a valid-so-far prefix, and ErrUnsupported for an
// atyp byte outside {0x01, 0x03, 0x04}.
func DecodeAddress(data []byte) (Address, int, error) {
	if len(data) < 1 {
		return Address{}, 0, ErrNeedMore
	}
	switch AddrType(data[0]) {
	case AddrIPv4:
		const n = 1 + 4 + 2
		if len(data) < n {
			return Address{}, 0, ErrNeedMore
		}
		ip := make(net.IP, 4)
		copy(ip, data[1:5])
		return Address{Type: AddrIPv4, IP: ip, Port: binary.BigEndian.Uint16(data[5:7])}, n, nil
	case AddrIPv6:
		const n = 1 + 16 + 2
		if len(data) < n {
			return Address{}, 0, ErrNeedMore
		}
		ip := make(net.IP, 16)
		copy(ip, data[1:17])
		return Address{Type: AddrIPv6, IP: ip, Port: binary.BigEndian.Uint16(data[17:19])}, n, nil
	case AddrDomain:
		if len(data) < 2 {
			return Address{}, 0, ErrNeedMore
		}
		l := int(data[1])
		n := 1 + 1 + l + 2
		if len(data) < n {
			return Address{}, 0, ErrNeedMore
		}
		domain := string(data[2 : 2+l])
		port := binary.BigEndian.Uint16(data[2+l : n])
		return Address{Type: AddrDomain, Domain: domain, Port: port}, n, nil
	default:
		return Address{}, 0, ErrUnsupported
	}
}
