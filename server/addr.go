package main

import (
	"net"

	"github.com/xtaci/trojanc/trojan"
)

// addrFromUDP converts a resolved UDP socket address into the wire
// Address shape shared by the TrojanRequest header and the inner
// UDP_FORWARD framing.
func addrFromUDP(u *net.UDPAddr) trojan.Address {
	if ip4 := u.IP.To4(); ip4 != nil {
		return trojan.Address{Type: trojan.AddrIPv4, IP: ip4, Port: uint16(u.Port)}
	}
	return trojan.Address{Type: trojan.AddrIPv6, IP: u.IP.To16(), Port: uint16(u.Port)}
}

// resolveUDPAddr resolves an inbound UDPPacket's embedded Address (which
// may name a domain) to a concrete destination for the relay's shared
// outbound UDP socket. A failure just drops that one packet; the session
// itself survives since later packets may target a resolvable address.
func resolveUDPAddr(addr trojan.Address) *net.UDPAddr {
	resolved, err := net.ResolveUDPAddr("udp", addr.String())
	if err != nil {
		return nil
	}
	return resolved
}
