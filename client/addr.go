package main

import (
	"net"
	"strconv"

	"github.com/xtaci/trojanc/trojan"
)

// splitHostPort parses "host:port" into a bare host and numeric port,
// the form both the remote relay address and NAT mode's target_addr are
// configured in.
func splitHostPort(hostport string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// addrFromUDP converts a resolved UDP socket address into the wire
// Address shape shared by SOCKS5 replies and the trojan framing.
func addrFromUDP(u *net.UDPAddr) trojan.Address {
	if ip4 := u.IP.To4(); ip4 != nil {
		return trojan.Address{Type: trojan.AddrIPv4, IP: ip4, Port: uint16(u.Port)}
	}
	return trojan.Address{Type: trojan.AddrIPv6, IP: u.IP.To16(), Port: uint16(u.Port)}
}

// hostAddress builds an Address for a configured host:port pair that may
// be a literal IPv4/IPv6 address or a hostname, used for NAT-mode UDP's
// fixed target_addr/target_port.
func hostAddress(host string, port int) trojan.Address {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return trojan.Address{Type: trojan.AddrIPv4, IP: ip4, Port: uint16(port)}
		}
		return trojan.Address{Type: trojan.AddrIPv6, IP: ip.To16(), Port: uint16(port)}
	}
	return trojan.Address{Type: trojan.AddrDomain, Domain: host, Port: uint16(port)}
}
