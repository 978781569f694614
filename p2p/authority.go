package p2p

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// Authority is a numeric peer address: an IP and a port.
type Authority struct {
	netip.AddrPort
}

// ParseAuthority parses "ip:port" or "[ipv6]:port".
func ParseAuthority(s string) (Authority, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Authority{}, fmt.Errorf("p2p: invalid authority %q: %w", s, err)
	}
	return unmapped(ap), nil
}

func unmapped(ap netip.AddrPort) Authority {
	return Authority{netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}
}

// authorityOf returns the authority of a connection address. Non-TCP
// addresses, such as those of net.Pipe, yield the zero Authority.
func authorityOf(addr net.Addr) Authority {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return unmapped(tcp.AddrPort())
	}
	if addr == nil {
		return Authority{}
	}
	if ap, err := netip.ParseAddrPort(addr.String()); err == nil {
		return unmapped(ap)
	}
	return Authority{}
}

// Endpoint is a peer address that may name a host, with an optional
// "tcp://" scheme.
type Endpoint struct {
	Host string
	Port uint16
}

// ParseEndpoint parses "[tcp://]host:port".
func ParseEndpoint(s string) (Endpoint, error) {
	rest := strings.TrimPrefix(s, "tcp://")
	if strings.Contains(rest, "://") {
		return Endpoint{}, fmt.Errorf("p2p: unsupported endpoint scheme in %q", s)
	}
	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("p2p: invalid endpoint %q: %w", s, err)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("p2p: invalid endpoint %q: missing host", s)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("p2p: invalid endpoint port %q", portStr)
	}
	return Endpoint{Host: host, Port: uint16(port)}, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}
