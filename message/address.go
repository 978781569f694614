package message

import (
	"net/netip"
)

// netAddressSize is the encoded size of a NetAddress without timestamp, as
// carried in the version message.
const netAddressSize = 8 + 16 + 2

// NetAddress is a peer address as embedded in a version message: service
// bits, a 16-byte IPv6 (or IPv4-mapped) address and a big-endian port.
type NetAddress struct {
	Services uint64
	IP       [16]byte
	Port     uint16
}

// NewNetAddress builds a NetAddress from an address and port.
func NewNetAddress(ap netip.AddrPort, services uint64) NetAddress {
	return NetAddress{
		Services: services,
		IP:       ap.Addr().As16(),
		Port:     ap.Port(),
	}
}

// AddrPort returns the address with IPv4-mapped addresses unmapped.
func (a NetAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(a.IP).Unmap(), a.Port)
}

func (a NetAddress) String() string { return a.AddrPort().String() }

func (a *NetAddress) decode(src *Reader, field string) {
	a.Services = src.Uint64(field + ".services")
	copy(a.IP[:], src.Bytes(16, field+".ip"))
	a.Port = src.Uint16BE(field + ".port")
}

func (a NetAddress) encode(sink *Writer) {
	sink.Uint64(a.Services)
	sink.Bytes(a.IP[:])
	sink.Uint16BE(a.Port)
}
