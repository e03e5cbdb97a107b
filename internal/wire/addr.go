package wire

import (
	"fmt"
	"net"
)

// HostPort is an IPv4 address and port, the only address shape the wire
// format supports (QUERY's origin field is IPv4(4) || port(2)).
type HostPort struct {
	IP   [4]byte
	Port uint16
}

// HostPortFromUDPAddr converts a *net.UDPAddr into the wire's IPv4
// HostPort. It panics if addr does not carry a 4-byte IPv4 address — per
// spec.md §4.1, attempting to serialize an IPv6 address is a programmer
// error, not a runtime one to recover from.
func HostPortFromUDPAddr(addr *net.UDPAddr) HostPort {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		panic(fmt.Sprintf("wire: address %v is not IPv4", addr))
	}
	var hp HostPort
	copy(hp.IP[:], ip4)
	hp.Port = uint16(addr.Port)
	return hp
}

// UDPAddr converts back to a *net.UDPAddr for dialing/sending.
func (hp HostPort) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(hp.IP[0], hp.IP[1], hp.IP[2], hp.IP[3]),
		Port: int(hp.Port),
	}
}

func (hp HostPort) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", hp.IP[0], hp.IP[1], hp.IP[2], hp.IP[3], hp.Port)
}
