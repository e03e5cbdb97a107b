// Package common holds small helpers shared by the peer server and the
// client — neither owns the other, so their common ground lives here
// rather than in either package.
package common

import (
	"net"
	"strconv"

	"github.com/anacrolix/missinggo/v2"
	"github.com/pkg/errors"
)

// ParseKnownPeerAddr parses an "ip:port" positional CLI argument (spec.md
// §6, peer CLI's trailing known-peer-addr list) into a *net.UDPAddr.
func ParseKnownPeerAddr(s string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", s)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing known peer address %q", s)
	}
	if addr.IP.To4() == nil {
		return nil, errors.Errorf("known peer address %q is not IPv4", s)
	}
	return addr, nil
}

// ListenPort returns the port a bound net.PacketConn ended up on, for the
// common case of binding to port 0 and wanting to know what was picked.
// Mirrors the teacher's use of missinggo.AddrPort in socket.go's
// listenAllRetry, which re-derives the bound port the same way after a
// ":0" listen.
func ListenPort(addr net.Addr) int {
	return int(missinggo.AddrPort(addr))
}

// FormatHostPort renders host:port the way the client's per-run log lines
// want it ("<ip>:<port> - <id>" in spec.md §4.4).
func FormatHostPort(ip net.IP, port int) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}
