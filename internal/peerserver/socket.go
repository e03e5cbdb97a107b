package peerserver

import (
	"net"

	"github.com/pkg/errors"
)

// listenPlainUDP binds an IPv4-only UDP socket, the sole transport this
// protocol uses (spec.md is datagram-only, no uTP/TCP fallback). Grounded
// on the plain-UDP branch of the teacher's listen/listenPlainUdp in
// socket.go, stripped of the uTP and TCP branches this repo has no use
// for.
func listenPlainUDP(bindAddr string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", bindAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving bind address %q", bindAddr)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "binding udp4 %q", bindAddr)
	}
	return conn, nil
}
