// Package peerserver implements the peer half of the protocol: chunk store
// + static known-peers list + a single-threaded receive loop answering
// HELLO/GET/QUERY and flooding QUERY toward known peers with a decrementing
// TTL (spec.md §4.3).
package peerserver

import (
	"net"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/dannyzb/chunkswarm/common"
	"github.com/dannyzb/chunkswarm/internal/store"
	"github.com/dannyzb/chunkswarm/internal/wire"
)

// InitialQueryTTL is the TTL a HELLO-induced QUERY is flooded with
// (spec.md §4.3): "Initial HELLO TTL is 3".
const InitialQueryTTL = 3

// maxDatagramSize bounds what the peer will read for one message. Kept in
// lockstep with the uint16 chunk-count/size fields per spec.md §9 note 6.
const maxDatagramSize = 65535

// Config is a peer's static, immutable-for-the-process-lifetime
// configuration (spec.md §3 "Peer configuration").
type Config struct {
	BindAddr   string
	Store      *store.Store
	KnownPeers []*net.UDPAddr
}

// Server owns the chunk store, the known-peers list, and the bound socket.
// The closed flag follows the teacher's chansync.SetOnce "closed" idiom in
// peer.go, letting a signal-handling goroutine request shutdown without
// any locking on the hot path.
type Server struct {
	store      *store.Store
	knownPeers []*net.UDPAddr
	conn       *net.UDPConn
	logger     log.Logger
	closed     chansync.SetOnce
	Stats      common.Stats
}

// New binds the socket and returns a Server ready for Serve.
func New(cfg Config, logger log.Logger) (*Server, error) {
	conn, err := listenPlainUDP(cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		store:      cfg.Store,
		knownPeers: cfg.KnownPeers,
		conn:       conn,
		logger:     logger,
	}, nil
}

// LocalAddr returns the bound socket's address, useful when the CLI binds
// to port 0.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close unblocks Serve's receive loop and releases the socket. Safe to
// call once from any goroutine (e.g. a SIGINT handler).
func (s *Server) Close() error {
	if !s.closed.Set() {
		return nil // already closed
	}
	return s.conn.Close()
}

// Serve runs the receive loop until Close is called or a fatal I/O error
// occurs (spec.md §4.3: "a single thread running an unbounded receive
// loop... each received datagram is fully processed before the next is
// read").
func (s *Server) Serve() error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.IsSet() {
				return nil
			}
			return errors.Wrap(err, "receiving datagram")
		}
		s.handleDatagram(buf, n, from)
	}
}

// handleDatagram is one receive-loop iteration: the recovery unit per
// spec.md §7. A malformed datagram is logged and dropped; it never stops
// the loop.
func (s *Server) handleDatagram(buf []byte, n int, from *net.UDPAddr) {
	msg, err := wire.Decode(buf, n)
	if err != nil {
		s.logger.WithDefaultLevel(log.Debug).Printf("dropping malformed datagram from %v: %v\n%s", from, err, spew.Sdump(buf[:n]))
		return
	}
	switch m := msg.(type) {
	case wire.HelloMessage:
		s.Stats.HellosHandled.Inc()
		s.handleHello(m, from)
	case wire.GetMessage:
		s.Stats.GetsHandled.Inc()
		s.handleGet(m, from)
	case wire.QueryMessage:
		s.Stats.QueriesHandled.Inc()
		s.handleQuery(m, from)
	default:
		// RESPONSE and CHUNK_INFO are client-bound; a peer ignores them.
	}
}

// handleHello implements spec.md §4.3 HELLO: advertise what's available,
// then unconditionally flood a QUERY to every known peer.
func (s *Server) handleHello(m wire.HelloMessage, from *net.UDPAddr) {
	advertised := s.store.Available(m.Chunks)
	if len(advertised) > 0 {
		s.sendTo(wire.ChunkInfoMessage{ChunkList: wire.ChunkList{Chunks: advertised}}, from)
		s.Stats.ChunkInfosSent.Inc()
	}
	query := wire.QueryMessage{
		Origin:    wire.HostPortFromUDPAddr(from),
		TTL:       InitialQueryTTL,
		ChunkList: wire.ChunkList{Chunks: m.Chunks},
	}
	s.floodQuery(query, nil)
}

// handleGet implements spec.md §4.3 GET: one RESPONSE per available chunk,
// in request order; unavailable ids are silently skipped.
func (s *Server) handleGet(m wire.GetMessage, from *net.UDPAddr) {
	for _, id := range m.Chunks {
		payload := s.store.Get(id)
		if !payload.Ok {
			continue
		}
		s.sendTo(wire.ResponseMessage{ChunkID: id, Payload: payload.Value}, from)
		s.Stats.ResponsesSent.Inc()
		s.logger.WithDefaultLevel(log.Debug).Printf("sent chunk %d (%s) to %v", id, humanize.Bytes(uint64(len(payload.Value))), from)
	}
}

// handleQuery implements spec.md §4.3 QUERY: advertise directly to origin
// (bypassing the reverse path), then forward with a decremented TTL to
// every known peer except the immediate sender.
func (s *Server) handleQuery(m wire.QueryMessage, from *net.UDPAddr) {
	advertised := s.store.Available(m.Chunks)
	if len(advertised) > 0 {
		s.sendTo(wire.ChunkInfoMessage{ChunkList: wire.ChunkList{Chunks: advertised}}, m.Origin.UDPAddr())
		s.Stats.ChunkInfosSent.Inc()
	}
	if m.TTL == 0 {
		return
	}
	forwarded := m
	forwarded.TTL = m.TTL - 1
	if forwarded.TTL > 0 {
		s.floodQuery(forwarded, from)
	}
}

// floodQuery sends query to every known peer except exclude (reverse-path
// avoidance; exclude is nil for a HELLO-induced flood, which has no
// "sender" to avoid).
func (s *Server) floodQuery(query wire.QueryMessage, exclude *net.UDPAddr) {
	for _, peer := range s.knownPeers {
		if exclude != nil && addrEqual(peer, exclude) {
			continue
		}
		s.sendTo(query, peer)
		s.Stats.QueriesForwarded.Inc()
	}
}

// sendTo is best-effort: a failed send to one destination is logged and
// skipped, never fatal, per spec.md §4.3's documented downgrade (datagram
// sends are unreliable by design; one dead peer must not stop the server).
func (s *Server) sendTo(m wire.Message, to *net.UDPAddr) {
	_, err := s.conn.WriteToUDP(m.Encode(), to)
	if err != nil {
		s.Stats.SendErrorsSkipped.Inc()
		s.logger.WithDefaultLevel(log.Warning).Printf("sending %s to %v: %v", m.Type(), to, err)
	}
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
