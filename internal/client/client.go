// Package client implements the discovery/collection side of the protocol:
// a single HELLO to a bootstrap peer, then a receive loop that dispatches
// CHUNK_INFO (send GET for newly-learned chunks) and RESPONSE (hand payload
// to a Sink, log the hit) until every requested chunk is received or a
// 5-second deadline elapses (spec.md §4.4).
package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/anacrolix/log"
	"github.com/pkg/errors"

	"github.com/dannyzb/chunkswarm/common"
	"github.com/dannyzb/chunkswarm/internal/wire"
)

// Deadline is the fixed wall-clock budget for one run, measured from the
// moment the initial HELLO is sent (spec.md §4.4, §5).
const Deadline = 5 * time.Second

// maxDatagramSize is the client's accept limit (spec.md §6: "Maximum
// datagram payload the client will accept: 60 KiB"), kept in lockstep with
// RESPONSE's u16 chunk_size prefix per spec.md §9 note 6.
const maxDatagramSize = 60 * 1024

// chunkState is the per-chunk {sent_get, received} pair of spec.md §3.
// received is absorbing: once true it is never cleared.
type chunkState struct {
	sentGet  bool
	received bool
}

// Config is everything Run needs: who to ask, what to ask for, and where
// received bytes and hit/miss log lines go.
type Config struct {
	BootstrapAddr *net.UDPAddr
	ChunkIDs      []wire.ChunkID
	Sink          Sink
	Logger        log.Logger
}

// Client runs one discovery/collection session. It is single-use: call Run
// once and discard.
type Client struct {
	conn      *net.UDPConn
	bootstrap *net.UDPAddr
	order     []wire.ChunkID
	state     map[wire.ChunkID]*chunkState
	sink      Sink
	logger    log.Logger
	logPath   string
}

// New binds an ephemeral socket on 0.0.0.0 (Open Question #1 resolution:
// always 0.0.0.0, never 127.0.0.1, so the client is reachable from other
// hosts when CHUNK_INFO is addressed directly to it) and seeds per-chunk
// state from cfg.ChunkIDs.
func New(cfg Config) (*Client, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, errors.Wrap(err, "binding client socket")
	}
	state := make(map[wire.ChunkID]*chunkState, len(cfg.ChunkIDs))
	for _, id := range cfg.ChunkIDs {
		state[id] = &chunkState{}
	}
	localIP := conn.LocalAddr().(*net.UDPAddr).IP.String()
	return &Client{
		conn:      conn,
		bootstrap: cfg.BootstrapAddr,
		order:     cfg.ChunkIDs,
		state:     state,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		logPath:   "output-" + localIP + ".log",
	}, nil
}

// Close releases the socket. Run calls this itself on return, but it is
// safe to call again.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run sends the initial HELLO, then loops until every chunk is received or
// Deadline elapses, logging a hit or miss line for every requested chunk
// before returning (spec.md §4.4 "Completion").
func (c *Client) Run() error {
	defer c.conn.Close()

	hello := wire.HelloMessage{ChunkList: wire.ChunkList{Chunks: c.order}}
	if _, err := c.conn.WriteToUDP(hello.Encode(), c.bootstrap); err != nil {
		return errors.Wrap(err, "sending initial HELLO")
	}
	c.logger.WithDefaultLevel(log.Debug).Printf("sent HELLO(%v) to %v", c.order, c.bootstrap)

	deadline := time.Now().Add(Deadline)
	buf := make([]byte, maxDatagramSize)
	for !c.allReceived() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return errors.Wrap(err, "setting read deadline")
		}
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return errors.Wrap(err, "receiving datagram")
		}
		c.handleDatagram(buf[:n], from)
	}
	return c.logMisses()
}

func (c *Client) allReceived() bool {
	for _, st := range c.state {
		if !st.received {
			return false
		}
	}
	return true
}

// handleDatagram decodes one inbound datagram and dispatches it; a decode
// error is logged at debug level and dropped, and an uninteresting variant
// is silently ignored, matching the peer's equivalent drop-and-continue
// policy (spec.md §7).
func (c *Client) handleDatagram(buf []byte, from *net.UDPAddr) {
	msg, err := wire.Decode(buf, len(buf))
	if err != nil {
		c.logger.WithDefaultLevel(log.Debug).Printf("dropping malformed datagram from %v: %v", from, err)
		return
	}
	switch m := msg.(type) {
	case wire.ChunkInfoMessage:
		c.handleChunkInfo(m, from)
	case wire.ResponseMessage:
		c.handleResponse(m, from)
	default:
		// HELLO, GET and QUERY are peer-bound; a client ignores them.
	}
}

// handleChunkInfo implements spec.md §4.4's CHUNK_INFO dispatch: GET is
// sent once per newly-learned id (dedup via sentGet), and ids outside the
// initial request are dropped rather than admitted (Open Question #2).
func (c *Client) handleChunkInfo(m wire.ChunkInfoMessage, from *net.UDPAddr) {
	var needed []wire.ChunkID
	for _, id := range m.Chunks {
		st, known := c.state[id]
		if !known || st.sentGet {
			continue
		}
		needed = append(needed, id)
	}
	if len(needed) == 0 {
		return
	}
	get := wire.GetMessage{ChunkList: wire.ChunkList{Chunks: needed}}
	if _, err := c.conn.WriteToUDP(get.Encode(), from); err != nil {
		c.logger.WithDefaultLevel(log.Warning).Printf("sending GET to %v: %v", from, err)
		return
	}
	for _, id := range needed {
		c.state[id].sentGet = true
	}
}

// handleResponse implements spec.md §4.4's RESPONSE dispatch: an id
// outside the initial request is dropped (the client-side twin of
// UnexpectedChunk, §7); a known id is idempotent — a second RESPONSE for
// an already-received id simply overwrites the sink with identical bytes
// (law (d) in spec.md §8).
func (c *Client) handleResponse(m wire.ResponseMessage, from *net.UDPAddr) {
	st, known := c.state[m.ChunkID]
	if !known {
		return
	}
	st.received = true
	if err := c.sink.WriteChunk(m.ChunkID, m.Payload); err != nil {
		c.logger.WithDefaultLevel(log.Warning).Printf("writing chunk %d: %v", m.ChunkID, err)
	}
	c.appendLog(from.IP, from.Port, m.ChunkID)
}

// logMisses appends one "0.0.0.0:0 - <id>" line per chunk never received,
// in request order (spec.md §4.4 "Completion").
func (c *Client) logMisses() error {
	for _, id := range c.order {
		if !c.state[id].received {
			c.appendLog(net.IPv4zero, 0, id)
		}
	}
	return nil
}

// appendLog opens the per-run log file, appends one line, and closes it
// again (spec.md §4.4: "opened for append-writes and closed after each
// append, so crashes lose at most the last line").
func (c *Client) appendLog(ip net.IP, port int, id wire.ChunkID) {
	f, err := os.OpenFile(c.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.WithDefaultLevel(log.Warning).Printf("opening log %q: %v", c.logPath, err)
		return
	}
	defer f.Close()
	line := fmt.Sprintf("%s - %d\n", common.FormatHostPort(ip, port), id)
	if _, err := f.WriteString(line); err != nil {
		c.logger.WithDefaultLevel(log.Warning).Printf("appending to log %q: %v", c.logPath, err)
	}
}
