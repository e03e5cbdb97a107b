package client

import (
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/require"

	"github.com/dannyzb/chunkswarm/internal/wire"
)

// memSink is an in-memory Sink used so tests never touch the filesystem
// for received-chunk payloads.
type memSink struct {
	mu     sync.Mutex
	writes map[wire.ChunkID][]byte
}

func newMemSink() *memSink {
	return &memSink{writes: make(map[wire.ChunkID][]byte)}
}

func (s *memSink) WriteChunk(id wire.ChunkID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), payload...)
	s.writes[id] = cp
	return nil
}

func (s *memSink) get(id wire.ChunkID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.writes[id]
	return b, ok
}

// fakePeer answers whatever the test body tells it to on its own UDP
// socket, standing in for a bootstrap peer.
type fakePeer struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func startFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &fakePeer{conn: conn, addr: conn.LocalAddr().(*net.UDPAddr)}
}

func (p *fakePeer) recvHello(t *testing.T) (wire.HelloMessage, *net.UDPAddr) {
	t.Helper()
	buf := make([]byte, 2048)
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, from, err := p.conn.ReadFromUDP(buf)
	require.NoError(t, err)
	msg, err := wire.Decode(buf, n)
	require.NoError(t, err)
	hello, ok := msg.(wire.HelloMessage)
	require.True(t, ok)
	return hello, from
}

func (p *fakePeer) send(t *testing.T, m wire.Message, to *net.UDPAddr) {
	t.Helper()
	_, err := p.conn.WriteToUDP(m.Encode(), to)
	require.NoError(t, err)
}

func newTestClient(t *testing.T, bootstrap *net.UDPAddr, ids []wire.ChunkID, sink Sink) *Client {
	t.Helper()
	c, err := New(Config{
		BootstrapAddr: bootstrap,
		ChunkIDs:      ids,
		Sink:          sink,
		Logger:        log.Default,
	})
	require.NoError(t, err)
	return c
}

func TestDirectHitWritesAllChunksAndLogsHits(t *testing.T) {
	peer := startFakePeer(t)
	sink := newMemSink()
	c := newTestClient(t, peer.addr, []wire.ChunkID{10, 11}, sink)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	_, clientAddr := peer.recvHello(t)
	peer.send(t, wire.ResponseMessage{ChunkID: 10, Payload: []byte("a")}, clientAddr)
	peer.send(t, wire.ResponseMessage{ChunkID: 11, Payload: []byte("b")}, clientAddr)

	require.NoError(t, <-done)

	b, ok := sink.get(10)
	require.True(t, ok)
	require.Equal(t, "a", string(b))
	b, ok = sink.get(11)
	require.True(t, ok)
	require.Equal(t, "b", string(b))

	logBody, err := os.ReadFile(c.logPath)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(c.logPath) })
	require.Contains(t, string(logBody), " - 10\n")
	require.Contains(t, string(logBody), " - 11\n")
	require.NotContains(t, string(logBody), "0.0.0.0:0")
}

func TestChunkInfoTriggersExactlyOneGetPerId(t *testing.T) {
	peerA := startFakePeer(t)
	sink := newMemSink()
	c := newTestClient(t, peerA.addr, []wire.ChunkID{5}, sink)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	_, clientAddr := peerA.recvHello(t)

	peerB := startFakePeer(t)
	peerA.send(t, wire.ChunkInfoMessage{ChunkList: wire.ChunkList{Chunks: []wire.ChunkID{5}}}, clientAddr)
	peerB.send(t, wire.ChunkInfoMessage{ChunkList: wire.ChunkList{Chunks: []wire.ChunkID{5}}}, clientAddr)

	// Whichever CHUNK_INFO the client's socket happens to read first earns
	// the GET; the dedup invariant (spec.md law 5) means exactly one of
	// peerA/peerB sees a GET for id 5.
	gotGetA := readGetWithTimeout(t, peerA.conn)
	gotGetB := readGetWithTimeout(t, peerB.conn)
	require.True(t, gotGetA != gotGetB)

	peerA.send(t, wire.ResponseMessage{ChunkID: 5, Payload: []byte("x")}, clientAddr)
	require.NoError(t, <-done)
	t.Cleanup(func() { os.Remove(c.logPath) })
}

func readGetWithTimeout(t *testing.T, conn *net.UDPConn) bool {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return false
	}
	msg, err := wire.Decode(buf, n)
	if err != nil {
		return false
	}
	_, ok := msg.(wire.GetMessage)
	return ok
}

func TestUnknownChunkInfoIdIsDropped(t *testing.T) {
	peer := startFakePeer(t)
	sink := newMemSink()
	c := newTestClient(t, peer.addr, []wire.ChunkID{1}, sink)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	_, clientAddr := peer.recvHello(t)
	// id 2 was never requested; it must not panic and must not produce a
	// GET for an empty/only-unknown needed set.
	peer.send(t, wire.ChunkInfoMessage{ChunkList: wire.ChunkList{Chunks: []wire.ChunkID{2}}}, clientAddr)

	require.False(t, readGetWithTimeout(t, peer.conn))

	peer.send(t, wire.ResponseMessage{ChunkID: 1, Payload: []byte("y")}, clientAddr)
	require.NoError(t, <-done)
	t.Cleanup(func() { os.Remove(c.logPath) })
}

func TestUnreceivedChunkLogsZeroAddrMiss(t *testing.T) {
	peer := startFakePeer(t)
	sink := newMemSink()
	c := newTestClient(t, peer.addr, []wire.ChunkID{1, 2}, sink)
	c.state[1].received = true // simulate id 1 already satisfied

	require.NoError(t, c.logMisses())
	logBody, err := os.ReadFile(c.logPath)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(c.logPath) })
	require.Contains(t, string(logBody), "0.0.0.0:0 - 2\n")
	require.NotContains(t, string(logBody), "- 1\n")
}
