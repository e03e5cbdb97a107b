// Package wire implements the five-message datagram protocol: parsing and
// serialization only. It has no notion of sockets, peers, or chunk storage.
package wire

import "github.com/pkg/errors"

// ChunkID identifies a chunk. The wire format carries it as a big-endian
// uint16.
type ChunkID = uint16

// MessageType is the single-byte tag at offset 1 of every message's
// 2-byte message-type field. Offset 0 is ignored on receive and must be
// zero on send.
type MessageType byte

const (
	Hello     MessageType = 1
	Query     MessageType = 2
	ChunkInfo MessageType = 3
	Get       MessageType = 4
	Response  MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case Hello:
		return "HELLO"
	case Query:
		return "QUERY"
	case ChunkInfo:
		return "CHUNK_INFO"
	case Get:
		return "GET"
	case Response:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors per spec §7. Compare with errors.Is; do not match on
// string content.
var (
	ErrShortFrame  = errors.New("wire: datagram shorter than message minimum")
	ErrUnknownType = errors.New("wire: unknown message type")
)

// Message is implemented by every wire message variant.
type Message interface {
	Type() MessageType
	Encode() []byte
}

// ChunkList is count(2) || count*chunkID(2), shared by Hello, ChunkInfo and
// Get.
type ChunkList struct {
	Chunks []ChunkID
}

// HelloMessage is sent by a client to a peer naming the chunks it wants.
type HelloMessage struct {
	ChunkList
}

func (HelloMessage) Type() MessageType { return Hello }

// GetMessage is sent by a client (or learned indirectly) asking a peer to
// transmit the named chunks, if it has them.
type GetMessage struct {
	ChunkList
}

func (GetMessage) Type() MessageType { return Get }

// ChunkInfoMessage advertises which of a queried set a peer actually has.
type ChunkInfoMessage struct {
	ChunkList
}

func (ChunkInfoMessage) Type() MessageType { return ChunkInfo }

// QueryMessage is flooded peer-to-peer with a TTL hop budget. Origin is the
// address of the client that should receive any resulting CHUNK_INFO
// directly, bypassing the reverse path.
type QueryMessage struct {
	Origin HostPort
	TTL    uint16
	ChunkList
}

func (QueryMessage) Type() MessageType { return Query }

// ResponseMessage carries one chunk's payload.
type ResponseMessage struct {
	ChunkID ChunkID
	Payload []byte
}

func (ResponseMessage) Type() MessageType { return Response }
