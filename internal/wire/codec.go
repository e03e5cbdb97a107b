package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Minimum valid datagram length per variant, per spec.md §4.1.
const (
	minHelloLike = 4  // type(2) + chunklist count(2), 0 chunks
	minQuery     = 12 // type(2) + ip(4) + port(2) + ttl(2) + chunklist count(2)
	minResponse  = 6  // type(2) + chunk_id(2) + chunk_size(2)
	minUnknown   = 2  // just the message-type field
)

// Decode parses the first n bytes of buf as one of the five message
// variants. It is total: every input either yields a Message or one of
// ErrShortFrame / ErrUnknownType (wrapped with byte-offset context).
//
// Decode trusts RESPONSE's chunk_size field only as a hint; the payload is
// always exactly the bytes present in the datagram beyond offset 6 (see
// spec.md §4.1, §9 note 3 — chunk_size is advisory, never validated).
func Decode(buf []byte, n int) (Message, error) {
	if n < minUnknown {
		return nil, errors.Wrapf(ErrShortFrame, "got %d bytes, need at least %d", n, minUnknown)
	}
	buf = buf[:n]
	t := MessageType(buf[1])
	switch t {
	case Hello, ChunkInfo, Get:
		if n < minHelloLike {
			return nil, errors.Wrapf(ErrShortFrame, "%s: got %d bytes, need at least %d", t, n, minHelloLike)
		}
		list, err := decodeChunkList(buf[2:])
		if err != nil {
			return nil, err
		}
		switch t {
		case Hello:
			return HelloMessage{list}, nil
		case ChunkInfo:
			return ChunkInfoMessage{list}, nil
		default:
			return GetMessage{list}, nil
		}
	case Query:
		if n < minQuery {
			return nil, errors.Wrapf(ErrShortFrame, "QUERY: got %d bytes, need at least %d", n, minQuery)
		}
		var origin HostPort
		copy(origin.IP[:], buf[2:6])
		origin.Port = binary.BigEndian.Uint16(buf[6:8])
		ttl := binary.BigEndian.Uint16(buf[8:10])
		list, err := decodeChunkList(buf[10:])
		if err != nil {
			return nil, err
		}
		return QueryMessage{Origin: origin, TTL: ttl, ChunkList: list}, nil
	case Response:
		if n < minResponse {
			return nil, errors.Wrapf(ErrShortFrame, "RESPONSE: got %d bytes, need at least %d", n, minResponse)
		}
		chunkID := binary.BigEndian.Uint16(buf[2:4])
		// chunk_size at buf[4:6] is advisory only; the real payload is
		// everything left in the datagram.
		payload := make([]byte, len(buf[6:]))
		copy(payload, buf[6:])
		return ResponseMessage{ChunkID: chunkID, Payload: payload}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownType, "tag %d at offset 1", buf[1])
	}
}

// decodeChunkList parses count(2) || count*id(2) starting at the given
// offset within a message body (i.e. buf begins right after the 2-byte
// message-type field for HELLO/CHUNK_INFO/GET, or after origin+ttl for
// QUERY).
func decodeChunkList(buf []byte) (ChunkList, error) {
	if len(buf) < 2 {
		return ChunkList{}, errors.Wrap(ErrShortFrame, "chunk list: missing count field")
	}
	count := binary.BigEndian.Uint16(buf[:2])
	buf = buf[2:]
	need := int(count) * 2
	if len(buf) < need {
		return ChunkList{}, errors.Wrapf(ErrShortFrame, "chunk list: count %d needs %d bytes, have %d", count, need, len(buf))
	}
	if count == 0 {
		return ChunkList{}, nil
	}
	chunks := make([]ChunkID, count)
	for i := range chunks {
		chunks[i] = binary.BigEndian.Uint16(buf[i*2 : i*2+2])
	}
	return ChunkList{Chunks: chunks}, nil
}

// encodeChunkList writes count(2) || count*id(2). count is truncated to 16
// bits from len(list.Chunks); callers are responsible for not handing it
// more than 65,535 ids (spec.md §4.1).
func encodeChunkList(list ChunkList) []byte {
	out := make([]byte, 2+2*len(list.Chunks))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(list.Chunks)))
	for i, id := range list.Chunks {
		binary.BigEndian.PutUint16(out[2+i*2:2+i*2+2], id)
	}
	return out
}

func encodeHeader(t MessageType) []byte {
	return []byte{0, byte(t)}
}

func encodeChunkListMessage(t MessageType, list ChunkList) []byte {
	return append(encodeHeader(t), encodeChunkList(list)...)
}

// Encode implementations. All five are total per spec.md's serialization
// contract.

func (m HelloMessage) Encode() []byte     { return encodeChunkListMessage(Hello, m.ChunkList) }
func (m ChunkInfoMessage) Encode() []byte { return encodeChunkListMessage(ChunkInfo, m.ChunkList) }
func (m GetMessage) Encode() []byte       { return encodeChunkListMessage(Get, m.ChunkList) }

func (m QueryMessage) Encode() []byte {
	out := make([]byte, 0, 2+4+2+2+2+2*len(m.Chunks))
	out = append(out, encodeHeader(Query)...)
	out = append(out, m.Origin.IP[:]...)
	var portBuf, ttlBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], m.Origin.Port)
	out = append(out, portBuf[:]...)
	binary.BigEndian.PutUint16(ttlBuf[:], m.TTL)
	out = append(out, ttlBuf[:]...)
	out = append(out, encodeChunkList(m.ChunkList)...)
	return out
}

func (m ResponseMessage) Encode() []byte {
	out := make([]byte, 0, 2+2+2+len(m.Payload))
	out = append(out, encodeHeader(Response)...)
	var idBuf, sizeBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], m.ChunkID)
	binary.BigEndian.PutUint16(sizeBuf[:], uint16(len(m.Payload)))
	out = append(out, idBuf[:]...)
	out = append(out, sizeBuf[:]...)
	out = append(out, m.Payload...)
	return out
}
