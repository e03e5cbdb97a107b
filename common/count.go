package common

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Count is a concurrency-safe counter, adapted from the teacher's
// atomic-count.go. Used for the peer server's operational counters
// (HELLOs, QUERYs, GETs handled; CHUNK_INFO/RESPONSE/forwarded-QUERY
// datagrams sent) that get logged as a one-line summary on shutdown.
type Count struct {
	n int64
}

var _ fmt.Stringer = (*Count)(nil)

func (c *Count) Add(n int64) {
	atomic.AddInt64(&c.n, n)
}

func (c *Count) Inc() {
	c.Add(1)
}

func (c *Count) Int64() int64 {
	return atomic.LoadInt64(&c.n)
}

func (c *Count) String() string {
	return fmt.Sprintf("%d", c.Int64())
}

func (c *Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Int64())
}

// Stats is the peer server's set of operational counters.
type Stats struct {
	HellosHandled     Count
	GetsHandled       Count
	QueriesHandled    Count
	ChunkInfosSent    Count
	ResponsesSent     Count
	QueriesForwarded  Count
	SendErrorsSkipped Count
}

func (s *Stats) String() string {
	return fmt.Sprintf(
		"hellos=%s gets=%s queries=%s chunk_infos_sent=%s responses_sent=%s queries_forwarded=%s send_errors_skipped=%s",
		&s.HellosHandled, &s.GetsHandled, &s.QueriesHandled,
		&s.ChunkInfosSent, &s.ResponsesSent, &s.QueriesForwarded, &s.SendErrorsSkipped,
	)
}
