// Package version provides protocol and user-agent strings for log lines
// and decorative identification, mirroring the teacher's own version
// package.
package version

var (
	// ProtocolVersion identifies the wire format this build speaks. There
	// is no negotiation in spec.md; it exists purely for log lines.
	ProtocolVersion string
	UserAgent       string
)

func init() {
	ProtocolVersion = "chunkswarm/1"
	UserAgent = "chunkswarm/0.1"
}
