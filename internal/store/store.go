// Package store implements the chunk store: a manifest-backed, read-only
// mapping from chunk id to payload bytes (spec.md §4.2).
package store

import (
	"os"
	"strconv"
	"strings"

	g "github.com/anacrolix/generics"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/dannyzb/chunkswarm/internal/wire"
)

// Store is an immutable ChunkId -> []byte mapping, populated once from a
// manifest file. Contains/Get are read-only and non-blocking, safe for
// concurrent use without external locking since nothing ever mutates the
// underlying map after Load returns.
type Store struct {
	chunks map[wire.ChunkID][]byte
	// mappings holds the open mmap.MMap handles so they can be unmapped by
	// Close; entries backed by an empty file have no handle.
	mappings []mmap.MMap
}

// Load parses the manifest at path. Lines are separated by '\n'; a trailing
// empty line is ignored. Each non-empty line must split on the exact
// separator ": " into a decimal uint16 key and a path, resolved relative to
// the process working directory. Any malformed line, or a key that doesn't
// parse as uint16, is a fatal ConfigError.
func Load(path string) (*Store, error) {
	manifest, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	s := &Store{chunks: make(map[wire.ChunkID][]byte)}
	lines := strings.Split(string(manifest), "\n")
	for i, line := range lines {
		if line == "" && i == len(lines)-1 {
			continue // trailing newline
		}
		key, filePath, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, errors.Errorf("manifest line %d: missing %q separator: %q", i+1, ": ", line)
		}
		id64, err := strconv.ParseUint(key, 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest line %d: key %q is not a uint16", i+1, key)
		}
		payload, err := s.mapFile(filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest line %d: loading %q", i+1, filePath)
		}
		s.chunks[wire.ChunkID(id64)] = payload
	}
	return s, nil
}

// mapFile memory-maps f's contents. An empty file can't be mapped on some
// platforms, so it falls back to an explicit empty slice.
func (s *Store) mapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return []byte{}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	s.mappings = append(s.mappings, m)
	return []byte(m), nil
}

// Close unmaps every backing file. It is not required by spec.md (the
// store is meant to live for the peer process's whole lifetime), but tests
// and tools embedding Store should call it to release mappings promptly.
func (s *Store) Close() error {
	var firstErr error
	for _, m := range s.mappings {
		if err := m.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Contains reports whether id is present in the store.
func (s *Store) Contains(id wire.ChunkID) bool {
	_, ok := s.chunks[id]
	return ok
}

// Get returns id's payload, or None if the store does not have it. A miss
// is a legal outcome, not an error (spec.md §4.2).
func (s *Store) Get(id wire.ChunkID) g.Option[[]byte] {
	b, ok := s.chunks[id]
	if !ok {
		return g.Option[[]byte]{}
	}
	return g.Option[[]byte]{Ok: true, Value: b}
}

// Available preserves the order of requested, filtering to the ids s
// contains. Used by peerserver to build HELLO/QUERY advertisements per
// spec.md §4.3 ("preserving requested order").
func (s *Store) Available(requested []wire.ChunkID) []wire.ChunkID {
	var out []wire.ChunkID
	for _, id := range requested {
		if s.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
