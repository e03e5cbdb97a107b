package store

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dannyzb/chunkswarm/internal/wire"
)

func writeManifest(t *testing.T, dir string, entries map[wire.ChunkID]string) string {
	t.Helper()
	manifestPath := filepath.Join(dir, "manifest.txt")
	var body string
	for id, content := range entries {
		chunkPath := filepath.Join(dir, "chunk_"+itoa(id))
		require.NoError(t, os.WriteFile(chunkPath, []byte(content), 0o644))
		body += itoa(id) + ": " + chunkPath + "\n"
	}
	require.NoError(t, os.WriteFile(manifestPath, []byte(body), 0o644))
	return manifestPath
}

func itoa(id wire.ChunkID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestLoadContainsAndGet(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, map[wire.ChunkID]string{
		1: "payload-one",
		2: "payload-two",
	})

	s, err := Load(manifestPath)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Contains(1))
	require.True(t, s.Contains(2))
	require.False(t, s.Contains(3))

	got := s.Get(1)
	require.True(t, got.Ok)
	require.Equal(t, "payload-one", string(got.Value))

	miss := s.Get(3)
	require.False(t, miss.Ok)
}

func TestLoadEmptyFile(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, map[wire.ChunkID]string{5: ""})

	s, err := Load(manifestPath)
	require.NoError(t, err)
	defer s.Close()

	got := s.Get(5)
	require.True(t, got.Ok)
	require.Empty(t, got.Value)
}

func TestLoadMalformedLine(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.txt")
	require.NoError(t, os.WriteFile(manifestPath, []byte("not-a-valid-line\n"), 0o644))

	_, err := Load(manifestPath)
	require.Error(t, err)
}

func TestLoadNonNumericKey(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.txt")
	require.NoError(t, os.WriteFile(manifestPath, []byte("abc: somefile\n"), 0o644))

	_, err := Load(manifestPath)
	require.Error(t, err)
}

func TestAvailablePreservesRequestedOrder(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, map[wire.ChunkID]string{
		1: "a",
		3: "c",
	})
	s, err := Load(manifestPath)
	require.NoError(t, err)
	defer s.Close()

	got := s.Available([]wire.ChunkID{3, 2, 1})
	require.Equal(t, []wire.ChunkID{3, 1}, got)
}
