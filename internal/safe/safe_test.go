package safe

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSafe(t *testing.T, minSize int) (*Safe, string) {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests
	db, err := badger.Open(opts)
	require.NoError(t, err)

	root := filepath.Join(t.TempDir(), "objects")
	s, err := New(db, Options{
		Root:        root,
		CacheSize:   16,
		Compression: CompressionOptions{MinSize: minSize, Level: 2},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s, root
}

func TestDigestIsDeterministic(t *testing.T) {
	content := []byte("hello gitlet")

	first := Digest(content)
	assert.Equal(t, first, Digest(append([]byte(nil), content...)))
	assert.Len(t, first, DigestLen)
	assert.True(t, ValidDigest(first))
	assert.NotEqual(t, first, Digest([]byte("hello gitlet!")))

	a, _ := setupTestSafe(t, 0)
	b, _ := setupTestSafe(t, 0)
	ha, err := a.Put(content)
	require.NoError(t, err)
	hb, err := b.Put(content)
	require.NoError(t, err)
	assert.Equal(t, first, ha)
	assert.Equal(t, ha, hb)
}

func TestValidDigest(t *testing.T) {
	d := Digest([]byte("x"))

	assert.True(t, ValidDigest(d))
	assert.False(t, ValidDigest(strings.ToUpper(d)), "uppercase hex is not a digest")
	assert.False(t, ValidDigest(d[:DigestLen-1]))
	assert.False(t, ValidDigest(d[:DigestLen-1]+"g"))
	assert.False(t, ValidDigest(""))
}

func TestSafe_UppercaseDigestRejected(t *testing.T) {
	s, _ := setupTestSafe(t, 0)
	hash, err := s.Put([]byte("x"))
	require.NoError(t, err)

	_, err = s.Get(strings.ToUpper(hash))
	assert.ErrorIs(t, err, ErrInvalidHash)
	_, err = s.Exists(strings.ToUpper(hash))
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestSafe_PutGet(t *testing.T) {
	s, root := setupTestSafe(t, 0)

	hash, err := s.Put([]byte("x"))
	require.NoError(t, err)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	_, err = os.Stat(filepath.Join(root, hash[:2], hash[2:]))
	assert.NoError(t, err, "object should be fanned out by digest prefix")
}

func TestSafe_PutIsIdempotent(t *testing.T) {
	s, root := setupTestSafe(t, 0)

	h1, err := s.Put([]byte("same"))
	require.NoError(t, err)
	h2, err := s.Put([]byte("same"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	entries, err := os.ReadDir(filepath.Join(root, h1[:2]))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSafe_EmptyContent(t *testing.T) {
	s, _ := setupTestSafe(t, 0)

	hash, err := s.Put(nil)
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte{}), hash)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSafe_GetUnknown(t *testing.T) {
	s, _ := setupTestSafe(t, 0)

	_, err := s.Get(Digest([]byte("never stored")))
	assert.ErrorIs(t, err, ErrContentNotFound)

	_, err = s.Get("not-a-digest")
	assert.ErrorIs(t, err, ErrInvalidHash)

	ok, err := s.Exists(Digest([]byte("never stored")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSafe_Compression(t *testing.T) {
	s, root := setupTestSafe(t, 64)

	content := []byte(strings.Repeat("compressible line\n", 200))
	hash, err := s.Put(content)
	require.NoError(t, err)

	meta, err := s.Stat(hash)
	require.NoError(t, err)
	assert.True(t, meta.Compressed)
	assert.Equal(t, int64(len(content)), meta.Size)
	assert.Less(t, meta.StoredSize, meta.Size)

	onDisk, err := os.ReadFile(filepath.Join(root, hash[:2], hash[2:]))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(onDisk, zstdMagic))

	// Bypass the cache so the object is decompressed from disk.
	require.NoError(t, s.Verify(hash))
	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSafe_SmallContentNotCompressed(t *testing.T) {
	s, _ := setupTestSafe(t, 64)

	hash, err := s.Put([]byte("tiny"))
	require.NoError(t, err)

	meta, err := s.Stat(hash)
	require.NoError(t, err)
	assert.False(t, meta.Compressed)
}

func TestSafe_VerifyDetectsCorruption(t *testing.T) {
	s, root := setupTestSafe(t, 0)

	hash, err := s.Put([]byte("original"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, hash[:2], hash[2:]), []byte("tampered"), 0644))
	assert.Error(t, s.Verify(hash))
}
