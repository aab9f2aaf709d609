package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewAlignedBuffer(t *testing.T) {
	buf := NewAlignedBuffer(4096, 512)
	require.Len(t, buf, 4096)
	require.Equal(t, 0, len(buf)%512)

	require.Panics(t, func() { NewAlignedBuffer(0, 512) })
	require.Panics(t, func() { NewAlignedBuffer(4096, 0) })
	require.Panics(t, func() { NewAlignedBuffer(4096, 3) })
}

func TestOpenBuffered(t *testing.T) {
	data := make([]byte, 1<<20)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, data)

	src, err := openBuffered(path)
	require.NoError(t, err)
	defer src.Close()

	require.Equal(t, uint64(len(data)), src.Size())

	buf := make([]byte, 4096)
	n, err := src.ReadChunk(1000, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, data[1000:1000+4096], buf)
}

func TestOpenBufferedShortReadAtEOF(t *testing.T) {
	data := []byte("hello world")
	path := writeTempFile(t, data)

	src, err := openBuffered(path)
	require.NoError(t, err)
	defer src.Close()

	buf := make([]byte, 64)
	n, err := src.ReadChunk(5, buf)
	require.NoError(t, err)
	require.Equal(t, len(data)-5, n)
	require.Equal(t, data[5:], buf[:n])
}

func TestOpenMmap(t *testing.T) {
	data := make([]byte, 8192)
	for i := range data {
		data[i] = byte(i * 7)
	}
	path := writeTempFile(t, data)

	src, err := openMmap(path)
	require.NoError(t, err)
	defer src.Close()

	require.Equal(t, uint64(len(data)), src.Size())

	buf := make([]byte, 128)
	n, err := src.ReadChunk(4096, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, data[4096:4096+128], buf)
}

func TestOpenPicksMmapForRegularFile(t *testing.T) {
	path := writeTempFile(t, []byte("argos"))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	_, ok := src.(*mmapSource)
	require.True(t, ok, "Open should prefer mmap for a regular file")
}
