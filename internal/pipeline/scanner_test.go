package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/scafiti/argos/internal/block"
	"github.com/stretchr/testify/require"
)

func openTestSource(t *testing.T, data []byte) block.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	src, err := block.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src
}

func TestScanCoversWholeSourceInOrder(t *testing.T) {
	data := make([]byte, 3*DefaultChunkSize+1234)
	for i := range data {
		data[i] = byte(i)
	}
	src := openTestSource(t, data)

	cfg := Config{ChunkSize: 64 << 10, Overlap: 1024, Workers: 4}

	var reconstructed []byte
	var lastOffset uint64
	first := true

	_, err := Scan(src, cfg, nil, nil, func(c *DataChunk) {
		if first {
			first = false
		} else {
			require.GreaterOrEqual(t, c.Offset, lastOffset)
		}
		lastOffset = c.Offset

		end := int(c.Offset) + c.N
		if end > len(reconstructed) {
			grown := make([]byte, end)
			copy(grown, reconstructed)
			reconstructed = grown
		}
		copy(reconstructed[c.Offset:], c.Bytes())
	})
	require.NoError(t, err)
	require.Equal(t, data, reconstructed[:len(data)])
}

func TestScanRespectsCancellation(t *testing.T) {
	data := make([]byte, 16*DefaultChunkSize)
	src := openTestSource(t, data)

	cfg := Config{ChunkSize: 4096, Overlap: 0, Workers: 2}

	var cancel atomic.Bool
	seen := 0
	_, err := Scan(src, cfg, &cancel, nil, func(c *DataChunk) {
		seen++
		if seen == 5 {
			cancel.Store(true)
		}
	})
	require.NoError(t, err)
	require.Less(t, seen, len(data)/4096)
}

func TestBadSectorReportSorted(t *testing.T) {
	report := BadSectorReport{Offsets: []uint64{4096, 0, 8192}}
	sort.Slice(report.Offsets, func(i, j int) bool { return report.Offsets[i] < report.Offsets[j] })
	require.Equal(t, []uint64{0, 4096, 8192}, report.Offsets)
}
