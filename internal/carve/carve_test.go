// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package carve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scafiti/argos/internal/pngfmt"
	"github.com/scafiti/argos/internal/signature"
	"github.com/scafiti/argos/internal/sigindex"
)

func pngCRC(b []byte) uint32 { return pngfmt.CRC32(b) }

// memSource is a fixed in-memory block.Source stand-in for tests.
type memSource struct {
	data []byte
}

func (m *memSource) ReadChunk(offset uint64, buf []byte) (int, error) {
	if offset >= uint64(len(m.data)) {
		return 0, nil
	}
	n := copy(buf, m.data[offset:])
	return n, nil
}

func (m *memSource) Size() uint64 { return uint64(len(m.data)) }

// buildJPEG assembles a minimal but structurally valid JPEG: SOI, a
// bare-bones SOF0, a DHT with a single one-bit code, SOS, a handful of
// entropy bytes, EOI.
func buildJPEG(width, height int, fill byte) []byte {
	scan := make([]byte, 64)
	for i := range scan {
		scan[i] = fill
	}
	return buildJPEGScan(width, height, scan)
}

// buildJPEGScan is buildJPEG with caller-supplied entropy-coded scan
// bytes, which must not contain 0xFF.
func buildJPEGScan(width, height int, scan []byte) []byte {
	var b []byte
	b = append(b, 0xFF, 0xD8) // SOI

	dqt := []byte{0x00, 0x43, 0x00}
	for i := 0; i < 64; i++ {
		dqt = append(dqt, 0x10)
	}
	b = append(b, 0xFF, 0xDB)
	b = append(b, dqt...)

	sof := []byte{0x00, 0x11, 0x08,
		byte(height >> 8), byte(height),
		byte(width >> 8), byte(width),
		0x03,
		0x01, 0x11, 0x00,
		0x02, 0x11, 0x01,
		0x03, 0x11, 0x01,
	}
	b = append(b, 0xFF, 0xC0)
	b = append(b, sof...)

	dht := []byte{0x00, 0x14, 0x00,
		0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0x00,
	}
	b = append(b, 0xFF, 0xC4)
	b = append(b, dht...)

	sos := []byte{0x00, 0x0C,
		0x03,
		0x01, 0x00,
		0x02, 0x00,
		0x03, 0x00,
		0x00, 0x3F, 0x00,
	}
	b = append(b, 0xFF, 0xDA)
	b = append(b, sos...)

	b = append(b, scan...)
	b = append(b, 0xFF, 0xD9) // EOI
	return b
}

func buildIndexFor(t *testing.T, data []byte) *sigindex.Index {
	t.Helper()
	idx := sigindex.New()
	scanner := signature.NewScanner()
	scanner.Scan(data, 0, func(m signature.Match) {
		if m.Kind == signature.Header {
			idx.AddHeader(m.Format, m.Offset)
		} else {
			idx.AddFooter(m.Format, m.Offset)
		}
	})
	idx.Finalize()
	return idx
}

func TestEngineLinearRecoversCleanJPEG(t *testing.T) {
	jpg := buildJPEG(700, 700, 0x55)

	idx := buildIndexFor(t, jpg)
	require.Equal(t, 1, idx.HeaderCount(signature.JPEG))

	cfg := DefaultConfig()
	cfg.MinFileSize = 0
	cfg.MinConfidence = 0
	cfg.FilterGraphics = false
	cfg.FilterThumbnails = false

	eng := New(&memSource{data: jpg}, idx, cfg)
	out, stats := eng.Run()

	require.Len(t, out, 1)
	assert.Equal(t, Linear, out[0].Method)
	assert.Equal(t, uint64(len(jpg)), out[0].TotalSize())
	assert.Equal(t, 1, stats.LinearHits)
}

func TestEngineSkipsTooSmallFile(t *testing.T) {
	jpg := buildJPEG(700, 700, 0x11)

	idx := buildIndexFor(t, jpg)
	cfg := DefaultConfig()
	cfg.MinFileSize = uint64(len(jpg)) + 1
	cfg.FilterGraphics = false
	cfg.FilterThumbnails = false

	eng := New(&memSource{data: jpg}, idx, cfg)
	out, stats := eng.Run()

	assert.Empty(t, out)
	assert.Equal(t, 1, stats.Skipped[SkipTooSmall])
}

func TestEngineDedupsIdenticalContent(t *testing.T) {
	jpg := buildJPEG(700, 700, 0x22)
	doubled := append(append([]byte{}, jpg...), jpg...)

	idx := buildIndexFor(t, doubled)
	require.Equal(t, 2, idx.HeaderCount(signature.JPEG))

	cfg := DefaultConfig()
	cfg.MinFileSize = 0
	cfg.MinConfidence = 0
	cfg.FilterGraphics = false
	cfg.FilterThumbnails = false

	eng := New(&memSource{data: doubled}, idx, cfg)
	out, stats := eng.Run()

	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestEngineBifragmentStitchesSplitJPEG(t *testing.T) {
	jpg := buildJPEG(700, 700, 0x55)

	// Split the JPEG mid-scan and park the tail one cluster further down,
	// with a poisoned gap in between so linear validation breaks exactly
	// at the cut.
	cut := len(jpg) - 42
	data := make([]byte, 8192)
	copy(data, jpg[:cut])
	data[cut] = 0xFF
	data[cut+1] = 0xC5
	data[cut+2] = 0xFF
	data[cut+3] = 0xFF
	copy(data[4096:], jpg[cut:])

	idx := buildIndexFor(t, data)
	require.Equal(t, 1, idx.HeaderCount(signature.JPEG))

	cfg := DefaultConfig()
	cfg.MinFileSize = 0
	cfg.FilterGraphics = false
	cfg.FilterThumbnails = false

	eng := New(&memSource{data: data}, idx, cfg)
	out, stats := eng.Run()

	require.Len(t, out, 1)
	assert.Equal(t, Bifragment, out[0].Method)
	assert.Equal(t, 1, stats.Bifragment)
	require.Len(t, out[0].Ranges, 2)
	assert.Equal(t, Range{Start: 0, End: uint64(cut)}, out[0].Ranges[0])
	assert.Equal(t, Range{Start: 4096, End: 4096 + uint64(len(jpg)-cut)}, out[0].Ranges[1])
}

func TestEngineReassemblesOrphanHeader(t *testing.T) {
	// A large high-entropy scan section, never 0x00 or 0xFF, so the tail
	// fragment passes the continuation entropy gate on its own.
	scan := make([]byte, 60<<10)
	for i := range scan {
		scan[i] = byte((i*37+11)%253) + 1
	}
	jpg := buildJPEGScan(700, 700, scan)

	cut := 2000
	tailPos := 294912 // 72 clusters in; the 32 KiB bifragment grid probes here, but that stitch keeps the bogus FF C5 segment and fails validation
	data := make([]byte, tailPos+len(jpg)-cut+64)
	copy(data, jpg[:cut])
	data[cut] = 0xFF
	data[cut+1] = 0xC5
	data[cut+2] = 0xFF
	data[cut+3] = 0xFF
	// An illegal marker just ahead of the tail keeps windows that start
	// before the true fragment boundary from qualifying as continuations.
	data[tailPos-2] = 0xFF
	data[tailPos-1] = 0xC4
	copy(data[tailPos:], jpg[cut:])

	idx := buildIndexFor(t, data)
	require.Equal(t, 1, idx.HeaderCount(signature.JPEG))
	require.Equal(t, 1, idx.FooterCount(signature.JPEG))

	cfg := DefaultConfig()
	cfg.MinFileSize = 0
	cfg.MinFragmentSize = 16
	cfg.MaxHeaderDistance = 8192 // footer is far beyond this: orphan header
	cfg.FilterGraphics = false
	cfg.FilterThumbnails = false

	eng := New(&memSource{data: data}, idx, cfg)
	out, stats := eng.Run()

	require.Len(t, out, 1)
	assert.Equal(t, Reassembled, out[0].Method)
	assert.Equal(t, 2, out[0].Depth)
	assert.Equal(t, 1, stats.Reassembled)
	require.Len(t, out[0].Ranges, 2)
	assert.Equal(t, Range{Start: 0, End: uint64(cut)}, out[0].Ranges[0])
	assert.Equal(t, Range{Start: uint64(tailPos), End: uint64(tailPos + len(jpg) - cut)}, out[0].Ranges[1])
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(4096), alignUp(1, 4096))
	assert.Equal(t, uint64(4096), alignUp(4096, 4096))
	assert.Equal(t, uint64(8192), alignUp(4097, 4096))
}

func TestSampleEntropyBounds(t *testing.T) {
	assert.Equal(t, 0.0, sampleEntropy(make([]byte, 1024)))

	uniform := make([]byte, 256*4)
	for i := range uniform {
		uniform[i] = byte(i)
	}
	assert.InDelta(t, 8.0, sampleEntropy(uniform), 0.001)
}

func TestIsJpegContinuation(t *testing.T) {
	window := make([]byte, 4096)
	for i := range window {
		window[i] = byte((i*31 + 7) % 255) // never 0xFF, so no marker
	}
	assert.True(t, isContinuation(signature.JPEG, window, 0))

	// An SOF marker mid-window cannot belong to scan data.
	window[100] = 0xFF
	window[101] = 0xC0
	assert.False(t, isContinuation(signature.JPEG, window, 0))

	// Low-entropy windows are never continuations.
	assert.False(t, isContinuation(signature.JPEG, make([]byte, 4096), 0))
}

func TestIsPngContinuation(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i*17 + 3)
	}
	window := make([]byte, 0, 512)
	window = append(window, byte(len(payload)>>24), byte(len(payload)>>16), byte(len(payload)>>8), byte(len(payload)))
	window = append(window, 'I', 'D', 'A', 'T')
	window = append(window, payload...)
	crc := pngCRC(append([]byte("IDAT"), payload...))
	window = append(window, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))

	assert.True(t, isContinuation(signature.PNG, window, 0))

	// Break the CRC and the window stops qualifying.
	window[len(window)-1] ^= 0xFF
	assert.False(t, isContinuation(signature.PNG, window, 0))
}

func TestTailProbe(t *testing.T) {
	assert.True(t, tailProbe(signature.JPEG, []byte{0x01, 0xFF, 0xD9}))
	assert.False(t, tailProbe(signature.JPEG, []byte{0x01, 0xFF, 0xD8}))

	iend := []byte{0x00, 0x00, 0x00, 0x00, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}
	assert.True(t, tailProbe(signature.PNG, iend))
	assert.False(t, tailProbe(signature.PNG, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
}

func TestDetectBreakPointJpegIllegalMarker(t *testing.T) {
	jpg := buildJPEG(700, 700, 0x55)
	// Inject a DQT marker into the entropy stream, past SOS.
	pos := len(jpg) - 20
	jpg[pos] = 0xFF
	jpg[pos+1] = 0xDB

	bp, found := detectBreakPoint(signature.JPEG, jpg, 512)
	require.True(t, found)
	assert.Equal(t, BreakDefinite, bp.Confidence)
	assert.Equal(t, BreakJpegScanData, bp.Signature)
	assert.Equal(t, uint64(pos), bp.Offset)
}

func TestReadRangesAcrossFragments(t *testing.T) {
	src := &memSource{data: []byte("AAAABBBBCCCC")}
	ranges := []Range{
		{Start: 0, End: 4},
		{Start: 8, End: 12},
	}
	got := readRanges(src, ranges, 2, 6)
	assert.Equal(t, "AACC", string(got))
}
