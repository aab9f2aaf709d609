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
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestJPEG assembles a structurally valid JPEG whose entropy-coded
// scan is seeded pseudo-random data, so distinct seeds yield files the
// content-hash dedup treats as different. The headers parse under the
// standard library's DecodeConfig, which the extractor's resolution
// floor relies on.
func buildTestJPEG(seed, width, height int) []byte {
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

	for i := 0; i < 96<<10; i++ {
		b = append(b, byte((i*37+seed*101+11)%253)+1) // never 0x00 or 0xFF
	}
	b = append(b, 0xFF, 0xD9) // EOI
	return b
}

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.img")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions(t.TempDir())
	opts.Carver.MinFileSize = 0
	opts.Carver.FilterGraphics = false
	opts.Carver.FilterThumbnails = false
	opts.Extract.Classify = false
	return opts
}

func TestRunEmptyDeviceRecoversNothing(t *testing.T) {
	path := writeImage(t, make([]byte, 1<<20))

	summary, err := Run(path, testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 0, summary.HeadersFound)
	assert.Equal(t, 0, summary.FootersFound)
	assert.Equal(t, 0, summary.Recovered)
}

func TestRunRecoversSingleContiguousJPEG(t *testing.T) {
	jpg := buildTestJPEG(1, 700, 700)
	data := make([]byte, 2<<20)
	copy(data[0x100000:], jpg)
	path := writeImage(t, data)

	opts := testOptions(t)
	summary, err := Run(path, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.HeadersFound)
	assert.Equal(t, 1, summary.Recovered)
	assert.Equal(t, 1, summary.LinearCount)

	out := filepath.Join(opts.OutputDir, fmt.Sprintf("jpeg_%016x.jpg", 0x100000))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, jpg, got)
}

func TestRunRecoversThreeJPEGsAtKnownOffsets(t *testing.T) {
	data := make([]byte, 10<<20)
	offsets := []uint64{1 << 20, 3 << 20, 7 << 20}
	for i, off := range offsets {
		copy(data[off:], buildTestJPEG(i+1, 700, 700))
	}
	path := writeImage(t, data)

	opts := testOptions(t)
	summary, err := Run(path, opts)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.HeadersFound)
	assert.Equal(t, 3, summary.Recovered)
	assert.Equal(t, 3, summary.LinearCount)

	for _, off := range offsets {
		out := filepath.Join(opts.OutputDir, fmt.Sprintf("jpeg_%016x.jpg", off))
		got, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xD8}, got[:2])
		assert.Equal(t, []byte{0xFF, 0xD9}, got[len(got)-2:])
	}
}

func TestRunDropsSub600ResolutionImage(t *testing.T) {
	// 500x500 clears the carve-stage 0.2-megapixel dimension gate but not
	// the 600x600 floor rechecked at extraction, which applies even with
	// statistical classification turned off.
	jpg := buildTestJPEG(4, 500, 500)
	data := make([]byte, 2<<20)
	copy(data[0x40000:], jpg)
	path := writeImage(t, data)

	opts := testOptions(t)
	summary, err := Run(path, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.HeadersFound)
	assert.Equal(t, 0, summary.Recovered)
	assert.Equal(t, 1, summary.Skipped)

	out := filepath.Join(opts.OutputDir, fmt.Sprintf("jpeg_%016x.jpg", 0x40000))
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunOrphanFooterRecoversNothing(t *testing.T) {
	data := make([]byte, 1<<20)
	data[1000] = 0xFF
	data[1001] = 0xD9
	path := writeImage(t, data)

	summary, err := Run(path, testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 0, summary.HeadersFound)
	assert.Equal(t, 1, summary.FootersFound)
	assert.Equal(t, 0, summary.Recovered)
}
