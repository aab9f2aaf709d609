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
package extract

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scafiti/argos/internal/carve"
	"github.com/scafiti/argos/internal/signature"
)

type memSource struct{ data []byte }

func (m *memSource) ReadChunk(offset uint64, buf []byte) (int, error) {
	if offset >= uint64(len(m.data)) {
		return 0, nil
	}
	n := copy(buf, m.data[offset:])
	return n, nil
}

func (m *memSource) Size() uint64 { return uint64(len(m.data)) }

func TestExtractWritesStitchedRanges(t *testing.T) {
	data := []byte("HEAD----TAIL")
	src := &memSource{data: data}
	dir := t.TempDir()

	opts := Options{OutputDir: dir, Classify: false}
	ex := New(src, opts)

	rf := carve.RecoveredFile{
		Ranges: []carve.Range{
			{Start: 0, End: 4},
			{Start: 8, End: 12},
		},
		Method: carve.Bifragment,
		Format: signature.JPEG,
	}

	res, err := ex.Extract(rf)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "HEADTAIL", string(got))
	assert.Equal(t, filepath.Join(dir, "jpeg_0000000000000000.jpg"), res.Path)
}

func TestExtractSkipsMostlyZeroFiles(t *testing.T) {
	data := make([]byte, 1024)
	src := &memSource{data: data}
	dir := t.TempDir()

	opts := Options{OutputDir: dir, Classify: false, MaxZeroRatio: 0.25}
	ex := New(src, opts)

	rf := carve.RecoveredFile{
		Ranges: []carve.Range{{Start: 0, End: 1024}},
		Method: carve.Linear,
		Format: signature.PNG,
	}

	res, err := ex.Extract(rf)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "mostly zero-filled sectors", res.SkipReason)

	_, statErr := os.Stat(res.Path)
	assert.True(t, os.IsNotExist(statErr))
}

// encodePNG renders a side x side gradient and returns it PNG-encoded,
// giving the extractor something the standard decoders can size.
func encodePNG(t *testing.T, side int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = byte(x)
			img.Pix[i+1] = byte(y)
			img.Pix[i+2] = byte(x + y)
			img.Pix[i+3] = 0xFF
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtractEnforcesResolutionFloor(t *testing.T) {
	data := encodePNG(t, 300)
	src := &memSource{data: data}
	dir := t.TempDir()

	opts := Options{OutputDir: dir, Classify: false, MinResolution: [2]int{600, 600}}
	ex := New(src, opts)

	rf := carve.RecoveredFile{
		Ranges: []carve.Range{{Start: 0, End: uint64(len(data))}},
		Method: carve.Linear,
		Format: signature.PNG,
	}

	res, err := ex.Extract(rf)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "below minimum resolution", res.SkipReason)

	_, statErr := os.Stat(res.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractKeepsImageMeetingResolutionFloor(t *testing.T) {
	data := encodePNG(t, 700)
	src := &memSource{data: data}
	dir := t.TempDir()

	opts := Options{OutputDir: dir, Classify: false, MinResolution: [2]int{600, 600}}
	ex := New(src, opts)

	rf := carve.RecoveredFile{
		Ranges: []carve.Range{{Start: 0, End: uint64(len(data))}},
		Method: carve.Linear,
		Format: signature.PNG,
	}

	res, err := ex.Extract(rf)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	_, statErr := os.Stat(res.Path)
	assert.NoError(t, statErr)
}

func TestOutputNamePicksExtensionByFormat(t *testing.T) {
	jpg := carve.RecoveredFile{Ranges: []carve.Range{{Start: 0x1000, End: 0x2000}}, Format: signature.JPEG}
	png := carve.RecoveredFile{Ranges: []carve.Range{{Start: 0x1000, End: 0x2000}}, Format: signature.PNG}

	assert.Equal(t, "jpeg_0000000000001000.jpg", outputName(jpg))
	assert.Equal(t, "png_0000000000001000.png", outputName(png))
}
