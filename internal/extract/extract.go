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

// Package extract turns a carve.RecoveredFile's byte ranges into a file on
// disk: it stitches the ranges with pkg/reader.MultiReadSeeker, flags
// output that is mostly zero-filled (the unallocated-sector case a
// carving pass can't otherwise distinguish from a legitimately dark
// image), and optionally runs the result back through internal/classify
// once it can be decoded to pixels.
package extract

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/scafiti/argos/internal/carve"
	"github.com/scafiti/argos/internal/classify"
	"github.com/scafiti/argos/internal/signature"
	"github.com/scafiti/argos/pkg/reader"
)

// Source is the narrow slice of block.Source Extractor needs to turn
// logical ranges into an io.ReaderAt.
type Source interface {
	ReadChunk(offset uint64, buf []byte) (int, error)
	Size() uint64
}

// Options configures one Extractor.
type Options struct {
	OutputDir string

	// MaxZeroRatio rejects a recovered file whose content is more than
	// this fraction zero bytes, the signature of carving into unused,
	// never-overwritten sectors rather than genuine deleted image data.
	MaxZeroRatio float64

	// Classify, when true, decodes the extracted file's pixels and runs
	// internal/classify over them, recording the verdict in Result.
	Classify bool
	// RejectNonPhoto deletes the output file when Classify found
	// anything other than a NaturalPhoto.
	RejectNonPhoto bool
	ClassifierConfig classify.Config
	MinResolution     [2]int
}

// DefaultOptions mirrors the thresholds in carve.DefaultConfig. Only
// natural photos are kept by default; graphics and encrypted blobs the
// classifier identifies are removed again.
func DefaultOptions(outputDir string) Options {
	return Options{
		OutputDir:         outputDir,
		MaxZeroRatio:      0.25,
		Classify:          true,
		RejectNonPhoto:    true,
		ClassifierConfig:  classify.DefaultConfig(),
		MinResolution:     [2]int{600, 600},
	}
}

// Result reports what happened to one RecoveredFile.
type Result struct {
	Path           string
	RecoveredFile  carve.RecoveredFile
	BytesWritten   int64
	ZeroRatio      float64
	Classification classify.Classification
	Classified     bool
	Skipped        bool
	SkipReason     string
}

// Extractor writes RecoveredFile byte ranges out as individual files.
type Extractor struct {
	src        Source
	opts       Options
	classifier *classify.Classifier
}

// New returns an Extractor writing into opts.OutputDir, which must
// already exist.
func New(src Source, opts Options) *Extractor {
	return &Extractor{src: src, opts: opts, classifier: classify.NewClassifierWithConfig(opts.ClassifierConfig)}
}

// Extract writes rf to OutputDir under a name derived from its format and
// header offset, returning the outcome. A Skipped result with a nil error
// means the file was written, inspected, and then removed again because
// it failed the zero-ratio, resolution or classification gate; os.Remove failures are
// folded into the returned error.
func (e *Extractor) Extract(rf carve.RecoveredFile) (Result, error) {
	path := filepath.Join(e.opts.OutputDir, outputName(rf))

	mrs := e.readSeeker(rf)
	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("extract: create %s: %w", path, err)
	}

	w := bufio.NewWriterSize(f, 1<<20)
	zc := &zeroCounter{}
	n, copyErr := io.Copy(w, io.TeeReader(mrs, zc))
	flushErr := w.Flush()
	closeErr := f.Close()

	if copyErr != nil {
		os.Remove(path)
		return Result{}, fmt.Errorf("extract: copy %s: %w", path, copyErr)
	}
	if flushErr != nil {
		os.Remove(path)
		return Result{}, fmt.Errorf("extract: flush %s: %w", path, flushErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return Result{}, fmt.Errorf("extract: close %s: %w", path, closeErr)
	}

	res := Result{Path: path, RecoveredFile: rf, BytesWritten: n, ZeroRatio: zc.ratio()}

	if e.opts.MaxZeroRatio > 0 && res.ZeroRatio > e.opts.MaxZeroRatio {
		if err := os.Remove(path); err != nil {
			return Result{}, fmt.Errorf("extract: remove %s: %w", path, err)
		}
		res.Skipped = true
		res.SkipReason = "mostly zero-filled sectors"
		return res, nil
	}

	// The resolution floor is rechecked on every accepted file from the
	// decoded image header, independent of whether statistical
	// classification runs: the carve-stage dimension verdict is a coarse
	// 0.2-megapixel gate, not this floor.
	if e.opts.MinResolution[0] > 0 || e.opts.MinResolution[1] > 0 {
		if w, h, ok := decodeDimensions(path); ok &&
			(w < e.opts.MinResolution[0] || h < e.opts.MinResolution[1]) {
			if err := os.Remove(path); err != nil {
				return Result{}, fmt.Errorf("extract: remove %s: %w", path, err)
			}
			res.Skipped = true
			res.SkipReason = "below minimum resolution"
			return res, nil
		}
	}

	if e.opts.Classify {
		cls, ok, err := e.classifyFile(path)
		if err == nil && ok {
			res.Classification = cls
			res.Classified = true
			if e.opts.RejectNonPhoto && !cls.IsPhoto() {
				if rmErr := os.Remove(path); rmErr != nil {
					return Result{}, fmt.Errorf("extract: remove %s: %w", path, rmErr)
				}
				res.Skipped = true
				res.SkipReason = "classified as " + cls.String()
			}
		}
	}

	return res, nil
}

// readSeeker stitches rf's ranges into one logical stream over the
// underlying source.
func (e *Extractor) readSeeker(rf carve.RecoveredFile) *reader.MultiReadSeeker {
	ra := sourceReaderAt{src: e.src}
	readers := make([]io.ReadSeeker, len(rf.Ranges))
	sizes := make([]int64, len(rf.Ranges))
	for i, r := range rf.Ranges {
		readers[i] = io.NewSectionReader(ra, int64(r.Start), int64(r.Len()))
		sizes[i] = int64(r.Len())
	}
	return reader.NewMultiReadSeeker(readers, sizes)
}

// decodeDimensions reads just the image header, enough for the
// resolution floor without decoding any pixel data. A file the standard
// decoders cannot even size is left for classifyFile to judge.
func decodeDimensions(path string) (int, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// classifyFile decodes path's pixels with the standard library's JPEG and
// PNG decoders (see DESIGN.md: neither example pack repo ships a decoder
// that reconstructs pixel data for either format, only structural
// parsers) and classifies the result. The resolution floor has already
// been applied by the time this runs.
func (e *Extractor) classifyFile(path string) (classify.Classification, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return classify.Corrupted, true, nil
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pix := toRGB(img)
	stats := e.classifier.ComputeStatistics(pix, width, height, 3)
	return e.classifier.Classify(stats, width*height), true, nil
}

func toRGB(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return out
}

// outputName builds <format>_<header offset, 16 hex digits>.<ext>.
func outputName(rf carve.RecoveredFile) string {
	ext := "jpg"
	if rf.Format == signature.PNG {
		ext = "png"
	}
	return fmt.Sprintf("%s_%016x.%s", rf.Format, rf.HeaderOffset(), ext)
}

type sourceReaderAt struct {
	src Source
}

func (s sourceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.src.ReadChunk(uint64(off), p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// zeroCounter is an io.Writer that only tallies how many of the bytes
// passing through it are zero, for io.TeeReader to drive alongside the
// real copy without a second read pass.
type zeroCounter struct {
	total uint64
	zero  uint64
}

func (z *zeroCounter) Write(p []byte) (int, error) {
	z.total += uint64(len(p))
	for _, b := range p {
		if b == 0 {
			z.zero++
		}
	}
	return len(p), nil
}

func (z *zeroCounter) ratio() float64 {
	if z.total == 0 {
		return 0
	}
	return float64(z.zero) / float64(z.total)
}
