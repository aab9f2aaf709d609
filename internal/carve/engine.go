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
	"github.com/scafiti/argos/internal/signature"
	"github.com/scafiti/argos/internal/sigindex"
)

// Source is the slice of block.Source the engine needs; kept narrow so
// tests can supply an in-memory fake without pulling in the mmap/direct
// I/O machinery.
type Source interface {
	ReadChunk(offset uint64, buf []byte) (int, error)
	Size() uint64
}

// SkipReason records why a header candidate produced no RecoveredFile,
// for the summary the engine layer prints at the end of a scan.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipVetoed
	SkipTooSmall
	SkipTooLarge
	SkipNoStitch
	SkipLowConfidence
)

// Stats tallies what happened to every header candidate the engine
// examined, independent of the RecoveredFile slice Run returns.
type Stats struct {
	HeadersSeen  int
	LinearHits   int
	Bifragment   int
	Reassembled  int
	Skipped      map[SkipReason]int
	Duplicates   int
}

func newStats() Stats {
	return Stats{Skipped: make(map[SkipReason]int)}
}

// Engine is the CarvingEngine: it consumes a finalized SignatureIndex and
// a block source, and for every header candidate decides between linear,
// bifragment, and reassembly recovery, applying structural vetoes and
// dedup along the way.
type Engine struct {
	src Source
	idx *sigindex.Index
	cfg Config
	dd  *dedupSet
}

// New returns an Engine ready to Run against idx, which must already be
// finalized.
func New(src Source, idx *sigindex.Index, cfg Config) *Engine {
	return &Engine{src: src, idx: idx, cfg: cfg, dd: newDedupSet()}
}

// Run walks every JPEG and PNG header candidate in the index, in
// ascending offset order per format, and returns every RecoveredFile that
// survived structural validation, vetoes, size bounds, and dedup.
func (e *Engine) Run() ([]RecoveredFile, Stats) {
	stats := newStats()
	var out []RecoveredFile

	for _, format := range []signature.Format{signature.JPEG, signature.PNG} {
		for _, header := range e.idx.Headers(format) {
			stats.HeadersSeen++
			rf, reason, ok := e.tryHeader(format, header)
			if !ok {
				stats.Skipped[reason]++
				continue
			}

			if e.cfg.MinFileSize > 0 && rf.TotalSize() < e.cfg.MinFileSize {
				stats.Skipped[SkipTooSmall]++
				continue
			}
			if max := e.cfg.maxFileSize(format); rf.TotalSize() > max {
				stats.Skipped[SkipTooLarge]++
				continue
			}
			if rf.Confidence < e.cfg.MinConfidence {
				stats.Skipped[SkipLowConfidence]++
				continue
			}

			if e.dd.seenBefore(e.src, rf) {
				stats.Duplicates++
				continue
			}

			switch rf.Method {
			case Linear:
				stats.LinearHits++
			case Bifragment:
				stats.Bifragment++
			case Reassembled:
				stats.Reassembled++
			}
			out = append(out, rf)
		}
	}

	return out, stats
}

// tryHeader runs the three strategies in order against one header
// offset: linear first, falling back to bifragment and then reassembly
// only when linear's structural validation hit corruption or truncation.
func (e *Engine) tryHeader(format signature.Format, header uint64) (RecoveredFile, SkipReason, bool) {
	capSize := e.cfg.maxFileSize(format)
	buf := e.readRange(header, header+capSize)
	if len(buf) == 0 {
		return RecoveredFile{}, SkipNoStitch, false
	}

	// With structural validation disabled, pair the header with its
	// nearest footer and trust the signatures alone.
	if !e.cfg.StructuralValidation {
		footer, ok := e.idx.FindClosestFooter(format, header, capSize)
		if !ok {
			return RecoveredFile{}, SkipNoStitch, false
		}
		return RecoveredFile{
			Ranges:     []Range{{Start: header, End: footer + footerLen(format)}},
			Method:     Linear,
			Format:     format,
			Confidence: 1.0,
		}, SkipNone, true
	}

	v := validate(format, buf)

	entropySample := buf
	if len(entropySample) > 1024 {
		entropySample = entropySample[:1024]
	}
	headerEntropy := float32(sampleEntropy(entropySample))

	switch v.state {
	case vValid:
		if v.vetoed && (e.cfg.FilterGraphics || e.cfg.FilterThumbnails) {
			return RecoveredFile{}, SkipVetoed, false
		}
		return RecoveredFile{
			Ranges:        []Range{{Start: header, End: header + v.validEnd}},
			Method:        Linear,
			Format:        format,
			HeaderEntropy: headerEntropy,
			Confidence:    1.0,
		}, SkipNone, true

	case vTruncated, vCorrupted:
		breakOffset := header + v.validEnd
		if e.cfg.BifragmentCarving {
			if rf, ok := e.tryBifragment(format, header, breakOffset); ok {
				rf.HeaderEntropy = headerEntropy
				return rf, SkipNone, true
			}
			// Reassembly's wide continuation sweep is reserved for orphan
			// headers: when a footer sits within MaxHeaderDistance, the
			// bifragment grid already probed every plausible stitch
			// against it.
			if _, hasFooter := e.idx.FindClosestFooter(format, header, e.cfg.MaxHeaderDistance); !hasFooter {
				if rf, ok := e.tryReassembly(format, header, breakOffset); ok {
					rf.HeaderEntropy = headerEntropy
					return rf, SkipNone, true
				}
			}
		}
		// Neither stitching strategy produced a confident match; fall
		// back to a partial linear extraction of whatever validated
		// cleanly, scored by the same validationScore the stitchers use
		// (0.75 truncated, 0.0 corrupted; the latter only survives if
		// the caller runs with MinConfidence at 0).
		if v.validEnd == 0 {
			return RecoveredFile{}, SkipNoStitch, false
		}
		return RecoveredFile{
			Ranges:        []Range{{Start: header, End: breakOffset}},
			Method:        Linear,
			Format:        format,
			HeaderEntropy: headerEntropy,
			Confidence:    validationScore(v.state),
		}, SkipNone, true

	default:
		return RecoveredFile{}, SkipNoStitch, false
	}
}

// readRange reads [start, end) from the source, clamped to its size, and
// returns however many bytes were actually available.
func (e *Engine) readRange(start, end uint64) []byte {
	size := e.src.Size()
	if start >= size {
		return nil
	}
	if end > size {
		end = size
	}
	if end <= start {
		return nil
	}
	buf := make([]byte, end-start)
	n, err := e.src.ReadChunk(start, buf)
	if err != nil && n == 0 {
		return nil
	}
	return buf[:n]
}
