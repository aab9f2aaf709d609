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

// Package sigindex accumulates signature.Match offsets found during a scan
// and answers the header/footer pairing queries the carving engine needs.
// The index has two phases: mutable while a scan is adding matches, and
// immutable (binary-search queryable) after Finalize.
package sigindex

import (
	"sort"

	"github.com/scafiti/argos/internal/signature"
)

// Index holds four sorted offset sequences, one per (kind, format) pair.
type Index struct {
	headers [2][]uint64 // indexed by signature.Format
	footers [2][]uint64

	finalized bool
}

// New returns an empty, mutable Index.
func New() *Index {
	return &Index{}
}

// AddHeader records a header match. Must be called before Finalize.
func (idx *Index) AddHeader(format signature.Format, offset uint64) {
	idx.mustNotBeFinalized()
	idx.headers[format] = append(idx.headers[format], offset)
}

// AddFooter records a footer match. Must be called before Finalize.
func (idx *Index) AddFooter(format signature.Format, offset uint64) {
	idx.mustNotBeFinalized()
	idx.footers[format] = append(idx.footers[format], offset)
}

func (idx *Index) mustNotBeFinalized() {
	if idx.finalized {
		panic("sigindex: cannot add matches after Finalize")
	}
}

// Finalize sorts each of the four sequences and collapses duplicate
// offsets, switching the index into its query-only phase. Duplicates
// arise naturally from the scanning pipeline's overlapping chunk
// windows, which deliberately re-scan their overlap region so a
// signature straddling a chunk boundary is still seen whole by at least
// one chunk; the same match then gets reported twice at the identical
// offset.
func (idx *Index) Finalize() {
	for f := range idx.headers {
		idx.headers[f] = sortDedup(idx.headers[f])
	}
	for f := range idx.footers {
		idx.footers[f] = sortDedup(idx.footers[f])
	}
	idx.finalized = true
}

func sortDedup(offsets []uint64) []uint64 {
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	out := offsets[:0]
	for i, off := range offsets {
		if i == 0 || off != out[len(out)-1] {
			out = append(out, off)
		}
	}
	return out
}

// HeaderCount returns the number of header matches recorded for format.
func (idx *Index) HeaderCount(format signature.Format) int { return len(idx.headers[format]) }

// FooterCount returns the number of footer matches recorded for format.
func (idx *Index) FooterCount(format signature.Format) int { return len(idx.footers[format]) }

// Headers returns the finalized, ascending header offsets for format. The
// returned slice is shared with the index and must not be mutated.
func (idx *Index) Headers(format signature.Format) []uint64 { return idx.headers[format] }

// Footers returns the finalized, ascending footer offsets for format. The
// returned slice is shared with the index and must not be mutated.
func (idx *Index) Footers(format signature.Format) []uint64 { return idx.footers[format] }

// FindNextFooter returns the smallest footer offset strictly greater than
// after, if any exists.
func (idx *Index) FindNextFooter(format signature.Format, after uint64) (uint64, bool) {
	seq := idx.footers[format]
	i := sort.Search(len(seq), func(i int) bool { return seq[i] > after })
	if i == len(seq) {
		return 0, false
	}
	return seq[i], true
}

// FindClosestFooter returns the smallest footer offset greater than after
// and within maxDistance of it.
func (idx *Index) FindClosestFooter(format signature.Format, after, maxDistance uint64) (uint64, bool) {
	off, ok := idx.FindNextFooter(format, after)
	if !ok {
		return 0, false
	}
	if off-after > maxDistance {
		return 0, false
	}
	return off, true
}

// Candidates returns every header offset for format whose nearest
// following footer is within maxSize, paired with that footer offset.
type Candidate struct {
	Header uint64
	Footer uint64
}

func (idx *Index) Candidates(format signature.Format, maxSize uint64) []Candidate {
	var out []Candidate
	for _, h := range idx.headers[format] {
		footer, ok := idx.FindNextFooter(format, h)
		if !ok || footer+uint64(footerLen(format))-h > maxSize {
			continue
		}
		out = append(out, Candidate{Header: h, Footer: footer})
	}
	return out
}

// OrphanHeaders returns every header offset for format with no footer
// within maxSize bytes of it, the candidates for multi-fragment reassembly.
func (idx *Index) OrphanHeaders(format signature.Format, maxSize uint64) []uint64 {
	var out []uint64
	for _, h := range idx.headers[format] {
		footer, ok := idx.FindNextFooter(format, h)
		if ok && footer+uint64(footerLen(format))-h <= maxSize {
			continue
		}
		out = append(out, h)
	}
	return out
}

func footerLen(format signature.Format) int {
	if format == signature.JPEG {
		return 2
	}
	return 8
}
