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

// Package signature locates JPEG and PNG header/footer byte signatures in
// a stream of chunks. Matching reuses pkg/table.PrefixTable, a
// constant-space hash automaton over byte prefixes: every position is
// visited once and a mismatch aborts immediately, so a full scan is
// O(n), never the O(n*m) a naive substring search would cost.
package signature

import "github.com/scafiti/argos/pkg/table"

// Format identifies one of the two carved image formats.
type Format int

const (
	JPEG Format = iota
	PNG
)

func (f Format) String() string {
	if f == JPEG {
		return "jpeg"
	}
	return "png"
}

// Kind distinguishes a header signature from a footer signature.
type Kind int

const (
	Header Kind = iota
	Footer
)

// Match is a signature hit at an absolute offset within the scanned
// source.
type Match struct {
	Offset uint64
	Format Format
	Kind   Kind
}

type sig struct {
	format Format
	kind   Kind
}

var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF}
	jpegFooter = []byte{0xFF, 0xD9}
	pngHeader  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	pngFooter  = []byte{0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82}

	// maxSignatureLen bounds how many bytes of the window Walk needs to
	// consider for any single starting position.
	maxSignatureLen = len(pngHeader)
)

// Scanner holds the prebuilt signature automaton. It is immutable after
// construction and safe for concurrent use by multiple pipeline workers.
type Scanner struct {
	table *table.PrefixTable[sig]
}

// NewScanner builds the JPEG/PNG header+footer automaton once; callers
// should build a single Scanner and share it across all workers.
func NewScanner() *Scanner {
	t := table.New[sig]()
	t.Insert(jpegHeader, sig{format: JPEG, kind: Header})
	t.Insert(jpegFooter, sig{format: JPEG, kind: Footer})
	t.Insert(pngHeader, sig{format: PNG, kind: Header})
	t.Insert(pngFooter, sig{format: PNG, kind: Footer})
	return &Scanner{table: t}
}

// Scan reports every header/footer match found in data, where baseOffset
// is the absolute offset of data[0] in the source. A match in the overlap
// region of two pipeline chunks is reported once per chunk;
// SignatureIndex.Finalize collapses such duplicates by absolute offset.
func (s *Scanner) Scan(data []byte, baseOffset uint64, onMatch func(Match)) {
	for i := range data {
		end := i + maxSignatureLen
		if end > len(data) {
			end = len(data)
		}
		window := data[i:end]

		s.table.Walk(window, func(v sig) bool {
			onMatch(Match{Offset: baseOffset + uint64(i), Format: v.format, Kind: v.kind})
			return false
		})
	}
}

// QuickValidate applies a cheap structural sanity check immediately after
// a header match, before the signature is ever handed to the full
// JPEG/PNG parser. data must start at the matched header offset and be at
// least 4 bytes long for JPEG, 16 for PNG.
func QuickValidate(format Format, data []byte) bool {
	switch format {
	case JPEG:
		if len(data) < 4 {
			return false
		}
		b := data[3]
		switch {
		case b >= 0xE0 && b <= 0xEF:
			return true
		case b == 0xDB, b == 0xDD, b == 0xFE:
			return true
		case b >= 0xC0 && b <= 0xC3, b >= 0xC5 && b <= 0xCF:
			return true
		}
		return false
	case PNG:
		if len(data) < 16 {
			return false
		}
		length := uint32(data[8])<<24 | uint32(data[9])<<16 | uint32(data[10])<<8 | uint32(data[11])
		return length == 13 && string(data[12:16]) == "IHDR"
	}
	return false
}
