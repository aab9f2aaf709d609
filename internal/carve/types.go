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

import "github.com/scafiti/argos/internal/signature"

// Range is a half-open byte range [Start, End) on the source medium.
type Range struct {
	Start, End uint64
}

func (r Range) Len() uint64 { return r.End - r.Start }

// Method records which strategy produced a RecoveredFile. Depth is
// meaningful only for Reassembled, and
// is always 2; carving a file broken into three or more fragments is
// out of scope (see DESIGN.md).
type Method int

const (
	Linear Method = iota
	Bifragment
	Reassembled
)

func (m Method) String() string {
	switch m {
	case Linear:
		return "linear"
	case Bifragment:
		return "bifragment"
	case Reassembled:
		return "reassembled"
	default:
		return "unknown"
	}
}

// RecoveredFile is the CarvingEngine's output: one or more disjoint,
// monotonically increasing byte ranges that together make up a candidate
// JPEG or PNG.
type RecoveredFile struct {
	Ranges         []Range
	Method         Method
	Depth          int // meaningful only when Method == Reassembled
	Format         signature.Format
	HeaderEntropy  float32
	Confidence     float32
}

// TotalSize is the sum of every range's length, the span checked against
// [MinFileSize, MaxFileSize].
func (rf RecoveredFile) TotalSize() uint64 {
	var total uint64
	for _, r := range rf.Ranges {
		total += r.Len()
	}
	return total
}

// HeaderOffset is the start of the first range, used for filename
// templating and dedup.
func (rf RecoveredFile) HeaderOffset() uint64 {
	if len(rf.Ranges) == 0 {
		return 0
	}
	return rf.Ranges[0].Start
}
