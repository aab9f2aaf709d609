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

// dedup.go guards against recording the same recovered image twice, which
// happens routinely once bifragment and reassembly are both trying
// continuations around the same break point: two strategies can converge
// on byte-identical content reached via different fragment splits. Rather
// than compare full files, a sample hash of the head and tail is enough
// to catch the common case cheaply.
package carve

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// hashSampleSize bounds how much of a recovered file's head and tail get
// hashed; large enough to be a reliable fingerprint, small enough that
// hashing a 50MiB JPEG doesn't mean rereading all 50MiB of it.
const hashSampleSize = 64 * 1024

type dedupSet struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{seen: make(map[uint64]struct{})}
}

// seenBefore computes a content sample hash for rf and reports whether an
// equal hash was already recorded, recording it if not.
func (d *dedupSet) seenBefore(src Source, rf RecoveredFile) bool {
	h := sampleHash(src, rf)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[h]; ok {
		return true
	}
	d.seen[h] = struct{}{}
	return false
}

// sampleHash hashes the first and last hashSampleSize bytes of rf's
// content, skipping the middle entirely when the file is larger than
// twice that.
func sampleHash(src Source, rf RecoveredFile) uint64 {
	total := rf.TotalSize()
	var sample []byte

	if total <= hashSampleSize*2 {
		sample = readRanges(src, rf.Ranges, 0, total)
	} else {
		head := readRanges(src, rf.Ranges, 0, hashSampleSize)
		tail := readRanges(src, rf.Ranges, total-hashSampleSize, total)
		sample = make([]byte, 0, len(head)+len(tail))
		sample = append(sample, head...)
		sample = append(sample, tail...)
	}

	return xxh3.Hash(sample)
}

// readRanges reads the logical byte span [from, to) of a (possibly
// multi-fragment) RecoveredFile, translating logical offsets into reads
// against the underlying ranges on the medium.
func readRanges(src Source, ranges []Range, from, to uint64) []byte {
	out := make([]byte, 0, to-from)
	var logical uint64

	for _, r := range ranges {
		rlen := r.Len()
		rangeStart, rangeEnd := logical, logical+rlen
		logical = rangeEnd

		if rangeEnd <= from || rangeStart >= to {
			continue
		}
		readFrom := r.Start
		if from > rangeStart {
			readFrom += from - rangeStart
		}
		readTo := r.End
		if to < rangeEnd {
			readTo -= rangeEnd - to
		}
		if readTo <= readFrom {
			continue
		}

		buf := make([]byte, readTo-readFrom)
		n, err := src.ReadChunk(readFrom, buf)
		if err != nil && n == 0 {
			continue
		}
		out = append(out, buf[:n]...)
	}

	return out
}
