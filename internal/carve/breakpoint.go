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

// breakpoint.go finds where a head fragment structurally stops making
// sense and which cluster-aligned regions after it could plausibly hold
// the rest of the file. Both halves feed tryReassembly: the break point
// trims the head to its last trustworthy byte, and the continuation
// filter prunes the cluster sweep down to windows that look like the
// middle of a JPEG scan or a PNG IDAT chain before any expensive stitch
// validation runs.
package carve

import (
	"encoding/binary"
	"math"

	"github.com/scafiti/argos/internal/jpegfmt"
	"github.com/scafiti/argos/internal/pngfmt"
	"github.com/scafiti/argos/internal/signature"
)

// BreakConfidence grades how certain a detected break is.
type BreakConfidence int

const (
	// BreakProbable marks a zero run: a legal stream could still contain
	// one, but in practice it is an unwritten cluster.
	BreakProbable BreakConfidence = iota
	// BreakDefinite marks an illegal marker or failed CRC: the stream
	// cannot validly continue past it.
	BreakDefinite
)

// BreakSignature records which structural layer the break was found in.
type BreakSignature int

const (
	BreakJpegScanData BreakSignature = iota
	BreakPngIdat
)

// BreakPoint is where a head fragment's structure stops being
// trustworthy, in offsets relative to the fragment start.
type BreakPoint struct {
	Offset     uint64
	Confidence BreakConfidence
	Signature  BreakSignature
}

// headProbeSize bounds how much of the head fragment break detection
// examines.
const headProbeSize = 256 << 10

// continuationWindowSize is how many bytes are read at each
// cluster-aligned probe offset when hunting for a continuation.
const continuationWindowSize = 64 << 10

const (
	jpegContinuationMinEntropy = 6.0
	pngContinuationMinEntropy  = 5.0
)

// detectBreakPoint scans head (the fragment's first bytes, at most
// headProbeSize of them are examined) for a structural break.
func detectBreakPoint(format signature.Format, head []byte, pngZeroThreshold int) (BreakPoint, bool) {
	if len(head) > headProbeSize {
		head = head[:headProbeSize]
	}
	if format == signature.JPEG {
		sb, ok := jpegfmt.DetectScanBreak(head, 512)
		if !ok {
			return BreakPoint{}, false
		}
		bp := BreakPoint{Offset: sb.Offset, Signature: BreakJpegScanData}
		if sb.Definite {
			bp.Confidence = BreakDefinite
		}
		return bp, true
	}

	if pngZeroThreshold <= 0 {
		pngZeroThreshold = 512
	}
	cb, ok := pngfmt.DetectChunkBreak(head, pngZeroThreshold)
	if !ok {
		return BreakPoint{}, false
	}
	bp := BreakPoint{Offset: cb.Offset, Signature: BreakPngIdat}
	if cb.Definite {
		bp.Confidence = BreakDefinite
	}
	return bp, true
}

// isContinuation reports whether window plausibly holds the middle of a
// file of the given format. minEntropy overrides the JPEG entropy gate
// when positive; the PNG gate is fixed at its lower bound since IDAT
// payloads compress less uniformly than JPEG scan data.
func isContinuation(format signature.Format, window []byte, minEntropy float64) bool {
	if len(window) == 0 {
		return false
	}
	if format == signature.JPEG {
		return isJpegContinuation(window, minEntropy)
	}
	return isPngContinuation(window)
}

// isJpegContinuation accepts a window whose byte entropy looks like
// compressed scan data and that contains no marker a scan cannot hold
// before its first EOI.
func isJpegContinuation(window []byte, minEntropy float64) bool {
	if minEntropy <= 0 {
		minEntropy = jpegContinuationMinEntropy
	}
	if sampleEntropy(window) < minEntropy {
		return false
	}
	for i := 0; i+1 < len(window); i++ {
		if window[i] != 0xFF {
			continue
		}
		next := window[i+1]
		switch {
		case next == 0x00:
			i++
		case next >= 0xD0 && next <= 0xD7:
			i++
		case next == 0xD9:
			return true
		case next == 0xFF:
		default:
			return false
		}
	}
	return true
}

// isPngContinuation accepts a window that starts with a plausible IDAT
// chunk header whose CRC verifies when the whole chunk fits in the
// window.
func isPngContinuation(window []byte) bool {
	if len(window) < 8 {
		return false
	}
	if sampleEntropy(window) < pngContinuationMinEntropy {
		return false
	}
	length := binary.BigEndian.Uint32(window[0:4])
	if string(window[4:8]) != "IDAT" || length > 0x7fffffff {
		return false
	}
	chunkEnd := 8 + int(length)
	if chunkEnd+4 <= len(window) {
		want := binary.BigEndian.Uint32(window[chunkEnd : chunkEnd+4])
		return pngfmt.CRC32(window[4:chunkEnd]) == want
	}
	return true
}

// tailProbe verifies that the bytes just before end really are the
// format's footer, so a continuation candidate is never stitched against
// a footer offset the index mispaired.
func tailProbe(format signature.Format, tail []byte) bool {
	if format == signature.JPEG {
		n := len(tail)
		return n >= 2 && tail[n-2] == 0xFF && tail[n-1] == 0xD9
	}
	n := len(tail)
	if n < 8 {
		return false
	}
	return string(tail[n-8:n-4]) == "IEND"
}

// sampleEntropy is the Shannon entropy of data's byte histogram, in bits.
func sampleEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var hist [256]int
	for _, b := range data {
		hist[b]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, count := range hist {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
