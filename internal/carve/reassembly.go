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

// reassembly.go implements the engine's second fallback for a broken
// linear parse: where tryBifragment only probes a small cluster x k
// grid right at the break, tryReassembly re-detects the break
// structurally (zero runs, illegal markers, failed CRCs), then sweeps
// forward cluster by cluster up to MaxGap, keeping only the windows that
// look like the middle of a scan or IDAT chain as continuation
// candidates. Like bifragment, it only ever produces a two-range
// RecoveredFile; a file broken into three or more fragments on the
// medium is out of scope (see DESIGN.md), so there is no chaining past
// the first accepted continuation.
package carve

import "github.com/scafiti/argos/internal/signature"

// reassemblyCluster is the sweep grain for continuation scanning,
// independent of the bifragment probe's ClusterSizes list.
const reassemblyCluster = 4096

// tryReassembly extends the head fragment with a single continuation
// piece found by the cluster sweep, and returns the stitch if the
// combined stream validates.
func (e *Engine) tryReassembly(format signature.Format, header, breakOffset uint64) (RecoveredFile, bool) {
	maxSize := e.cfg.maxFileSize(format)
	if breakOffset <= header || breakOffset-header >= maxSize {
		return RecoveredFile{}, false
	}

	head := e.readRange(header, breakOffset)
	if len(head) == 0 {
		return RecoveredFile{}, false
	}

	// Structural break detection can trim the head tighter than the
	// validator's corruption offset: a zero run or bad CRC inside the
	// probe window marks the last byte worth keeping.
	if bp, ok := detectBreakPoint(format, head, e.cfg.PngBreakZeroThreshold); ok && bp.Offset > 0 && bp.Offset < uint64(len(head)) {
		breakOffset = header + bp.Offset
		head = head[:bp.Offset]
	}

	minFrag := e.cfg.MinFragmentSize
	if minFrag == 0 {
		minFrag = reassemblyCluster
	}
	if uint64(len(head)) < minFrag {
		return RecoveredFile{}, false
	}

	candidates := e.continuationCandidates(format, breakOffset)
	if len(candidates) == 0 {
		return RecoveredFile{}, false
	}

	var best RecoveredFile
	var bestScore float32
	found := false

	for _, start := range candidates {
		footer, ok := e.idx.FindClosestFooter(format, start, e.cfg.MaxGap)
		if !ok {
			continue
		}
		end := footer + footerLen(format)
		if end-header > maxSize || end <= start {
			continue
		}
		piece := e.readRange(start, end)
		if len(piece) == 0 || !tailProbe(format, piece) {
			continue
		}

		combined := make([]byte, 0, len(head)+len(piece))
		combined = append(combined, head...)
		combined = append(combined, piece...)

		v := validate(format, combined)
		if v.state != vValid && v.state != vTruncated {
			continue
		}
		if v.vetoed && (e.cfg.FilterGraphics || e.cfg.FilterThumbnails) {
			continue
		}

		score := confidenceFor(format, v.state, combined, len(head))
		if score > bestScore {
			bestScore = score
			found = true
			best = RecoveredFile{
				Ranges:     []Range{{Start: header, End: breakOffset}, {Start: start, End: end}},
				Method:     Reassembled,
				Depth:      2,
				Format:     format,
				Confidence: score,
			}
		}
	}

	if !found || bestScore < e.cfg.MinConfidence {
		return RecoveredFile{}, false
	}
	return best, true
}

// continuationCandidates sweeps cluster-aligned offsets after cursor, up
// to MaxGap away, reading a window at each and keeping the offsets whose
// content matches the format's continuation signature, at most
// MaxContinuationCandidates of them.
func (e *Engine) continuationCandidates(format signature.Format, cursor uint64) []uint64 {
	limit := e.cfg.MaxContinuationCandidates
	if limit <= 0 {
		limit = 16
	}
	maxGap := e.cfg.MaxGap
	size := e.src.Size()

	var out []uint64
	window := make([]byte, continuationWindowSize)
	for off := alignUp(cursor, reassemblyCluster); off < size && off-cursor <= maxGap; off += reassemblyCluster {
		end := off + continuationWindowSize
		if end > size {
			end = size
		}
		n, err := e.src.ReadChunk(off, window[:end-off])
		if err != nil || n == 0 {
			continue
		}
		if !isContinuation(format, window[:n], e.cfg.MinEntropy) {
			continue
		}
		out = append(out, off)
		if len(out) >= limit {
			break
		}
	}
	return out
}
