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

// bifragment.go implements the two-fragment carving strategy: a file
// whose structural validation broke partway through is stitched to a
// candidate continuation found elsewhere on the medium, cluster-aligned,
// and re-validated as a single logical stream.
package carve

import "github.com/scafiti/argos/internal/signature"

// tryBifragment probes cluster-aligned continuation points after
// breakOffset, stitches each candidate tail onto the head fragment
// [header, breakOffset), and keeps the highest-scoring stitch that clears
// MinConfidence.
func (e *Engine) tryBifragment(format signature.Format, header, breakOffset uint64) (RecoveredFile, bool) {
	if breakOffset <= header {
		return RecoveredFile{}, false
	}
	headBuf := e.readRange(header, breakOffset)
	if len(headBuf) == 0 {
		return RecoveredFile{}, false
	}

	maxSize := e.cfg.maxFileSize(format)
	clusters := e.cfg.ClusterSizes
	if len(clusters) == 0 {
		clusters = []uint64{4096}
	}
	k := e.cfg.FragmentationPointsPerCluster
	if k <= 0 {
		k = 1
	}

	var best RecoveredFile
	var bestScore float32
	found := false

	// A stitch whose head fragment is already below the minimum file size
	// can never carry a recoverable file on its own.
	if uint64(len(headBuf)) < e.cfg.MinFileSize {
		return RecoveredFile{}, false
	}

	for _, cluster := range clusters {
		base := alignUp(breakOffset, cluster)
		for i := 0; i < k; i++ {
			tailStart := base + uint64(i)*cluster
			if tailStart <= breakOffset || tailStart-header > maxSize {
				continue
			}

			footer, ok := e.idx.FindClosestFooter(format, tailStart, e.cfg.MaxGap)
			if !ok {
				continue
			}
			tailEnd := footer + footerLen(format)
			if tailEnd-header > maxSize || tailEnd <= tailStart {
				continue
			}
			if tailEnd-tailStart < e.cfg.MinFileSize {
				continue
			}

			tailBuf := e.readRange(tailStart, tailEnd)
			if len(tailBuf) == 0 {
				continue
			}

			score, ok := e.scoreStitch(format, headBuf, tailBuf)
			if !ok {
				continue
			}
			if score > bestScore {
				bestScore = score
				found = true
				best = RecoveredFile{
					Ranges: []Range{
						{Start: header, End: breakOffset},
						{Start: tailStart, End: tailEnd},
					},
					Method:     Bifragment,
					Format:     format,
					Confidence: score,
				}
			}
		}
	}

	if !found || bestScore < e.cfg.MinConfidence {
		return RecoveredFile{}, false
	}
	return best, true
}

// scoreStitch validates the concatenation of head and tail as one logical
// file and scores it with confidenceFor: a clean parse scores 1.0, a
// truncated one 0.75, both blended 50/50 with JPEG DC-coefficient
// continuity across the seam when a sample could be decoded; anything
// that re-corrupts immediately is rejected outright.
func (e *Engine) scoreStitch(format signature.Format, head, tail []byte) (float32, bool) {
	combined := make([]byte, 0, len(head)+len(tail))
	combined = append(combined, head...)
	combined = append(combined, tail...)

	v := validate(format, combined)
	if v.state != vValid && v.state != vTruncated {
		return 0, false
	}
	if v.vetoed && (e.cfg.FilterGraphics || e.cfg.FilterThumbnails) {
		return 0, false
	}
	return confidenceFor(format, v.state, combined, len(head)), true
}

func alignUp(offset, cluster uint64) uint64 {
	if cluster == 0 {
		return offset
	}
	if r := offset % cluster; r != 0 {
		return offset + (cluster - r)
	}
	return offset
}
