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

import "github.com/scafiti/argos/internal/jpegfmt"

// dcContinuityAcrossSeam decodes DC coefficient sequences on both sides
// of the head/tail boundary and scores their continuity. The head's
// sequence comes from decoding the head fragment alone; the tail's from
// whatever the decode of the stitched stream produced beyond that (both
// decodes share the head's Huffman tables, since ExtractDCSequence
// always loads DHT from the start of its input). The two are compared
// with DCContinuityScore: last eight head values against first eight
// tail values, average absolute difference mapped onto [0,1]. The second
// return value is false when no sample straddling the seam could be
// extracted, telling the caller to fall back to validationScore alone
// rather than blend in a meaningless zero.
func dcContinuityAcrossSeam(combined []byte, headLen int) (float32, bool) {
	if headLen <= 0 || headLen >= len(combined) {
		return 0, false
	}

	headDC, _ := jpegfmt.ExtractDCSequence(combined[:headLen])
	if len(headDC) == 0 {
		return 0, false
	}
	combinedDC, ok := jpegfmt.ExtractDCSequence(combined)
	if !ok || len(combinedDC) <= len(headDC) {
		return 0, false
	}
	tailDC := combinedDC[len(headDC):]

	return jpegfmt.DCContinuityScore(headDC, tailDC), true
}
