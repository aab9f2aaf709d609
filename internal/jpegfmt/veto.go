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
package jpegfmt

// DimensionVerdict classifies a JPEG's declared dimensions, independent of
// pixel content, used by both the thumbnail and icon vetoes.
type DimensionVerdict int

const (
	DimensionPhoto DimensionVerdict = iota
	DimensionIcon
	DimensionExtremeAspect
	DimensionTiny
)

// ClassifyDimensions mirrors the gate applied before statistical
// classification ever runs: anything icon-sized, absurdly elongated, or
// under 0.2 megapixels is never worth decoding further.
func ClassifyDimensions(width, height int) DimensionVerdict {
	if width <= 0 || height <= 0 {
		return DimensionTiny
	}
	if width <= 200 && height <= 200 {
		return DimensionIcon
	}
	aspect := float64(width) / float64(height)
	if aspect > 4 || aspect < 0.25 {
		return DimensionExtremeAspect
	}
	megapixels := float64(width*height) / 1_000_000.0
	if megapixels < 0.2 {
		return DimensionTiny
	}
	return DimensionPhoto
}

// VetoResult is non-empty when the structure should be skipped before
// statistical classification is attempted at all.
type VetoResult struct {
	Skip   bool
	Reason string
}

// Veto applies the four structural skip rules from the candidate
// selection stage, ahead of ImageClassifier. entropy is the Shannon
// entropy of the scan's entropy-coded data, computed by the caller over
// the carved byte range (0 when unknown/not computed).
func Veto(st Structure, entropy float64, entropyKnown bool) VetoResult {
	verdict := ClassifyDimensions(st.Width, st.Height)
	if verdict != DimensionPhoto {
		return VetoResult{Skip: true, Reason: "dimension verdict is not Photo"}
	}

	if st.QuantQuality > 0 && st.QuantQuality < 50 && !st.HasExif && !st.HasICC {
		maxDim := st.Width
		if st.Height > maxDim {
			maxDim = st.Height
		}
		if maxDim <= 1280 {
			return VetoResult{Skip: true, Reason: "low quantization quality with no embedded metadata"}
		}
	}

	if len(st.Markers) < 6 && !st.HasExif {
		return VetoResult{Skip: true, Reason: "too few markers and no Exif"}
	}

	if st.SOSOffset >= 0 && entropyKnown && entropy > 0 && entropy < 7.0 {
		return VetoResult{Skip: true, Reason: "scan data entropy too low for a real photograph"}
	}

	return VetoResult{}
}
