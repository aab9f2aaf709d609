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
package pngfmt

// DimensionVerdict classifies a PNG's declared dimensions.
type DimensionVerdict int

const (
	DimensionPhoto DimensionVerdict = iota
	DimensionIcon
	DimensionExtremeAspect
	DimensionTiny
)

// ClassifyDimensions mirrors internal/jpegfmt.ClassifyDimensions so both
// formats apply the same Photo/Icon/ExtremeAspect/Tiny gate.
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
// statistical classification runs.
type VetoResult struct {
	Skip   bool
	Reason string
}

// screenPPMLow and screenPPMHigh bound the inclusive pixels-per-metre range of a typical
// screen-resolution pHYs chunk (roughly 63-81 DPI), a strong signal that
// the source was a screenshot rather than a photograph.
const (
	screenPPMLow  = 2500
	screenPPMHigh = 3200
)

// Veto applies the four PNG skip rules ahead of ImageClassifier.
func Veto(st Structure) VetoResult {
	if !st.HasIDAT {
		return VetoResult{Skip: true, Reason: "no IDAT chunk"}
	}

	if ClassifyDimensions(st.Width, st.Height) != DimensionPhoto {
		return VetoResult{Skip: true, Reason: "dimension verdict is not Photo"}
	}

	if st.HasPHYS && st.PhysUnitMeter &&
		st.PhysPPUX >= screenPPMLow && st.PhysPPUX <= screenPPMHigh &&
		st.PhysPPUY >= screenPPMLow && st.PhysPPUY <= screenPPMHigh {
		return VetoResult{Skip: true, Reason: "pHYs declares screen-resolution DPI"}
	}

	if st.DistinctTypes < 3 && st.Width <= 512 && st.Height <= 512 {
		return VetoResult{Skip: true, Reason: "too few distinct chunk types for a small image"}
	}

	return VetoResult{}
}
