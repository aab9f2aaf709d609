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

import (
	"github.com/scafiti/argos/internal/jpegfmt"
	"github.com/scafiti/argos/internal/pngfmt"
	"github.com/scafiti/argos/internal/signature"
)

// vstate normalizes the two format packages' four/five-state validation
// results down to the three outcomes the carving strategies branch on.
type vstate int

const (
	vInvalid vstate = iota
	vTruncated
	vCorrupted
	vValid
)

// validation is a format-agnostic summary of one structural validation
// pass, enough for the carving engine to decide without importing
// jpegfmt/pngfmt types directly into engine.go.
type validation struct {
	state    vstate
	validEnd uint64 // offset, relative to the start of the validated buffer
	width    int
	height   int
	vetoed   bool
	vetoRsn  string
}

// validate runs the structural validator for format over data, which must
// start at that format's header.
func validate(format signature.Format, data []byte) validation {
	if format == signature.JPEG {
		return validateJPEG(data)
	}
	return validatePNG(data)
}

func validateJPEG(data []byte) validation {
	res := jpegfmt.Validate(data)
	switch res.State {
	case jpegfmt.StateValid:
		vr := jpegfmt.Veto(res.Structure, scanDataEntropy(data, res), true)
		return validation{
			state:    vValid,
			validEnd: res.ValidEndOffset,
			width:    res.Structure.Width,
			height:   res.Structure.Height,
			vetoed:   vr.Skip,
			vetoRsn:  vr.Reason,
		}
	case jpegfmt.StateTruncated:
		return validation{state: vTruncated, validEnd: res.LastValidOffset}
	case jpegfmt.StateCorruptedAt:
		return validation{state: vCorrupted, validEnd: res.CorruptOffset}
	default:
		return validation{state: vInvalid}
	}
}

func validatePNG(data []byte) validation {
	res := pngfmt.Validate(data)
	switch res.State {
	case pngfmt.StateValid, pngfmt.StateRecoverableCrcErrors:
		vr := pngfmt.Veto(res.Structure)
		return validation{
			state:    vValid,
			validEnd: res.ValidEndOffset,
			width:    res.Structure.Width,
			height:   res.Structure.Height,
			vetoed:   vr.Skip,
			vetoRsn:  vr.Reason,
		}
	case pngfmt.StateTruncated:
		return validation{state: vTruncated, validEnd: res.LastValidOffset}
	case pngfmt.StateCorruptedAt:
		return validation{state: vCorrupted, validEnd: res.CorruptOffset}
	default:
		return validation{state: vInvalid}
	}
}

// validationScore is the structural half of the confidence formula:
// 1.0 for a clean parse, 0.75 for a truncated-but-consistent one, 0.0
// for anything a stitch shouldn't be built on.
func validationScore(state vstate) float32 {
	switch state {
	case vValid:
		return 1.0
	case vTruncated:
		return 0.75
	default:
		return 0.0
	}
}

// confidenceFor blends validationScore with JPEG DC-continuity evidence
// when available, per the resolved formula: confidence = validationScore
// alone when no DC sample could be extracted (PNG, or a JPEG stitch too
// short to decode), else 0.5*validationScore + 0.5*dcContinuityScore.
func confidenceFor(format signature.Format, state vstate, combined []byte, headLen int) float32 {
	vs := validationScore(state)
	if vs == 0 {
		return 0
	}
	if format != signature.JPEG {
		return vs
	}
	cont, ok := dcContinuityAcrossSeam(combined, headLen)
	if !ok {
		return vs
	}
	return 0.5*vs + 0.5*cont
}

// scanDataEntropy measures the Shannon entropy of a validated JPEG's
// entropy-coded scan data (up to 64 KiB of it), feeding the
// low-entropy-scan veto. Returns 0 when no SOS was seen.
func scanDataEntropy(data []byte, res jpegfmt.ValidationResult) float64 {
	sos := res.Structure.SOSOffset
	if sos < 0 {
		return 0
	}
	start := uint64(sos)
	end := res.ValidEndOffset
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	if start >= end {
		return 0
	}
	sample := data[start:end]
	if len(sample) > 64<<10 {
		sample = sample[:64<<10]
	}
	return sampleEntropy(sample)
}

func footerLen(format signature.Format) uint64 {
	if format == signature.JPEG {
		return 2
	}
	return 8
}
