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

// Package jpegfmt walks JPEG marker structure to validate a candidate
// recovery and, where useful, to feed the bifragment DC-continuity
// scorer. The marker walk handles byte-stuffing, fill bytes, and restart
// markers, generalized from "find the EOI offset or fail" to
// recording the full marker table and returning one of four structural
// validation states instead of a boolean.
package jpegfmt

import "fmt"

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerSOF0 = 0xc0
	markerSOF1 = 0xc1
	markerSOF2 = 0xc2
	markerDHT  = 0xc4
	markerDQT  = 0xdb
	markerDRI  = 0xdd
	markerCOM  = 0xfe
	markerRST0 = 0xd0
	markerRST7 = 0xd7
	markerAPP0 = 0xe0
	markerAPP1 = 0xe1
	markerAPP2 = 0xe2
	markerAPP15 = 0xef
)

// Marker records one parsed segment of the marker walk.
type Marker struct {
	Code   byte
	Offset uint64
	Length int // payload length, excluding the 2-byte length field itself
}

// Structure is the parsed shape of a JPEG file, populated regardless of
// whether validation ultimately succeeds.
type Structure struct {
	Width, Height   int
	ComponentCount  int
	RestartInterval int
	HasExif         bool
	HasICC          bool
	HasThumbnail    bool
	Markers         []Marker
	SOSOffset       int64 // -1 if no SOS marker was seen
	QuantQuality    float64

	// HasValidContent reports whether the walk saw at least one
	// substantive segment (APPn, DQT, DHT, SOF, SOS, DRI or COM), which
	// separates a real JPEG head from a bare SOI that happened to pass the
	// signature match.
	HasValidContent bool
}

// CorruptionReason enumerates why CorruptedAt was returned.
type CorruptionReason int

const (
	ReasonInvalidMarkerSequence CorruptionReason = iota
	ReasonInvalidSegmentLength
	ReasonMissingRequiredMarker
	ReasonRestartSequenceError
	ReasonHuffmanDecodeError
	ReasonDcCoefficientDiscontinuity
	ReasonUnexpectedEOF
)

func (r CorruptionReason) String() string {
	switch r {
	case ReasonInvalidMarkerSequence:
		return "invalid marker sequence"
	case ReasonInvalidSegmentLength:
		return "invalid segment length"
	case ReasonMissingRequiredMarker:
		return "missing required marker"
	case ReasonRestartSequenceError:
		return "restart sequence error"
	case ReasonHuffmanDecodeError:
		return "huffman decode error"
	case ReasonDcCoefficientDiscontinuity:
		return "dc coefficient discontinuity"
	case ReasonUnexpectedEOF:
		return "unexpected eof"
	}
	return "unknown"
}

// ValidationState discriminates the ValidationResult union.
type ValidationState int

const (
	StateValid ValidationState = iota
	StateTruncated
	StateCorruptedAt
	StateInvalidHeader
)

// ValidationResult is the outcome of Validate. Only the fields relevant to
// State are meaningful.
type ValidationResult struct {
	State ValidationState

	Structure       Structure
	LastValidOffset uint64
	CorruptOffset   uint64
	Reason          CorruptionReason
	MissingMarker   string

	// ValidEndOffset is the offset just past the EOI marker, meaningful
	// only when State is StateValid. Carving strategies use it to size
	// a recovered range precisely instead of relying on a footer match.
	ValidEndOffset uint64
}

func (r ValidationResult) String() string {
	switch r.State {
	case StateValid:
		return "valid"
	case StateTruncated:
		return fmt.Sprintf("truncated at %d", r.LastValidOffset)
	case StateCorruptedAt:
		return fmt.Sprintf("corrupted at %d: %s", r.CorruptOffset, r.Reason)
	default:
		return "invalid header"
	}
}

// Validate walks data, which must start at a JPEG header (FF D8 FF), and
// returns the structural validation state.
func Validate(data []byte) ValidationResult {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return ValidationResult{State: StateInvalidHeader}
	}

	st := Structure{SOSOffset: -1}
	pos := 2

	for {
		if pos >= len(data) {
			return truncatedOrCorrupted(st, uint64(pos), data)
		}
		if data[pos] != 0xFF {
			return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: uint64(pos), Reason: ReasonInvalidMarkerSequence}
		}
		pos++

		// fill bytes
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			return truncatedOrCorrupted(st, uint64(pos), data)
		}

		marker := data[pos]
		pos++

		if marker == 0x00 {
			// stuffed FF, shouldn't appear outside entropy data; treat as
			// extraneous and keep scanning rather than failing the walk.
			continue
		}

		if marker >= markerRST0 && marker <= markerRST7 || marker == 0x01 {
			continue
		}

		if marker == markerSOI {
			// A second SOI inside the stream means the carve ran into the
			// next file's header, not more of this one.
			if st.SOSOffset >= 0 {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: uint64(pos - 2), Reason: ReasonInvalidMarkerSequence}
			}
			continue
		}

		if marker == markerEOI {
			st.Markers = append(st.Markers, Marker{Code: marker, Offset: uint64(pos - 2)})
			if res, bad := checkMarkerOrder(st); bad {
				return res
			}
			return ValidationResult{State: StateValid, Structure: st, ValidEndOffset: uint64(pos)}
		}

		if pos+2 > len(data) {
			return truncatedOrCorrupted(st, uint64(pos-2), data)
		}
		length := int(data[pos])<<8 | int(data[pos+1])
		if length < 2 {
			return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: uint64(pos), Reason: ReasonInvalidSegmentLength}
		}
		payloadStart := pos + 2
		payloadLen := length - 2
		if payloadStart+payloadLen > len(data) {
			return truncatedOrCorrupted(st, uint64(pos-2), data)
		}

		segOffset := uint64(pos - 2)
		st.Markers = append(st.Markers, Marker{Code: marker, Offset: segOffset, Length: payloadLen})
		payload := data[payloadStart : payloadStart+payloadLen]

		switch {
		case marker >= markerAPP0 && marker <= markerAPP15,
			marker == markerDQT, marker == markerDHT,
			marker == markerSOF0, marker == markerSOF1, marker == markerSOF2,
			marker == markerSOS, marker == markerDRI, marker == markerCOM:
			st.HasValidContent = true
		}

		switch marker {
		case markerSOF0, markerSOF1, markerSOF2:
			if len(payload) < 6 {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: segOffset, Reason: ReasonInvalidSegmentLength}
			}
			st.Height = int(payload[1])<<8 | int(payload[2])
			st.Width = int(payload[3])<<8 | int(payload[4])
			st.ComponentCount = int(payload[5])
		case markerDRI:
			if len(payload) >= 2 {
				st.RestartInterval = int(payload[0])<<8 | int(payload[1])
			}
		case markerDQT:
			st.QuantQuality = estimateQuantQuality(payload)
		case markerAPP1:
			if hasExifTag(payload) {
				st.HasExif = true
			}
			if hasThumbnailTag(payload) {
				st.HasThumbnail = true
			}
		case markerAPP2:
			if hasICCTag(payload) {
				st.HasICC = true
			}
		case markerSOS:
			st.SOSOffset = int64(segOffset)
			end, ok, rstErr := scanEntropyData(data, payloadStart+payloadLen)
			if rstErr >= 0 {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: uint64(rstErr), Reason: ReasonRestartSequenceError}
			}
			if !ok {
				return truncatedOrCorrupted(st, uint64(end), data)
			}
			pos = end
			continue
		}

		pos = payloadStart + payloadLen
	}
}

// checkMarkerOrder enforces the ordering invariants a decodable JPEG
// must satisfy before the stream is accepted as Valid: quantization
// tables must precede the frame header, and the frame header must
// precede the scan.
func checkMarkerOrder(st Structure) (ValidationResult, bool) {
	seenDQT, seenSOF := false, false
	for _, m := range st.Markers {
		switch m.Code {
		case markerDQT:
			seenDQT = true
		case markerSOF0, markerSOF1, markerSOF2:
			if !seenDQT {
				return ValidationResult{
					State:         StateCorruptedAt,
					Structure:     st,
					CorruptOffset: m.Offset,
					Reason:        ReasonMissingRequiredMarker,
					MissingMarker: "DQT before SOF",
				}, true
			}
			seenSOF = true
		case markerSOS:
			if !seenSOF {
				return ValidationResult{
					State:         StateCorruptedAt,
					Structure:     st,
					CorruptOffset: m.Offset,
					Reason:        ReasonMissingRequiredMarker,
					MissingMarker: "SOF before SOS",
				}, true
			}
		}
	}
	return ValidationResult{}, false
}

// scanEntropyData advances past the compressed scan data following an SOS
// marker, destuffing FF00 and passing through restart markers, stopping
// just before the next real marker (or EOI). Restart markers must cycle
// 0,1,...,7,0,...; the first one out of order is reported via rstErr
// (-1 when the sequence is intact).
func scanEntropyData(data []byte, pos int) (end int, ok bool, rstErr int) {
	expectRST := 0
	for pos < len(data) {
		if data[pos] != 0xFF {
			pos++
			continue
		}
		if pos+1 >= len(data) {
			return pos, false, -1
		}
		next := data[pos+1]
		switch {
		case next == 0x00:
			pos += 2
		case next >= markerRST0 && next <= markerRST7:
			if int(next-markerRST0) != expectRST {
				return pos, false, pos
			}
			expectRST = (expectRST + 1) % 8
			pos += 2
		case next == 0xFF:
			pos++
		default:
			return pos, true, -1
		}
	}
	return pos, false, -1
}

// ScanBreak is a structural break found inside the entropy-coded data of
// a JPEG head fragment: either a long run of zero bytes (the filesystem
// handed us an unwritten cluster mid-file) or a marker that has no
// business appearing inside a scan.
type ScanBreak struct {
	Offset uint64
	// Definite is true for an illegal marker (the stream cannot possibly
	// continue here); false for a zero run, which a pathological but legal
	// stream could still contain.
	Definite bool
}

// DetectScanBreak looks for the first structural break in data's entropy
// stream: a run of at least zeroRunThreshold consecutive 0x00 bytes, or a
// non-stuffed marker other than a restart or EOI. data must start at SOI.
// Returns false when no SOS is present or the stream runs clean to EOI or
// end of input.
func DetectScanBreak(data []byte, zeroRunThreshold int) (ScanBreak, bool) {
	entropyStart := -1
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return ScanBreak{}, false
		}
		marker := data[pos+1]
		if marker == markerEOI {
			return ScanBreak{}, false
		}
		if marker == 0xFF {
			pos++
			continue
		}
		if marker >= markerRST0 && marker <= markerRST7 || marker == 0x01 {
			pos += 2
			continue
		}
		length := int(data[pos+2])<<8 | int(data[pos+3])
		if length < 2 || pos+2+length > len(data) {
			return ScanBreak{}, false
		}
		if marker == markerSOS {
			entropyStart = pos + 2 + length
			break
		}
		pos += 2 + length
	}
	if entropyStart < 0 || entropyStart >= len(data) {
		return ScanBreak{}, false
	}

	zeroRun := 0
	for i := entropyStart; i < len(data); i++ {
		b := data[i]
		if b == 0x00 {
			zeroRun++
			if zeroRun >= zeroRunThreshold {
				return ScanBreak{Offset: uint64(i - zeroRun + 1)}, true
			}
			continue
		}
		zeroRun = 0

		if b != 0xFF || i+1 >= len(data) {
			continue
		}
		next := data[i+1]
		switch {
		case next == 0x00:
			i++
		case next >= markerRST0 && next <= markerRST7:
			i++
		case next == markerEOI:
			return ScanBreak{}, false
		case next == 0xFF:
		default:
			return ScanBreak{Offset: uint64(i), Definite: true}, true
		}
	}
	return ScanBreak{}, false
}

func truncatedOrCorrupted(st Structure, offset uint64, data []byte) ValidationResult {
	if offset >= uint64(len(data)) {
		return ValidationResult{State: StateTruncated, Structure: st, LastValidOffset: offset}
	}
	return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: offset, Reason: ReasonUnexpectedEOF}
}

func hasExifTag(payload []byte) bool {
	return len(payload) >= 6 && string(payload[0:4]) == "Exif"
}

func hasThumbnailTag(payload []byte) bool {
	// A conservative heuristic: an Exif APP1 segment large enough to carry
	// a thumbnail IFD plus a nested embedded JPEG SOI marker.
	if !hasExifTag(payload) || len(payload) < 256 {
		return false
	}
	for i := 0; i+1 < len(payload); i++ {
		if payload[i] == 0xFF && payload[i+1] == 0xD8 {
			return true
		}
	}
	return false
}

func hasICCTag(payload []byte) bool {
	return len(payload) >= 11 && string(payload[0:11]) == "ICC_PROFILE"
}

// estimateQuantQuality derives a rough [0,100] JPEG quality estimate from
// the mean value of the first quantization table's coefficients, the way
// libjpeg's cjpeg -quality estimation works in reverse: smaller mean
// coefficients mean a higher quality encode.
func estimateQuantQuality(payload []byte) float64 {
	if len(payload) < 1 {
		return 0
	}
	precision := payload[0] >> 4
	entrySize := 1
	if precision != 0 {
		entrySize = 2
	}
	tableLen := 64 * entrySize
	if len(payload) < 1+tableLen {
		return 0
	}

	sum := 0
	for i := 0; i < 64; i++ {
		if entrySize == 1 {
			sum += int(payload[1+i])
		} else {
			sum += int(payload[1+2*i])<<8 | int(payload[2+2*i])
		}
	}
	mean := float64(sum) / 64.0
	if mean <= 0 {
		return 100
	}
	quality := 100 - mean/2
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return quality
}
