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

// Package pngfmt walks PNG chunk structure to validate a candidate
// recovery. The chunk walk and CRC handling are generalized from "stop at
// the first structural error" into the five-state result a carving engine
// needs to decide between extracting as-is, extracting despite CRC
// errors, or attempting fragment recovery.
package pngfmt

import (
	"encoding/binary"
)

const signature = "\x89PNG\r\n\x1a\n"

// chunkStage tracks chunk ordering through a small before-IHDR /
// after-IHDR / seen-IEND state machine.
type chunkStage int

const (
	stageStart chunkStage = iota
	stageSeenIHDR
	stageSeenPLTE
	stageSeenIDAT
	stageSeenIEND
)

// Chunk records one parsed PNG chunk.
type Chunk struct {
	Offset   uint64
	Type     string
	Length   uint32
	CRCValid bool
}

// Structure is the parsed shape of a PNG file.
type Structure struct {
	Width, Height int
	BitDepth      int
	ColorType     int
	Chunks        []Chunk
	HasIDAT       bool
	HasPHYS       bool
	PhysPPUX      uint32
	PhysPPUY      uint32
	PhysUnitMeter bool
	DistinctTypes int
}

// CorruptionReason enumerates why CorruptedAt was returned.
type CorruptionReason int

const (
	ReasonMissingIHDR CorruptionReason = iota
	ReasonInvalidIHDR
	ReasonInvalidChunkLength
	ReasonUnexpectedEOF
	ReasonInvalidChunkOrder
)

// ValidationState discriminates the ValidationResult union.
type ValidationState int

const (
	StateValid ValidationState = iota
	StateRecoverableCrcErrors
	StateTruncated
	StateCorruptedAt
	StateInvalidHeader
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	State ValidationState

	Structure       Structure
	CrcErrorOffsets []uint64
	LastValidOffset uint64
	CorruptOffset   uint64
	Reason          CorruptionReason

	// ValidEndOffset is the offset just past the IEND chunk's CRC,
	// meaningful when State is StateValid or StateRecoverableCrcErrors.
	ValidEndOffset uint64
}

// Validate walks data, which must start at the 8-byte PNG signature.
func Validate(data []byte) ValidationResult {
	if len(data) < 8 || string(data[0:8]) != signature {
		return ValidationResult{State: StateInvalidHeader}
	}

	st := Structure{}
	seenTypes := map[string]bool{}
	var crcErrors []uint64

	stage := stageStart
	pos := 8

	for stage != stageSeenIEND {
		if pos+8 > len(data) {
			return truncated(st, crcErrors, uint64(pos), len(data))
		}
		length := binary.BigEndian.Uint32(data[pos : pos+4])
		typ := string(data[pos+4 : pos+8])
		chunkOffset := uint64(pos)

		if length > 0x7fffffff {
			return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonInvalidChunkLength}
		}

		dataStart := pos + 8
		dataEnd := dataStart + int(length)
		if dataEnd+4 > len(data) {
			return truncated(st, crcErrors, chunkOffset, len(data))
		}

		payload := data[dataStart:dataEnd]
		crcOK := verifyCRC(data[pos+4:dataEnd], data[dataEnd:dataEnd+4])

		seenTypes[typ] = true

		if stage == stageStart && typ != "IHDR" {
			return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonMissingIHDR}
		}

		switch typ {
		case "IHDR":
			if stage != stageStart {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonInvalidChunkOrder}
			}
			if len(payload) != 13 {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonInvalidIHDR}
			}
			st.Width = int(binary.BigEndian.Uint32(payload[0:4]))
			st.Height = int(binary.BigEndian.Uint32(payload[4:8]))
			st.BitDepth = int(payload[8])
			st.ColorType = int(payload[9])
			compression := payload[10]
			filter := payload[11]
			interlace := payload[12]
			if st.Width <= 0 || st.Height <= 0 ||
				compression != 0 || filter != 0 || interlace > 1 ||
				!validColorDepth(st.ColorType, st.BitDepth) {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonInvalidIHDR}
			}
			stage = stageSeenIHDR
		case "PLTE":
			if stage != stageSeenIHDR {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonInvalidChunkOrder}
			}
			stage = stageSeenPLTE
		case "IDAT":
			if stage < stageSeenIHDR {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonInvalidChunkOrder}
			}
			stage = stageSeenIDAT
			st.HasIDAT = true
		case "IEND":
			if stage != stageSeenIDAT {
				return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: chunkOffset, Reason: ReasonInvalidChunkOrder}
			}
			stage = stageSeenIEND
		case "pHYs":
			if len(payload) == 9 {
				st.HasPHYS = true
				st.PhysPPUX = binary.BigEndian.Uint32(payload[0:4])
				st.PhysPPUY = binary.BigEndian.Uint32(payload[4:8])
				st.PhysUnitMeter = payload[8] == 1
			}
		}

		st.Chunks = append(st.Chunks, Chunk{Offset: chunkOffset, Type: typ, Length: length, CRCValid: crcOK})
		if !crcOK {
			crcErrors = append(crcErrors, chunkOffset)
		}

		pos = dataEnd + 4
	}

	st.DistinctTypes = len(seenTypes)

	if len(crcErrors) > 0 {
		if !st.HasIDAT || !seenTypes["IHDR"] || !seenTypes["IEND"] {
			return ValidationResult{State: StateCorruptedAt, Structure: st, CorruptOffset: crcErrors[0], Reason: ReasonInvalidChunkOrder}
		}
		return ValidationResult{State: StateRecoverableCrcErrors, Structure: st, CrcErrorOffsets: crcErrors, ValidEndOffset: uint64(pos)}
	}
	return ValidationResult{State: StateValid, Structure: st, ValidEndOffset: uint64(pos)}
}

func truncated(st Structure, crcErrors []uint64, offset uint64, dataLen int) ValidationResult {
	return ValidationResult{State: StateTruncated, Structure: st, CrcErrorOffsets: crcErrors, LastValidOffset: offset}
}

func verifyCRC(typeAndData []byte, crcBytes []byte) bool {
	want := binary.BigEndian.Uint32(crcBytes)
	return CRC32(typeAndData) == want
}

// validColorDepth is the PNG-spec table of legal (color type, bit depth)
// combinations.
func validColorDepth(colorType, bitDepth int) bool {
	switch colorType {
	case 0:
		return bitDepth == 1 || bitDepth == 2 || bitDepth == 4 || bitDepth == 8 || bitDepth == 16
	case 2, 4, 6:
		return bitDepth == 8 || bitDepth == 16
	case 3:
		return bitDepth == 1 || bitDepth == 2 || bitDepth == 4 || bitDepth == 8
	}
	return false
}

// ChunkBreak is a structural break found while walking a PNG head
// fragment's chunk stream: a chunk whose CRC fails, or a long zero run
// inside a chunk payload where the filesystem handed us an unwritten
// cluster.
type ChunkBreak struct {
	Offset uint64
	// Definite is true for a CRC mismatch; false for a zero run, which a
	// legitimately dark or flat image region could still produce.
	Definite bool
}

// DetectChunkBreak walks data (which must start at the PNG signature)
// looking for the first structural break: a run of at least
// zeroRunThreshold consecutive zero bytes inside a chunk payload, or any
// chunk whose CRC does not verify. Returns false when the stream walks
// clean to IEND or end of input.
func DetectChunkBreak(data []byte, zeroRunThreshold int) (ChunkBreak, bool) {
	if len(data) < 8 || string(data[0:8]) != signature {
		return ChunkBreak{}, false
	}

	pos := 8
	for pos+8 <= len(data) {
		length := binary.BigEndian.Uint32(data[pos : pos+4])
		typ := string(data[pos+4 : pos+8])
		if length > 0x7fffffff {
			return ChunkBreak{Offset: uint64(pos), Definite: true}, true
		}

		dataStart := pos + 8
		dataEnd := dataStart + int(length)
		if dataEnd+4 > len(data) {
			// Chunk extends past the fragment; scan what we have of the
			// payload for a zero run and otherwise report no break.
			if end := len(data); end > dataStart {
				if off, found := findZeroRun(data[dataStart:end], zeroRunThreshold); found {
					return ChunkBreak{Offset: uint64(dataStart) + off}, true
				}
			}
			return ChunkBreak{}, false
		}

		if off, found := findZeroRun(data[dataStart:dataEnd], zeroRunThreshold); found {
			return ChunkBreak{Offset: uint64(dataStart) + off}, true
		}
		if !verifyCRC(data[pos+4:dataEnd], data[dataEnd:dataEnd+4]) {
			return ChunkBreak{Offset: uint64(pos), Definite: true}, true
		}
		if typ == "IEND" {
			return ChunkBreak{}, false
		}
		pos = dataEnd + 4
	}
	return ChunkBreak{}, false
}

func findZeroRun(payload []byte, threshold int) (uint64, bool) {
	if threshold <= 0 {
		return 0, false
	}
	run := 0
	for i, b := range payload {
		if b != 0 {
			run = 0
			continue
		}
		run++
		if run >= threshold {
			return uint64(i - run + 1), true
		}
	}
	return 0, false
}
