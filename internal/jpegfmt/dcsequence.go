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

// maxDCBlocks bounds how many DC coefficients per component ExtractDCSequence decodes,
// keeping the bifragment scorer's cost proportional to a small sample
// rather than the whole entropy stream.
const maxDCBlocks = 32

// ExtractDCSequence walks data (which must begin at a JPEG SOI) far enough
// to load its DHT tables and locate SOS, then decodes up to maxDCBlocks
// DC coefficients per component from the entropy-coded data that follows. It never
// reconstructs pixel data; it exists only to feed DCContinuityScore.
func ExtractDCSequence(data []byte) ([]int16, bool) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, false
	}

	dec := NewHuffmanDecoder()
	numComponents := 3
	pos := 2

	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil, false
		}
		marker := data[pos+1]
		if marker == markerEOI {
			return nil, false
		}
		if marker >= markerRST0 && marker <= markerRST7 {
			pos += 2
			continue
		}

		length := int(data[pos+2])<<8 | int(data[pos+3])
		if length < 2 || pos+2+length > len(data) {
			return nil, false
		}
		payload := data[pos+4 : pos+2+length]

		switch marker {
		case markerDHT:
			if !dec.ParseDHTSegment(payload) {
				return nil, false
			}
		case markerSOF0, markerSOF1, markerSOF2:
			if len(payload) >= 6 {
				numComponents = int(payload[5])
			}
		case markerSOS:
			entropyStart := pos + 2 + length
			if entropyStart > len(data) {
				return nil, false
			}
			dcValues, _, _ := dec.ValidateAndExtractDC(data[entropyStart:], numComponents, maxDCBlocks)
			return dcValues, len(dcValues) > 0
		}

		pos += 2 + length
	}
	return nil, false
}
