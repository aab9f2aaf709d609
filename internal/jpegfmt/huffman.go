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

// HuffmanTable holds the canonical Huffman code -> (symbol, length)
// mapping built from one DHT table's 16 length counts plus its symbols.
type HuffmanTable struct {
	maxBits uint8
	lookup  map[uint32]huffEntry
}

type huffEntry struct {
	symbol byte
	length uint8
}

// NewHuffmanTableFromDHT parses one DHT table (16 count bytes followed by
// the symbols), following the canonical-code construction in JPEG Annex C.
func NewHuffmanTableFromDHT(data []byte) (*HuffmanTable, bool) {
	if len(data) < 16 {
		return nil, false
	}
	counts := data[0:16]
	total := 0
	for _, c := range counts {
		total += int(c)
	}
	if len(data) < 16+total {
		return nil, false
	}
	symbols := data[16 : 16+total]

	t := &HuffmanTable{lookup: make(map[uint32]huffEntry, total)}
	var code uint32
	symbolIdx := 0
	for bits := 1; bits <= 16; bits++ {
		count := int(counts[bits-1])
		for i := 0; i < count; i++ {
			if symbolIdx >= len(symbols) {
				return nil, false
			}
			t.lookup[code] = huffEntry{symbol: symbols[symbolIdx], length: uint8(bits)}
			symbolIdx++
			code++
			t.maxBits = uint8(bits)
		}
		code <<= 1
	}
	return t, true
}

// decode attempts to match a canonical code of 1..min(maxBits,available)
// bits against the leading bits of the 32-bit window.
func (t *HuffmanTable) decode(bits uint32, available uint8) (symbol byte, length uint8, ok bool) {
	maxCheck := t.maxBits
	if available < maxCheck {
		maxCheck = available
	}
	for length = 1; length <= maxCheck; length++ {
		mask := uint32(1)<<length - 1
		code := (bits >> (32 - length)) & mask
		if e, found := t.lookup[code]; found && e.length == length {
			return e.symbol, length, true
		}
	}
	return 0, 0, false
}

// HuffmanDecoder decodes DC coefficients from entropy-coded scan data for
// use only by the bifragment DC-continuity scorer; it never reconstructs
// pixel data.
type HuffmanDecoder struct {
	dcTables [4]*HuffmanTable
	acTables [4]*HuffmanTable
	dcPred   [4]int16
}

// NewHuffmanDecoder returns a decoder with no tables loaded.
func NewHuffmanDecoder() *HuffmanDecoder { return &HuffmanDecoder{} }

// LoadTable installs a parsed DHT table under (class, id), class 0 = DC,
// class 1 = AC.
func (d *HuffmanDecoder) LoadTable(class, id uint8, data []byte) bool {
	t, ok := NewHuffmanTableFromDHT(data)
	if !ok {
		return false
	}
	idx := id & 0x03
	if class == 0 {
		d.dcTables[idx] = t
	} else {
		d.acTables[idx] = t
	}
	return true
}

// ParseDHTSegment loads every table packed into one DHT segment's payload.
func (d *HuffmanDecoder) ParseDHTSegment(data []byte) bool {
	pos := 0
	for pos < len(data) {
		if pos+17 > len(data) {
			break
		}
		tcTh := data[pos]
		class := (tcTh >> 4) & 0x0F
		id := tcTh & 0x0F

		counts := data[pos+1 : pos+17]
		total := 0
		for _, c := range counts {
			total += int(c)
		}
		if pos+17+total > len(data) {
			return false
		}
		if !d.LoadTable(class, id, data[pos+1:pos+17+total]) {
			return false
		}
		pos += 17 + total
	}
	return true
}

func (d *HuffmanDecoder) resetDCPredictors() { d.dcPred = [4]int16{} }

// ValidateAndExtractDC decodes up to maxBlocks DC coefficients per
// component from entropyData, returning the offset into entropyData where
// decoding failed if a symbol could not be matched against a loaded table.
func (d *HuffmanDecoder) ValidateAndExtractDC(entropyData []byte, numComponents, maxBlocks int) ([]int16, int, bool) {
	dcValues := make([]int16, 0, maxBlocks*numComponents)
	br := newBitReader(entropyData)
	d.resetDCPredictors()

	blocksDecoded := 0
	for blocksDecoded < maxBlocks {
		for comp := 0; comp < numComponents; comp++ {
			idx := comp
			if idx > 3 {
				idx = 3
			}
			table := d.dcTables[idx]
			if table == nil {
				return dcValues, br.bytePosition(), false
			}

			bits, ok := br.peekBits(16)
			if !ok {
				return dcValues, br.bytePosition(), true
			}
			category, length, ok := table.decode(bits, 16)
			if !ok {
				return dcValues, br.bytePosition(), false
			}
			br.consumeBits(length)

			var dcDiff int16
			if category != 0 {
				raw, ok := br.readBits(category)
				if !ok {
					return dcValues, br.bytePosition(), false
				}
				if raw < (1 << (category - 1)) {
					dcDiff = int16(raw) - int16(1<<category-1)
				} else {
					dcDiff = int16(raw)
				}
			}

			dcValue := d.dcPred[idx] + dcDiff
			d.dcPred[idx] = dcValue
			dcValues = append(dcValues, dcValue)
		}
		blocksDecoded++

		if marker, next, ok := br.peekMarker(); ok && marker == 0xFF {
			if next >= 0xD0 && next <= 0xD7 {
				br.consumeMarker()
				d.resetDCPredictors()
			} else if next == 0xD9 {
				break
			}
		}
	}
	return dcValues, br.bytePosition(), true
}

// DCContinuityScore compares the tail of head's DC values to the head of
// tail's DC values, returning a [0,1] score where 1 is perfectly
// continuous.
func DCContinuityScore(head, tail []int16) float32 {
	if len(head) == 0 || len(tail) == 0 {
		return 0
	}
	compareCount := 8
	if len(head) < compareCount {
		compareCount = len(head)
	}
	if len(tail) < compareCount {
		compareCount = len(tail)
	}

	headEnd := head[len(head)-compareCount:]
	tailStart := tail[:compareCount]

	totalDiff := 0
	for i := 0; i < compareCount; i++ {
		diff := int(headEnd[i]) - int(tailStart[i])
		if diff < 0 {
			diff = -diff
		}
		totalDiff += diff
	}
	avgDiff := float32(totalDiff) / float32(compareCount)
	normalized := avgDiff / 100.0
	if normalized > 1.0 {
		normalized = 1.0
	}
	return 1.0 - normalized
}

type bitReader struct {
	data          []byte
	pos           int
	bitBuffer     uint32
	bitsInBuffer  uint8
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) bytePosition() int { return r.pos }

func (r *bitReader) fillBuffer() {
	for r.bitsInBuffer <= 24 && r.pos < len(r.data) {
		b := r.data[r.pos]
		r.pos++

		if b == 0xFF && r.pos < len(r.data) {
			next := r.data[r.pos]
			switch {
			case next == 0x00:
				r.pos++
			case next >= 0xD0 && next <= 0xD7:
				r.pos--
				return
			case next == 0xD9:
				r.pos--
				return
			case next == 0xFF:
				continue
			}
		}

		r.bitBuffer = (r.bitBuffer << 8) | uint32(b)
		r.bitsInBuffer += 8
	}
}

func (r *bitReader) peekBits(count uint8) (uint32, bool) {
	r.fillBuffer()
	if r.bitsInBuffer < count {
		return 0, false
	}
	shift := r.bitsInBuffer - count
	return (r.bitBuffer >> shift) & (1<<count - 1), true
}

func (r *bitReader) consumeBits(count uint8) {
	if count <= r.bitsInBuffer {
		r.bitsInBuffer -= count
		r.bitBuffer &= 1<<r.bitsInBuffer - 1
	}
}

func (r *bitReader) readBits(count uint8) (uint16, bool) {
	bits, ok := r.peekBits(count)
	if !ok {
		return 0, false
	}
	r.consumeBits(count)
	return uint16(bits), true
}

func (r *bitReader) peekMarker() (marker, next byte, ok bool) {
	r.bitsInBuffer = 0
	r.bitBuffer = 0
	if r.pos+1 < len(r.data) && r.data[r.pos] == 0xFF {
		return 0xFF, r.data[r.pos+1], true
	}
	return 0, 0, false
}

func (r *bitReader) consumeMarker() { r.pos += 2 }
