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

// Package pipeline drives the producer/worker/aggregator scan of a
// block.Source: offsets are split into overlapping chunks, read
// concurrently by a worker pool, and handed to an aggregator that keeps
// results in offset order for the signature scanner. A dedicated
// bad-sector path isolates reads that never return instead of stalling
// the whole scan.
package pipeline

import "github.com/scafiti/argos/internal/block"

// DataChunk is a buffer recycled through the pipeline's recycle channel
// instead of being garbage collected on every read. A single-goroutine
// reader could recycle one buffer directly; here the same idea is
// generalized to a pool shared across worker
// goroutines.
type DataChunk struct {
	Offset uint64 // absolute offset of Data[0] within the source
	Data   []byte // data[:N], N <= cap(Data)
	N      int    // valid bytes actually read into Data

	// ZeroFilled marks a chunk that stands in for an unreadable bad
	// sector: Data is zero-filled rather than containing real content.
	ZeroFilled bool
}

// Bytes returns the valid portion of the chunk.
func (c *DataChunk) Bytes() []byte { return c.Data[:c.N] }

func newChunk(size int) *DataChunk {
	return &DataChunk{Data: block.NewAlignedBuffer(size, block.DefaultAlignment)}
}

func (c *DataChunk) reset() {
	c.Offset = 0
	c.N = 0
	c.ZeroFilled = false
}
