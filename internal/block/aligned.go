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
package block

import "unsafe"

// DefaultAlignment is the alignment used for direct-I/O reads and for
// the chunk buffers cycled through the scanning pipeline.
const DefaultAlignment = 4096

// NewAlignedBuffer allocates a byte slice of the given size whose backing
// array starts at an address that is a multiple of align. size must be
// non-zero and align must be a power of two: callers violating either is
// a programming error, not a runtime condition to recover from.
func NewAlignedBuffer(size, align int) []byte {
	if size <= 0 {
		panic("block: aligned buffer size must be positive")
	}
	if align <= 0 || align&(align-1) != 0 {
		panic("block: alignment must be a power of two")
	}

	buf := make([]byte, size+align)
	addr := uintptr(unsafe.Pointer(&buf[0]))

	offset := 0
	if mod := addr % uintptr(align); mod != 0 {
		offset = align - int(mod)
	}
	return buf[offset : offset+size : offset+size]
}
