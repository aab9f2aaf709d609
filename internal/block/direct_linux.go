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

//go:build linux

package block

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// directSource reads a Linux block device with O_DIRECT, bypassing the
// page cache. Appropriate when the device is much larger than available
// RAM and the scan would otherwise evict the kernel's cache uselessly,
// since every offset is visited at most once or twice (main pass plus
// reassembly probes).
type directSource struct {
	f          *os.File
	size       uint64
	sectorSize int

	mu sync.Mutex
}

func openDirect(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return nil, fmt.Errorf("block: %q is not a block device", path)
	}

	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_DIRECT, 0)
	if err != nil {
		return nil, fmt.Errorf("block: O_DIRECT open %q: %w", path, err)
	}

	size, err := deviceSize(path)
	if err != nil {
		f.Close()
		return nil, err
	}

	sectorSize, err := deviceSectorSize(path)
	if err != nil || sectorSize <= 0 {
		sectorSize = DefaultAlignment
	}

	return &directSource{f: f, size: size, sectorSize: sectorSize}, nil
}

func (s *directSource) ReadChunk(offset uint64, buf []byte) (int, error) {
	align := uint64(s.sectorSize)

	alignedOffset := offset &^ (align - 1)
	skip := int(offset - alignedOffset)
	need := skip + len(buf)
	alignedLen := (need + int(align) - 1) &^ (int(align) - 1)

	aligned := NewAlignedBuffer(alignedLen, s.sectorSize)

	s.mu.Lock()
	n, err := s.f.ReadAt(aligned, int64(alignedOffset))
	s.mu.Unlock()
	if err != nil && n == 0 {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("block: direct read at %d: %w", offset, err)
	}

	if skip >= n {
		return 0, nil
	}
	return copy(buf, aligned[skip:n]), nil
}

func (s *directSource) Size() uint64 { return s.size }

func (s *directSource) Prefetch(offset, length uint64) {
	unix.Fadvise(int(s.f.Fd()), int64(offset), int64(length), unix.FADV_WILLNEED)
}

func (s *directSource) Close() error { return s.f.Close() }
