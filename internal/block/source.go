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

// Package block provides the lowest layer of the recovery engine: reading
// raw bytes from a disk image or block device without ever interpreting
// filesystem metadata. Three strategies are available (memory-mapped,
// direct I/O, buffered) and Open picks the best one a given path supports.
package block

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/scafiti/argos/internal/fs"
	"github.com/scafiti/argos/internal/mmap"
)

// ErrShortRead names a read that returned fewer bytes than requested. No
// Source in this package returns it: ReadChunk reports a short read
// through its byte count alone.
var ErrShortRead = errors.New("block: short read")

// Source is the read-only handle to a disk image or block device. All
// three implementations are safe for concurrent ReadChunk calls from
// multiple goroutines, since the pipeline's worker pool reads concurrently
// across the address space.
type Source interface {
	// ReadChunk reads len(buf) bytes starting at offset, returning the
	// number of bytes actually read. A short read at the very end of the
	// source is not an error; ReadChunk only returns an error when the
	// underlying medium faults.
	ReadChunk(offset uint64, buf []byte) (int, error)

	// Size reports the total addressable length of the source in bytes.
	Size() uint64

	// Prefetch is an optional hint that the range [offset, offset+length)
	// will be read soon. Implementations that cannot prefetch treat this
	// as a no-op.
	Prefetch(offset, length uint64)

	// Close releases the underlying file handle and any mapped memory.
	Close() error
}

// Open picks the most efficient Source available for path, falling back
// deterministically: memory-mapping first (fastest for repeated
// sequential+overlap reads of a regular file), then direct I/O on Linux
// block devices (bypasses the page cache, appropriate for a device much
// larger than RAM), then a plain buffered ReadAt wrapper that works
// everywhere, including Windows raw volumes via internal/fs.
func Open(path string) (Source, error) {
	if src, err := openMmap(path); err == nil {
		return src, nil
	}

	if runtime.GOOS == "linux" {
		if src, err := openDirect(path); err == nil {
			return src, nil
		}
	}

	return openBuffered(path)
}

func openMmap(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeDevice != 0 {
		// Block/character devices report a size of 0 from os.Stat and
		// mmap.NewMmapFile relies on that size; fall through to direct
		// or buffered I/O instead.
		return nil, fmt.Errorf("block: %q is a device, not mmap-able", path)
	}

	m, err := mmap.NewMmapFile(path)
	if err != nil {
		return nil, err
	}
	return &mmapSource{m: m}, nil
}

func openBuffered(path string) (Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	size, err := sourceSize(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &bufferedSource{f: f, size: size}, nil
}

func sourceSize(f fs.File, path string) (uint64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("block: stat %q: %w", path, err)
	}
	if fi.Size() > 0 {
		return uint64(fi.Size()), nil
	}
	return deviceSize(path)
}

type mmapSource struct {
	m *mmap.MmapFile
}

func (s *mmapSource) ReadChunk(offset uint64, buf []byte) (int, error) {
	if offset >= uint64(s.m.FileSize) {
		return 0, nil
	}
	end := offset + uint64(len(buf))
	if end > uint64(s.m.FileSize) {
		end = uint64(s.m.FileSize)
	}
	n := copy(buf, s.m.Data[offset:end])
	return n, nil
}

func (s *mmapSource) Size() uint64 { return uint64(s.m.FileSize) }

func (s *mmapSource) Prefetch(offset, length uint64) {
	if offset > uint64(s.m.FileSize) {
		return
	}
	s.m.Advise(int(offset), int(length))
}

func (s *mmapSource) Close() error { return s.m.Close() }

type bufferedSource struct {
	f    fs.File
	size uint64
}

func (s *bufferedSource) ReadChunk(offset uint64, buf []byte) (int, error) {
	n, err := s.f.ReadAt(buf, int64(offset))
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (s *bufferedSource) Size() uint64 { return s.size }

func (s *bufferedSource) Prefetch(offset, length uint64) {}

func (s *bufferedSource) Close() error { return s.f.Close() }
