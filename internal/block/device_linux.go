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
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BLKGETSIZE64 and BLKSSZGET ioctl request numbers.
const (
	blkGetSize64 = 0x80081272
	blkSSZGet    = 0x1268
)

func deviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("block: open %q: %w", path, err)
	}
	defer f.Close()

	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkGetSize64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, fmt.Errorf("block: BLKGETSIZE64 %q: %w", path, errno)
	}
	return size, nil
}

// deviceSectorSize queries the logical sector size of a Linux block
// device, for use by the direct-I/O source's alignment requirement.
func deviceSectorSize(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("block: open %q: %w", path, err)
	}
	defer f.Close()

	var sz int
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkSSZGet, uintptr(unsafe.Pointer(&sz)))
	if errno != 0 {
		return 0, fmt.Errorf("block: BLKSSZGET %q: %w", path, errno)
	}
	return sz, nil
}
