// Package mmap memory-maps a disk image read-only, backing the fastest
// BlockSource variant: chunk reads become plain copies out of the
// mapping and the scanning pipeline's overlap re-reads cost nothing
// beyond a page-cache hit. Raw devices that report a zero size cannot be
// mapped and fall through to the direct or buffered variants.
package mmap

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// MmapFile is one read-only, shared mapping of a whole file.
type MmapFile struct {
	Data     []byte
	File     *os.File
	FileSize int
}

// NewMmapFile maps all of filePath read-only. Zero-length files cannot
// be mapped and are rejected so the caller can pick another read
// strategy.
func NewMmapFile(filePath string) (*MmapFile, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", filePath, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to get file info for %q: %w", filePath, err)
	}
	fileSize := int(fi.Size())
	if fileSize == 0 {
		f.Close()
		return nil, fmt.Errorf("file %q is empty, cannot mmap", filePath)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, fileSize, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file %q: %w", filePath, err)
	}

	return &MmapFile{
		Data:     data,
		File:     f,
		FileSize: fileSize,
	}, nil
}

// Advise hints the kernel that [offset, offset+length) will be read
// soon. The pipeline's workers issue this a few chunks ahead of the scan cursor;
// failures are ignored since the hint is purely advisory.
func (mr *MmapFile) Advise(offset, length int) {
	if mr.Data == nil || offset < 0 || offset >= len(mr.Data) {
		return
	}
	end := offset + length
	if end > len(mr.Data) {
		end = len(mr.Data)
	}
	if end <= offset {
		return
	}

	// Madvise needs page-aligned addresses; round the start down.
	pageSize := syscall.Getpagesize()
	aligned := offset &^ (pageSize - 1)
	_ = unix.Madvise(mr.Data[aligned:end], unix.MADV_WILLNEED)
}

// Close unmaps the region and closes the underlying file.
func (mr *MmapFile) Close() error {
	var err error
	if mr.Data != nil {
		err = syscall.Munmap(mr.Data)
		if err != nil {
			return fmt.Errorf("failed to munmap: %w", err)
		}
		mr.Data = nil
	}

	if mr.File != nil {
		closeErr := mr.File.Close()
		if closeErr != nil {
			if err != nil {
				return fmt.Errorf("failed to munmap (%w) and close file (%v)", err, closeErr)
			}
			return fmt.Errorf("failed to close file: %w", closeErr)
		}
		mr.File = nil
	}
	return nil
}
