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
package disk

import (
	"encoding/binary"
	"fmt"
)

// MBRPartitionEntry is one decoded 16-byte entry of the MBR partition
// table. CHS addressing is ignored; the carver only needs LBA ranges.
type MBRPartitionEntry struct {
	Bootable      bool
	PartitionType MBRPartition
	StartLBA      uint32
	TotalSectors  uint32
}

// IsEmpty reports whether the entry describes no partition at all.
func (p MBRPartitionEntry) IsEmpty() bool {
	return p.PartitionType == PartitionTypeEmpty || p.TotalSectors == 0
}

func (p MBRPartitionEntry) String() string {
	return fmt.Sprintf("type=0x%02X (%s) lba=%d sectors=%d bootable=%v",
		uint8(p.PartitionType), p.PartitionType.Name(), p.StartLBA, p.TotalSectors, p.Bootable)
}

// MBR is the decoded Master Boot Record. The bootstrap code area is not
// retained; nothing in a signature-based carver consumes it.
type MBR struct {
	DiskSignature    uint32
	PartitionEntries [4]MBRPartitionEntry
}

const (
	mbrSize            = 512
	mbrTableOffset     = 0x1BE
	mbrSignatureOffset = 0x1FE
	mbrSignature       = 0xAA55
)

// ParseMBR decodes the first sector of a disk. It fails when the slice is
// not exactly one 512-byte sector or the 0xAA55 boot signature is absent.
func ParseMBR(data []byte) (*MBR, error) {
	if len(data) != mbrSize {
		return nil, fmt.Errorf("disk: MBR must be %d bytes, got %d", mbrSize, len(data))
	}
	if sig := binary.LittleEndian.Uint16(data[mbrSignatureOffset:]); sig != mbrSignature {
		return nil, fmt.Errorf("disk: invalid MBR signature 0x%04X", sig)
	}

	mbr := &MBR{DiskSignature: binary.LittleEndian.Uint32(data[0x1B8:0x1BC])}
	for i := range mbr.PartitionEntries {
		entry := data[mbrTableOffset+i*16 : mbrTableOffset+(i+1)*16]
		mbr.PartitionEntries[i] = MBRPartitionEntry{
			Bootable:      entry[0x00] == 0x80,
			PartitionType: MBRPartition(entry[0x04]),
			StartLBA:      binary.LittleEndian.Uint32(entry[0x08:0x0C]),
			TotalSectors:  binary.LittleEndian.Uint32(entry[0x0C:0x10]),
		}
	}
	return mbr, nil
}

// MBRPartition is the one-byte partition type ID of an MBR entry.
type MBRPartition uint8

const (
	PartitionTypeEmpty                MBRPartition = 0x00
	PartitionTypeFAT12                MBRPartition = 0x01
	PartitionTypeFAT16LessThan32MB    MBRPartition = 0x04
	PartitionTypeExtendedCHS          MBRPartition = 0x05
	PartitionTypeFAT16GreaterThan32MB MBRPartition = 0x06
	PartitionTypeNTFSExFAT            MBRPartition = 0x07
	PartitionTypeFAT32CHS             MBRPartition = 0x0B
	PartitionTypeFAT32LBA             MBRPartition = 0x0C
	PartitionTypeFAT16LBA             MBRPartition = 0x0E
	PartitionTypeExtendedLBA          MBRPartition = 0x0F
	PartitionTypeLinuxSwap            MBRPartition = 0x82
	PartitionTypeLinuxFilesystem      MBRPartition = 0x83
	PartitionTypeGPT                  MBRPartition = 0xEE
	PartitionTypeEFISystem            MBRPartition = 0xEF
)

// Name maps common partition type IDs to display names.
func (id MBRPartition) Name() string {
	switch id {
	case PartitionTypeEmpty:
		return "Empty"
	case PartitionTypeFAT12:
		return "FAT12"
	case PartitionTypeFAT16LessThan32MB:
		return "FAT16 (<32MB)"
	case PartitionTypeExtendedCHS:
		return "Extended (CHS)"
	case PartitionTypeFAT16GreaterThan32MB:
		return "FAT16 (>32MB)"
	case PartitionTypeNTFSExFAT:
		return "NTFS/HPFS/exFAT"
	case PartitionTypeFAT32CHS:
		return "FAT32 (CHS)"
	case PartitionTypeFAT32LBA:
		return "FAT32 (LBA)"
	case PartitionTypeFAT16LBA:
		return "FAT16 (LBA)"
	case PartitionTypeExtendedLBA:
		return "Extended (LBA)"
	case PartitionTypeLinuxSwap:
		return "Linux swap"
	case PartitionTypeLinuxFilesystem:
		return "Linux filesystem"
	case PartitionTypeGPT:
		return "GPT Protective MBR"
	case PartitionTypeEFISystem:
		return "EFI System Partition"
	default:
		return "Unknown"
	}
}
