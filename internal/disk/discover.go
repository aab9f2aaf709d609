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
	"github.com/scafiti/argos/internal/fs"
)

// DiscoverPartitions is the "device discovery" collaborator the carving
// core treats as external: it never walks filesystem metadata, only the
// MBR partition table, so that a scan can be pointed at a single
// partition of a raw image instead of the whole device. An image with no
// parseable partition table is reported as one full-disk partition.
func DiscoverPartitions(path string) ([]Partition, error) {
	imgFile, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer imgFile.Close()

	var firstSector [mbrSize]byte
	if _, err := imgFile.ReadAt(firstSector[:], 0); err != nil {
		return nil, err
	}

	if mbr, err := ParseMBR(firstSector[:]); err == nil {
		if parts := partitionsFromMBR(mbr); len(parts) > 0 {
			return parts, nil
		}
	}

	finfo, err := imgFile.Stat()
	if err != nil {
		return nil, err
	}
	return []Partition{fullDiskPartition(uint64(finfo.Size()))}, nil
}

func fullDiskPartition(diskSize uint64) Partition {
	return Partition{
		Num:       0,
		TypeName:  "Whole disk",
		Offset:    0,
		Size:      diskSize,
		BlockSize: DefaultBlocksize,
	}
}

// partitionsFromMBR returns one Partition per non-empty table entry.
// Signature carving does not care what filesystem a partition held, only
// its byte range, so every type is kept, including a lone GPT-protective
// entry spanning the rest of the disk.
func partitionsFromMBR(mbr *MBR) []Partition {
	partitions := make([]Partition, 0, len(mbr.PartitionEntries))
	for n, p := range mbr.PartitionEntries {
		if p.IsEmpty() {
			continue
		}
		partitions = append(partitions, Partition{
			Num:       n,
			TypeName:  p.PartitionType.Name(),
			Offset:    uint64(p.StartLBA) * DefaultBlocksize,
			Size:      uint64(p.TotalSectors) * DefaultBlocksize,
			BlockSize: DefaultBlocksize,
		})
	}
	return partitions
}
