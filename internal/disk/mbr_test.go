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
	"testing"

	"github.com/stretchr/testify/require"
)

func buildMBRSector(entries ...MBRPartitionEntry) []byte {
	sector := make([]byte, mbrSize)
	for i, e := range entries {
		off := mbrTableOffset + i*16
		if e.Bootable {
			sector[off] = 0x80
		}
		sector[off+0x04] = byte(e.PartitionType)
		binary.LittleEndian.PutUint32(sector[off+0x08:], e.StartLBA)
		binary.LittleEndian.PutUint32(sector[off+0x0C:], e.TotalSectors)
	}
	binary.LittleEndian.PutUint16(sector[mbrSignatureOffset:], mbrSignature)
	return sector
}

func TestParseMBRRoundTrip(t *testing.T) {
	want := []MBRPartitionEntry{
		{Bootable: true, PartitionType: PartitionTypeLinuxFilesystem, StartLBA: 2048, TotalSectors: 204800},
		{PartitionType: PartitionTypeNTFSExFAT, StartLBA: 206848, TotalSectors: 409600},
	}
	mbr, err := ParseMBR(buildMBRSector(want...))
	require.NoError(t, err)

	require.Equal(t, want[0], mbr.PartitionEntries[0])
	require.Equal(t, want[1], mbr.PartitionEntries[1])
	require.True(t, mbr.PartitionEntries[2].IsEmpty())
	require.True(t, mbr.PartitionEntries[3].IsEmpty())
}

func TestParseMBRRejectsBadSignature(t *testing.T) {
	sector := make([]byte, mbrSize)
	_, err := ParseMBR(sector)
	require.Error(t, err)

	_, err = ParseMBR(sector[:100])
	require.Error(t, err)
}

func TestPartitionsFromMBRKeepsNonEmptyEntries(t *testing.T) {
	mbr, err := ParseMBR(buildMBRSector(
		MBRPartitionEntry{PartitionType: PartitionTypeFAT32LBA, StartLBA: 2048, TotalSectors: 8192},
		MBRPartitionEntry{PartitionType: PartitionTypeLinuxFilesystem, StartLBA: 10240, TotalSectors: 4096},
	))
	require.NoError(t, err)

	parts := partitionsFromMBR(mbr)
	require.Len(t, parts, 2)
	require.Equal(t, uint64(2048*512), parts[0].Offset)
	require.Equal(t, uint64(8192*512), parts[0].Size)
	require.Equal(t, "FAT32 (LBA)", parts[0].TypeName)
	require.Equal(t, uint64(10240*512+4096*512), parts[1].End())
}