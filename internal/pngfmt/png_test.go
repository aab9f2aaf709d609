package pngfmt

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func chunk(typ string, payload []byte) []byte {
	out := make([]byte, 0, 12+len(payload))
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(payload)))
	out = append(out, length...)
	out = append(out, []byte(typ)...)
	out = append(out, payload...)
	crc := CRC32(out[4:])
	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crc)
	out = append(out, crcBytes...)
	return out
}

func buildMinimalPNG(width, height int, idat []byte) []byte {
	data := []byte(signature)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = 8
	ihdr[9] = 2

	data = append(data, chunk("IHDR", ihdr)...)
	data = append(data, chunk("IDAT", idat)...)
	data = append(data, chunk("IEND", nil)...)
	return data
}

func TestCRC32KnownVectors(t *testing.T) {
	require.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))

	iend := chunk("IEND", nil)
	crc := binary.BigEndian.Uint32(iend[len(iend)-4:])
	require.Equal(t, uint32(0xAE426082), crc)
}

func TestValidateAcceptsWellFormedPNG(t *testing.T) {
	data := buildMinimalPNG(800, 600, []byte{1, 2, 3, 4, 5})
	result := Validate(data)
	require.Equal(t, StateValid, result.State)
	require.Equal(t, 800, result.Structure.Width)
	require.Equal(t, 600, result.Structure.Height)
	require.True(t, result.Structure.HasIDAT)
}

func TestValidateRejectsMissingSignature(t *testing.T) {
	result := Validate([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	require.Equal(t, StateInvalidHeader, result.State)
}

func TestValidateDetectsTruncation(t *testing.T) {
	data := buildMinimalPNG(800, 600, []byte{1, 2, 3})
	result := Validate(data[:len(data)-10])
	require.Equal(t, StateTruncated, result.State)
}

func TestValidateDetectsRecoverableCrcErrors(t *testing.T) {
	data := buildMinimalPNG(800, 600, []byte{1, 2, 3})
	// Corrupt one byte inside the IDAT chunk's data, after its length+type
	// header but before its CRC, to trigger a mismatch without breaking
	// the chunk framing itself.
	idatChunkStart := len(signature) + 12 + 13 // past signature + IHDR chunk
	idatPayloadStart := idatChunkStart + 8     // past IDAT's length+type
	data[idatPayloadStart] ^= 0xFF

	result := Validate(data)
	require.Equal(t, StateRecoverableCrcErrors, result.State)
	require.NotEmpty(t, result.CrcErrorOffsets)
}

func TestValidateDetectsMissingIHDR(t *testing.T) {
	data := []byte(signature)
	data = append(data, chunk("IDAT", []byte{1, 2, 3})...)
	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonMissingIHDR, result.Reason)
}

func TestValidateDetectsInvalidChunkOrder(t *testing.T) {
	data := []byte(signature)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 800)
	binary.BigEndian.PutUint32(ihdr[4:8], 600)
	ihdr[8] = 8
	ihdr[9] = 2
	data = append(data, chunk("IHDR", ihdr)...)
	data = append(data, chunk("IEND", nil)...)

	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonInvalidChunkOrder, result.Reason)
}

func TestValidateRejectsIllegalColorDepthPair(t *testing.T) {
	data := []byte(signature)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 800)
	binary.BigEndian.PutUint32(ihdr[4:8], 600)
	ihdr[8] = 4 // truecolor requires depth 8 or 16
	ihdr[9] = 2
	data = append(data, chunk("IHDR", ihdr)...)
	data = append(data, chunk("IDAT", []byte{1, 2, 3})...)
	data = append(data, chunk("IEND", nil)...)

	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonInvalidIHDR, result.Reason)
}

func TestDetectChunkBreakFindsZeroRun(t *testing.T) {
	payload := make([]byte, 1024) // all zeros
	data := []byte(signature)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 800)
	binary.BigEndian.PutUint32(ihdr[4:8], 600)
	ihdr[8] = 8
	ihdr[9] = 2
	data = append(data, chunk("IHDR", ihdr)...)
	idatStart := len(data)
	data = append(data, chunk("IDAT", payload)...)

	br, found := DetectChunkBreak(data, 512)
	require.True(t, found)
	require.False(t, br.Definite)
	require.Equal(t, uint64(idatStart+8), br.Offset)
}

func TestDetectChunkBreakFindsCrcMismatch(t *testing.T) {
	data := buildMinimalPNG(800, 600, []byte{9, 8, 7, 6, 5})
	idatChunkStart := len(signature) + 12 + 13
	data[idatChunkStart+8] ^= 0xFF

	br, found := DetectChunkBreak(data, 512)
	require.True(t, found)
	require.True(t, br.Definite)
	require.Equal(t, uint64(idatChunkStart), br.Offset)
}

func TestDetectChunkBreakCleanStream(t *testing.T) {
	data := buildMinimalPNG(800, 600, []byte{9, 8, 7, 6, 5})
	_, found := DetectChunkBreak(data, 512)
	require.False(t, found)
}

func TestVetoSkipsMissingIDAT(t *testing.T) {
	st := Structure{Width: 1920, Height: 1080, HasIDAT: false}
	require.True(t, Veto(st).Skip)
}

func TestVetoSkipsScreenDPI(t *testing.T) {
	st := Structure{
		Width: 1920, Height: 1080, HasIDAT: true,
		HasPHYS: true, PhysUnitMeter: true,
		PhysPPUX: 2835, PhysPPUY: 2835,
	}
	require.True(t, Veto(st).Skip)
}

func TestVetoAllowsPlausiblePhoto(t *testing.T) {
	st := Structure{
		Width: 1920, Height: 1080, HasIDAT: true,
		DistinctTypes: 4,
	}
	require.False(t, Veto(st).Skip)
}
