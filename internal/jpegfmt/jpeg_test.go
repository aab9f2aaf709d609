package jpegfmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seg(marker byte, payload []byte) []byte {
	out := []byte{0xFF, marker}
	length := len(payload) + 2
	out = append(out, byte(length>>8), byte(length))
	out = append(out, payload...)
	return out
}

func dqtPayload() []byte {
	payload := make([]byte, 65)
	for i := 1; i < len(payload); i++ {
		payload[i] = 0x10
	}
	return payload
}

func buildMinimalJPEG(width, height int, scanData []byte) []byte {
	data := []byte{0xFF, markerSOI}
	sof := []byte{8, byte(height >> 8), byte(height), byte(width >> 8), byte(width), 1, 1, 0x11, 0}
	data = append(data, seg(markerDQT, dqtPayload())...)
	data = append(data, seg(markerSOF0, sof)...)
	data = append(data, seg(markerSOS, []byte{1, 1, 0, 0, 0, 0})...)
	data = append(data, scanData...)
	data = append(data, 0xFF, markerEOI)
	return data
}

func TestValidateAcceptsWellFormedJPEG(t *testing.T) {
	data := buildMinimalJPEG(800, 600, []byte{0x11, 0x22, 0x33})
	result := Validate(data)
	require.Equal(t, StateValid, result.State)
	require.Equal(t, 800, result.Structure.Width)
	require.Equal(t, 600, result.Structure.Height)
}

func TestValidateRejectsMissingSOI(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02, 0x03}
	result := Validate(data)
	require.Equal(t, StateInvalidHeader, result.State)
}

func TestValidateDetectsTruncation(t *testing.T) {
	data := buildMinimalJPEG(800, 600, []byte{0x11, 0x22, 0x33})
	truncated := data[:len(data)-5]
	result := Validate(truncated)
	require.Equal(t, StateTruncated, result.State)
}

func TestValidateDetectsInvalidMarkerSequence(t *testing.T) {
	data := []byte{0xFF, markerSOI, 0x01, 0x02, 0x03, 0x04}
	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonInvalidMarkerSequence, result.Reason)
}

func TestValidateRejectsSOFBeforeDQT(t *testing.T) {
	data := []byte{0xFF, markerSOI}
	sof := []byte{8, 0x02, 0x58, 0x02, 0x58, 1, 1, 0x11, 0}
	data = append(data, seg(markerSOF0, sof)...)
	data = append(data, seg(markerDQT, dqtPayload())...)
	data = append(data, seg(markerSOS, []byte{1, 1, 0, 0, 0, 0})...)
	data = append(data, 0x11, 0x22)
	data = append(data, 0xFF, markerEOI)

	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonMissingRequiredMarker, result.Reason)
	require.Equal(t, "DQT before SOF", result.MissingMarker)
}

func TestValidateRejectsSOSBeforeSOF(t *testing.T) {
	data := []byte{0xFF, markerSOI}
	data = append(data, seg(markerDQT, dqtPayload())...)
	data = append(data, seg(markerSOS, []byte{1, 1, 0, 0, 0, 0})...)
	data = append(data, 0x11, 0x22)
	data = append(data, 0xFF, markerEOI)

	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonMissingRequiredMarker, result.Reason)
	require.Equal(t, "SOF before SOS", result.MissingMarker)
}

func TestValidateRejectsSecondSOIAfterSOS(t *testing.T) {
	scan := []byte{0x11, 0x22, 0xFF, 0xD8, 0x33}
	data := buildMinimalJPEG(800, 600, scan)

	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonInvalidMarkerSequence, result.Reason)
}

func TestValidateAcceptsInOrderRestartMarkers(t *testing.T) {
	scan := []byte{0x11, 0x22, 0xFF, 0xD0, 0x33, 0x44, 0xFF, 0xD1, 0x55}
	data := buildMinimalJPEG(800, 600, scan)
	result := Validate(data)
	require.Equal(t, StateValid, result.State)
}

func TestValidateDetectsRestartSequenceError(t *testing.T) {
	scan := []byte{0x11, 0x22, 0xFF, 0xD0, 0x33, 0x44, 0xFF, 0xD3, 0x55}
	data := buildMinimalJPEG(800, 600, scan)
	result := Validate(data)
	require.Equal(t, StateCorruptedAt, result.State)
	require.Equal(t, ReasonRestartSequenceError, result.Reason)
}

func TestValidateRecordsHasValidContent(t *testing.T) {
	data := buildMinimalJPEG(800, 600, []byte{0x11, 0x22})
	result := Validate(data)
	require.True(t, result.Structure.HasValidContent)
}

func TestDetectScanBreakFindsZeroRun(t *testing.T) {
	scan := make([]byte, 600)
	for i := 0; i < 40; i++ {
		scan[i] = 0x11
	}
	data := buildMinimalJPEG(800, 600, scan)

	br, found := DetectScanBreak(data, 512)
	require.True(t, found)
	require.False(t, br.Definite)
}

func TestDetectScanBreakFindsIllegalMarker(t *testing.T) {
	scan := []byte{0x11, 0x22, 0xFF, 0xC4, 0x33}
	data := buildMinimalJPEG(800, 600, scan)

	br, found := DetectScanBreak(data, 512)
	require.True(t, found)
	require.True(t, br.Definite)
}

func TestDetectScanBreakCleanStream(t *testing.T) {
	scan := []byte{0x11, 0x22, 0xFF, 0x00, 0x33, 0xFF, 0xD0, 0x44}
	data := buildMinimalJPEG(800, 600, scan)

	_, found := DetectScanBreak(data, 512)
	require.False(t, found)
}

func TestClassifyDimensions(t *testing.T) {
	require.Equal(t, DimensionIcon, ClassifyDimensions(64, 64))
	require.Equal(t, DimensionExtremeAspect, ClassifyDimensions(4000, 200))
	require.Equal(t, DimensionTiny, ClassifyDimensions(300, 300))
	require.Equal(t, DimensionPhoto, ClassifyDimensions(1920, 1080))
}

func TestDCContinuityScoreHighForContinuousSeries(t *testing.T) {
	head := []int16{100, 101, 102, 103, 104}
	tail := []int16{104, 105, 106, 107, 108}
	score := DCContinuityScore(head, tail)
	require.Greater(t, score, float32(0.9))
}

func TestDCContinuityScoreLowForDiscontinuousSeries(t *testing.T) {
	head := []int16{100, 101, 102, 103, 104}
	tail := []int16{-500, -501, -502, -503, -504}
	score := DCContinuityScore(head, tail)
	require.Less(t, score, float32(0.5))
}

func TestDCContinuityScoreEmptyInputs(t *testing.T) {
	require.Equal(t, float32(0), DCContinuityScore(nil, []int16{1, 2, 3}))
	require.Equal(t, float32(0), DCContinuityScore([]int16{1, 2, 3}, nil))
}

func TestHuffmanTableSingleBitCodes(t *testing.T) {
	data := []byte{2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x00, 0x01}
	table, ok := NewHuffmanTableFromDHT(data)
	require.True(t, ok)

	sym, length, ok := table.decode(0x00000000, 8)
	require.True(t, ok)
	require.Equal(t, byte(0x00), sym)
	require.Equal(t, uint8(1), length)

	sym, length, ok = table.decode(0x80000000, 8)
	require.True(t, ok)
	require.Equal(t, byte(0x01), sym)
	require.Equal(t, uint8(1), length)
}
