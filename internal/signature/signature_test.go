package signature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanFindsJpegAndPngMarkers(t *testing.T) {
	s := NewScanner()

	data := []byte{0x00, 0x00}
	data = append(data, jpegHeader...)
	data = append(data, 0xE0, 0x00, 0x10)
	data = append(data, make([]byte, 20)...)
	data = append(data, jpegFooter...)
	data = append(data, 0xAA)
	data = append(data, pngHeader...)
	data = append(data, make([]byte, 10)...)
	data = append(data, pngFooter...)

	var matches []Match
	s.Scan(data, 1000, func(m Match) { matches = append(matches, m) })

	require.NotEmpty(t, matches)

	var sawJPEGHeader, sawJPEGFooter, sawPNGHeader, sawPNGFooter bool
	for _, m := range matches {
		switch {
		case m.Format == JPEG && m.Kind == Header:
			sawJPEGHeader = true
			require.Equal(t, uint64(1002), m.Offset)
		case m.Format == JPEG && m.Kind == Footer:
			sawJPEGFooter = true
		case m.Format == PNG && m.Kind == Header:
			sawPNGHeader = true
		case m.Format == PNG && m.Kind == Footer:
			sawPNGFooter = true
		}
	}
	require.True(t, sawJPEGHeader)
	require.True(t, sawJPEGFooter)
	require.True(t, sawPNGHeader)
	require.True(t, sawPNGFooter)
}

func TestQuickValidateJpeg(t *testing.T) {
	require.True(t, QuickValidate(JPEG, []byte{0xFF, 0xD8, 0xFF, 0xE0}))
	require.True(t, QuickValidate(JPEG, []byte{0xFF, 0xD8, 0xFF, 0xDB}))
	require.False(t, QuickValidate(JPEG, []byte{0xFF, 0xD8, 0xFF, 0x01}))
	require.False(t, QuickValidate(JPEG, []byte{0xFF, 0xD8}))
}

func TestQuickValidatePng(t *testing.T) {
	ihdr := append(append([]byte{}, pngHeader...), 0, 0, 0, 13, 'I', 'H', 'D', 'R')
	require.True(t, QuickValidate(PNG, ihdr))

	bad := append(append([]byte{}, pngHeader...), 0, 0, 0, 12, 'I', 'H', 'D', 'R')
	require.False(t, QuickValidate(PNG, bad))
}
