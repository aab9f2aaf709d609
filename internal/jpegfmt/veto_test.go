package jpegfmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVetoSkipsNonPhotoDimensions(t *testing.T) {
	st := Structure{Width: 64, Height: 64, Markers: make([]Marker, 10)}
	result := Veto(st, 7.5, true)
	require.True(t, result.Skip)
}

func TestVetoSkipsSparseMarkersWithoutExif(t *testing.T) {
	st := Structure{Width: 1920, Height: 1080, Markers: make([]Marker, 3)}
	result := Veto(st, 7.5, true)
	require.True(t, result.Skip)
}

func TestVetoAllowsWellFormedPhoto(t *testing.T) {
	st := Structure{
		Width: 1920, Height: 1080,
		Markers:   make([]Marker, 8),
		HasExif:   true,
		SOSOffset: -1,
	}
	result := Veto(st, 0, false)
	require.False(t, result.Skip)
}
