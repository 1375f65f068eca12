package spot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandOf(t *testing.T) {
	tests := []struct {
		freq float64
		band int
		ok   bool
	}{
		{freq: 1800, band: 160, ok: true},
		{freq: 3550.5, band: 80, ok: true},
		{freq: 5332, band: 60, ok: true},
		{freq: 7025.1, band: 40, ok: true},
		{freq: 10118, band: 30, ok: true},
		{freq: 14350, band: 20, ok: true},
		{freq: 18080, band: 17, ok: true},
		{freq: 21044.9, band: 15, ok: true},
		{freq: 24905, band: 12, ok: true},
		{freq: 28050, band: 10, ok: true},
		{freq: 50090, band: 6, ok: true},
		{freq: 14350.1, ok: false},
		{freq: 136, ok: false},
	}
	for _, tt := range tests {
		band, ok := BandOf(tt.freq)
		assert.Equal(t, tt.ok, ok, "%.1f", tt.freq)
		assert.Equal(t, tt.band, band, "%.1f", tt.freq)
	}
}

func TestBands_ZeroValueAcceptsAll(t *testing.T) {
	var b Bands
	assert.True(t, b.All())
	assert.True(t, b.Contains(136))
}

func TestBands_Selection(t *testing.T) {
	b, err := NewBands([]int{40, 20})
	require.NoError(t, err)

	assert.False(t, b.All())
	assert.True(t, b.Contains(7030))
	assert.True(t, b.Contains(14060))
	assert.False(t, b.Contains(3560))
	assert.False(t, b.Contains(136))
	assert.Equal(t, []int{40, 20}, b.List())
}

func TestNewBands_Unknown(t *testing.T) {
	_, err := NewBands([]int{20, 11})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "11m")
}

func TestKnownBands(t *testing.T) {
	assert.Equal(t, []int{160, 80, 60, 40, 30, 20, 17, 15, 12, 10, 6}, KnownBands())
}
