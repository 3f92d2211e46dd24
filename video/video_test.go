package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrientation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rotation   int
		w, h       int
		from, want [2]float64
	}{
		{rotation: 90, w: 480, h: 800, from: [2]float64{0, 0}, want: [2]float64{800, 0}},
		{rotation: 180, w: 800, h: 480, from: [2]float64{0, 0}, want: [2]float64{800, 480}},
		{rotation: 270, w: 480, h: 800, from: [2]float64{0, 0}, want: [2]float64{0, 480}},
	}
	for _, tt := range tests {
		w, h, s2d, err := orientation(tt.rotation, 800, 480)
		require.NoError(t, err)
		assert.Equal(t, tt.w, w, "rotation %d", tt.rotation)
		assert.Equal(t, tt.h, h, "rotation %d", tt.rotation)
		require.NotNil(t, s2d)

		x := s2d[0]*tt.from[0] + s2d[1]*tt.from[1] + s2d[2]
		y := s2d[3]*tt.from[0] + s2d[4]*tt.from[1] + s2d[5]
		assert.Equal(t, tt.want, [2]float64{x, y}, "rotation %d", tt.rotation)
	}

	w, h, s2d, err := orientation(0, 800, 480)
	require.NoError(t, err)
	assert.Equal(t, 800, w)
	assert.Equal(t, 480, h)
	assert.Nil(t, s2d)

	_, _, _, err = orientation(45, 800, 480)
	require.ErrorIs(t, err, ErrRotation)
}

func TestRGB565(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint16(0xFFFF), rgb565(0xFFFF, 0xFFFF, 0xFFFF))
	assert.Equal(t, uint16(0xF800), rgb565(0xFFFF, 0, 0))
	assert.Equal(t, uint16(0x07E0), rgb565(0, 0xFFFF, 0))
	assert.Equal(t, uint16(0x001F), rgb565(0, 0, 0xFFFF))
	assert.Equal(t, uint16(0), rgb565(0, 0, 0))
}
