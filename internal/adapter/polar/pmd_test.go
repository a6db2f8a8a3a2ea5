package polar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polarmon/internal/domain"
)

func ecgFrame(frameTime uint16, raw ...int32) []byte {
	data := []byte{pmdFrameECG, byte(frameTime), byte(frameTime >> 8)}
	for _, v := range raw {
		data = append(data, byte(v), byte(v>>8), byte(v>>16))
	}
	return data
}

func TestParseECGFrame(t *testing.T) {
	now := time.Now()
	batch, ok, err := ParseECGFrame(ecgFrame(0x1234, 100, -100, 0), now)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, uint16(0x1234), batch.FrameTime)
	assert.Equal(t, now, batch.Received)
	require.Len(t, batch.Samples, 3)
	assert.Equal(t, 25.0, batch.Samples[0].Microvolts)
	assert.Equal(t, -25.0, batch.Samples[1].Microvolts)
	assert.Equal(t, 0.0, batch.Samples[2].Microvolts)
}

func TestParseECGFrameSignExtension(t *testing.T) {
	// 0xFFFFFF is -1 as signed 24-bit.
	data := []byte{pmdFrameECG, 0x00, 0x00, 0xFF, 0xFF, 0xFF}
	batch, ok, err := ParseECGFrame(data, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch.Samples, 1)
	assert.Equal(t, -0.25, batch.Samples[0].Microvolts)
}

func TestParseECGFrameIgnoresPartialTrailingSample(t *testing.T) {
	data := ecgFrame(0, 100)
	data = append(data, 0x01, 0x02) // two leftover bytes
	batch, ok, err := ParseECGFrame(data, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Samples, 1)
}

func TestParseECGFrameSkipsOtherTypes(t *testing.T) {
	_, ok, err := ParseECGFrame([]byte{0x01, 0x00, 0x00, 0x01, 0x02, 0x03}, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseECGFrameRejectsTruncated(t *testing.T) {
	_, _, err := ParseECGFrame([]byte{pmdFrameECG, 0x00}, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidFrame)
}
