package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"polarmon/internal/domain"
)

func ecgN(n int) []domain.ECGSample {
	out := make([]domain.ECGSample, n)
	for i := range out {
		out[i] = domain.ECGSample{Time: time.Now(), Microvolts: float64(i)}
	}
	return out
}

func TestECGRingUnderCapacity(t *testing.T) {
	r := NewECGRing(10)
	r.Push(ecgN(3)...)

	snap := r.Snapshot()
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 0.0, snap[0].Microvolts)
	assert.Equal(t, 2.0, snap[2].Microvolts)
}

func TestECGRingOverwritesOldest(t *testing.T) {
	r := NewECGRing(5)
	r.Push(ecgN(8)...)

	snap := r.Snapshot()
	assert.Equal(t, 5, r.Len())
	// Oldest three (0,1,2) dropped; snapshot is 3..7 oldest-first.
	assert.Equal(t, 3.0, snap[0].Microvolts)
	assert.Equal(t, 7.0, snap[4].Microvolts)
}

func TestECGRingSnapshotIsCopy(t *testing.T) {
	r := NewECGRing(5)
	r.Push(ecgN(2)...)

	snap := r.Snapshot()
	snap[0].Microvolts = 999
	assert.Equal(t, 0.0, r.Snapshot()[0].Microvolts)
}
