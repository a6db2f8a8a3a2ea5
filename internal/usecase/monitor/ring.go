package monitor

import (
	"sync"

	"polarmon/internal/domain"
)

// ECGRing is a fixed-capacity buffer of the most recent ECG samples,
// overwriting the oldest once full. Safe for concurrent use.
type ECGRing struct {
	mu     sync.Mutex
	buf    []domain.ECGSample
	next   int
	filled bool
}

// NewECGRing creates a ring holding at most capacity samples.
func NewECGRing(capacity int) *ECGRing {
	if capacity <= 0 {
		capacity = 650 // 5 seconds at 130 Hz
	}
	return &ECGRing{buf: make([]domain.ECGSample, 0, capacity)}
}

// Push appends samples, dropping the oldest when over capacity.
func (r *ECGRing) Push(samples ...domain.ECGSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		if len(r.buf) < cap(r.buf) {
			r.buf = append(r.buf, s)
			continue
		}
		r.buf[r.next] = s
		r.next = (r.next + 1) % cap(r.buf)
		r.filled = true
	}
}

// Snapshot returns the buffered samples oldest-first.
func (r *ECGRing) Snapshot() []domain.ECGSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ECGSample, 0, len(r.buf))
	if r.filled {
		out = append(out, r.buf[r.next:]...)
		out = append(out, r.buf[:r.next]...)
		return out
	}
	return append(out, r.buf...)
}

// Len returns the number of buffered samples.
func (r *ECGRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
