package monitor

import (
	"math"
	"sync"
	"time"

	"polarmon/internal/domain"
)

// Per-reading scoring thresholds. A reading starts at a perfect score and
// loses points for data gaps, out-of-range values, and implausible jumps.
const (
	maxGapInterval  = 1100 * time.Millisecond
	gapPenaltyPerS  = 10.0
	gapPenaltyCap   = 50.0
	rangePenalty    = 50.0
	jumpThreshold   = 20.0
	jumpPenaltyCap  = 30.0
	qualityWindowHR = 10 // readings averaged into SignalQuality
)

// QualityTracker scores incoming heart-rate readings and keeps rolling
// statistics over a bounded window. Safe for concurrent use.
type QualityTracker struct {
	mu sync.Mutex

	window    int
	bpm       []float64 // ring of recent BPM values
	scores    []float64 // ring of per-reading scores
	next      int
	filled    bool
	lastTime  time.Time
	lastBPM   float64
	dataGaps  int
	anomalies int
}

// NewQualityTracker creates a tracker holding at most window readings.
func NewQualityTracker(window int) *QualityTracker {
	if window <= 0 {
		window = 60
	}
	return &QualityTracker{
		window: window,
		bpm:    make([]float64, 0, window),
		scores: make([]float64, 0, window),
	}
}

// Observe scores one reading and folds it into the window.
func (q *QualityTracker) Observe(s domain.HeartRateSample) {
	q.mu.Lock()
	defer q.mu.Unlock()

	score := 100.0
	bpm := float64(s.BPM)

	if !q.lastTime.IsZero() {
		if gap := s.Time.Sub(q.lastTime); gap > maxGapInterval {
			q.dataGaps++
			score -= math.Min(gapPenaltyCap, gap.Seconds()*gapPenaltyPerS)
		}
	}

	if !s.Valid() {
		q.anomalies++
		score -= rangePenalty
	} else if q.lastBPM > 0 {
		if delta := math.Abs(bpm - q.lastBPM); delta > jumpThreshold {
			q.anomalies++
			score -= math.Min(jumpPenaltyCap, delta)
		}
	}
	if score < 0 {
		score = 0
	}

	if len(q.bpm) < q.window {
		q.bpm = append(q.bpm, bpm)
		q.scores = append(q.scores, score)
	} else {
		q.bpm[q.next] = bpm
		q.scores[q.next] = score
		q.next = (q.next + 1) % q.window
		q.filled = true
	}

	q.lastTime = s.Time
	q.lastBPM = bpm
}

// Stats returns the current window statistics.
func (q *QualityTracker) Stats() domain.QualityStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := domain.QualityStats{
		DataGaps:   q.dataGaps,
		Anomalies:  q.anomalies,
		BufferSize: len(q.bpm),
	}
	if len(q.bpm) == 0 {
		return stats
	}

	var sum float64
	for _, v := range q.bpm {
		sum += v
	}
	stats.MeanBPM = sum / float64(len(q.bpm))

	var sq float64
	for _, v := range q.bpm {
		d := v - stats.MeanBPM
		sq += d * d
	}
	stats.StdDevBPM = math.Sqrt(sq / float64(len(q.bpm)))

	stats.SignalQuality = q.recentScoreMean(qualityWindowHR)
	return stats
}

// recentScoreMean averages the newest n scores in the ring. Caller holds mu.
func (q *QualityTracker) recentScoreMean(n int) float64 {
	count := len(q.scores)
	if count == 0 {
		return 0
	}
	if n > count {
		n = count
	}

	// Newest element sits just before q.next once the ring has wrapped.
	start := len(q.scores) - n
	if q.filled {
		start = q.next - n
	}

	var sum float64
	for i := 0; i < n; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(q.scores)
		}
		sum += q.scores[idx%len(q.scores)]
	}
	return sum / float64(n)
}
