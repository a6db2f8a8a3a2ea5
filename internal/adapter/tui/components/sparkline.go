package components

import (
	"math"
	"strings"

	"polarmon/internal/adapter/tui/theme"
)

// sparkGlyphs are the block characters used to plot values, lowest first.
var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// SparklineModel plots a rolling series of values as a one-line block graph,
// keeping at most maxPoints of history.
type SparklineModel struct {
	maxPoints int
	values    []float64
	width     int
}

// NewSparkline creates a sparkline holding up to maxPoints values.
func NewSparkline(maxPoints int) SparklineModel {
	if maxPoints <= 1 {
		maxPoints = 100
	}
	return SparklineModel{maxPoints: maxPoints, width: maxPoints}
}

// SetWidth updates the render width; older points fall off the left edge.
func (m *SparklineModel) SetWidth(w int) {
	if w > 0 {
		m.width = w
	}
}

// Push appends values, discarding the oldest beyond capacity.
func (m *SparklineModel) Push(vs ...float64) {
	m.values = append(m.values, vs...)
	if over := len(m.values) - m.maxPoints; over > 0 {
		m.values = m.values[over:]
	}
}

// SetSeries replaces the whole series, keeping the newest maxPoints values.
func (m *SparklineModel) SetSeries(vs []float64) {
	m.values = m.values[:0]
	m.Push(vs...)
}

// Len returns the number of buffered points.
func (m SparklineModel) Len() int { return len(m.values) }

// View renders the newest points that fit the width, scaled to the visible
// min/max. A flat series renders mid-height.
func (m SparklineModel) View() string {
	if len(m.values) == 0 {
		return theme.Dim.Render(strings.Repeat("·", theme.Clamp(m.width, 1, m.maxPoints)))
	}

	visible := m.values
	if w := theme.Clamp(m.width, 1, m.maxPoints); len(visible) > w {
		visible = visible[len(visible)-w:]
	}

	lo, hi := visible[0], visible[0]
	for _, v := range visible[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	for _, v := range visible {
		idx := len(sparkGlyphs) / 2
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkGlyphs)-1))
		}
		b.WriteRune(sparkGlyphs[theme.Clamp(idx, 0, len(sparkGlyphs)-1)])
	}
	return theme.Trace.Render(b.String())
}
