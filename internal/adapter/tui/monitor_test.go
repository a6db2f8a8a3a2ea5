package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polarmon/internal/domain"
)

func newTestModel(mode domain.MonitorMode) *MonitorModel {
	m := NewMonitorModel(MonitorDeps{Mode: mode, DeviceName: "Polar H10 test", MaxPoints: 100})
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m
}

func busMsg(t domain.EventType, sessionID string, payload any) EventBusMsg {
	return EventBusMsg{Event: domain.NewEvent(t, sessionID, payload)}
}

func TestMonitorViewWaitingForData(t *testing.T) {
	m := newTestModel(domain.ModeHR)
	assert.Contains(t, m.View(), "waiting for data")
}

func TestMonitorViewShowsSample(t *testing.T) {
	m := newTestModel(domain.ModeHR)

	m.Update(busMsg(domain.EventHeartRateSample, "01SESS", domain.HeartRateSample{
		Time:             time.Now(),
		BPM:              72,
		SensorContact:    true,
		ContactSupported: true,
		RRIntervals:      []time.Duration{820 * time.Millisecond},
	}))

	view := m.View()
	assert.Contains(t, view, "72")
	assert.Contains(t, view, "contact")
	assert.Contains(t, view, "RR 820ms")
}

func TestMonitorViewECGPanelOnlyInECGMode(t *testing.T) {
	assert.NotContains(t, newTestModel(domain.ModeHR).View(), "ECG")
	assert.Contains(t, newTestModel(domain.ModeECG).View(), "ECG")
}

func TestMonitorTracksConnectionState(t *testing.T) {
	m := newTestModel(domain.ModeHR)

	m.Update(busMsg(domain.EventDeviceConnected, "", map[string]string{"name": "Polar H10 123"}))
	assert.Contains(t, m.View(), domain.StateConnected.String())

	m.Update(busMsg(domain.EventDeviceReconnecting, "", nil))
	view := m.View()
	assert.Contains(t, view, domain.StateReconnecting.String())
	assert.Contains(t, view, "Reconnecting")
}

func TestMonitorQualityPanel(t *testing.T) {
	m := newTestModel(domain.ModeHR)

	m.Update(busMsg(domain.EventQualityUpdated, "01SESS", domain.QualityStats{
		SignalQuality: 92.4,
		MeanBPM:       71.5,
		StdDevBPM:     2.3,
		DataGaps:      1,
		Anomalies:     2,
	}))

	view := m.View()
	assert.Contains(t, view, "92%")
	assert.Contains(t, view, "71.5")
	assert.Contains(t, view, "gaps")
}

func TestMonitorSessionStartSetsStatus(t *testing.T) {
	m := newTestModel(domain.ModeHR)
	m.Update(busMsg(domain.EventSessionStarted, "01HXZRVJK5T8EXAMPLE00000000", nil))
	assert.Contains(t, m.View(), "00000000")
}

func TestMonitorQuits(t *testing.T) {
	m := newTestModel(domain.ModeHR)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestMonitorStripsLongSessionID(t *testing.T) {
	assert.Equal(t, "SHORT", shortID("SHORT"))
	assert.Equal(t, 8, len(shortID(strings.Repeat("A", 26))))
}
