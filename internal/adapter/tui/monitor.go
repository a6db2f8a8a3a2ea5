// Package tui renders the live monitoring view: a large BPM readout, a
// heart-rate trend, an ECG strip when streaming ECG, and signal-quality
// statistics, all fed from the event bus.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"polarmon/internal/adapter/tui/components"
	"polarmon/internal/adapter/tui/theme"
	"polarmon/internal/domain"
)

// Ensure *MonitorModel satisfies tea.Model.
var _ tea.Model = (*MonitorModel)(nil)

// EventBusMsg carries a bus event into the Bubble Tea loop.
type EventBusMsg struct {
	Event domain.Event
}

type tickMsg time.Time

// MonitorDeps are dependencies for the monitor view.
type MonitorDeps struct {
	Bus        domain.EventBus
	Mode       domain.MonitorMode
	DeviceName string
	MaxPoints  int
}

// MonitorModel is the root Bubble Tea model for a recording session.
type MonitorModel struct {
	deps MonitorDeps

	state     domain.ConnectionState
	sessionID string
	startedAt time.Time

	current domain.HeartRateSample
	hasBPM  bool
	stats   domain.QualityStats

	hrTrend  components.SparklineModel
	ecgStrip components.SparklineModel
	status   components.StatusBarModel
	spin     spinner.Model

	width  int
	height int

	programSend func(tea.Msg)
	unsubscribe func()
}

// NewMonitorModel creates the monitor view.
func NewMonitorModel(deps MonitorDeps) *MonitorModel {
	m := &MonitorModel{
		deps:     deps,
		state:    domain.StateConnecting,
		hrTrend:  components.NewSparkline(deps.MaxPoints),
		ecgStrip: components.NewSparkline(deps.MaxPoints),
		status:   components.NewStatusBar(),
		spin:     spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.TextInfo)),
	}
	m.status.Hints = []components.KeyHint{{Key: "q", Desc: "Quit"}}
	m.status.Device = deps.DeviceName
	return m
}

// SetProgramSender sets the function used to inject messages from the
// EventBus. Must be called before the program runs.
func (m *MonitorModel) SetProgramSender(send func(tea.Msg)) {
	m.programSend = send
}

// Init subscribes to the EventBus and starts the refresh tick.
func (m *MonitorModel) Init() tea.Cmd {
	if m.deps.Bus != nil && m.programSend != nil {
		m.unsubscribe = m.deps.Bus.SubscribeAll(func(_ context.Context, event domain.Event) {
			m.programSend(EventBusMsg{Event: event})
		})
	}
	return tea.Batch(tick(), m.spin.Tick)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m *MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		plotWidth := theme.Clamp(msg.Width-6, 10, m.deps.MaxPoints)
		m.hrTrend.SetWidth(plotWidth)
		m.ecgStrip.SetWidth(plotWidth)
		m.status.SetWidth(msg.Width)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.unsubscribe != nil {
				m.unsubscribe()
				m.unsubscribe = nil
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case EventBusMsg:
		m.applyEvent(msg.Event)
	}
	return m, nil
}

func (m *MonitorModel) applyEvent(e domain.Event) {
	switch e.Type {
	case domain.EventSessionStarted:
		m.sessionID = e.SessionID
		m.startedAt = e.Timestamp
		m.status.Session = shortID(e.SessionID)

	case domain.EventDeviceConnected:
		m.state = domain.StateConnected
		m.status.Extra = ""
		var p struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(e.Payload, &p) == nil && p.Name != "" {
			m.status.Device = p.Name
		}

	case domain.EventDeviceReconnecting:
		m.state = domain.StateReconnecting
		m.status.Extra = "Reconnecting..."

	case domain.EventDeviceDisconnected:
		m.state = domain.StateDisconnected

	case domain.EventHeartRateSample:
		var s domain.HeartRateSample
		if json.Unmarshal(e.Payload, &s) != nil {
			return
		}
		m.current = s
		m.hasBPM = true
		m.hrTrend.Push(float64(s.BPM))

	case domain.EventECGBatch:
		var b domain.ECGBatch
		if json.Unmarshal(e.Payload, &b) != nil {
			return
		}
		for _, s := range b.Samples {
			m.ecgStrip.Push(s.Microvolts)
		}

	case domain.EventQualityUpdated:
		var q domain.QualityStats
		if json.Unmarshal(e.Payload, &q) == nil {
			m.stats = q
		}

	case domain.EventWatchdogDataTimeout:
		m.status.Extra = "No data from device"
	}
}

// View renders the monitor screen.
func (m *MonitorModel) View() string {
	var sections []string
	sections = append(sections, m.headerView())
	sections = append(sections, m.readoutView())
	sections = append(sections, m.panelView("Heart Rate", m.hrTrend.View()))
	if m.deps.Mode == domain.ModeECG {
		sections = append(sections, m.panelView("ECG", m.ecgStrip.View()))
	}
	sections = append(sections, m.qualityView())
	sections = append(sections, m.status.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *MonitorModel) headerView() string {
	title := theme.Bold.Render("Polar H10 Monitor")
	state := stateStyle(m.state).Render(m.state.String())
	elapsed := ""
	if !m.startedAt.IsZero() {
		elapsed = theme.TextMuted.Render(
			"  " + time.Since(m.startedAt).Truncate(time.Second).String())
	}
	return title + "  " + state + elapsed
}

func (m *MonitorModel) readoutView() string {
	if !m.hasBPM {
		return theme.Panel.Render(m.spin.View() + theme.Dim.Render(" waiting for data..."))
	}

	bpm := theme.BPMReadout.Render(fmt.Sprintf("♥ %d", m.current.BPM)) +
		theme.StatLabel.Render(" bpm")
	contact := ""
	if m.current.ContactSupported {
		if m.current.SensorContact {
			contact = "  " + theme.TextGood.Render("contact")
		} else {
			contact = "  " + theme.TextBad.Render("no contact")
		}
	}
	rr := ""
	if n := len(m.current.RRIntervals); n > 0 {
		last := m.current.RRIntervals[n-1]
		rr = "  " + theme.StatLabel.Render(fmt.Sprintf("RR %dms", last.Milliseconds()))
	}
	return theme.Panel.Render(bpm + contact + rr)
}

func (m *MonitorModel) panelView(title, body string) string {
	return theme.Panel.Render(theme.PanelTitle.Render(title) + "\n" + body)
}

func (m *MonitorModel) qualityView() string {
	q := m.stats
	parts := []string{
		theme.StatLabel.Render("signal ") +
			theme.QualityStyle(q.SignalQuality).Render(fmt.Sprintf("%.0f%%", q.SignalQuality)),
		theme.StatLabel.Render("mean ") + theme.StatValue.Render(fmt.Sprintf("%.1f", q.MeanBPM)),
		theme.StatLabel.Render("σ ") + theme.StatValue.Render(fmt.Sprintf("%.1f", q.StdDevBPM)),
		theme.StatLabel.Render("gaps ") + theme.StatValue.Render(fmt.Sprintf("%d", q.DataGaps)),
		theme.StatLabel.Render("anomalies ") + theme.StatValue.Render(fmt.Sprintf("%d", q.Anomalies)),
	}
	return theme.Panel.Render(
		theme.PanelTitle.Render("Quality") + "\n" + strings.Join(parts, "   "))
}

func stateStyle(s domain.ConnectionState) lipgloss.Style {
	switch s {
	case domain.StateConnected:
		return theme.TextGood
	case domain.StateReconnecting, domain.StateConnecting:
		return theme.TextWarning
	default:
		return theme.TextBad
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
