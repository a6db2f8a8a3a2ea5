// Package monitor runs recording sessions: it drives a device client,
// persists the decoded streams, tracks signal quality, and fans everything
// out on the event bus for the TUI and other listeners.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"polarmon/internal/domain"
	"polarmon/internal/infra/tracer"
)

// DeviceClient is the slice of the Polar client the monitor drives.
type DeviceClient interface {
	Connect(ctx context.Context) error
	StartHeartRate(ctx context.Context, h func(domain.HeartRateSample)) error
	StopHeartRate() error
	StartECG(ctx context.Context, h func(domain.ECGBatch)) error
	StopECG() error
	DeviceInfo() (address, name string)
	State() domain.ConnectionState
	Fatal() <-chan error
	Close() error
}

// Monitor records one session at a time.
type Monitor struct {
	client  DeviceClient
	store   domain.SampleStore
	bus     domain.EventBus
	log     *slog.Logger
	quality *QualityTracker
	ring    *ECGRing

	mu      sync.Mutex
	session *domain.Session
}

// New creates a monitor. qualityWindow bounds the rolling statistics buffer;
// ecgWindow bounds the in-memory ECG trace kept for display.
func New(client DeviceClient, store domain.SampleStore, bus domain.EventBus,
	log *slog.Logger, qualityWindow, ecgWindow int) *Monitor {
	return &Monitor{
		client:  client,
		store:   store,
		bus:     bus,
		log:     log,
		quality: NewQualityTracker(qualityWindow),
		ring:    NewECGRing(ecgWindow),
	}
}

// Session returns the current session, or nil when not recording.
func (m *Monitor) Session() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// Stats returns the rolling quality statistics.
func (m *Monitor) Stats() domain.QualityStats { return m.quality.Stats() }

// ECGWindow returns the buffered ECG trace, oldest-first.
func (m *Monitor) ECGWindow() []domain.ECGSample { return m.ring.Snapshot() }

// State returns the client connection state.
func (m *Monitor) State() domain.ConnectionState { return m.client.State() }

// Run connects, starts the streams for mode, and records until ctx is
// cancelled or the client fails beyond recovery. The session row is always
// closed before returning.
func (m *Monitor) Run(ctx context.Context, mode domain.MonitorMode) error {
	ctx, span := tracer.StartSpan(ctx, "monitor.run")
	defer span.End()

	if err := m.client.Connect(ctx); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("Monitor.Run", err)
	}

	addr, name := m.client.DeviceInfo()
	span.SetAttributes(tracer.DeviceAttr(addr))
	session := &domain.Session{
		ID:            ulid.Make().String(),
		DeviceAddress: addr,
		DeviceName:    name,
		Mode:          mode,
		StartedAt:     time.Now(),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("Monitor.Run", err)
	}
	span.SetAttributes(tracer.SessionAttr(session.ID))
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.log.Info("session started",
		"session", session.ID, "device", addr, "mode", string(mode))
	m.bus.Publish(ctx, domain.NewEvent(domain.EventSessionStarted, session.ID, session))

	if err := m.client.StartHeartRate(ctx, m.onHeartRate(ctx, session.ID)); err != nil {
		m.endSession(session.ID)
		return domain.WrapOp("Monitor.Run", err)
	}
	if mode == domain.ModeECG {
		if err := m.client.StartECG(ctx, m.onECG(ctx, session.ID)); err != nil {
			_ = m.client.StopHeartRate()
			m.endSession(session.ID)
			return domain.WrapOp("Monitor.Run", err)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-m.client.Fatal():
		m.log.Error("device client failed", "error", err)
		runErr = err
	}

	_ = m.client.StopHeartRate()
	if mode == domain.ModeECG {
		_ = m.client.StopECG()
	}
	m.endSession(session.ID)
	if runErr != nil {
		tracer.RecordError(span, runErr)
	} else {
		tracer.SetOK(span)
	}
	return runErr
}

func (m *Monitor) onHeartRate(ctx context.Context, sessionID string) func(domain.HeartRateSample) {
	return func(s domain.HeartRateSample) {
		m.quality.Observe(s)
		if err := m.store.AppendHeartRate(ctx, sessionID, s); err != nil {
			m.log.Error("failed to persist heart rate sample",
				"session", sessionID, "error", err)
		}
		m.bus.Publish(ctx, domain.NewEvent(domain.EventHeartRateSample, sessionID, s))
		m.bus.Publish(ctx, domain.NewEvent(domain.EventQualityUpdated, sessionID, m.quality.Stats()))
	}
}

func (m *Monitor) onECG(ctx context.Context, sessionID string) func(domain.ECGBatch) {
	return func(b domain.ECGBatch) {
		m.ring.Push(b.Samples...)
		if err := m.store.AppendECG(ctx, sessionID, b); err != nil {
			m.log.Error("failed to persist ecg batch",
				"session", sessionID, "error", err)
		}
		m.bus.Publish(ctx, domain.NewEvent(domain.EventECGBatch, sessionID, b))
	}
}

// endSession closes the session row with a context independent of the run
// context, which may already be cancelled.
func (m *Monitor) endSession(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ended := time.Now()
	if err := m.store.EndSession(ctx, id, ended); err != nil {
		m.log.Error("failed to end session", "session", id, "error", err)
	}

	m.mu.Lock()
	if m.session != nil && m.session.ID == id {
		m.session.EndedAt = ended
	}
	m.mu.Unlock()

	m.log.Info("session ended", "session", id)
	m.bus.Publish(ctx, domain.NewEvent(domain.EventSessionEnded, id, nil))
}
