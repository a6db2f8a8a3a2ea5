package monitor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polarmon/internal/domain"
)

type fakeClient struct {
	mu    sync.Mutex
	hrH   func(domain.HeartRateSample)
	ecgH  func(domain.ECGBatch)
	fatal chan error

	connectErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{fatal: make(chan error, 1)}
}

func (f *fakeClient) Connect(context.Context) error { return f.connectErr }

func (f *fakeClient) StartHeartRate(_ context.Context, h func(domain.HeartRateSample)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hrH = h
	return nil
}

func (f *fakeClient) StopHeartRate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hrH = nil
	return nil
}

func (f *fakeClient) StartECG(_ context.Context, h func(domain.ECGBatch)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ecgH = h
	return nil
}

func (f *fakeClient) StopECG() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ecgH = nil
	return nil
}

func (f *fakeClient) DeviceInfo() (string, string)   { return "aa:bb", "Polar H10 test" }
func (f *fakeClient) State() domain.ConnectionState  { return domain.StateConnected }
func (f *fakeClient) Fatal() <-chan error            { return f.fatal }
func (f *fakeClient) Close() error                   { return nil }

func (f *fakeClient) emitHR(s domain.HeartRateSample) bool {
	f.mu.Lock()
	h := f.hrH
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(s)
	return true
}

func (f *fakeClient) emitECG(b domain.ECGBatch) bool {
	f.mu.Lock()
	h := f.ecgH
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(b)
	return true
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	hr       map[string][]domain.HeartRateSample
	ecg      map[string][]domain.ECGSample
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*domain.Session),
		hr:       make(map[string][]domain.HeartRateSample),
		ecg:      make(map[string][]domain.ECGSample),
	}
}

func (s *memStore) CreateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) EndSession(_ context.Context, id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.EndedAt = endedAt
	return nil
}

func (s *memStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) ListSessions(context.Context) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) AppendHeartRate(_ context.Context, id string, smp domain.HeartRateSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hr[id] = append(s.hr[id], smp)
	return nil
}

func (s *memStore) AppendECG(_ context.Context, id string, b domain.ECGBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ecg[id] = append(s.ecg[id], b.Samples...)
	return nil
}

func (s *memStore) HeartRateSamples(_ context.Context, id string) ([]domain.HeartRateSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HeartRateSample(nil), s.hr[id]...), nil
}

func (s *memStore) ECGSamples(_ context.Context, id string) ([]domain.ECGSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ECGSample(nil), s.ecg[id]...), nil
}

func (s *memStore) Close() error { return nil }

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func TestMonitorRunHeartRate(t *testing.T) {
	client := newFakeClient()
	store := newMemStore()
	bus := &recordingBus{}
	m := New(client, store, bus, slog.Default(), 60, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, domain.ModeHR) }()

	require.Eventually(t, func() bool {
		return client.emitHR(domain.HeartRateSample{Time: time.Now(), BPM: 72})
	}, time.Second, 5*time.Millisecond)

	sess := m.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "aa:bb", sess.DeviceAddress)
	assert.Equal(t, domain.ModeHR, sess.Mode)

	cancel()
	require.NoError(t, <-done)

	samples, err := store.HeartRateSamples(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, uint16(72), samples[0].BPM)

	stored, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active())

	assert.Equal(t, 1, bus.count(domain.EventSessionStarted))
	assert.Equal(t, 1, bus.count(domain.EventHeartRateSample))
	assert.Equal(t, 1, bus.count(domain.EventQualityUpdated))
	assert.Equal(t, 1, bus.count(domain.EventSessionEnded))
}

func TestMonitorRunECGMode(t *testing.T) {
	client := newFakeClient()
	store := newMemStore()
	bus := &recordingBus{}
	m := New(client, store, bus, slog.Default(), 60, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, domain.ModeECG) }()

	batch := domain.ECGBatch{
		FrameTime: 9,
		Received:  time.Now(),
		Samples: []domain.ECGSample{
			{Time: time.Now(), Microvolts: 120},
			{Time: time.Now(), Microvolts: -80},
		},
	}
	require.Eventually(t, func() bool {
		return client.emitECG(batch)
	}, time.Second, 5*time.Millisecond)

	sess := m.Session()
	require.NotNil(t, sess)

	cancel()
	require.NoError(t, <-done)

	samples, err := store.ECGSamples(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
	assert.Len(t, m.ECGWindow(), 2)
	assert.Equal(t, 1, bus.count(domain.EventECGBatch))
}

func TestMonitorRunStopsOnFatal(t *testing.T) {
	client := newFakeClient()
	m := New(client, newMemStore(), &recordingBus{}, slog.Default(), 60, 100)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), domain.ModeHR) }()

	require.Eventually(t, func() bool {
		return client.emitHR(domain.HeartRateSample{Time: time.Now(), BPM: 70})
	}, time.Second, 5*time.Millisecond)

	client.fatal <- domain.ErrReconnectGaveUp
	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrReconnectGaveUp)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after fatal client error")
	}
}

func TestMonitorRunConnectError(t *testing.T) {
	client := newFakeClient()
	client.connectErr = domain.ErrDeviceNotFound
	m := New(client, newMemStore(), &recordingBus{}, slog.Default(), 60, 100)

	err := m.Run(context.Background(), domain.ModeHR)
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.Nil(t, m.Session())
}
