package scheduling

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

type fakeExporter struct {
	mu  sync.Mutex
	hr  []string
	ecg []string
	err error
}

func (f *fakeExporter) ExportHeartRate(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.hr = append(f.hr, id)
	return "/tmp/hr.csv", nil
}

func (f *fakeExporter) ExportECG(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.ecg = append(f.ecg, id)
	return "/tmp/ecg.csv", nil
}

func (f *fakeExporter) hrCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hr)
}

func (f *fakeExporter) ecgCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ecg)
}

type fakeSource struct {
	mu   sync.Mutex
	sess *domain.Session
}

func (f *fakeSource) Session() *domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

type countingBus struct {
	mu    sync.Mutex
	count int
}

func (b *countingBus) Publish(_ context.Context, e domain.Event) {
	if e.Type != domain.EventExportCompleted {
		return
	}
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
}

func (b *countingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *countingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *countingBus) Close()                                                 {}

func (b *countingBus) exports() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func TestParseSchedule(t *testing.T) {
	for _, schedule := range []string{"*/5 * * * *", "@hourly", "@every 1h", "30m", "500ms"} {
		_, err := ParseSchedule(schedule)
		assert.NoError(t, err, schedule)
	}
	for _, schedule := range []string{"", "bogus", "-10s", "* * *"} {
		_, err := ParseSchedule(schedule)
		assert.Error(t, err, schedule)
	}
}

func TestAddJobValidation(t *testing.T) {
	s := NewScheduler(&fakeExporter{}, &fakeSource{}, nil, slog.Default())

	assert.Error(t, s.AddJob(Job{Name: "bad-stream", Schedule: "50ms", Stream: "accel"}))
	assert.Error(t, s.AddJob(Job{Name: "bad-schedule", Schedule: "not a schedule", Stream: "hr"}))
	assert.NoError(t, s.AddJob(Job{Name: "cron", Schedule: "*/5 * * * *", Stream: "hr"}))
	assert.NoError(t, s.AddJob(Job{Name: "interval", Schedule: "30m", Stream: "ecg"}))
}

func TestSchedulerRunsJob(t *testing.T) {
	exp := &fakeExporter{}
	source := &fakeSource{sess: &domain.Session{ID: "01SESS", Mode: domain.ModeECG}}
	bus := &countingBus{}
	s := NewScheduler(exp, source, bus, slog.Default())

	require.NoError(t, s.AddJob(Job{Name: "fast-hr", Schedule: "20ms", Stream: "hr"}))
	require.NoError(t, s.AddJob(Job{Name: "fast-ecg", Schedule: "20ms", Stream: "ecg"}))

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return exp.hrCount() > 0 && exp.ecgCount() > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return bus.exports() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsWithoutSession(t *testing.T) {
	exp := &fakeExporter{}
	s := NewScheduler(exp, &fakeSource{}, nil, slog.Default())

	require.NoError(t, s.AddJob(Job{Name: "fast", Schedule: "20ms", Stream: "hr"}))
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, exp.hrCount())
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s := NewScheduler(&fakeExporter{}, &fakeSource{}, nil, slog.Default())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
