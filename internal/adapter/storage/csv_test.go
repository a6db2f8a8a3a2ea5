package storage

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polarmon/internal/domain"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportHeartRate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := testSession("01EXPORT")
	sess.StartedAt = time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession(ctx, sess))
	require.NoError(t, store.AppendHeartRate(ctx, "01EXPORT", domain.HeartRateSample{
		Time: sess.StartedAt.Add(time.Second), BPM: 72,
	}))
	require.NoError(t, store.AppendHeartRate(ctx, "01EXPORT", domain.HeartRateSample{
		Time: sess.StartedAt.Add(2 * time.Second), BPM: 74,
	}))

	dir := t.TempDir()
	exp := NewCSVExporter(store, dir, slog.Default())

	path, err := exp.ExportHeartRate(ctx, "01EXPORT")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "polar_h10_log_20260831_093000.csv"), path)

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Timestamp", "HeartRate"}, rows[0])
	assert.Equal(t, "72", rows[1][1])
	assert.Equal(t, "74", rows[2][1])
}

func TestExportECG(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := testSession("01ECGEXP")
	sess.Mode = domain.ModeECG
	sess.StartedAt = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession(ctx, sess))
	require.NoError(t, store.AppendECG(ctx, "01ECGEXP", domain.ECGBatch{
		Received: sess.StartedAt,
		Samples:  []domain.ECGSample{{Time: sess.StartedAt, Microvolts: -120.25}},
	}))

	dir := t.TempDir()
	exp := NewCSVExporter(store, dir, slog.Default())

	path, err := exp.ExportECG(ctx, "01ECGEXP")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "polar_h10_ecg_20260831_100000.csv"), path)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Timestamp", "Microvolts"}, rows[0])
	assert.Equal(t, "-120.25", rows[1][1])
}

func TestExportSessionPerMode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	exp := NewCSVExporter(store, t.TempDir(), slog.Default())

	hrSess := testSession("01MODEHR")
	require.NoError(t, store.CreateSession(ctx, hrSess))
	paths, err := exp.ExportSession(ctx, "01MODEHR")
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	ecgSess := testSession("01MODEECG")
	ecgSess.Mode = domain.ModeECG
	ecgSess.StartedAt = ecgSess.StartedAt.Add(time.Second)
	require.NoError(t, store.CreateSession(ctx, ecgSess))
	paths, err = exp.ExportSession(ctx, "01MODEECG")
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestExportUnknownSession(t *testing.T) {
	store := newTestStore(t)
	exp := NewCSVExporter(store, t.TempDir(), slog.Default())

	_, err := exp.ExportHeartRate(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
