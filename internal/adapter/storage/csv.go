package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"polarmon/internal/domain"
)

// csvTimestampLayout matches the log format external tooling expects.
const csvTimestampLayout = "2006-01-02 15:04:05.000"

// fileStampLayout names export files after the session start time.
const fileStampLayout = "20060102_150405"

// CSVExporter writes recorded sessions out as CSV files.
type CSVExporter struct {
	store domain.SampleStore
	dir   string
	log   *slog.Logger
}

// NewCSVExporter creates an exporter writing into dir, creating it on demand.
func NewCSVExporter(store domain.SampleStore, dir string, log *slog.Logger) *CSVExporter {
	return &CSVExporter{store: store, dir: dir, log: log}
}

// ExportHeartRate writes a session's heart-rate samples to
// polar_h10_log_<start>.csv and returns the file path.
func (e *CSVExporter) ExportHeartRate(ctx context.Context, sessionID string) (string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", domain.WrapOp("CSVExporter.ExportHeartRate", err)
	}
	samples, err := e.store.HeartRateSamples(ctx, sessionID)
	if err != nil {
		return "", domain.WrapOp("CSVExporter.ExportHeartRate", err)
	}

	name := fmt.Sprintf("polar_h10_log_%s.csv", sess.StartedAt.Format(fileStampLayout))
	rows := make([][]string, 0, len(samples)+1)
	rows = append(rows, []string{"Timestamp", "HeartRate"})
	for _, s := range samples {
		rows = append(rows, []string{
			s.Time.Format(csvTimestampLayout),
			strconv.Itoa(int(s.BPM)),
		})
	}
	return e.writeFile(name, rows)
}

// ExportECG writes a session's ECG trace to polar_h10_ecg_<start>.csv and
// returns the file path.
func (e *CSVExporter) ExportECG(ctx context.Context, sessionID string) (string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", domain.WrapOp("CSVExporter.ExportECG", err)
	}
	samples, err := e.store.ECGSamples(ctx, sessionID)
	if err != nil {
		return "", domain.WrapOp("CSVExporter.ExportECG", err)
	}

	name := fmt.Sprintf("polar_h10_ecg_%s.csv", sess.StartedAt.Format(fileStampLayout))
	rows := make([][]string, 0, len(samples)+1)
	rows = append(rows, []string{"Timestamp", "Microvolts"})
	for _, s := range samples {
		rows = append(rows, []string{
			s.Time.Format(csvTimestampLayout),
			strconv.FormatFloat(s.Microvolts, 'f', 2, 64),
		})
	}
	return e.writeFile(name, rows)
}

// ExportSession exports every stream the session's mode recorded and returns
// the written file paths.
func (e *CSVExporter) ExportSession(ctx context.Context, sessionID string) ([]string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapOp("CSVExporter.ExportSession", err)
	}

	hrPath, err := e.ExportHeartRate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	paths := []string{hrPath}

	if sess.Mode == domain.ModeECG {
		ecgPath, err := e.ExportECG(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		paths = append(paths, ecgPath)
	}
	return paths, nil
}

func (e *CSVExporter) writeFile(name string, rows [][]string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", domain.NewDomainError("CSVExporter.writeFile", domain.ErrExportFailed, err.Error())
	}
	path := filepath.Join(e.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", domain.NewDomainError("CSVExporter.writeFile", domain.ErrExportFailed, err.Error())
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return "", domain.NewDomainError("CSVExporter.writeFile", domain.ErrExportFailed, err.Error())
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", domain.NewDomainError("CSVExporter.writeFile", domain.ErrExportFailed, err.Error())
	}

	e.log.Info("csv export written", "path", path, "rows", len(rows)-1)
	return path, nil
}
