// Package storage persists sessions and measurement streams in SQLite and
// exports them to CSV files.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"polarmon/internal/domain"
)

// SQLiteStore implements domain.SampleStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sample db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sample db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			device_address TEXT NOT NULL,
			device_name    TEXT NOT NULL DEFAULT '',
			mode           TEXT NOT NULL,
			started_at     TEXT NOT NULL,
			ended_at       TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS hr_samples (
			session_id      TEXT NOT NULL REFERENCES sessions(id),
			time            TEXT NOT NULL,
			bpm             INTEGER NOT NULL,
			sensor_contact  INTEGER NOT NULL DEFAULT 0,
			energy_expended INTEGER NOT NULL DEFAULT 0,
			rr_intervals    TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_hr_session_time ON hr_samples(session_id, time);
		CREATE TABLE IF NOT EXISTS ecg_samples (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			time       TEXT NOT NULL,
			microvolts REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ecg_session_time ON ecg_samples(session_id, time)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, device_address, device_name, mode, started_at) VALUES (?, ?, ?, ?, ?)",
		sess.ID, sess.DeviceAddress, sess.DeviceName, string(sess.Mode),
		sess.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewDomainError("SQLiteStore.CreateSession", domain.ErrStorage, err.Error())
	}
	return nil
}

func (s *SQLiteStore) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ? WHERE id = ?",
		endedAt.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return domain.NewDomainError("SQLiteStore.EndSession", domain.ErrStorage, err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, device_address, device_name, mode, started_at, ended_at FROM sessions WHERE id = ?", id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	return sess, err
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, device_address, device_name, mode, started_at, ended_at FROM sessions ORDER BY started_at DESC",
	)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteStore.ListSessions", domain.ErrStorage, err.Error())
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) AppendHeartRate(ctx context.Context, sessionID string, smp domain.HeartRateSample) error {
	rrJSON, err := json.Marshal(rrMillis(smp.RRIntervals))
	if err != nil {
		return fmt.Errorf("marshal rr intervals: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO hr_samples (session_id, time, bpm, sensor_contact, energy_expended, rr_intervals) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, smp.Time.UTC().Format(time.RFC3339Nano), smp.BPM,
		boolInt(smp.SensorContact), smp.EnergyExpended, string(rrJSON),
	)
	if err != nil {
		return domain.NewDomainError("SQLiteStore.AppendHeartRate", domain.ErrStorage, err.Error())
	}
	return nil
}

// AppendECG writes a whole batch in one transaction; a frame is stored fully
// or not at all.
func (s *SQLiteStore) AppendECG(ctx context.Context, sessionID string, b domain.ECGBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewDomainError("SQLiteStore.AppendECG", domain.ErrStorage, err.Error())
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO ecg_samples (session_id, time, microvolts) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return domain.NewDomainError("SQLiteStore.AppendECG", domain.ErrStorage, err.Error())
	}
	defer stmt.Close()

	for _, smp := range b.Samples {
		if _, err := stmt.ExecContext(ctx,
			sessionID, smp.Time.UTC().Format(time.RFC3339Nano), smp.Microvolts); err != nil {
			tx.Rollback()
			return domain.NewDomainError("SQLiteStore.AppendECG", domain.ErrStorage, err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewDomainError("SQLiteStore.AppendECG", domain.ErrStorage, err.Error())
	}
	return nil
}

func (s *SQLiteStore) HeartRateSamples(ctx context.Context, sessionID string) ([]domain.HeartRateSample, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT time, bpm, sensor_contact, energy_expended, rr_intervals FROM hr_samples WHERE session_id = ? ORDER BY time",
		sessionID,
	)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteStore.HeartRateSamples", domain.ErrStorage, err.Error())
	}
	defer rows.Close()

	var samples []domain.HeartRateSample
	for rows.Next() {
		var smp domain.HeartRateSample
		var timeStr, rrStr string
		var contact int
		if err := rows.Scan(&timeStr, &smp.BPM, &contact, &smp.EnergyExpended, &rrStr); err != nil {
			return nil, err
		}
		smp.Time, _ = time.Parse(time.RFC3339Nano, timeStr)
		smp.SensorContact = contact != 0
		var millis []int64
		if err := json.Unmarshal([]byte(rrStr), &millis); err != nil {
			return nil, fmt.Errorf("unmarshal rr intervals: %w", err)
		}
		for _, ms := range millis {
			smp.RRIntervals = append(smp.RRIntervals, time.Duration(ms)*time.Millisecond)
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

func (s *SQLiteStore) ECGSamples(ctx context.Context, sessionID string) ([]domain.ECGSample, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT time, microvolts FROM ecg_samples WHERE session_id = ? ORDER BY time",
		sessionID,
	)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteStore.ECGSamples", domain.ErrStorage, err.Error())
	}
	defer rows.Close()

	var samples []domain.ECGSample
	for rows.Next() {
		var smp domain.ECGSample
		var timeStr string
		if err := rows.Scan(&timeStr, &smp.Microvolts); err != nil {
			return nil, err
		}
		smp.Time, _ = time.Parse(time.RFC3339Nano, timeStr)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var sess domain.Session
	var mode, startedStr, endedStr string
	if err := row.Scan(&sess.ID, &sess.DeviceAddress, &sess.DeviceName, &mode, &startedStr, &endedStr); err != nil {
		return nil, err
	}
	sess.Mode = domain.MonitorMode(mode)
	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if endedStr != "" {
		sess.EndedAt, _ = time.Parse(time.RFC3339Nano, endedStr)
	}
	return &sess, nil
}

func rrMillis(rr []time.Duration) []int64 {
	out := make([]int64, 0, len(rr))
	for _, d := range rr {
		out = append(out, d.Milliseconds())
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.SampleStore = (*SQLiteStore)(nil)
