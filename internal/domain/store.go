package domain

import (
	"context"
	"time"
)

// SampleStore persists sessions and their measurement streams.
type SampleStore interface {
	// CreateSession records the start of a session.
	CreateSession(ctx context.Context, s *Session) error
	// EndSession stamps EndedAt on an active session.
	EndSession(ctx context.Context, id string, endedAt time.Time) error
	// GetSession returns a session by ID, or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns sessions newest-first.
	ListSessions(ctx context.Context) ([]*Session, error)

	// AppendHeartRate stores one heart-rate sample.
	AppendHeartRate(ctx context.Context, sessionID string, s HeartRateSample) error
	// AppendECG stores a decoded ECG batch in one transaction.
	AppendECG(ctx context.Context, sessionID string, b ECGBatch) error

	// HeartRateSamples returns all HR samples for a session in time order.
	HeartRateSamples(ctx context.Context, sessionID string) ([]HeartRateSample, error)
	// ECGSamples returns all ECG samples for a session in time order.
	ECGSamples(ctx context.Context, sessionID string) ([]ECGSample, error)

	Close() error
}
