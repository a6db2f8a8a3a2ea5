package domain

import "time"

// MonitorMode selects which measurement streams a session records.
type MonitorMode string

const (
	ModeHR  MonitorMode = "hr"
	ModeECG MonitorMode = "ecg" // ECG implies HR as well
)

// Session is one recording run against a single device.
type Session struct {
	ID            string      `json:"id"` // ULID
	DeviceAddress string      `json:"device_address"`
	DeviceName    string      `json:"device_name,omitempty"`
	Mode          MonitorMode `json:"mode"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       time.Time   `json:"ended_at,omitempty"`
}

// Active reports whether the session is still recording.
func (s Session) Active() bool { return s.EndedAt.IsZero() }
