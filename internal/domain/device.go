package domain

// DeviceInfo describes a BLE device seen during scanning.
type DeviceInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name,omitempty"`
	RSSI        int    `json:"rssi,omitempty"`
	Connectable bool   `json:"connectable"`
}

// ConnectionState tracks the link to the sensor.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
