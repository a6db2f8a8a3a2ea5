// Package gatt abstracts the BLE host stack behind a small client-side
// interface so the device layer and its tests do not depend on real hardware.
package gatt

import (
	"context"
	"strings"

	"polarmon/internal/domain"
)

// NotificationHandler receives raw characteristic notification payloads.
// Handlers run on the stack's notification goroutine and must not block.
type NotificationHandler func(data []byte)

// Backend is the client side of a BLE host stack.
type Backend interface {
	// Scan reports advertisements to h until ctx is done. Duplicate
	// advertisements are filtered unless allowDup is set.
	Scan(ctx context.Context, allowDup bool, h func(domain.DeviceInfo)) error

	// Connect scans for an advertisement accepted by filter, dials it, and
	// discovers the full GATT profile.
	Connect(ctx context.Context, filter func(domain.DeviceInfo) bool) (Peripheral, error)
}

// Peripheral is an established connection to a remote device.
type Peripheral interface {
	// Address is the platform-specific peripheral ID (MAC on Linux, UUID on macOS).
	Address() string
	Name() string

	// HasCharacteristic reports whether the discovered profile contains the
	// characteristic with the given UUID (any canonical string form).
	HasCharacteristic(uuid string) bool

	Read(ctx context.Context, uuid string) ([]byte, error)
	Write(ctx context.Context, uuid string, data []byte, noRsp bool) error

	// Subscribe registers h for notifications (or indications when ind is set)
	// of the characteristic.
	Subscribe(uuid string, ind bool, h NotificationHandler) error
	Unsubscribe(uuid string, ind bool) error

	// Disconnected is closed when the link drops, expectedly or not.
	Disconnected() <-chan struct{}

	// Close cancels the connection. Safe to call more than once.
	Close() error
}

// NormalizeUUID canonicalizes a UUID string for map lookups: lower-case,
// no dashes. "180D", "180d" and the long registered form all normalize
// consistently.
func NormalizeUUID(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}
