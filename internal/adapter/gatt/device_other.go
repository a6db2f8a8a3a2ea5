//go:build !linux && !darwin

package gatt

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func newDevice() (ble.Device, error) {
	return nil, fmt.Errorf("no ble device support on %s", runtime.GOOS)
}
