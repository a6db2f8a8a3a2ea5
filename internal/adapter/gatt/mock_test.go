package gatt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polarmon/internal/domain"
)

func TestNormalizeUUID(t *testing.T) {
	assert.Equal(t, "2a37", NormalizeUUID("2A37"))
	assert.Equal(t,
		"fb005c8002e7f3871cad8acd2d8df0c8",
		NormalizeUUID("FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8"))
}

func TestMockScanReportsDevices(t *testing.T) {
	m := NewMockBackend()
	m.AddDevice("aa:bb", "Polar H10 12345", -60)
	m.AddDevice("cc:dd", "Other", -80)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var seen []domain.DeviceInfo
	err := m.Scan(ctx, false, func(d domain.DeviceInfo) { seen = append(seen, d) })
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, "Polar H10 12345", seen[0].Name)
}

func TestMockConnectFiltersAndScriptsChars(t *testing.T) {
	m := NewMockBackend()
	dev := m.AddDevice("aa:bb", "Polar H10 12345", -60)
	dev.SetCharacteristic("2a37", nil)

	p, err := m.Connect(context.Background(), func(d domain.DeviceInfo) bool {
		return d.Name == "Polar H10 12345"
	})
	require.NoError(t, err)
	require.True(t, p.HasCharacteristic("2A37"))

	var got []byte
	require.NoError(t, p.Subscribe("2a37", false, func(data []byte) { got = data }))
	dev.Notify("2a37", []byte{0x00, 0x48})
	assert.Equal(t, []byte{0x00, 0x48}, got)
}

func TestMockDropLinkClosesDisconnected(t *testing.T) {
	m := NewMockBackend()
	dev := m.AddDevice("aa:bb", "Polar H10", -60)

	p, err := m.Connect(context.Background(), func(domain.DeviceInfo) bool { return true })
	require.NoError(t, err)

	dev.DropLink()
	select {
	case <-p.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("Disconnected channel did not close")
	}

	_, err = p.Read(context.Background(), "2a37")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestMockConnectNoMatchTimesOut(t *testing.T) {
	m := NewMockBackend()
	m.AddDevice("aa:bb", "Other", -60)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Connect(ctx, func(d domain.DeviceInfo) bool { return d.Name == "Polar H10" })
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}
