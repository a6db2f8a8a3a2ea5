package gatt

import (
	"context"
	"fmt"
	"sync"

	"polarmon/internal/domain"
)

// MockBackend is a scriptable test double for Backend. Tests add devices,
// preload characteristic values, inject notifications, and force disconnects.
type MockBackend struct {
	mu      sync.Mutex
	devices map[string]*MockPeripheral
	order   []string

	// ConnectErr, when set, is returned by the next Connect call and cleared.
	ConnectErr error
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{devices: make(map[string]*MockPeripheral)}
}

// AddDevice registers a discoverable peripheral and returns it for scripting.
func (m *MockBackend) AddDevice(address, name string, rssi int) *MockPeripheral {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &MockPeripheral{
		info:   domain.DeviceInfo{Address: address, Name: name, RSSI: rssi, Connectable: true},
		chars:  make(map[string][]byte),
		subs:   make(map[string]NotificationHandler),
		closed: make(chan struct{}),
	}
	m.devices[address] = p
	m.order = append(m.order, address)
	return p
}

// Scan implements Backend: reports every registered device once, then waits
// for ctx to expire.
func (m *MockBackend) Scan(ctx context.Context, _ bool, h func(domain.DeviceInfo)) error {
	m.mu.Lock()
	infos := make([]domain.DeviceInfo, 0, len(m.order))
	for _, addr := range m.order {
		infos = append(infos, m.devices[addr].info)
	}
	m.mu.Unlock()

	for _, info := range infos {
		h(info)
	}
	<-ctx.Done()
	return nil
}

// Connect implements Backend: returns the first registered device accepted by
// filter, or blocks until ctx expires when none match.
func (m *MockBackend) Connect(ctx context.Context, filter func(domain.DeviceInfo) bool) (Peripheral, error) {
	m.mu.Lock()
	if err := m.ConnectErr; err != nil {
		m.ConnectErr = nil
		m.mu.Unlock()
		return nil, err
	}
	var match *MockPeripheral
	for _, addr := range m.order {
		if p := m.devices[addr]; filter(p.info) {
			match = p
			break
		}
	}
	m.mu.Unlock()

	if match == nil {
		<-ctx.Done()
		return nil, domain.NewDomainError("gatt.Connect", domain.ErrDeviceNotFound, "no matching advertisement")
	}
	match.reopen()
	return match, nil
}

// MockPeripheral is the connected-device half of MockBackend.
type MockPeripheral struct {
	info domain.DeviceInfo

	mu     sync.Mutex
	chars  map[string][]byte
	subs   map[string]NotificationHandler
	writes [][]byte
	closed chan struct{}
	down   bool
}

// SetCharacteristic preloads a readable characteristic value.
func (p *MockPeripheral) SetCharacteristic(uuid string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chars[NormalizeUUID(uuid)] = append([]byte(nil), data...)
}

// Notify delivers a notification to the subscriber of uuid, if any.
func (p *MockPeripheral) Notify(uuid string, data []byte) {
	p.mu.Lock()
	h := p.subs[NormalizeUUID(uuid)]
	p.mu.Unlock()
	if h != nil {
		h(data)
	}
}

// Subscribed reports whether uuid currently has a notification handler.
func (p *MockPeripheral) Subscribed(uuid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs[NormalizeUUID(uuid)] != nil
}

// Writes returns all payloads written to the peripheral, oldest first.
func (p *MockPeripheral) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// DropLink simulates an unexpected link loss.
func (p *MockPeripheral) DropLink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.down {
		p.down = true
		p.subs = make(map[string]NotificationHandler)
		close(p.closed)
	}
}

// reopen resets link state for a reconnect.
func (p *MockPeripheral) reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		p.down = false
		p.closed = make(chan struct{})
	}
}

func (p *MockPeripheral) Address() string { return p.info.Address }
func (p *MockPeripheral) Name() string    { return p.info.Name }

func (p *MockPeripheral) HasCharacteristic(uuid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.chars[NormalizeUUID(uuid)]
	return ok
}

func (p *MockPeripheral) Read(_ context.Context, uuid string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return nil, domain.ErrNotConnected
	}
	data, ok := p.chars[NormalizeUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("characteristic %s: %w", uuid, domain.ErrServiceMissing)
	}
	return append([]byte(nil), data...), nil
}

func (p *MockPeripheral) Write(_ context.Context, uuid string, data []byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return domain.ErrNotConnected
	}
	if _, ok := p.chars[NormalizeUUID(uuid)]; !ok {
		return fmt.Errorf("characteristic %s: %w", uuid, domain.ErrServiceMissing)
	}
	p.writes = append(p.writes, append([]byte(nil), data...))
	return nil
}

func (p *MockPeripheral) Subscribe(uuid string, _ bool, h NotificationHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return domain.ErrNotConnected
	}
	if _, ok := p.chars[NormalizeUUID(uuid)]; !ok {
		return fmt.Errorf("characteristic %s: %w", uuid, domain.ErrServiceMissing)
	}
	p.subs[NormalizeUUID(uuid)] = h
	return nil
}

func (p *MockPeripheral) Unsubscribe(uuid string, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, NormalizeUUID(uuid))
	return nil
}

func (p *MockPeripheral) Disconnected() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *MockPeripheral) Close() error {
	p.DropLink()
	return nil
}

var (
	_ Backend    = (*MockBackend)(nil)
	_ Peripheral = (*MockPeripheral)(nil)
)
