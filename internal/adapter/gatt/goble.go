package gatt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"

	"polarmon/internal/domain"
)

// GobleBackend implements Backend on top of github.com/go-ble/ble.
type GobleBackend struct {
	log *slog.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewGobleBackend opens the platform HCI device and registers it as the
// default go-ble device.
func NewGobleBackend(log *slog.Logger) (*GobleBackend, error) {
	dev, err := newDevice()
	if err != nil {
		return nil, fmt.Errorf("open ble device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	return &GobleBackend{log: log, dev: dev}, nil
}

// Scan implements Backend. Context expiry is the normal way a scan ends and
// is not reported as an error.
func (b *GobleBackend) Scan(ctx context.Context, allowDup bool, h func(domain.DeviceInfo)) error {
	err := ble.Scan(ctx, allowDup, func(a ble.Advertisement) {
		h(advToInfo(a))
	}, nil)
	return squashCtxErr(err)
}

// Connect implements Backend.
func (b *GobleBackend) Connect(ctx context.Context, filter func(domain.DeviceInfo) bool) (Peripheral, error) {
	cln, err := ble.Connect(ctx, func(a ble.Advertisement) bool {
		return filter(advToInfo(a))
	})
	if err != nil {
		switch errors.Cause(err) {
		case context.DeadlineExceeded:
			return nil, domain.NewDomainError("gatt.Connect", domain.ErrDeviceNotFound, "scan timed out")
		case context.Canceled:
			return nil, ctx.Err()
		default:
			return nil, domain.NewDomainError("gatt.Connect", domain.ErrConnectFailed, err.Error())
		}
	}

	profile, err := cln.DiscoverProfile(true)
	if err != nil {
		cln.CancelConnection()
		return nil, domain.NewDomainError("gatt.Connect", domain.ErrConnectFailed, "discover profile: "+err.Error())
	}

	b.log.Debug("connected", "address", cln.Addr().String(), "services", len(profile.Services))
	return newGoblePeripheral(cln, profile), nil
}

// Close shuts down the HCI device.
func (b *GobleBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return nil
	}
	err := b.dev.Stop()
	b.dev = nil
	return err
}

func advToInfo(a ble.Advertisement) domain.DeviceInfo {
	return domain.DeviceInfo{
		Address:     a.Addr().String(),
		Name:        a.LocalName(),
		RSSI:        a.RSSI(),
		Connectable: a.Connectable(),
	}
}

// squashCtxErr maps context expiry (the normal end of a scan window) to nil.
func squashCtxErr(err error) error {
	switch errors.Cause(err) {
	case nil, context.DeadlineExceeded, context.Canceled:
		return nil
	default:
		return err
	}
}

type goblePeripheral struct {
	cln     ble.Client
	profile *ble.Profile

	mu    sync.Mutex
	chars map[string]*ble.Characteristic // normalized uuid -> characteristic
}

func newGoblePeripheral(cln ble.Client, profile *ble.Profile) *goblePeripheral {
	chars := make(map[string]*ble.Characteristic)
	for _, s := range profile.Services {
		for _, c := range s.Characteristics {
			chars[NormalizeUUID(c.UUID.String())] = c
		}
	}
	return &goblePeripheral{cln: cln, profile: profile, chars: chars}
}

func (p *goblePeripheral) Address() string { return p.cln.Addr().String() }
func (p *goblePeripheral) Name() string    { return p.cln.Name() }

func (p *goblePeripheral) HasCharacteristic(uuid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.chars[NormalizeUUID(uuid)]
	return ok
}

func (p *goblePeripheral) findChar(uuid string) (*ble.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.chars[NormalizeUUID(uuid)]
	if !ok {
		return nil, domain.NewDomainError("gatt.findChar", domain.ErrServiceMissing, uuid)
	}
	return c, nil
}

func (p *goblePeripheral) Read(_ context.Context, uuid string) ([]byte, error) {
	c, err := p.findChar(uuid)
	if err != nil {
		return nil, err
	}
	return p.cln.ReadCharacteristic(c)
}

func (p *goblePeripheral) Write(_ context.Context, uuid string, data []byte, noRsp bool) error {
	c, err := p.findChar(uuid)
	if err != nil {
		return err
	}
	return p.cln.WriteCharacteristic(c, data, noRsp)
}

func (p *goblePeripheral) Subscribe(uuid string, ind bool, h NotificationHandler) error {
	c, err := p.findChar(uuid)
	if err != nil {
		return err
	}
	return p.cln.Subscribe(c, ind, func(req []byte) { h(req) })
}

func (p *goblePeripheral) Unsubscribe(uuid string, ind bool) error {
	c, err := p.findChar(uuid)
	if err != nil {
		return err
	}
	return p.cln.Unsubscribe(c, ind)
}

func (p *goblePeripheral) Disconnected() <-chan struct{} {
	return p.cln.Disconnected()
}

func (p *goblePeripheral) Close() error {
	return p.cln.CancelConnection()
}

var (
	_ Backend    = (*GobleBackend)(nil)
	_ Peripheral = (*goblePeripheral)(nil)
)
