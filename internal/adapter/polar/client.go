// Package polar talks to a Polar H10 chest strap over a gatt.Backend. It
// decodes the standard Heart Rate Measurement characteristic and Polar's
// proprietary PMD ECG stream, and supervises the link: a data watchdog and a
// reconnect loop with exponential backoff keep streams alive across BLE
// dropouts.
package polar

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker/v2"

	"polarmon/internal/adapter/gatt"
	"polarmon/internal/domain"
)

// Config holds connection and supervision settings for a Client.
type Config struct {
	// Address pins the client to one device. Empty means match by name.
	Address string
	// NameFilter is the advertised-name prefix used when Address is empty.
	NameFilter string
	// ConnectTimeout bounds a single scan-and-connect attempt.
	ConnectTimeout time.Duration
	// WatchdogTimeout triggers a reconnect when an active stream goes
	// silent for this long.
	WatchdogTimeout time.Duration
	// ReconnectAttempts caps connect retries per cycle.
	ReconnectAttempts int
	// ReconnectBaseDelay and ReconnectMaxDelay bound the backoff between
	// attempts.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

// Client manages one Polar H10 connection and its notification streams.
type Client struct {
	cfg     Config
	backend gatt.Backend
	bus     domain.EventBus
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker[struct{}]

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	wg         sync.WaitGroup

	lastDataNanos atomic.Int64

	mu         sync.Mutex
	per        gatt.Peripheral
	state      domain.ConnectionState
	hrHandler  func(domain.HeartRateSample)
	ecgHandler func(domain.ECGBatch)
	closing    bool

	fatal chan error
}

// NewClient creates a client. The bus may be nil when no event fan-out is
// wanted, e.g. in the doctor command.
func NewClient(cfg Config, backend gatt.Backend, bus domain.EventBus, log *slog.Logger) *Client {
	c := &Client{
		cfg:     cfg,
		backend: backend,
		bus:     bus,
		log:     log,
		state:   domain.StateDisconnected,
		fatal:   make(chan error, 1),
	}
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "polar-reconnect",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// State returns the current connection state.
func (c *Client) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DeviceInfo returns the address and name of the connected peripheral.
func (c *Client) DeviceInfo() (address, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.per == nil {
		return "", ""
	}
	return c.per.Address(), c.per.Name()
}

// Fatal reports unrecoverable failures from the link supervisor, such as an
// exhausted reconnect cycle. At most one error is delivered.
func (c *Client) Fatal() <-chan error { return c.fatal }

// LastData returns the time the last notification arrived.
func (c *Client) LastData() time.Time {
	return time.Unix(0, c.lastDataNanos.Load())
}

func (c *Client) touch() { c.lastDataNanos.Store(time.Now().UnixNano()) }

func (c *Client) match(d domain.DeviceInfo) bool {
	if c.cfg.Address != "" {
		return strings.EqualFold(d.Address, c.cfg.Address)
	}
	return strings.HasPrefix(d.Name, c.cfg.NameFilter)
}

// Connect scans for a matching device and establishes a connection, retrying
// with exponential backoff. A device missing the heart-rate or PMD service is
// rejected without retrying.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = domain.StateConnecting
	c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		c.mu.Lock()
		c.state = domain.StateDisconnected
		c.mu.Unlock()
		return domain.WrapOp("Client.Connect", err)
	}
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	err := retry.Do(
		func() error {
			cctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
			defer cancel()

			per, err := c.backend.Connect(cctx, c.match)
			if err != nil {
				return err
			}
			if err := validatePeripheral(per); err != nil {
				_ = per.Close()
				return retry.Unrecoverable(err)
			}

			c.mu.Lock()
			c.per = per
			c.state = domain.StateConnected
			c.mu.Unlock()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.ReconnectAttempts)),
		retry.Delay(c.cfg.ReconnectBaseDelay),
		retry.MaxDelay(c.cfg.ReconnectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("connect attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return err
	}

	addr, name := c.DeviceInfo()
	c.log.Info("device connected", "address", addr, "name", name)
	c.touch()
	c.publish(domain.EventDeviceConnected, devicePayload{Address: addr, Name: name})
	c.startSupervisor()
	return nil
}

// validatePeripheral checks the device exposes the services the monitor needs.
func validatePeripheral(per gatt.Peripheral) error {
	if !per.HasCharacteristic(HeartRateMeasurementUUID) {
		return domain.NewDomainError("polar.validate", domain.ErrServiceMissing,
			"heart rate measurement characteristic not found")
	}
	if !per.HasCharacteristic(PMDControlUUID) || !per.HasCharacteristic(PMDDataUUID) {
		return domain.NewDomainError("polar.validate", domain.ErrServiceMissing,
			"pmd control or data characteristic not found")
	}
	return nil
}

type devicePayload struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type streamErrorPayload struct {
	Code   domain.ErrorCode `json:"code"`
	Detail string           `json:"detail"`
}

func (c *Client) publish(t domain.EventType, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(c.lifeCtx, domain.NewEvent(t, "", payload))
}

func (c *Client) startSupervisor() {
	c.mu.Lock()
	per := c.per
	c.mu.Unlock()
	if per == nil {
		return
	}
	c.wg.Add(1)
	go c.supervise(per)
}

// supervise watches one connection for link loss and data silence. It exits
// when the client closes or after handing off to a reconnect cycle.
func (c *Client) supervise(per gatt.Peripheral) {
	defer c.wg.Done()

	// Poll at half the watchdog timeout for short timeouts, once a second
	// otherwise, so silence is noticed within one timeout period.
	tick := time.Second
	if c.cfg.WatchdogTimeout > 0 && c.cfg.WatchdogTimeout < 2*time.Second {
		tick = c.cfg.WatchdogTimeout / 2
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.lifeCtx.Done():
			return
		case <-per.Disconnected():
			c.log.Warn("link lost", "address", per.Address())
			c.recover()
			return
		case <-ticker.C:
			if !c.streaming() {
				continue
			}
			if time.Since(c.LastData()) > c.cfg.WatchdogTimeout {
				c.log.Warn("watchdog: no data from device",
					"timeout", c.cfg.WatchdogTimeout)
				c.publish(domain.EventWatchdogDataTimeout,
					devicePayload{Address: per.Address()})
				_ = per.Close()
				c.recover()
				return
			}
		}
	}
}

func (c *Client) streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hrHandler != nil || c.ecgHandler != nil
}

// recover runs one reconnect cycle and restores any active streams. Repeated
// cycle failures trip the circuit breaker, which then fails fast until its
// cool-down elapses.
func (c *Client) recover() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.state = domain.StateReconnecting
	c.per = nil
	hadHR := c.hrHandler != nil
	hadECG := c.ecgHandler != nil
	c.mu.Unlock()

	c.publish(domain.EventDeviceReconnecting, nil)

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.connect(c.lifeCtx)
	})
	if err != nil {
		c.mu.Lock()
		c.state = domain.StateDisconnected
		c.mu.Unlock()
		giveUp := domain.NewDomainError("Client.recover", domain.ErrReconnectGaveUp, err.Error())
		c.publish(domain.EventStreamError, streamErrorPayload{
			Code:   domain.ErrorCodeOf(giveUp),
			Detail: giveUp.Error(),
		})
		c.fail(giveUp)
		return
	}

	c.mu.Lock()
	per := c.per
	c.mu.Unlock()

	if hadHR {
		if err := c.subscribeHR(per); err != nil {
			c.log.Error("failed to restore heart rate stream", "error", err)
		}
	}
	if hadECG {
		if err := c.startECGStream(per); err != nil {
			c.log.Error("failed to restore ecg stream", "error", err)
		}
	}
}

func (c *Client) fail(err error) {
	select {
	case c.fatal <- err:
	default:
	}
}

// StartHeartRate subscribes to heart-rate notifications, delivering decoded
// samples to h. The subscription survives reconnects until StopHeartRate or
// Close.
func (c *Client) StartHeartRate(ctx context.Context, h func(domain.HeartRateSample)) error {
	_ = ctx

	c.mu.Lock()
	if c.hrHandler != nil {
		c.mu.Unlock()
		return domain.NewDomainError("Client.StartHeartRate", domain.ErrAlreadyStreaming, "heart rate")
	}
	per := c.per
	if per == nil {
		c.mu.Unlock()
		return domain.WrapOp("Client.StartHeartRate", domain.ErrNotConnected)
	}
	c.hrHandler = h
	c.mu.Unlock()

	if err := c.subscribeHR(per); err != nil {
		c.mu.Lock()
		c.hrHandler = nil
		c.mu.Unlock()
		return domain.WrapOp("Client.StartHeartRate", err)
	}
	return nil
}

func (c *Client) subscribeHR(per gatt.Peripheral) error {
	return per.Subscribe(HeartRateMeasurementUUID, false, func(data []byte) {
		c.touch()
		s, err := ParseHeartRate(data, time.Now())
		if err != nil {
			c.log.Warn("dropping heart rate notification", "error", err)
			c.publish(domain.EventStreamError, streamErrorPayload{
				Code:   domain.ErrorCodeOf(err),
				Detail: err.Error(),
			})
			return
		}
		c.mu.Lock()
		h := c.hrHandler
		c.mu.Unlock()
		if h != nil {
			h(s)
		}
	})
}

// StopHeartRate cancels the heart-rate subscription. Stopping when no stream
// is active is a no-op.
func (c *Client) StopHeartRate() error {
	c.mu.Lock()
	per := c.per
	active := c.hrHandler != nil
	c.hrHandler = nil
	c.mu.Unlock()
	if per == nil || !active {
		return nil
	}
	return domain.WrapOp("Client.StopHeartRate",
		per.Unsubscribe(HeartRateMeasurementUUID, false))
}

// StartECG begins the PMD ECG stream, delivering decoded batches to h. Like
// the heart-rate stream it is restored automatically after a reconnect.
func (c *Client) StartECG(ctx context.Context, h func(domain.ECGBatch)) error {
	_ = ctx

	c.mu.Lock()
	if c.ecgHandler != nil {
		c.mu.Unlock()
		return domain.NewDomainError("Client.StartECG", domain.ErrAlreadyStreaming, "ecg")
	}
	per := c.per
	if per == nil {
		c.mu.Unlock()
		return domain.WrapOp("Client.StartECG", domain.ErrNotConnected)
	}
	c.ecgHandler = h
	c.mu.Unlock()

	if err := c.startECGStream(per); err != nil {
		c.mu.Lock()
		c.ecgHandler = nil
		c.mu.Unlock()
		return domain.WrapOp("Client.StartECG", err)
	}
	return nil
}

func (c *Client) startECGStream(per gatt.Peripheral) error {
	// Control point responses arrive as indications; they only matter for
	// diagnostics, so a failed subscribe is not fatal.
	if err := per.Subscribe(PMDControlUUID, true, func(data []byte) {
		c.log.Debug("pmd control response", "data", data)
	}); err != nil {
		c.log.Warn("pmd control subscribe failed", "error", err)
	}

	wctx, cancel := context.WithTimeout(c.lifeCtx, 5*time.Second)
	defer cancel()
	if err := per.Write(wctx, PMDControlUUID, ECGStartCommand, false); err != nil {
		return err
	}

	return per.Subscribe(PMDDataUUID, false, func(data []byte) {
		c.touch()
		batch, ok, err := ParseECGFrame(data, time.Now())
		if err != nil {
			c.log.Warn("dropping pmd frame", "error", err)
			c.publish(domain.EventStreamError, streamErrorPayload{
				Code:   domain.ErrorCodeOf(err),
				Detail: err.Error(),
			})
			return
		}
		if !ok {
			return
		}
		c.mu.Lock()
		h := c.ecgHandler
		c.mu.Unlock()
		if h != nil {
			h(batch)
		}
	})
}

// StopECG ends the PMD ECG stream. The stop command is best effort; the
// subscription is torn down regardless. Stopping when no stream is active is
// a no-op.
func (c *Client) StopECG() error {
	c.mu.Lock()
	per := c.per
	active := c.ecgHandler != nil
	c.ecgHandler = nil
	c.mu.Unlock()
	if per == nil || !active {
		return nil
	}

	wctx, cancel := context.WithTimeout(c.lifeCtx, 5*time.Second)
	defer cancel()
	if err := per.Write(wctx, PMDControlUUID, ECGStopCommand, false); err != nil {
		c.log.Warn("pmd stop command failed", "error", err)
	}
	_ = per.Unsubscribe(PMDControlUUID, true)
	return domain.WrapOp("Client.StopECG", per.Unsubscribe(PMDDataUUID, false))
}

// Close tears down the connection and stops the supervisor. The client cannot
// be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	per := c.per
	c.per = nil
	c.hrHandler = nil
	c.ecgHandler = nil
	c.state = domain.StateDisconnecting
	c.mu.Unlock()

	c.lifeCancel()
	var err error
	if per != nil {
		err = per.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = domain.StateDisconnected
	c.mu.Unlock()
	c.publishClosed(per)
	return domain.WrapOp("Client.Close", err)
}

func (c *Client) publishClosed(per gatt.Peripheral) {
	// No event when there was no connection to close.
	if c.bus == nil || per == nil {
		return
	}
	// lifeCtx is cancelled by now; publish with a fresh context.
	c.bus.Publish(context.Background(),
		domain.NewEvent(domain.EventDeviceDisconnected, "",
			devicePayload{Address: per.Address()}))
}
