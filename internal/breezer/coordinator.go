package breezer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/atmeex-community/breeze-core/internal/cloud"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
)

// CloudClient is the coordinator's view of the Atmeex API client.
type CloudClient interface {
	GetDevices(ctx context.Context) ([]cloud.Device, error)
	GetDevice(ctx context.Context, deviceID string) (cloud.Device, error)

	SetPower(ctx context.Context, deviceID string, on bool) error
	SetFanSpeed(ctx context.Context, deviceID string, speed int) error
	SetMode(ctx context.Context, deviceID string, damperPos int) error
	SetTargetTemperature(ctx context.Context, deviceID string, tempC float64) error
	SetHumidifierStage(ctx context.Context, deviceID string, stage int) error
	SetAutoNanny(ctx context.Context, deviceID string, on bool) error
	SetSleepMode(ctx context.Context, deviceID string, on bool) error

	Retries() int64
	Reauths() int64
}

// Logger interface for structured logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Listener receives the full reconciled state set once per poll cycle
// (and after optimistic command updates), never per-field diffs.
// Listeners run synchronously on the publishing goroutine and must not
// call back into the coordinator's command or poll paths.
type Listener func(states map[string]DeviceState)

// Subscription identifies a registered listener for Unsubscribe.
type Subscription int

// Diagnostics is a read-only snapshot of the coordinator's cumulative
// counters, updated after each cycle and persisted across restarts.
type Diagnostics struct {
	SuccessfulPolls int64  `json:"successful_polls"`
	FailedPolls     int64  `json:"failed_polls"`
	Retries         int64  `json:"retries"`
	Reauths         int64  `json:"reauths"`
	LastErrorClass  string `json:"last_error_class"`
}

// Coordinator orchestrates polling, command execution and state
// publication for all devices of one account session.
//
// Thread Safety: all methods are safe for concurrent use. Command
// execution may interleave with an in-flight poll; the tracker keeps
// record/overlay atomic so a command recorded mid-poll either is or is
// not visible to that poll, never partially.
type Coordinator struct {
	client  CloudClient
	tracker *Tracker
	repo    Repository // nil disables persistence
	logger  Logger
	clock   clock.Clock

	mu        sync.RWMutex
	devices   map[string]Device
	states    map[string]DeviceState
	diag      Diagnostics
	listeners map[Subscription]Listener
	nextSub   Subscription
	interval  time.Duration
	running   bool
	stopped   bool

	// retryBase and reauthBase carry the counters restored at Start;
	// the client's process-local counters are added on top.
	retryBase  int64
	reauthBase int64

	// pubMu orders publications: snapshot copy and delivery happen as
	// one unit, so listeners never receive an older state set after a
	// newer one. Taken before c.mu, released after notify.
	pubMu sync.Mutex

	// pollInFlight enforces the skip-never-queue overlap policy.
	pollInFlight sync.Mutex
	pollBusy     bool

	// pollObserver, when set, receives the outcome of every completed
	// poll cycle (telemetry hook).
	pollObserver func(duration time.Duration, devices int, err error)

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCoordinator creates a coordinator. The repository may be nil, in
// which case device catalogue and diagnostics persistence is skipped
// (useful for tests). The clock is injected so tests can drive time.
func NewCoordinator(client CloudClient, tracker *Tracker, repo Repository, logger Logger, clk clock.Clock) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	return &Coordinator{
		client:    client,
		tracker:   tracker,
		repo:      repo,
		logger:    logger,
		clock:     clk,
		devices:   make(map[string]Device),
		states:    make(map[string]DeviceState),
		listeners: make(map[Subscription]Listener),
		interval:  config.ClampPollInterval(0),
	}
}

// Start begins periodic polling at the given interval, clamped to
// [3s, 60s]. Subsequent polls are scheduled interval seconds after the
// start of the previous cycle, not after its completion. A stopped
// coordinator cannot be restarted.
func (c *Coordinator) Start(ctx context.Context, interval time.Duration) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrCoordinatorStopped
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.interval = config.ClampPollInterval(interval)
	c.mu.Unlock()

	if c.repo != nil {
		if diag, err := c.repo.LoadDiagnostics(ctx); err == nil {
			c.mu.Lock()
			c.diag = diag
			c.retryBase = diag.Retries
			c.reauthBase = diag.Reauths
			c.mu.Unlock()
		} else {
			c.logger.Warn("Failed to restore diagnostics counters", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(runCtx)

	c.logger.Info("Coordinator started", "interval", c.Interval().String())
	return nil
}

// Stop cancels future polls and waits for an in-flight cycle to finish.
// Its result is discarded. Safe to call multiple times; once stopped
// the coordinator stays stopped and Start returns ErrCoordinatorStopped.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.running = false
		c.stopped = true
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
		c.logger.Info("Coordinator stopped")
	})
}

// run is the fixed-rate poll loop.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		cycleStart := c.clock.Now()
		if err := c.PollOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("Poll cycle failed", "error", err)
		}

		interval := c.Interval()
		wait := interval - c.clock.Since(cycleStart)
		// A cycle that overran its slot skips the due poll and waits
		// for the next aligned one; due cycles are never queued.
		for wait <= 0 {
			wait += interval
		}

		timer := c.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// PollOnce runs a single poll cycle: fetch, convert, overlay pending
// commands, publish, prune. A failed cycle leaves the previously
// published state untouched and increments the failure counter.
//
// Overlapping calls are skipped, never queued.
func (c *Coordinator) PollOnce(ctx context.Context) error {
	c.pollInFlight.Lock()
	if c.pollBusy {
		c.pollInFlight.Unlock()
		c.logger.Debug("Poll already in flight, skipping cycle")
		return nil
	}
	c.pollBusy = true
	c.pollInFlight.Unlock()
	defer func() {
		c.pollInFlight.Lock()
		c.pollBusy = false
		c.pollInFlight.Unlock()
	}()

	cycleStart := c.clock.Now()
	cloudDevices, err := c.client.GetDevices(ctx)
	now := c.clock.Now()

	if err != nil {
		c.recordFailure(ctx, err)
		c.observeCycle(now.Sub(cycleStart), 0, err)
		return err
	}
	if ctx.Err() != nil {
		// Torn down mid-cycle: discard the result.
		return ctx.Err()
	}

	var discovered []Device

	c.pubMu.Lock()
	c.mu.Lock()
	seen := make(map[string]bool, len(cloudDevices))
	for _, cd := range cloudDevices {
		seen[cd.ID] = true
		if _, known := c.devices[cd.ID]; !known {
			device := deviceFromCloud(cd, now)
			c.devices[cd.ID] = device
			discovered = append(discovered, device)
		}
		state := stateFromCloud(cd, now, SourcePoll)
		c.states[cd.ID] = c.tracker.ApplyOverlay(cd.ID, state, now)
	}

	// Devices missing from this response are retained and marked
	// offline, not dropped: transient cloud hiccups must not make
	// devices disappear.
	for id, prev := range c.states {
		if !seen[id] {
			prev.Online = false
			prev.ObservedAt = now
			prev.Source = SourcePoll
			c.states[id] = prev
		}
	}

	c.tracker.Prune(now)

	c.diag.SuccessfulPolls++
	c.diag.Retries = c.retryBase + c.client.Retries()
	c.diag.Reauths = c.reauthBase + c.client.Reauths()
	diag := c.diag
	states := c.copyStatesLocked()
	listeners := c.copyListenersLocked()
	c.mu.Unlock()

	c.notify(listeners, states)
	c.pubMu.Unlock()

	for _, device := range discovered {
		c.logger.Info("Discovered device",
			"device_id", device.ID,
			"name", device.Name,
			"model_class", string(device.Model),
			"has_humidifier", device.HasHumidifier,
		)
		c.persistDevice(ctx, device)
	}
	c.persistDiagnostics(ctx, diag)
	c.observeCycle(c.clock.Since(cycleStart), len(cloudDevices), nil)
	return nil
}

// ExecuteCommand validates a command, sends it to the cloud and records
// it as pending for overlay. On failure nothing is recorded and the
// error is surfaced to the caller.
func (c *Coordinator) ExecuteCommand(ctx context.Context, deviceID string, field Field, value any) error {
	if err := validateCommand(field, value); err != nil {
		return err
	}

	c.mu.RLock()
	_, known := c.devices[deviceID]
	c.mu.RUnlock()
	if !known {
		return ErrDeviceNotFound
	}

	if err := c.sendCommand(ctx, deviceID, field, value); err != nil {
		if cloud.IsRejected(err) {
			return &ValidationError{Field: field, Value: value,
				Message: "rejected by device cloud"}
		}
		return err
	}

	now := c.clock.Now()

	// Record and optimistic publish happen under pubMu so a concurrent
	// poll either overlays the new command or publishes strictly before
	// it, never delivering the pre-command value afterwards.
	c.pubMu.Lock()
	c.tracker.Record(deviceID, field, value, now)

	c.mu.Lock()
	if state, ok := c.states[deviceID]; ok {
		state = state.withField(field, value)
		state.ObservedAt = now
		state.Source = SourceOptimistic
		c.states[deviceID] = state
	}
	states := c.copyStatesLocked()
	listeners := c.copyListenersLocked()
	c.mu.Unlock()

	c.notify(listeners, states)
	c.pubMu.Unlock()
	return nil
}

// sendCommand dispatches a validated command to the API client.
func (c *Coordinator) sendCommand(ctx context.Context, deviceID string, field Field, value any) error {
	switch field {
	case FieldPower:
		return c.client.SetPower(ctx, deviceID, value.(bool))
	case FieldFanSpeed:
		return c.client.SetFanSpeed(ctx, deviceID, value.(int))
	case FieldMode:
		return c.client.SetMode(ctx, deviceID, int(value.(Mode)))
	case FieldTargetTemp:
		return c.client.SetTargetTemperature(ctx, deviceID, value.(float64))
	case FieldHumidifierStage:
		return c.client.SetHumidifierStage(ctx, deviceID, int(value.(HumidifierStage)))
	case FieldAutoNanny:
		return c.client.SetAutoNanny(ctx, deviceID, value.(bool))
	case FieldSleepMode:
		return c.client.SetSleepMode(ctx, deviceID, value.(bool))
	default:
		return ErrUnknownField
	}
}

// RefreshDevice re-reads a single device over REST and publishes the
// overlaid result. Used after commands when immediate confirmation is
// wanted instead of waiting for the next full poll.
func (c *Coordinator) RefreshDevice(ctx context.Context, deviceID string) error {
	return c.refreshDevice(ctx, deviceID, SourcePoll)
}

// HandlePushMessage feeds a WebSocket push update through the same
// single-device refresh path, tagged with the push source.
func (c *Coordinator) HandlePushMessage(ctx context.Context, deviceID string) {
	if err := c.refreshDevice(ctx, deviceID, SourcePush); err != nil && ctx.Err() == nil {
		c.logger.Warn("Push-triggered refresh failed",
			"device_id", deviceID,
			"error", err,
		)
	}
}

func (c *Coordinator) refreshDevice(ctx context.Context, deviceID string, source Source) error {
	cd, err := c.client.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	now := c.clock.Now()

	var discoveredDevice *Device

	c.pubMu.Lock()
	c.mu.Lock()
	if _, known := c.devices[cd.ID]; !known {
		device := deviceFromCloud(cd, now)
		c.devices[cd.ID] = device
		discoveredDevice = &device
	}
	state := stateFromCloud(cd, now, source)
	c.states[cd.ID] = c.tracker.ApplyOverlay(cd.ID, state, now)
	states := c.copyStatesLocked()
	listeners := c.copyListenersLocked()
	c.mu.Unlock()

	c.notify(listeners, states)
	c.pubMu.Unlock()

	if discoveredDevice != nil {
		c.persistDevice(ctx, *discoveredDevice)
	}
	return nil
}

// SetPollObserver installs a telemetry callback invoked after every
// completed poll cycle with its duration, the device count, and the
// error when the cycle failed. Set before Start; not synchronised.
func (c *Coordinator) SetPollObserver(fn func(duration time.Duration, devices int, err error)) {
	c.pollObserver = fn
}

func (c *Coordinator) observeCycle(duration time.Duration, devices int, err error) {
	if c.pollObserver != nil {
		c.pollObserver(duration, devices, err)
	}
}

// Subscribe registers a listener for reconciled state publications.
func (c *Coordinator) Subscribe(l Listener) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	sub := c.nextSub
	c.listeners[sub] = l
	return sub
}

// Unsubscribe removes a previously registered listener.
func (c *Coordinator) Unsubscribe(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, sub)
}

// SetInterval changes the poll interval, clamped to [3s, 60s]. Takes
// effect when the next poll is scheduled.
func (c *Coordinator) SetInterval(interval time.Duration) {
	clamped := config.ClampPollInterval(interval)
	c.mu.Lock()
	c.interval = clamped
	c.mu.Unlock()
	c.logger.Info("Poll interval changed", "interval", clamped.String())
}

// Interval returns the current poll interval.
func (c *Coordinator) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// States returns a copy of the current reconciled state set.
func (c *Coordinator) States() map[string]DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyStatesLocked()
}

// State returns the reconciled state of one device.
func (c *Coordinator) State(deviceID string) (DeviceState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[deviceID]
	if !ok {
		return DeviceState{}, ErrDeviceNotFound
	}
	return state, nil
}

// Devices returns the discovered device catalogue.
func (c *Coordinator) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	devices := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	return devices
}

// Device returns one catalogue record.
func (c *Coordinator) Device(deviceID string) (Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	device, ok := c.devices[deviceID]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return device, nil
}

// Diagnostics returns a snapshot of the cumulative counters.
func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	diag := c.diag
	diag.Retries = c.retryBase + c.client.Retries()
	diag.Reauths = c.reauthBase + c.client.Reauths()
	return diag
}

// recordFailure classifies a poll error, bumps the failure counter and
// persists the counters. Previously published state stays untouched.
func (c *Coordinator) recordFailure(ctx context.Context, err error) {
	c.mu.Lock()
	c.diag.FailedPolls++
	c.diag.Retries = c.retryBase + c.client.Retries()
	c.diag.Reauths = c.reauthBase + c.client.Reauths()
	c.diag.LastErrorClass = classifyError(err)
	diag := c.diag
	c.mu.Unlock()

	c.persistDiagnostics(ctx, diag)
}

func (c *Coordinator) persistDevice(ctx context.Context, device Device) {
	if c.repo == nil || ctx.Err() != nil {
		return
	}
	if err := c.repo.Upsert(ctx, device); err != nil {
		c.logger.Warn("Failed to persist device", "device_id", device.ID, "error", err)
	}
}

func (c *Coordinator) persistDiagnostics(ctx context.Context, diag Diagnostics) {
	if c.repo == nil || ctx.Err() != nil {
		return
	}
	if err := c.repo.SaveDiagnostics(ctx, diag); err != nil {
		c.logger.Warn("Failed to persist diagnostics", "error", err)
	}
}

// notify fans the full reconciled set out to listeners. Listener
// panics are contained so one bad consumer cannot kill the poll loop.
func (c *Coordinator) notify(listeners []Listener, states map[string]DeviceState) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Subscriber panic recovered", "panic", r)
				}
			}()
			l(states)
		}()
	}
}

// copyStatesLocked clones the state map. Callers hold c.mu.
func (c *Coordinator) copyStatesLocked() map[string]DeviceState {
	states := make(map[string]DeviceState, len(c.states))
	for id, s := range c.states {
		states[id] = s
	}
	return states
}

// copyListenersLocked snapshots the listener set. Callers hold c.mu.
func (c *Coordinator) copyListenersLocked() []Listener {
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}

// classifyError maps an error to the diagnostics error class.
func classifyError(err error) string {
	var authErr *cloud.AuthError
	if errors.As(err, &authErr) {
		return "auth"
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return "validation"
	}
	var apiErr *cloud.APIError
	if errors.As(err, &apiErr) {
		return "api"
	}
	return "unknown"
}
