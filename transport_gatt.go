package meater

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fako1024/gatt"
)

const (
	probeInfoService                   = "180a"
	probeManufacturerCharacteristic    = "2a29"
	probeModelNumberCharacteristic     = "2a24"
	probeFirmwareVersionCharacteristic = "2a26"
	probeSoftwareVersionCharacteristic = "2a28"

	dataService           = "a75cc7fcc956488fac2a2dbc08b63a04"
	tempCharacteristic    = "7edda774045e4bbf909b45d1991a2876"
	batteryCharacteristic = "2adb487768d84884bd3cd83853bf27b8"
)

// frameBuffer bounds the number of undelivered notifications per connection
const frameBuffer = 32

// BLETransport connects to the probe via the system's Bluetooth stack. A
// single transport owns one gatt device and serves one connection at a time.
type BLETransport struct {
	btDevice gatt.Device
	logger   Logger

	mu      sync.Mutex
	current *bleConn

	initOnce sync.Once
	initErr  error
}

// NewBLETransport instantiates a new BLE transport, executing functional
// options, if any
func NewBLETransport(options ...func(*BLETransport)) (*BLETransport, error) {

	t := &BLETransport{
		logger: &NullLogger{},
	}

	for _, option := range options {
		option(t)
	}

	// Initialize a new GATT device (if not provided as option)
	if t.btDevice == nil {
		btDevice, err := gatt.NewDevice()
		if err != nil {
			return nil, err
		}
		t.btDevice = btDevice
	}

	return t, nil
}

// WithBLEDevice sets the Bluetooth device
func WithBLEDevice(btDevice gatt.Device) func(*BLETransport) {
	return func(t *BLETransport) {
		t.btDevice = btDevice
	}
}

// WithBLELogger sets a logger
func WithBLELogger(logger Logger) func(*BLETransport) {
	return func(t *BLETransport) {
		t.logger = logger
	}
}

// Connect scans for the probe, connects it and subscribes to its telemetry
// characteristics. The whole attempt is bounded by ctx.
func (t *BLETransport) Connect(ctx context.Context, identity DeviceIdentity) (Conn, error) {

	conn := newBLEConn(identity, t.logger)

	t.mu.Lock()
	t.current = conn
	t.mu.Unlock()

	// Register handlers and initialize the device on first use; subsequent
	// connects only need to re-enable scanning
	t.initOnce.Do(func() {
		t.btDevice.Handle(
			gatt.AddPeripheralDiscovered(t.onPeriphDiscovered),
			gatt.AddPeripheralConnected(t.onPeriphConnected),
			gatt.AddPeripheralDisconnected(t.onPeriphDisconnected),
		)
		t.initErr = t.btDevice.Init(t.onStateChanged)
	})
	if t.initErr != nil {
		return nil, t.initErr
	}

	if err := t.btDevice.Scan([]gatt.UUID{gatt.MustParseUUID(dataService)}, false); err != nil {
		t.logger.Debugf("failed to enable scanning: %s", err)
	}

	select {
	case <-conn.ready:
		return conn, nil
	case <-conn.terminated:
		return nil, conn.Err()
	case <-ctx.Done():
		t.mu.Lock()
		t.current = nil
		t.mu.Unlock()

		if err := t.btDevice.StopScanning(); err != nil {
			t.logger.Warnf("failed to stop scanning: %s", err)
		}
		conn.Close()
		return nil, ctx.Err()
	}
}

////////////////////////////////////////////////////////////////////////////////

func (t *BLETransport) conn() *bleConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *BLETransport) onStateChanged(d gatt.Device, s gatt.State) {
	switch s {
	case gatt.StatePoweredOn:
		if err := d.Scan([]gatt.UUID{gatt.MustParseUUID(dataService)}, false); err != nil {
			t.logger.Warnf("failed to enable initial scanning: %s", err)
		}
	default:
		if err := d.StopScanning(); err != nil {
			t.logger.Debugf("failed to stop scanning: %s", err)
		}
	}
}

func (t *BLETransport) onPeriphDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	conn := t.conn()
	if conn == nil || conn.isDone() || !conn.identity.Matches(p.Name(), p.ID()) {
		return
	}

	t.logger.Debugf("discovered probe `%s/%s`", p.Name(), p.ID())

	// Stop scanning once we've got the peripheral we're looking for
	if err := p.Device().StopScanning(); err != nil {
		t.logger.Warnf("failed to stop scanning: %s", err)
	}
	if err := p.Device().Connect(p); err != nil {
		t.logger.Errorf("failed to connect probe `%s/%s`: %s", p.Name(), p.ID(), err)
	}
}

func (t *BLETransport) onPeriphConnected(p gatt.Peripheral, connErr error) {
	conn := t.conn()
	if conn == nil || conn.isDone() || !conn.identity.Matches(p.Name(), p.ID()) {
		return
	}

	t.logger.Debugf("connected peripheral `%s/%s`", p.Name(), p.ID())

	defer func() {
		p.Device().CancelConnection(p)
		if connErr != nil {
			conn.finish(connErr)
		}
	}()

	if connErr != nil {
		return
	}
	if connErr = t.setup(p, conn); connErr != nil {
		return
	}

	conn.markReady()

	// Hold the peripheral until the connection is released
	t.logger.Debugf("waiting to release peripheral `%s/%s`", p.Name(), p.ID())
	<-conn.release
	t.logger.Debugf("released peripheral `%s/%s`", p.Name(), p.ID())
}

func (t *BLETransport) onPeriphDisconnected(p gatt.Peripheral, err error) {
	conn := t.conn()
	if conn == nil || !conn.identity.Matches(p.Name(), p.ID()) {
		return
	}

	t.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())

	if err == nil {
		err = ErrLinkLost
	}
	conn.Close()
	conn.finish(err)
}

// setup discovers the probe's services, reads its immutable information and
// subscribes to the telemetry characteristics
func (t *BLETransport) setup(p gatt.Peripheral, conn *bleConn) error {

	ss, err := p.DiscoverServices([]gatt.UUID{
		gatt.MustParseUUID(probeInfoService),
		gatt.MustParseUUID(dataService),
	})
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", err)
	}

	for _, s := range ss {
		switch s.UUID().String() {
		case probeInfoService:
			if err := readProbeInfo(p, s, conn); err != nil {
				return err
			}
		case dataService:
			if err := subscribeData(p, s, conn); err != nil {
				return err
			}
		}
	}

	return nil
}

func readProbeInfo(p gatt.Peripheral, s *gatt.Service, conn *bleConn) error {

	cs, err := p.DiscoverCharacteristics([]gatt.UUID{
		gatt.MustParseUUID(probeManufacturerCharacteristic),
		gatt.MustParseUUID(probeModelNumberCharacteristic),
		gatt.MustParseUUID(probeSoftwareVersionCharacteristic),
		gatt.MustParseUUID(probeFirmwareVersionCharacteristic),
	}, s)
	if err != nil {
		return fmt.Errorf("failed to discover probe info characteristics: %w", err)
	}

	var info ProbeInfo
	for _, c := range cs {

		rawData, err := readCharacteristic(p, c)
		if err != nil {
			return err
		}

		switch c.UUID().String() {
		case probeManufacturerCharacteristic:
			info.Manufacturer = string(rawData)
		case probeModelNumberCharacteristic:
			info.Model = string(rawData)
		case probeSoftwareVersionCharacteristic:
			info.SoftwareVersion = string(rawData)
		case probeFirmwareVersionCharacteristic:
			firmwareID := strings.Split(string(rawData), "_")
			if len(firmwareID) != 2 {
				return fmt.Errorf("failed to parse probe firmware / ID string (`%s`)", string(rawData))
			}

			info.FirmwareVersion = firmwareID[0]
			id, err := strconv.ParseInt(firmwareID[1], 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse numeric probe ID (`%s`)", firmwareID[1])
			}
			info.ID = int(id)
		}
	}

	conn.setInfo(info)
	return nil
}

func subscribeData(p gatt.Peripheral, s *gatt.Service, conn *bleConn) error {

	cs, err := p.DiscoverCharacteristics([]gatt.UUID{
		gatt.MustParseUUID(batteryCharacteristic),
		gatt.MustParseUUID(tempCharacteristic),
	}, s)
	if err != nil {
		return fmt.Errorf("failed to discover device data characteristics: %w", err)
	}

	for _, c := range cs {
		switch c.UUID().String() {
		case batteryCharacteristic:

			// Discover descriptors
			if _, err := p.DiscoverDescriptors(nil, c); err != nil {
				return fmt.Errorf("failed to discover battery data descriptors: %w", err)
			}

			// Read the battery level once so the first reading already
			// carries it, then subscribe to changes
			rawData, err := p.ReadCharacteristic(c)
			if err != nil {
				return fmt.Errorf("failed to read battery data: %w", err)
			}
			conn.push(Frame{Kind: FrameBattery, Data: append([]byte(nil), rawData...)})

			if err := p.SetNotifyValue(c, conn.onBatteryNotify); err != nil {
				return fmt.Errorf("failed to subscribe to battery data characteristic: %w", err)
			}

		case tempCharacteristic:
			if err := p.SetNotifyValue(c, conn.onTemperatureNotify); err != nil {
				return fmt.Errorf("failed to subscribe to temperature data characteristic: %w", err)
			}
		}
	}

	return nil
}

func readCharacteristic(p gatt.Peripheral, c *gatt.Characteristic) ([]byte, error) {

	// Discover descriptors
	if _, err := p.DiscoverDescriptors(nil, c); err != nil {
		return nil, fmt.Errorf("failed to discover descriptors: %w", err)
	}

	rawData, err := p.ReadLongCharacteristic(c)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.UUID().String(), err)
	}

	return rawData, nil
}

////////////////////////////////////////////////////////////////////////////////

// bleConn is one established connection to the probe. Notifications arrive on
// gatt's goroutines and are handed to the session via the frames channel.
type bleConn struct {
	identity DeviceIdentity
	logger   Logger

	frames     chan Frame
	ready      chan struct{}
	terminated chan struct{}
	release    chan struct{}

	readyOnce   sync.Once
	releaseOnce sync.Once

	mu   sync.Mutex
	done bool
	err  error
	info ProbeInfo
}

func newBLEConn(identity DeviceIdentity, logger Logger) *bleConn {
	return &bleConn{
		identity:   identity,
		logger:     logger,
		frames:     make(chan Frame, frameBuffer),
		ready:      make(chan struct{}),
		terminated: make(chan struct{}),
		release:    make(chan struct{}),
	}
}

// Frames fulfils the Conn interface
func (c *bleConn) Frames() <-chan Frame {
	return c.frames
}

// Info fulfils the Conn interface
func (c *bleConn) Info() ProbeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Err fulfils the Conn interface
func (c *bleConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close fulfils the Conn interface, releasing the held peripheral
func (c *bleConn) Close() error {
	c.releaseOnce.Do(func() { close(c.release) })
	return nil
}

func (c *bleConn) setInfo(info ProbeInfo) {
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}

func (c *bleConn) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *bleConn) isDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// finish terminates the frame stream with the given reason (first caller
// wins)
func (c *bleConn) finish(err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.err = err
	c.mu.Unlock()

	close(c.terminated)
	close(c.frames)
}

// push enqueues a received frame, preserving reception order. Frames are
// dropped (with a log line) if the session stops draining the channel.
func (c *bleConn) push(frame Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return
	}

	select {
	case c.frames <- frame:
	default:
		c.logger.Warnf("dropping %d byte frame, consumer not keeping up", len(frame.Data))
	}
}

func (c *bleConn) onTemperatureNotify(_ *gatt.Characteristic, req []byte, err error) {
	if err != nil {
		c.logger.Warnf("temperature notification error: %s", err)
		return
	}
	c.push(Frame{Kind: FrameTemperature, Data: append([]byte(nil), req...)})
}

func (c *bleConn) onBatteryNotify(_ *gatt.Characteristic, req []byte, err error) {
	if err != nil {
		c.logger.Warnf("battery notification error: %s", err)
		return
	}
	c.push(Frame{Kind: FrameBattery, Data: append([]byte(nil), req...)})
}
