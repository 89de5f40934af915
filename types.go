//go:generate stringer -type=State -trimprefix=State
package meater

import (
	"fmt"
	"time"
)

// State denotes a link session state
type State int

const (

	// StateDisconnected is active before the first connection attempt
	StateDisconnected State = iota

	// StateConnecting is active while discovering and connecting the probe
	StateConnecting

	// StateConnected is active while subscribed to the probe's telemetry
	StateConnected

	// StateReconnecting is active while waiting to re-attempt a lost connection
	StateReconnecting

	// StateFailed is terminal, reached on an unrecoverable configuration error
	StateFailed
)

// ConnectionStatus denotes the current status of the link to the probe
type ConnectionStatus struct {
	Error error
	State
}

// String fulfils the Stringer interface
func (c ConnectionStatus) String() string {
	if c.Error != nil {
		return fmt.Sprintf("%s (%s)", c.State, c.Error)
	}
	return c.State.String()
}

// ProbeInfo denotes immutable information about the probe
type ProbeInfo struct {
	ID int

	Manufacturer    string
	Model           string
	SoftwareVersion string
	FirmwareVersion string
}

// Reading denotes a calibrated telemetry sample at a certain point in time
type Reading struct {
	TimeStamp          time.Time
	TemperatureTip     float64
	TemperatureAmbient float64
	BatteryFraction    float64
}

// String fulfils the Stringer interface
func (r *Reading) String() string {
	return fmt.Sprintf("Tip: %.1f°C, Ambient: %.1f°C, Battery: %.0f %%",
		r.TemperatureTip, r.TemperatureAmbient, r.BatteryFraction*100)
}

// Event is an item on the session's event stream. The stream is the sole
// source of truth for connectivity and telemetry; consumers branch on the
// concrete type.
type Event interface {
	event()
}

// ReadingEvent carries a decoded telemetry reading
type ReadingEvent struct {
	Reading Reading
}

// DecodeFailedEvent reports a telemetry frame that could not be decoded. The
// connection stays up and subsequent frames are still delivered.
type DecodeFailedEvent struct {
	Err error
}

// StateChangeEvent reports a link state transition
type StateChangeEvent struct {
	Status ConnectionStatus
}

func (ReadingEvent) event()      {}
func (DecodeFailedEvent) event() {}
func (StateChangeEvent) event()  {}
