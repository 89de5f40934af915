package meater

import (
	"context"
	"errors"
	"strings"
)

// DeviceIdentity identifies the physical probe to connect to, either by its
// transport address or by its advertised name. Immutable once discovered.
type DeviceIdentity struct {
	Address string
	Name    string
}

// Valid reports whether the identity can resolve to a device at all
func (d DeviceIdentity) Valid() bool {
	return d.Address != "" || d.Name != ""
}

// Matches reports whether a discovered peripheral name / address pair refers
// to this identity. A configured address takes precedence over the name.
func (d DeviceIdentity) Matches(name, address string) bool {
	if d.Address != "" && strings.EqualFold(address, d.Address) {
		return true
	}
	return d.Name != "" && strings.EqualFold(name, d.Name)
}

// String fulfils the Stringer interface
func (d DeviceIdentity) String() string {
	switch {
	case d.Name != "" && d.Address != "":
		return d.Name + "/" + d.Address
	case d.Address != "":
		return d.Address
	default:
		return d.Name
	}
}

// FrameKind denotes which notification characteristic a frame was received on
type FrameKind int

const (

	// FrameTemperature is an 8 byte temperature telemetry frame
	FrameTemperature FrameKind = iota

	// FrameBattery is a 2 byte battery level frame
	FrameBattery
)

// Frame is one raw notification payload received verbatim from the probe
type Frame struct {
	Kind FrameKind
	Data []byte
}

// ErrLinkLost is reported by Conn.Err when the connection terminated without
// a more specific transport error
var ErrLinkLost = errors.New("link to probe lost")

// Conn is an established, subscribed connection to the probe
type Conn interface {

	// Frames returns the stream of raw notification payloads in reception
	// order. The channel is closed when the connection terminates, Err then
	// reports why.
	Frames() <-chan Frame

	// Info returns immutable information about the connected probe
	Info() ProbeInfo

	// Err returns the reason the frame stream terminated
	Err() error

	// Close releases the connection and its transport resources
	Close() error
}

// Transport establishes connections to a probe. Implementations perform
// discovery, connection and notification subscription as one step bounded by
// the provided context.
type Transport interface {
	Connect(ctx context.Context, identity DeviceIdentity) (Conn, error)
}
