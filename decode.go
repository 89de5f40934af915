package meater

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Fixed frame sizes of the two telemetry notification payloads
const (
	temperatureFrameSize = 8
	batteryFrameSize     = 2
)

// ErrMalformedFrame is returned when a notification payload does not match
// the fixed frame size of its characteristic
var ErrMalformedFrame = errors.New("malformed frame")

// TemperatureSample denotes the calibrated content of one temperature frame
type TemperatureSample struct {
	Tip     float64
	Ambient float64
}

// DecodeTemperature decodes an 8 byte temperature frame into calibrated tip
// and ambient temperatures. The frame carries three little-endian uint16
// fields (tip, RA, OA) at offsets 0 / 2 / 4, the trailing two bytes are
// unused by the protocol.
func DecodeTemperature(data []byte) (TemperatureSample, error) {
	if len(data) != temperatureFrameSize {
		return TemperatureSample{}, fmt.Errorf("%w: invalid temperature frame length (want %d, have %d)",
			ErrMalformedFrame, temperatureFrameSize, len(data))
	}

	tip := binary.LittleEndian.Uint16(data[0:2])
	ra := binary.LittleEndian.Uint16(data[2:4])
	oa := binary.LittleEndian.Uint16(data[4:6])

	return TemperatureSample{
		Tip:     TipTemperature(tip),
		Ambient: AmbientTemperature(tip, ra, oa),
	}, nil
}

// DecodeBattery decodes a 2 byte battery frame (little-endian uint16, tens
// of percent) into a fraction of full charge
func DecodeBattery(data []byte) (float64, error) {
	if len(data) != batteryFrameSize {
		return 0, fmt.Errorf("%w: invalid battery frame length (want %d, have %d)",
			ErrMalformedFrame, batteryFrameSize, len(data))
	}

	return BatteryFraction(binary.LittleEndian.Uint16(data)), nil
}

// newReading stamps a decoded temperature sample with the capture time and
// the most recent battery fraction
func newReading(sample TemperatureSample, battery float64) Reading {
	return Reading{
		TimeStamp:          time.Now(),
		TemperatureTip:     sample.Tip,
		TemperatureAmbient: sample.Ambient,
		BatteryFraction:    battery,
	}
}
