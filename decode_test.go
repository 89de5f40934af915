package meater

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func tempFrame(tip, ra, oa uint16) []byte {
	data := make([]byte, temperatureFrameSize)
	binary.LittleEndian.PutUint16(data[0:2], tip)
	binary.LittleEndian.PutUint16(data[2:4], ra)
	binary.LittleEndian.PutUint16(data[4:6], oa)
	return data
}

func batteryFrame(raw uint16) []byte {
	data := make([]byte, batteryFrameSize)
	binary.LittleEndian.PutUint16(data, raw)
	return data
}

func TestDecodeTemperatureReference(t *testing.T) {
	sample, err := DecodeTemperature(tempFrame(520, 80, 100))
	if err != nil {
		t.Fatalf("failed to decode temperature frame: %v", err)
	}

	if math.Abs(sample.Tip-33.0) > 0.1 {
		t.Fatalf("unexpected tip temperature: %f", sample.Tip)
	}
	if math.Abs(sample.Ambient-45.625) > 0.1 {
		t.Fatalf("unexpected ambient temperature: %f", sample.Ambient)
	}
}

func TestDecodeBatteryReference(t *testing.T) {
	battery, err := DecodeBattery(batteryFrame(7))
	if err != nil {
		t.Fatalf("failed to decode battery frame: %v", err)
	}
	if math.Abs(battery-0.7) > 0.01 {
		t.Fatalf("unexpected battery fraction: %f", battery)
	}
}

func TestDecodeMalformedLengths(t *testing.T) {
	for length := 0; length <= 16; length++ {
		data := make([]byte, length)

		if length != temperatureFrameSize {
			if _, err := DecodeTemperature(data); !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("expected malformed frame error for temperature length %d, have %v", length, err)
			}
		}
		if length != batteryFrameSize {
			if _, err := DecodeBattery(data); !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("expected malformed frame error for battery length %d, have %v", length, err)
			}
		}
	}
}

func TestDecodeRandomFramesFinite(t *testing.T) {
	prng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		data := make([]byte, temperatureFrameSize)
		prng.Read(data)

		sample, err := DecodeTemperature(data)
		if err != nil {
			t.Fatalf("failed to decode well-formed frame %x: %v", data, err)
		}
		for _, v := range []float64{sample.Tip, sample.Ambient} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite temperature for frame %x: %f", data, v)
			}
		}

		battery, err := DecodeBattery(data[:batteryFrameSize])
		if err != nil {
			t.Fatalf("failed to decode battery frame %x: %v", data[:batteryFrameSize], err)
		}
		if battery < 0 || battery > 1 {
			t.Fatalf("battery fraction out of range for frame %x: %f", data[:batteryFrameSize], battery)
		}
	}
}

func TestDecodeIdempotent(t *testing.T) {
	data := tempFrame(1234, 80, 100)

	first, err := DecodeTemperature(data)
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	second, err := DecodeTemperature(data)
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}

	if first != second {
		t.Fatalf("decoding the same frame twice differs: %+v vs %+v", first, second)
	}
}
