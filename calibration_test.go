package meater

import (
	"math"
	"testing"
)

func TestTipTemperature(t *testing.T) {
	for _, c := range []struct {
		raw  uint16
		want float64
	}{
		{0, 0.5},
		{392, 25.0},
		{520, 33.0},
		{1000, 63.0},
	} {
		if have := TipTemperature(c.raw); have != c.want {
			t.Fatalf("unexpected tip temperature for raw %d: want %f, have %f", c.raw, c.want, have)
		}
	}
}

func TestBatteryFractionSaturation(t *testing.T) {
	if have := BatteryFraction(0); have != 0 {
		t.Fatalf("expected empty battery to map to 0, have %f", have)
	}
	if have := BatteryFraction(batteryFullRaw); have != 1 {
		t.Fatalf("expected full battery to map to 1, have %f", have)
	}
	if have := BatteryFraction(math.MaxUint16); have != 1 {
		t.Fatalf("expected out-of-range battery value to saturate at 1, have %f", have)
	}
}

func TestBatteryFractionMonotone(t *testing.T) {
	prev := BatteryFraction(0)
	for raw := uint16(1); raw < 3*batteryFullRaw; raw++ {
		cur := BatteryFraction(raw)
		if cur < prev {
			t.Fatalf("battery fraction decreased at raw %d: %f -> %f", raw, prev, cur)
		}
		if cur < 0 || cur > 1 {
			t.Fatalf("battery fraction out of range at raw %d: %f", raw, cur)
		}
		prev = cur
	}
}

func TestAmbientEqualsTipBelowThreshold(t *testing.T) {

	// As long as RA does not exceed min(OA, threshold) the delta contribution
	// is clamped to zero and ambient equals the tip reading
	for _, c := range []struct {
		ra, oa uint16
	}{
		{0, 0},
		{10, 100},
		{ambientThreshold, 100},
		{20, 20},
	} {
		tip := uint16(1000)
		if have, want := AmbientTemperature(tip, c.ra, c.oa), TipTemperature(tip); have != want {
			t.Fatalf("expected ambient %f to equal tip %f for ra=%d oa=%d", have, want, c.ra, c.oa)
		}
	}
}

func TestAmbientContinuityAtThreshold(t *testing.T) {

	// Crossing the breakpoint with the tip value held fixed must not cause a
	// jump beyond one quantization step of the delta contribution
	const tip, oa = 1000, 100

	below := AmbientTemperature(tip, ambientThreshold, oa)
	above := AmbientTemperature(tip, ambientThreshold+1, oa)

	if below != TipTemperature(tip) {
		t.Fatalf("expected ambient at breakpoint to equal tip, have %f", below)
	}
	if diff := above - below; diff < 0 || diff > 0.4 {
		t.Fatalf("ambient discontinuous at breakpoint: %f -> %f", below, above)
	}
}

func TestAmbientReference(t *testing.T) {

	// Reference triple from the reverse-engineered protocol:
	// tip=520, RA=80, OA=100 -> delta (80-48)*16*589/1487 = 202 raw,
	// ambient raw 722 -> 45.625 °C
	if have, want := AmbientTemperature(520, 80, 100), 45.625; math.Abs(have-want) > 0.1 {
		t.Fatalf("unexpected ambient reference value: want %f, have %f", want, have)
	}
}
