package meater

// Empirical calibration constants for the probe's raw sensor values, taken
// verbatim from the reverse-engineered MEATER protocol
// (https://github.com/nathanfaber/meaterble). Do not re-derive or round them.
const (

	// tempOffset / tempScale map a raw 16 bit temperature value to °C
	tempOffset = 8
	tempScale  = 16

	// ambientThreshold is the raw value below which the OA field caps the
	// RA contribution to the saturated ambient reading
	ambientThreshold = 48

	// ambientGain / ambientDivisor scale the RA/OA delta contribution
	ambientGain    = 16 * 589
	ambientDivisor = 1487

	// batteryFullRaw is the raw battery value corresponding to full charge
	batteryFullRaw = 10
)

// TipTemperature converts a raw tip sensor value to °C
func TipTemperature(raw uint16) float64 {
	return toCelsius(int(raw))
}

// AmbientTemperature reconstructs the ambient temperature in °C from the raw
// tip value and the two auxiliary ambient sensor values. The ambient sensor
// saturates at moderate temperatures, so the reading is the tip value plus a
// scaled, clamped-at-zero contribution of the RA/OA delta. All intermediate
// math is integer, matching the device firmware.
func AmbientTemperature(rawTip, rawRA, rawOA uint16) float64 {
	delta := (int(rawRA) - min(int(rawOA), ambientThreshold)) * ambientGain / ambientDivisor
	return toCelsius(int(rawTip) + max(delta, 0))
}

// BatteryFraction converts a raw battery value to a fraction of full charge
// in [0,1]. Raw values beyond the full-charge boundary saturate.
func BatteryFraction(raw uint16) float64 {
	if raw >= batteryFullRaw {
		return 1
	}
	return float64(raw) / batteryFullRaw
}

func toCelsius(value int) float64 {
	return (float64(value) + tempOffset) / tempScale
}
