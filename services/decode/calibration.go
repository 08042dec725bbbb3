package decode

import "adxl-logger/utils"

// Calibration holds the conversion constants for the ADXL front end and the
// inclinometer. They come from configuration, not from the protocol.
type Calibration struct {
	VRef             float64 // ADC reference, volts
	Gain             float64 // front-end divider gain
	ADCCounts        float64 // 12-bit full scale
	ZeroGVolts       float64
	SensitivityVPerG float64
	InclScaleMg      float64 // milli-g per inclinometer count
}

// DefaultCalibration matches the instrument's factory values.
func DefaultCalibration() Calibration {
	return Calibration{
		VRef:             3.3,
		Gain:             2,
		ADCCounts:        4096,
		ZeroGVolts:       1.65,
		SensitivityVPerG: 0.0063,
		InclScaleMg:      0.031,
	}
}

// CalibrationFromConfig copies the configured constants.
func CalibrationFromConfig(c utils.CalibrationConfig) Calibration {
	return Calibration{
		VRef:             c.VRef,
		Gain:             c.Gain,
		ADCCounts:        c.ADCCounts,
		ZeroGVolts:       c.ZeroGVolts,
		SensitivityVPerG: c.SensitivityVPerG,
		InclScaleMg:      c.InclScaleMg,
	}
}

// Volts converts a masked 12-bit ADC word.
func (c Calibration) Volts(raw uint16) float64 {
	return float64(raw&accelMask) * c.VRef * c.Gain / c.ADCCounts
}

// G converts volts to acceleration.
func (c Calibration) G(volts float64) float64 {
	return (volts - c.ZeroGVolts) / c.SensitivityVPerG
}

// RawFromG is the inverse of G(Volts(raw)) rounded to the nearest ADC word.
// Used by the simulator.
func (c Calibration) RawFromG(g float64) uint16 {
	volts := g*c.SensitivityVPerG + c.ZeroGVolts
	raw := volts * c.ADCCounts / (c.VRef * c.Gain)
	if raw < 0 {
		return 0
	}
	if raw > accelMask {
		return accelMask
	}
	return uint16(raw + 0.5)
}
