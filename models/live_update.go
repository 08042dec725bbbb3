package models

// LiveUpdate is what the live controller publishes once per display tick.
type LiveUpdate struct {
	TimestampNs int64          `json:"timestamp_ns"`
	Seq         uint64         `json:"seq"`
	Window      int            `json:"window"`
	Samples     []SensorSample `json:"samples"`
	Spectrum    *Spectrum      `json:"spectrum,omitempty"`
}

// Last returns the newest sample of the given sensor in the update.
func (u *LiveUpdate) Last(sensor SensorKind) (SensorSample, bool) {
	for i := len(u.Samples) - 1; i >= 0; i-- {
		if u.Samples[i].Sensor == sensor {
			return u.Samples[i], true
		}
	}
	return SensorSample{}, false
}

// CSVHeader returns the per-tick summary header: one block per sensor plus
// the spectral peak.
func (LiveUpdate) CSVHeader() []string {
	h := []string{"timestamp_ns", "seq", "samples", "window"}
	h = append(h, "accel_x", "accel_y", "accel_z")
	h = append(h, "incl_x", "incl_y")
	h = append(h, "temp_c")
	h = append(h, "peak_hz", "peak_magnitude")
	return h
}

// CSVRow uses empty strings for sensors absent from the tick.
func (u *LiveUpdate) CSVRow() []string {
	row := []string{itoa64(u.TimestampNs), utoa64(u.Seq), itoa(len(u.Samples)), itoa(u.Window)}

	if s, ok := u.Last(SensorAccel); ok {
		row = append(row, ftoa(s.Value(AxisX), 6), ftoa(s.Value(AxisY), 6), ftoa(s.Value(AxisZ), 6))
	} else {
		row = append(row, "", "", "")
	}

	if s, ok := u.Last(SensorIncl); ok {
		row = append(row, ftoa(s.Value(AxisX), 4), ftoa(s.Value(AxisY), 4))
	} else {
		row = append(row, "", "")
	}

	if s, ok := u.Last(SensorTemp); ok {
		row = append(row, ftoa(s.Value(0), 2))
	} else {
		row = append(row, "")
	}

	if peak, ok := u.peak(); ok {
		row = append(row, ftoa(peak.Frequency, 3), ftoa(peak.Magnitude, 6))
	} else {
		row = append(row, "", "")
	}
	return row
}

// peak skips the DC bin.
func (u *LiveUpdate) peak() (SpectrumBin, bool) {
	if u.Spectrum == nil || len(u.Spectrum.Bins) < 2 {
		return SpectrumBin{}, false
	}
	best := u.Spectrum.Bins[1]
	for _, b := range u.Spectrum.Bins[2:] {
		if b.Magnitude > best.Magnitude {
			best = b
		}
	}
	return best, true
}
