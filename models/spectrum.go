package models

// SpectrumBin is one single-sided FFT bin.
type SpectrumBin struct {
	Frequency float64 `json:"frequency"` // Hz
	Magnitude float64 `json:"magnitude"` // same unit as the input channel
}

// Spectrum covers bins 0..N/2 inclusive. It is regenerated, never mutated.
type Spectrum struct {
	Bins    []SpectrumBin `json:"bins"`
	Size    int           `json:"size"` // FFT length N after padding
	RateHz  float64       `json:"rate_hz"`
	Samples int           `json:"samples"` // input length before padding
}

// Empty reports whether no bins were produced.
func (s Spectrum) Empty() bool { return len(s.Bins) == 0 }

func (SpectrumBin) CSVHeader() []string {
	return []string{"frequency_hz", "magnitude"}
}

func (b *SpectrumBin) CSVRow() []string {
	return []string{ftoa(b.Frequency, 4), ftoa(b.Magnitude, 6)}
}
