package spectrum

import (
	"math/bits"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"adxl-logger/models"
	"adxl-logger/services/monitor"
	"adxl-logger/utils"
)

// hannCoherentGain is the amplitude correction for the Hann window.
const hannCoherentGain = 0.5

// Analyze returns the single-sided magnitude spectrum of one channel sampled
// at rateHz. The input is copied, Hann windowed and zero padded to the next
// power of two. Bins run from DC to Nyquist inclusive.
func Analyze(channel []float64, rateHz float64) models.Spectrum {
	log := utils.Component("spectrum")
	if len(channel) <= 1 || rateHz <= 0 {
		log.Warnf("spectrum skipped: %d samples at %v Hz", len(channel), rateHz)
		return models.Spectrum{RateHz: rateHz, Samples: len(channel)}
	}

	seq := make([]float64, len(channel))
	copy(seq, channel)
	window.Hann(seq)

	n := nextPow2(len(seq))
	if n != len(seq) {
		seq = append(seq, make([]float64, n-len(seq))...)
	}
	return transform(seq, rateHz, len(channel))
}

// transform runs the FFT on an already windowed power-of-two sequence.
func transform(seq []float64, rateHz float64, samples int) models.Spectrum {
	n := len(seq)
	coeff := fourier.NewFFT(n).Coefficients(nil, seq)

	bins := make([]models.SpectrumBin, len(coeff))
	for k, c := range coeff {
		mag := cmplx.Abs(c) / float64(n)
		if k != 0 && k != n/2 {
			mag *= 2
		}
		bins[k] = models.SpectrumBin{
			Frequency: rateHz * float64(k) / float64(n),
			Magnitude: mag / hannCoherentGain,
		}
	}
	monitor.SpectraComputed.Inc()
	return models.Spectrum{Bins: bins, Size: n, RateHz: rateHz, Samples: samples}
}

// Peak returns the bin with the largest magnitude. ok is false for an empty
// spectrum.
func Peak(s models.Spectrum) (bin models.SpectrumBin, ok bool) {
	for i, b := range s.Bins {
		if i == 0 || b.Magnitude > bin.Magnitude {
			bin = b
		}
	}
	return bin, len(s.Bins) > 0
}

func nextPow2(n int) int {
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}
