package analysis

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

var ErrTooShort = errors.New("analysis: need at least two samples")

// Spectrum returns the one-sided amplitude spectrum of samples taken every
// dt seconds. The mean is removed first so bin 0 does not dominate.
func Spectrum(samples []float64, dt float64) (freqs, amps []float64, err error) {
	n := len(samples)
	if n < 2 {
		return nil, nil, ErrTooShort
	}
	if dt <= 0 {
		return nil, nil, errors.New("analysis: sample period must be positive")
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)
	centred := make([]float64, n)
	for i, s := range samples {
		centred[i] = s - mean
	}

	coeffs := fft.FFTReal(centred)
	half := n/2 + 1
	freqs = make([]float64, half)
	amps = make([]float64, half)
	for k := 0; k < half; k++ {
		freqs[k] = float64(k) / (float64(n) * dt)
		amps[k] = 2 * cmplx.Abs(coeffs[k]) / float64(n)
	}
	return freqs, amps, nil
}

// DominantFrequency is the frequency of the largest non-zero bin.
func DominantFrequency(samples []float64, dt float64) (float64, error) {
	freqs, amps, err := Spectrum(samples, dt)
	if err != nil {
		return 0, err
	}
	best := 0
	for k := 1; k < len(amps); k++ {
		if best == 0 || amps[k] > amps[best] {
			best = k
		}
	}
	return freqs[best], nil
}
