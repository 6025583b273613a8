package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the magnitude of each non-negative frequency bin of
// signal after removing its mean. Bin i corresponds to i/(n*dt) Hz.
func PowerSpectrum(signal []float64) []float64 {
	if len(signal) < 2 {
		return nil
	}
	mean := stat.Mean(signal, nil)
	centered := make([]float64, len(signal))
	for i, v := range signal {
		centered[i] = v - mean
	}

	fft := fourier.NewFFT(len(centered))
	coeffs := fft.Coefficients(nil, centered)
	ps := make([]float64, len(coeffs))
	for i, c := range coeffs {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// DominantFrequency returns the frequency in Hz of the strongest non-DC
// component of a signal sampled every dt seconds, and its magnitude. A
// constant signal returns zeros.
func DominantFrequency(signal []float64, dt float64) (freq, magnitude float64) {
	ps := PowerSpectrum(signal)
	if len(ps) < 2 || dt <= 0 {
		return 0, 0
	}
	best := 0
	for i := 1; i < len(ps); i++ {
		if ps[i] > magnitude {
			magnitude = ps[i]
			best = i
		}
	}
	if best == 0 || magnitude < 1e-12 {
		return 0, 0
	}
	return float64(best) / (float64(len(signal)) * dt), magnitude
}
