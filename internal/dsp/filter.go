// Package dsp holds the signal conditioning applied to continuous data
// before templates are cut: mean removal and zero-phase Butterworth
// filtering.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// DefaultCorners is the Butterworth order used when none is configured.
const DefaultCorners = 4

var ErrInvalidCorner = errors.New("dsp: invalid corner frequency")

// Section is one second-order IIR stage with a0 normalized to 1.
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Filter is a cascade of second-order sections.
type Filter []Section

// Apply runs the cascade forward over x with zero initial state and
// returns a new slice.
func (f Filter) Apply(x []float64) []float64 {
	y := append([]float64(nil), x...)
	for _, s := range f {
		var z1, z2 float64
		for i, in := range y {
			out := s.B0*in + z1
			z1 = s.B1*in - s.A1*out + z2
			z2 = s.B2*in - s.A2*out
			y[i] = out
		}
	}
	return y
}

// ApplyZeroPhase filters forward, then filters the reversed result and
// reverses it back, cancelling phase shift and squaring the amplitude
// response.
func (f Filter) ApplyZeroPhase(x []float64) []float64 {
	y := f.Apply(x)
	reverse(y)
	y = f.Apply(y)
	reverse(y)
	return y
}

// Bandpass designs a Butterworth band-pass filter between low and high Hz
// for data sampled at rate Hz. When high reaches the Nyquist frequency the
// design degrades to a high-pass at low.
func Bandpass(low, high, rate float64, corners int) (Filter, error) {
	if corners <= 0 {
		corners = DefaultCorners
	}
	nyquist := rate / 2
	if rate <= 0 || low <= 0 || high <= low {
		return nil, fmt.Errorf("%w: band [%v, %v] Hz at %v Hz", ErrInvalidCorner, low, high, rate)
	}
	if high >= nyquist {
		return Highpass(low, rate, corners)
	}

	w1 := prewarp(low / nyquist)
	w2 := prewarp(high / nyquist)
	bw := w2 - w1
	wo := math.Sqrt(w1 * w2)

	var poles []complex128
	for _, p := range prototype(corners) {
		plp := p * complex(bw/2, 0)
		root := cmplx.Sqrt(plp*plp - complex(wo*wo, 0))
		poles = append(poles, plp+root, plp-root)
	}

	// Bilinear transform with fs = 2 (frequencies normalized to Nyquist).
	gain := complex(math.Pow(bw, float64(corners))*math.Pow(4, float64(corners)), 0)
	digital := make([]complex128, len(poles))
	for i, p := range poles {
		gain /= 4 - p
		digital[i] = (4 + p) / (4 - p)
	}

	return cascade(digital, real(gain), [3]float64{1, 0, -1}, [3]float64{1, -1, 0}), nil
}

// Highpass designs a Butterworth high-pass filter at freq Hz.
func Highpass(freq, rate float64, corners int) (Filter, error) {
	if corners <= 0 {
		corners = DefaultCorners
	}
	nyquist := rate / 2
	if rate <= 0 || freq <= 0 || freq >= nyquist {
		return nil, fmt.Errorf("%w: high-pass %v Hz at %v Hz", ErrInvalidCorner, freq, rate)
	}

	wo := prewarp(freq / nyquist)
	gain := complex(math.Pow(4, float64(corners)), 0)
	var digital []complex128
	for _, p := range prototype(corners) {
		php := complex(wo, 0) / p
		gain /= 4 - php
		digital = append(digital, (4+php)/(4-php))
	}

	return cascade(digital, real(gain), [3]float64{1, -2, 1}, [3]float64{1, -1, 0}), nil
}

// prototype returns the analog Butterworth low-pass poles of order n.
func prototype(n int) []complex128 {
	poles := make([]complex128, 0, n)
	for m := -n + 1; m < n; m += 2 {
		poles = append(poles, -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*n))))
	}
	return poles
}

// prewarp maps a Nyquist-normalized frequency to the analog frequency
// used by the fs=2 bilinear transform.
func prewarp(wn float64) float64 {
	return 4 * math.Tan(math.Pi*wn/2)
}

// cascade pairs digital poles into sections. Complex poles are paired with
// their conjugates; real poles are paired with each other, and a leftover
// real pole becomes a first-order section. second and first are the
// numerators used for two-pole and one-pole sections.
func cascade(poles []complex128, gain float64, second, first [3]float64) Filter {
	const eps = 1e-10
	var (
		f     Filter
		reals []float64
	)
	for _, p := range poles {
		switch {
		case imag(p) > eps:
			f = append(f, Section{
				B0: second[0], B1: second[1], B2: second[2],
				A1: -2 * real(p), A2: real(p)*real(p) + imag(p)*imag(p),
			})
		case imag(p) >= -eps:
			reals = append(reals, real(p))
		}
	}
	sort.Float64s(reals)
	for i := 0; i+1 < len(reals); i += 2 {
		r1, r2 := reals[i], reals[i+1]
		f = append(f, Section{
			B0: second[0], B1: second[1], B2: second[2],
			A1: -(r1 + r2), A2: r1 * r2,
		})
	}
	if len(reals)%2 == 1 {
		r := reals[len(reals)-1]
		f = append(f, Section{B0: first[0], B1: first[1], B2: first[2], A1: -r})
	}

	if len(f) > 0 {
		f[0].B0 *= gain
		f[0].B1 *= gain
		f[0].B2 *= gain
	}
	return f
}

// Demean removes the arithmetic mean in place and returns x.
func Demean(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(len(x))
	for i := range x {
		x[i] -= mean
	}
	return x
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
