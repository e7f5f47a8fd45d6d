// Package potentials provides external potentials for Hamiltonian
// initialisation: closed forms sampled at physical coordinates, a smooth
// random disorder field, and time-dependent drives.
package potentials

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Func is a static potential. It is assignable to trottersuzuki.PotentialFunc.
type Func = func(x, y float64) float64

// Evolver is a time-dependent potential evaluated for step t of length
// deltaT. It is assignable to trottersuzuki.PotentialEvolver.
type Evolver = func(x, y, deltaT float64, t int) float64

// Constant returns the potential v everywhere.
func Constant(v float64) Func {
	return func(_, _ float64) float64 { return v }
}

// Harmonic returns the unit-mass trap (omegaX^2 x^2 + omegaY^2 y^2)/2.
func Harmonic(omegaX, omegaY float64) Func {
	wx, wy := omegaX*omegaX, omegaY*omegaY

	return func(x, y float64) float64 {
		return 0.5 * (wx*x*x + wy*y*y)
	}
}

// Box returns zero inside the rectangle |x| < halfX, |y| < halfY and height
// outside it.
func Box(halfX, halfY, height float64) Func {
	return func(x, y float64) float64 {
		if math.Abs(x) < halfX && math.Abs(y) < halfY {
			return 0
		}

		return height
	}
}

// Sum adds potentials.
func Sum(fns ...Func) Func {
	return func(x, y float64) float64 {
		var v float64
		for _, fn := range fns {
			v += fn(x, y)
		}

		return v
	}
}

// Disorder returns a smooth random landscape in [0, amplitude]: octaves of
// simplex noise with correlation length scale, each octave at twice the
// frequency and half the weight of the previous one. The same seed always
// gives the same landscape, so every rank samples a consistent field.
func Disorder(seed int64, amplitude, scale float64, octaves int) Func {
	noise := opensimplex.NewNormalized(seed)
	octaves = max(octaves, 1)
	freq := 1 / scale

	return func(x, y float64) float64 {
		total, weight, norm := 0.0, 1.0, 0.0
		f := freq

		for range octaves {
			total += noise.Eval2(x*f, y*f) * weight
			norm += weight
			weight *= 0.5
			f *= 2
		}

		return amplitude * total / norm
	}
}

// Static turns a static potential into an evolver that ignores time.
func Static(fn Func) Evolver {
	return func(x, y, _ float64, _ int) float64 { return fn(x, y) }
}

// Shaken moves base along x by amplitude*sin(omega*t*deltaT).
func Shaken(base Func, amplitude, omega float64) Evolver {
	return func(x, y, deltaT float64, t int) float64 {
		return base(x-amplitude*math.Sin(omega*float64(t)*deltaT), y)
	}
}

// Ramped scales base linearly from zero to full strength over rampSteps
// steps, then holds it.
func Ramped(base Func, rampSteps int) Evolver {
	return func(x, y, _ float64, t int) float64 {
		if rampSteps <= 0 || t >= rampSteps {
			return base(x, y)
		}

		return base(x, y) * float64(t) / float64(rampSteps)
	}
}
