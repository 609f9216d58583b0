// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/grailbio/base/errors"
)

func init() {
	Register("mandelbrot", newMandelbrot)
}

// Mandelbrot evaluates the escape-time convergence of the Mandelbrot
// iteration z = z² + c over the view [-2, 1) x [-1.125, 1.125). Cells
// evaluate to values in [0, 1]; points inside the set evaluate to 1.
type Mandelbrot struct {
	MaxIterations int
	EscapeRadius  float64
	Smooth        bool

	scaleX, scaleY float64
}

func newMandelbrot(rows, cols int, params Params) (Kernel, error) {
	m := &Mandelbrot{}
	var err error
	if m.MaxIterations, err = params.Int("max_iterations", 50); err != nil {
		return nil, err
	}
	if m.EscapeRadius, err = params.Float("escape_radius", 10); err != nil {
		return nil, err
	}
	if m.Smooth, err = params.Bool("smooth", true); err != nil {
		return nil, err
	}
	if m.MaxIterations < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("max_iterations must be positive, got %d", m.MaxIterations))
	}
	if m.EscapeRadius <= 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("escape_radius must exceed 1, got %v", m.EscapeRadius))
	}
	if rows > 0 {
		m.scaleY = 2.25 / float64(rows)
	}
	m.scaleX = 3 / float64(cols)
	return m, nil
}

// Name implements Kernel.
func (*Mandelbrot) Name() string { return "mandelbrot" }

// Evaluate implements Evaluator.
func (m *Mandelbrot) Evaluate(row, col int) float64 {
	c := complex(-2+m.scaleX*float64(col), -1.125+m.scaleY*float64(row))
	v := m.Iterations(c) / float64(m.MaxIterations)
	return math.Max(0, math.Min(v, 1))
}

// Iterations returns the number of iterations before the orbit of c
// escapes, or MaxIterations if it does not. With Smooth set, the
// count is fractional.
func (m *Mandelbrot) Iterations(c complex128) float64 {
	max := float64(m.MaxIterations)
	re, im := real(c), imag(c)
	// The disks of radius 1/4 around 0 and -1 and the main cardioid
	// are known to lie inside the set.
	if re*re+im*im < 0.0625 {
		return max
	}
	if (re+1)*(re+1)+im*im < 0.0625 {
		return max
	}
	if re > -0.75 && re < 0.5 {
		ct := complex(re-0.25, im)
		n := cmplx.Abs(ct)
		if n < 0.5*(1-real(ct)/math.Max(n, 1e-14)) {
			return max
		}
	}
	var z complex128
	for i := 0; i < m.MaxIterations; i++ {
		z = z*z + c
		if a := cmplx.Abs(z); a > m.EscapeRadius {
			if m.Smooth {
				return float64(i+1) - math.Log(math.Log(a))/math.Ln2
			}
			return float64(i)
		}
	}
	return max
}
