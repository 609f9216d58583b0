// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package kernel

import "github.com/grailbio/biggrid/halo"

func init() {
	Register("jacobi", newJacobi)
}

// Jacobi diffuses heat on a torus: each step replaces every cell by
// the average of its four neighbors. Initially the center row holds
// the value of parameter "heat" (default 1) and all other cells are
// zero.
type Jacobi struct {
	hot  int
	heat float64
}

func newJacobi(rows, cols int, params Params) (Kernel, error) {
	heat, err := params.Float("heat", 1)
	if err != nil {
		return nil, err
	}
	return &Jacobi{hot: rows / 2, heat: heat}, nil
}

// Name implements Kernel.
func (*Jacobi) Name() string { return "jacobi" }

// Init implements Stencil.
func (j *Jacobi) Init(row int, out []float64) {
	v := 0.0
	if row == j.hot {
		v = j.heat
	}
	for i := range out {
		out[i] = v
	}
}

// Step implements Stencil.
func (*Jacobi) Step(cur, next *halo.Buffer) {
	for i := 0; i < cur.Rows; i++ {
		out := next.Row(i)
		for c := 0; c < cur.Cols; c++ {
			out[c] = 0.25 * (cur.At(i-1, c) + cur.At(i+1, c) + cur.At(i, c-1) + cur.At(i, c+1))
		}
	}
}
