// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package kernel

func init() {
	Register("rowindex", func(rows, cols int, params Params) (Kernel, error) {
		return rowIndex{}, nil
	})
}

// rowIndex evaluates every cell of row r to r. It makes misplaced
// rows visible in a gathered grid.
type rowIndex struct{}

func (rowIndex) Name() string                  { return "rowindex" }
func (rowIndex) Evaluate(row, col int) float64 { return float64(row) }
