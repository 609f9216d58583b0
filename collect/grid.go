// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package collect

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"
)

// A Grid is the globally ordered result of a run: a row-major buffer
// indexed by original row. It records which rows have been written
// and refuses to write a row twice.
type Grid struct {
	Rows, Cols int
	Data       []float64

	written []bool
	n       int
}

// NewGrid returns an empty grid of the provided dimensions.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 || cols < 1 {
		panic(fmt.Sprintf("collect.NewGrid: invalid dimensions %dx%d", rows, cols))
	}
	return &Grid{
		Rows:    rows,
		Cols:    cols,
		Data:    make([]float64, rows*cols),
		written: make([]bool, rows),
	}
}

// GridOf returns a grid backed by data, which must hold rows*cols
// values. Written tells which rows data holds; it is retained.
func GridOf(rows, cols int, data []float64, written []bool) (*Grid, error) {
	if len(data) != rows*cols {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("grid %dx%d: got %d values", rows, cols, len(data)))
	}
	if len(written) != rows {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("grid %dx%d: got %d row marks", rows, cols, len(written)))
	}
	g := &Grid{Rows: rows, Cols: cols, Data: data, written: written}
	for _, ok := range written {
		if ok {
			g.n++
		}
	}
	return g, nil
}

// Set stores the values of a row. It is an error to store a row that
// is out of range, has the wrong width, or was already stored.
func (g *Grid) Set(row int, values []float64) error {
	if row < 0 || row >= g.Rows {
		return errors.E(errors.Invalid, fmt.Sprintf("row %d out of range [0,%d)", row, g.Rows))
	}
	if len(values) != g.Cols {
		return errors.E(errors.Invalid, fmt.Sprintf("row %d: got %d values, want %d", row, len(values), g.Cols))
	}
	if g.written[row] {
		return errors.E(errors.Integrity, fmt.Sprintf("row %d written twice", row))
	}
	copy(g.Row(row), values)
	g.written[row] = true
	g.n++
	return nil
}

// Row returns the values of a row. The returned slice aliases the
// grid.
func (g *Grid) Row(row int) []float64 {
	return g.Data[row*g.Cols : (row+1)*g.Cols]
}

// At returns the value at the provided cell.
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Written tells whether the row has been stored.
func (g *Grid) Written(row int) bool {
	return g.written[row]
}

// WrittenRows returns, for each row, whether it has been stored.
func (g *Grid) WrittenRows() []bool {
	return append([]bool(nil), g.written...)
}

// Check returns an integrity error naming the missing rows unless the
// grid is complete.
func (g *Grid) Check() error {
	if g.Complete() {
		return nil
	}
	return errors.E(errors.Integrity, fmt.Sprintf("rows %v were never computed", g.Missing()))
}

// Complete tells whether every row has been stored exactly once.
func (g *Grid) Complete() bool {
	return g.n == g.Rows
}

// Missing returns the rows that have not been stored, in increasing
// order.
func (g *Grid) Missing() []int {
	var missing []int
	for row, ok := range g.written {
		if !ok {
			missing = append(missing, row)
		}
	}
	return missing
}

// Checksum returns a hash of the grid's dimensions and values. Equal
// grids have equal checksums.
func (g *Grid) Checksum() uint64 {
	h := murmur3.New64()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(g.Rows))
	h.Write(b[:])
	binary.LittleEndian.PutUint64(b[:], uint64(g.Cols))
	h.Write(b[:])
	for _, v := range g.Data {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		h.Write(b[:])
	}
	return h.Sum64()
}

func (g *Grid) String() string {
	return fmt.Sprintf("grid %dx%d (%d/%d rows)", g.Rows, g.Cols, g.n, g.Rows)
}
