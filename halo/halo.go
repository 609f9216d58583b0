// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package halo maintains ghost rows for stencil computations over a
// row-partitioned grid. Ranks form a ring 0, 1, ..., P-1, 0: after an
// exchange, a rank's top ghost row holds its predecessor's last real
// row and its bottom ghost row holds its successor's first real row.
package halo

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/comm"
)

// A Buffer holds a rank's contiguous block of real rows bracketed by
// one ghost row above (index -1) and one below (index Rows). Rows are
// stored row-major in Data.
type Buffer struct {
	// Start is the global index of the first real row.
	Start int
	// Rows is the number of real rows.
	Rows int
	// Cols is the row width.
	Cols int
	// Data holds (Rows+2)*Cols values, ghost rows included.
	Data []float64
}

// NewBuffer returns a zeroed buffer for rows real rows of width cols
// beginning at global row start.
func NewBuffer(start, rows, cols int) *Buffer {
	if rows < 0 || cols < 1 {
		panic(fmt.Sprintf("halo.NewBuffer: invalid dimensions %dx%d", rows, cols))
	}
	return &Buffer{
		Start: start,
		Rows:  rows,
		Cols:  cols,
		Data:  make([]float64, (rows+2)*cols),
	}
}

// Row returns local row i, where -1 is the top ghost row and Rows is
// the bottom ghost row. The returned slice aliases the buffer.
func (b *Buffer) Row(i int) []float64 {
	if i < -1 || i > b.Rows {
		panic(fmt.Sprintf("halo.Buffer.Row: row %d out of range [-1,%d]", i, b.Rows))
	}
	off := (i + 1) * b.Cols
	return b.Data[off : off+b.Cols : off+b.Cols]
}

// Real returns the real rows, without ghosts, as one row-major slice
// aliasing the buffer.
func (b *Buffer) Real() []float64 {
	return b.Data[b.Cols : (b.Rows+1)*b.Cols]
}

// At returns the value at local row i and column j. Columns wrap
// around, so j may range over [-1, Cols].
func (b *Buffer) At(i, j int) float64 {
	switch {
	case j < 0:
		j += b.Cols
	case j >= b.Cols:
		j -= b.Cols
	}
	return b.Data[(i+1)*b.Cols+j]
}

// Exchange refreshes buf's ghost rows from its ring neighbors in c's
// group. Every rank of the group must call Exchange in the same
// iteration. Receives for both ghost rows are posted before the
// rank's own boundary rows are sent; Exchange returns once both ghost
// rows have arrived. With a single rank, the ghost rows are filled
// locally from the rank's own boundary rows.
func Exchange(ctx context.Context, c comm.Comm, buf *Buffer) error {
	if buf.Rows == 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("halo: rank %d owns no rows", c.Rank()))
	}
	p, id := c.Size(), c.Rank()
	if p == 1 {
		copy(buf.Row(-1), buf.Row(buf.Rows-1))
		copy(buf.Row(buf.Rows), buf.Row(0))
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		pred   = (id - 1 + p) % p
		succ   = (id + 1) % p
		top    = comm.Irecv(ctx, c, pred, comm.TagHaloDown)
		bottom = comm.Irecv(ctx, c, succ, comm.TagHaloUp)
	)
	if err := c.Send(ctx, pred, comm.Message{Tag: comm.TagHaloUp, Row: buf.Start, Data: buf.Row(0)}); err != nil {
		return errors.E(err, fmt.Sprintf("halo: send first row to rank %d", pred))
	}
	if err := c.Send(ctx, succ, comm.Message{Tag: comm.TagHaloDown, Row: buf.Start + buf.Rows - 1, Data: buf.Row(buf.Rows - 1)}); err != nil {
		return errors.E(err, fmt.Sprintf("halo: send last row to rank %d", succ))
	}
	if err := fill(ctx, top, buf.Row(-1), pred); err != nil {
		return err
	}
	return fill(ctx, bottom, buf.Row(buf.Rows), succ)
}

func fill(ctx context.Context, req *comm.Request, ghost []float64, from int) error {
	m, err := req.Wait(ctx)
	if err != nil {
		return errors.E(err, fmt.Sprintf("halo: receive ghost row from rank %d", from))
	}
	if len(m.Data) != len(ghost) {
		return errors.E(errors.Integrity,
			fmt.Sprintf("halo: ghost row from rank %d has %d values, want %d", from, len(m.Data), len(ghost)))
	}
	copy(ghost, m.Data)
	return nil
}
