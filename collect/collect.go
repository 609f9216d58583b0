// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package collect reassembles per-rank results at a root rank and
// reduces per-rank scalars.
package collect

import (
	"context"
	"fmt"
	"math"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid/comm"
)

// Offsets returns the exclusive prefix sums of sizes together with
// their total: offsets[i] is the position of segment i in a buffer
// holding all segments in rank order.
func Offsets(sizes []int) (offsets []int, total int) {
	offsets = make([]int, len(sizes))
	for i, n := range sizes {
		offsets[i] = total
		total += n
	}
	return
}

// A Segment is one rank's contribution to a gather: the global
// indices of its rows and their values, row-major.
type Segment struct {
	Rows []int
	Data []float64
	// Contiguous indicates that segments are ordered contiguous
	// blocks, so that every row's index equals its staging offset.
	// The root verifies this when set.
	Contiguous bool
}

// Gatherv collects every rank's segment into dst at the root. All
// ranks of c's group must call Gatherv; dst is used only at the root.
// The root first receives every segment's size and computes the
// staging offsets, then receives the payloads, stages them at their
// offsets, and finally scatters each row into dst by its carried
// global index.
func Gatherv(ctx context.Context, c comm.Comm, root int, seg Segment, dst *Grid) error {
	if c.Rank() != root {
		if err := c.Send(ctx, root, comm.Message{Tag: comm.TagGatherSize, Row: len(seg.Rows)}); err != nil {
			return err
		}
		return c.Send(ctx, root, comm.Message{Tag: comm.TagGatherData, Rows: seg.Rows, Data: seg.Data})
	}
	if dst == nil {
		return errors.E(errors.Invalid, "gatherv: root has no destination grid")
	}
	cols := dst.Cols
	if len(seg.Data) != len(seg.Rows)*cols {
		return errors.E(errors.Invalid, fmt.Sprintf("gatherv: root segment has %d values for %d rows", len(seg.Data), len(seg.Rows)))
	}
	p := c.Size()
	sizes := make([]int, p)
	for i := 0; i < p; i++ {
		if i == root {
			sizes[i] = len(seg.Rows)
			continue
		}
		m, err := c.Recv(ctx, i, comm.TagGatherSize)
		if err != nil {
			return err
		}
		if m.Row < 0 {
			return errors.E(errors.Integrity, fmt.Sprintf("gatherv: rank %d announced %d rows", i, m.Row))
		}
		sizes[i] = m.Row
	}
	offsets, total := Offsets(sizes)
	log.Debug.Printf("gatherv: %d rows (%s) from %d ranks; sizes %v", total, data.Size(8*total*cols), p, sizes)
	var (
		index   = make([]int, total)
		staging = make([]float64, total*cols)
	)
	for i := 0; i < p; i++ {
		rows, values := seg.Rows, seg.Data
		if i != root {
			m, err := c.Recv(ctx, i, comm.TagGatherData)
			if err != nil {
				return err
			}
			rows, values = m.Rows, m.Data
		}
		if len(rows) != sizes[i] || len(values) != sizes[i]*cols {
			return errors.E(errors.Integrity, fmt.Sprintf("gatherv: rank %d announced %d rows, sent %d rows and %d values",
				i, sizes[i], len(rows), len(values)))
		}
		copy(index[offsets[i]:], rows)
		copy(staging[offsets[i]*cols:], values)
	}
	for k, row := range index {
		if seg.Contiguous && row != k {
			return errors.E(errors.Integrity, fmt.Sprintf("gatherv: contiguous row %d staged at offset %d", row, k))
		}
		if err := dst.Set(row, staging[k*cols:(k+1)*cols]); err != nil {
			return errors.E(err, "gatherv")
		}
	}
	return nil
}

// Reduce combines one value from every rank with op at the root. The
// inputs of other ranks are received from any source, so op must be
// commutative and associative. The root returns the reduced value;
// other ranks return their own input.
func Reduce(ctx context.Context, c comm.Comm, root int, v float64, op func(a, b float64) float64) (float64, error) {
	if c.Rank() != root {
		return v, c.Send(ctx, root, comm.Message{Tag: comm.TagReduce, Data: []float64{v}})
	}
	acc := v
	for i := 1; i < c.Size(); i++ {
		m, err := c.Recv(ctx, comm.AnySource, comm.TagReduce)
		if err != nil {
			return 0, err
		}
		if len(m.Data) != 1 {
			return 0, errors.E(errors.Integrity, fmt.Sprintf("reduce: rank %d sent %d values", m.Source, len(m.Data)))
		}
		acc = op(acc, m.Data[0])
	}
	return acc, nil
}

// ReduceMax returns the maximum of every rank's value at the root.
func ReduceMax(ctx context.Context, c comm.Comm, root int, v float64) (float64, error) {
	return Reduce(ctx, c, root, v, math.Max)
}
