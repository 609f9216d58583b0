// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package partition computes static ownership of grid rows among a
// fixed group of ranks. All functions are pure: they depend only on
// their arguments and require no communication, so every rank can
// compute every other rank's ownership locally.
package partition

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// A Strategy names a work-distribution policy.
type Strategy int

const (
	// Block assigns each rank one contiguous range of rows. When the
	// row count does not divide evenly, the first rows%p ranks own one
	// extra row.
	Block Strategy = iota
	// Cyclic assigns rank id the rows {id, id+p, id+2p, ...}.
	Cyclic
	// Even assigns equal contiguous ranges. It has no remainder
	// handling: the row count must be a multiple of the rank count.
	Even
	// Dynamic assigns rows on demand through a coordinator. It has no
	// static ownership.
	Dynamic
)

var strategyNames = [...]string{
	Block:   "block",
	Cyclic:  "cyclic",
	Even:    "even",
	Dynamic: "dynamic",
}

// String returns the strategy's name as accepted by ParseStrategy.
func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// Static tells whether ownership under s is fixed at startup.
func (s Strategy) Static() bool {
	return s == Block || s == Cyclic || s == Even
}

// Contiguous tells whether every rank owns a single range of rows
// under s. Stencil computations require contiguous ownership.
func (s Strategy) Contiguous() bool {
	return s == Block || s == Even
}

// ParseStrategy returns the strategy with the provided name.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return Strategy(s), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown partition strategy %q", name))
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	var err error
	*s, err = ParseStrategy(string(text))
	return err
}

// A Set is the set of rows owned by one rank: the arithmetic
// progression Start, Start+Stride, ... of Count rows. Contiguous
// ownership has Stride 1.
type Set struct {
	Start, Stride, Count int
}

// Len returns the number of rows in the set.
func (s Set) Len() int { return s.Count }

// Row returns the global index of the i'th owned row.
func (s Set) Row(i int) int {
	if i < 0 || i >= s.Count {
		panic(fmt.Sprintf("partition.Set.Row: index %d out of range [0,%d)", i, s.Count))
	}
	return s.Start + i*s.Stride
}

// Rows returns the global indices of all owned rows, in increasing
// order.
func (s Set) Rows() []int {
	rows := make([]int, s.Count)
	for i := range rows {
		rows[i] = s.Start + i*s.Stride
	}
	return rows
}

// Contains tells whether the set owns the provided row.
func (s Set) Contains(row int) bool {
	if s.Count == 0 || row < s.Start {
		return false
	}
	d := row - s.Start
	return d%s.Stride == 0 && d/s.Stride < s.Count
}

// Contiguous tells whether the set is a single range of rows.
func (s Set) Contiguous() bool {
	return s.Stride == 1 || s.Count <= 1
}

// Local returns the position of the provided global row within the
// set, or -1 if it is not owned.
func (s Set) Local(row int) int {
	if !s.Contains(row) {
		return -1
	}
	return (row - s.Start) / s.Stride
}

func (s Set) String() string {
	switch {
	case s.Count == 0:
		return "{}"
	case s.Stride == 1:
		return fmt.Sprintf("[%d,%d)", s.Start, s.Start+s.Count)
	default:
		return fmt.Sprintf("{%d,%d,...,%d}", s.Start, s.Start+s.Stride, s.Row(s.Count-1))
	}
}

// Block returns the contiguous range owned by rank id when rows are
// divided among p ranks. Ranks below rows%p own one extra row; each
// range starts where the previous one ends. Block panics if p < 1 or id
// is not in [0, p).
func Block(rows, p, id int) Set {
	check("Block", rows, p, id)
	q, r := rows/p, rows%p
	if id < r {
		return Set{Start: id * (q + 1), Stride: 1, Count: q + 1}
	}
	return Set{Start: r*(q+1) + (id-r)*q, Stride: 1, Count: q}
}

// Cyclic returns the rows {id, id+p, id+2p, ...} below rows. Cyclic
// panics if p < 1 or id is not in [0, p).
func Cyclic(rows, p, id int) Set {
	check("Cyclic", rows, p, id)
	s := Set{Start: id, Stride: p}
	if id < rows {
		s.Count = (rows - id + p - 1) / p
	}
	return s
}

// Even returns the equal-sized contiguous range owned by rank id. It
// returns an error when rows is not a multiple of p. Even panics if
// p < 1 or id is not in [0, p).
func Even(rows, p, id int) (Set, error) {
	check("Even", rows, p, id)
	if rows%p != 0 {
		return Set{}, errors.E(errors.Invalid,
			fmt.Sprintf("even partition: %d rows do not divide evenly among %d ranks", rows, p))
	}
	n := rows / p
	return Set{Start: id * n, Stride: 1, Count: n}, nil
}

// Of returns the rows owned by rank id of p under the provided static
// strategy. Unlike the strategy-specific functions, Of reports invalid
// arguments as errors.
func Of(rows, p, id int, strategy Strategy) (Set, error) {
	if err := validate(rows, p, id); err != nil {
		return Set{}, err
	}
	switch strategy {
	case Block:
		return Block(rows, p, id), nil
	case Cyclic:
		return Cyclic(rows, p, id), nil
	case Even:
		return Even(rows, p, id)
	case Dynamic:
		return Set{}, errors.E(errors.Invalid, "dynamic strategy has no static ownership")
	default:
		return Set{}, errors.E(errors.Invalid, fmt.Sprintf("unknown strategy %v", strategy))
	}
}

// Owner returns the rank that owns the provided row under a static
// strategy.
func Owner(rows, p, row int, strategy Strategy) (int, error) {
	if err := validate(rows, p, 0); err != nil {
		return -1, err
	}
	if row < 0 || row >= rows {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("row %d out of range [0,%d)", row, rows))
	}
	switch strategy {
	case Block:
		q, r := rows/p, rows%p
		if row < r*(q+1) {
			return row / (q + 1), nil
		}
		return r + (row-r*(q+1))/q, nil
	case Cyclic:
		return row % p, nil
	case Even:
		if rows%p != 0 {
			return -1, errors.E(errors.Invalid,
				fmt.Sprintf("even partition: %d rows do not divide evenly among %d ranks", rows, p))
		}
		return row / (rows / p), nil
	default:
		return -1, errors.E(errors.Invalid, fmt.Sprintf("strategy %v has no static ownership", strategy))
	}
}

func validate(rows, p, id int) error {
	switch {
	case p < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("need at least one rank, got %d", p))
	case id < 0 || id >= p:
		return errors.E(errors.Invalid, fmt.Sprintf("rank %d out of range [0,%d)", id, p))
	case rows < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("negative row count %d", rows))
	}
	return nil
}

func check(fn string, rows, p, id int) {
	if err := validate(rows, p, id); err != nil {
		panic(fmt.Sprintf("partition.%s: %v", fn, err))
	}
}
