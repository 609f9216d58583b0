// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/halo"
)

func init() {
	Register("life", newLife)
}

// A Pattern is an initial Game of Life configuration: a grid size and
// the live cells in it.
type Pattern struct {
	Rows, Cols int
	Cells      [][2]int
}

// Patterns holds the named Game of Life patterns.
var Patterns = map[string]Pattern{
	"blinker": {5, 5, [][2]int{{2, 1}, {2, 2}, {2, 3}}},
	"toad":    {6, 6, [][2]int{{2, 2}, {2, 3}, {2, 4}, {3, 3}, {3, 4}, {3, 5}}},
	"acorn":   {100, 100, [][2]int{{51, 52}, {52, 54}, {53, 51}, {53, 52}, {53, 55}, {53, 56}, {53, 57}}},
	"glider":  {100, 90, [][2]int{{1, 1}, {2, 2}, {2, 3}, {3, 1}, {3, 2}}},
	"glider_gun": {200, 100, [][2]int{
		{51, 76}, {52, 74}, {52, 76}, {53, 64}, {53, 65}, {53, 72}, {53, 73},
		{53, 86}, {53, 87}, {54, 63}, {54, 67}, {54, 72}, {54, 73}, {54, 86},
		{54, 87}, {55, 52}, {55, 53}, {55, 62}, {55, 68}, {55, 72}, {55, 73},
		{56, 52}, {56, 53}, {56, 62}, {56, 66}, {56, 68}, {56, 69}, {56, 74},
		{56, 76}, {57, 62}, {57, 68}, {57, 76}, {58, 63}, {58, 67}, {59, 64},
		{59, 65}}},
	"block_switch_engine": {400, 400, [][2]int{
		{201, 202}, {201, 203}, {202, 202}, {202, 203}, {211, 203}, {212, 204},
		{212, 202}, {214, 204}, {214, 201}, {215, 201}, {215, 202}, {216, 201}}},
	"flat": {200, 400, [][2]int{
		{80, 200}, {81, 200}, {82, 200}, {83, 200}, {84, 200}, {85, 200},
		{86, 200}, {87, 200}, {89, 200}, {90, 200}, {91, 200}, {92, 200},
		{93, 200}, {97, 200}, {98, 200}, {99, 200}, {106, 200}, {107, 200},
		{108, 200}, {109, 200}, {110, 200}, {111, 200}, {112, 200}, {114, 200},
		{115, 200}, {116, 200}, {117, 200}, {118, 200}}},
}

// PatternNames returns the names of all patterns, sorted.
func PatternNames() []string {
	names := make([]string, 0, len(Patterns))
	for name := range Patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Life is Conway's Game of Life on a torus: a dead cell with exactly
// three live neighbors is born, and a live cell with two or three live
// neighbors survives. Live cells are 1, dead cells 0.
//
// The initial state is the pattern named by parameter "pattern"
// (default "glider"), or, for pattern "random", a fill drawn from
// parameter "seed".
type Life struct {
	cols int
	live map[int][]int
	seed int64
	fill bool
	name string
}

func newLife(rows, cols int, params Params) (Kernel, error) {
	l := &Life{cols: cols, name: params.String("pattern", "glider")}
	if l.name == "random" {
		var err error
		if l.seed, err = params.Int64("seed", 1); err != nil {
			return nil, err
		}
		l.fill = true
		return l, nil
	}
	pattern, ok := Patterns[l.name]
	if !ok {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("unknown life pattern %q; patterns: %v, random", l.name, PatternNames()))
	}
	l.live = make(map[int][]int)
	for _, cell := range pattern.Cells {
		if cell[0] >= rows || cell[1] >= cols {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("pattern %s needs a %dx%d grid, got %dx%d", l.name, pattern.Rows, pattern.Cols, rows, cols))
		}
		l.live[cell[0]] = append(l.live[cell[0]], cell[1])
	}
	return l, nil
}

// Name implements Kernel.
func (*Life) Name() string { return "life" }

// Init implements Stencil. Random fills are seeded per row, so the
// initial state does not depend on how rows are partitioned.
func (l *Life) Init(row int, out []float64) {
	for i := range out {
		out[i] = 0
	}
	if l.fill {
		r := rand.New(rand.NewSource(l.seed*1000003 + int64(row)))
		for i := range out {
			out[i] = float64(r.Intn(2))
		}
		return
	}
	for _, col := range l.live[row] {
		out[col] = 1
	}
}

// Step implements Stencil.
func (l *Life) Step(cur, next *halo.Buffer) {
	for i := 0; i < cur.Rows; i++ {
		out := next.Row(i)
		for j := 0; j < cur.Cols; j++ {
			var n int
			for di := -1; di <= 1; di++ {
				for dj := -1; dj <= 1; dj++ {
					if (di != 0 || dj != 0) && cur.At(i+di, j+dj) != 0 {
						n++
					}
				}
			}
			alive := cur.At(i, j) != 0
			if n == 3 || (alive && n == 2) {
				out[j] = 1
			} else {
				out[j] = 0
			}
		}
	}
}
