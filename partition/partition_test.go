// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"pgregory.net/rapid"
)

func TestBlockExample(t *testing.T) {
	for id, want := range []Set{
		{Start: 0, Stride: 1, Count: 4},
		{Start: 4, Stride: 1, Count: 3},
		{Start: 7, Stride: 1, Count: 3},
	} {
		if got := Block(10, 3, id); got != want {
			t.Errorf("rank %d: got %v, want %v", id, got, want)
		}
	}
}

func TestCyclicExample(t *testing.T) {
	for id, want := range [][]int{
		{0, 3, 6, 9},
		{1, 4, 7},
		{2, 5, 8},
	} {
		if got := Cyclic(10, 3, id).Rows(); !reflect.DeepEqual(got, want) {
			t.Errorf("rank %d: got %v, want %v", id, got, want)
		}
	}
}

func TestFewerRowsThanRanks(t *testing.T) {
	for id := 0; id < 5; id++ {
		b, c := Block(3, 5, id), Cyclic(3, 5, id)
		want := 0
		if id < 3 {
			want = 1
		}
		if got := b.Len(); got != want {
			t.Errorf("block rank %d: got %v, want %v", id, got, want)
		}
		if got := c.Len(); got != want {
			t.Errorf("cyclic rank %d: got %v, want %v", id, got, want)
		}
	}
}

func TestEven(t *testing.T) {
	s, err := Even(12, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s, (Set{Start: 6, Stride: 1, Count: 3}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	_, err = Even(10, 3, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("unexpected error kind: %v", err)
	}
}

func TestOf(t *testing.T) {
	if _, err := Of(10, 3, 0, Dynamic); !errors.Is(errors.Invalid, err) {
		t.Errorf("dynamic: got %v, want invalid", err)
	}
	if _, err := Of(10, 0, 0, Block); !errors.Is(errors.Invalid, err) {
		t.Errorf("p=0: got %v, want invalid", err)
	}
	if _, err := Of(10, 3, 3, Cyclic); !errors.Is(errors.Invalid, err) {
		t.Errorf("id=p: got %v, want invalid", err)
	}
	s, err := Of(10, 3, 1, Cyclic)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s, Cyclic(10, 3, 1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSet(t *testing.T) {
	s := Cyclic(20, 3, 1)
	if got, want := s.String(), "{1,4,...,19}"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !s.Contains(7) || s.Contains(8) || s.Contains(22) || s.Contains(-2) {
		t.Errorf("bad membership for %v", s)
	}
	if got, want := s.Local(10), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Local(11), -1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if s.Contiguous() {
		t.Error("cyclic set reported as contiguous")
	}
	if got, want := Block(10, 3, 2).String(), "[7,10)"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{Block, Cyclic, Even, Dynamic} {
		got, err := ParseStrategy(s.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("got %v, want %v", got, s)
		}
	}
	if _, err := ParseStrategy("diagonal"); err == nil {
		t.Error("expected error")
	}
}

// TestCoverage checks that, for every strategy, the sets of all ranks
// cover every row exactly once and agree with Owner.
func TestCoverage(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var (
			p    = rapid.IntRange(1, 40).Draw(t, "p")
			rows = rapid.IntRange(0, 300).Draw(t, "rows")
		)
		strategies := []Strategy{Block, Cyclic}
		if rows%p == 0 {
			strategies = append(strategies, Even)
		}
		for _, strategy := range strategies {
			seen := make([]int, rows)
			for id := 0; id < p; id++ {
				s, err := Of(rows, p, id, strategy)
				if err != nil {
					t.Fatal(err)
				}
				for _, row := range s.Rows() {
					if row < 0 || row >= rows {
						t.Fatalf("%v: rank %d owns out of range row %d", strategy, id, row)
					}
					seen[row]++
					owner, err := Owner(rows, p, row, strategy)
					if err != nil {
						t.Fatal(err)
					}
					if owner != id {
						t.Fatalf("%v: row %d: owner %d, want %d", strategy, row, owner, id)
					}
				}
			}
			for row, n := range seen {
				if n != 1 {
					t.Fatalf("%v rows=%d p=%d: row %d owned %d times", strategy, rows, p, row, n)
				}
			}
		}
	})
}

func TestCyclicFormula(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var (
			p    = rapid.IntRange(1, 20).Draw(t, "p")
			rows = rapid.IntRange(0, 200).Draw(t, "rows")
			id   = rapid.IntRange(0, p-1).Draw(t, "id")
		)
		var want []int
		for r := id; r < rows; r += p {
			want = append(want, r)
		}
		got := Cyclic(rows, p, id).Rows()
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})
}

func TestBlockSizes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var (
			p    = rapid.IntRange(1, 20).Draw(t, "p")
			rows = rapid.IntRange(0, 200).Draw(t, "rows")
		)
		next := 0
		for id := 0; id < p; id++ {
			s := Block(rows, p, id)
			if s.Start != next {
				t.Fatalf("rank %d starts at %d, want %d", id, s.Start, next)
			}
			want := rows / p
			if id < rows%p {
				want++
			}
			if s.Len() != want {
				t.Fatalf("rank %d owns %d rows, want %d", id, s.Len(), want)
			}
			next += s.Len()
		}
	})
}

func TestIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var (
			p        = rapid.IntRange(1, 20).Draw(t, "p")
			rows     = rapid.IntRange(0, 200).Draw(t, "rows")
			id       = rapid.IntRange(0, p-1).Draw(t, "id")
			strategy = rapid.SampledFrom([]Strategy{Block, Cyclic}).Draw(t, "strategy")
		)
		first, err := Of(rows, p, id, strategy)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			again, err := Of(rows, p, id, strategy)
			if err != nil {
				t.Fatal(err)
			}
			if again != first {
				t.Fatalf("got %v, want %v", again, first)
			}
		}
	})
}
