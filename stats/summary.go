// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// A Summary describes the spread of one measurement across ranks.
type Summary struct {
	N                     int
	Min, Max, Mean, Stdev float64
}

// Summarize computes a Summary of xs. The zero Summary is returned
// for empty input.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	s := Summary{N: len(xs), Min: floats.Min(xs), Max: floats.Max(xs)}
	if len(xs) == 1 {
		s.Mean = xs[0]
		return s
	}
	s.Mean, s.Stdev = stat.MeanStdDev(xs, nil)
	return s
}

// SummarizeDurations summarizes durations in seconds.
func SummarizeDurations(ds []time.Duration) Summary {
	xs := make([]float64, len(ds))
	for i, d := range ds {
		xs[i] = d.Seconds()
	}
	return Summarize(xs)
}

// Imbalance returns the ratio of the maximum to the mean, or 1 when
// the mean is zero. A perfectly balanced run has imbalance 1.
func (s Summary) Imbalance() float64 {
	if s.Mean == 0 {
		return 1
	}
	return s.Max / s.Mean
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d min=%.4g max=%.4g mean=%.4g stdev=%.4g imbalance=%.3f",
		s.N, s.Min, s.Max, s.Mean, s.Stdev, s.Imbalance())
}
