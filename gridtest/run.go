// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package gridtest provides utilities for testing biggrid kernels
// and jobs. The utilities here are generally not optimized for
// performance or robustness; they are strictly intended for unit
// testing.
package gridtest

import (
	"context"
	"testing"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/collect"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/partition"
)

// Run runs the provided job on p in-process ranks, returning its
// result. Errors are reported as fatal to the provided t instance.
func Run(t testing.TB, job biggrid.Job, p int) *exec.Result {
	t.Helper()
	sess := exec.Start(exec.Local, exec.Parallelism(p))
	defer sess.Shutdown()
	res, err := sess.Run(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

// RunAll runs the provided job on p in-process ranks under every
// strategy that applies to it, and checks that each strategy
// produces the same grid as a single rank does. RunAll returns the
// single-rank grid.
func RunAll(t testing.TB, job biggrid.Job, p int) *collect.Grid {
	t.Helper()
	serial := job
	serial.Strategy = partition.Block
	want := Run(t, serial, 1).Grid
	for _, strategy := range Strategies(job, p) {
		job.Strategy = strategy
		got := Run(t, job, p).Grid
		if got.Checksum() != want.Checksum() {
			t.Errorf("%s on %d ranks: grid differs from a single rank's:\n%s\nwant:\n%s", job, p, got, want)
		}
	}
	return want
}

// Strategies returns the strategies under which the job can run on
// p ranks.
func Strategies(job biggrid.Job, p int) []partition.Strategy {
	var strategies []partition.Strategy
	for _, strategy := range []partition.Strategy{partition.Block, partition.Cyclic, partition.Even, partition.Dynamic} {
		job.Strategy = strategy
		if job.Validate(p) == nil {
			strategies = append(strategies, strategy)
		}
	}
	return strategies
}
