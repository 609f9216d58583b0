// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package biggrid

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/kernel"
	"github.com/grailbio/biggrid/partition"
)

// A Domain is the size of a grid. It is fixed for a run.
type Domain struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

// Cells returns the number of cells in the domain.
func (d Domain) Cells() int { return d.Rows * d.Cols }

func (d Domain) String() string { return fmt.Sprintf("%dx%d", d.Rows, d.Cols) }

// A Job describes one run: the grid, how its rows are distributed,
// and how its cells are computed.
type Job struct {
	Domain `yaml:",inline"`
	// Strategy determines how rows are distributed among ranks.
	Strategy partition.Strategy `yaml:"strategy"`
	// Kernel names the registered kernel that computes the cells.
	Kernel string `yaml:"kernel"`
	// Params are passed to the kernel.
	Params kernel.Params `yaml:"params"`
	// Steps is the number of steps run by a stencil kernel.
	Steps int `yaml:"steps"`
	// GatherEvery, when positive, gathers the grid of a stencil run
	// every GatherEvery steps in addition to the final gather.
	GatherEvery int `yaml:"gather_every"`
	// Procs limits the number of goroutines each rank uses to
	// evaluate its rows. Zero means one.
	Procs int `yaml:"procs"`
}

func (j Job) String() string {
	return fmt.Sprintf("%s %s/%s steps=%d", j.Kernel, j.Domain, j.Strategy, j.Steps)
}

// NewKernel instantiates the job's kernel.
func (j Job) NewKernel() (kernel.Kernel, error) {
	return kernel.New(j.Kernel, j.Rows, j.Cols, j.Params)
}

// Validate checks that the job can run on p ranks. All configuration
// errors are reported with kind errors.Invalid, before any rank is
// started.
func (j Job) Validate(p int) error {
	invalid := func(format string, args ...interface{}) error {
		return errors.E(errors.Invalid, fmt.Sprintf("job %s: ", j)+fmt.Sprintf(format, args...))
	}
	switch {
	case p < 1:
		return invalid("need at least one rank, got %d", p)
	case j.Rows < 0 || j.Cols < 1:
		return invalid("bad domain %s", j.Domain)
	case j.Steps < 0:
		return invalid("negative step count %d", j.Steps)
	case j.GatherEvery < 0:
		return invalid("negative gather interval %d", j.GatherEvery)
	case j.Procs < 0:
		return invalid("negative procs %d", j.Procs)
	case j.Strategy == partition.Dynamic && p < 2:
		return invalid("dynamic strategy needs at least 2 ranks, got %d", p)
	case j.Strategy == partition.Even && j.Rows%p != 0:
		return invalid("even strategy: %d rows do not divide evenly among %d ranks", j.Rows, p)
	case j.Strategy < partition.Block || j.Strategy > partition.Dynamic:
		return invalid("unknown strategy %v", j.Strategy)
	}
	k, err := j.NewKernel()
	if err != nil {
		return errors.E(fmt.Sprintf("job %s", j), err)
	}
	switch k.(type) {
	case kernel.Stencil:
		if !j.Strategy.Contiguous() {
			return invalid("stencil kernel %s needs a contiguous strategy, not %v", j.Kernel, j.Strategy)
		}
		if j.Rows < p {
			return invalid("stencil kernel %s needs at least one row per rank, got %d rows for %d ranks", j.Kernel, j.Rows, p)
		}
	case kernel.Evaluator:
		if j.Steps != 0 || j.GatherEvery != 0 {
			return invalid("kernel %s is not a stencil and does not take steps", j.Kernel)
		}
	default:
		return invalid("kernel %s is neither an evaluator nor a stencil", j.Kernel)
	}
	return nil
}
