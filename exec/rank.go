// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/collect"
	"github.com/grailbio/biggrid/comm"
	"github.com/grailbio/biggrid/halo"
	"github.com/grailbio/biggrid/kernel"
	"github.com/grailbio/biggrid/partition"
	"github.com/grailbio/biggrid/sched"
	"github.com/grailbio/biggrid/stats"
)

// Root is the rank at which results are assembled.
const Root = 0

// A Span is one timed phase of a rank's execution.
type Span struct {
	Phase string
	Start time.Time
	Dur   time.Duration
}

// RankStats describes the execution of a single rank.
type RankStats struct {
	Rank int
	// Rows is the number of rows the rank computed.
	Rows int
	// Phases holds the time spent per phase (stats.PhaseCompute,
	// stats.PhaseGhost, stats.PhaseGather).
	Phases stats.Phases
	// Counters holds the rank's message counters.
	Counters stats.Values
	// Spans are the rank's timed phases, in order.
	Spans []Span
}

// rankOutput is what a rank reports to the session when it completes.
// Fields other than Stats are set only at the root.
type rankOutput struct {
	Stats RankStats

	Grid       []float64
	Written    []bool
	Snapshots  []snapshot
	MaxCompute time.Duration

	Tasks   map[int]int
	Latency *hdrhistogram.Snapshot
}

// A snapshot is the grid gathered after a stencil step.
type snapshot struct {
	Step    int
	Data    []float64
	Written []bool
}

// A rank is the program run by every participant of a job.
type rank struct {
	job    biggrid.Job
	c      comm.Comm
	task   *status.Task
	timer  *stats.Timer
	spans  []Span
	out    *rankOutput
	isRoot bool
}

// runRank runs the provided job as the rank given by c. The root rank
// returns the assembled grid. Kernel panics are returned as fatal
// errors.
func runRank(ctx context.Context, c comm.Comm, job biggrid.Job, task *status.Task) (*rankOutput, error) {
	counters := stats.NewMap()
	r := &rank{
		job:    job,
		c:      comm.Counted(c, counters),
		task:   task,
		timer:  stats.NewTimer(),
		out:    &rankOutput{Stats: RankStats{Rank: c.Rank()}},
		isRoot: c.Rank() == Root,
	}
	k, err := job.NewKernel()
	if err != nil {
		return nil, err
	}
	switch k := k.(type) {
	case kernel.Stencil:
		err = r.stencil(ctx, k)
	case kernel.Evaluator:
		if job.Strategy == partition.Dynamic {
			err = r.dynamic(ctx, k)
		} else {
			err = r.static(ctx, k)
		}
	default:
		err = errors.E(errors.Invalid, fmt.Sprintf("kernel %s is neither an evaluator nor a stencil", job.Kernel))
	}
	if err != nil {
		return nil, errors.E(fmt.Sprintf("rank %d", c.Rank()), err)
	}
	r.out.Stats.Phases = r.timer.Phases()
	r.out.Stats.Counters = counters.Snapshot()
	r.out.Stats.Spans = r.spans
	log.Debug.Printf("rank %d/%d: %d rows; %s; %s", c.Rank(), c.Size(), r.out.Stats.Rows, r.out.Stats.Phases, r.out.Stats.Counters)
	return r.out, nil
}

// phase starts timing the named phase. The returned function ends it.
func (r *rank) phase(name string) func() time.Duration {
	start := time.Now()
	r.printf("%s", name)
	return func() time.Duration {
		d := time.Since(start)
		r.timer.Add(name, d)
		r.spans = append(r.spans, Span{Phase: name, Start: start, Dur: d})
		return d
	}
}

func (r *rank) printf(format string, args ...interface{}) {
	if r.task != nil {
		r.task.Printf(format, args...)
	}
}

func (r *rank) partition() (partition.Set, error) {
	set, err := partition.Of(r.job.Rows, r.c.Size(), r.c.Rank(), r.job.Strategy)
	if err != nil {
		return set, err
	}
	log.Debug.Printf("rank %d/%d: %s partition %s", r.c.Rank(), r.c.Size(), r.job.Strategy, set)
	return set, nil
}

// static evaluates the rank's rows of a statically partitioned job
// and gathers them at the root.
func (r *rank) static(ctx context.Context, k kernel.Evaluator) error {
	set, err := r.partition()
	if err != nil {
		return err
	}
	if err := comm.Barrier(ctx, r.c); err != nil {
		return err
	}
	cols := r.job.Cols
	data := make([]float64, set.Len()*cols)
	procs := r.job.Procs
	if procs < 1 {
		procs = 1
	}
	stop := r.phase(stats.PhaseCompute)
	err = traverse.Limit(procs).Each(set.Len(), func(i int) error {
		return evalRow(k, set.Row(i), data[i*cols:(i+1)*cols])
	})
	compute := stop()
	if err != nil {
		return err
	}
	r.out.Stats.Rows = set.Len()
	stop = r.phase(stats.PhaseGather)
	var grid *collect.Grid
	if r.isRoot {
		grid = collect.NewGrid(r.job.Rows, cols)
	}
	seg := collect.Segment{Rows: set.Rows(), Data: data, Contiguous: r.job.Strategy.Contiguous()}
	if err := collect.Gatherv(ctx, r.c, Root, seg, grid); err != nil {
		return err
	}
	stop()
	if r.isRoot {
		if err := grid.Check(); err != nil {
			return err
		}
		r.out.Grid, r.out.Written = grid.Data, grid.WrittenRows()
	}
	return r.reduceCompute(ctx, compute)
}

// dynamic runs the coordinator at the root and a worker everywhere
// else.
func (r *rank) dynamic(ctx context.Context, k kernel.Evaluator) error {
	if err := comm.Barrier(ctx, r.c); err != nil {
		return err
	}
	var compute time.Duration
	if r.isRoot {
		grid := collect.NewGrid(r.job.Rows, r.job.Cols)
		stop := r.phase(stats.PhaseGather)
		report, err := sched.Coordinate(ctx, r.c, r.job.Rows, grid.Set)
		stop()
		if err != nil {
			return err
		}
		if err := grid.Check(); err != nil {
			return err
		}
		r.out.Grid, r.out.Written = grid.Data, grid.WrittenRows()
		r.out.Tasks = report.Tasks
		r.out.Latency = report.Latency.Export()
	} else {
		n, err := sched.Work(ctx, r.c, func(row int) ([]float64, error) {
			stop := r.phase(stats.PhaseCompute)
			defer stop()
			values := make([]float64, r.job.Cols)
			return values, evalRow(k, row, values)
		})
		if err != nil {
			return err
		}
		r.out.Stats.Rows = n
		compute = r.timer.Get(stats.PhaseCompute)
	}
	return r.reduceCompute(ctx, compute)
}

// stencil runs the job's steps over the rank's block, exchanging
// ghost rows with its ring neighbors after every step.
func (r *rank) stencil(ctx context.Context, k kernel.Stencil) error {
	set, err := r.partition()
	if err != nil {
		return err
	}
	if !set.Contiguous() {
		return errors.E(errors.Invalid, fmt.Sprintf("stencil needs contiguous rows, got %s", set))
	}
	cols := r.job.Cols
	cur := halo.NewBuffer(set.Start, set.Len(), cols)
	next := halo.NewBuffer(set.Start, set.Len(), cols)
	for i := 0; i < set.Len(); i++ {
		k.Init(set.Row(i), cur.Row(i))
	}
	r.out.Stats.Rows = set.Len()
	if err := comm.Barrier(ctx, r.c); err != nil {
		return err
	}
	stop := r.phase(stats.PhaseGhost)
	err = halo.Exchange(ctx, r.c, cur)
	stop()
	if err != nil {
		return err
	}
	for step := 1; step <= r.job.Steps; step++ {
		stop = r.phase(stats.PhaseCompute)
		err = stepStencil(k, cur, next)
		stop()
		if err != nil {
			return err
		}
		cur, next = next, cur
		if step == r.job.Steps {
			break
		}
		stop = r.phase(stats.PhaseGhost)
		err = halo.Exchange(ctx, r.c, cur)
		stop()
		if err != nil {
			return err
		}
		if r.job.GatherEvery > 0 && step%r.job.GatherEvery == 0 {
			grid, err := r.gatherBlock(ctx, set, cur)
			if err != nil {
				return err
			}
			if grid != nil {
				r.out.Snapshots = append(r.out.Snapshots, snapshot{Step: step, Data: grid.Data, Written: grid.WrittenRows()})
			}
		}
	}
	grid, err := r.gatherBlock(ctx, set, cur)
	if err != nil {
		return err
	}
	if grid != nil {
		r.out.Grid, r.out.Written = grid.Data, grid.WrittenRows()
	}
	return r.reduceCompute(ctx, r.timer.Get(stats.PhaseCompute))
}

// gatherBlock gathers every rank's real rows at the root, which
// returns the complete grid. Other ranks return nil.
func (r *rank) gatherBlock(ctx context.Context, set partition.Set, buf *halo.Buffer) (*collect.Grid, error) {
	defer r.phase(stats.PhaseGather)()
	var grid *collect.Grid
	if r.isRoot {
		grid = collect.NewGrid(r.job.Rows, r.job.Cols)
	}
	seg := collect.Segment{Rows: set.Rows(), Data: buf.Real(), Contiguous: true}
	if err := collect.Gatherv(ctx, r.c, Root, seg, grid); err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, nil
	}
	return grid, grid.Check()
}

func (r *rank) reduceCompute(ctx context.Context, compute time.Duration) error {
	max, err := collect.ReduceMax(ctx, r.c, Root, compute.Seconds())
	if err != nil {
		return err
	}
	if r.isRoot {
		r.out.MaxCompute = time.Duration(max * float64(time.Second))
	}
	return nil
}

// evalRow evaluates a row, returning kernel panics as fatal errors.
func evalRow(k kernel.Evaluator, row int, out []float64) (err error) {
	defer recoverKernel(k, &err)
	kernel.EvalRow(k, row, out)
	return nil
}

// stepStencil advances a block, returning kernel panics as fatal
// errors.
func stepStencil(k kernel.Stencil, cur, next *halo.Buffer) (err error) {
	defer recoverKernel(k, &err)
	k.Step(cur, next)
	return nil
}

func recoverKernel(k kernel.Kernel, err *error) {
	if e := recover(); e != nil {
		stack := debug.Stack()
		*err = errors.E(fmt.Errorf("panic in kernel %s: %v\n%s", k.Name(), e, string(stack)), errors.Fatal)
	}
}
