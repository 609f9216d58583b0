// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec runs biggrid jobs. A Session owns an executor, which
// provides the group of ranks that run each job: the local executor
// runs every rank in a goroutine of the current process, and the
// bigmachine executor runs each rank on its own bigmachine machine.
package exec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/diagnostic/dump"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/eventlog"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/collect"
	"github.com/grailbio/biggrid/stats"
)

// An Executor provides the ranks that run a job.
type Executor interface {
	// Name returns a human-friendly name for the executor.
	Name() string
	// Start starts the executor for the provided session. The returned
	// function is called when the session is shut down.
	Start(*Session) (shutdown func())
	// Run runs the job on the session's parallelism, one rank per
	// participant, and returns the output of every rank in rank order.
	// If any rank fails, Run cancels the others and returns the error.
	Run(ctx context.Context, job biggrid.Job, group *status.Group) ([]*rankOutput, error)
	// HandleDebug adds executor-specific debug handlers.
	HandleDebug(handler *http.ServeMux)
}

// Session represents a biggrid compute session. A session owns an
// executor and a fixed parallelism: every job run by the session is
// run by the same number of ranks. A session can run multiple jobs.
//
//	sess := exec.Start(exec.Local, exec.Parallelism(4))
//	defer sess.Shutdown()
//	res, err := sess.Run(ctx, biggrid.Job{
//		Domain: biggrid.Domain{Rows: 1024, Cols: 1024},
//		Kernel: "mandelbrot",
//		Strategy: partition.Cyclic,
//	})
type Session struct {
	context.Context
	index     int32
	shutdown  func()
	p         int
	executor  Executor
	status    *status.Status
	eventer   eventlog.Eventer
	tracePath string
	shuffle   bool
	seed      int64

	runs   int32
	tracer *tracer
}

func newSession() *Session {
	return &Session{
		Context: backgroundcontext.Get(),
		index:   atomic.AddInt32(&nextSessionIndex, 1) - 1,
		eventer: eventlog.Nop{},
	}
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-binary executor.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. If any params are provided,
// they are applied to each bigmachine allocated by the session.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Parallelism configures the session with the provided number of
// ranks.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// Status configures the session with a status object to which
// run statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status

		name := fmt.Sprintf("biggrid-%02d-status", s.index)
		dump.Register(name, func(ctx context.Context, w io.Writer) error {
			return status.Marshal(w)
		})
	}
}

// Eventer configures the session with an Eventer that will be used to log
// session events (for analytics).
func Eventer(e eventlog.Eventer) Option {
	return func(s *Session) {
		s.eventer = e
	}
}

// TracePath configures the path to which a trace event file for the session
// will be written on shutdown.
func TracePath(path string) Option {
	return func(s *Session) {
		s.tracePath = path
	}
}

// ShuffleArrivals makes receives from any source pick among pending
// messages at random, seeded by seed, instead of in arrival order.
// It is used to exercise jobs under adversarial message orders.
func ShuffleArrivals(seed int64) Option {
	return func(s *Session) {
		s.shuffle = true
		s.seed = seed
	}
}

// nextSessionIndex is the index of the next session that will be started by
// Start.
var nextSessionIndex int32

// Start creates and starts a new biggrid session, configuring it
// according to the provided options. If no executor is configured,
// the session uses the local executor.
func Start(options ...Option) *Session {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	if s.p == 0 {
		s.p = 1
	}
	if s.executor == nil {
		s.executor = newLocalExecutor()
	}
	s.start()
	return s
}

func (s *Session) start() {
	s.shutdown = s.executor.Start(s)
	s.eventer.Event("biggrid:sessionStart",
		"executorType", s.executor.Name(),
		"parallelism", s.p)
	s.tracer = newTracer()

	name := fmt.Sprintf("biggrid-%02d-trace", s.index)
	dump.Register(name, func(ctx context.Context, w io.Writer) error {
		return s.tracer.Marshal(w)
	})
}

// Run runs the provided job on the session's ranks. The job is
// validated before any rank is started; configuration errors are
// returned with kind errors.Invalid. Run returns when every rank has
// completed, or when any rank fails.
func (s *Session) Run(ctx context.Context, job biggrid.Job) (*Result, error) {
	if err := job.Validate(s.p); err != nil {
		return nil, err
	}
	index := atomic.AddInt32(&s.runs, 1) - 1
	var group *status.Group
	if s.status != nil {
		group = s.status.Groupf("run %d: %s on %d ranks", index, job, s.p)
	}
	s.eventer.Event("biggrid:runStart",
		"run", index,
		"kernel", job.Kernel,
		"strategy", job.Strategy.String(),
		"rows", job.Rows,
		"cols", job.Cols,
		"steps", job.Steps)
	start := time.Now()
	outputs, err := s.executor.Run(ctx, job, group)
	elapsed := time.Since(start)
	if err != nil {
		s.eventer.Event("biggrid:runError", "run", index, "error", err.Error())
		if group != nil {
			group.Printf("failed: %v", err)
		}
		return nil, err
	}
	res, err := newResult(job, outputs, elapsed)
	if err != nil {
		return nil, err
	}
	s.tracer.Run(int(index), res.Ranks)
	s.eventer.Event("biggrid:runComplete",
		"run", index,
		"elapsed", elapsed.String(),
		"maxCompute", res.MaxCompute.String())
	log.Debug.Printf("run %d: %s: %s, max compute %s, checksum %x", index, job, elapsed, res.MaxCompute, res.Grid.Checksum())
	return res, nil
}

// Must is a version of Run that panics if the job fails.
func (s *Session) Must(ctx context.Context, job biggrid.Job) *Result {
	res, err := s.Run(ctx, job)
	if err != nil {
		log.Panicf("exec.Run: %v", err)
	}
	return res
}

// Parallelism returns the number of ranks that run each job.
func (s *Session) Parallelism() int {
	return s.p
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
	if s.tracePath != "" {
		writeTraceFile(s.Context, s.tracer, s.tracePath)
	}
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// HandleDebug registers the session's debug handlers with the provided
// mux.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	s.executor.HandleDebug(handler)
	if s.tracer != nil {
		handler.HandleFunc("/debug/trace", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("content-type", "application/json; charset=utf-8")
			if err := s.tracer.Marshal(w); err != nil {
				log.Error.Printf("exec.Session: /debug/trace: marshal: %v", err)
			}
		})
	}
}

// A Result is the outcome of a job run.
type Result struct {
	Job biggrid.Job
	// Grid is the assembled result of the run.
	Grid *collect.Grid
	// Snapshots holds the grids gathered during a stencil run with
	// Job.GatherEvery set, keyed by step.
	Snapshots map[int]*collect.Grid
	// MaxCompute is the longest compute time of any rank.
	MaxCompute time.Duration
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
	// Ranks describes each rank's execution, in rank order.
	Ranks []RankStats
	// Tasks holds, for dynamic runs, the number of rows assigned to
	// each worker.
	Tasks map[int]int
	// Latency holds, for dynamic runs, the distribution of task
	// round-trip times in microseconds.
	Latency *hdrhistogram.Histogram
}

func newResult(job biggrid.Job, outputs []*rankOutput, elapsed time.Duration) (*Result, error) {
	if len(outputs) == 0 || outputs[Root] == nil {
		return nil, errors.E(errors.Integrity, "missing root output")
	}
	root := outputs[Root]
	grid, err := resultGrid(job, root.Grid, root.Written)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Job:        job,
		Grid:       grid,
		MaxCompute: root.MaxCompute,
		Elapsed:    elapsed,
		Ranks:      make([]RankStats, len(outputs)),
		Tasks:      root.Tasks,
	}
	for i, out := range outputs {
		res.Ranks[i] = out.Stats
	}
	if root.Latency != nil {
		res.Latency = hdrhistogram.Import(root.Latency)
	}
	if len(root.Snapshots) > 0 {
		res.Snapshots = make(map[int]*collect.Grid)
		for _, snap := range root.Snapshots {
			if res.Snapshots[snap.Step], err = resultGrid(job, snap.Data, snap.Written); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// resultGrid rebuilds a grid assembled at the root. Only complete
// grids are results.
func resultGrid(job biggrid.Job, data []float64, written []bool) (*collect.Grid, error) {
	grid, err := collect.GridOf(job.Rows, job.Cols, data, written)
	if err != nil {
		return nil, err
	}
	return grid, grid.Check()
}

// Phase returns the summary across ranks of the time spent in the
// named phase.
func (r *Result) Phase(name string) stats.Summary {
	ds := make([]time.Duration, len(r.Ranks))
	for i, rank := range r.Ranks {
		ds[i] = rank.Phases[name]
	}
	return stats.SummarizeDurations(ds)
}

// Counters returns the message counters of all ranks combined. See
// stats.Values.ByTag for the traffic of each tag.
func (r *Result) Counters() stats.Values {
	vals := make(stats.Values)
	for _, rank := range r.Ranks {
		vals.Add(rank.Counters)
	}
	return vals
}

// Speedup returns the speedup of the run relative to a serial run
// that took the provided time, and the corresponding parallel
// efficiency.
func (r *Result) Speedup(serial time.Duration) (speedup, efficiency float64) {
	if r.Elapsed <= 0 || len(r.Ranks) == 0 {
		return 0, 0
	}
	speedup = serial.Seconds() / r.Elapsed.Seconds()
	return speedup, speedup / float64(len(r.Ranks))
}

func writeTraceFile(ctx context.Context, tracer *tracer, path string) {
	f, err := file.Create(ctx, path)
	if err != nil {
		log.Error.Printf("error creating trace file at %q: %v", path, err)
		return
	}
	defer func() {
		if closeErr := f.Close(ctx); closeErr != nil {
			log.Error.Printf("error closing trace file at %q: %v", path, closeErr)
		}
	}()
	if err := tracer.Marshal(f.Writer(ctx)); err != nil {
		log.Error.Printf("error marshaling to trace file at %q: %v", path, err)
	}
}
