// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sched implements dynamic master-worker row scheduling. Rank
// 0 coordinates: it hands out one row at a time to each worker and
// sends a worker its next row as soon as the worker returns a result.
// Every other rank is a worker. A worker never holds more than one
// row; each row is assigned exactly once.
package sched

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid/comm"
)

// Coordinator is the rank that runs Coordinate.
const Coordinator = 0

// maxLatency bounds the task latencies tracked by a Report.
const maxLatency = time.Hour

// A Report describes a completed coordination.
type Report struct {
	// Results is the number of results received.
	Results int
	// Terminates is the number of terminate messages sent.
	Terminates int
	// Tasks holds the number of rows assigned to each worker.
	Tasks map[int]int
	// Latency records, in microseconds, the time between sending a
	// task and receiving its result.
	Latency *hdrhistogram.Histogram
}

func newReport() *Report {
	return &Report{
		Tasks:   make(map[int]int),
		Latency: hdrhistogram.New(1, maxLatency.Microseconds(), 3),
	}
}

// Workers returns the ranks that were assigned at least one row, in
// increasing order.
func (r *Report) Workers() []int {
	workers := make([]int, 0, len(r.Tasks))
	for w := range r.Tasks {
		workers = append(workers, w)
	}
	sort.Ints(workers)
	return workers
}

// Quantile returns the q'th percentile task latency.
func (r *Report) Quantile(q float64) time.Duration {
	return time.Duration(r.Latency.ValueAtQuantile(q)) * time.Microsecond
}

// Coordinate distributes rows 0..rows-1 to the workers of c's group
// and passes each returned row to sink. It must run at rank 0 of a
// group with at least two ranks. Coordinate returns once every row
// has been computed and every worker has been told to terminate.
func Coordinate(ctx context.Context, c comm.Comm, rows int, sink func(row int, values []float64) error) (*Report, error) {
	if c.Size() < 2 {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("dynamic scheduling needs at least 2 ranks, got %d", c.Size()))
	}
	if c.Rank() != Coordinator {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("rank %d cannot coordinate", c.Rank()))
	}
	if rows < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("negative row count %d", rows))
	}
	var (
		report      = newReport()
		next        int
		outstanding = make(map[int]int)
		sent        = make(map[int]time.Time)
	)
	dispatch := func(worker int) error {
		if next == rows {
			report.Terminates++
			return c.Send(ctx, worker, comm.Message{Tag: comm.TagTerminate})
		}
		outstanding[worker] = next
		sent[worker] = time.Now()
		report.Tasks[worker]++
		next++
		return c.Send(ctx, worker, comm.Message{Tag: comm.TagTask, Row: outstanding[worker]})
	}
	for w := 1; w < c.Size(); w++ {
		if err := dispatch(w); err != nil {
			return report, err
		}
	}
	for completed := 0; completed < rows; completed++ {
		m, err := c.Recv(ctx, comm.AnySource, comm.TagResult)
		if err != nil {
			return report, err
		}
		row, ok := outstanding[m.Source]
		if !ok || row != m.Row {
			return report, errors.E(errors.Integrity,
				fmt.Sprintf("worker %d returned row %d, which it was not assigned", m.Source, m.Row))
		}
		delete(outstanding, m.Source)
		if err := report.Latency.RecordValue(time.Since(sent[m.Source]).Microseconds()); err != nil {
			log.Debug.Printf("sched: latency not recorded: %v", err)
		}
		if err := sink(m.Row, m.Data); err != nil {
			return report, err
		}
		report.Results++
		if err := dispatch(m.Source); err != nil {
			return report, err
		}
	}
	log.Debug.Printf("sched: %d rows computed by %d workers; p50 %s p99 %s",
		report.Results, len(report.Tasks), report.Quantile(50), report.Quantile(99))
	return report, nil
}

// Work runs the worker role: it evaluates each row assigned by the
// coordinator and returns the result, until it is told to terminate.
// Work returns the number of rows it computed.
func Work(ctx context.Context, c comm.Comm, eval func(row int) ([]float64, error)) (int, error) {
	if c.Rank() == Coordinator {
		return 0, errors.E(errors.Invalid, "the coordinator cannot work")
	}
	for n := 0; ; n++ {
		m, err := c.Recv(ctx, Coordinator, comm.AnyTag)
		if err != nil {
			return n, err
		}
		switch m.Tag {
		case comm.TagTerminate:
			return n, nil
		case comm.TagTask:
			values, err := eval(m.Row)
			if err != nil {
				return n, err
			}
			if err := c.Send(ctx, Coordinator, comm.Message{Tag: comm.TagResult, Row: m.Row, Data: values}); err != nil {
				return n, err
			}
		default:
			return n, errors.E(errors.Integrity, fmt.Sprintf("worker %d: unexpected message %v", c.Rank(), m))
		}
	}
}
