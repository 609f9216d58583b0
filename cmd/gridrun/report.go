// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/grailbio/base/data"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/stats"
)

// report writes a timing summary of res to w. If serial is non-nil,
// the summary includes the speedup and efficiency relative to it.
func report(w io.Writer, sess *exec.Session, res, serial *exec.Result) {
	var tw tabwriter.Writer
	tw.Init(w, 4, 4, 1, ' ', 0)
	fmt.Fprintf(&tw, "job:\t%s on %d ranks\n", res.Job, sess.Parallelism())
	fmt.Fprintf(&tw, "elapsed:\t%s\n", res.Elapsed)
	fmt.Fprintf(&tw, "max compute:\t%s\n", res.MaxCompute)
	fmt.Fprintf(&tw, "checksum:\t%016x\n", res.Grid.Checksum())
	for _, phase := range []string{stats.PhaseCompute, stats.PhaseGhost, stats.PhaseGather} {
		if s := res.Phase(phase); s.Max > 0 {
			fmt.Fprintf(&tw, "%s (s):\t%s\n", phase, s)
		}
	}
	counters := res.Counters()
	fmt.Fprintf(&tw, "messages:\t%d sent, %s\n", counters[stats.Sent], data.Size(counters[stats.SentBytes]))
	msgs, size := counters.ByTag(stats.Sent), counters.ByTag(stats.SentBytes)
	tags := make([]string, 0, len(msgs))
	for tag := range msgs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Fprintf(&tw, "  %s:\t%d sent, %s\n", tag, msgs[tag], data.Size(size[tag]))
	}
	if len(res.Tasks) > 0 {
		workers := make([]int, 0, len(res.Tasks))
		for worker := range res.Tasks {
			workers = append(workers, worker)
		}
		sort.Ints(workers)
		for _, worker := range workers {
			fmt.Fprintf(&tw, "rank %d:\t%d rows\n", worker, res.Tasks[worker])
		}
	}
	if res.Latency != nil && res.Latency.TotalCount() > 0 {
		q := func(p float64) time.Duration {
			return time.Duration(res.Latency.ValueAtQuantile(p)) * time.Microsecond
		}
		fmt.Fprintf(&tw, "task latency:\tp50 %s, p90 %s, p99 %s\n", q(50), q(90), q(99))
	}
	if serial != nil {
		speedup, efficiency := res.Speedup(serial.Elapsed)
		fmt.Fprintf(&tw, "serial elapsed:\t%s\n", serial.Elapsed)
		fmt.Fprintf(&tw, "speedup:\t%.2f\n", speedup)
		fmt.Fprintf(&tw, "efficiency:\t%.1f%%\n", 100*efficiency)
		if serial.Grid.Checksum() != res.Grid.Checksum() {
			fmt.Fprintf(&tw, "warning:\tresult differs from the single-rank result\n")
		}
	}
	tw.Flush()
}
