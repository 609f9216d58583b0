// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"sort"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid/internal/trace"
	"gonum.org/v1/gonum/stat"
)

// span is a single timed phase of one rank in one run.
type span struct {
	run   int
	rank  int
	phase string
	// start is measured as a duration offset from the start of tracing.
	start    time.Duration
	duration time.Duration
}

// phaseStat represents the spread across ranks of the time one run
// spent in one phase. Quantiles are over per-rank totals.
type phaseStat struct {
	run   int
	phase string
	ranks int
	spans int
	// start is measured as a duration offset from the start of tracing.
	start time.Duration
	// wall is the time from the first span's start to the last span's
	// end.
	wall  time.Duration
	total time.Duration
	min   time.Duration
	q1    time.Duration
	q2    time.Duration
	q3    time.Duration
	max   time.Duration
}

// imbalance returns the ratio of the slowest rank's time to the mean.
func (s phaseStat) imbalance() float64 {
	if s.total == 0 {
		return 1
	}
	return float64(s.max) * float64(s.ranks) / float64(s.total)
}

// buildSpans interprets the complete events of a biggrid trace. Rank
// r is traced as process r+1, and run i as thread i.
func buildSpans(events []trace.Event) []span {
	var spans []span
	for _, event := range events {
		if event.Ph != trace.Complete {
			continue
		}
		rank := event.Rank()
		if rank < 0 {
			log.Printf("unexpected process id: %#v", event)
			continue
		}
		spans = append(spans, span{
			run:      event.Tid,
			rank:     rank,
			phase:    event.Name,
			start:    time.Duration(event.Ts * 1e3),
			duration: time.Duration(event.Dur * 1e3),
		})
	}
	return spans
}

// buildPhaseStats aggregates spans by run and phase, ordered by run
// and then by start.
func buildPhaseStats(spans []span) []phaseStat {
	type runPhase struct {
		run   int
		phase string
	}
	type accum struct {
		minStart time.Duration
		maxEnd   time.Duration
		spans    int
		perRank  map[int]time.Duration
	}
	accums := make(map[runPhase]*accum)
	for _, s := range spans {
		key := runPhase{s.run, s.phase}
		a, ok := accums[key]
		if !ok {
			a = &accum{minStart: 1<<63 - 1, perRank: make(map[int]time.Duration)}
			accums[key] = a
		}
		if s.start < a.minStart {
			a.minStart = s.start
		}
		if end := s.start + s.duration; a.maxEnd < end {
			a.maxEnd = end
		}
		a.spans++
		a.perRank[s.rank] += s.duration
	}
	stats := make([]phaseStat, 0, len(accums))
	for key, a := range accums {
		ds := make([]time.Duration, 0, len(a.perRank))
		var total time.Duration
		for _, d := range a.perRank {
			ds = append(ds, d)
			total += d
		}
		min, q1, q2, q3, max := quartiles(ds)
		stats = append(stats, phaseStat{
			run:   key.run,
			phase: key.phase,
			ranks: len(ds),
			spans: a.spans,
			start: a.minStart,
			wall:  a.maxEnd - a.minStart,
			total: total,
			min:   min,
			q1:    q1,
			q2:    q2,
			q3:    q3,
			max:   max,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].run != stats[j].run {
			return stats[i].run < stats[j].run
		}
		return stats[i].start < stats[j].start
	})
	return stats
}

// quartiles returns the minimum, quartiles, and maximum of ds, which
// must be non-empty. Quartiles are taken from the empirical
// distribution, so each is an element of ds.
func quartiles(ds []time.Duration) (min, q1, q2, q3, max time.Duration) {
	xs := make([]float64, len(ds))
	for i, d := range ds {
		xs[i] = float64(d)
	}
	sort.Float64s(xs)
	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, xs, nil))
	}
	return time.Duration(xs[0]), q(0.25), q(0.5), q(0.75), time.Duration(xs[len(xs)-1])
}
