// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"io"
	"sync"

	"github.com/grailbio/biggrid/internal/trace"
)

// A tracer collects the phases of every rank of every run in a
// session. Trace events are logged in the Chrome tracing format and
// can be visualized using its built-in visualization tool
// (chrome://tracing). Each rank is represented as a Chrome "process",
// and each run as a "thread" of that process, so that phases of
// consecutive runs line up.
type tracer struct {
	mu     sync.Mutex
	events []trace.Event
	ranks  map[int]bool
}

func newTracer() *tracer {
	return &tracer{ranks: make(map[int]bool)}
}

// Run records the phases of all ranks of a run.
func (t *tracer) Run(run int, ranks []RankStats) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rank := range ranks {
		if !t.ranks[rank.Rank] {
			t.ranks[rank.Rank] = true
			t.events = append(t.events, trace.RankName(rank.Rank))
		}
		for _, span := range rank.Spans {
			t.events = append(t.events, trace.Span(rank.Rank, run, span.Phase, span.Start, span.Dur))
		}
	}
}

// Marshal writes the trace captured by t into the writer w in
// Chrome's event tracing format. Timestamps are relative to the
// earliest recorded span.
func (t *tracer) Marshal(w io.Writer) error {
	t.mu.Lock()
	tr := trace.T{Events: make([]trace.Event, len(t.events))}
	copy(tr.Events, t.events)
	t.mu.Unlock()
	tr.Rebase()
	return tr.Encode(w)
}
