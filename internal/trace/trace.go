// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package trace defines the traces written by biggrid sessions, in
// the Chrome trace event format. Rank r is traced as process r+1 and
// run i as thread i of each process, so that the phases of a run line
// up across ranks in chrome://tracing.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Event phases used in biggrid traces.
const (
	// Complete events are timed rank phases.
	Complete = "X"
	// Metadata events name the processes.
	Metadata = "M"
)

// T is a trace: a list of events.
type T struct {
	Events []Event `json:"traceEvents"`
}

// Event is an event in the Chrome tracing format. The fields are
// mirrored exactly. For more details, see:
//
//	https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
type Event struct {
	Pid  int                    `json:"pid"`
	Tid  int                    `json:"tid"`
	Ts   int64                  `json:"ts"`
	Ph   string                 `json:"ph"`
	Dur  int64                  `json:"dur,omitempty"`
	Name string                 `json:"name"`
	Cat  string                 `json:"cat,omitempty"`
	Args map[string]interface{} `json:"args"`
}

// RankName returns the event that names the process of a rank.
func RankName(rank int) Event {
	return Event{
		Pid:  rank + 1,
		Ph:   Metadata,
		Name: "process_name",
		Args: map[string]interface{}{"name": fmt.Sprintf("rank %d", rank)},
	}
}

// Span returns the complete event of a phase of a rank in a run.
// Spans last at least a microsecond so that they remain visible.
func Span(rank, run int, phase string, start time.Time, dur time.Duration) Event {
	us := dur.Microseconds()
	if us < 1 {
		us = 1
	}
	return Event{
		Pid:  rank + 1,
		Tid:  run,
		Ts:   start.UnixNano() / 1e3,
		Ph:   Complete,
		Dur:  us,
		Name: phase,
		Cat:  "phase",
		Args: map[string]interface{}{"run": run},
	}
}

// Rank returns the rank traced by e, or -1 if e is not a rank event.
func (e Event) Rank() int {
	if e.Pid < 1 {
		return -1
	}
	return e.Pid - 1
}

// Rebase shifts the complete events of t so that the earliest starts
// at time 0.
func (t *T) Rebase() {
	var (
		first int64
		found bool
	)
	for _, e := range t.Events {
		if e.Ph == Complete && (!found || e.Ts < first) {
			first, found = e.Ts, true
		}
	}
	for i := range t.Events {
		if t.Events[i].Ph == Complete {
			t.Events[i].Ts -= first
		}
	}
}

// Phases returns the total duration, in microseconds, of the complete
// events of each phase.
func (t *T) Phases() map[string]int64 {
	phases := make(map[string]int64)
	for _, e := range t.Events {
		if e.Ph == Complete {
			phases[e.Name] += e.Dur
		}
	}
	return phases
}

// Encode writes t to w as JSON.
func (t *T) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(t)
}

// Decode reads a JSON trace from r into t.
func (t *T) Decode(r io.Reader) error {
	return json.NewDecoder(r).Decode(t)
}
