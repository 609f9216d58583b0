// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Names of the phases timed by every rank.
const (
	PhaseCompute = "compute"
	PhaseGhost   = "ghost"
	PhaseGather  = "gather"
)

// Phases is a snapshot of accumulated phase durations.
type Phases map[string]time.Duration

// Total returns the sum of all phase durations.
func (p Phases) Total() time.Duration {
	var d time.Duration
	for _, x := range p {
		d += x
	}
	return d
}

// String returns the phases sorted by name.
func (p Phases) String() string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%s", key, p[key])
	}
	return strings.Join(keys, " ")
}

// A Timer accumulates wall-clock time per named phase.
type Timer struct {
	mu     sync.Mutex
	phases Phases
}

// NewTimer returns a Timer with no recorded phases.
func NewTimer() *Timer {
	return &Timer{phases: make(Phases)}
}

// Start begins timing the named phase. The returned function stops
// the clock and adds the elapsed time to the phase.
func (t *Timer) Start(phase string) (stop func() time.Duration) {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		t.Add(phase, d)
		return d
	}
}

// Add adds d to the named phase.
func (t *Timer) Add(phase string, d time.Duration) {
	t.mu.Lock()
	t.phases[phase] += d
	t.mu.Unlock()
}

// Get returns the accumulated duration of the named phase.
func (t *Timer) Get(phase string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phases[phase]
}

// Phases returns a snapshot of all phases.
func (t *Timer) Phases() Phases {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := make(Phases, len(t.phases))
	for k, v := range t.phases {
		p[k] = v
	}
	return p
}
