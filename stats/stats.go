// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats provides per-rank counters and phase timers, and
// summaries of per-rank measurements across a run.
//
// A rank counts its message traffic in a Map: the messages and
// payload bytes it sends and receives, in total and per message tag.
// The snapshots of the ranks' maps are combined into the traffic of
// a run.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Traffic counter names. A rank counts all of its traffic under these
// names, and the traffic of each message tag under Key(name, tag).
const (
	Sent      = "sent"
	SentBytes = "sentbytes"
	Recv      = "recv"
	RecvBytes = "recvbytes"
)

// Key returns the name under which the traffic counter name is kept
// for messages with the provided tag, e.g. "sent/haloup".
func Key(name, tag string) string {
	return name + "/" + tag
}

// Values is a snapshot of a rank's counters, or the sum of the
// snapshots of several ranks.
type Values map[string]int64

// Add adds the values of w to v.
func (v Values) Add(w Values) {
	for k, x := range w {
		v[k] += x
	}
}

// ByTag returns the values of the traffic counter name for each
// message tag that was counted.
func (v Values) ByTag(name string) map[string]int64 {
	prefix := name + "/"
	tags := make(map[string]int64)
	for k, x := range v {
		if tag := strings.TrimPrefix(k, prefix); tag != k {
			tags[tag] = x
		}
	}
	return tags
}

// String returns the totals in v sorted by name, omitting the per-tag
// counters.
func (v Values) String() string {
	keys := make([]string, 0, len(v))
	for key := range v {
		if !strings.Contains(key, "/") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of counters keyed by name. A rank keeps one Map for
// its message traffic.
type Map struct {
	mu     sync.Mutex
	values map[string]*Int
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return &Map{values: make(map[string]*Int)}
}

// Int returns the counter with the provided name, creating it if
// needed.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.values[name]
	if v == nil {
		v = new(Int)
		m.values[name] = v
	}
	return v
}

// Snapshot returns the current values of the map's counters.
func (m *Map) Snapshot() Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := make(Values, len(m.values))
	for k, v := range m.values {
		vals[k] = v.Get()
	}
	return vals
}

// An Int is an integer counter that is updated atomically. A nil
// *Int discards updates and reads as zero.
type Int struct {
	val int64
}

// Add increments v by delta.
func (v *Int) Add(delta int64) {
	if v == nil {
		return
	}
	atomic.AddInt64(&v.val, delta)
}

// Get returns the current value of a counter.
func (v *Int) Get() int64 {
	if v == nil {
		return 0
	}
	return atomic.LoadInt64(&v.val)
}
