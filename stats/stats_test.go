// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"testing"
	"time"
)

func TestStats(t *testing.T) {
	coll := NewMap()
	var (
		x = coll.Int("x")
		_ = coll.Int("y")
	)
	if got, want := x.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	x.Add(123)
	x.Add(123)
	if got, want := x.Get(), int64(123*2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	all := make(Values)
	all.Add(coll.Snapshot())
	all.Add(coll.Snapshot())
	if got, want := len(all), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all["x"], int64(123*4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all["y"], int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var nilInt *Int
	nilInt.Add(1)
	if got, want := nilInt.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTraffic(t *testing.T) {
	m := NewMap()
	m.Int(Sent).Add(3)
	m.Int(Key(Sent, "haloup")).Add(2)
	m.Int(Key(Sent, "gatherdata")).Add(1)
	m.Int(Key(SentBytes, "haloup")).Add(64)
	snap := m.Snapshot()
	m.Int(Sent).Add(1)
	if got, want := snap[Sent], int64(3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := snap.String(), "sent:3"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	tags := snap.ByTag(Sent)
	if got, want := len(tags), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := tags["haloup"], int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := snap.ByTag(SentBytes)["haloup"], int64(64); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := snap.ByTag(Recv); len(got) != 0 {
		t.Errorf("unexpected receive counters %v", got)
	}
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	timer.Add(PhaseCompute, time.Second)
	timer.Add(PhaseCompute, time.Second)
	timer.Add(PhaseGhost, time.Millisecond)
	stop := timer.Start(PhaseGather)
	if d := stop(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
	phases := timer.Phases()
	if got, want := phases[PhaseCompute], 2*time.Second; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(phases), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if phases.Total() < 2*time.Second+time.Millisecond {
		t.Errorf("bad total %v", phases.Total())
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 6})
	if got, want := s.Max, 6.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Min, 1.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Mean, 3.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Imbalance(), 2.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if s.Stdev <= 0 {
		t.Errorf("bad stdev %v", s.Stdev)
	}
	one := SummarizeDurations([]time.Duration{time.Second})
	if got, want := one, (Summary{N: 1, Min: 1, Max: 1, Mean: 1}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := Summarize(nil).Imbalance(), 1.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
