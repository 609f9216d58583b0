// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigmachine/testsystem"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/comm"
	"github.com/grailbio/biggrid/partition"
)

func TestBigmachineExecutor(t *testing.T) {
	_, x, stop := bigmachineTestSession(3)
	defer stop()
	ctx := context.Background()
	job := biggrid.Job{
		Domain:   biggrid.Domain{Rows: 10, Cols: 2},
		Kernel:   "rowindex",
		Strategy: partition.Cyclic,
	}
	outputs, err := x.Run(ctx, job, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(outputs), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, out := range outputs {
		if got, want := out.Stats.Rank, i; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if got, want := out.Stats.Rows, partition.Cyclic(10, 3, i).Len(); got != want {
			t.Errorf("rank %d: got %v, want %v", i, got, want)
		}
	}
	if got, want := len(outputs[Root].Grid), 20; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if outputs[1].Grid != nil {
		t.Error("non-root rank returned a grid")
	}
}

func TestBigmachineExecutorReusesMachines(t *testing.T) {
	_, x, stop := bigmachineTestSession(2)
	defer stop()
	ctx := context.Background()
	job := biggrid.Job{Domain: biggrid.Domain{Rows: 4, Cols: 4}, Kernel: "jacobi", Steps: 3}
	if _, err := x.Run(ctx, job, nil); err != nil {
		t.Fatal(err)
	}
	first := append([]string(nil), x.machines[0].Addr, x.machines[1].Addr)
	if _, err := x.Run(ctx, job, nil); err != nil {
		t.Fatal(err)
	}
	if got, want := len(x.machines), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, m := range x.machines {
		if got, want := m.Addr, first[i]; got != want {
			t.Errorf("machine %d: got %v, want %v", i, got, want)
		}
	}
	if got, want := x.runs, int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBigmachineExecutorPanicRun(t *testing.T) {
	_, x, stop := bigmachineTestSession(2)
	defer stop()
	job := biggrid.Job{
		Domain: biggrid.Domain{Rows: 4, Cols: 4},
		Kernel: "panicky",
	}
	if _, err := x.Run(context.Background(), job, nil); err == nil {
		t.Fatal("expected error")
	}
	// The machines survive a failed run.
	job.Kernel = "rowindex"
	if _, err := x.Run(context.Background(), job, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRankService(t *testing.T) {
	var s rankService
	if err := s.Init(nil); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	// Messages may arrive before their rank starts.
	env := envelope{ID: "0.1", Dst: 1, Message: comm.Message{Source: 0, Tag: comm.TagHaloUp, Data: []float64{1}}}
	if err := s.Deliver(ctx, env, nil); err != nil {
		t.Fatal(err)
	}
	box := s.mailbox("0.1", 1, false, 0)
	if got, want := box.Len(), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	c := &machineComm{service: &s, req: runRequest{ID: "0.1", Rank: 1, Addrs: []string{"a", "b"}}, box: box}
	m, err := c.Recv(ctx, 0, comm.TagHaloUp)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.Data[0], 1.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Sends to self bypass the network.
	if err := c.Send(ctx, 1, comm.Message{Tag: comm.TagReduce, Data: []float64{2}}); err != nil {
		t.Fatal(err)
	}
	if m, err = c.Recv(ctx, 1, comm.TagReduce); err != nil {
		t.Fatal(err)
	}
	if got, want := m.Source, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := c.Send(ctx, 2, comm.Message{}); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := c.Recv(ctx, -5, comm.AnyTag); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}

	s.finish("0.1", 1, nil)
	// Late messages for finished ranks are dropped.
	if err := s.Deliver(ctx, env, nil); err != nil {
		t.Fatal(err)
	}
	if box := s.mailbox("0.1", 1, false, 0); box != nil {
		t.Error("mailbox recreated for finished rank")
	}
	if err := s.Run(ctx, runRequest{ID: "0.1", Rank: 1}, nil); !errors.Is(errors.Precondition, err) {
		t.Errorf("got %v, want precondition", err)
	}
}

func TestRankServiceForgetsOldRuns(t *testing.T) {
	var s rankService
	if err := s.Init(nil); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i <= maxRuns; i++ {
		s.finish(fmt.Sprintf("0.%d", i), 1, nil)
	}
	if got, want := len(s.done), maxRuns; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	last := fmt.Sprintf("0.%d", maxRuns)
	if box := s.mailbox(last, 1, false, 0); box != nil {
		t.Error("mailbox recreated for recent finished run")
	}
	// A message for a run that never starts here, or that was
	// forgotten, creates a mailbox that is dropped with its run.
	env := envelope{ID: "0.0", Dst: 1, Message: comm.Message{Tag: comm.TagHaloUp}}
	if err := s.Deliver(ctx, env, nil); err != nil {
		t.Fatal(err)
	}
	if got, want := len(s.boxes), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := 1; i <= maxRuns; i++ {
		s.finish(fmt.Sprintf("1.%d", i), 1, nil)
	}
	if got, want := len(s.done), maxRuns; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(s.runs), maxRuns; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(s.boxes), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func bigmachineTestSession(p int) (sess *Session, x *bigmachineExecutor, stop func()) {
	x = newBigmachineExecutor(testsystem.New())
	ctx, cancel := context.WithCancel(context.Background())
	sess = newSession()
	sess.Context = ctx
	sess.p = p
	sess.executor = x
	sess.start()
	return sess, x, func() {
		cancel()
		sess.Shutdown()
	}
}
