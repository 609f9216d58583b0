// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/stats"
	"golang.org/x/sync/errgroup"
)

func TestSendRecv(t *testing.T) {
	ctx := context.Background()
	comms := NewGroup(2).Comms()
	data := []float64{1, 2, 3}
	if err := comms[0].Send(ctx, 1, Message{Tag: TagResult, Row: 7, Data: data}); err != nil {
		t.Fatal(err)
	}
	// Messages carry copies.
	data[0] = 100
	m, err := comms[1].Recv(ctx, 0, TagResult)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.Source, 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m.Row, 7; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m.Data[0], 1.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPerSourceOrder(t *testing.T) {
	for _, opts := range [][]Option{nil, {Shuffle(1)}, {Shuffle(99)}} {
		ctx := context.Background()
		const (
			p = 4
			n = 50
		)
		comms := NewGroup(p, opts...).Comms()
		for src := 1; src < p; src++ {
			for i := 0; i < n; i++ {
				if err := comms[src].Send(ctx, 0, Message{Tag: TagResult, Row: i}); err != nil {
					t.Fatal(err)
				}
			}
		}
		next := make([]int, p)
		for i := 0; i < (p-1)*n; i++ {
			m, err := comms[0].Recv(ctx, AnySource, TagResult)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := m.Row, next[m.Source]; got != want {
				t.Fatalf("source %d: got %v, want %v", m.Source, got, want)
			}
			next[m.Source]++
		}
	}
}

func TestShuffleInterleaves(t *testing.T) {
	ctx := context.Background()
	comms := NewGroup(3, Shuffle(7)).Comms()
	const n = 64
	for i := 0; i < n; i++ {
		for src := 1; src < 3; src++ {
			if err := comms[src].Send(ctx, 0, Message{Tag: TagResult, Row: i}); err != nil {
				t.Fatal(err)
			}
		}
	}
	// With a FIFO pick, sources strictly alternate. A shuffled pick
	// must eventually take two in a row from the same source.
	var repeats int
	last := -1
	for i := 0; i < 2*n; i++ {
		m, err := comms[0].Recv(ctx, AnySource, TagResult)
		if err != nil {
			t.Fatal(err)
		}
		if m.Source == last {
			repeats++
		}
		last = m.Source
	}
	if repeats == 0 {
		t.Error("shuffled mailbox delivered in arrival order")
	}
}

func TestTagFilter(t *testing.T) {
	ctx := context.Background()
	comms := NewGroup(2).Comms()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(comms[1].Send(ctx, 0, Message{Tag: TagHaloUp, Row: 1}))
	must(comms[1].Send(ctx, 0, Message{Tag: TagHaloDown, Row: 2}))
	m, err := comms[0].Recv(ctx, 1, TagHaloDown)
	must(err)
	if got, want := m.Row, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	m, err = comms[0].Recv(ctx, AnySource, AnyTag)
	must(err)
	if got, want := m.Tag, TagHaloUp; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRecvCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	comms := NewGroup(2).Comms()
	if _, err := comms[0].Recv(ctx, 1, TagTask); err != context.DeadlineExceeded {
		t.Errorf("got %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestClose(t *testing.T) {
	g := NewGroup(2)
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		_, err = g.Comm(0).Recv(context.Background(), AnySource, AnyTag)
		wg.Done()
	}()
	g.Close(errors.E(errors.Canceled, "run aborted"))
	wg.Wait()
	if !errors.Is(errors.Canceled, err) {
		t.Errorf("got %v, want canceled", err)
	}
}

func TestBadRank(t *testing.T) {
	ctx := context.Background()
	c := NewGroup(2).Comm(0)
	if err := c.Send(ctx, 2, Message{}); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := c.Recv(ctx, 5, TagTask); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}

func TestIrecv(t *testing.T) {
	ctx := context.Background()
	comms := NewGroup(2).Comms()
	req := Irecv(ctx, comms[0], 1, TagHaloDown)
	if err := comms[1].Send(ctx, 0, Message{Tag: TagHaloDown, Data: []float64{4}}); err != nil {
		t.Fatal(err)
	}
	m, err := req.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.Data[0], 4.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBarrier(t *testing.T) {
	for _, p := range []int{1, 2, 5} {
		comms := NewGroup(p, Shuffle(int64(p))).Comms()
		var (
			mu      sync.Mutex
			entered int
		)
		g, ctx := errgroup.WithContext(context.Background())
		for _, c := range comms {
			c := c
			g.Go(func() error {
				for round := 1; round <= 3; round++ {
					mu.Lock()
					entered++
					mu.Unlock()
					if err := Barrier(ctx, c); err != nil {
						return err
					}
					mu.Lock()
					n := entered
					mu.Unlock()
					if n < round*p {
						return errors.E("left barrier before all ranks entered")
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Errorf("p=%d: %v", p, err)
		}
	}
}

func TestCounted(t *testing.T) {
	ctx := context.Background()
	comms := NewGroup(2).Comms()
	m0, m1 := stats.NewMap(), stats.NewMap()
	c0, c1 := Counted(comms[0], m0), Counted(comms[1], m1)
	var (
		msg  = Message{Tag: TagResult, Data: make([]float64, 10)}
		halo = Message{Tag: TagHaloUp, Data: make([]float64, 3)}
	)
	for _, m := range []Message{msg, msg, halo} {
		if err := c0.Send(ctx, 1, m); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := c1.Recv(ctx, 0, AnyTag); err != nil {
			t.Fatal(err)
		}
	}
	sent, recv := m0.Snapshot(), m1.Snapshot()
	if got, want := sent[stats.Sent], int64(3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := sent.ByTag(stats.Sent), map[string]int64{"result": 2, "haloup": 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := recv[stats.RecvBytes], int64(2*msg.Size()+halo.Size()); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := recv.ByTag(stats.RecvBytes)["haloup"], int64(halo.Size()); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := recv.ByTag(stats.Sent); len(got) != 0 {
		t.Errorf("receiver counted sends %v", got)
	}
	if got, want := c1.Rank(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
