// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package comm implements the message-passing layer shared by all
// ranks of a run. A Comm is a rank's execution context: its rank, the
// size of its group, and a handle to send and receive messages. It is
// passed explicitly into every distributed operation.
//
// Messages between a given pair of ranks are delivered in the order
// they were sent. Receives from AnySource make no ordering promise
// across sources.
package comm

import (
	"context"
	"fmt"
)

// AnySource matches messages from every rank.
const AnySource = -1

// A Tag distinguishes the purpose of a message.
type Tag int

const (
	// AnyTag matches messages with every tag.
	AnyTag Tag = -1

	// TagTask carries a row assignment from the coordinator.
	TagTask Tag = iota
	// TagResult carries a computed row back to the coordinator.
	TagResult
	// TagTerminate tells a worker that no rows remain.
	TagTerminate
	// TagHaloUp carries a rank's first real row to its predecessor.
	TagHaloUp
	// TagHaloDown carries a rank's last real row to its successor.
	TagHaloDown
	// TagGatherSize carries a segment size to the gather root.
	TagGatherSize
	// TagGatherData carries a segment payload to the gather root.
	TagGatherData
	// TagReduce carries a scalar reduction input.
	TagReduce
	// TagBarrier is used by Barrier.
	TagBarrier
)

var tagNames = map[Tag]string{
	AnyTag:        "any",
	TagTask:       "task",
	TagResult:     "result",
	TagTerminate:  "terminate",
	TagHaloUp:     "haloup",
	TagHaloDown:   "halodown",
	TagGatherSize: "gathersize",
	TagGatherData: "gatherdata",
	TagReduce:     "reduce",
	TagBarrier:    "barrier",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// A Message is the unit of communication between ranks. Source is
// set by the transport on delivery. The meaning of Row, Rows, and
// Data depends on the tag.
type Message struct {
	Source int
	Tag    Tag
	Row    int
	Rows   []int
	Data   []float64
}

// Copy returns a copy of m that shares no memory with it.
func (m Message) Copy() Message {
	if m.Rows != nil {
		m.Rows = append([]int(nil), m.Rows...)
	}
	if m.Data != nil {
		m.Data = append([]float64(nil), m.Data...)
	}
	return m
}

// Size returns the approximate encoded size of the message in bytes.
func (m Message) Size() int {
	return 24 + 8*len(m.Rows) + 8*len(m.Data)
}

func (m Message) String() string {
	return fmt.Sprintf("%v from %d row %d (%d rows, %d values)", m.Tag, m.Source, m.Row, len(m.Rows), len(m.Data))
}

// Comm is the execution context of a single rank.
type Comm interface {
	// Rank returns the rank's identity in [0, Size()).
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Send delivers a message to rank dst. Send does not retain m's
	// slices after it returns; the caller may reuse them.
	Send(ctx context.Context, dst int, m Message) error
	// Recv blocks until a message from src (or AnySource) with the
	// provided tag (or AnyTag) is available and removes it from the
	// rank's inbox.
	Recv(ctx context.Context, src int, tag Tag) (Message, error)
}

// A Request is a pending non-blocking receive.
type Request struct {
	done chan struct{}
	msg  Message
	err  error
}

// Irecv posts a receive on c and returns immediately. The receive
// completes in the background; its result is retrieved by Wait. The
// receive is abandoned when ctx is done.
func Irecv(ctx context.Context, c Comm, src int, tag Tag) *Request {
	r := &Request{done: make(chan struct{})}
	go func() {
		r.msg, r.err = c.Recv(ctx, src, tag)
		close(r.done)
	}()
	return r
}

// Wait blocks until the receive completes and returns its message.
func (r *Request) Wait(ctx context.Context) (Message, error) {
	select {
	case <-r.done:
		return r.msg, r.err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Barrier blocks until every rank in c's group has entered Barrier.
// Rank 0 collects one arrival from every other rank and then releases
// them.
func Barrier(ctx context.Context, c Comm) error {
	if c.Size() == 1 {
		return nil
	}
	if c.Rank() != 0 {
		if err := c.Send(ctx, 0, Message{Tag: TagBarrier}); err != nil {
			return err
		}
		_, err := c.Recv(ctx, 0, TagBarrier)
		return err
	}
	for i := 1; i < c.Size(); i++ {
		if _, err := c.Recv(ctx, AnySource, TagBarrier); err != nil {
			return err
		}
	}
	for i := 1; i < c.Size(); i++ {
		if err := c.Send(ctx, i, Message{Tag: TagBarrier}); err != nil {
			return err
		}
	}
	return nil
}
