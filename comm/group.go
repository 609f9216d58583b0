// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/stats"
)

// An Option configures an in-process group.
type Option func(*groupOptions)

type groupOptions struct {
	shuffle bool
	seed    int64
}

// Shuffle randomizes the order in which any-source receives pick
// among pending messages from different sources. Rank i's mailbox is
// seeded with seed+i, so a run is reproducible for a given seed.
func Shuffle(seed int64) Option {
	return func(o *groupOptions) {
		o.shuffle = true
		o.seed = seed
	}
}

// Group is a set of in-process ranks that communicate through shared
// mailboxes.
type Group struct {
	boxes []*Mailbox
}

// NewGroup returns a group of p in-process ranks.
func NewGroup(p int, opts ...Option) *Group {
	if p < 1 {
		panic(fmt.Sprintf("comm.NewGroup: invalid group size %d", p))
	}
	var o groupOptions
	for _, opt := range opts {
		opt(&o)
	}
	g := &Group{boxes: make([]*Mailbox, p)}
	for i := range g.boxes {
		g.boxes[i] = NewMailbox(o.shuffle, o.seed+int64(i))
	}
	return g
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return len(g.boxes) }

// Comm returns the execution context for the provided rank.
func (g *Group) Comm(rank int) Comm {
	if rank < 0 || rank >= len(g.boxes) {
		panic(fmt.Sprintf("comm.Group.Comm: rank %d out of range [0,%d)", rank, len(g.boxes)))
	}
	return &local{group: g, rank: rank}
}

// Comms returns the execution contexts of all ranks, in rank order.
func (g *Group) Comms() []Comm {
	comms := make([]Comm, len(g.boxes))
	for i := range comms {
		comms[i] = g.Comm(i)
	}
	return comms
}

// Close fails pending and future receives on every rank with the
// provided error.
func (g *Group) Close(err error) {
	for _, b := range g.boxes {
		b.Close(err)
	}
}

type local struct {
	group *Group
	rank  int
}

func (l *local) Rank() int { return l.rank }
func (l *local) Size() int { return len(l.group.boxes) }

func (l *local) Send(ctx context.Context, dst int, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dst < 0 || dst >= len(l.group.boxes) {
		return errors.E(errors.Invalid, fmt.Sprintf("send %v: destination rank %d out of range [0,%d)", m.Tag, dst, len(l.group.boxes)))
	}
	m = m.Copy()
	m.Source = l.rank
	l.group.boxes[dst].Put(m)
	return nil
}

func (l *local) Recv(ctx context.Context, src int, tag Tag) (Message, error) {
	if src != AnySource && (src < 0 || src >= len(l.group.boxes)) {
		return Message{}, errors.E(errors.Invalid, fmt.Sprintf("recv %v: source rank %d out of range [0,%d)", tag, src, len(l.group.boxes)))
	}
	return l.group.boxes[l.rank].Take(ctx, src, tag)
}

// Counted returns a Comm that forwards to c and counts in m the
// messages and payload bytes it sends and receives, in total and per
// tag.
func Counted(c Comm, m *stats.Map) Comm {
	return &counted{
		Comm: c,
		m:    m,
		sent: traffic{m.Int(stats.Sent), m.Int(stats.SentBytes)},
		recv: traffic{m.Int(stats.Recv), m.Int(stats.RecvBytes)},
		tags: make(map[Tag]*tagTraffic),
	}
}

// traffic counts messages and their payload bytes.
type traffic struct {
	msgs, bytes *stats.Int
}

func (t traffic) add(m Message) {
	t.msgs.Add(1)
	t.bytes.Add(int64(m.Size()))
}

type tagTraffic struct {
	sent, recv traffic
}

type counted struct {
	Comm
	m          *stats.Map
	sent, recv traffic

	mu   sync.Mutex
	tags map[Tag]*tagTraffic
}

// tag returns the counters of messages with tag t.
func (c *counted) tag(t Tag) *tagTraffic {
	c.mu.Lock()
	defer c.mu.Unlock()
	tt := c.tags[t]
	if tt == nil {
		name := t.String()
		tt = &tagTraffic{
			sent: traffic{c.m.Int(stats.Key(stats.Sent, name)), c.m.Int(stats.Key(stats.SentBytes, name))},
			recv: traffic{c.m.Int(stats.Key(stats.Recv, name)), c.m.Int(stats.Key(stats.RecvBytes, name))},
		}
		c.tags[t] = tt
	}
	return tt
}

func (c *counted) Send(ctx context.Context, dst int, m Message) error {
	if err := c.Comm.Send(ctx, dst, m); err != nil {
		return err
	}
	c.sent.add(m)
	c.tag(m.Tag).sent.add(m)
	return nil
}

func (c *counted) Recv(ctx context.Context, src int, tag Tag) (Message, error) {
	m, err := c.Comm.Recv(ctx, src, tag)
	if err != nil {
		return m, err
	}
	// Any-tag receives are counted under the tag of the message.
	c.recv.add(m)
	c.tag(m.Tag).recv.add(m)
	return m, nil
}
