// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"math/rand"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/sync/ctxsync"
)

// A Mailbox is a rank's inbox. Messages are buffered until they are
// taken by a matching receive. A Mailbox is safe for concurrent use.
type Mailbox struct {
	mu      sync.Mutex
	cond    *ctxsync.Cond
	pending []Message
	rand    *rand.Rand
	err     error
}

// NewMailbox returns an empty mailbox. When shuffle is true, a receive
// that matches messages from more than one source picks one of them
// at random (using the provided seed); otherwise it picks the earliest
// arrival. Messages from a single source are always taken in arrival
// order.
func NewMailbox(shuffle bool, seed int64) *Mailbox {
	b := new(Mailbox)
	b.cond = ctxsync.NewCond(&b.mu)
	if shuffle {
		b.rand = rand.New(rand.NewSource(seed))
	}
	return b
}

// Put appends a message to the mailbox. Put does not copy m.
func (b *Mailbox) Put(m Message) {
	b.mu.Lock()
	b.pending = append(b.pending, m)
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Take removes and returns a message matching src and tag, blocking
// until one is available, the mailbox is closed, or ctx is done.
func (b *Mailbox) Take(ctx context.Context, src int, tag Tag) (Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if i := b.pick(src, tag); i >= 0 {
			m := b.pending[i]
			copy(b.pending[i:], b.pending[i+1:])
			b.pending[len(b.pending)-1] = Message{}
			b.pending = b.pending[:len(b.pending)-1]
			return m, nil
		}
		if b.err != nil {
			return Message{}, b.err
		}
		if err := b.cond.Wait(ctx); err != nil {
			return Message{}, err
		}
	}
}

// Len returns the number of buffered messages.
func (b *Mailbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close fails all current and future receives that cannot be matched
// by buffered messages with the provided error.
func (b *Mailbox) Close(err error) {
	if err == nil {
		err = errors.E(errors.Canceled, "mailbox closed")
	}
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.cond.Broadcast()
	b.mu.Unlock()
}

// pick returns the index of the message to take, or -1. Candidates
// are the earliest matching message from each source. b.mu must be
// held.
func (b *Mailbox) pick(src int, tag Tag) int {
	var (
		candidates []int
		seen       map[int]bool
	)
	for i, m := range b.pending {
		if src != AnySource && m.Source != src {
			continue
		}
		if tag != AnyTag && m.Tag != tag {
			continue
		}
		if b.rand == nil || src != AnySource {
			return i
		}
		if seen == nil {
			seen = make(map[int]bool)
		}
		if seen[m.Source] {
			continue
		}
		seen[m.Source] = true
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return -1
	}
	return candidates[b.rand.Intn(len(candidates))]
}
