// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"net/http"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/comm"
	"golang.org/x/sync/errgroup"
)

// localExecutor is an executor that runs every rank in-process, in
// its own goroutine. Ranks communicate through in-memory mailboxes.
type localExecutor struct {
	sess *Session
}

func newLocalExecutor() *localExecutor {
	return &localExecutor{}
}

func (*localExecutor) Name() string {
	return "local"
}

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.sess = sess
	return
}

func (l *localExecutor) Run(ctx context.Context, job biggrid.Job, group *status.Group) ([]*rankOutput, error) {
	p := l.sess.Parallelism()
	var opts []comm.Option
	if l.sess.shuffle {
		opts = append(opts, comm.Shuffle(l.sess.seed))
	}
	comms := comm.NewGroup(p, opts...)
	outputs := make([]*rankOutput, p)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p; i++ {
		i := i
		g.Go(func() (err error) {
			var task *status.Task
			if group != nil {
				task = group.Startf("rank %d", i)
				defer task.Done()
			}
			outputs[i], err = runRank(ctx, comms.Comm(i), job, task)
			if err != nil {
				log.Debug.Printf("local: rank %d: %v", i, err)
				if task != nil {
					task.Printf("error: %v", err)
				}
			}
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (*localExecutor) HandleDebug(handler *http.ServeMux) {}
