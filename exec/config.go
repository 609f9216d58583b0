// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigmachine"
)

// The biggrid instance is a session. Without a system, its ranks run
// in-process.
func init() {
	config.Register("biggrid", func(inst *config.Instance) {
		sess := newSession()
		var (
			system bigmachine.System
			seed   int
		)
		inst.IntVar(&sess.p, "parallelism", 4, "number of ranks that run each job")
		inst.InstanceVar(&system, "system", "", "the bigmachine system on which ranks run; empty runs them in-process")
		inst.StringVar(&sess.tracePath, "trace", "", "path of the trace event file written on shutdown")
		inst.IntVar(&seed, "shuffle-seed", 0, "if nonzero, any-source receives pick among pending messages at random with this seed")
		inst.Doc = "biggrid configures a biggrid session"
		inst.New = func() (interface{}, error) {
			if sess.p < 1 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("biggrid: parallelism %d < 1", sess.p))
			}
			if seed != 0 {
				ShuffleArrivals(int64(seed))(sess)
			}
			if system != nil {
				sess.executor = newBigmachineExecutor(system)
			} else {
				sess.executor = newLocalExecutor()
			}
			sess.start()
			return sess, nil
		}
	})
}
