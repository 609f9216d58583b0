// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/collect"
	"github.com/grailbio/biggrid/exec"
)

// Print runs the job on p in-process ranks and prints the resulting
// grid to stdout, one row per line. This is useful for use in
// examples, as the output does not depend on p or the strategy.
func Print(job biggrid.Job, p int) {
	sess := exec.Start(exec.Local, exec.Parallelism(p))
	defer sess.Shutdown()
	res, err := sess.Run(context.Background(), job)
	if err != nil {
		log.Panicf("unhandled error running job: %v", err)
	}
	fmt.Print(Format(res.Grid))
}

// Format renders a grid with one row per line and cells separated by
// spaces. Values are printed with %g.
func Format(g *collect.Grid) string {
	var b strings.Builder
	for row := 0; row < g.Rows; row++ {
		for col, v := range g.Row(row) {
			if col > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%g", v)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
