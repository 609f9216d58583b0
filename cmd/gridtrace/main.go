// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Gridtrace summarizes a trace file written by a biggrid session
// (see exec.TracePath and the -trace flag). For every run and phase,
// it reports the spread of per-rank time across ranks:
//
//	gridtrace /tmp/gridrun.trace
//	gridtrace s3://bucket/path/gridrun.trace
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/biggrid/internal/trace"
)

func init() {
	file.RegisterImplementation("s3", s3file.NewImplementation(
		s3file.NewDefaultProvider(session.Options{})))
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("gridtrace: ")
	must.Func = log.Fatal
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gridtrace trace-file\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}
	ctx := context.Background()
	t, err := readTrace(ctx, flag.Arg(0))
	must.Nil(err, flag.Arg(0))
	writeStats(os.Stdout, buildPhaseStats(buildSpans(t.Events)))
}

func readTrace(ctx context.Context, path string) (t trace.T, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return t, err
	}
	defer errors.CleanUpCtx(ctx, f.Close, &err)
	err = t.Decode(f.Reader(ctx))
	return t, err
}

func writeStats(w io.Writer, stats []phaseStat) {
	var tw tabwriter.Writer
	tw.Init(w, 4, 4, 1, ' ', 0)
	fmt.Fprintln(&tw, "run\tphase\tranks\tspans\twall\tmin\tq1\tq2\tq3\tmax\timbalance")
	round := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	for _, s := range stats {
		fmt.Fprintf(&tw, "%d\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.3f\n",
			s.run, s.phase, s.ranks, s.spans, round(s.wall),
			round(s.min), round(s.q1), round(s.q2), round(s.q3), round(s.max),
			s.imbalance())
	}
	tw.Flush()
}
