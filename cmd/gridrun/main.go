// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Gridrun runs a single biggrid job and reports its timing. The job
// is described by flags, or by a YAML job file whose fields may be
// overridden by flags:
//
//	gridrun -kernel mandelbrot -rows 1080 -cols 1920 -strategy dynamic -parallelism 8 -out m.png
//	gridrun -job life.yaml -steps 500 -gather-every 100 -system ec2
//
// A job file looks like:
//
//	kernel: life
//	strategy: block
//	steps: 100
//	params:
//	  pattern: glider_gun
//
// With -baseline, gridrun also runs the job on a single in-process
// rank and reports the speedup and efficiency of the parallel run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/gridcmd"
	"github.com/grailbio/biggrid/kernel"
	"github.com/grailbio/biggrid/partition"
)

func init() {
	file.RegisterImplementation("s3", s3file.NewImplementation(
		s3file.NewDefaultProvider(session.Options{})))
}

// paramsFlag collects repeated key=value kernel parameters.
type paramsFlag kernel.Params

func (p paramsFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		keys[i] = k + "=" + p[k]
	}
	return strings.Join(keys, ",")
}

func (p paramsFlag) Set(v string) error {
	for _, kv := range strings.Split(v, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return fmt.Errorf("parameter %q is not in key=value format", kv)
		}
		p[parts[0]] = parts[1]
	}
	return nil
}

func main() {
	var (
		jobPath     = flag.String("job", "", "YAML job file; flags override its fields")
		kernelName  = flag.String("kernel", "mandelbrot", "kernel to run: "+strings.Join(kernel.Names(), ", "))
		rows        = flag.Int("rows", 0, "grid rows; 0 uses the life pattern's size, or 480")
		cols        = flag.Int("cols", 0, "grid columns; 0 uses the life pattern's size, or 640")
		strategy    = flag.String("strategy", "block", "row distribution: block, cyclic, even, or dynamic")
		steps       = flag.Int("steps", 0, "number of stencil steps")
		gatherEvery = flag.Int("gather-every", 0, "gather the grid every n stencil steps")
		procs       = flag.Int("procs", 1, "goroutines per rank for row evaluation")
		params      = make(paramsFlag)
		out         = flag.String("out", "", "path of a PNG image of the result")
		baseline    = flag.Bool("baseline", false, "also run on a single in-process rank and report speedup")
	)
	flag.Var(params, "param", "kernel parameter key=value; may be repeated")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gridrun [flags]\n\nKernel parameters:\n")
		fmt.Fprintf(os.Stderr, "\tmandelbrot: max_iterations (50), escape_radius (10), smooth (true)\n")
		fmt.Fprintf(os.Stderr, "\tlife: pattern (glider; %s, random), seed (1)\n", strings.Join(kernel.PatternNames(), ", "))
		fmt.Fprintf(os.Stderr, "\tjacobi: heat (1)\n\nFlags:\n")
		flag.PrintDefaults()
	}

	gridcmd.Main(func(sess *exec.Session, args []string) error {
		if len(args) > 0 {
			flag.Usage()
			return fmt.Errorf("unexpected arguments %v", args)
		}
		var (
			ctx = context.Background()
			job biggrid.Job
			err error
		)
		if *jobPath != "" {
			if job, err = readJob(ctx, *jobPath); err != nil {
				return err
			}
		}
		set := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		override := func(name string, apply func()) {
			if *jobPath == "" || set[name] {
				apply()
			}
		}
		override("kernel", func() { job.Kernel = *kernelName })
		override("rows", func() { job.Rows = *rows })
		override("cols", func() { job.Cols = *cols })
		override("strategy", func() {
			job.Strategy, err = partition.ParseStrategy(*strategy)
		})
		if err != nil {
			return err
		}
		override("steps", func() { job.Steps = *steps })
		override("gather-every", func() { job.GatherEvery = *gatherEvery })
		override("procs", func() { job.Procs = *procs })
		if len(params) > 0 {
			if job.Params == nil {
				job.Params = make(kernel.Params)
			}
			for k, v := range params {
				job.Params[k] = v
			}
		}
		defaultDomain(&job)

		res, err := sess.Run(ctx, job)
		if err != nil {
			return err
		}
		var serial *exec.Result
		if *baseline {
			if serial, err = runBaseline(ctx, job); err != nil {
				return err
			}
		}
		report(os.Stdout, sess, res, serial)
		if *out != "" {
			if err := writePNG(ctx, *out, res.Grid); err != nil {
				return err
			}
			log.Printf("wrote %s", *out)
		}
		return nil
	})
}

// defaultDomain fills in unset grid dimensions: life patterns carry
// their own size; other kernels default to 480x640.
func defaultDomain(job *biggrid.Job) {
	rows, cols := 480, 640
	if job.Kernel == "life" {
		if p, ok := kernel.Patterns[job.Params.String("pattern", "glider")]; ok {
			rows, cols = p.Rows, p.Cols
		}
	}
	if job.Rows == 0 {
		job.Rows = rows
	}
	if job.Cols == 0 {
		job.Cols = cols
	}
}

// runBaseline runs the job on a single in-process rank.
func runBaseline(ctx context.Context, job biggrid.Job) (*exec.Result, error) {
	sess := exec.Start(exec.Local, exec.Parallelism(1))
	defer sess.Shutdown()
	job.Strategy = partition.Block
	return sess.Run(ctx, job)
}
