// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/must"
	"github.com/grailbio/biggrid/gridconfig"
)

func configCmd(args []string) {
	flags := flag.NewFlagSet("biggrid config", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: biggrid config\n\nCommand config prints the biggrid profile at %s, with defaults.\n", gridconfig.Path)
		os.Exit(2)
	}
	must.Nil(flags.Parse(args))
	if flags.NArg() != 0 {
		flags.Usage()
	}
	profile, err := readProfile(gridconfig.Path)
	must.Nil(err)
	must.Nil(profile.PrintTo(os.Stdout))
}
