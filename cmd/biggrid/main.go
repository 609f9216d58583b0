// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command biggrid manages the biggrid configuration profile, which
// selects the system on which biggrid sessions run their ranks.
//
//	biggrid setup-ec2   run ranks on EC2, creating a security group if needed
//	biggrid config      print the current profile
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
)

type command struct {
	run      func(args []string)
	synopsis string
}

var commands = map[string]command{
	"setup-ec2": {setupEC2Cmd, "configure EC2 for use with biggrid"},
	"config":    {configCmd, "print the biggrid configuration profile"},
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprint(os.Stderr, "usage: biggrid <command> [arguments]\n\nThe commands are:\n\n")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "\t%-10s  %s\n", name, commands[name].synopsis)
	}
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("biggrid: ")
	must.Func = log.Fatal
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		flag.Usage()
	}
	cmd.run(flag.Args()[1:])
}
