// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package gridconfig provides a mechanism to create a biggrid
// session from a shared configuration. Gridconfig uses the
// configuration mechanism in package
// github.com/grailbio/base/config, and reads a default profile from
// $HOME/.biggrid/config.
//
// A profile that runs each rank on its own EC2 instance:
//
//	param biggrid (
//		system = ec2system
//		parallelism = 8
//	)
package gridconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/biggrid/exec"
)

// Path determines the location of the biggrid profile read
// by Parse.
var Path = os.ExpandEnv("$HOME/.biggrid/config")

// Parse registers configuration flags and calls flag.Parse. It reads
// biggrid configuration from Path defined in this package. Parse
// returns a session as configured by the configuration and any flags
// provided, and a function that shuts the session down. Parse panics
// if session creation fails.
func Parse() (sess *exec.Session, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	config.Must("biggrid", &sess)
	return sess, sess.Shutdown
}
