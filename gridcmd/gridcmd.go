// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package gridcmd provides the scaffolding of biggrid command line
// tools: it defines the session flags of package gridflags, starts a
// session configured by them, serves its status, and runs the tool's
// driver.
//
// A gridcmd tool follows this form:
//
//	func main() {
//		var (
//			applicationFlag1 = flag.Int(...)
//			applicationFlag2 = ...
//		)
//		gridcmd.Main(func(sess *exec.Session, args []string) error {
//			res, err := sess.Run(context.Background(), biggrid.Job{...})
//			if err != nil {
//				return err
//			}
//			// Do something with res.Grid...
//			return nil
//		})
//	}
package gridcmd

import (
	"flag"
	"net"
	"net/http"
	_ "net/http/pprof" // Profiles are served by the diagnostic server.
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/gridflags"
)

// Main parses the command line, starts a session configured by the
// gridflags flags, and invokes main with the session and the
// remaining arguments. Main does not return: after main returns, the
// session is shut down and the process exits, with code 1 if main
// returned an error.
//
// Main serves diagnostics (by default on :3333) from
// http.DefaultServeMux: pprof handlers, bigmachine's aggregated
// profiles, the session status at /debug/status, and its trace at
// /debug/trace.
func Main(main func(sess *exec.Session, args []string) error) {
	var fl gridflags.Flags
	fl.Register(flag.CommandLine, "")
	log.AddFlags()
	flag.Parse()
	if fl.SystemHelp {
		gridflags.WriteSystemHelp(flag.CommandLine.Output())
		os.Exit(0)
	}
	sess, err := Start(&fl)
	if err != nil {
		log.Fatal(err)
	}
	err = main(sess, flag.Args())
	sess.Shutdown()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// Start starts a session configured by the provided flags and
// serves its status as requested by them.
func Start(fl *gridflags.Flags) (*exec.Session, error) {
	options, err := fl.Options()
	if err != nil {
		return nil, err
	}
	sess := exec.Start(options...)
	log.Printf("session: %d ranks on %s", sess.Parallelism(), fl.System.String())
	Serve(fl, sess)
	return sess, nil
}

// Serve displays the session's status on the console and serves it
// over HTTP, depending on the flags. A failure to bind the HTTP
// address is logged; the session keeps running without it.
func Serve(fl *gridflags.Flags, sess *exec.Session) {
	if fl.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, sess.Status())
	}
	if fl.HTTPAddress.Address == "" {
		return
	}
	ln, err := net.Listen("tcp", fl.HTTPAddress.Address)
	if err != nil {
		log.Error.Printf("status server: %v", err)
		return
	}
	sess.HandleDebug(http.DefaultServeMux)
	http.Handle("/debug/status", status.Handler(sess.Status()))
	log.Printf("status at http://%s/debug/status", ln.Addr())
	go func() {
		if err := http.Serve(ln, nil); err != nil {
			log.Error.Printf("status server: %v", err)
		}
	}()
}
