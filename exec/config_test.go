// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/base/config"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/partition"
)

func profileSession(t *testing.T, text string) (*Session, error) {
	t.Helper()
	profile := config.New()
	if err := profile.Parse(strings.NewReader(text)); err != nil {
		t.Fatal(err)
	}
	var sess *Session
	err := profile.Instance("biggrid", &sess)
	return sess, err
}

func TestConfig(t *testing.T) {
	sess, err := profileSession(t, `
param biggrid (
	parallelism = 3
	shuffle-seed = 7
)
`)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Shutdown()
	if got, want := sess.Parallelism(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok := sess.executor.(*localExecutor); !ok {
		t.Errorf("got executor %s, want local", sess.executor.Name())
	}
	if !sess.shuffle || sess.seed != 7 {
		t.Errorf("got shuffle %v seed %d, want shuffle seed 7", sess.shuffle, sess.seed)
	}
	res, err := sess.Run(context.Background(), biggrid.Job{
		Domain:   biggrid.Domain{Rows: 7, Cols: 2},
		Kernel:   "rowindex",
		Strategy: partition.Dynamic,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Grid.At(6, 1), 6.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConfigInvalid(t *testing.T) {
	if _, err := profileSession(t, "param biggrid.parallelism = 0\n"); err == nil {
		t.Error("expected error")
	}
}
