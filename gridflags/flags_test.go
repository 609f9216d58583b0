// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridflags_test

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/gridflags"
)

func TestSystem(t *testing.T) {
	for _, c := range []struct {
		value, want string
	}{
		{"internal", "internal"},
		{"local", "local"},
		{"ec2", "ec2"},
		{"ec2:", "ec2"},
		{"ec2:dataspace=200,rootsize=10", "ec2:dataspace=200,rootsize=10"},
		{"ec2:instance=c5.xlarge,ondemand=true", "ec2:instance=c5.xlarge,ondemand=true"},
	} {
		var sys gridflags.System
		if err := sys.Set(c.value); err != nil {
			t.Errorf("%s: %v", c.value, err)
			continue
		}
		if got, want := sys.String(), c.want; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if !sys.Specified {
			t.Errorf("%s: not specified", c.value)
		}
	}
	for _, value := range []string{
		"nonexistent",
		"internal:an=option",
		"local:an=option",
		"ec2:an=option",
		"ec2:dataspace",
		"ec2:dataspace=lots",
		"ec2:ondemand=maybe",
	} {
		var sys gridflags.System
		if err := sys.Set(value); !errors.Is(errors.Invalid, err) {
			t.Errorf("%s: got %v, want invalid", value, err)
		}
		if sys.Provider != nil {
			t.Errorf("%s: provider set on error", value)
		}
	}
}

func TestProfile(t *testing.T) {
	gridflags.RegisterProfile("test-profile", "ec2:instance=c5.xlarge")
	var sys gridflags.System
	if err := sys.Set("test-profile:dataspace=10"); err != nil {
		t.Fatal(err)
	}
	if got, want := sys.String(), "ec2:instance=c5.xlarge,dataspace=10"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	names, profiles := gridflags.Systems()
	if got, want := strings.Join(names, ","), "ec2,internal,local"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := profiles["test-profile"], "ec2:instance=c5.xlarge"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var b bytes.Buffer
	gridflags.WriteSystemHelp(&b)
	if !strings.Contains(b.String(), "test-profile is shorthand for ec2:instance=c5.xlarge\n") {
		t.Errorf("profile missing from help:\n%s", b.String())
	}
}

func TestOptions(t *testing.T) {
	var (
		fs = flag.NewFlagSet("test", flag.ContinueOnError)
		tf gridflags.Flags
	)
	tf.Register(fs, "grid-")
	if got, want := tf.System.String(), "internal"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := fs.Parse([]string{"-grid-parallelism=3", "-grid-trace=/tmp/x.trace", "-grid-shuffle-seed=5"}); err != nil {
		t.Fatal(err)
	}
	if tf.System.Specified {
		t.Error("default system marked as specified")
	}
	opts, err := tf.Options()
	if err != nil {
		t.Fatal(err)
	}
	// Status, system, parallelism, trace, and shuffle.
	if got, want := len(opts), 5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := fs.Parse([]string{"-grid-system=local", "-grid-trace=", "-grid-shuffle-seed=0"}); err != nil {
		t.Fatal(err)
	}
	if !tf.System.Specified {
		t.Error("system not marked as specified")
	}
	if opts, err = tf.Options(); err != nil {
		t.Fatal(err)
	}
	if got, want := len(opts), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	tf.Parallelism = -1
	if _, err := tf.Options(); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}
