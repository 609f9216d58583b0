// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package gridflags provides flag support for use by biggrid command
// line applications. The -system flag selects where ranks run:
//
//	-system=internal                       every rank in a goroutine of this process
//	-system=local                          every rank in its own local process
//	-system=ec2:instance=c5.4xlarge        every rank on its own EC2 instance
//
// Applications may register profiles: names that stand for a system
// and its settings.
package gridflags

import (
	"flag"
	"fmt"
	"io"
	"os/user"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/biggrid/exec"
)

// A Provider supplies the processes on which a session's ranks run.
type Provider interface {
	// Name is the name by which the provider is selected.
	Name() string
	// Configure returns the session option that runs ranks on the
	// provider, configured with the provided key=value settings.
	Configure(settings []string) (exec.Option, error)
	// Ranks returns the number of ranks to run when none is
	// requested.
	Ranks() int
}

var (
	mu        sync.Mutex
	providers = map[string]Provider{} // protected by mu
	profiles  = map[string]string{}   // protected by mu
)

func init() {
	Register(inProcess{})
	Register(localProcesses{})
	Register(ec2Provider{})
}

// Register makes a provider available to the -system flag.
func Register(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := providers[p.Name()]; ok {
		log.Panicf("gridflags: system %s registered twice", p.Name())
	}
	providers[p.Name()] = p
}

// RegisterProfile registers name as shorthand for a system and its
// settings. After
//
//	gridflags.RegisterProfile("big", "ec2:instance=c5.9xlarge")
//
// -system=big:ondemand=true means -system=ec2:instance=c5.9xlarge,ondemand=true.
func RegisterProfile(name, system string) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := providers[name]; ok {
		log.Panicf("gridflags: profile %s shadows a system", name)
	}
	if _, ok := profiles[name]; ok {
		log.Panicf("gridflags: profile %s registered twice", name)
	}
	profiles[name] = system
}

// Systems returns the names of the registered providers, sorted, and
// the registered profiles.
func Systems() (names []string, shorthands map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	shorthands = make(map[string]string, len(profiles))
	for k, v := range profiles {
		shorthands[k] = v
	}
	return
}

func noSettings(name string, settings []string) error {
	if len(settings) > 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("system %s takes no settings, got %s", name, strings.Join(settings, ",")))
	}
	return nil
}

type inProcess struct{}

func (inProcess) Name() string { return "internal" }
func (inProcess) Ranks() int   { return runtime.GOMAXPROCS(0) }

func (p inProcess) Configure(settings []string) (exec.Option, error) {
	return exec.Local, noSettings(p.Name(), settings)
}

type localProcesses struct{}

func (localProcesses) Name() string { return "local" }
func (localProcesses) Ranks() int   { return runtime.GOMAXPROCS(0) }

func (p localProcesses) Configure(settings []string) (exec.Option, error) {
	return exec.Bigmachine(bigmachine.Local), noSettings(p.Name(), settings)
}

// ec2Settings holds the setters of the settings accepted by the ec2
// system.
var ec2Settings = map[string]func(sys *ec2system.System, v string) error{
	"instance": func(sys *ec2system.System, v string) error {
		sys.InstanceType = v
		return nil
	},
	"profile": func(sys *ec2system.System, v string) error {
		sys.InstanceProfile = v
		return nil
	},
	"dataspace": func(sys *ec2system.System, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		sys.Dataspace = uint(n)
		return err
	},
	"rootsize": func(sys *ec2system.System, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		sys.Diskspace = uint(n)
		return err
	},
	"ondemand": func(sys *ec2system.System, v string) (err error) {
		sys.OnDemand, err = strconv.ParseBool(v)
		return
	},
}

// ec2Provider runs each rank on its own EC2 instance. Since every
// rank costs an instance, its default rank count is small.
type ec2Provider struct{}

func (ec2Provider) Name() string { return "ec2" }
func (ec2Provider) Ranks() int   { return 4 }

func (ec2Provider) Configure(settings []string) (exec.Option, error) {
	if len(settings) == 0 {
		return exec.Bigmachine(new(ec2system.System)), nil
	}
	sys := &ec2system.System{Username: "unknown"}
	if u, err := user.Current(); err == nil {
		sys.Username = u.Username
	} else {
		log.Printf("gridflags: ec2: current user: %v", err)
	}
	for _, s := range settings {
		key, val, ok := strings.Cut(s, "=")
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("ec2 setting %q is not key=value", s))
		}
		set, ok := ec2Settings[key]
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown ec2 setting %s", key))
		}
		if err := set(sys, val); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("ec2 setting %s", key), err)
		}
	}
	return exec.Bigmachine(sys), nil
}

// SystemHelp describes the values accepted by the -system flag.
const SystemHelp = `A biggrid system is given as <system>[:<key>=<value>,...].

The systems are:

internal: every rank runs in a goroutine of the current process (the default).
local: every rank runs in its own process on the current machine.
ec2: every rank runs on its own AWS EC2 instance. Its settings are:
	instance=<type>    the EC2 instance type, e.g. c5.2xlarge
	dataspace=<GiB>    size of the data volume
	rootsize=<GiB>     size of the root volume
	ondemand=<bool>    use on-demand instead of spot instances
	profile=<arn>      the instance profile of the instances

Applications may register profiles, names that stand for a system
and its settings.
`

// WriteSystemHelp writes SystemHelp followed by the registered systems
// and profiles to w.
func WriteSystemHelp(w io.Writer) {
	names, shorthands := Systems()
	fmt.Fprintf(w, "%s\nThe available systems are: %s\n", SystemHelp, strings.Join(names, ", "))
	keys := make([]string, 0, len(shorthands))
	for k := range shorthands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s is shorthand for %s\n", k, shorthands[k])
	}
}

// System is a flag.Value that selects a provider and its settings.
type System struct {
	Provider  Provider
	Settings  []string
	// Specified is true when the value was set on the command line.
	Specified bool
}

func (s *System) String() string {
	if s.Provider == nil {
		return ""
	}
	if len(s.Settings) == 0 {
		return s.Provider.Name()
	}
	return s.Provider.Name() + ":" + strings.Join(s.Settings, ",")
}

func splitSystem(v string) (name string, settings []string) {
	name, rest, ok := strings.Cut(v, ":")
	if ok && rest != "" {
		settings = strings.Split(rest, ",")
	}
	return
}

// Set resolves profiles and checks the settings against the provider.
func (s *System) Set(v string) error {
	name, settings := splitSystem(v)
	mu.Lock()
	if profile, ok := profiles[name]; ok {
		var base []string
		name, base = splitSystem(profile)
		settings = append(base, settings...)
	}
	p, ok := providers[name]
	mu.Unlock()
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("unknown system or profile %q", name))
	}
	if _, err := p.Configure(settings); err != nil {
		return err
	}
	s.Provider, s.Settings, s.Specified = p, settings, true
	return nil
}

// Get implements flag.Getter.
func (s *System) Get() interface{} {
	return s.String()
}

// Flags holds the values of the flags that configure a biggrid
// session.
type Flags struct {
	System        System
	SystemHelp    bool
	HTTPAddress   cmdutil.NetworkAddressFlag
	ConsoleStatus bool
	Parallelism   int
	Trace         string
	ShuffleSeed   int64
}

// Register defines the session flags in fs, each name prefixed with
// prefix. The system defaults to internal and the status server to
// :3333.
func (f *Flags) Register(fs *flag.FlagSet, prefix string) {
	must(f.System.Set("internal"))
	f.System.Specified = false
	must(f.HTTPAddress.Set(":3333"))
	f.HTTPAddress.Specified = false
	fs.Var(&f.System, prefix+"system", fmt.Sprintf("system on which ranks run: internal, local, ec2[:key=value,...] or a profile; see -%ssystem-help", prefix))
	fs.BoolVar(&f.SystemHelp, prefix+"system-help", false, "describe the systems and profiles and exit")
	fs.Var(&f.HTTPAddress, prefix+"http", "address of the http status server")
	fs.BoolVar(&f.ConsoleStatus, prefix+"console-status", false, "print status to stdout")
	fs.IntVar(&f.Parallelism, prefix+"parallelism", 0, "number of ranks; 0 picks the system's default")
	fs.StringVar(&f.Trace, prefix+"trace", "", "path of the trace event file written on shutdown")
	fs.Int64Var(&f.ShuffleSeed, prefix+"shuffle-seed", 0, "if nonzero, any-source receives pick among pending messages at random with this seed")
}

func must(err error) {
	if err != nil {
		log.Panicf("gridflags: %v", err)
	}
}

// Options returns the session options selected by the flags.
func (f *Flags) Options() ([]exec.Option, error) {
	if f.Parallelism < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("negative parallelism %d", f.Parallelism))
	}
	if f.System.Provider == nil {
		return nil, errors.E(errors.Invalid, "no system selected")
	}
	system, err := f.System.Provider.Configure(f.System.Settings)
	if err != nil {
		return nil, err
	}
	p := f.Parallelism
	if p == 0 {
		p = f.System.Provider.Ranks()
	}
	var st status.Status
	// List the machines before the runs.
	st.Group(exec.BigmachineStatusGroup)
	options := []exec.Option{exec.Status(&st), system, exec.Parallelism(p)}
	if f.Trace != "" {
		options = append(options, exec.TracePath(f.Trace))
	}
	if f.ShuffleSeed != 0 {
		options = append(options, exec.ShuffleArrivals(f.ShuffleSeed))
	}
	return options, nil
}
