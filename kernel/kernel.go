// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package kernel provides a mechanism to register and instantiate
// per-cell compute kernels by name. A kernel is either an Evaluator,
// which computes each cell independently, or a Stencil, which advances
// a block of rows one step at a time from the previous state of the
// rows and their neighbors. Package kernel also includes the standard
// kernels mandelbrot, life, jacobi, and rowindex.
package kernel

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/halo"
)

// Kernel is the common interface of all kernels.
type Kernel interface {
	// Name returns the name under which the kernel is registered.
	Name() string
}

// An Evaluator computes single cells. Evaluate must be pure and
// deterministic, and safe to call concurrently.
type Evaluator interface {
	Kernel
	Evaluate(row, col int) float64
}

// A Stencil advances a grid state one step at a time.
type Stencil interface {
	Kernel
	// Init writes the initial state of global row into out.
	Init(row int, out []float64)
	// Step reads the real and ghost rows of cur and writes the real
	// rows of next.
	Step(cur, next *halo.Buffer)
}

// A Factory instantiates a kernel for a grid of the provided
// dimensions.
type Factory func(rows, cols int, params Params) (Kernel, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register associates a factory with a kernel name. Register panics if
// the name is already registered.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("kernel.Register: kernel %q already registered", name))
	}
	factories[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Names returns the names of all registered kernels, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates the named kernel. Unknown kernels and bad
// parameters are reported as errors of kind Invalid.
func New(name string, rows, cols int, params Params) (Kernel, error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown kernel %q; registered kernels: %v", name, Names()))
	}
	k, err := f(rows, cols, params)
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("kernel %s", name), err)
	}
	return k, nil
}

// EvalRow evaluates every cell of a row into out.
func EvalRow(e Evaluator, row int, out []float64) {
	for col := range out {
		out[col] = e.Evaluate(row, col)
	}
}

// Params holds kernel parameters by name.
type Params map[string]string

// String returns the named parameter, or def if it is not set.
func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns the named integer parameter, or def if it is not set.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("parameter %s: %q is not an integer", key, v))
	}
	return n, nil
}

// Int64 returns the named 64-bit integer parameter, or def if it is
// not set.
func (p Params) Int64(key string, def int64) (int64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("parameter %s: %q is not an integer", key, v))
	}
	return n, nil
}

// Float returns the named floating-point parameter, or def if it is
// not set.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("parameter %s: %q is not a number", key, v))
	}
	return f, nil
}

// Bool returns the named boolean parameter, or def if it is not set.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.E(errors.Invalid, fmt.Sprintf("parameter %s: %q is not a boolean", key, v))
	}
	return b, nil
}

// Copy returns a copy of p.
func (p Params) Copy() Params {
	q := make(Params, len(p))
	for k, v := range p {
		q[k] = v
	}
	return q
}
