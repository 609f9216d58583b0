// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/biggrid"
	"gopkg.in/yaml.v3"
)

// readJob reads a YAML job description from path, which may name
// any file supported by package file.
func readJob(ctx context.Context, path string) (job biggrid.Job, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return job, err
	}
	defer errors.CleanUpCtx(ctx, f.Close, &err)
	return decodeJob(f.Reader(ctx))
}

// decodeJob decodes a YAML job description. Unknown fields are
// errors.
func decodeJob(r io.Reader) (biggrid.Job, error) {
	var job biggrid.Job
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return job, errors.E(errors.Invalid, fmt.Sprintf("job file: %v", err))
	}
	return job, nil
}
