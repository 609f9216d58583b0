// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package biggrid implements a distributed domain-decomposition
	compute engine. A job describes a 2D grid (a Domain), a kernel that
	computes its cells, and a policy for distributing the grid's rows
	among a fixed group of ranks.

	Three kinds of distribution are supported. Static strategies
	(partition.Block, partition.Cyclic, partition.Even) fix each rank's
	rows at startup. The dynamic strategy (partition.Dynamic) hands out
	rows one at a time from a coordinating rank to workers as they
	become idle. Stencil kernels, which advance the whole grid step by
	step, require contiguous static ownership: between steps, each rank
	exchanges its boundary rows with its neighbors on a ring.

	In every case, rank 0 reassembles the rows computed by all ranks
	into one globally ordered grid.

	Jobs are run by package exec, either in-process (one goroutine per
	rank) or on a bigmachine cluster (one machine per rank). In both
	cases ranks communicate only by passing messages (package comm).
*/
package biggrid
