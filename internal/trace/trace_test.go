// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"testing"
	"time"
)

func TestTrace(t *testing.T) {
	start := time.Unix(100, 0)
	tr := T{Events: []Event{
		RankName(0),
		RankName(1),
		Span(0, 0, "compute", start.Add(time.Millisecond), 2*time.Millisecond),
		Span(1, 0, "compute", start, time.Millisecond),
		Span(1, 0, "gather", start.Add(3*time.Millisecond), time.Nanosecond),
	}}
	tr.Rebase()
	if got, want := tr.Events[3].Ts, int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tr.Events[2].Ts, int64(1000); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tr.Events[4].Dur, int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tr.Events[1].Rank(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := (Event{}).Rank(), -1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	var b bytes.Buffer
	if err := tr.Encode(&b); err != nil {
		t.Fatal(err)
	}
	var decoded T
	if err := decoded.Decode(&b); err != nil {
		t.Fatal(err)
	}
	phases := decoded.Phases()
	if got, want := phases["compute"], int64(3000); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := phases["gather"], int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(phases), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
