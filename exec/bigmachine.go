// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/comm"
	"golang.org/x/sync/errgroup"
)

// BigmachineStatusGroup is the name of the status group that reports
// on machines managed by the bigmachine executor.
const BigmachineStatusGroup = "bigmachine"

func init() {
	gob.Register(&rankService{})
}

// bigmachineExecutor is an executor that runs each rank on its own
// bigmachine machine. Machines are started on demand and reused
// across runs. Ranks exchange messages directly, machine to machine,
// through the Rank.Deliver service method.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param

	sess   *Session
	b      *bigmachine.B
	status *status.Group

	mu       sync.Mutex
	machines []*bigmachine.Machine

	runs int64
}

func newBigmachineExecutor(system bigmachine.System, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, params: params}
}

func (b *bigmachineExecutor) Name() string {
	return "bigmachine:" + b.system.Name()
}

// Start starts the underlying bigmachine B. Machines are started when
// they are first needed.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	b.sess = sess
	b.b = bigmachine.Start(b.system)
	if status := sess.Status(); status != nil {
		b.status = status.Group(BigmachineStatusGroup)
	}
	return b.b.Shutdown
}

func (b *bigmachineExecutor) Run(ctx context.Context, job biggrid.Job, group *status.Group) ([]*rankOutput, error) {
	p := b.sess.Parallelism()
	machines, err := b.acquire(ctx, p)
	if err != nil {
		return nil, err
	}
	req := runRequest{
		ID:      fmt.Sprintf("%d.%d", b.sess.index, atomic.AddInt64(&b.runs, 1)),
		Addrs:   make([]string, p),
		Job:     job,
		Shuffle: b.sess.shuffle,
		Seed:    b.sess.seed,
	}
	for i, m := range machines {
		req.Addrs[i] = m.Addr
	}
	outputs := make([]*rankOutput, p)
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range machines {
		i, m, req := i, m, req
		req.Rank = i
		g.Go(func() error {
			var task *status.Task
			if group != nil {
				task = group.Startf("rank %d", i)
				task.Title(m.Addr)
				task.Print("running")
				defer task.Done()
			}
			out := new(rankOutput)
			if err := m.Call(ctx, "Rank.Run", req, out); err != nil {
				log.Error.Printf("run %s: rank %d on %s: %v", req.ID, i, m.Addr, err)
				if task != nil {
					task.Printf("error: %v", err)
				}
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// acquire returns n running machines, starting new ones as needed.
func (b *bigmachineExecutor) acquire(ctx context.Context, n int) ([]*bigmachine.Machine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.machines[:0]
	for _, m := range b.machines {
		if m.State() == bigmachine.Running {
			live = append(live, m)
		}
	}
	b.machines = live
	if need := n - len(b.machines); need > 0 {
		started, err := startMachines(ctx, b.b, b.status, need, b.params...)
		if err != nil {
			return nil, err
		}
		b.machines = append(b.machines, started...)
	}
	if len(b.machines) < n {
		return nil, errors.E(errors.Unavailable,
			fmt.Sprintf("need %d machines, only %d are running", n, len(b.machines)))
	}
	return b.machines[:n], nil
}

// startMachines starts n machines running the rank service and waits
// for them to boot. Machines that fail to start are dropped.
func startMachines(ctx context.Context, b *bigmachine.B, group *status.Group, n int, params ...bigmachine.Param) ([]*bigmachine.Machine, error) {
	params = append([]bigmachine.Param{bigmachine.Services{"Rank": &rankService{}}}, params...)
	machines, err := b.Start(ctx, n, params...)
	if err != nil {
		return nil, errors.E(errors.Unavailable, "starting machines", err)
	}
	var wg sync.WaitGroup
	started := make([]*bigmachine.Machine, len(machines))
	for i := range machines {
		i := i
		m := machines[i]
		var task *status.Task
		if group != nil {
			task = group.Start()
			task.Print("waiting for machine to boot")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				log.Printf("machine %s failed to start: %v", m.Addr, err)
				if task != nil {
					task.Printf("failed to start: %v", err)
					task.Done()
				}
				return
			}
			if task != nil {
				task.Title(m.Addr)
				task.Print("running")
			}
			log.Printf("machine %v is ready", m.Addr)
			started[i] = m
		}()
	}
	wg.Wait()
	n = 0
	for _, m := range started {
		if m != nil {
			started[n] = m
			n++
		}
	}
	return started[:n], nil
}

func (b *bigmachineExecutor) HandleDebug(handler *http.ServeMux) {
	b.b.HandleDebug(handler)
}

// A runRequest asks a machine to run one rank of a job.
type runRequest struct {
	// ID identifies the run across all of its machines.
	ID   string
	Rank int
	// Addrs holds the address of every rank's machine, in rank order.
	Addrs   []string
	Job     biggrid.Job
	Shuffle bool
	Seed    int64
}

// An envelope carries a message to a rank of a run.
type envelope struct {
	ID      string
	Dst     int
	Shuffle bool
	Seed    int64
	Message comm.Message
}

func mailboxKey(id string, rank int) string {
	return fmt.Sprintf("%s/%d", id, rank)
}

// maxRuns is the number of most recent runs whose mailboxes and
// finished ranks a rank service keeps. Older runs are forgotten.
const maxRuns = 64

// rankService is the bigmachine service that runs ranks and receives
// their messages.
type rankService struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B

	mu    sync.Mutex
	boxes map[string]*comm.Mailbox
	// done holds the finished ranks of each run in runs, which lists
	// run IDs in the order the service first saw them.
	done  map[string]map[int]bool
	runs  []string
	peers map[string]*bigmachine.Machine
	dials once.Map
}

func (s *rankService) Init(b *bigmachine.B) error {
	s.b = b
	s.boxes = make(map[string]*comm.Mailbox)
	s.done = make(map[string]map[int]bool)
	s.peers = make(map[string]*bigmachine.Machine)
	return nil
}

// mailbox returns the mailbox of the provided rank of a run, creating
// it if needed. A rank's messages may arrive before the rank itself is
// started. Mailboxes of completed ranks are not recreated; mailbox
// returns nil for them.
func (s *rankService) mailbox(id string, rank int, shuffle bool, seed int64) *comm.Mailbox {
	key := mailboxKey(id, rank)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ranks, ok := s.done[id]; !ok {
		s.track(id)
	} else if ranks[rank] {
		return nil
	}
	box := s.boxes[key]
	if box == nil {
		box = comm.NewMailbox(shuffle, seed+int64(rank))
		s.boxes[key] = box
	}
	return box
}

func (s *rankService) finish(id string, rank int, err error) {
	key := mailboxKey(id, rank)
	s.mu.Lock()
	box := s.boxes[key]
	delete(s.boxes, key)
	if _, ok := s.done[id]; !ok {
		s.track(id)
	}
	s.done[id][rank] = true
	s.mu.Unlock()
	if box != nil {
		if n := box.Len(); n > 0 && err == nil {
			log.Error.Printf("rank %s finished with %d undelivered messages", key, n)
		}
		box.Close(err)
	}
}

// track records a new run, forgetting the oldest runs beyond maxRuns
// together with their mailboxes. s.mu must be held.
func (s *rankService) track(id string) {
	s.done[id] = make(map[int]bool)
	s.runs = append(s.runs, id)
	for len(s.runs) > maxRuns {
		id := s.runs[0]
		s.runs = s.runs[1:]
		delete(s.done, id)
		for key := range s.boxes {
			if strings.HasPrefix(key, id+"/") {
				delete(s.boxes, key)
			}
		}
	}
}

// peer returns the machine at addr, dialing it once.
func (s *rankService) peer(ctx context.Context, addr string) (*bigmachine.Machine, error) {
	err := s.dials.Do(addr, func() error {
		m, err := s.b.Dial(ctx, addr)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.peers[addr] = m
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[addr], nil
}

// Deliver places a message in the mailbox of its destination rank.
// Messages for completed ranks are dropped.
func (s *rankService) Deliver(ctx context.Context, env envelope, _ *struct{}) error {
	box := s.mailbox(env.ID, env.Dst, env.Shuffle, env.Seed)
	if box == nil {
		log.Debug.Printf("dropping %v for completed rank %s", env.Message, mailboxKey(env.ID, env.Dst))
		return nil
	}
	box.Put(env.Message)
	return nil
}

// Run runs one rank of a job and returns its output.
func (s *rankService) Run(ctx context.Context, req runRequest, reply *rankOutput) (err error) {
	box := s.mailbox(req.ID, req.Rank, req.Shuffle, req.Seed)
	if box == nil {
		return errors.E(errors.Precondition, fmt.Sprintf("rank %s already ran", mailboxKey(req.ID, req.Rank)))
	}
	defer func() { s.finish(req.ID, req.Rank, err) }()
	c := &machineComm{service: s, req: req, box: box}
	out, err := runRank(ctx, c, req.Job, nil)
	if err != nil {
		log.Printf("run %s: rank %d: %v", req.ID, req.Rank, err)
		return err
	}
	*reply = *out
	return nil
}

// machineComm is the execution context of a rank running on a
// bigmachine machine.
type machineComm struct {
	service *rankService
	req     runRequest
	box     *comm.Mailbox
}

func (c *machineComm) Rank() int { return c.req.Rank }
func (c *machineComm) Size() int { return len(c.req.Addrs) }

func (c *machineComm) Send(ctx context.Context, dst int, m comm.Message) error {
	if dst < 0 || dst >= len(c.req.Addrs) {
		return errors.E(errors.Invalid, fmt.Sprintf("send %v: destination rank %d out of range [0,%d)", m.Tag, dst, len(c.req.Addrs)))
	}
	m.Source = c.req.Rank
	if dst == c.req.Rank {
		c.box.Put(m.Copy())
		return nil
	}
	peer, err := c.service.peer(ctx, c.req.Addrs[dst])
	if err != nil {
		return errors.E(errors.Net, fmt.Sprintf("dial rank %d", dst), err)
	}
	env := envelope{ID: c.req.ID, Dst: dst, Shuffle: c.req.Shuffle, Seed: c.req.Seed, Message: m}
	return peer.Call(ctx, "Rank.Deliver", env, nil)
}

func (c *machineComm) Recv(ctx context.Context, src int, tag comm.Tag) (comm.Message, error) {
	if src != comm.AnySource && (src < 0 || src >= len(c.req.Addrs)) {
		return comm.Message{}, errors.E(errors.Invalid, fmt.Sprintf("recv %v: source rank %d out of range [0,%d)", tag, src, len(c.req.Addrs)))
	}
	return c.box.Take(ctx, src, tag)
}
