/* Copyright 2024 the holochain-go authors
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sched runs cron-driven maintenance against an Instance.
//
// A Scheduler only ever Dispatches actions; it never touches state
// directly, so everything it does shows up in the action log like
// any other producer.
package sched

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dynaput247/holochain/core"

	"github.com/gorhill/cronexpr"
)

// DefaultMaxCallAge is how long a zome call may stay running before
// the sweeper cancels it.
var DefaultMaxCallAge = time.Minute

// Job is one recurring dispatch.
type Job struct {
	Id   string
	Expr *cronexpr.Expression

	// fire does the work of one firing.
	fire func()

	ctl chan bool
}

// Scheduler dispatches jobs at cron-appointed times.
type Scheduler struct {
	Instance *core.Instance

	// MaxCallAge bounds how long the sweeper lets a call run.
	// Zero means DefaultMaxCallAge.
	MaxCallAge time.Duration

	// Debug turns on logging.
	Debug bool

	sync.Mutex
	jobs map[string]*Job
}

// NewScheduler makes a Scheduler with no jobs.
func NewScheduler(in *core.Instance) *Scheduler {
	return &Scheduler{
		Instance:   in,
		MaxCallAge: DefaultMaxCallAge,
		jobs:       make(map[string]*Job, 8),
	}
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf(format, args...)
	}
}

// Add schedules f() to be dispatched at each firing of the cron
// expression.  f is called once per firing so each dispatch gets
// fresh ids.  Adding an id that already exists cancels the old job
// first.
func (s *Scheduler) Add(id, cronExpr string, f func() core.Action) error {
	return s.add(id, cronExpr, func() {
		s.Instance.Dispatch(f())
	})
}

func (s *Scheduler) add(id, cronExpr string, fire func()) error {
	c, err := cronexpr.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("bad cron expression %#v: %s", cronExpr, err)
	}

	j := &Job{
		Id:   id,
		Expr: c,
		fire: fire,
		ctl:  make(chan bool),
	}

	s.Lock()
	if old, have := s.jobs[id]; have {
		close(old.ctl)
	}
	s.jobs[id] = j
	s.Unlock()

	s.logf("Scheduler.Add %s %#v", id, cronExpr)

	go s.run(j)

	return nil
}

// Cancel stops the job.  Unknown ids are no-ops.
func (s *Scheduler) Cancel(id string) {
	s.Lock()
	j, have := s.jobs[id]
	if have {
		delete(s.jobs, id)
	}
	s.Unlock()
	if have {
		s.logf("Scheduler.Cancel %s", id)
		close(j.ctl)
	}
}

// Stop cancels every job.
func (s *Scheduler) Stop() {
	s.Lock()
	for id, j := range s.jobs {
		close(j.ctl)
		delete(s.jobs, id)
	}
	s.Unlock()
}

func (s *Scheduler) run(j *Job) {
	for {
		next := j.Expr.Next(time.Now())
		if next.IsZero() {
			s.logf("Scheduler job %s has no next firing", j.Id)
			return
		}
		t := time.NewTimer(next.Sub(time.Now()))
		select {
		case <-t.C:
			s.logf("Scheduler firing %s", j.Id)
			j.fire()
		case <-j.ctl:
			t.Stop()
			return
		}
	}
}

// SweepStaleCalls cancels every running zome call older than
// MaxCallAge, as of now.  Returns the ids it canceled.
//
// The sweep reads a snapshot and dispatches cancels; a call that
// finishes in between just sees an idempotent no-op cancel.
func (s *Scheduler) SweepStaleCalls(now time.Time) []string {
	maxAge := s.MaxCallAge
	if maxAge <= 0 {
		maxAge = DefaultMaxCallAge
	}

	st := s.Instance.State()
	var canceled []string
	for _, id := range st.Nucleus().Running() {
		r, have := st.Nucleus().Call(id)
		if !have {
			continue
		}
		age := now.Sub(r.Call.RequestedAt)
		if age <= maxAge {
			continue
		}
		s.logf("Scheduler canceling stale call %s (age %s)", id, age)
		s.Instance.Dispatch(core.NewCancel(id, "call deadline exceeded"))
		canceled = append(canceled, id)
	}
	return canceled
}

// StartSweeper schedules SweepStaleCalls on the cron expression.
// The conventional expression is "* * * * *" (each minute).
func (s *Scheduler) StartSweeper(cronExpr string) error {
	return s.add("sweeper", cronExpr, func() {
		s.SweepStaleCalls(time.Now())
	})
}
