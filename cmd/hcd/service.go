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

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dynaput247/holochain/core"
	"github.com/dynaput247/holochain/dna"
	"github.com/dynaput247/holochain/net"
	"github.com/dynaput247/holochain/ribosome"
	"github.com/dynaput247/holochain/sched"
	"github.com/dynaput247/holochain/store"
)

// GenesisEntryType is the type of the first entry on every chain.
var GenesisEntryType = "%dna"

type ServiceOptions struct {
	DNAFile string

	// DBFile, if not empty, persists the action log.
	DBFile string

	// BrokerURL, if not empty, selects the MQTT coupling instead
	// of the in-memory loopback.
	BrokerURL string

	// SweepExpr schedules the stale-call sweeper.  Empty disables
	// it.
	SweepExpr string

	MaxCallAge time.Duration

	Tracing bool
}

type Service struct {
	Tracing bool

	inst  *core.Instance
	dna   *dna.DNA
	rib   *ribosome.Ribosome
	store *store.Store
	sched *sched.Scheduler

	mqtt *net.MQTT

	// ops is the firehose that WebSocketService forwards to
	// connected clients.
	ops chan interface{}
}

func (s *Service) trf(format string, args ...interface{}) {
	if !s.Tracing {
		return
	}
	log.Printf("trace "+format, args...)
}

// NewService loads the DNA, restores state from the store (if any),
// and wires the instance's collaborators.  The consumption loop isn't
// started; see Run.
func NewService(ctx context.Context, opts ServiceOptions) (*Service, error) {
	d, err := dna.Load(opts.DNAFile)
	if err != nil {
		return nil, err
	}

	s := &Service{
		dna:     d,
		Tracing: opts.Tracing,
	}

	var st *core.State
	if opts.DBFile != "" {
		if s.store, err = store.NewStore(opts.DBFile); err != nil {
			return nil, err
		}
		if err = s.store.Open(ctx); err != nil {
			return nil, err
		}
		if st, err = s.store.Replay(ctx); err != nil {
			return nil, err
		}
		log.Printf("restored %d actions from %s", len(st.History()), opts.DBFile)
	}

	if st == nil {
		s.inst = core.NewInstance()
	} else {
		s.inst = core.NewInstanceFromState(st)
	}
	s.inst.Tracing = opts.Tracing
	s.inst.Recorder = s.store

	s.rib = ribosome.New(s.inst, d)
	s.inst.Ribosome = s.rib

	if opts.BrokerURL != "" {
		s.mqtt = net.NewMQTT(s.inst, d.Hash(), net.MQTTOptions{
			BrokerURL: opts.BrokerURL,
		})
		s.mqtt.Validator = s.rib.ValidateEntry
		s.inst.Network = s.mqtt
	} else {
		lo := net.NewLoopback(s.inst)
		lo.Validator = s.rib.ValidateEntry
		s.inst.Network = lo
	}

	s.sched = sched.NewScheduler(s.inst)
	if opts.MaxCallAge > 0 {
		s.sched.MaxCallAge = opts.MaxCallAge
	}
	if opts.SweepExpr != "" {
		if err := s.sched.StartSweeper(opts.SweepExpr); err != nil {
			return nil, err
		}
	}

	s.ops = make(chan interface{}, 1024)
	s.inst.OnSignal(func(sig core.Signal) {
		s.op(opFromSignal(sig))
	})

	return s, nil
}

// Run starts the network coupling and the consumption loop, performs
// genesis if the application is new, and blocks until ctx is done or
// the instance stops.
func (s *Service) Run(ctx context.Context) error {
	if s.mqtt != nil {
		if err := s.mqtt.Start(ctx); err != nil {
			return err
		}
		defer s.mqtt.Stop(ctx)
	}
	defer s.sched.Stop()
	if s.store != nil {
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.store.Close(cctx); err != nil {
				log.Printf("Service store.Close error %s", err)
			}
		}()
	}

	errs := make(chan error, 1)
	go func() {
		errs <- s.inst.Run(ctx)
	}()

	switch s.inst.State().Nucleus().Status() {
	case core.AppNew, core.AppInitializing:
		// AppInitializing means a restored log that stopped
		// partway through genesis; finish the job.
		if err := s.genesis(ctx); err != nil {
			return err
		}
	}

	err := <-errs
	if err == context.Canceled {
		return nil
	}
	return err
}

// genesis initializes the application: the DNA entry becomes the
// first entry on the chain, and success flips the app to initialized.
// Resumes wherever a restored log left off.
func (s *Service) genesis(ctx context.Context) error {
	s.trf("genesis %s %s", s.dna.Name, s.dna.Hash())

	st := s.inst.State()
	if st.Nucleus().Status() == core.AppNew {
		s.inst.Dispatch(core.Action{
			Kind:    core.ActionInitializeApplication,
			Payload: &core.InitializationPayload{App: s.dna.Name},
		})
	}

	if st.Agent().Len() > 0 {
		// The restored log already has the genesis commit; only
		// the result is missing.
		s.inst.Dispatch(core.Action{
			Kind:    core.ActionReturnInitializationResult,
			Payload: &core.InitializationResult{},
		})
		return nil
	}

	entry := core.Entry{Type: GenesisEntryType, Content: s.dna.Hash()}
	a := core.NewCommit(entry, core.NilAddress)

	// The bus never matches cycles that already ran, and the loop
	// is live, so the observer must be in place before the commit
	// is dispatched.
	done := s.inst.Observe(func(got *core.ActionWrapper, st *core.State) bool {
		return got.Action.Payload == a.Payload
	})

	aw := s.inst.Dispatch(a)

	var failure string
	select {
	case <-ctx.Done():
		return ctx.Err()
	case st := <-done:
		if st == nil {
			return fmt.Errorf("instance stopped during genesis")
		}
		if resp, have := st.Agent().Response(aw.ID); have && resp.Err != "" {
			failure = resp.Err
		}
	}

	s.inst.Dispatch(core.Action{
		Kind:    core.ActionReturnInitializationResult,
		Payload: &core.InitializationResult{Err: failure},
	})

	if failure != "" {
		return fmt.Errorf("genesis failed: %s", failure)
	}
	return nil
}

// op forwards x to the firehose, dropping it if nobody is keeping
// up.
func (s *Service) op(x interface{}) {
	select {
	case s.ops <- x:
	default:
		log.Printf("Service ops chan blocked")
	}
}

// opFromSignal shapes a signal for the firehose.
func opFromSignal(sig core.Signal) interface{} {
	m := map[string]interface{}{
		"signal": string(sig.Kind),
	}
	if sig.Wrapper != nil {
		m["id"] = sig.Wrapper.ID
		m["kind"] = string(sig.Wrapper.Action.Kind)
	}
	if sig.Value != nil {
		m["value"] = sig.Value
	}
	return m
}
