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

package core

import (
	"context"
	"log"
	"sync"
)

// Ribosome executes zome functions in a sandbox.
//
// Invoke should not block the caller's goroutine on the sandbox: the
// Instance calls it from a worker goroutine, and the eventual outcome
// re-enters the engine as a ReturnZomeFunctionResult action that the
// Ribosome dispatches itself.
type Ribosome interface {
	Invoke(ctx context.Context, call ZomeCall)
}

// Network moves entries between peers.
//
// Implementations dispatch HandleNetworkResult actions (and, for
// validation, ReturnValidationResult actions) back into the Instance
// when an operation completes.
type Network interface {
	Publish(ctx context.Context, entry Entry, opID string)
	Get(ctx context.Context, address Address, opID string)
	ValidateRemote(ctx context.Context, entry Entry, opID, callID string)
}

// Recorder persists consumed actions, typically so that a restored
// snapshot plus the log can reproduce the State.
type Recorder interface {
	RecordAction(aw *ActionWrapper) error
}

// Instance owns one State and the consumption loop that mutates it.
//
// Any number of goroutines may Dispatch actions and read State();
// only the consumption loop transitions state, one reduce cycle at a
// time.  Collaborators are plain exported fields, wired before the
// loop starts.
type Instance struct {
	// Ribosome, if not nil, is invoked for each newly running
	// zome call.
	Ribosome Ribosome

	// Network, if not nil, is driven for each newly running DHT
	// operation.
	Network Network

	// Recorder, if not nil, is given every consumed action after
	// its State is published.
	Recorder Recorder

	// Tracing turns on per-cycle logging.
	Tracing bool

	// mu guards state for the exclusive-writer, shared-reader
	// handoff on each cycle.
	mu    sync.RWMutex
	state *State

	// qmu guards the pending-action queue.  The queue is
	// unbounded: Dispatch never blocks and no action is ever
	// dropped for the lifetime of the Instance.
	qmu     sync.Mutex
	pending []*ActionWrapper

	// wake nudges the loop when something lands in the queue.
	wake chan struct{}

	bus signalBus

	emu  sync.Mutex
	err  error
	done bool
}

// NewInstance makes an Instance with an initial empty State and an
// empty queue.  Wire the collaborator fields before starting the
// loop.
func NewInstance() *Instance {
	return &Instance{
		state: NewState(),
		wake:  make(chan struct{}, 1),
	}
}

// NewInstanceFromState makes an Instance whose initial State is a
// restored snapshot (see Replay).
func NewInstanceFromState(st *State) *Instance {
	in := NewInstance()
	in.state = st
	return in
}

func (in *Instance) trf(format string, args ...interface{}) {
	if !in.Tracing {
		return
	}
	log.Printf("trace "+format, args...)
}

// Dispatch appends the action to the pending queue.
//
// Never blocks and never fails; safe to call concurrently from any
// number of producers.  Failures of the action itself surface later
// as state and signals, not here.
func (in *Instance) Dispatch(a Action) *ActionWrapper {
	aw := Wrap(a)
	in.qmu.Lock()
	in.pending = append(in.pending, aw)
	n := len(in.pending)
	in.qmu.Unlock()

	in.trf("dispatch %s (%d pending)", a.Kind, n)

	select {
	case in.wake <- struct{}{}:
	default:
	}
	return aw
}

// State returns the latest committed State snapshot.  O(1) and safe
// at any time; readers never see a half-built State.
func (in *Instance) State() *State {
	in.mu.RLock()
	st := in.state
	in.mu.RUnlock()
	return st
}

// Err returns the fatal error that stopped the Instance, if any.
func (in *Instance) Err() error {
	in.emu.Lock()
	err := in.err
	in.emu.Unlock()
	return err
}

// Stopped reports whether the Instance will consume no more actions.
func (in *Instance) Stopped() bool {
	in.emu.Lock()
	done := in.done
	in.emu.Unlock()
	return done
}

// OnSignal registers a synchronous signal callback.  See signalBus.
func (in *Instance) OnSignal(f func(Signal)) {
	in.bus.OnSignal(f)
}

// Observe registers a condition over (action, resulting state) that
// resolves on a future consumption cycle.  See signalBus.
func (in *Instance) Observe(pred func(*ActionWrapper, *State) bool) <-chan *State {
	return in.bus.Observe(pred)
}

func (in *Instance) fail(err error) {
	in.emu.Lock()
	if in.err == nil {
		in.err = err
	}
	in.done = true
	in.emu.Unlock()
	log.Printf("Instance fatal %s", err)
}

func (in *Instance) pop() *ActionWrapper {
	in.qmu.Lock()
	defer in.qmu.Unlock()
	if len(in.pending) == 0 {
		return nil
	}
	aw := in.pending[0]
	in.pending = in.pending[1:]
	return aw
}

// ConsumeNextAction pops one pending action (FIFO), runs the full
// reduce cycle, publishes the new State, fires signals and observers,
// and launches the side-effecting consequences the new state calls
// for.  No-op (returning false) if the queue is empty.
//
// Only one goroutine may run consumption; Run is the usual driver.
func (in *Instance) ConsumeNextAction(ctx context.Context) bool {
	if in.Stopped() {
		return false
	}

	aw := in.pop()
	if aw == nil {
		return false
	}

	in.trf("consume %s %s", aw.Action.Kind, aw.ID)

	next, err := in.state.reduce(aw)
	if err != nil {
		// A broken no-op law means the composite can't be
		// trusted.  Halting beats silent corruption.
		in.fail(err)
		return false
	}

	in.mu.Lock()
	in.state = next
	in.mu.Unlock()

	if in.Recorder != nil {
		if err := in.Recorder.RecordAction(aw); err != nil {
			log.Printf("Instance.Recorder error %s on %s", err, aw.ID)
		}
	}

	in.bus.emit(Signal{Kind: SignalInternal, Wrapper: aw})
	for _, sig := range userSignals(aw, next) {
		in.bus.emit(sig)
	}
	in.bus.settle(aw, next)

	in.consequences(ctx, aw, next)

	return true
}

// Run drives the consumption loop until ctx is done or a fatal error
// stops the Instance.  One reduce cycle at a time; two cycles never
// interleave.
func (in *Instance) Run(ctx context.Context) error {
	for {
		for in.ConsumeNextAction(ctx) {
			if err := in.Err(); err != nil {
				return err
			}
		}
		if err := in.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.wake:
		}
	}
}

// userSignals derives the user-visible signals for one cycle.
func userSignals(aw *ActionWrapper, st *State) []Signal {
	var acc []Signal

	if aw.Action.Kind == ActionEmitSignal {
		acc = append(acc, Signal{
			Kind:    SignalUser,
			Wrapper: aw,
			Value:   aw.Action.Payload,
		})
	}

	// Domain-level failures are observable, not thrown.
	if aw.Action.Kind == ActionCommit {
		if resp, have := st.Agent().Response(aw.ID); have && resp.Err != "" {
			acc = append(acc, Signal{
				Kind:    SignalUser,
				Wrapper: aw,
				Value: map[string]interface{}{
					"error": resp.Err,
				},
			})
		}
	}

	return acc
}

// consequences launches the side effects a freshly published State
// calls for.  Each effect runs on its own goroutine and communicates
// back only by dispatching new actions, so a slow sandbox or peer
// never stalls the loop.
func (in *Instance) consequences(ctx context.Context, aw *ActionWrapper, st *State) {
	switch p := aw.Action.Payload.(type) {

	case *ZomeCall:
		if aw.Action.Kind != ActionExecuteZomeFunction || in.Ribosome == nil {
			return
		}
		if r, have := st.Nucleus().Call(p.ID); have && r.Status == StatusRunning {
			call := r.Call
			go in.Ribosome.Invoke(ctx, call)
		}

	case *CommitPayload:
		if aw.Action.Kind != ActionCommit {
			return
		}
		resp, have := st.Agent().Response(aw.ID)
		if !have || resp.Err != "" {
			return
		}
		// A committed entry heads out to the neighborhood.
		entry := p.Entry
		in.Dispatch(NewNetworkRequest(ActionPublish, NetworkRequest{
			Address: resp.Address,
			Entry:   &entry,
		}))

	case *NetworkRequest:
		if in.Network == nil {
			return
		}
		op, have := st.Network().Op(p.OpID)
		if !have || op.Status != StatusRunning {
			return
		}
		switch aw.Action.Kind {
		case ActionPublish:
			if op.Entry != nil {
				entry := *op.Entry
				go in.Network.Publish(ctx, entry, op.ID)
			}
		case ActionGetEntry:
			go in.Network.Get(ctx, op.Address, op.ID)
		case ActionValidateEntry:
			if op.Entry != nil {
				entry := *op.Entry
				go in.Network.ValidateRemote(ctx, entry, op.ID, op.CallID)
			}
		}
	}
}
