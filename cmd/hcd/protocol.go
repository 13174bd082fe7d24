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

	"github.com/dynaput247/holochain/core"
)

// SOp is a Service Operation.
//
// Only one of the operation fields should have a value.
type SOp struct {
	// Call invokes a zome function.
	Call *CallOp `json:"call,omitempty"`

	// Commit appends an entry to the source chain.
	Commit *CommitOp `json:"commit,omitempty"`

	// Get starts a DHT lookup.
	Get *GetOp `json:"get,omitempty"`

	// Cancel forces a running call into a terminal state.
	Cancel *CancelOp `json:"cancel,omitempty"`

	// State reports a summary of the current state.
	State *StateOp `json:"state,omitempty"`

	// Error will hold an error (if any) that results from
	// processing this operation.
	Error error `json:"-"`

	// Err will hold a string representation of an error (if any)
	// that results from processing this operation.
	Err string `json:"err,omitempty"`
}

func (o *SOp) Do(ctx context.Context, s *Service) error {
	var err error
	switch {
	case o.Call != nil:
		err = o.Call.Do(ctx, s)
	case o.Commit != nil:
		err = o.Commit.Do(ctx, s)
	case o.Get != nil:
		err = o.Get.Do(ctx, s)
	case o.Cancel != nil:
		err = o.Cancel.Do(ctx, s)
	case o.State != nil:
		err = o.State.Do(ctx, s)
	default:
		err = fmt.Errorf("empty operation")
	}

	if err != nil {
		o.Error = err
		o.Err = err.Error()
	}

	return o.Error
}

// CallOp requests a zome function execution.  The outcome arrives
// later on the firehose; Id identifies it.
type CallOp struct {
	Zome     string      `json:"zome"`
	Function string      `json:"function"`
	Params   interface{} `json:"params,omitempty"`

	Id string `json:"id,omitempty"`
}

func (o *CallOp) Do(ctx context.Context, s *Service) error {
	call := core.NewZomeCall(o.Zome, o.Function, o.Params)
	o.Id = call.ID
	s.inst.Dispatch(core.NewExecute(call))
	return nil
}

// CommitOp appends an entry at the current chain head.
type CommitOp struct {
	Type    string `json:"type"`
	Content string `json:"content"`

	Address core.Address `json:"address,omitempty"`
}

func (o *CommitOp) Do(ctx context.Context, s *Service) error {
	if o.Type == "" {
		return fmt.Errorf("commit needs a type")
	}
	entry := core.Entry{Type: o.Type, Content: o.Content}
	o.Address = entry.Address()
	s.inst.Dispatch(core.NewCommit(entry, s.inst.State().Agent().Top()))
	return nil
}

// GetOp looks an entry up in the neighborhood.
type GetOp struct {
	Address core.Address `json:"address"`

	OpId string `json:"opId,omitempty"`
}

func (o *GetOp) Do(ctx context.Context, s *Service) error {
	if o.Address == "" {
		return fmt.Errorf("get needs an address")
	}
	a := core.NewNetworkRequest(core.ActionGetEntry, core.NetworkRequest{
		Address: o.Address,
	})
	o.OpId = a.Payload.(*core.NetworkRequest).OpID
	s.inst.Dispatch(a)
	return nil
}

// CancelOp cancels a running call.
type CancelOp struct {
	Id     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

func (o *CancelOp) Do(ctx context.Context, s *Service) error {
	if o.Id == "" {
		return fmt.Errorf("cancel needs an id")
	}
	s.inst.Dispatch(core.NewCancel(o.Id, o.Reason))
	return nil
}

// StateOp summarizes the instance's current state snapshot.
type StateOp struct {
	App      core.AppStatus     `json:"app,omitempty"`
	Top      core.Address       `json:"top,omitempty"`
	ChainLen int                `json:"chainLen"`
	Running  []string           `json:"running,omitempty"`
	Chain    []core.ChainHeader `json:"chain,omitempty"`

	// Full includes the whole chain in the answer.
	Full bool `json:"full,omitempty"`
}

func (o *StateOp) Do(ctx context.Context, s *Service) error {
	st := s.inst.State()
	o.App = st.Nucleus().Status()
	o.Top = st.Agent().Top()
	o.ChainLen = st.Agent().Len()
	o.Running = st.Nucleus().Running()
	if o.Full {
		o.Chain = st.Agent().Chain()
	}
	return nil
}
