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

// Package net moves entries between peers.
//
// Implementations of core.Network here dispatch HandleNetworkResult
// actions back into the Instance when operations complete, which is
// the only way the network talks to the engine.
package net

import (
	"context"
	"sync"

	"github.com/dynaput247/holochain/core"
)

// Validator decides whether an entry is acceptable.  Typically
// ribosome.ValidateEntry.
type Validator func(ctx context.Context, entry core.Entry) (bool, string)

// Loopback is an in-memory core.Network for tests and solo
// instances: a content-addressed map standing in for the whole
// neighborhood.
type Loopback struct {
	Instance *core.Instance

	// Validator, if not nil, gates Publish and answers
	// ValidateRemote.  nil accepts everything.
	Validator Validator

	mu      sync.Mutex
	entries map[core.Address]core.Entry
}

// NewLoopback makes an empty Loopback for the instance.
func NewLoopback(in *core.Instance) *Loopback {
	return &Loopback{
		Instance: in,
		entries:  make(map[core.Address]core.Entry),
	}
}

func (n *Loopback) validate(ctx context.Context, entry core.Entry) (bool, string) {
	if n.Validator == nil {
		return true, ""
	}
	return n.Validator(ctx, entry)
}

// Publish stores the entry if the neighborhood accepts it.
func (n *Loopback) Publish(ctx context.Context, entry core.Entry, opID string) {
	if ok, reason := n.validate(ctx, entry); !ok {
		n.Instance.Dispatch(core.NewNetworkResult(opID, nil, reason))
		return
	}
	n.mu.Lock()
	n.entries[entry.Address()] = entry
	n.mu.Unlock()
	n.Instance.Dispatch(core.NewNetworkResult(opID, nil, ""))
}

// Get answers from the map.  A missing entry is a successful answer
// with no entry.
func (n *Loopback) Get(ctx context.Context, address core.Address, opID string) {
	n.mu.Lock()
	entry, have := n.entries[address]
	n.mu.Unlock()
	if !have {
		n.Instance.Dispatch(core.NewNetworkResult(opID, nil, ""))
		return
	}
	n.Instance.Dispatch(core.NewNetworkResult(opID, &entry, ""))
}

// ValidateRemote runs the validator and reports both to the network
// op and, when the request names a call, to that call.
func (n *Loopback) ValidateRemote(ctx context.Context, entry core.Entry, opID, callID string) {
	ok, reason := n.validate(ctx, entry)
	if callID != "" {
		n.Instance.Dispatch(core.NewValidationResult(callID, ok, reason))
	}
	if ok {
		n.Instance.Dispatch(core.NewNetworkResult(opID, nil, ""))
	} else {
		n.Instance.Dispatch(core.NewNetworkResult(opID, nil, reason))
	}
}
