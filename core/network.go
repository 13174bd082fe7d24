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

// DHTOp is one in-flight network operation: what was asked, of which
// address, and where the operation is in its machine.
type DHTOp struct {
	ID      string     `json:"id"`
	Kind    Kind       `json:"kind"`
	Address Address    `json:"address,omitempty"`
	Entry   *Entry     `json:"entry,omitempty"`
	CallID  string     `json:"callId,omitempty"`
	Status  CallStatus `json:"status"`

	// Result is the entry a Get resolved to.  nil with a
	// Succeeded status means the entry does not exist anywhere we
	// asked.
	Result *Entry `json:"result,omitempty"`
	Err    string `json:"error,omitempty"`
}

// NetworkState is the state slice for the network: the table of
// in-flight DHT operations keyed by op id.
type NetworkState struct {
	ops map[string]DHTOp
}

// NewNetworkState makes an empty NetworkState.
func NewNetworkState() *NetworkState {
	return &NetworkState{
		ops: make(map[string]DHTOp),
	}
}

// Op looks up a DHT operation by id.
func (n *NetworkState) Op(id string) (DHTOp, bool) {
	op, have := n.ops[id]
	return op, have
}

// Running returns the ids of all ops currently in StatusRunning.
func (n *NetworkState) Running() []string {
	acc := make([]string, 0, len(n.ops))
	for id, op := range n.ops {
		if op.Status == StatusRunning {
			acc = append(acc, id)
		}
	}
	return acc
}

func (n *NetworkState) copy() *NetworkState {
	ops := make(map[string]DHTOp, len(n.ops)+1)
	for id, op := range n.ops {
		ops[id] = op
	}
	return &NetworkState{ops: ops}
}

// reduceNetwork is the network domain reducer.  Driving the actual
// transport is the Instance's job, triggered after the cycle.
func reduceNetwork(s *State, slice *NetworkState, aw *ActionWrapper) *NetworkState {
	switch p := aw.Action.Payload.(type) {

	case *NetworkRequest:
		switch aw.Action.Kind {
		case ActionPublish, ActionGetEntry, ActionValidateEntry:
		default:
			return slice
		}
		if _, have := slice.ops[p.OpID]; have {
			return slice
		}
		next := slice.copy()
		next.ops[p.OpID] = DHTOp{
			ID:      p.OpID,
			Kind:    aw.Action.Kind,
			Address: p.Address,
			Entry:   p.Entry,
			CallID:  p.CallID,
			Status:  StatusRunning,
		}
		return next

	case *NetworkResult:
		if aw.Action.Kind != ActionHandleNetworkResult {
			return slice
		}
		op, have := slice.ops[p.OpID]
		if !have || op.Status != StatusRunning {
			return slice
		}
		next := slice.copy()
		if p.Err == "" {
			op.Status = StatusSucceeded
			op.Result = p.Entry
		} else {
			op.Status = StatusFailed
			op.Err = p.Err
		}
		next.ops[p.OpID] = op
		return next

	default:
		return slice
	}
}
