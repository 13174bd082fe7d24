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

// AgentState is the state slice for the agent: the source chain plus
// a table of responses to agent actions.
type AgentState struct {
	chain []ChainHeader
	top   Address

	// responses maps an ActionWrapper id to the outcome of that
	// action.  Observers poll this table to learn what happened
	// to their commits.
	responses map[string]ActionResponse
}

// ActionResponse records the outcome of an agent action, stored
// alongside the action id in the responses table.
type ActionResponse struct {
	Kind    Kind    `json:"kind"`
	Address Address `json:"address,omitempty"`
	Err     string  `json:"error,omitempty"`
}

// NewAgentState makes an empty AgentState with no chain.
func NewAgentState() *AgentState {
	return &AgentState{
		responses: make(map[string]ActionResponse),
	}
}

// Top returns the address of the entry at the head of the source
// chain.  NilAddress if the chain is empty.
func (a *AgentState) Top() Address {
	return a.top
}

// Chain returns a copy of the source chain in commit order.
func (a *AgentState) Chain() []ChainHeader {
	return append([]ChainHeader(nil), a.chain...)
}

// Len returns the number of committed entries.
func (a *AgentState) Len() int {
	return len(a.chain)
}

// Response looks up the outcome of an agent action by its wrapper id.
func (a *AgentState) Response(id string) (ActionResponse, bool) {
	r, have := a.responses[id]
	return r, have
}

// copy makes a new AgentState sharing nothing mutable with the
// receiver.
func (a *AgentState) copy() *AgentState {
	responses := make(map[string]ActionResponse, len(a.responses)+1)
	for id, r := range a.responses {
		responses[id] = r
	}
	return &AgentState{
		chain:     append([]ChainHeader(nil), a.chain...),
		top:       a.top,
		responses: responses,
	}
}

// reduceAgent is the agent domain reducer.  Pure: no IO, no clock.
func reduceAgent(s *State, slice *AgentState, aw *ActionWrapper) *AgentState {
	switch p := aw.Action.Payload.(type) {
	case *CommitPayload:
		if aw.Action.Kind != ActionCommit {
			return slice
		}
		next := slice.copy()
		if p.Previous != slice.top {
			// Stale linkage.  The chain is untouched; only
			// the error is recorded.
			next.responses[aw.ID] = ActionResponse{
				Kind: ActionCommit,
				Err:  ErrStaleHead,
			}
			return next
		}
		addr := p.Entry.Address()
		next.chain = append(next.chain, ChainHeader{
			EntryType:    p.Entry.Type,
			EntryAddress: addr,
			Previous:     slice.top,
		})
		next.top = addr
		next.responses[aw.ID] = ActionResponse{
			Kind:    ActionCommit,
			Address: addr,
		}
		return next
	default:
		// Not ours, or a variant this reducer doesn't know.
		return slice
	}
}
