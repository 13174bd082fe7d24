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

// State is the composite of all sub-state slices, replaced wholesale
// on every successful reduce cycle and never mutated in place.
//
// Slices are shared by pointer between successive States.  A reduce
// cycle that does not touch a domain hands the identical slice
// pointer to the next State, so an unaffected domain costs nothing
// across many cycles.  Callers must treat slices obtained from a
// State as read-only snapshots.
type State struct {
	agent   *AgentState
	nucleus *NucleusState
	network *NetworkState

	// history is the audit trail: every ActionWrapper this State
	// was reduced from, in consumption order.
	history []*ActionWrapper
}

// NewState makes the initial State with empty slices.
func NewState() *State {
	return &State{
		agent:   NewAgentState(),
		nucleus: NewNucleusState(),
		network: NewNetworkState(),
	}
}

// Agent returns the shared agent slice.  Read-only.
func (s *State) Agent() *AgentState {
	return s.agent
}

// Nucleus returns the shared nucleus slice.  Read-only.
func (s *State) Nucleus() *NucleusState {
	return s.nucleus
}

// Network returns the shared network slice.  Read-only.
func (s *State) Network() *NetworkState {
	return s.network
}

// History returns the audit trail in consumption order.  Read-only.
func (s *State) History() []*ActionWrapper {
	return s.history
}

// reduce applies one action to every domain reducer, in a fixed
// order, and assembles the next State.
//
// Each reducer returns the identical previous slice for actions it
// does not handle.  A reducer that changes its slice for an action
// tagged for another domain has broken that law, which means the
// composite can no longer be trusted; that is the one fatal error in
// the engine.
func (s *State) reduce(aw *ActionWrapper) (*State, error) {
	d := aw.Action.Domain()

	agent := reduceAgent(s, s.agent, aw)
	if d != DomainAgent && agent != s.agent {
		return nil, &InvariantViolation{Domain: DomainAgent, Wrapper: aw}
	}

	nucleus := reduceNucleus(s, s.nucleus, aw)
	if d != DomainNucleus && nucleus != s.nucleus {
		return nil, &InvariantViolation{Domain: DomainNucleus, Wrapper: aw}
	}

	network := reduceNetwork(s, s.network, aw)
	if d != DomainNetwork && network != s.network {
		return nil, &InvariantViolation{Domain: DomainNetwork, Wrapper: aw}
	}

	// The full slice expression pins capacity so that two States
	// never share a history tail.
	history := append(s.history[:len(s.history):len(s.history)], aw)

	return &State{
		agent:   agent,
		nucleus: nucleus,
		network: network,
		history: history,
	}, nil
}

// Replay folds a log of actions over an initial State.
//
// Replaying the action log from the initial State deterministically
// reproduces the State the log was recorded from.
func Replay(initial *State, log []*ActionWrapper) (*State, error) {
	s := initial
	for _, aw := range log {
		next, err := s.reduce(aw)
		if err != nil {
			return nil, err
		}
		s = next
	}
	return s, nil
}
