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

// CallStatus is the state of an in-flight zome call or DHT operation.
//
// The machine is Requested -> Running -> {Succeeded | Failed |
// Rejected}.  Running is the only state with more than one exit, and
// exactly one terminal transition may happen per id: a second arrival
// for a resolved id is a no-op.
type CallStatus string

const (
	StatusRequested CallStatus = "requested"
	StatusRunning   CallStatus = "running"
	StatusSucceeded CallStatus = "succeeded"
	StatusFailed    CallStatus = "failed"
	StatusRejected  CallStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// AppStatus is the lifecycle of the application package held by the
// nucleus.
type AppStatus string

const (
	AppNew                  AppStatus = "new"
	AppInitializing         AppStatus = "initializing"
	AppInitialized          AppStatus = "initialized"
	AppInitializationFailed AppStatus = "initialization-failed"
)

// ZomeCallRecord is one zome call and where it is in its machine.
type ZomeCallRecord struct {
	Call   ZomeCall    `json:"call"`
	Status CallStatus  `json:"status"`
	Value  interface{} `json:"value,omitempty"`
	Err    string      `json:"error,omitempty"`
}

// NucleusState is the state slice for the nucleus: the application
// package, its initialization status, and the table of zome calls.
type NucleusState struct {
	status     AppStatus
	app        interface{}
	failReason string

	// calls holds records by value so that an old State's record
	// is never aliased by a newer one.
	calls map[string]ZomeCallRecord
}

// NewNucleusState makes an empty NucleusState with no application.
func NewNucleusState() *NucleusState {
	return &NucleusState{
		status: AppNew,
		calls:  make(map[string]ZomeCallRecord),
	}
}

// Status returns the application lifecycle status.
func (n *NucleusState) Status() AppStatus {
	return n.status
}

// App returns the application package given at initialization, if
// any.
func (n *NucleusState) App() interface{} {
	return n.app
}

// FailReason returns why initialization failed, if it did.
func (n *NucleusState) FailReason() string {
	return n.failReason
}

// Call looks up a zome call record by call id.
func (n *NucleusState) Call(id string) (ZomeCallRecord, bool) {
	r, have := n.calls[id]
	return r, have
}

// Running returns the ids of all calls currently in StatusRunning.
func (n *NucleusState) Running() []string {
	acc := make([]string, 0, len(n.calls))
	for id, r := range n.calls {
		if r.Status == StatusRunning {
			acc = append(acc, id)
		}
	}
	return acc
}

func (n *NucleusState) copy() *NucleusState {
	calls := make(map[string]ZomeCallRecord, len(n.calls)+1)
	for id, r := range n.calls {
		calls[id] = r
	}
	return &NucleusState{
		status:     n.status,
		app:        n.app,
		failReason: n.failReason,
		calls:      calls,
	}
}

// reduceNucleus is the nucleus domain reducer.  Pure: invoking the
// sandbox is the Instance's job, triggered after the cycle.
func reduceNucleus(s *State, slice *NucleusState, aw *ActionWrapper) *NucleusState {
	switch p := aw.Action.Payload.(type) {

	case *InitializationPayload:
		if aw.Action.Kind != ActionInitializeApplication || slice.status != AppNew {
			return slice
		}
		next := slice.copy()
		next.status = AppInitializing
		next.app = p.App
		return next

	case *InitializationResult:
		if aw.Action.Kind != ActionReturnInitializationResult || slice.status != AppInitializing {
			return slice
		}
		next := slice.copy()
		if p.Err == "" {
			next.status = AppInitialized
		} else {
			next.status = AppInitializationFailed
			next.failReason = p.Err
		}
		return next

	case *ZomeCall:
		if aw.Action.Kind != ActionExecuteZomeFunction {
			return slice
		}
		if _, have := slice.calls[p.ID]; have {
			// Duplicate request for a known id.
			return slice
		}
		next := slice.copy()
		next.calls[p.ID] = ZomeCallRecord{
			Call:   *p,
			Status: StatusRunning,
		}
		return next

	case *ZomeCallResult:
		if aw.Action.Kind != ActionReturnZomeFunctionResult {
			return slice
		}
		r, have := slice.calls[p.CallID]
		if !have || r.Status != StatusRunning {
			// Unknown call, or already terminal.
			return slice
		}
		next := slice.copy()
		if p.Err == "" {
			r.Status = StatusSucceeded
			r.Value = p.Value
		} else {
			r.Status = StatusFailed
			r.Err = p.Err
		}
		next.calls[p.CallID] = r
		return next

	case *ValidationResult:
		if aw.Action.Kind != ActionReturnValidationResult {
			return slice
		}
		r, have := slice.calls[p.CallID]
		if !have || r.Status != StatusRunning || p.Valid {
			// A passing validation doesn't finish the call;
			// the zome result does.
			return slice
		}
		next := slice.copy()
		r.Status = StatusRejected
		r.Err = p.Reason
		next.calls[p.CallID] = r
		return next

	case *CancelPayload:
		if aw.Action.Kind != ActionCancelZomeFunction {
			return slice
		}
		r, have := slice.calls[p.CallID]
		if !have || r.Status != StatusRunning {
			return slice
		}
		next := slice.copy()
		r.Status = StatusFailed
		if p.Reason == "" {
			r.Err = ErrCanceled
		} else {
			r.Err = p.Reason
		}
		next.calls[p.CallID] = r
		return next

	default:
		return slice
	}
}
