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
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain names the state slice that an Action targets.
type Domain string

const (
	DomainAgent   Domain = "agent"
	DomainNetwork Domain = "network"
	DomainNucleus Domain = "nucleus"
)

// Kind identifies an Action variant within a Domain.
type Kind string

const (
	// Agent
	ActionCommit Kind = "commit"

	// Nucleus
	ActionInitializeApplication      Kind = "initialize-application"
	ActionReturnInitializationResult Kind = "return-initialization-result"
	ActionExecuteZomeFunction        Kind = "execute-zome-function"
	ActionReturnZomeFunctionResult   Kind = "return-zome-function-result"
	ActionReturnValidationResult     Kind = "return-validation-result"
	ActionCancelZomeFunction         Kind = "cancel-zome-function"
	ActionEmitSignal                 Kind = "emit-signal"

	// Network
	ActionPublish             Kind = "publish"
	ActionGetEntry            Kind = "get-entry"
	ActionValidateEntry       Kind = "validate-entry"
	ActionHandleNetworkResult Kind = "handle-network-result"
)

var domains = map[Kind]Domain{
	ActionCommit: DomainAgent,

	ActionInitializeApplication:      DomainNucleus,
	ActionReturnInitializationResult: DomainNucleus,
	ActionExecuteZomeFunction:        DomainNucleus,
	ActionReturnZomeFunctionResult:   DomainNucleus,
	ActionReturnValidationResult:     DomainNucleus,
	ActionCancelZomeFunction:         DomainNucleus,
	ActionEmitSignal:                 DomainNucleus,

	ActionPublish:             DomainNetwork,
	ActionGetEntry:            DomainNetwork,
	ActionValidateEntry:       DomainNetwork,
	ActionHandleNetworkResult: DomainNetwork,
}

// Domain reports the domain that this Kind targets.  An unknown Kind
// has an empty Domain, which no reducer will match.
func (k Kind) Domain() Domain {
	return domains[k]
}

// Action is an immutable description of a requested state mutation:
// a Kind plus the data the matching reducer needs to compute the next
// slice without external lookups.
type Action struct {
	Kind    Kind        `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

// Domain reports the domain of the Action's Kind.
func (a Action) Domain() Domain {
	return a.Kind.Domain()
}

func (a Action) String() string {
	return string(a.Kind)
}

// ActionWrapper pairs an Action with a unique id so the audit trail,
// signals, and observers can all refer to one consumption event.
type ActionWrapper struct {
	ID     string `json:"id"`
	Action Action `json:"action"`
}

// Wrap gives the Action a fresh unique id.
func Wrap(a Action) *ActionWrapper {
	return &ActionWrapper{
		ID:     uuid.NewString(),
		Action: a,
	}
}

// Payloads.  Each Action Kind that carries data has a struct here.
// Payloads are carried by value and must not be mutated after
// dispatch.

// CommitPayload asks the agent to append an Entry to its source
// chain.
type CommitPayload struct {
	Entry Entry `json:"entry"`

	// Previous is the chain head the producer observed.  A commit
	// whose Previous does not equal the current head is rejected.
	Previous Address `json:"previous"`
}

// ZomeCall identifies one requested zome function execution.
type ZomeCall struct {
	ID       string      `json:"id"`
	Zome     string      `json:"zome"`
	Function string      `json:"function"`
	Params   interface{} `json:"params,omitempty"`

	// RequestedAt is set by the producer.  Sweepers use it to find
	// stale calls; reducers never read the clock themselves.
	RequestedAt time.Time `json:"requestedAt,omitempty"`
}

// NewZomeCall makes a ZomeCall with a fresh id and the current time.
func NewZomeCall(zome, function string, params interface{}) ZomeCall {
	return ZomeCall{
		ID:          uuid.NewString(),
		Zome:        zome,
		Function:    function,
		Params:      params,
		RequestedAt: time.Now().UTC(),
	}
}

// ZomeCallResult reports the outcome of a ZomeCall.
type ZomeCallResult struct {
	CallID string      `json:"callId"`
	Value  interface{} `json:"value,omitempty"`
	Err    string      `json:"error,omitempty"`
}

// ValidationResult reports the outcome of validating an entry on
// behalf of a ZomeCall.
type ValidationResult struct {
	CallID string `json:"callId"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// CancelPayload forces a running ZomeCall into a terminal Failed
// state.
type CancelPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// InitializationPayload carries an application package into the
// nucleus.
type InitializationPayload struct {
	App interface{} `json:"app,omitempty"`
}

// InitializationResult reports whether genesis succeeded.
type InitializationResult struct {
	Err string `json:"error,omitempty"`
}

// NetworkRequest starts a DHT operation.
type NetworkRequest struct {
	OpID    string  `json:"opId"`
	Address Address `json:"address,omitempty"`
	Entry   *Entry  `json:"entry,omitempty"`

	// CallID optionally ties a validation request back to the
	// ZomeCall that needs its result.
	CallID string `json:"callId,omitempty"`
}

// NetworkResult resolves a DHT operation.
type NetworkResult struct {
	OpID  string `json:"opId"`
	Entry *Entry `json:"entry,omitempty"`
	Err   string `json:"error,omitempty"`
}

// Constructors.  Payloads always travel as pointers so that an
// Action looks the same whether it was dispatched in-process or
// decoded from the action log.

// NewCommit makes an agent Commit action.
func NewCommit(e Entry, previous Address) Action {
	return Action{
		Kind:    ActionCommit,
		Payload: &CommitPayload{Entry: e, Previous: previous},
	}
}

// NewExecute makes a nucleus ExecuteZomeFunction action.
func NewExecute(call ZomeCall) Action {
	return Action{
		Kind:    ActionExecuteZomeFunction,
		Payload: &call,
	}
}

// NewZomeResult makes a nucleus ReturnZomeFunctionResult action.
func NewZomeResult(callID string, value interface{}, err string) Action {
	return Action{
		Kind:    ActionReturnZomeFunctionResult,
		Payload: &ZomeCallResult{CallID: callID, Value: value, Err: err},
	}
}

// NewValidationResult makes a nucleus ReturnValidationResult action.
func NewValidationResult(callID string, valid bool, reason string) Action {
	return Action{
		Kind:    ActionReturnValidationResult,
		Payload: &ValidationResult{CallID: callID, Valid: valid, Reason: reason},
	}
}

// NewCancel makes a nucleus CancelZomeFunction action.
func NewCancel(callID, reason string) Action {
	return Action{
		Kind:    ActionCancelZomeFunction,
		Payload: &CancelPayload{CallID: callID, Reason: reason},
	}
}

// NewNetworkRequest makes a network request action of the given Kind
// (ActionPublish, ActionGetEntry, or ActionValidateEntry).
func NewNetworkRequest(kind Kind, req NetworkRequest) Action {
	if req.OpID == "" {
		req.OpID = uuid.NewString()
	}
	return Action{
		Kind:    kind,
		Payload: &req,
	}
}

// NewNetworkResult makes a network HandleNetworkResult action.
func NewNetworkResult(opID string, entry *Entry, err string) Action {
	return Action{
		Kind:    ActionHandleNetworkResult,
		Payload: &NetworkResult{OpID: opID, Entry: entry, Err: err},
	}
}

// payloadTypes maps a Kind to a constructor for its payload, for
// decoding logged actions.
var payloadTypes = map[Kind]func() interface{}{
	ActionCommit:                     func() interface{} { return &CommitPayload{} },
	ActionInitializeApplication:      func() interface{} { return &InitializationPayload{} },
	ActionReturnInitializationResult: func() interface{} { return &InitializationResult{} },
	ActionExecuteZomeFunction:        func() interface{} { return &ZomeCall{} },
	ActionReturnZomeFunctionResult:   func() interface{} { return &ZomeCallResult{} },
	ActionReturnValidationResult:     func() interface{} { return &ValidationResult{} },
	ActionCancelZomeFunction:         func() interface{} { return &CancelPayload{} },
	ActionPublish:                    func() interface{} { return &NetworkRequest{} },
	ActionGetEntry:                   func() interface{} { return &NetworkRequest{} },
	ActionValidateEntry:              func() interface{} { return &NetworkRequest{} },
	ActionHandleNetworkResult:        func() interface{} { return &NetworkResult{} },
}

// UnmarshalJSON decodes an Action, giving the Payload its concrete
// type based on the Kind.  Unknown Kinds keep their payload as
// generic JSON, which reducers will ignore.
func (a *Action) UnmarshalJSON(bs []byte) error {
	var raw struct {
		Kind    Kind            `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(bs, &raw); err != nil {
		return err
	}
	a.Kind = raw.Kind
	if raw.Payload == nil {
		a.Payload = nil
		return nil
	}
	maker, have := payloadTypes[raw.Kind]
	if !have {
		var x interface{}
		if err := json.Unmarshal(raw.Payload, &x); err != nil {
			return err
		}
		a.Payload = x
		return nil
	}
	p := maker()
	if err := json.Unmarshal(raw.Payload, p); err != nil {
		return fmt.Errorf("action %s payload: %w", raw.Kind, err)
	}
	a.Payload = p
	return nil
}
