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

// Package core provides the action-driven state engine at the heart
// of an instance: the immutable composite State, the Action type, the
// per-domain reducers, the pending-action queue, and the
// observer/signal bus.
//
// The primary type is Instance.  Producers call Dispatch() from any
// goroutine; the Instance's consumption loop pops one action at a
// time, folds it through every domain reducer, and publishes the
// resulting State.  Reducers are pure: a reducer either returns the
// identical previous slice (for actions it does not handle) or a
// freshly built one, and never performs IO.
//
// Side effects -- invoking the sandbox, talking to peers -- are
// consequences that the Instance launches after a cycle publishes.
// They run on worker goroutines and communicate back only by
// dispatching new actions, which is how slow or blocking work is
// absorbed without stalling state mutation for unrelated actions.
//
// Every mutation is traceable: the State carries the ordered log of
// ActionWrappers it was reduced from, and Replay() folds such a log
// over an initial State to reproduce the final one.
//
// To use this package, make an Instance, wire its Ribosome and
// Network collaborators, and drive Run() on one goroutine.
package core
