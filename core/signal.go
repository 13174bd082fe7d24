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
	"sync"
)

// SignalKind distinguishes engine-internal signals from
// application-emitted ones.
type SignalKind string

const (
	// SignalInternal is fired for every consumed action.
	SignalInternal SignalKind = "internal"

	// SignalUser is fired for application-visible events: an
	// EmitSignal action's value, or a domain-level failure such
	// as a rejected commit.
	SignalUser SignalKind = "user"
)

// Signal is what the bus delivers to OnSignal callbacks.
type Signal struct {
	Kind    SignalKind     `json:"kind"`
	Wrapper *ActionWrapper `json:"action,omitempty"`
	Value   interface{}    `json:"value,omitempty"`
}

// signalBus fans signals out to registered callbacks and resolves
// observer conditions.
//
// Callbacks run synchronously inside the consumption step, after the
// cycle's State has been published, in the same order the actions
// were consumed.
type signalBus struct {
	mu        sync.Mutex
	callbacks []func(Signal)
	observers []*observer
}

type observer struct {
	pred func(*ActionWrapper, *State) bool
	ch   chan *State
}

// OnSignal registers a callback for every signal the bus delivers.
//
// The callback runs on the consumption loop's goroutine: a slow
// callback stalls state mutation, so hand work off if it matters.
func (b *signalBus) OnSignal(f func(Signal)) {
	b.mu.Lock()
	b.callbacks = append(b.callbacks, f)
	b.mu.Unlock()
}

// Observe registers a condition over (action, resulting state).
//
// The returned channel receives the first State produced by a
// consumption cycle whose pair satisfies pred, then is closed and the
// registration removed.
func (b *signalBus) Observe(pred func(*ActionWrapper, *State) bool) <-chan *State {
	o := &observer{
		pred: pred,
		ch:   make(chan *State, 1),
	}
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
	return o.ch
}

// emit delivers a signal to all callbacks.
func (b *signalBus) emit(sig Signal) {
	b.mu.Lock()
	fs := make([]func(Signal), len(b.callbacks))
	copy(fs, b.callbacks)
	b.mu.Unlock()

	for _, f := range fs {
		f(sig)
	}
}

// settle resolves any observers satisfied by this cycle.
func (b *signalBus) settle(aw *ActionWrapper, st *State) {
	b.mu.Lock()
	remaining := b.observers[:0]
	var satisfied []*observer
	for _, o := range b.observers {
		if o.pred(aw, st) {
			satisfied = append(satisfied, o)
		} else {
			remaining = append(remaining, o)
		}
	}
	b.observers = remaining
	b.mu.Unlock()

	for _, o := range satisfied {
		o.ch <- st
		close(o.ch)
	}
}
