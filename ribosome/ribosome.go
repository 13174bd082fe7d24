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

// Package ribosome executes zome functions in a Goja (ECMAScript
// 5.1+) sandbox.
//
// The Instance never waits on the sandbox: Invoke runs on a worker
// goroutine, and the outcome re-enters the engine as a
// ReturnZomeFunctionResult action.
//
// See https://github.com/dop251/goja.
package ribosome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dynaput247/holochain/core"
	"github.com/dynaput247/holochain/dna"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is the error for an execution that was cut off
	// by cancellation or timeout.
	Interrupted = errors.New(InterruptedMessage)

	// DefaultTimeout limits a single zome function execution.
	DefaultTimeout = 10 * time.Second
)

// Ribosome implements core.Ribosome for one DNA.
type Ribosome struct {
	// Instance receives result actions and serves the read-only
	// state accessors exposed to zome code.
	Instance *core.Instance

	DNA *dna.DNA

	// Timeout limits one execution.  DefaultTimeout if zero.
	Timeout time.Duration

	// Testing exposes sleep() to zome code.
	Testing bool

	mu       sync.Mutex
	programs map[string]*goja.Program
}

// New makes a Ribosome for the given instance and DNA.
func New(in *core.Instance, d *dna.DNA) *Ribosome {
	return &Ribosome{
		Instance: in,
		DNA:      d,
		programs: make(map[string]*goja.Program),
	}
}

// Invoke executes the call and dispatches its outcome back into the
// Instance.  Blocks until the sandbox finishes (or is interrupted),
// so run it on a worker goroutine; the Instance does.
func (r *Ribosome) Invoke(ctx context.Context, call core.ZomeCall) {
	value, err := r.exec(ctx, call)
	if err != nil {
		r.Instance.Dispatch(core.NewZomeResult(call.ID, nil, err.Error()))
		return
	}
	r.Instance.Dispatch(core.NewZomeResult(call.ID, value, ""))
}

// ValidateEntry runs every zome's validating function against the
// entry.  The entry is valid if every validator returns a truthy
// value; a string return is taken as the rejection reason.
func (r *Ribosome) ValidateEntry(ctx context.Context, entry core.Entry) (bool, string) {
	for _, z := range r.DNA.Zomes {
		v, have := z.Validator()
		if !have {
			continue
		}
		x, err := r.run(ctx, z, v.Name, map[string]interface{}{
			"type":    entry.Type,
			"content": entry.Content,
		})
		if err != nil {
			return false, err.Error()
		}
		switch vv := x.(type) {
		case bool:
			if !vv {
				return false, fmt.Sprintf(`rejected by "%s/%s"`, z.Name, v.Name)
			}
		case string:
			if vv != "" {
				return false, vv
			}
		case nil:
			// Nothing to protest.
		}
	}
	return true, ""
}

func (r *Ribosome) exec(ctx context.Context, call core.ZomeCall) (interface{}, error) {
	z, have := r.DNA.Zome(call.Zome)
	if !have {
		return nil, &UnknownZome{r.DNA.Name, call.Zome}
	}
	if len(z.Functions) > 0 {
		if _, have := z.Function(call.Function); !have {
			return nil, &UnknownFunction{z.Name, call.Function}
		}
	}
	return r.run(ctx, z, call.Function, call.Params)
}

// compile caches one compiled program per zome.
func (r *Ribosome) compile(z *dna.Zome) (*goja.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, have := r.programs[z.Name]; have {
		return p, nil
	}
	p, err := goja.Compile(z.Name, z.Code, true)
	if err != nil {
		return nil, err
	}
	r.programs[z.Name] = p
	return p, nil
}

// run executes one function of one zome.
func (r *Ribosome) run(ctx context.Context, z *dna.Zome, function string, params interface{}) (interface{}, error) {
	p, err := r.compile(z)
	if err != nil {
		return nil, err
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	o := goja.New()
	r.env(o, params)

	// Terminate the watcher goroutine as soon as possible.  If
	// cancel() runs after RunProgram returns, the interrupt is
	// never seen, which is the behavior we want.
	go func() {
		<-ictx.Done()
		o.Interrupt(InterruptedMessage)
	}()

	if _, err := o.RunProgram(p); err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	fn, ok := goja.AssertFunction(o.Get(function))
	if !ok {
		return nil, &UnknownFunction{z.Name, function}
	}

	arg, err := canonicalize(params)
	if err != nil {
		return nil, err
	}

	v, err := fn(goja.Undefined(), o.ToValue(arg))
	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	return canonicalize(v.Export())
}

// env installs the host functions available to zome code.
//
//	params: the call's parameters.
//	commit(entry): commit an entry; returns its address.
//	get(address): start a DHT get; returns the op id.
//	query(): the agent's source chain headers.
//	trace(x): emit a user-visible signal.
//	cronNext(expr): next firing time for a cron expression.
//
// For testing only:
//
//	sleep(ms): sleep for the given number of milliseconds.
func (r *Ribosome) env(o *goja.Runtime, params interface{}) {
	arg, err := canonicalize(params)
	if err != nil {
		arg = nil
	}
	o.Set("params", arg)

	o.Set("commit", func(x interface{}) interface{} {
		if v, is := x.(goja.Value); is {
			x = v.Export()
		}
		m, err := canonicalize(x)
		if err != nil {
			protest(o, err.Error())
		}
		obj, is := m.(map[string]interface{})
		if !is {
			protest(o, "commit wants an object")
		}
		entry := core.Entry{}
		if s, is := obj["type"].(string); is {
			entry.Type = s
		}
		if s, is := obj["content"].(string); is {
			entry.Content = s
		}
		top := r.Instance.State().Agent().Top()
		r.Instance.Dispatch(core.NewCommit(entry, top))
		return string(entry.Address())
	})

	o.Set("get", func(x interface{}) interface{} {
		if v, is := x.(goja.Value); is {
			x = v.Export()
		}
		s, is := x.(string)
		if !is {
			protest(o, "get wants an address string")
		}
		a := core.NewNetworkRequest(core.ActionGetEntry, core.NetworkRequest{
			Address: core.Address(s),
		})
		r.Instance.Dispatch(a)
		return a.Payload.(*core.NetworkRequest).OpID
	})

	o.Set("query", func() interface{} {
		headers := r.Instance.State().Agent().Chain()
		acc := make([]interface{}, 0, len(headers))
		for _, h := range headers {
			acc = append(acc, map[string]interface{}{
				"type":     h.EntryType,
				"entry":    string(h.EntryAddress),
				"previous": string(h.Previous),
			})
		}
		return acc
	})

	o.Set("trace", func(x interface{}) {
		if v, is := x.(goja.Value); is {
			x = v.Export()
		}
		y, err := canonicalize(x)
		if err != nil {
			protest(o, err.Error())
		}
		r.Instance.Dispatch(core.Action{
			Kind:    core.ActionEmitSignal,
			Payload: y,
		})
	})

	o.Set("cronNext", func(x interface{}) interface{} {
		if v, is := x.(goja.Value); is {
			x = v.Export()
		}
		s, is := x.(string)
		if !is {
			protest(o, "not a string")
		}
		c, err := cronexpr.Parse(s)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	})

	if r.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

// canonicalize forces a value through JSON so that what a zome
// returns is exactly what a replayed action log would carry.
func canonicalize(x interface{}) (interface{}, error) {
	if x == nil {
		return nil, nil
	}
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}
