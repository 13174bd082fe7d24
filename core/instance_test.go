package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/dynaput247/holochain/util/testutil"
)

// drain consumes until the queue is empty.
func drain(t *testing.T, in *Instance) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for in.ConsumeNextAction(ctx) {
	}
	if err := in.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchFIFO(t *testing.T) {
	in := NewInstance()

	var ids []string
	for i := 0; i < 10; i++ {
		aw := in.Dispatch(Action{Kind: ActionEmitSignal, Payload: fmt.Sprintf("%d", i)})
		ids = append(ids, aw.ID)
	}

	drain(t, in)

	history := in.State().History()
	if len(history) != len(ids) {
		t.Fatalf("consumed %d of %d", len(history), len(ids))
	}
	for i, aw := range history {
		if aw.ID != ids[i] {
			t.Fatalf("position %d: %s != %s", i, aw.ID, ids[i])
		}
	}
}

func TestConsumeEmptyQueue(t *testing.T) {
	in := NewInstance()
	if in.ConsumeNextAction(context.Background()) {
		t.Fatal("consumed from an empty queue")
	}
}

func TestConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		each      = 50
	)

	in := NewInstance()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				in.Dispatch(Action{
					Kind:    ActionEmitSignal,
					Payload: fmt.Sprintf("%d/%d", p, i),
				})
			}
		}(p)
	}
	wg.Wait()

	if !Within(5*time.Second, func() bool {
		return len(in.State().History()) == producers*each
	}) {
		t.Fatalf("consumed %d of %d", len(in.State().History()), producers*each)
	}

	// No duplicates.
	seen := make(map[string]bool, producers*each)
	for _, aw := range in.State().History() {
		if seen[aw.ID] {
			t.Fatalf("action %s consumed twice", aw.ID)
		}
		seen[aw.ID] = true
	}
}

func TestPerProducerOrdering(t *testing.T) {
	in := NewInstance()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	a1 := in.Dispatch(Action{Kind: ActionEmitSignal, Payload: "first"})
	a2 := in.Dispatch(Action{Kind: ActionEmitSignal, Payload: "second"})

	if !Within(5*time.Second, func() bool {
		return len(in.State().History()) == 2
	}) {
		t.Fatal("not consumed")
	}

	history := in.State().History()
	if history[0].ID != a1.ID || history[1].ID != a2.ID {
		t.Fatal("A1 did not publish before A2")
	}
}

func TestObserve(t *testing.T) {
	in := NewInstance()

	e := Entry{Type: "post", Content: "tacos"}
	done := in.Observe(func(aw *ActionWrapper, st *State) bool {
		return st.Agent().Top() == e.Address()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	in.Dispatch(NewCommit(e, NilAddress))

	select {
	case st := <-done:
		if st.Agent().Top() != e.Address() {
			t.Fatalf("top %s", st.Agent().Top())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("observer never resolved")
	}
}

func TestObserveOnlySeesFutureCycles(t *testing.T) {
	in := NewInstance()

	aw := in.Dispatch(NewCommit(Entry{Type: "post", Content: "tacos"}, NilAddress))
	drain(t, in)

	// The cycle already ran, so this observer cannot match it.
	stale := in.Observe(func(got *ActionWrapper, st *State) bool {
		return got.ID == aw.ID
	})

	select {
	case st := <-stale:
		t.Fatalf("observer resolved for a consumed action: %v", st)
	case <-time.After(100 * time.Millisecond):
	}

	second := NewCommit(Entry{Type: "post", Content: "queso"}, in.State().Agent().Top())
	done := in.Observe(func(got *ActionWrapper, st *State) bool {
		return got.Action.Payload == second.Payload
	})
	in.Dispatch(second)
	drain(t, in)

	select {
	case st := <-done:
		if st.Agent().Len() != 2 {
			t.Fatalf("chain len %d", st.Agent().Len())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("observer never resolved")
	}
}

func TestSignalOrdering(t *testing.T) {
	in := NewInstance()

	var (
		mu  sync.Mutex
		got []string
	)
	in.OnSignal(func(sig Signal) {
		if sig.Kind != SignalUser {
			return
		}
		mu.Lock()
		got = append(got, sig.Value.(string))
		mu.Unlock()
	})

	want := []string{"a", "b", "c"}
	for _, v := range want {
		in.Dispatch(Action{Kind: ActionEmitSignal, Payload: v})
	}
	drain(t, in)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("got %d signals", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("signal %d: %s", i, got[i])
		}
	}
}

func TestSignalAfterPublish(t *testing.T) {
	in := NewInstance()

	e := Entry{Type: "post", Content: "tacos"}
	var sawTop Address
	in.OnSignal(func(sig Signal) {
		// The signal's action must already be visible in state.
		sawTop = in.State().Agent().Top()
	})

	in.Dispatch(NewCommit(e, NilAddress))
	drain(t, in)

	if sawTop != e.Address() {
		t.Fatalf("signal fired before publish: top %s", sawTop)
	}
}

func TestRejectedCommitSignals(t *testing.T) {
	in := NewInstance()

	var errs []interface{}
	in.OnSignal(func(sig Signal) {
		if sig.Kind != SignalUser {
			return
		}
		if m, is := sig.Value.(map[string]interface{}); is {
			if e, have := m["error"]; have {
				errs = append(errs, e)
			}
		}
	})

	in.Dispatch(NewCommit(Entry{Type: "post", Content: "x"}, "stale-head"))
	drain(t, in)

	if len(errs) != 1 {
		t.Fatalf("got %d error signals: %s", len(errs), JS(errs))
	}
	if errs[0] != ErrStaleHead {
		t.Fatalf("error %v", errs[0])
	}
}

// fakeRibosome resolves every call with a canned value.
type fakeRibosome struct {
	in    *Instance
	value interface{}
	err   string

	mu    sync.Mutex
	calls []ZomeCall
}

func (r *fakeRibosome) Invoke(ctx context.Context, call ZomeCall) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	r.in.Dispatch(NewZomeResult(call.ID, r.value, r.err))
}

func TestZomeCallRoundTrip(t *testing.T) {
	in := NewInstance()
	rib := &fakeRibosome{in: in, value: "it worked"}
	in.Ribosome = rib

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	call := NewZomeCall("blog", "create_post", nil)
	in.Dispatch(NewExecute(call))

	if !Within(5*time.Second, func() bool {
		r, have := in.State().Nucleus().Call(call.ID)
		return have && r.Status == StatusSucceeded
	}) {
		r, _ := in.State().Nucleus().Call(call.ID)
		t.Fatalf("call stuck at %s", r.Status)
	}

	r, _ := in.State().Nucleus().Call(call.ID)
	if r.Value != "it worked" {
		t.Fatalf("value %v", r.Value)
	}
	rib.mu.Lock()
	defer rib.mu.Unlock()
	if len(rib.calls) != 1 {
		t.Fatalf("ribosome invoked %d times", len(rib.calls))
	}
}

func TestCancelBeatsSlowWorker(t *testing.T) {
	in := NewInstance()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	call := NewZomeCall("blog", "slow", nil)
	in.Dispatch(NewExecute(call))
	in.Dispatch(NewCancel(call.ID, "took too long"))

	if !Within(5*time.Second, func() bool {
		r, have := in.State().Nucleus().Call(call.ID)
		return have && r.Status == StatusFailed
	}) {
		t.Fatal("cancel did not land")
	}

	// The worker finally finishes.  Its result must be a no-op.
	in.Dispatch(NewZomeResult(call.ID, "finally", ""))
	if !Within(5*time.Second, func() bool {
		return len(in.State().History()) == 3
	}) {
		t.Fatal("late result not consumed")
	}

	r, _ := in.State().Nucleus().Call(call.ID)
	if r.Status != StatusFailed || r.Err != "took too long" {
		t.Fatalf("record changed: %s %q", r.Status, r.Err)
	}
}

// fakeNetwork answers gets out of a map and acks publishes.
type fakeNetwork struct {
	in *Instance

	mu      sync.Mutex
	entries map[Address]Entry
}

func (n *fakeNetwork) Publish(ctx context.Context, entry Entry, opID string) {
	n.mu.Lock()
	if n.entries == nil {
		n.entries = make(map[Address]Entry)
	}
	n.entries[entry.Address()] = entry
	n.mu.Unlock()
	n.in.Dispatch(NewNetworkResult(opID, nil, ""))
}

func (n *fakeNetwork) Get(ctx context.Context, address Address, opID string) {
	n.mu.Lock()
	entry, have := n.entries[address]
	n.mu.Unlock()
	if have {
		n.in.Dispatch(NewNetworkResult(opID, &entry, ""))
	} else {
		n.in.Dispatch(NewNetworkResult(opID, nil, ""))
	}
}

func (n *fakeNetwork) ValidateRemote(ctx context.Context, entry Entry, opID, callID string) {
	n.in.Dispatch(NewNetworkResult(opID, nil, ""))
}

func TestCommitPublishes(t *testing.T) {
	in := NewInstance()
	nw := &fakeNetwork{in: in}
	in.Network = nw

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	e := Entry{Type: "post", Content: "tacos"}
	in.Dispatch(NewCommit(e, NilAddress))

	if !Within(5*time.Second, func() bool {
		nw.mu.Lock()
		defer nw.mu.Unlock()
		_, have := nw.entries[e.Address()]
		return have
	}) {
		t.Fatal("entry never published")
	}

	// And the publish op reached a terminal state.
	if !Within(5*time.Second, func() bool {
		for _, aw := range in.State().History() {
			if req, is := aw.Action.Payload.(*NetworkRequest); is && aw.Action.Kind == ActionPublish {
				op, have := in.State().Network().Op(req.OpID)
				return have && op.Status == StatusSucceeded
			}
		}
		return false
	}) {
		t.Fatal("publish op never resolved")
	}
}

func TestInstanceStopsOnInvariantViolation(t *testing.T) {
	domains[ActionCommit] = DomainNucleus
	defer func() { domains[ActionCommit] = DomainAgent }()

	in := NewInstance()
	in.Dispatch(NewCommit(Entry{Type: "post", Content: "x"}, NilAddress))
	in.Dispatch(Action{Kind: ActionEmitSignal, Payload: "after"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in.ConsumeNextAction(ctx)

	if in.Err() == nil {
		t.Fatal("expected fatal error")
	}
	if !in.Stopped() {
		t.Fatal("instance should be stopped")
	}
	if in.ConsumeNextAction(ctx) {
		t.Fatal("stopped instance consumed an action")
	}
	if len(in.State().History()) != 0 {
		t.Fatal("corrupt state was published")
	}
}
