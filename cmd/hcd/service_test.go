package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dynaput247/holochain/core"
	"github.com/dynaput247/holochain/dna"
	"github.com/dynaput247/holochain/store"
	. "github.com/dynaput247/holochain/util/testutil"
)

var testDNA = `
name: blog
zomes:
  - name: posts
    code: |
      function create_post(params) {
        return commit({type: "post", content: params.content});
      }
      function validate_post(entry) {
        if (entry.content === "spam") { return "no spam"; }
        return true;
      }
    functions:
      - name: create_post
      - name: validate_post
        validating: true
`

func startService(t *testing.T, opts ServiceOptions) (*Service, context.CancelFunc) {
	t.Helper()

	dir := t.TempDir()
	dnaFile := filepath.Join(dir, "blog.yaml")
	if err := os.WriteFile(dnaFile, []byte(testDNA), 0644); err != nil {
		t.Fatal(err)
	}
	opts.DNAFile = dnaFile

	ctx, cancel := context.WithCancel(context.Background())

	s, err := NewService(ctx, opts)
	if err != nil {
		cancel()
		t.Fatal(err)
	}

	go func() {
		if err := s.Run(ctx); err != nil {
			t.Error(err)
		}
	}()

	return s, cancel
}

func TestServiceGenesis(t *testing.T) {
	s, cancel := startService(t, ServiceOptions{})
	defer cancel()

	if !Within(5*time.Second, func() bool {
		st := s.inst.State()
		return st.Nucleus().Status() == core.AppInitialized && st.Agent().Len() == 1
	}) {
		t.Fatal("genesis never completed")
	}

	chain := s.inst.State().Agent().Chain()
	if chain[0].EntryType != GenesisEntryType {
		t.Fatalf("first chain entry is %s", chain[0].EntryType)
	}
}

func TestServiceGenesisWithBusyLoop(t *testing.T) {
	dir := t.TempDir()
	dnaFile := filepath.Join(dir, "blog.yaml")
	if err := os.WriteFile(dnaFile, []byte(testDNA), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewService(ctx, ServiceOptions{DNAFile: dnaFile})
	if err != nil {
		t.Fatal(err)
	}

	// Pile up work so the loop is churning through the queue while
	// genesis waits on its commit.
	for i := 0; i < 1000; i++ {
		s.inst.Dispatch(core.Action{Kind: core.ActionEmitSignal, Payload: i})
	}

	go s.Run(ctx)

	if !Within(5*time.Second, func() bool {
		st := s.inst.State()
		return st.Nucleus().Status() == core.AppInitialized && st.Agent().Len() == 1
	}) {
		t.Fatal("genesis never completed")
	}
}

func TestServiceResumesInterruptedGenesis(t *testing.T) {
	dir := t.TempDir()
	dnaFile := filepath.Join(dir, "blog.yaml")
	if err := os.WriteFile(dnaFile, []byte(testDNA), 0644); err != nil {
		t.Fatal(err)
	}
	dbFile := filepath.Join(dir, "blog.db")

	// Hand-write a log that stopped after the first genesis step, as
	// if the process died before the DNA entry was committed.
	ctx := context.Background()
	db, err := store.NewStore(dbFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Open(ctx); err != nil {
		t.Fatal(err)
	}
	aw := core.Wrap(core.Action{
		Kind:    core.ActionInitializeApplication,
		Payload: &core.InitializationPayload{App: "blog"},
	})
	if err := db.RecordAction(aw); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(ctx); err != nil {
		t.Fatal(err)
	}

	rctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewService(rctx, ServiceOptions{DNAFile: dnaFile, DBFile: dbFile})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.inst.State().Nucleus().Status(); got != core.AppInitializing {
		t.Fatalf("restored status %s", got)
	}

	go s.Run(rctx)

	if !Within(5*time.Second, func() bool {
		st := s.inst.State()
		return st.Nucleus().Status() == core.AppInitialized && st.Agent().Len() == 1
	}) {
		t.Fatal("genesis never resumed")
	}

	chain := s.inst.State().Agent().Chain()
	if chain[0].EntryType != GenesisEntryType {
		t.Fatalf("first chain entry is %s", chain[0].EntryType)
	}
}

func TestServiceResumesAfterGenesisCommit(t *testing.T) {
	dir := t.TempDir()
	dnaFile := filepath.Join(dir, "blog.yaml")
	if err := os.WriteFile(dnaFile, []byte(testDNA), 0644); err != nil {
		t.Fatal(err)
	}
	dbFile := filepath.Join(dir, "blog.db")

	d, err := dna.Parse([]byte(testDNA))
	if err != nil {
		t.Fatal(err)
	}

	// This log died with the DNA entry on the chain but the
	// initialization result still outstanding.
	ctx := context.Background()
	db, err := store.NewStore(dbFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Open(ctx); err != nil {
		t.Fatal(err)
	}
	for _, a := range []core.Action{
		{
			Kind:    core.ActionInitializeApplication,
			Payload: &core.InitializationPayload{App: "blog"},
		},
		core.NewCommit(core.Entry{Type: GenesisEntryType, Content: d.Hash()}, core.NilAddress),
	} {
		if err := db.RecordAction(core.Wrap(a)); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Close(ctx); err != nil {
		t.Fatal(err)
	}

	rctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewService(rctx, ServiceOptions{DNAFile: dnaFile, DBFile: dbFile})
	if err != nil {
		t.Fatal(err)
	}
	go s.Run(rctx)

	if !Within(5*time.Second, func() bool {
		st := s.inst.State()
		return st.Nucleus().Status() == core.AppInitialized && st.Agent().Len() == 1
	}) {
		t.Fatal("genesis never resumed")
	}
}

func TestServiceOps(t *testing.T) {
	s, cancel := startService(t, ServiceOptions{})
	defer cancel()

	// The call's commit builds on the genesis entry.
	if !Within(5*time.Second, func() bool {
		return s.inst.State().Agent().Len() == 1
	}) {
		t.Fatal("genesis never completed")
	}

	ctx := context.Background()

	call := SOp{
		Call: &CallOp{
			Zome:     "posts",
			Function: "create_post",
			Params:   map[string]interface{}{"content": "tacos"},
		},
	}
	if err := call.Do(ctx, s); err != nil {
		t.Fatal(err)
	}
	if call.Call.Id == "" {
		t.Fatal("no call id")
	}

	if !Within(5*time.Second, func() bool {
		r, have := s.inst.State().Nucleus().Call(call.Call.Id)
		return have && r.Status == core.StatusSucceeded
	}) {
		t.Fatal("call never succeeded")
	}

	// Genesis entry plus the call's commit.
	if !Within(5*time.Second, func() bool {
		return s.inst.State().Agent().Len() == 2
	}) {
		t.Fatalf("chain length %d", s.inst.State().Agent().Len())
	}

	var state SOp
	state.State = &StateOp{Full: true}
	if err := state.Do(ctx, s); err != nil {
		t.Fatal(err)
	}
	if state.State.ChainLen != 2 || len(state.State.Chain) != 2 {
		t.Fatalf("state op saw chain length %d", state.State.ChainLen)
	}

	// The answer as a websocket client would see it.
	js, err := json.Marshal(&state)
	if err != nil {
		t.Fatal(err)
	}
	wire := Dwimjs(js).(map[string]interface{})
	if n := wire["state"].(map[string]interface{})["chainLen"]; n != float64(2) {
		t.Fatalf("wire chainLen %v", n)
	}

	get := SOp{
		Get: &GetOp{Address: state.State.Chain[1].EntryAddress},
	}
	if err := get.Do(ctx, s); err != nil {
		t.Fatal(err)
	}

	if !Within(5*time.Second, func() bool {
		op, have := s.inst.State().Network().Op(get.Get.OpId)
		return have && op.Status == core.StatusSucceeded && op.Result != nil
	}) {
		t.Fatal("get never resolved")
	}

	bad := SOp{}
	if err := bad.Do(ctx, s); err == nil {
		t.Fatal("empty op should fail")
	}
	if bad.Err == "" {
		t.Fatal("empty op should report its error")
	}
}

func TestServiceRestoresFromStore(t *testing.T) {
	dir := t.TempDir()
	dnaFile := filepath.Join(dir, "blog.yaml")
	if err := os.WriteFile(dnaFile, []byte(testDNA), 0644); err != nil {
		t.Fatal(err)
	}
	dbFile := filepath.Join(dir, "blog.db")

	opts := ServiceOptions{DNAFile: dnaFile, DBFile: dbFile}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewService(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	go s.Run(ctx)

	if !Within(5*time.Second, func() bool {
		return s.inst.State().Nucleus().Status() == core.AppInitialized
	}) {
		t.Fatal("genesis never completed")
	}
	top := s.inst.State().Agent().Top()
	cancel()
	time.Sleep(100 * time.Millisecond) // let the store close

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	s2, err := NewService(ctx2, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if s2.store != nil {
			s2.store.Close(ctx2)
		}
	}()

	st := s2.inst.State()
	if st.Nucleus().Status() != core.AppInitialized {
		t.Fatalf("restored app status %s", st.Nucleus().Status())
	}
	if st.Agent().Top() != top {
		t.Fatalf("restored top %s, wanted %s", st.Agent().Top(), top)
	}
}
