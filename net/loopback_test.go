package net

import (
	"context"
	"testing"
	"time"

	"github.com/dynaput247/holochain/core"
	. "github.com/dynaput247/holochain/util/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startInstance(t *testing.T) (*core.Instance, *Loopback, context.CancelFunc) {
	t.Helper()
	in := core.NewInstance()
	n := NewLoopback(in)
	in.Network = n

	ctx, cancel := context.WithCancel(context.Background())
	go in.Run(ctx)
	return in, n, cancel
}

func awaitOp(t *testing.T, in *core.Instance, opID string) core.DHTOp {
	t.Helper()
	require.True(t, Within(5*time.Second, func() bool {
		op, have := in.State().Network().Op(opID)
		return have && op.Status.Terminal()
	}), "op %s never resolved", opID)
	op, _ := in.State().Network().Op(opID)
	return op
}

func TestPublishThenGet(t *testing.T) {
	in, _, cancel := startInstance(t)
	defer cancel()

	e := core.Entry{Type: "post", Content: "tacos"}

	// Commit: the engine publishes as a consequence.
	in.Dispatch(core.NewCommit(e, core.NilAddress))

	require.True(t, Within(5*time.Second, func() bool {
		for _, aw := range in.State().History() {
			if aw.Action.Kind == core.ActionPublish {
				op, have := in.State().Network().Op(aw.Action.Payload.(*core.NetworkRequest).OpID)
				return have && op.Status == core.StatusSucceeded
			}
		}
		return false
	}), "publish never resolved")

	get := core.NewNetworkRequest(core.ActionGetEntry, core.NetworkRequest{Address: e.Address()})
	in.Dispatch(get)

	op := awaitOp(t, in, get.Payload.(*core.NetworkRequest).OpID)
	assert.Equal(t, core.StatusSucceeded, op.Status)
	require.NotNil(t, op.Result)
	assert.Equal(t, e, *op.Result)
}

func TestGetMissing(t *testing.T) {
	in, _, cancel := startInstance(t)
	defer cancel()

	get := core.NewNetworkRequest(core.ActionGetEntry, core.NetworkRequest{Address: "deadbeef"})
	in.Dispatch(get)

	op := awaitOp(t, in, get.Payload.(*core.NetworkRequest).OpID)
	assert.Equal(t, core.StatusSucceeded, op.Status)
	assert.Nil(t, op.Result)
}

func TestPublishRejected(t *testing.T) {
	in, n, cancel := startInstance(t)
	defer cancel()

	n.Validator = func(ctx context.Context, entry core.Entry) (bool, string) {
		return entry.Content != "spam", "no spam"
	}

	e := core.Entry{Type: "post", Content: "spam"}
	pub := core.NewNetworkRequest(core.ActionPublish, core.NetworkRequest{Entry: &e})
	in.Dispatch(pub)

	op := awaitOp(t, in, pub.Payload.(*core.NetworkRequest).OpID)
	assert.Equal(t, core.StatusFailed, op.Status)
	assert.Equal(t, "no spam", op.Err)
}

func TestValidateRemoteResolvesCall(t *testing.T) {
	in, n, cancel := startInstance(t)
	defer cancel()

	n.Validator = func(ctx context.Context, entry core.Entry) (bool, string) {
		return false, "bad entry"
	}

	// A running call awaiting validation.
	call := core.NewZomeCall("posts", "create_post", nil)
	in.Dispatch(core.NewExecute(call))

	e := core.Entry{Type: "post", Content: "x"}
	val := core.NewNetworkRequest(core.ActionValidateEntry, core.NetworkRequest{
		Entry:  &e,
		CallID: call.ID,
	})
	in.Dispatch(val)

	require.True(t, Within(5*time.Second, func() bool {
		r, have := in.State().Nucleus().Call(call.ID)
		return have && r.Status == core.StatusRejected
	}), "call never rejected")

	r, _ := in.State().Nucleus().Call(call.ID)
	assert.Equal(t, "bad entry", r.Err)

	op := awaitOp(t, in, val.Payload.(*core.NetworkRequest).OpID)
	assert.Equal(t, core.StatusFailed, op.Status)
}
