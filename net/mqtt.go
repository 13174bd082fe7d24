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

package net

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/dynaput247/holochain/core"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var (
	// DefaultOpTimeout bounds how long an MQTT-backed Get or
	// Validate waits for some peer to answer.
	DefaultOpTimeout = 10 * time.Second

	// DefaultQuiesce is the disconnect quiesce in milliseconds.
	DefaultQuiesce = uint(250)
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	// BrokerURL is, e.g., "tcp://localhost:1883".
	BrokerURL string

	// ClientID defaults to a fresh UUID.
	ClientID string

	Username string
	Password string

	// KeepAlive in seconds.
	KeepAlive int

	QoS byte

	// OpTimeout defaults to DefaultOpTimeout.
	OpTimeout time.Duration
}

// wireMessage is the JSON exchanged between peers on the DNA's
// topics.
type wireMessage struct {
	Kind    string       `json:"kind"` // "put", "get", "validate", "response"
	OpID    string       `json:"opId"`
	From    string       `json:"from"`
	Address core.Address `json:"address,omitempty"`
	Entry   *core.Entry  `json:"entry,omitempty"`
	Valid   bool         `json:"valid,omitempty"`
	Err     string       `json:"error,omitempty"`
}

// pendingOp is an outstanding Get or Validate awaiting a peer's
// response.
type pendingOp struct {
	callID string
	timer  *time.Timer
}

// MQTT is a core.Network that moves DHT messages between peers over
// an MQTT broker.  Peers running the same DNA share a topic rooted at
// the DNA's hash.
type MQTT struct {
	Instance *core.Instance

	// Validator answers validate requests from peers.
	Validator Validator

	// DNAHash scopes the topics: peers on the same DNA see each
	// other.
	DNAHash string

	Opts MQTTOptions

	client mqtt.Client

	mu      sync.Mutex
	entries map[core.Address]core.Entry
	pending map[string]*pendingOp
}

// NewMQTT makes an unconnected MQTT network.  Call Start.
func NewMQTT(in *core.Instance, dnaHash string, opts MQTTOptions) *MQTT {
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 10
	}
	if opts.OpTimeout == 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	return &MQTT{
		Instance: in,
		DNAHash:  dnaHash,
		Opts:     opts,
		entries:  make(map[core.Address]core.Entry),
		pending:  make(map[string]*pendingOp),
	}
}

func (n *MQTT) reqTopic() string {
	return "hc/" + n.DNAHash + "/req"
}

func (n *MQTT) resTopic(peer string) string {
	return "hc/" + n.DNAHash + "/res/" + peer
}

// Start connects to the broker and subscribes to the DNA's request
// topic and this peer's response topic.
func (n *MQTT) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(n.Opts.BrokerURL)
	opts.SetClientID(n.Opts.ClientID)
	opts.SetKeepAlive(time.Duration(n.Opts.KeepAlive) * time.Second)
	opts.SetAutoReconnect(true)
	if n.Opts.Username != "" {
		opts.SetUsername(n.Opts.Username)
		opts.SetPassword(n.Opts.Password)
	}

	n.client = mqtt.NewClient(opts)
	if t := n.client.Connect(); t.Wait() && t.Error() != nil {
		return t.Error()
	}

	handler := func(c mqtt.Client, m mqtt.Message) {
		n.handle(ctx, m.Payload())
	}

	for _, topic := range []string{n.reqTopic(), n.resTopic(n.Opts.ClientID)} {
		if t := n.client.Subscribe(topic, n.Opts.QoS, handler); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	return nil
}

// Stop disconnects from the broker.
func (n *MQTT) Stop(ctx context.Context) error {
	if n.client == nil {
		return nil
	}
	n.client.Disconnect(DefaultQuiesce)
	return nil
}

func (n *MQTT) send(topic string, m wireMessage) error {
	m.From = n.Opts.ClientID
	js, err := json.Marshal(&m)
	if err != nil {
		return err
	}
	t := n.client.Publish(topic, n.Opts.QoS, false, js)
	t.Wait()
	return t.Error()
}

// handle processes one inbound wire message.
func (n *MQTT) handle(ctx context.Context, payload []byte) {
	var m wireMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Printf("MQTT can't parse message: %s", err)
		return
	}
	if m.From == n.Opts.ClientID {
		// Our own request echoed back.
		return
	}

	switch m.Kind {
	case "put":
		if m.Entry == nil {
			return
		}
		if n.Validator != nil {
			if ok, reason := n.Validator(ctx, *m.Entry); !ok {
				log.Printf("MQTT rejecting put %s: %s", m.Entry.Address(), reason)
				return
			}
		}
		n.mu.Lock()
		n.entries[m.Entry.Address()] = *m.Entry
		n.mu.Unlock()

	case "get":
		n.mu.Lock()
		entry, have := n.entries[m.Address]
		n.mu.Unlock()
		res := wireMessage{Kind: "response", OpID: m.OpID}
		if have {
			res.Entry = &entry
		}
		if err := n.send(n.resTopic(m.From), res); err != nil {
			log.Printf("MQTT response error %s", err)
		}

	case "validate":
		if m.Entry == nil {
			return
		}
		ok, reason := true, ""
		if n.Validator != nil {
			ok, reason = n.Validator(ctx, *m.Entry)
		}
		res := wireMessage{Kind: "response", OpID: m.OpID, Valid: ok, Err: reason}
		if err := n.send(n.resTopic(m.From), res); err != nil {
			log.Printf("MQTT response error %s", err)
		}

	case "response":
		n.resolve(m)

	default:
		log.Printf("MQTT unknown message kind %q", m.Kind)
	}
}

// resolve matches a peer's response to a pending op and dispatches
// the result actions.
func (n *MQTT) resolve(m wireMessage) {
	n.mu.Lock()
	op, have := n.pending[m.OpID]
	if have {
		delete(n.pending, m.OpID)
		op.timer.Stop()
	}
	n.mu.Unlock()
	if !have {
		// Some other peer answered first, or we timed out.
		return
	}

	if op.callID != "" {
		n.Instance.Dispatch(core.NewValidationResult(op.callID, m.Valid, m.Err))
	}
	n.Instance.Dispatch(core.NewNetworkResult(m.OpID, m.Entry, m.Err))
}

// await registers a pending op with a timeout.
func (n *MQTT) await(opID, callID string) {
	op := &pendingOp{callID: callID}
	op.timer = time.AfterFunc(n.Opts.OpTimeout, func() {
		n.mu.Lock()
		_, still := n.pending[opID]
		delete(n.pending, opID)
		n.mu.Unlock()
		if still {
			n.Instance.Dispatch(core.NewNetworkResult(opID, nil, "peer timeout"))
		}
	})
	n.mu.Lock()
	n.pending[opID] = op
	n.mu.Unlock()
}

// Publish stores the entry locally and broadcasts it.  The op
// resolves on broker delivery.
func (n *MQTT) Publish(ctx context.Context, entry core.Entry, opID string) {
	n.mu.Lock()
	n.entries[entry.Address()] = entry
	n.mu.Unlock()

	err := n.send(n.reqTopic(), wireMessage{
		Kind:  "put",
		OpID:  opID,
		Entry: &entry,
	})
	if err != nil {
		n.Instance.Dispatch(core.NewNetworkResult(opID, nil, err.Error()))
		return
	}
	n.Instance.Dispatch(core.NewNetworkResult(opID, nil, ""))
}

// Get asks the neighborhood for an entry, answering locally when we
// hold it.
func (n *MQTT) Get(ctx context.Context, address core.Address, opID string) {
	n.mu.Lock()
	entry, have := n.entries[address]
	n.mu.Unlock()
	if have {
		n.Instance.Dispatch(core.NewNetworkResult(opID, &entry, ""))
		return
	}

	n.await(opID, "")
	err := n.send(n.reqTopic(), wireMessage{
		Kind:    "get",
		OpID:    opID,
		Address: address,
	})
	if err != nil {
		n.resolve(wireMessage{OpID: opID, Err: err.Error()})
	}
}

// ValidateRemote asks a peer to validate the entry.
func (n *MQTT) ValidateRemote(ctx context.Context, entry core.Entry, opID, callID string) {
	n.await(opID, callID)
	err := n.send(n.reqTopic(), wireMessage{
		Kind:  "validate",
		OpID:  opID,
		Entry: &entry,
	})
	if err != nil {
		n.resolve(wireMessage{OpID: opID, Err: err.Error()})
	}
}

var _ core.Network = (*MQTT)(nil)
var _ core.Network = (*Loopback)(nil)
