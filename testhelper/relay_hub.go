package testhelper

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/ipfs-force-community/sophon-connect/provider/pairing"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// RelayHub is an in-memory relay server. Messages published on a topic nobody listens to
// are kept until someone subscribes, like a relay mailbox.
type RelayHub struct {
	lk      sync.Mutex
	peers   []*MemRelay
	mailbox map[string][]pairing.Message
}

func NewRelayHub() *RelayHub {
	return &RelayHub{mailbox: make(map[string][]pairing.Message)}
}

// NewRelay attaches a new peer to the hub.
func (h *RelayHub) NewRelay() *MemRelay {
	r := &MemRelay{
		hub:      h,
		topics:   make(map[string]struct{}),
		messages: make(chan pairing.Message, 64),
	}
	h.lk.Lock()
	h.peers = append(h.peers, r)
	h.lk.Unlock()
	return r
}

func (h *RelayHub) publish(from *MemRelay, msg pairing.Message) {
	h.lk.Lock()
	var targets []*MemRelay
	for _, peer := range h.peers {
		if peer != from && peer.subscribed(msg.Topic) {
			targets = append(targets, peer)
		}
	}
	if len(targets) == 0 {
		h.mailbox[msg.Topic] = append(h.mailbox[msg.Topic], msg)
	}
	h.lk.Unlock()

	for _, peer := range targets {
		peer.deliver(msg)
	}
}

func (h *RelayHub) drain(topic string) []pairing.Message {
	h.lk.Lock()
	defer h.lk.Unlock()
	msgs := h.mailbox[topic]
	delete(h.mailbox, topic)
	return msgs
}

type MemRelay struct {
	hub *RelayHub

	topicLk sync.Mutex
	topics  map[string]struct{}

	messages chan pairing.Message
	offline  atomic.Bool
	closed   atomic.Bool
}

var _ pairing.Relay = (*MemRelay)(nil)

// SetOffline makes Publish fail as if the socket were down.
func (r *MemRelay) SetOffline(offline bool) {
	r.offline.Store(offline)
}

func (r *MemRelay) subscribed(topic string) bool {
	r.topicLk.Lock()
	defer r.topicLk.Unlock()
	_, ok := r.topics[topic]
	return ok
}

func (r *MemRelay) deliver(msg pairing.Message) {
	if r.closed.Load() {
		return
	}
	r.messages <- msg
}

func (r *MemRelay) Subscribe(_ context.Context, topic string) error {
	r.topicLk.Lock()
	r.topics[topic] = struct{}{}
	r.topicLk.Unlock()
	for _, msg := range r.hub.drain(topic) {
		r.deliver(msg)
	}
	return nil
}

func (r *MemRelay) Unsubscribe(_ context.Context, topic string) error {
	r.topicLk.Lock()
	delete(r.topics, topic)
	r.topicLk.Unlock()
	return nil
}

func (r *MemRelay) Publish(_ context.Context, topic, payload string) error {
	if r.offline.Load() {
		return errors.Wrap(types.ErrTransportUnavailable, "relay offline")
	}
	r.hub.publish(r, pairing.Message{Topic: topic, Payload: payload})
	return nil
}

func (r *MemRelay) Messages() <-chan pairing.Message {
	return r.messages
}

func (r *MemRelay) Connected() bool {
	return !r.offline.Load()
}

func (r *MemRelay) Close() error {
	r.closed.Store(true)
	return nil
}
