package pairing

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// Message is one published payload on a topic.
type Message struct {
	Topic   string
	Payload string
}

// Relay is the topic based pub/sub the pairing transport rides on.
type Relay interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic, payload string) error
	Messages() <-chan Message
	Connected() bool
	Close() error
}

const (
	frameTypePub   = "pub"
	frameTypeSub   = "sub"
	frameTypeUnsub = "unsub"
	frameTypeAck   = "ack"
)

// frame is the websocket wire format of the relay.
type frame struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

// WSRelay talks to a relay server over a websocket and redials when the socket drops.
type WSRelay struct {
	url    string
	header http.Header

	writeLk sync.Mutex
	conn    *websocket.Conn

	topicLk sync.Mutex
	topics  map[string]struct{}

	connected *atomic.Bool
	closed    *atomic.Bool
	messages  chan Message

	redialInterval time.Duration
}

var _ Relay = (*WSRelay)(nil)

// DialWSRelay connects to url and keeps the connection alive until ctx is done or Close is called.
func DialWSRelay(ctx context.Context, url, projectID string, queueSize int) (*WSRelay, error) {
	header := http.Header{}
	if projectID != "" {
		header.Set("X-Project-Id", projectID)
	}
	r := &WSRelay{
		url:            url,
		header:         header,
		topics:         make(map[string]struct{}),
		connected:      atomic.NewBool(false),
		closed:         atomic.NewBool(false),
		messages:       make(chan Message, queueSize),
		redialInterval: 3 * time.Second,
	}
	if err := r.dial(ctx); err != nil {
		return nil, err
	}
	go r.loop(ctx)
	go func() {
		<-ctx.Done()
		_ = r.Close()
	}()
	return r, nil
}

func (r *WSRelay) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, r.header)
	if err != nil {
		return errors.Wrapf(types.ErrTransportUnavailable, "dial relay %s: %v", r.url, err)
	}
	r.writeLk.Lock()
	r.conn = conn
	r.writeLk.Unlock()
	r.connected.Store(true)

	r.topicLk.Lock()
	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	r.topicLk.Unlock()
	for _, topic := range topics {
		if err := r.write(&frame{Topic: topic, Type: frameTypeSub, Silent: true}); err != nil {
			return err
		}
	}
	log.Infof("relay connected %s, resubscribed %d topics", r.url, len(topics))
	return nil
}

func (r *WSRelay) loop(ctx context.Context) {
	defer close(r.messages)
	for {
		r.readLoop(ctx)
		r.connected.Store(false)
		if r.closed.Load() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.redialInterval):
			}
			if err := r.dial(ctx); err != nil {
				log.Warnf("redial relay: %v", err)
				continue
			}
			break
		}
	}
}

func (r *WSRelay) readLoop(ctx context.Context) {
	r.writeLk.Lock()
	conn := r.conn
	r.writeLk.Unlock()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !r.closed.Load() {
				log.Warnf("read relay: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warnf("drop undecodable relay frame: %v", err)
			continue
		}
		if f.Type != frameTypePub {
			continue
		}
		if err := r.write(&frame{Topic: f.Topic, Type: frameTypeAck, Silent: true}); err != nil {
			log.Warnf("ack relay message: %v", err)
		}
		select {
		case r.messages <- Message{Topic: f.Topic, Payload: f.Payload}:
		case <-ctx.Done():
			return
		}
	}
}

func (r *WSRelay) write(f *frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	r.writeLk.Lock()
	defer r.writeLk.Unlock()
	if r.conn == nil {
		return types.ErrTransportUnavailable
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(types.ErrTransportUnavailable, "write relay frame: %v", err)
	}
	return nil
}

func (r *WSRelay) Subscribe(_ context.Context, topic string) error {
	r.topicLk.Lock()
	r.topics[topic] = struct{}{}
	r.topicLk.Unlock()
	if !r.connected.Load() {
		// picked up on redial
		return nil
	}
	return r.write(&frame{Topic: topic, Type: frameTypeSub, Silent: true})
}

func (r *WSRelay) Unsubscribe(_ context.Context, topic string) error {
	r.topicLk.Lock()
	delete(r.topics, topic)
	r.topicLk.Unlock()
	if !r.connected.Load() {
		return nil
	}
	return r.write(&frame{Topic: topic, Type: frameTypeUnsub, Silent: true})
}

func (r *WSRelay) Publish(_ context.Context, topic, payload string) error {
	if !r.connected.Load() {
		return errors.Wrap(types.ErrTransportUnavailable, "relay disconnected")
	}
	return r.write(&frame{Topic: topic, Type: frameTypePub, Payload: payload, Silent: true})
}

func (r *WSRelay) Messages() <-chan Message {
	return r.messages
}

func (r *WSRelay) Connected() bool {
	return r.connected.Load()
}

func (r *WSRelay) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.connected.Store(false)
	r.writeLk.Lock()
	defer r.writeLk.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
