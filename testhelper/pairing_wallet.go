package testhelper

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/provider/pairing"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// RecordedRequest is a session request as the wallet received it.
type RecordedRequest struct {
	Topic   string
	Method  string
	Params  json.RawMessage
	ChainID string
}

// PairingWallet is a wallet peer on a RelayHub. It approves proposals with one eip155
// account, signs personal_sign with a real key and answers every other method with a
// canned result.
type PairingWallet struct {
	relay   *MemRelay
	key     *ecdsa.PrivateKey
	Address string
	Chains  []string

	Reject      atomic.Bool
	IgnoreCalls atomic.Bool
	Silent      atomic.Bool
	nextID      atomic.Int64

	lk       sync.Mutex
	keys     map[string]string
	session  string
	requests []RecordedRequest
	deleted  []string
}

func NewPairingWallet(hub *RelayHub) (*PairingWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	w := &PairingWallet{
		relay:   hub.NewRelay(),
		key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Chains:  []string{"eip155:1", "eip155:137"},
		keys:    make(map[string]string),
	}
	w.nextID.Store(time.Now().UnixNano())
	return w, nil
}

// Run processes relay messages until ctx is done.
func (w *PairingWallet) Run(ctx context.Context) {
	for {
		select {
		case msg := <-w.relay.Messages():
			w.handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// Pair scans uri.
func (w *PairingWallet) Pair(ctx context.Context, uri string) error {
	parsed, err := pairing.ParseURI(uri)
	if err != nil {
		return err
	}
	w.lk.Lock()
	w.keys[parsed.Topic] = parsed.SymKey
	w.lk.Unlock()
	return w.relay.Subscribe(ctx, parsed.Topic)
}

func (w *PairingWallet) SessionTopic() string {
	w.lk.Lock()
	defer w.lk.Unlock()
	return w.session
}

func (w *PairingWallet) Requests() []RecordedRequest {
	w.lk.Lock()
	defer w.lk.Unlock()
	return append([]RecordedRequest{}, w.requests...)
}

// Deleted lists topics the dapp deleted.
func (w *PairingWallet) Deleted() []string {
	w.lk.Lock()
	defer w.lk.Unlock()
	return append([]string{}, w.deleted...)
}

func (w *PairingWallet) Relay() *MemRelay {
	return w.relay
}

func (w *PairingWallet) accounts() []string {
	out := make([]string, 0, len(w.Chains))
	for _, chain := range w.Chains {
		out = append(out, chain+":"+w.Address)
	}
	return out
}

func (w *PairingWallet) send(ctx context.Context, topic string, v interface{}) error {
	w.lk.Lock()
	key, ok := w.keys[topic]
	w.lk.Unlock()
	if !ok {
		return fmt.Errorf("no key for topic %s", topic)
	}
	plain, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := pairing.Seal(key, plain)
	if err != nil {
		return err
	}
	return w.relay.Publish(ctx, topic, sealed)
}

func (w *PairingWallet) request(ctx context.Context, topic, method string, params interface{}) error {
	return w.send(ctx, topic, map[string]interface{}{
		"id":      w.nextID.Inc(),
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (w *PairingWallet) result(ctx context.Context, topic string, id int64, result interface{}) {
	_ = w.send(ctx, topic, map[string]interface{}{"id": id, "jsonrpc": "2.0", "result": result})
}

func (w *PairingWallet) fail(ctx context.Context, topic string, id int64, code int, message string) {
	_ = w.send(ctx, topic, map[string]interface{}{
		"id":      id,
		"jsonrpc": "2.0",
		"error":   map[string]interface{}{"code": code, "message": message},
	})
}

// EmitEvent sends a session event such as accountsChanged.
func (w *PairingWallet) EmitEvent(ctx context.Context, name string, data interface{}, chainID string) error {
	return w.request(ctx, w.SessionTopic(), pairing.MethodSessionEvent, map[string]interface{}{
		"event":   map[string]interface{}{"name": name, "data": data},
		"chainId": chainID,
	})
}

// DeleteSession ends the session from the wallet side.
func (w *PairingWallet) DeleteSession(ctx context.Context) error {
	return w.request(ctx, w.SessionTopic(), pairing.MethodSessionDelete, map[string]interface{}{
		"code": types.CodeSessionDeleted, "message": "wallet disconnected",
	})
}

// UpdateChains replaces the session namespaces with chains.
func (w *PairingWallet) UpdateChains(ctx context.Context, chains []string) error {
	w.Chains = chains
	return w.request(ctx, w.SessionTopic(), pairing.MethodSessionUpdate, map[string]interface{}{
		"namespaces": w.namespaces(),
	})
}

func (w *PairingWallet) namespaces() map[string]types.Namespace {
	return map[string]types.Namespace{
		types.NamespaceEIP155: {
			Chains:   w.Chains,
			Methods:  []string{types.MethodPersonalSign, types.MethodSignTypedDataV4, types.MethodSendTransaction},
			Events:   []string{"accountsChanged", "chainChanged"},
			Accounts: w.accounts(),
		},
	}
}

func (w *PairingWallet) handle(ctx context.Context, msg pairing.Message) {
	w.lk.Lock()
	key, ok := w.keys[msg.Topic]
	w.lk.Unlock()
	if !ok {
		return
	}
	plain, err := pairing.Open(key, msg.Payload)
	if err != nil {
		return
	}
	if !gjson.GetBytes(plain, "method").Exists() {
		// replies to our own requests are not awaited
		return
	}
	id := gjson.GetBytes(plain, "id").Int()
	method := gjson.GetBytes(plain, "method").String()

	switch method {
	case pairing.MethodSessionPropose:
		if w.Reject.Load() {
			w.fail(ctx, msg.Topic, id, types.CodeSessionRejected, "User rejected.")
			return
		}
		topic, _ := pairing.NewTopic()
		symKey, _ := pairing.NewSymKey()
		w.lk.Lock()
		w.keys[topic] = symKey
		w.session = topic
		w.lk.Unlock()
		_ = w.relay.Subscribe(ctx, topic)
		w.result(ctx, msg.Topic, id, map[string]string{"sessionTopic": topic, "symKey": symKey})
		if w.Silent.Load() {
			return
		}
		_ = w.request(ctx, topic, pairing.MethodSessionSettle, map[string]interface{}{
			"controller": types.AppMetadata{Name: "Test Wallet", URL: "https://wallet.example", Redirect: types.Redirect{Native: "testwallet://"}},
			"namespaces": w.namespaces(),
			"expiry":     time.Now().Add(time.Hour).Unix(),
		})
	case pairing.MethodSessionRequest:
		params := gjson.GetBytes(plain, "params")
		rec := RecordedRequest{
			Topic:   msg.Topic,
			Method:  params.Get("request.method").String(),
			Params:  json.RawMessage(params.Get("request.params").Raw),
			ChainID: params.Get("chainId").String(),
		}
		w.lk.Lock()
		w.requests = append(w.requests, rec)
		w.lk.Unlock()
		if w.IgnoreCalls.Load() {
			return
		}
		if w.Reject.Load() {
			w.fail(ctx, msg.Topic, id, types.CodeUserRejected, "User rejected the request.")
			return
		}
		switch rec.Method {
		case types.MethodPersonalSign:
			message := params.Get("request.params.0").String()
			sig, err := ethutil.SignPersonal(w.key, message)
			if err != nil {
				w.fail(ctx, msg.Topic, id, types.CodeInternalError, err.Error())
				return
			}
			w.result(ctx, msg.Topic, id, sig)
		default:
			w.result(ctx, msg.Topic, id, "0x"+rec.Method)
		}
	case pairing.MethodSessionDelete:
		w.lk.Lock()
		w.deleted = append(w.deleted, msg.Topic)
		w.lk.Unlock()
		w.result(ctx, msg.Topic, id, true)
	default:
		w.result(ctx, msg.Topic, id, true)
	}
}
