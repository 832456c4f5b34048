// Package pairing implements the topic based session transport: a pairing URI is shown to
// the wallet, the wallet settles a session over the relay and requests travel as encrypted
// JSON-RPC envelopes on the session topic.
package pairing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("pairing")

const (
	// EnvelopeQueryKey marks an inbound URL that carries a relay envelope.
	EnvelopeQueryKey = "wc_ev"
	TopicQueryKey    = "topic"

	WalletID = "walletconnect"

	defaultSessionTTL = 7 * 24 * time.Hour
	pairingTTL        = 5 * time.Minute
)

type Config struct {
	Metadata   types.AppMetadata
	Namespaces map[string]types.Namespace
	Request    *types.RequestConfig
	SessionTTL time.Duration
}

// proposal is a connect waiting for the wallet to settle on SessionTopic.
type proposal struct {
	handshake    *provider.Handshake
	pairingTopic string
	symKey       string
	timer        *time.Timer
}

type Adapter struct {
	ctx    context.Context
	cfg    Config
	relay  Relay
	crypto ethutil.CryptoProvider

	sessions *sessionMgr
	pending  *provider.PendingTable
	emitter  *provider.Emitter

	proposalLk sync.Mutex
	proposals  map[string]*proposal

	topicLk       sync.Mutex
	requestTopics map[string]string
}

var _ provider.SessionProvider = (*Adapter)(nil)

// New restores persisted sessions, resubscribes their topics and starts reading the relay.
func New(ctx context.Context, cfg Config, relay Relay, store *storage.SessionStore, crypto ethutil.CryptoProvider) (*Adapter, error) {
	if cfg.Request == nil {
		cfg.Request = types.DefaultRequestConfig()
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if crypto == nil {
		crypto = ethutil.DefaultCryptoProvider{}
	}
	a := &Adapter{
		ctx:           ctx,
		cfg:           cfg,
		relay:         relay,
		crypto:        crypto,
		sessions:      newSessionMgr(store),
		pending:       provider.NewPendingTable(ctx, types.ProviderPairingSession, cfg.Request, nil),
		emitter:       provider.NewEmitter(types.ProviderPairingSession, cfg.Request.RequestQueueSize),
		proposals:     make(map[string]*proposal),
		requestTopics: make(map[string]string),
	}
	if err := a.sessions.load(ctx, time.Now()); err != nil {
		log.Warnf("restore sessions: %v", err)
	}
	for _, topic := range a.sessions.topics() {
		if err := relay.Subscribe(ctx, topic); err != nil {
			log.Warnf("resubscribe %s: %v", topic, err)
		}
	}
	go a.readLoop(ctx)
	return a, nil
}

func (a *Adapter) Kind() types.ProviderKind {
	return types.ProviderPairingSession
}

func (a *Adapter) Wallet() types.Wallet {
	return types.Wallet{
		ID:          WalletID,
		Name:        "WalletConnect",
		Homepage:    "https://walletconnect.com",
		IsInstalled: true,
		Provider:    types.ProviderPairingSession,
	}
}

// IsInstalled is always true: any wallet able to scan the URI can pair.
func (a *Adapter) IsInstalled() bool {
	return true
}

func (a *Adapter) Events() <-chan types.Event {
	return a.emitter.Events()
}

// Restore is a no-op; sessions are restored from storage by New.
func (a *Adapter) Restore(context.Context, *types.Account) error {
	return nil
}

func (a *Adapter) Sessions() []*types.Session {
	return a.sessions.listSessions()
}

func (a *Adapter) Pairings() []*types.Pairing {
	return a.sessions.listPairings()
}

// PendingRequests is the number of requests waiting for a wallet reply.
func (a *Adapter) PendingRequests() int {
	return a.pending.Len()
}

func (a *Adapter) Connect(ctx context.Context, walletID string) (*provider.Handshake, error) {
	topic, err := NewTopic()
	if err != nil {
		return nil, err
	}
	symKey, err := NewSymKey()
	if err != nil {
		return nil, err
	}
	uri := URI{Topic: topic, SymKey: symKey, RelayProtocol: relayProtocol}

	a.sessions.addPairing(ctx, &storage.PairingRecord{
		Pairing: &types.Pairing{Topic: topic, Expiry: time.Now().Add(pairingTTL)},
		SymKey:  symKey,
	})
	if err := a.relay.Subscribe(ctx, topic); err != nil {
		a.sessions.removePairing(ctx, topic)
		return nil, err
	}

	req, err := newRequest(MethodSessionPropose, &proposeParams{
		Proposer:           a.cfg.Metadata,
		RequiredNamespaces: a.cfg.Namespaces,
		Relays:             []relayProtocolOption{{Protocol: relayProtocol}},
	})
	if err != nil {
		return nil, err
	}
	id := correlationID(req.ID)
	resultCh, err := a.pending.Register(ctx, id, MethodSessionPropose, a.cfg.Request.ConnectTimeout, nil)
	if err != nil {
		return nil, err
	}
	if err := a.publish(ctx, topic, symKey, req); err != nil {
		a.pending.Fail(ctx, id, err)
		a.sessions.removePairing(ctx, topic)
		return nil, err
	}

	hs := provider.NewHandshake(uri.String())
	log.Infow("session proposed", "pairing", topic, "wallet", walletID)
	go a.awaitProposal(hs, topic, id, resultCh)
	return hs, nil
}

func (a *Adapter) awaitProposal(hs *provider.Handshake, pairingTopic, id string, resultCh <-chan *types.Response) {
	resp, err := a.pending.Await(a.ctx, id, resultCh)
	if err != nil {
		a.dropPairing(a.ctx, pairingTopic)
		hs.Fail(err)
		return
	}
	var result proposeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil || result.SessionTopic == "" {
		a.dropPairing(a.ctx, pairingTopic)
		hs.Fail(errors.Wrap(types.ErrMalformedResponse, "decode proposal result"))
		return
	}
	if _, err := decodeKey(result.SymKey); err != nil {
		a.dropPairing(a.ctx, pairingTopic)
		hs.Fail(errors.Wrap(types.ErrMalformedResponse, err.Error()))
		return
	}

	p := &proposal{handshake: hs, pairingTopic: pairingTopic, symKey: result.SymKey}
	p.timer = time.AfterFunc(a.cfg.Request.ConnectTimeout, func() {
		if a.takeProposal(result.SessionTopic) != nil {
			_ = a.relay.Unsubscribe(a.ctx, result.SessionTopic)
			hs.Fail(errors.Wrap(types.ErrTimeout, "session settlement"))
		}
	})
	a.proposalLk.Lock()
	a.proposals[result.SessionTopic] = p
	a.proposalLk.Unlock()

	if err := a.relay.Subscribe(a.ctx, result.SessionTopic); err != nil {
		if a.takeProposal(result.SessionTopic) != nil {
			hs.Fail(err)
		}
	}
}

func (a *Adapter) takeProposal(topic string) *proposal {
	a.proposalLk.Lock()
	defer a.proposalLk.Unlock()
	p, ok := a.proposals[topic]
	if !ok {
		return nil
	}
	delete(a.proposals, topic)
	p.timer.Stop()
	return p
}

func (a *Adapter) proposalKey(topic string) (string, bool) {
	a.proposalLk.Lock()
	defer a.proposalLk.Unlock()
	p, ok := a.proposals[topic]
	if !ok {
		return "", false
	}
	return p.symKey, true
}

func (a *Adapter) dropPairing(ctx context.Context, topic string) {
	a.sessions.removePairing(ctx, topic)
	if err := a.relay.Unsubscribe(ctx, topic); err != nil {
		log.Debugf("unsubscribe %s: %v", topic, err)
	}
}

func (a *Adapter) Request(ctx context.Context, target provider.Target, req *types.Request) (*types.Response, error) {
	if target.Session == nil {
		return nil, types.ErrNoActiveSession
	}
	topic := target.Session.Topic
	sess, ok := a.sessions.getSession(topic)
	if !ok {
		return nil, errors.Wrapf(types.ErrNoActiveSession, "session %s", topic)
	}
	account := target.Account
	if account == nil {
		account = sess.FirstAccount()
	}
	if account == nil {
		return nil, types.ErrNoActiveSession
	}
	if !methodAllowed(sess, account.Chain.Namespace, req.Method) {
		return nil, provider.Unsupported(a.Kind(), req.Method)
	}

	params, err := provider.PairingParams(req)
	if err != nil {
		return nil, err
	}
	rpc, err := newRequest(MethodSessionRequest, &sessionRequestParams{
		Request: sessionRequest{Method: req.Method, Params: params},
		ChainID: account.Chain.String(),
	})
	if err != nil {
		return nil, err
	}
	id := correlationID(rpc.ID)
	resultCh, err := a.pending.Register(ctx, id, req.Method, a.cfg.Request.RequestTimeout, nil)
	if err != nil {
		return nil, err
	}
	a.trackTopic(id, topic)
	defer a.untrackTopic(id)

	symKey, _ := a.sessions.keyFor(topic)
	if err := a.publish(ctx, topic, symKey, rpc); err != nil {
		a.pending.Fail(ctx, id, err)
		return nil, err
	}
	log.Debugw("session request sent", "topic", topic, "id", id, "method", req.Method)

	resp, err := a.pending.Await(ctx, id, resultCh)
	if resp != nil {
		resp.Topic = topic
		resp.ChainID = account.Chain.String()
	}
	if err != nil {
		return resp, err
	}
	if req.Method == types.MethodPersonalSign {
		a.checkSignature(req, resp)
	}
	return resp, nil
}

func (a *Adapter) checkSignature(req *types.Request, resp *types.Response) {
	address, message, err := provider.SigningArgs(req)
	if err != nil {
		return
	}
	sig, err := resp.StringResult()
	if err != nil {
		log.Warnf("personal_sign result is not a string: %v", err)
		return
	}
	if !ethutil.VerifyWith(a.crypto, address, message, sig) {
		log.Warnf("personal_sign signature does not recover to %s", address)
	}
}

func methodAllowed(sess *types.Session, namespace, method string) bool {
	ns, ok := sess.Namespaces[namespace]
	if !ok {
		return false
	}
	if len(ns.Methods) == 0 {
		return true
	}
	for _, m := range ns.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func (a *Adapter) trackTopic(id, topic string) {
	a.topicLk.Lock()
	a.requestTopics[id] = topic
	a.topicLk.Unlock()
}

func (a *Adapter) untrackTopic(id string) {
	a.topicLk.Lock()
	delete(a.requestTopics, id)
	a.topicLk.Unlock()
}

// failTopic fails every request waiting on topic.
func (a *Adapter) failTopic(ctx context.Context, topic string, err error) {
	a.topicLk.Lock()
	var ids []string
	for id, t := range a.requestTopics {
		if t == topic {
			ids = append(ids, id)
		}
	}
	a.topicLk.Unlock()
	for _, id := range ids {
		a.pending.Fail(ctx, id, err)
	}
}

// Disconnect deletes the session locally and tells the wallet. The local delete happens
// even when the wallet cannot be reached.
func (a *Adapter) Disconnect(ctx context.Context, target provider.Target) error {
	if target.Session == nil {
		return nil
	}
	return a.deleteSession(ctx, target.Session.Topic)
}

func (a *Adapter) deleteSession(ctx context.Context, topic string) error {
	var publishErr error
	if symKey, ok := a.sessions.keyFor(topic); ok {
		req, err := newRequest(MethodSessionDelete, &deleteParams{Code: types.CodeSessionDeleted, Message: "User disconnected."})
		if err == nil {
			publishErr = a.publish(ctx, topic, symKey, req)
		}
	}
	a.sessions.removeSession(ctx, topic)
	a.failTopic(ctx, topic, types.ErrNoActiveSession)
	if err := a.relay.Unsubscribe(ctx, topic); err != nil {
		log.Debugf("unsubscribe %s: %v", topic, err)
	}
	return publishErr
}

// Ping round-trips a ping on a session or pairing topic.
func (a *Adapter) Ping(ctx context.Context, topic string) error {
	method := MethodSessionPing
	if _, ok := a.sessions.getSession(topic); !ok {
		method = MethodPairingPing
	}
	symKey, ok := a.sessions.keyFor(topic)
	if !ok {
		return errors.Wrapf(types.ErrNoActiveSession, "topic %s", topic)
	}
	req, err := newRequest(method, struct{}{})
	if err != nil {
		return err
	}
	id := correlationID(req.ID)
	resultCh, err := a.pending.Register(ctx, id, method, a.cfg.Request.RequestTimeout, nil)
	if err != nil {
		return err
	}
	a.trackTopic(id, topic)
	defer a.untrackTopic(id)
	if err := a.publish(ctx, topic, symKey, req); err != nil {
		a.pending.Fail(ctx, id, err)
		return err
	}
	_, err = a.pending.Await(ctx, id, resultCh)
	return err
}

// Cleanup deletes every session and pairing. It keeps going on error and returns the first.
func (a *Adapter) Cleanup(ctx context.Context) error {
	var firstErr error
	for _, sess := range a.sessions.listSessions() {
		if err := a.deleteSession(ctx, sess.Topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, pairing := range a.sessions.listPairings() {
		if symKey, ok := a.sessions.keyFor(pairing.Topic); ok {
			req, err := newRequest(MethodPairingDelete, &deleteParams{Code: types.CodeSessionDeleted, Message: "User disconnected."})
			if err == nil {
				if err := a.publish(ctx, pairing.Topic, symKey, req); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
		a.dropPairing(ctx, pairing.Topic)
	}
	return firstErr
}

func (a *Adapter) Matches(u *url.URL) bool {
	return u.Query().Has(EnvelopeQueryKey)
}

// HandleURL accepts a relay envelope delivered through an app link instead of the socket.
func (a *Adapter) HandleURL(ctx context.Context, u *url.URL) (bool, error) {
	if !a.Matches(u) {
		return false, nil
	}
	q := u.Query()
	topic := q.Get(TopicQueryKey)
	payload, err := base64.RawURLEncoding.DecodeString(q.Get(EnvelopeQueryKey))
	if err != nil || topic == "" {
		return true, errors.Wrap(types.ErrMalformedResponse, "decode inbound envelope")
	}
	return true, a.handleMessage(ctx, Message{Topic: topic, Payload: string(payload)})
}

// EnvelopeURL builds the app link form of a relay message, the inverse of HandleURL.
func EnvelopeURL(base string, msg Message) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(EnvelopeQueryKey, base64.RawURLEncoding.EncodeToString([]byte(msg.Payload)))
	q.Set(TopicQueryKey, msg.Topic)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *Adapter) publish(ctx context.Context, topic, symKey string, v interface{}) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := Seal(symKey, plain)
	if err != nil {
		return err
	}
	return a.relay.Publish(ctx, topic, sealed)
}

func (a *Adapter) respond(ctx context.Context, topic, symKey string, resp *rpcResponse) {
	if err := a.publish(ctx, topic, symKey, resp); err != nil {
		log.Warnf("respond on %s: %v", topic, err)
	}
}

func (a *Adapter) readLoop(ctx context.Context) {
	for {
		select {
		case msg, ok := <-a.relay.Messages():
			if !ok {
				log.Warn("relay message channel closed")
				return
			}
			if err := a.handleMessage(ctx, msg); err != nil {
				log.Warnf("handle relay message on %s: %v", msg.Topic, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg Message) error {
	symKey, ok := a.proposalKey(msg.Topic)
	if !ok {
		symKey, ok = a.sessions.keyFor(msg.Topic)
	}
	if !ok {
		log.Debugf("drop message for unknown topic %s", msg.Topic)
		return nil
	}
	plain, err := Open(symKey, msg.Payload)
	if err != nil {
		return err
	}

	switch classify(plain) {
	case payloadResponse:
		var resp rpcResponse
		if err := json.Unmarshal(plain, &resp); err != nil {
			return errors.Wrap(types.ErrMalformedResponse, err.Error())
		}
		a.pending.Resolve(ctx, &types.Response{
			ID:     correlationID(resp.ID),
			Topic:  msg.Topic,
			Result: resp.Result,
			Error:  resp.Error,
		})
		return nil
	case payloadRequest:
		var req rpcRequest
		if err := json.Unmarshal(plain, &req); err != nil {
			return errors.Wrap(types.ErrMalformedResponse, err.Error())
		}
		a.handleRequest(ctx, msg.Topic, symKey, &req)
		return nil
	default:
		return errors.Wrap(types.ErrMalformedResponse, "unclassifiable payload")
	}
}

func (a *Adapter) handleRequest(ctx context.Context, topic, symKey string, req *rpcRequest) {
	log.Debugw("wallet request", "topic", topic, "method", req.Method, "id", req.ID)
	ack := func() {
		resp, _ := newResult(req.ID, true)
		a.respond(ctx, topic, symKey, resp)
	}

	switch req.Method {
	case MethodSessionSettle:
		a.handleSettle(ctx, topic, symKey, req)
	case MethodSessionUpdate:
		var params updateParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			a.respond(ctx, topic, symKey, newError(req.ID, types.CodeInvalidParams, "invalid update params"))
			return
		}
		sess, err := a.sessions.updateSession(ctx, topic, params.Namespaces)
		if err != nil {
			a.respond(ctx, topic, symKey, newError(req.ID, types.CodeDisconnected, err.Error()))
			return
		}
		ack()
		a.emitter.Emit(types.Event{Kind: types.EventSessionUpdated, Topic: topic, Session: sess})
	case MethodSessionEvent:
		var params sessionEventParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			a.respond(ctx, topic, symKey, newError(req.ID, types.CodeInvalidParams, "invalid event params"))
			return
		}
		ack()
		a.emitter.Emit(types.Event{
			Kind:    types.EventSessionEvent,
			Topic:   topic,
			Name:    params.Event.Name,
			Data:    params.Event.Data,
			ChainID: params.ChainID,
		})
	case MethodSessionDelete:
		var params deleteParams
		_ = json.Unmarshal(req.Params, &params)
		ack()
		if _, ok := a.sessions.removeSession(ctx, topic); ok {
			a.failTopic(ctx, topic, types.ErrNoActiveSession)
			_ = a.relay.Unsubscribe(ctx, topic)
			a.emitter.Emit(types.Event{
				Kind:  types.EventSessionDeleted,
				Topic: topic,
				Error: &types.RPCError{Code: params.Code, Message: params.Message},
			})
		}
	case MethodPairingDelete:
		ack()
		a.dropPairing(ctx, topic)
	case MethodSessionPing, MethodPairingPing:
		ack()
	default:
		a.respond(ctx, topic, symKey, newError(req.ID, types.CodeMethodNotFound, "unsupported method "+req.Method))
	}
}

func (a *Adapter) handleSettle(ctx context.Context, topic, symKey string, req *rpcRequest) {
	p := a.takeProposal(topic)
	if p == nil {
		// settlement for a proposal that already timed out
		a.respond(ctx, topic, symKey, newError(req.ID, types.CodeRequestExpired, "proposal expired"))
		_ = a.relay.Unsubscribe(ctx, topic)
		return
	}
	var params settleParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		a.respond(ctx, topic, symKey, newError(req.ID, types.CodeInvalidParams, "invalid settle params"))
		p.handshake.Fail(errors.Wrap(types.ErrMalformedResponse, "decode settle params"))
		return
	}

	expiry := time.Now().Add(a.cfg.SessionTTL)
	if params.Expiry > 0 {
		expiry = time.Unix(params.Expiry, 0)
	}
	sess := &types.Session{
		Topic:        topic,
		PairingTopic: p.pairingTopic,
		Peer:         params.Peer,
		Namespaces:   params.Namespaces,
		Expiry:       expiry,
	}
	account := sess.FirstAccount()
	if account == nil {
		a.respond(ctx, topic, symKey, newError(req.ID, types.CodeInvalidParams, "settlement without accounts"))
		p.handshake.Fail(errors.Wrap(types.ErrMalformedResponse, "settlement without accounts"))
		return
	}

	a.sessions.addSession(ctx, &storage.SessionRecord{Session: sess, SymKey: symKey})
	a.sessions.activatePairing(ctx, p.pairingTopic, params.Peer)
	resp, _ := newResult(req.ID, true)
	a.respond(ctx, topic, symKey, resp)

	if !p.handshake.Succeed(account, sess) {
		return
	}
	a.emitter.Emit(types.Event{Kind: types.EventSessionSettled, Topic: topic, Session: sess, Account: account})
}
