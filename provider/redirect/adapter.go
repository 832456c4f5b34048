// Package redirect implements the handshake transport that talks to a wallet app purely
// through URLs: every message is opened as a wallet URL and every answer comes back as a
// callback URL correlated by message uuid and session id.
package redirect

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("redirect")

// DefaultCallback is used when the app metadata declares no redirect.
const DefaultCallback = "w3mdapp://"

type Config struct {
	Metadata types.AppMetadata
	// WalletURL receives outbound messages, e.g. https://wallet.coinbase.com/wsegue.
	WalletURL string
	// InstallScheme is probed to answer IsInstalled.
	InstallScheme string
	Request       *types.RequestConfig
}

// Callback is the URL the wallet answers on: universal redirect, else native, else
// DefaultCallback.
func (c Config) Callback() string {
	if c.Metadata.Redirect.Universal != "" {
		return c.Metadata.Redirect.Universal
	}
	if c.Metadata.Redirect.Native != "" {
		return c.Metadata.Redirect.Native
	}
	return DefaultCallback
}

type Adapter struct {
	ctx    context.Context
	cfg    Config
	opener platform.Opener
	probe  platform.InstallProbe

	callback *url.URL
	pending  *provider.PendingTable
	durable  *storage.PendingStore
	emitter  *provider.Emitter

	lk        sync.Mutex
	sessionID string
}

var _ provider.Adapter = (*Adapter)(nil)

func New(ctx context.Context, cfg Config, opener platform.Opener, probe platform.InstallProbe, durable *storage.PendingStore) (*Adapter, error) {
	if cfg.Request == nil {
		cfg.Request = types.DefaultRequestConfig()
	}
	callback, err := url.Parse(cfg.Callback())
	if err != nil {
		return nil, errors.Wrap(err, "parse callback")
	}
	if _, err := url.Parse(cfg.WalletURL); err != nil || cfg.WalletURL == "" {
		return nil, errors.Errorf("invalid wallet url %q", cfg.WalletURL)
	}
	return &Adapter{
		ctx:      ctx,
		cfg:      cfg,
		opener:   opener,
		probe:    probe,
		callback: callback,
		pending:  provider.NewPendingTable(ctx, types.ProviderRedirectHandshake, cfg.Request, durable),
		durable:  durable,
		emitter:  provider.NewEmitter(types.ProviderRedirectHandshake, cfg.Request.RequestQueueSize),
	}, nil
}

func (a *Adapter) Kind() types.ProviderKind {
	return types.ProviderRedirectHandshake
}

func (a *Adapter) Wallet() types.Wallet {
	return types.Wallet{
		ID:          types.CoinbaseWalletID,
		Name:        "Coinbase",
		Homepage:    "https://www.coinbase.com/wallet/",
		ImageID:     "a5ebc364-8f91-4200-fcc6-be81310a0000",
		Order:       4,
		AppStore:    "https://apps.apple.com/us/app/coinbase-wallet-nfts-crypto/id1278383455",
		IsInstalled: a.IsInstalled(),
		Provider:    types.ProviderRedirectHandshake,
	}
}

func (a *Adapter) IsInstalled() bool {
	if a.probe == nil || a.cfg.InstallScheme == "" {
		return false
	}
	return a.probe.CanOpen(a.cfg.InstallScheme)
}

func (a *Adapter) Events() <-chan types.Event {
	return a.emitter.Events()
}

func (a *Adapter) PendingRequests() int {
	return a.pending.Len()
}

// Restore keeps nothing but the account hint; a session id is minted on the next send.
func (a *Adapter) Restore(_ context.Context, account *types.Account) error {
	log.Debugf("restore hint %v", account)
	return nil
}

func (a *Adapter) currentSession(create bool) string {
	a.lk.Lock()
	defer a.lk.Unlock()
	if a.sessionID == "" && create {
		a.sessionID = provider.NewCorrelationID()
	}
	return a.sessionID
}

func (a *Adapter) resetSession() string {
	a.lk.Lock()
	defer a.lk.Unlock()
	a.sessionID = provider.NewCorrelationID()
	return a.sessionID
}

// Connect opens the wallet with a handshake asking for accounts.
func (a *Adapter) Connect(ctx context.Context, walletID string) (*provider.Handshake, error) {
	if !a.IsInstalled() {
		return nil, errors.Wrapf(types.ErrTransportUnavailable, "wallet app %s is not installed", a.cfg.InstallScheme)
	}
	sessionID := a.resetSession()
	id := provider.NewCorrelationID()
	msg := newMessage(id, sessionID, a.cfg.Callback(), Content{Handshake: &HandshakeContent{
		AppID:          a.cfg.Metadata.URL,
		Callback:       a.cfg.Callback(),
		InitialActions: []Action{{Method: types.MethodRequestAccounts, ParamsJSON: "{}"}},
	}})

	resultCh, u, err := a.send(ctx, msg, types.MethodRequestAccounts, a.cfg.Request.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	hs := provider.NewHandshake(u.String())
	log.Infow("handshake opened", "id", id, "wallet", walletID)
	go func() {
		resp, err := a.pending.Await(a.ctx, id, resultCh)
		if err != nil {
			hs.Fail(err)
			return
		}
		account, err := decodeAccount(resp)
		if err != nil {
			hs.Fail(err)
			return
		}
		hs.Succeed(account, nil)
	}()
	return hs, nil
}

// send registers msg, opens it and feeds a silent in-process reply straight back.
func (a *Adapter) send(ctx context.Context, msg *Message, method string, timeout time.Duration) (<-chan *types.Response, *url.URL, error) {
	u, err := EncodeURL(a.cfg.WalletURL, msg)
	if err != nil {
		return nil, nil, err
	}
	resultCh, err := a.pending.Register(ctx, msg.UUID, method, timeout, msg)
	if err != nil {
		return nil, nil, err
	}
	reply, err := a.opener.Open(ctx, u)
	if err != nil {
		a.pending.Fail(ctx, msg.UUID, errors.Wrap(types.ErrTransportUnavailable, err.Error()))
		return nil, nil, errors.Wrap(types.ErrTransportUnavailable, err.Error())
	}
	if reply != nil {
		if _, err := a.HandleURL(ctx, reply); err != nil {
			log.Warnf("in-process reply for %s: %v", msg.UUID, err)
		}
	}
	return resultCh, u, nil
}

func decodeAccount(resp *types.Response) (*types.Account, error) {
	var acc EthAccount
	if err := json.Unmarshal(resp.Result, &acc); err != nil {
		return nil, errors.Wrap(types.ErrMalformedResponse, "decode account")
	}
	return acc.Account()
}

func (a *Adapter) Request(ctx context.Context, target provider.Target, req *types.Request) (*types.Response, error) {
	if target.Account == nil {
		return nil, types.ErrNoActiveSession
	}
	var address, message string
	if req.IsSigning() {
		var err error
		if address, message, err = provider.SigningArgs(req); err != nil {
			return nil, err
		}
	}
	action, err := toAction(req, address, message)
	if err != nil {
		return nil, err
	}
	account, err := ethAccount(target.Account)
	if err != nil {
		return nil, err
	}

	msg := newMessage(provider.NewCorrelationID(), a.currentSession(true), a.cfg.Callback(), Content{Request: &RequestContent{
		Actions: []Action{action},
		Account: account,
	}})
	resultCh, _, err := a.send(ctx, msg, req.Method, a.cfg.Request.RequestTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := a.pending.Await(ctx, msg.UUID, resultCh)
	if resp != nil {
		resp.ChainID = target.Account.Chain.String()
	}
	return resp, err
}

// Disconnect only forgets the session; the wallet app keeps no state worth tearing down.
func (a *Adapter) Disconnect(ctx context.Context, _ provider.Target) error {
	a.lk.Lock()
	a.sessionID = ""
	a.lk.Unlock()
	a.pending.FailAll(ctx, types.ErrNoActiveSession)
	return nil
}

// Matches accepts URLs under the callback that carry a payload.
func (a *Adapter) Matches(u *url.URL) bool {
	if !u.Query().Has(PayloadQueryKey) {
		return false
	}
	if !strings.EqualFold(u.Scheme, a.callback.Scheme) || !strings.EqualFold(u.Host, a.callback.Host) {
		return false
	}
	return strings.HasPrefix(u.Path, a.callback.Path)
}

func (a *Adapter) HandleURL(ctx context.Context, u *url.URL) (bool, error) {
	if !a.Matches(u) {
		return false, nil
	}
	msg, err := DecodeURL(u)
	if err != nil {
		return true, err
	}
	if msg.Content.Response == nil {
		return true, errors.Wrap(types.ErrMalformedResponse, "message carries no response")
	}
	requestID := msg.Content.Response.RequestID
	if !a.sessionMatches(ctx, requestID, msg.SessionID) {
		return true, errors.Wrapf(types.ErrMalformedResponse, "session %s does not own request %s", msg.SessionID, requestID)
	}

	resp := msg.Content.Response.toResponse()
	delivered, orphan := a.pending.Resolve(ctx, resp)
	if delivered || orphan == nil {
		return true, nil
	}

	log.Infow("reply after restart", "id", orphan.ID, "method", orphan.Method)
	if orphan.Method == types.MethodRequestAccounts {
		if resp.Error != nil {
			a.emitter.Emit(types.Event{Kind: types.EventError, Error: resp.Error})
			return true, nil
		}
		account, err := decodeAccount(resp)
		if err != nil {
			return true, err
		}
		a.emitter.Emit(types.Event{Kind: types.EventConnected, Account: account})
		return true, nil
	}
	a.emitter.Emit(types.Event{Kind: types.EventResponse, Response: resp})
	return true, nil
}

// sessionMatches checks the session id against the one recorded with the request, falling
// back to the live session when no durable record exists.
func (a *Adapter) sessionMatches(ctx context.Context, requestID, sessionID string) bool {
	if a.durable != nil {
		rec, err := a.durable.Get(ctx, requestID)
		if err != nil {
			log.Warnf("load correlation id %s: %v", requestID, err)
		}
		if rec != nil {
			var sent Message
			if err := json.Unmarshal(rec.Payload, &sent); err == nil {
				return sent.SessionID == sessionID
			}
		}
	}
	current := a.currentSession(false)
	return current != "" && current == sessionID
}
