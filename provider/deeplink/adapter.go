// Package deeplink implements the app-switch transports. Every call opens the wallet app
// with a URL; the answer comes back either in-process, when the wallet returns silently,
// or as an inbound URL after the OS relaunches the host app.
package deeplink

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("deeplink")

// Query parameters of outbound and inbound URLs.
const (
	ParamID           = "id"
	ParamRedirect     = "redirect"
	ParamApp          = "app"
	ParamAddress      = "address"
	ParamAccount      = "account"
	ParamMessage      = "message"
	ParamChainID      = "chainId"
	ParamSignature    = "signature"
	ParamErrorCode    = "errorCode"
	ParamErrorMessage = "errorMessage"
)

const (
	actionConnect    = "connect"
	actionDisconnect = "disconnect"
)

type Config struct {
	Metadata types.AppMetadata
	// WalletURL is the base every action path is appended to, e.g. phantom://v1.
	WalletURL string
	// Callback is handed to the wallet as the return URL.
	Callback      string
	InstallScheme string
	Request       *types.RequestConfig
}

// outbound is stored with the correlation id.
type outbound struct {
	Action  string `json:"action"`
	Address string `json:"address,omitempty"`
}

type Adapter struct {
	ctx     context.Context
	cfg     Config
	variant Variant
	opener  platform.Opener
	probe   platform.InstallProbe

	walletURL *url.URL
	callback  *url.URL
	pending   *provider.PendingTable
	emitter   *provider.Emitter
}

var _ provider.Adapter = (*Adapter)(nil)

func New(ctx context.Context, variant Variant, cfg Config, opener platform.Opener, probe platform.InstallProbe, durable *storage.PendingStore) (*Adapter, error) {
	if cfg.Request == nil {
		cfg.Request = types.DefaultRequestConfig()
	}
	walletURL, err := url.Parse(cfg.WalletURL)
	if err != nil || cfg.WalletURL == "" {
		return nil, errors.Errorf("invalid %s wallet url %q", variant.Kind, cfg.WalletURL)
	}
	callback, err := url.Parse(cfg.Callback)
	if err != nil || cfg.Callback == "" {
		return nil, errors.Errorf("invalid %s callback %q", variant.Kind, cfg.Callback)
	}
	return &Adapter{
		ctx:       ctx,
		cfg:       cfg,
		variant:   variant,
		opener:    opener,
		probe:     probe,
		walletURL: walletURL,
		callback:  callback,
		pending:   provider.NewPendingTable(ctx, variant.Kind, cfg.Request, durable),
		emitter:   provider.NewEmitter(variant.Kind, cfg.Request.RequestQueueSize),
	}, nil
}

func (a *Adapter) Kind() types.ProviderKind {
	return a.variant.Kind
}

func (a *Adapter) Wallet() types.Wallet {
	w := a.variant.Wallet()
	w.IsInstalled = a.IsInstalled()
	return w
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

func (a *Adapter) Restore(_ context.Context, account *types.Account) error {
	log.Debugf("%s restore hint %v", a.variant.Kind, account)
	return nil
}

func (a *Adapter) actionURL(action, id string, extra url.Values) *url.URL {
	u := *a.walletURL
	u.Path = path.Join("/", u.Path, action)
	q := u.Query()
	q.Set(ParamID, id)
	q.Set(ParamRedirect, a.cfg.Callback)
	q.Set(ParamApp, a.cfg.Metadata.URL)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return &u
}

// open registers id, opens the wallet and feeds a silent reply straight back.
func (a *Adapter) open(ctx context.Context, id, method string, timeout time.Duration, u *url.URL, payload *outbound) (<-chan *types.Response, error) {
	resultCh, err := a.pending.Register(ctx, id, method, timeout, payload)
	if err != nil {
		return nil, err
	}
	reply, err := a.opener.Open(ctx, u)
	if err != nil {
		err = errors.Wrap(types.ErrTransportUnavailable, err.Error())
		a.pending.Fail(ctx, id, err)
		return nil, err
	}
	if reply != nil {
		if _, err := a.HandleURL(ctx, reply); err != nil {
			log.Warnf("%s in-process reply for %s: %v", a.variant.Kind, id, err)
		}
	}
	return resultCh, nil
}

func (a *Adapter) Connect(ctx context.Context, walletID string) (*provider.Handshake, error) {
	if !a.IsInstalled() {
		return nil, errors.Wrapf(types.ErrTransportUnavailable, "wallet app %s is not installed", a.cfg.InstallScheme)
	}
	id := provider.NewCorrelationID()
	extra := url.Values{}
	if !a.variant.Chain.IsZero() {
		extra.Set(ParamChainID, a.variant.Chain.String())
	}
	u := a.actionURL(actionConnect, id, extra)
	resultCh, err := a.open(ctx, id, types.MethodRequestAccounts, a.cfg.Request.ConnectTimeout, u, &outbound{Action: actionConnect})
	if err != nil {
		return nil, err
	}

	hs := provider.NewHandshake(u.String())
	log.Infow("connect opened", "provider", a.variant.Kind, "id", id, "wallet", walletID)
	go func() {
		resp, err := a.pending.Await(a.ctx, id, resultCh)
		if err != nil {
			hs.Fail(err)
			return
		}
		var account types.Account
		if err := json.Unmarshal(resp.Result, &account); err != nil || account.Address == "" {
			hs.Fail(errors.Wrap(types.ErrMalformedResponse, "decode account"))
			return
		}
		hs.Succeed(&account, nil)
	}()
	return hs, nil
}

func (a *Adapter) Request(ctx context.Context, target provider.Target, req *types.Request) (*types.Response, error) {
	action, ok := a.variant.actions[req.Method]
	if !ok {
		return nil, provider.Unsupported(a.variant.Kind, req.Method)
	}
	if target.Account == nil {
		return nil, types.ErrNoActiveSession
	}
	address, message, err := provider.SigningArgs(req)
	if err != nil {
		return nil, err
	}
	if address == "" {
		address = target.Account.Address
	}

	extra := url.Values{}
	extra.Set(ParamAddress, address)
	extra.Set(ParamMessage, message)
	if target.Account.Chain.Namespace == types.NamespaceEIP155 {
		if hexID, err := ethutil.HexChainID(target.Account.Chain.Reference); err == nil {
			extra.Set(ParamChainID, hexID)
		}
	}
	id := provider.NewCorrelationID()
	resultCh, err := a.open(ctx, id, req.Method, a.cfg.Request.RequestTimeout, a.actionURL(action, id, extra), &outbound{Action: action, Address: address})
	if err != nil {
		return nil, err
	}
	resp, err := a.pending.Await(ctx, id, resultCh)
	if resp != nil {
		resp.ChainID = target.Account.Chain.String()
	}
	return resp, err
}

// Disconnect tells the wallet app and fails every waiting call. Nothing is awaited.
func (a *Adapter) Disconnect(ctx context.Context, _ provider.Target) error {
	a.pending.FailAll(ctx, types.ErrNoActiveSession)
	if _, err := a.opener.Open(ctx, a.actionURL(actionDisconnect, provider.NewCorrelationID(), nil)); err != nil {
		return errors.Wrap(types.ErrTransportUnavailable, err.Error())
	}
	return nil
}

func (a *Adapter) Matches(u *url.URL) bool {
	return a.variant.matches(a.callback, u)
}

func (a *Adapter) HandleURL(ctx context.Context, u *url.URL) (bool, error) {
	if !a.Matches(u) {
		return false, nil
	}
	q := u.Query()
	id := q.Get(ParamID)
	if id == "" {
		return true, errors.Wrap(types.ErrMalformedResponse, "reply without id")
	}

	resp, decodeErr := a.decodeReply(id, q)
	delivered, orphan := a.pending.Resolve(ctx, resp)
	if delivered || orphan == nil {
		return true, decodeErr
	}

	log.Infow("reply after restart", "provider", a.variant.Kind, "id", orphan.ID, "method", orphan.Method)
	switch {
	case resp.Error != nil:
		a.emitter.Emit(types.Event{Kind: types.EventError, Error: resp.Error})
	case orphan.Method == types.MethodRequestAccounts:
		var account types.Account
		if err := json.Unmarshal(resp.Result, &account); err != nil {
			return true, errors.Wrap(types.ErrMalformedResponse, err.Error())
		}
		a.emitter.Emit(types.Event{Kind: types.EventConnected, Account: &account})
	default:
		a.emitter.Emit(types.Event{Kind: types.EventResponse, Response: resp})
	}
	return true, decodeErr
}

// decodeReply turns reply parameters into a response. A decode failure still yields a
// response carrying the error so the waiter is released.
func (a *Adapter) decodeReply(id string, q url.Values) (*types.Response, error) {
	resp := &types.Response{ID: id}
	if raw := q.Get(ParamErrorCode); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			code = types.CodeInternalError
		}
		resp.Error = &types.RPCError{Code: code, Message: q.Get(ParamErrorMessage)}
		return resp, nil
	}
	if sig := q.Get(ParamSignature); sig != "" {
		resp.Result, _ = json.Marshal(sig)
		return resp, nil
	}
	if q.Get(ParamAddress) == "" && q.Get(ParamAccount) == "" {
		resp.Error = &types.RPCError{Code: types.CodeEmptyResponse, Message: "Empty response"}
		return resp, nil
	}
	account, err := a.variant.decodeAccount(a.variant, q)
	if err != nil {
		resp.Error = types.ToRPCError(err)
		return resp, err
	}
	resp.Result, _ = json.Marshal(account)
	return resp, nil
}
