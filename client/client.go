// Package client is the façade over every wallet transport. It owns the connection state,
// routes requests to the transport that produced the active connection, classifies
// inbound URLs and merges all transport events into one stream.
package client

import (
	"context"
	"net/url"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/ipfs-force-community/sophon-connect/catalog"
	"github.com/ipfs-force-community/sophon-connect/config"
	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/metrics"
	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/provider/deeplink"
	"github.com/ipfs-force-community/sophon-connect/provider/pairing"
	"github.com/ipfs-force-community/sophon-connect/provider/redirect"
	"github.com/ipfs-force-community/sophon-connect/state"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("client")

const (
	toastInvalidRedirect = "Invalid redirect URL"
	toastOpenFailed      = "Failed to open wallet"
)

type Client struct {
	ctx context.Context
	cfg *config.Config

	store    *state.Store
	accounts *storage.AccountStore
	catalog  *catalog.Catalog
	opener   platform.Opener
	onError  ErrorHandler
	hub      *eventHub

	pairing  *pairing.Adapter
	adapters map[types.ProviderKind]provider.Adapter
	// inbound is the order inbound URLs are offered in.
	inbound []provider.Adapter
}

var _ metrics.Source = (*Client)(nil)

// New builds the enabled transports, restores the previous connection and starts
// draining transport events. Everything stops when ctx is done.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.Request == nil {
		cfg.Request = types.DefaultRequestConfig()
	}
	if o.crypto == nil {
		o.crypto = ethutil.DefaultCryptoProvider{}
	}
	if o.opener == nil {
		o.opener = &platform.LogOpener{}
	}
	if o.probe == nil {
		o.probe = platform.NewSchemeProbe(cfg.Wallets.QueryableSchemes, cfg.Wallets.InstalledSchemes)
	}
	if o.ds == nil {
		o.ds = storage.NewMemory()
	}
	if o.registry == nil {
		o.registry = types.NewDefaultChainRegistry()
	}
	if o.fetcher == nil {
		o.fetcher = catalog.NewStaticFetcher(nil, cfg.Wallets.PageSize, cfg.Wallets.Featured)
	}
	if o.relay == nil {
		relay, err := pairing.DialWSRelay(ctx, cfg.Providers.RelayURL, cfg.Project.ProjectID, cfg.Request.RequestQueueSize)
		if err != nil {
			return nil, errors.Wrap(err, "dial relay")
		}
		o.relay = relay
	}

	metadata := cfg.Project.Metadata()
	accounts := storage.NewAccountStore(o.ds)
	c := &Client{
		ctx:      ctx,
		cfg:      cfg,
		store:    state.NewStore(o.registry, accounts),
		accounts: accounts,
		opener:   o.opener,
		onError:  o.onError,
		hub:      newEventHub(cfg.Request.RequestQueueSize),
		adapters: make(map[types.ProviderKind]provider.Adapter),
	}
	c.catalog = catalog.New(catalog.Config{
		RecommendedIDs: cfg.Wallets.RecommendedIDs,
		ExcludedIDs:    cfg.Wallets.ExcludedIDs,
		Custom:         cfg.CustomWallets(),
	}, o.fetcher, storage.NewRecentWalletStore(o.ds))

	var err error
	c.pairing, err = pairing.New(ctx, pairing.Config{
		Metadata:   metadata,
		Namespaces: cfg.NamespaceMap(),
		Request:    cfg.Request,
	}, o.relay, storage.NewSessionStore(o.ds), o.crypto)
	if err != nil {
		return nil, errors.Wrap(err, "pairing transport")
	}
	c.register(c.pairing)

	pending := storage.NewPendingStore(o.ds)
	var redirectAdapter provider.Adapter
	if cfg.Providers.EnableRedirectHandshake {
		redirectAdapter, err = redirect.New(ctx, redirect.Config{
			Metadata:      metadata,
			WalletURL:     cfg.Providers.RedirectWalletURL,
			InstallScheme: cfg.Providers.RedirectInstallScheme,
			Request:       cfg.Request,
		}, o.opener, o.probe, pending)
		if err != nil {
			return nil, errors.Wrap(err, "redirect transport")
		}
	}
	if cfg.Providers.EnableDeepLink {
		var chain types.ChainID
		if cfg.Providers.DeepLinkAChain != "" {
			if chain, err = types.ParseChainID(cfg.Providers.DeepLinkAChain); err != nil {
				return nil, errors.Wrap(err, "deep-link A chain")
			}
		}
		adapterA, err := deeplink.New(ctx, deeplink.VariantA(chain), deeplink.Config{
			Metadata:      metadata,
			WalletURL:     cfg.Providers.DeepLinkAWalletURL,
			Callback:      cfg.Providers.DeepLinkACallback,
			InstallScheme: cfg.Providers.DeepLinkAInstallScheme,
			Request:       cfg.Request,
		}, o.opener, o.probe, pending)
		if err != nil {
			return nil, err
		}
		adapterB, err := deeplink.New(ctx, deeplink.VariantB(), deeplink.Config{
			Metadata:      metadata,
			WalletURL:     cfg.Providers.DeepLinkBWalletURL,
			Callback:      cfg.Providers.DeepLinkBCallback,
			InstallScheme: cfg.Providers.DeepLinkBInstallScheme,
			Request:       cfg.Request,
		}, o.opener, o.probe, pending)
		if err != nil {
			return nil, err
		}
		c.register(adapterA)
		c.register(adapterB)
	}
	if redirectAdapter != nil {
		c.register(redirectAdapter)
	}

	c.restore(ctx)
	for _, a := range c.inbound {
		go c.pump(a)
	}
	go func() {
		if err := c.catalog.Bootstrap(ctx); err != nil {
			log.Warnf("bootstrap wallet catalog: %v", err)
		}
	}()
	return c, nil
}

// register adds a to the routing table. The call order fixes inbound URL precedence.
func (c *Client) register(a provider.Adapter) {
	c.adapters[a.Kind()] = a
	c.inbound = append(c.inbound, a)
	if a.Kind() != types.ProviderPairingSession {
		c.catalog.AddCustom(a.Wallet())
	}
}

func (c *Client) adapter(kind types.ProviderKind) (provider.Adapter, error) {
	a, ok := c.adapters[kind]
	if !ok {
		return nil, errors.Wrapf(types.ErrTransportUnavailable, "provider %s is not enabled", kind)
	}
	return a, nil
}

// restore applies the first live pairing session, else the persisted account hint of an
// enabled transport. A hint nobody can honour is dropped.
func (c *Client) restore(ctx context.Context) {
	for _, sess := range c.pairing.Sessions() {
		if account := sess.FirstAccount(); account != nil {
			if _, err := c.store.Restore(ctx, types.ProviderPairingSession, account, sess); err != nil {
				log.Warnf("restore session %s: %v", sess.Topic, err)
				continue
			}
			log.Infof("restored pairing session %s for %s", sess.Topic, account.CAIP10())
			return
		}
	}

	rec, err := c.accounts.Load(ctx)
	if err != nil {
		log.Warnf("load account record: %v", err)
		return
	}
	if rec == nil {
		return
	}
	a, ok := c.adapters[rec.Provider]
	if !ok || rec.Provider == types.ProviderPairingSession {
		log.Infof("drop account record of unavailable provider %s", rec.Provider)
		c.clearRecord(ctx)
		return
	}
	account := rec.Account()
	if err := a.Restore(ctx, account); err != nil {
		log.Warnf("restore %s: %v", rec.Provider, err)
		c.clearRecord(ctx)
		return
	}
	if _, err := c.store.Restore(ctx, rec.Provider, account, nil); err != nil {
		log.Warnf("restore %s: %v", rec.Provider, err)
		return
	}
	log.Infof("restored %s account %s", rec.Provider, account.CAIP10())
}

func (c *Client) clearRecord(ctx context.Context) {
	if err := c.accounts.Clear(ctx); err != nil {
		log.Warnf("clear account record: %v", err)
	}
}

// reportError logs err, hands it to the error handler and shows it as a toast. A
// cancelled context is not reported.
func (c *Client) reportError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	log.Errorf("%v", err)
	if c.onError != nil {
		c.onError(err)
	}
	c.store.ShowToast(types.ErrorToast(err.Error()))
}

// Subscribe returns the merged event stream. The channel is closed when ctx is done.
func (c *Client) Subscribe(ctx context.Context) <-chan types.Event {
	return c.hub.subscribe(ctx)
}

func (c *Client) State() *state.State {
	return c.store.Snapshot()
}

func (c *Client) DismissToast() {
	c.store.DismissToast()
}

// Connect starts a handshake on kind. The returned handshake resolves after the client
// state reflects the outcome.
func (c *Client) Connect(ctx context.Context, kind types.ProviderKind, walletID string) (*provider.Handshake, error) {
	a, err := c.adapter(kind)
	if err != nil {
		c.reportError(err)
		return nil, err
	}
	if err := c.store.BeginConnect(kind); err != nil {
		return nil, err
	}

	start := time.Now()
	inner, err := a.Connect(ctx, walletID)
	if err != nil {
		c.store.EndConnect()
		c.recordConnect(kind, start, err)
		c.reportError(err)
		return nil, err
	}
	outer := provider.NewHandshake(inner.URI)
	go c.finishConnect(a, walletID, inner, outer, start)
	return outer, nil
}

func (c *Client) finishConnect(a provider.Adapter, walletID string, inner, outer *provider.Handshake, start time.Time) {
	out, err := inner.Wait(c.ctx)
	if err == nil {
		_, err = c.store.SetConnected(c.ctx, a.Kind(), out.Account, out.Session)
	}
	c.recordConnect(a.Kind(), start, err)
	if err != nil {
		c.store.EndConnect()
		c.reportError(err)
		outer.Fail(err)
		return
	}

	log.Infof("connected %s with %s", a.Kind(), out.Account.CAIP10())
	c.markUsed(a, walletID)
	c.hub.publish(types.Event{Kind: types.EventConnected, Provider: a.Kind(), Account: out.Account, Session: out.Session})
	outer.Succeed(out.Account, out.Session)
}

func (c *Client) recordConnect(kind types.ProviderKind, start time.Time, err error) {
	_ = stats.RecordWithTags(c.ctx, []tag.Mutator{
		tag.Upsert(metrics.ProviderKey, kind.String()),
		tag.Upsert(metrics.ResultKey, metrics.Result(err)),
	}, metrics.Connect.M(1), metrics.ConnectDuration.M(metrics.SinceInMilliseconds(start)))
}

// markUsed stamps the wallet the user picked, falling back to the transport's own entry.
func (c *Client) markUsed(a provider.Adapter, walletID string) {
	w, ok := c.catalog.Lookup(walletID)
	if !ok {
		if a.Kind() == types.ProviderPairingSession {
			return
		}
		w = a.Wallet()
	}
	c.catalog.MarkUsed(c.ctx, w, time.Now())
}

// Request sends req over the active connection.
func (c *Client) Request(ctx context.Context, req *types.Request) (*types.Response, error) {
	snap := c.store.Snapshot()
	if !snap.Connected() {
		err := errors.Wrapf(types.ErrNoActiveSession, "request %s", req.Method)
		c.reportError(err)
		return nil, err
	}
	a, err := c.adapter(snap.Provider)
	if err != nil {
		c.reportError(err)
		return nil, err
	}

	start := time.Now()
	resp, err := a.Request(ctx, provider.Target{Account: snap.Account, Session: snap.Session}, req)
	_ = stats.RecordWithTags(c.ctx, []tag.Mutator{
		tag.Upsert(metrics.ProviderKey, snap.Provider.String()),
		tag.Upsert(metrics.MethodKey, req.Method),
		tag.Upsert(metrics.ResultKey, metrics.Result(err)),
	}, metrics.RequestDuration.M(metrics.SinceInMilliseconds(start)))
	if err != nil {
		if errors.Is(err, types.ErrNoActiveSession) {
			c.dropConnection(snap)
		}
		c.reportError(err)
		return resp, err
	}
	c.hub.publish(types.Event{Kind: types.EventResponse, Provider: snap.Provider, Account: snap.Account, Response: resp})
	return resp, nil
}

// dropConnection clears the state when it still describes snap.
func (c *Client) dropConnection(snap *state.State) {
	cur := c.store.Snapshot()
	if cur.Provider != snap.Provider || !cur.Account.Equal(snap.Account) {
		return
	}
	c.store.Clear(c.ctx)
	c.hub.publish(types.Event{Kind: types.EventDisconnected, Provider: snap.Provider, Account: snap.Account})
}

// Disconnect tears down the active connection. Local state is cleared even when the
// transport fails; that failure is still returned.
func (c *Client) Disconnect(ctx context.Context) error {
	snap := c.store.Snapshot()
	var err error
	if a, ok := c.adapters[snap.Provider]; ok {
		err = a.Disconnect(ctx, provider.Target{Account: snap.Account, Session: snap.Session})
		_ = stats.RecordWithTags(c.ctx, []tag.Mutator{tag.Upsert(metrics.ProviderKey, snap.Provider.String())},
			metrics.Disconnect.M(1))
	}
	c.store.Clear(ctx)
	if snap.Provider != types.ProviderNone {
		c.hub.publish(types.Event{Kind: types.EventDisconnected, Provider: snap.Provider, Account: snap.Account})
	}
	if err != nil {
		err = errors.Wrapf(err, "disconnect %s", snap.Provider)
		c.reportError(err)
		return err
	}
	return nil
}

// Cleanup deletes every pairing and session and clears local state regardless of errors.
func (c *Client) Cleanup(ctx context.Context) error {
	snap := c.store.Snapshot()
	err := c.pairing.Cleanup(ctx)
	c.store.Clear(ctx)
	if snap.Provider != types.ProviderNone {
		c.hub.publish(types.Event{Kind: types.EventDisconnected, Provider: snap.Provider, Account: snap.Account})
	}
	if err != nil {
		err = errors.Wrap(err, "cleanup")
		c.reportError(err)
		return err
	}
	return nil
}

func (c *Client) GetSessions() []*types.Session {
	return c.pairing.Sessions()
}

func (c *Client) GetPairings() []*types.Pairing {
	return c.pairing.Pairings()
}

// Ping round-trips the active pairing session. Other transports have nothing to ping.
func (c *Client) Ping(ctx context.Context) error {
	snap := c.store.Snapshot()
	if snap.Provider != types.ProviderPairingSession || snap.Session == nil {
		return nil
	}
	return c.pairing.Ping(ctx, snap.Session.Topic)
}

// HandleDeeplink offers raw to each transport in turn. The first transport whose
// signature matches consumes it. Unrecognised URLs return false without side effects.
func (c *Client) HandleDeeplink(ctx context.Context, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		log.Debugf("ignore unparsable url %q: %v", raw, err)
		return false
	}
	for _, a := range c.inbound {
		if !a.Matches(u) {
			continue
		}
		c.recordInbound(a.Kind().String())
		handled, err := a.HandleURL(ctx, u)
		if err != nil {
			c.reportError(errors.Wrapf(err, "handle %s url", a.Kind()))
			return false
		}
		return handled
	}
	c.recordInbound(types.ProviderNone.String())
	return false
}

func (c *Client) recordInbound(class string) {
	_ = stats.RecordWithTags(c.ctx, []tag.Mutator{tag.Upsert(metrics.ClassKey, class)}, metrics.InboundURL.M(1))
}

// LaunchCurrentWallet opens the connected wallet app through the peer's native redirect,
// else its universal link.
func (c *Client) LaunchCurrentWallet(ctx context.Context) error {
	snap := c.store.Snapshot()
	if snap.Session == nil {
		return nil
	}
	link := snap.Session.Peer.Redirect.Native
	if link == "" {
		link = snap.Session.Peer.Redirect.Universal
	}
	u, err := url.Parse(link)
	if err != nil || link == "" || u.Scheme == "" {
		c.store.ShowToast(types.ErrorToast(toastInvalidRedirect))
		return errors.Wrapf(types.ErrMalformedResponse, "invalid redirect %q", link)
	}
	if _, err := c.opener.Open(ctx, u); err != nil {
		c.store.ShowToast(types.ErrorToast(toastOpenFailed))
		return errors.Wrap(types.ErrTransportUnavailable, err.Error())
	}
	return nil
}

// GetAddress returns the connected address, or "".
func (c *Client) GetAddress() string {
	if account := c.store.Snapshot().Account; account != nil {
		return account.Address
	}
	return ""
}

func (c *Client) GetSelectedChain() *types.ChainPreset {
	return c.store.Snapshot().SelectedChain
}

func (c *Client) SelectChain(ctx context.Context, chain types.ChainID) error {
	_, err := c.store.SelectChain(ctx, chain)
	return err
}

func (c *Client) AddChainPreset(preset types.ChainPreset) {
	c.store.Registry().Add(preset)
}

func (c *Client) ChainPresets() []types.ChainPreset {
	return c.store.Registry().All()
}

// Wallets lists the catalog in display order.
func (c *Client) Wallets(ctx context.Context) []types.Wallet {
	return c.catalog.Wallets(ctx)
}

func (c *Client) RecentWallets(ctx context.Context) []types.Wallet {
	return c.catalog.Recent(ctx)
}

// LoadMoreWallets fetches the next catalog page.
func (c *Client) LoadMoreWallets(ctx context.Context) (bool, error) {
	return c.catalog.NextPage(ctx)
}

func (c *Client) SessionCount() int {
	return len(c.pairing.Sessions())
}

func (c *Client) PairingCount() int {
	return len(c.pairing.Pairings())
}

type pendingCounter interface {
	PendingRequests() int
}

func (c *Client) PendingCount() map[string]int {
	out := make(map[string]int, len(c.adapters))
	for kind, a := range c.adapters {
		if pc, ok := a.(pendingCounter); ok {
			out[kind.String()] = pc.PendingRequests()
		}
	}
	return out
}

func (c *Client) ConnectedProvider() int {
	return int(c.store.Snapshot().Provider)
}
