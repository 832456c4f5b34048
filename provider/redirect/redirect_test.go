package redirect_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/provider/redirect"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/testhelper"
	"github.com/ipfs-force-community/sophon-connect/types"
)

const callback = "https://dapp.example/cb"

func testConfig() redirect.Config {
	return redirect.Config{
		Metadata:      types.AppMetadata{Name: "dapp", URL: "https://dapp.example", Redirect: types.Redirect{Universal: callback, Native: "dapp://"}},
		WalletURL:     "https://wallet.example/wsegue",
		InstallScheme: "cbwallet",
		Request: &types.RequestConfig{
			RequestQueueSize: 8,
			RequestTimeout:   time.Second,
			ConnectTimeout:   time.Second,
			ClearInterval:    20 * time.Millisecond,
			PendingTTL:       time.Hour,
		},
	}
}

type fixture struct {
	ctx     context.Context
	adapter *redirect.Adapter
	wallet  *testhelper.AppWallet
	pending *storage.PendingStore
}

func setup(t *testing.T) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	wallet, err := testhelper.NewRedirectWallet()
	require.NoError(t, err)
	pending := storage.NewPendingStore(storage.NewMemory())
	probe := platform.NewSchemeProbe([]string{"cbwallet"}, []string{"cbwallet"})
	adapter, err := redirect.New(ctx, testConfig(), wallet, probe, pending)
	require.NoError(t, err)
	return &fixture{ctx: ctx, adapter: adapter, wallet: wallet, pending: pending}
}

// relaunch feeds queued wallet replies back as inbound URLs.
func (f *fixture) relaunch(t *testing.T) {
	for _, u := range f.wallet.Replies() {
		handled, err := f.adapter.HandleURL(f.ctx, u)
		require.True(t, handled)
		require.NoError(t, err)
	}
}

func (f *fixture) connect(t *testing.T) *types.Account {
	hs, err := f.adapter.Connect(f.ctx, types.CoinbaseWalletID)
	require.NoError(t, err)
	f.relaunch(t)
	out, err := hs.Wait(f.ctx)
	require.NoError(t, err)
	return out.Account
}

func TestCallback(t *testing.T) {
	cfg := redirect.Config{}
	assert.Equal(t, redirect.DefaultCallback, cfg.Callback())
	cfg.Metadata.Redirect.Native = "dapp://"
	assert.Equal(t, "dapp://", cfg.Callback())
	cfg.Metadata.Redirect.Universal = callback
	assert.Equal(t, callback, cfg.Callback())
}

func TestConnectViaRelaunch(t *testing.T) {
	f := setup(t)
	account := f.connect(t)

	require.Equal(t, f.wallet.Address, account.Address)
	require.Equal(t, types.NewChainID(types.NamespaceEIP155, "1"), account.Chain)

	opened := f.wallet.Opened()
	require.Len(t, opened, 1)
	msg, err := redirect.DecodeURL(opened[0])
	require.NoError(t, err)
	require.NotNil(t, msg.Content.Handshake)
	require.Equal(t, callback, msg.Content.Handshake.Callback)
	require.Equal(t, types.MethodRequestAccounts, msg.Content.Handshake.InitialActions[0].Method)

	list, err := f.pending.List(f.ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestConnectSilent(t *testing.T) {
	f := setup(t)
	f.wallet.Silent.Store(true)
	hs, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)
	out, err := hs.Wait(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.wallet.Address, out.Account.Address)
}

func TestConnectNotInstalled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wallet, err := testhelper.NewRedirectWallet()
	require.NoError(t, err)
	adapter, err := redirect.New(ctx, testConfig(), wallet, platform.NewSchemeProbe(nil, []string{"cbwallet"}), nil)
	require.NoError(t, err)

	require.False(t, adapter.IsInstalled())
	require.False(t, adapter.Wallet().IsInstalled)
	_, err = adapter.Connect(ctx, "")
	require.True(t, errors.Is(err, types.ErrTransportUnavailable))
	require.Empty(t, wallet.Opened())
}

func TestConnectRejected(t *testing.T) {
	f := setup(t)
	f.wallet.Reject.Store(true)
	hs, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)
	f.relaunch(t)
	_, err = hs.Wait(f.ctx)
	require.True(t, errors.Is(err, types.ErrUserRejected))
}

func TestEmptyResponse(t *testing.T) {
	f := setup(t)
	account := f.connect(t)

	f.wallet.Empty.Store(true)
	f.wallet.Silent.Store(true)
	resp, err := f.adapter.Request(f.ctx, provider.Target{Account: account}, types.NewPersonalSign(account.Address, "hello"))
	require.Error(t, err)
	require.Equal(t, types.CodeEmptyResponse, resp.Error.Code)
	require.Equal(t, "Empty response", resp.Error.Message)
}

func TestPersonalSign(t *testing.T) {
	f := setup(t)
	account := f.connect(t)

	f.wallet.Silent.Store(true)
	resp, err := f.adapter.Request(f.ctx, provider.Target{Account: account}, types.NewPersonalSign(account.Address, "hello"))
	require.NoError(t, err)
	require.Equal(t, "eip155:1", resp.ChainID)
	sig, err := resp.StringResult()
	require.NoError(t, err)
	require.True(t, ethutil.VerifyPersonal(account.Address, "hello", sig))

	opened := f.wallet.Opened()
	msg, err := redirect.DecodeURL(opened[len(opened)-1])
	require.NoError(t, err)
	require.NotNil(t, msg.Content.Request)
	require.Equal(t, int64(1), msg.Content.Request.Account.NetworkID)
	require.JSONEq(t, `{"address":"`+account.Address+`","message":"hello"}`, msg.Content.Request.Actions[0].ParamsJSON)
}

func TestSendTransactionPassthrough(t *testing.T) {
	f := setup(t)
	account := f.connect(t)
	f.wallet.Silent.Store(true)

	req, err := types.NewRequest(types.MethodSendTransaction, []interface{}{map[string]string{"to": account.Address, "value": "0x0"}})
	require.NoError(t, err)
	resp, err := f.adapter.Request(f.ctx, provider.Target{Account: account}, req)
	require.NoError(t, err)
	result, err := resp.StringResult()
	require.NoError(t, err)
	require.Equal(t, "0x"+types.MethodSendTransaction, result)
}

func TestRequestErrors(t *testing.T) {
	f := setup(t)
	account := f.connect(t)

	_, err := f.adapter.Request(f.ctx, provider.Target{}, types.NewPersonalSign(account.Address, "hi"))
	require.True(t, errors.Is(err, types.ErrNoActiveSession))

	req, err := types.NewRequest(types.MethodSolanaSignMessage, nil)
	require.NoError(t, err)
	_, err = f.adapter.Request(f.ctx, provider.Target{Account: account}, req)
	require.True(t, errors.Is(err, types.ErrNotImplemented))

	solana := types.NewAccount("abc", types.SolanaMainnet)
	_, err = f.adapter.Request(f.ctx, provider.Target{Account: solana}, types.NewPersonalSign("abc", "hi"))
	require.True(t, errors.Is(err, types.ErrNotImplemented))
}

func TestForgedSession(t *testing.T) {
	f := setup(t)
	f.wallet.ForgeSession.Store(true)
	_, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)

	replies := f.wallet.Replies()
	require.Len(t, replies, 1)
	handled, err := f.adapter.HandleURL(f.ctx, replies[0])
	require.True(t, handled)
	require.True(t, errors.Is(err, types.ErrMalformedResponse))
}

func TestReplyAfterRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ds := storage.NewMemory()
	wallet, err := testhelper.NewRedirectWallet()
	require.NoError(t, err)
	probe := platform.NewSchemeProbe([]string{"cbwallet"}, []string{"cbwallet"})

	first, err := redirect.New(ctx, testConfig(), wallet, probe, storage.NewPendingStore(ds))
	require.NoError(t, err)
	_, err = first.Connect(ctx, "")
	require.NoError(t, err)

	// the process is evicted while the wallet app is in front
	second, err := redirect.New(ctx, testConfig(), wallet, probe, storage.NewPendingStore(ds))
	require.NoError(t, err)
	replies := wallet.Replies()
	require.Len(t, replies, 1)
	handled, err := second.HandleURL(ctx, replies[0])
	require.True(t, handled)
	require.NoError(t, err)

	select {
	case evt := <-second.Events():
		require.Equal(t, types.EventConnected, evt.Kind)
		require.Equal(t, types.ProviderRedirectHandshake, evt.Provider)
		require.Equal(t, wallet.Address, evt.Account.Address)
	case <-time.After(time.Second):
		t.Fatal("no connected event")
	}
}

func TestMatches(t *testing.T) {
	f := setup(t)
	for _, raw := range []string{
		"https://dapp.example/other?p=abc",
		"https://dapp.example/cb",
		"dapp://x?p=abc",
		"https://evil.example/cb?p=abc",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		handled, err := f.adapter.HandleURL(f.ctx, u)
		require.False(t, handled, raw)
		require.NoError(t, err)
	}

	u, err := url.Parse(callback + "?p=not-json")
	require.NoError(t, err)
	handled, err := f.adapter.HandleURL(f.ctx, u)
	require.True(t, handled)
	require.True(t, errors.Is(err, types.ErrMalformedResponse))
}

func TestDisconnectFailsWaiters(t *testing.T) {
	f := setup(t)
	account := f.connect(t)

	f.wallet.Ignore.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := f.adapter.Request(f.ctx, provider.Target{Account: account}, types.NewPersonalSign(account.Address, "hi"))
		done <- err
	}()
	require.Eventually(t, func() bool { return len(f.wallet.Opened()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.adapter.Disconnect(f.ctx, provider.Target{Account: account}))

	select {
	case err := <-done:
		require.True(t, errors.Is(err, types.ErrNoActiveSession))
	case <-time.After(time.Second):
		t.Fatal("request not released")
	}
}

func TestRequestTimeout(t *testing.T) {
	f := setup(t)
	account := f.connect(t)

	f.wallet.Ignore.Store(true)
	_, err := f.adapter.Request(f.ctx, provider.Target{Account: account}, types.NewPersonalSign(account.Address, "hi"))
	require.True(t, errors.Is(err, types.ErrTimeout))
}
