package deeplink_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/provider/deeplink"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/testhelper"
	"github.com/ipfs-force-community/sophon-connect/types"
)

func requestConfig() *types.RequestConfig {
	return &types.RequestConfig{
		RequestQueueSize: 8,
		RequestTimeout:   time.Second,
		ConnectTimeout:   time.Second,
		ClearInterval:    20 * time.Millisecond,
		PendingTTL:       time.Hour,
	}
}

func configA() deeplink.Config {
	return deeplink.Config{
		Metadata:      types.AppMetadata{URL: "https://dapp.example"},
		WalletURL:     "phantom://v1",
		Callback:      "dapp-a://callback",
		InstallScheme: "phantom",
		Request:       requestConfig(),
	}
}

func configB() deeplink.Config {
	return deeplink.Config{
		Metadata:      types.AppMetadata{URL: "https://dapp.example"},
		WalletURL:     "metamask://connect",
		Callback:      "dapp://mmsdk",
		InstallScheme: "metamask",
		Request:       requestConfig(),
	}
}

type fixture struct {
	ctx     context.Context
	adapter *deeplink.Adapter
	wallet  *testhelper.AppWallet
}

func setup(t *testing.T, variant deeplink.Variant, cfg deeplink.Config, ds *storage.PendingStore) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	wallet, err := testhelper.NewDeepLinkWallet()
	require.NoError(t, err)
	probe := platform.NewSchemeProbe([]string{"phantom", "metamask"}, []string{"phantom", "metamask"})
	adapter, err := deeplink.New(ctx, variant, cfg, wallet, probe, ds)
	require.NoError(t, err)
	return &fixture{ctx: ctx, adapter: adapter, wallet: wallet}
}

func (f *fixture) relaunch(t *testing.T) {
	for _, u := range f.wallet.Replies() {
		handled, err := f.adapter.HandleURL(f.ctx, u)
		require.True(t, handled)
		require.NoError(t, err)
	}
}

func (f *fixture) connect(t *testing.T) *types.Account {
	hs, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)
	f.relaunch(t)
	out, err := hs.Wait(f.ctx)
	require.NoError(t, err)
	return out.Account
}

func TestVariantAConnectPinsChain(t *testing.T) {
	f := setup(t, deeplink.VariantA(types.ChainID{}), configA(), nil)
	account := f.connect(t)

	require.Equal(t, f.wallet.Address, account.Address)
	require.Equal(t, types.SolanaMainnet, account.Chain)

	opened := f.wallet.Opened()
	require.Len(t, opened, 1)
	require.Equal(t, "phantom", opened[0].Scheme)
	require.Equal(t, "/connect", opened[0].Path)
	require.Equal(t, "dapp-a://callback", opened[0].Query().Get(deeplink.ParamRedirect))
}

func TestVariantBConnectDecodesHexChain(t *testing.T) {
	f := setup(t, deeplink.VariantB(), configB(), nil)
	account := f.connect(t)

	require.Equal(t, f.wallet.Address, account.Address)
	require.Equal(t, types.NewChainID(types.NamespaceEIP155, "137"), account.Chain)
}

func TestVariantBRejectsBadAccount(t *testing.T) {
	f := setup(t, deeplink.VariantB(), configB(), nil)
	f.wallet.Address = "not-an-address"
	hs, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)

	replies := f.wallet.Replies()
	require.Len(t, replies, 1)
	handled, err := f.adapter.HandleURL(f.ctx, replies[0])
	require.True(t, handled)
	require.True(t, errors.Is(err, types.ErrMalformedResponse))

	_, err = hs.Wait(f.ctx)
	require.True(t, errors.Is(err, types.ErrMalformedResponse))
}

func TestSignSilentReturn(t *testing.T) {
	f := setup(t, deeplink.VariantB(), configB(), nil)
	account := f.connect(t)

	f.wallet.Silent.Store(true)
	resp, err := f.adapter.Request(f.ctx, provider.Target{Account: account}, types.NewPersonalSign(account.Address, "hello"))
	require.NoError(t, err)
	require.Equal(t, "eip155:137", resp.ChainID)
	sig, err := resp.StringResult()
	require.NoError(t, err)
	require.True(t, ethutil.VerifyPersonal(account.Address, "hello", sig))

	opened := f.wallet.Opened()
	last := opened[len(opened)-1]
	require.Equal(t, "/"+types.MethodPersonalSign, last.Path)
	require.Equal(t, "0x89", last.Query().Get(deeplink.ParamChainID))
}

func TestTypedDataOnlyOnB(t *testing.T) {
	a := setup(t, deeplink.VariantA(types.ChainID{}), configA(), nil)
	accountA := a.connect(t)
	_, err := a.adapter.Request(a.ctx, provider.Target{Account: accountA}, types.NewSignTypedDataV4(accountA.Address, "{}"))
	require.True(t, errors.Is(err, types.ErrNotImplemented))

	b := setup(t, deeplink.VariantB(), configB(), nil)
	accountB := b.connect(t)
	b.wallet.Silent.Store(true)
	resp, err := b.adapter.Request(b.ctx, provider.Target{Account: accountB}, types.NewSignTypedDataV4(accountB.Address, "{}"))
	require.NoError(t, err)
	sig, err := resp.StringResult()
	require.NoError(t, err)
	require.Equal(t, "0x"+types.MethodSignTypedDataV4, sig)

	req, err := types.NewRequest(types.MethodSendTransaction, []interface{}{})
	require.NoError(t, err)
	_, err = b.adapter.Request(b.ctx, provider.Target{Account: accountB}, req)
	require.True(t, errors.Is(err, types.ErrNotImplemented))
}

func TestRequestWithoutAccount(t *testing.T) {
	f := setup(t, deeplink.VariantB(), configB(), nil)
	_, err := f.adapter.Request(f.ctx, provider.Target{}, types.NewPersonalSign("0x0", "hi"))
	require.True(t, errors.Is(err, types.ErrNoActiveSession))
}

func TestRejected(t *testing.T) {
	f := setup(t, deeplink.VariantA(types.ChainID{}), configA(), nil)
	account := f.connect(t)

	f.wallet.Reject.Store(true)
	f.wallet.Silent.Store(true)
	_, err := f.adapter.Request(f.ctx, provider.Target{Account: account}, types.NewPersonalSign(account.Address, "hi"))
	require.True(t, errors.Is(err, types.ErrUserRejected))
}

func TestOpenFailure(t *testing.T) {
	f := setup(t, deeplink.VariantB(), configB(), nil)
	f.wallet.Broken.Store(true)
	_, err := f.adapter.Connect(f.ctx, "")
	require.True(t, errors.Is(err, types.ErrTransportUnavailable))
}

func TestMatches(t *testing.T) {
	a := setup(t, deeplink.VariantA(types.ChainID{}), configA(), nil)
	b := setup(t, deeplink.VariantB(), configB(), nil)

	cases := []struct {
		raw  string
		a, b bool
	}{
		{"dapp-a://callback?id=1", true, false},
		{"dapp://mmsdk?id=1", false, true},
		{"other://mmsdk?id=1", false, true},
		{"https://dapp.example/cb?p=x", false, false},
	}
	for _, c := range cases {
		u, err := url.Parse(c.raw)
		require.NoError(t, err)
		require.Equal(t, c.a, a.adapter.Matches(u), c.raw)
		require.Equal(t, c.b, b.adapter.Matches(u), c.raw)
	}

	u, _ := url.Parse("https://dapp.example/cb")
	handled, err := a.adapter.HandleURL(a.ctx, u)
	require.False(t, handled)
	require.NoError(t, err)

	u, _ = url.Parse("dapp-a://callback")
	handled, err = a.adapter.HandleURL(a.ctx, u)
	require.True(t, handled)
	require.True(t, errors.Is(err, types.ErrMalformedResponse))
}

func TestLateReplyAfterCancel(t *testing.T) {
	ds := storage.NewPendingStore(storage.NewMemory())
	f := setup(t, deeplink.VariantB(), configB(), ds)
	account := f.connect(t)

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() {
		_, err := f.adapter.Request(ctx, provider.Target{Account: account}, types.NewPersonalSign(account.Address, "late"))
		done <- err
	}()
	require.Eventually(t, func() bool { return len(f.wallet.Opened()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	f.relaunch(t)
	select {
	case evt := <-f.adapter.Events():
		require.Equal(t, types.EventResponse, evt.Kind)
		require.Equal(t, types.ProviderDeepLinkB, evt.Provider)
		sig, err := evt.Response.StringResult()
		require.NoError(t, err)
		require.True(t, ethutil.VerifyPersonal(account.Address, "late", sig))
	case <-time.After(time.Second):
		t.Fatal("no response event")
	}
}

func TestDisconnectOpensWallet(t *testing.T) {
	f := setup(t, deeplink.VariantA(types.ChainID{}), configA(), nil)
	account := f.connect(t)
	require.NoError(t, f.adapter.Disconnect(f.ctx, provider.Target{Account: account}))

	opened := f.wallet.Opened()
	require.Equal(t, "/disconnect", opened[len(opened)-1].Path)
	require.Empty(t, f.wallet.Replies())
}

func TestWalletEntries(t *testing.T) {
	a := setup(t, deeplink.VariantA(types.ChainID{}), configA(), nil)
	w := a.adapter.Wallet()
	require.Equal(t, types.PhantomWalletID, w.ID)
	require.Equal(t, 1, w.Order)
	require.True(t, w.IsInstalled)
	require.Equal(t, types.ProviderDeepLinkA, w.Provider)

	b := deeplink.VariantB().Wallet()
	require.Equal(t, types.MetaMaskSDKWalletID, b.ID)
	require.Equal(t, 3, b.Order)
}
