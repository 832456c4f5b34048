package pairing_test

import (
	"context"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/provider/pairing"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/testhelper"
	"github.com/ipfs-force-community/sophon-connect/types"
)

func testConfig() pairing.Config {
	return pairing.Config{
		Metadata: types.AppMetadata{Name: "dapp", URL: "https://dapp.example"},
		Namespaces: map[string]types.Namespace{
			types.NamespaceEIP155: {Chains: []string{"eip155:1"}, Methods: []string{types.MethodPersonalSign}, Events: []string{"chainChanged"}},
		},
		Request: &types.RequestConfig{
			RequestQueueSize: 16,
			RequestTimeout:   2 * time.Second,
			ConnectTimeout:   2 * time.Second,
			ClearInterval:    20 * time.Millisecond,
		},
	}
}

type fixture struct {
	ctx     context.Context
	adapter *pairing.Adapter
	wallet  *testhelper.PairingWallet
	ds      *storage.SessionStore
	hub     *testhelper.RelayHub
}

func setup(t *testing.T) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := testhelper.NewRelayHub()
	sessions := storage.NewSessionStore(storage.NewMemory())
	adapter, err := pairing.New(ctx, testConfig(), hub.NewRelay(), sessions, nil)
	require.NoError(t, err)

	wallet, err := testhelper.NewPairingWallet(hub)
	require.NoError(t, err)
	go wallet.Run(ctx)

	return &fixture{ctx: ctx, adapter: adapter, wallet: wallet, ds: sessions, hub: hub}
}

func (f *fixture) connect(t *testing.T) provider.Outcome {
	hs, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)
	require.NoError(t, f.wallet.Pair(f.ctx, hs.URI))

	out, err := hs.Wait(f.ctx)
	require.NoError(t, err)
	return out
}

func TestConnect(t *testing.T) {
	f := setup(t)
	out := f.connect(t)

	require.Equal(t, f.wallet.Address, out.Account.Address)
	require.Equal(t, types.NewChainID("eip155", "1"), out.Account.Chain)
	require.Equal(t, f.wallet.SessionTopic(), out.Session.Topic)
	require.Equal(t, "Test Wallet", out.Session.Peer.Name)

	require.Len(t, f.adapter.Sessions(), 1)
	pairings := f.adapter.Pairings()
	require.Len(t, pairings, 1)
	require.True(t, pairings[0].Active)

	select {
	case evt := <-f.adapter.Events():
		require.Equal(t, types.EventSessionSettled, evt.Kind)
		require.Equal(t, types.ProviderPairingSession, evt.Provider)
	case <-time.After(time.Second):
		t.Fatal("no settle event")
	}
}

func TestConnectRejected(t *testing.T) {
	f := setup(t)
	f.wallet.Reject.Store(true)

	hs, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)
	require.NoError(t, f.wallet.Pair(f.ctx, hs.URI))

	_, err = hs.Wait(f.ctx)
	require.ErrorIs(t, err, types.ErrUserRejected)
	require.Empty(t, f.adapter.Pairings())
}

func TestConnectSettleTimeout(t *testing.T) {
	f := setup(t)
	f.wallet.Silent.Store(true)

	hs, err := f.adapter.Connect(f.ctx, "")
	require.NoError(t, err)
	require.NoError(t, f.wallet.Pair(f.ctx, hs.URI))

	_, err = hs.Wait(f.ctx)
	require.ErrorIs(t, err, types.ErrTimeout)
	require.Empty(t, f.adapter.Sessions())
}

func TestConnectRelayOffline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := testhelper.NewRelayHub()
	relay := hub.NewRelay()
	relay.SetOffline(true)
	adapter, err := pairing.New(ctx, testConfig(), relay, storage.NewSessionStore(storage.NewMemory()), nil)
	require.NoError(t, err)

	_, err = adapter.Connect(ctx, "")
	require.ErrorIs(t, err, types.ErrTransportUnavailable)
	require.Empty(t, adapter.Pairings())
}

func TestRequestParamOrder(t *testing.T) {
	f := setup(t)
	out := f.connect(t)
	target := provider.Target{Account: out.Account, Session: out.Session}

	resp, err := f.adapter.Request(f.ctx, target, types.NewPersonalSign(f.wallet.Address, "hello"))
	require.NoError(t, err)
	sig, err := resp.StringResult()
	require.NoError(t, err)
	require.NotEmpty(t, sig)
	require.Equal(t, out.Session.Topic, resp.Topic)
	require.Equal(t, "eip155:1", resp.ChainID)

	reqs := f.wallet.Requests()
	require.Len(t, reqs, 1)
	require.JSONEq(t, `["hello","`+f.wallet.Address+`"]`, string(reqs[0].Params))
	require.Equal(t, "eip155:1", reqs[0].ChainID)
}

func TestRequestTypedDataOrder(t *testing.T) {
	f := setup(t)
	out := f.connect(t)
	target := provider.Target{Account: out.Account, Session: out.Session}

	_, err := f.adapter.Request(f.ctx, target, types.NewSignTypedDataV4("0xA", "hello"))
	require.NoError(t, err)
	reqs := f.wallet.Requests()
	require.Len(t, reqs, 1)
	require.JSONEq(t, `["0xA","hello"]`, string(reqs[0].Params))
}

func TestRequestNotImplemented(t *testing.T) {
	f := setup(t)
	out := f.connect(t)
	target := provider.Target{Account: out.Account, Session: out.Session}

	req, err := types.NewRequest("eth_signTransaction", []string{})
	require.NoError(t, err)
	_, err = f.adapter.Request(f.ctx, target, req)
	require.ErrorIs(t, err, types.ErrNotImplemented)

	solana := provider.Target{Account: types.NewAccount("abc", types.SolanaMainnet), Session: out.Session}
	_, err = f.adapter.Request(f.ctx, solana, types.NewPersonalSign("abc", "hi"))
	require.ErrorIs(t, err, types.ErrNotImplemented)
}

func TestRequestRejected(t *testing.T) {
	f := setup(t)
	out := f.connect(t)
	f.wallet.Reject.Store(true)

	_, err := f.adapter.Request(f.ctx, provider.Target{Account: out.Account, Session: out.Session}, types.NewPersonalSign(f.wallet.Address, "hello"))
	require.ErrorIs(t, err, types.ErrUserRejected)
}

func TestRequestNoSession(t *testing.T) {
	f := setup(t)
	_, err := f.adapter.Request(f.ctx, provider.Target{}, types.NewPersonalSign("0xA", "hello"))
	require.ErrorIs(t, err, types.ErrNoActiveSession)

	_, err = f.adapter.Request(f.ctx, provider.Target{Session: &types.Session{Topic: "unknown"}}, types.NewPersonalSign("0xA", "hello"))
	require.ErrorIs(t, err, types.ErrNoActiveSession)
}

func TestWalletDeleteFailsPending(t *testing.T) {
	f := setup(t)
	out := f.connect(t)
	<-f.adapter.Events()
	f.wallet.IgnoreCalls.Store(true)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.adapter.Request(f.ctx, provider.Target{Account: out.Account, Session: out.Session}, types.NewPersonalSign(f.wallet.Address, "hello"))
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(f.wallet.Requests()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.wallet.DeleteSession(f.ctx))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, types.ErrNoActiveSession)
	case <-time.After(time.Second):
		t.Fatal("pending request not failed")
	}

	evt := <-f.adapter.Events()
	require.Equal(t, types.EventSessionDeleted, evt.Kind)
	require.Equal(t, out.Session.Topic, evt.Topic)
	require.Empty(t, f.adapter.Sessions())
}

func TestSessionEventAndUpdate(t *testing.T) {
	f := setup(t)
	f.connect(t)
	<-f.adapter.Events()

	require.NoError(t, f.wallet.EmitEvent(f.ctx, "chainChanged", 137, "eip155:137"))
	evt := <-f.adapter.Events()
	require.Equal(t, types.EventSessionEvent, evt.Kind)
	require.Equal(t, "chainChanged", evt.Name)
	require.Equal(t, "eip155:137", evt.ChainID)
	require.JSONEq(t, "137", string(evt.Data))

	require.NoError(t, f.wallet.UpdateChains(f.ctx, []string{"eip155:10"}))
	evt = <-f.adapter.Events()
	require.Equal(t, types.EventSessionUpdated, evt.Kind)
	require.Equal(t, "eip155:10", evt.Session.FirstAccount().Chain.String())
}

func TestDisconnectAndPing(t *testing.T) {
	f := setup(t)
	out := f.connect(t)

	require.NoError(t, f.adapter.Ping(f.ctx, out.Session.Topic))
	require.NoError(t, f.adapter.Ping(f.ctx, out.Session.PairingTopic))

	require.NoError(t, f.adapter.Disconnect(f.ctx, provider.Target{Account: out.Account, Session: out.Session}))
	require.Empty(t, f.adapter.Sessions())
	require.Eventually(t, func() bool { return len(f.wallet.Deleted()) == 1 }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, f.adapter.Ping(f.ctx, out.Session.Topic), types.ErrNoActiveSession)
}

func TestDisconnectOfflineStillClears(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := testhelper.NewRelayHub()
	relay := hub.NewRelay()
	adapter, err := pairing.New(ctx, testConfig(), relay, storage.NewSessionStore(storage.NewMemory()), nil)
	require.NoError(t, err)
	wallet, err := testhelper.NewPairingWallet(hub)
	require.NoError(t, err)
	go wallet.Run(ctx)

	hs, err := adapter.Connect(ctx, "")
	require.NoError(t, err)
	require.NoError(t, wallet.Pair(ctx, hs.URI))
	out, err := hs.Wait(ctx)
	require.NoError(t, err)

	relay.SetOffline(true)
	err = adapter.Disconnect(ctx, provider.Target{Account: out.Account, Session: out.Session})
	require.ErrorIs(t, err, types.ErrTransportUnavailable)
	require.Empty(t, adapter.Sessions())
}

func TestCleanup(t *testing.T) {
	f := setup(t)
	f.connect(t)

	require.NoError(t, f.adapter.Cleanup(f.ctx))
	require.Empty(t, f.adapter.Sessions())
	require.Empty(t, f.adapter.Pairings())
}

func TestSessionsSurviveRestart(t *testing.T) {
	f := setup(t)
	out := f.connect(t)

	restarted, err := pairing.New(f.ctx, testConfig(), f.hub.NewRelay(), f.ds, nil)
	require.NoError(t, err)
	sessions := restarted.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, out.Session.Topic, sessions[0].Topic)
}

func TestHandleURL(t *testing.T) {
	f := setup(t)

	u, _ := url.Parse("myapp://wc?foo=bar")
	require.False(t, f.adapter.Matches(u))
	handled, err := f.adapter.HandleURL(f.ctx, u)
	require.NoError(t, err)
	require.False(t, handled)

	u, _ = url.Parse("myapp://wc?wc_ev=" + base64.RawURLEncoding.EncodeToString([]byte("{}")))
	handled, err = f.adapter.HandleURL(f.ctx, u)
	require.True(t, handled)
	require.ErrorIs(t, err, types.ErrMalformedResponse)

	// envelope on an unknown topic is accepted and ignored
	raw, err := pairing.EnvelopeURL("myapp://wc", pairing.Message{Topic: "nobody", Payload: "{}"})
	require.NoError(t, err)
	u, _ = url.Parse(raw)
	handled, err = f.adapter.HandleURL(f.ctx, u)
	require.NoError(t, err)
	require.True(t, handled)
}
