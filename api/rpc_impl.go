package api

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/client"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/state"
	"github.com/ipfs-force-community/sophon-connect/types"
	"github.com/ipfs-force-community/sophon-connect/version"
)

var ErrNoHandshake = errors.New("no connect in progress")

var _ IConnectAPI = (*ConnectAPIImpl)(nil)

type ConnectAPIImpl struct {
	c *client.Client

	lk      sync.Mutex
	pending *provider.Handshake
}

func NewConnectAPIImpl(c *client.Client) *ConnectAPIImpl {
	return &ConnectAPIImpl{c: c}
}

func (a *ConnectAPIImpl) Version(context.Context) (string, error) {
	return version.UserVersion, nil
}

func (a *ConnectAPIImpl) State(context.Context) (*state.State, error) {
	return a.c.State(), nil
}

func (a *ConnectAPIImpl) Connect(ctx context.Context, kind types.ProviderKind, walletID string) (*ConnectInfo, error) {
	hs, err := a.c.Connect(ctx, kind, walletID)
	if err != nil {
		return nil, err
	}
	a.lk.Lock()
	a.pending = hs
	a.lk.Unlock()
	return &ConnectInfo{Provider: kind, URI: hs.URI}, nil
}

// AwaitConnect blocks until the last started handshake resolves.
func (a *ConnectAPIImpl) AwaitConnect(ctx context.Context) (*types.Account, error) {
	a.lk.Lock()
	hs := a.pending
	a.lk.Unlock()
	if hs == nil {
		if account := a.c.State().Account; account != nil {
			return account, nil
		}
		return nil, ErrNoHandshake
	}

	out, err := hs.Wait(ctx)
	if err != nil {
		return nil, err
	}
	a.lk.Lock()
	if a.pending == hs {
		a.pending = nil
	}
	a.lk.Unlock()
	return out.Account, nil
}

func (a *ConnectAPIImpl) Disconnect(ctx context.Context) error {
	return a.c.Disconnect(ctx)
}

func (a *ConnectAPIImpl) Cleanup(ctx context.Context) error {
	return a.c.Cleanup(ctx)
}

func (a *ConnectAPIImpl) Ping(ctx context.Context) error {
	return a.c.Ping(ctx)
}

func (a *ConnectAPIImpl) HandleDeeplink(ctx context.Context, url string) (bool, error) {
	return a.c.HandleDeeplink(ctx, url), nil
}

func (a *ConnectAPIImpl) LaunchCurrentWallet(ctx context.Context) error {
	return a.c.LaunchCurrentWallet(ctx)
}

func (a *ConnectAPIImpl) DismissToast(context.Context) error {
	a.c.DismissToast()
	return nil
}

func (a *ConnectAPIImpl) Events(ctx context.Context) (<-chan types.Event, error) {
	return a.c.Subscribe(ctx), nil
}

func (a *ConnectAPIImpl) Request(ctx context.Context, req *types.Request) (*types.Response, error) {
	return a.c.Request(ctx, req)
}

func (a *ConnectAPIImpl) sign(ctx context.Context, req *types.Request) (string, error) {
	resp, err := a.c.Request(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.StringResult()
}

// PersonalSign signs message with the connected address.
func (a *ConnectAPIImpl) PersonalSign(ctx context.Context, message string) (string, error) {
	return a.sign(ctx, types.NewPersonalSign(a.c.GetAddress(), message))
}

func (a *ConnectAPIImpl) SignTypedData(ctx context.Context, typedData string) (string, error) {
	return a.sign(ctx, types.NewSignTypedDataV4(a.c.GetAddress(), typedData))
}

func (a *ConnectAPIImpl) Address(context.Context) (string, error) {
	return a.c.GetAddress(), nil
}

func (a *ConnectAPIImpl) Sessions(context.Context) ([]*types.Session, error) {
	return a.c.GetSessions(), nil
}

func (a *ConnectAPIImpl) Pairings(context.Context) ([]*types.Pairing, error) {
	return a.c.GetPairings(), nil
}

func (a *ConnectAPIImpl) SelectedChain(context.Context) (*types.ChainPreset, error) {
	return a.c.GetSelectedChain(), nil
}

func (a *ConnectAPIImpl) SelectChain(ctx context.Context, chain types.ChainID) error {
	return a.c.SelectChain(ctx, chain)
}

func (a *ConnectAPIImpl) ChainPresets(context.Context) ([]types.ChainPreset, error) {
	return a.c.ChainPresets(), nil
}

func (a *ConnectAPIImpl) AddChainPreset(_ context.Context, preset types.ChainPreset) error {
	if preset.IsZero() {
		return errors.New("chain preset without chain id")
	}
	a.c.AddChainPreset(preset)
	return nil
}

func (a *ConnectAPIImpl) Wallets(ctx context.Context) ([]types.Wallet, error) {
	return a.c.Wallets(ctx), nil
}

func (a *ConnectAPIImpl) RecentWallets(ctx context.Context) ([]types.Wallet, error) {
	return a.c.RecentWallets(ctx), nil
}

func (a *ConnectAPIImpl) LoadMoreWallets(ctx context.Context) (bool, error) {
	return a.c.LoadMoreWallets(ctx)
}
