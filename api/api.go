package api

import (
	"context"

	"github.com/ipfs-force-community/sophon-connect/state"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// ConnectInfo is what a caller needs to hand a started handshake to the user.
type ConnectInfo struct {
	Provider types.ProviderKind `json:"provider"`
	URI      string             `json:"uri"`
}

type IConnectAPI interface {
	Version(ctx context.Context) (string, error)
	State(ctx context.Context) (*state.State, error)

	Connect(ctx context.Context, provider types.ProviderKind, walletID string) (*ConnectInfo, error)
	AwaitConnect(ctx context.Context) (*types.Account, error)
	Disconnect(ctx context.Context) error
	Cleanup(ctx context.Context) error
	Ping(ctx context.Context) error
	HandleDeeplink(ctx context.Context, url string) (bool, error)
	LaunchCurrentWallet(ctx context.Context) error
	DismissToast(ctx context.Context) error
	Events(ctx context.Context) (<-chan types.Event, error)

	Request(ctx context.Context, req *types.Request) (*types.Response, error)
	PersonalSign(ctx context.Context, message string) (string, error)
	SignTypedData(ctx context.Context, typedData string) (string, error)

	Address(ctx context.Context) (string, error)
	Sessions(ctx context.Context) ([]*types.Session, error)
	Pairings(ctx context.Context) ([]*types.Pairing, error)

	SelectedChain(ctx context.Context) (*types.ChainPreset, error)
	SelectChain(ctx context.Context, chain types.ChainID) error
	ChainPresets(ctx context.Context) ([]types.ChainPreset, error)
	AddChainPreset(ctx context.Context, preset types.ChainPreset) error

	Wallets(ctx context.Context) ([]types.Wallet, error)
	RecentWallets(ctx context.Context) ([]types.Wallet, error)
	LoadMoreWallets(ctx context.Context) (bool, error)
}

// ConnectAPIStruct is filled either by PermissionProxy on the server or by a
// go-jsonrpc client.
type ConnectAPIStruct struct {
	Internal struct {
		Version func(ctx context.Context) (string, error)       `perm:"read"`
		State   func(ctx context.Context) (*state.State, error) `perm:"read"`

		Connect             func(ctx context.Context, provider types.ProviderKind, walletID string) (*ConnectInfo, error) `perm:"write"`
		AwaitConnect        func(ctx context.Context) (*types.Account, error)                                             `perm:"write"`
		Disconnect          func(ctx context.Context) error                                                               `perm:"write"`
		Cleanup             func(ctx context.Context) error                                                               `perm:"admin"`
		Ping                func(ctx context.Context) error                                                               `perm:"read"`
		HandleDeeplink      func(ctx context.Context, url string) (bool, error)                                           `perm:"write"`
		LaunchCurrentWallet func(ctx context.Context) error                                                               `perm:"write"`
		DismissToast        func(ctx context.Context) error                                                               `perm:"write"`
		Events              func(ctx context.Context) (<-chan types.Event, error)                                         `perm:"read"`

		Request       func(ctx context.Context, req *types.Request) (*types.Response, error) `perm:"sign"`
		PersonalSign  func(ctx context.Context, message string) (string, error)              `perm:"sign"`
		SignTypedData func(ctx context.Context, typedData string) (string, error)            `perm:"sign"`

		Address  func(ctx context.Context) (string, error)           `perm:"read"`
		Sessions func(ctx context.Context) ([]*types.Session, error) `perm:"read"`
		Pairings func(ctx context.Context) ([]*types.Pairing, error) `perm:"read"`

		SelectedChain  func(ctx context.Context) (*types.ChainPreset, error)     `perm:"read"`
		SelectChain    func(ctx context.Context, chain types.ChainID) error      `perm:"write"`
		ChainPresets   func(ctx context.Context) ([]types.ChainPreset, error)    `perm:"read"`
		AddChainPreset func(ctx context.Context, preset types.ChainPreset) error `perm:"admin"`

		Wallets         func(ctx context.Context) ([]types.Wallet, error) `perm:"read"`
		RecentWallets   func(ctx context.Context) ([]types.Wallet, error) `perm:"read"`
		LoadMoreWallets func(ctx context.Context) (bool, error)           `perm:"read"`
	}
}

var _ IConnectAPI = (*ConnectAPIStruct)(nil)

func (s *ConnectAPIStruct) Version(ctx context.Context) (string, error) {
	return s.Internal.Version(ctx)
}

func (s *ConnectAPIStruct) State(ctx context.Context) (*state.State, error) {
	return s.Internal.State(ctx)
}

func (s *ConnectAPIStruct) Connect(ctx context.Context, provider types.ProviderKind, walletID string) (*ConnectInfo, error) {
	return s.Internal.Connect(ctx, provider, walletID)
}

func (s *ConnectAPIStruct) AwaitConnect(ctx context.Context) (*types.Account, error) {
	return s.Internal.AwaitConnect(ctx)
}

func (s *ConnectAPIStruct) Disconnect(ctx context.Context) error {
	return s.Internal.Disconnect(ctx)
}

func (s *ConnectAPIStruct) Cleanup(ctx context.Context) error {
	return s.Internal.Cleanup(ctx)
}

func (s *ConnectAPIStruct) Ping(ctx context.Context) error {
	return s.Internal.Ping(ctx)
}

func (s *ConnectAPIStruct) HandleDeeplink(ctx context.Context, url string) (bool, error) {
	return s.Internal.HandleDeeplink(ctx, url)
}

func (s *ConnectAPIStruct) LaunchCurrentWallet(ctx context.Context) error {
	return s.Internal.LaunchCurrentWallet(ctx)
}

func (s *ConnectAPIStruct) DismissToast(ctx context.Context) error {
	return s.Internal.DismissToast(ctx)
}

func (s *ConnectAPIStruct) Events(ctx context.Context) (<-chan types.Event, error) {
	return s.Internal.Events(ctx)
}

func (s *ConnectAPIStruct) Request(ctx context.Context, req *types.Request) (*types.Response, error) {
	return s.Internal.Request(ctx, req)
}

func (s *ConnectAPIStruct) PersonalSign(ctx context.Context, message string) (string, error) {
	return s.Internal.PersonalSign(ctx, message)
}

func (s *ConnectAPIStruct) SignTypedData(ctx context.Context, typedData string) (string, error) {
	return s.Internal.SignTypedData(ctx, typedData)
}

func (s *ConnectAPIStruct) Address(ctx context.Context) (string, error) {
	return s.Internal.Address(ctx)
}

func (s *ConnectAPIStruct) Sessions(ctx context.Context) ([]*types.Session, error) {
	return s.Internal.Sessions(ctx)
}

func (s *ConnectAPIStruct) Pairings(ctx context.Context) ([]*types.Pairing, error) {
	return s.Internal.Pairings(ctx)
}

func (s *ConnectAPIStruct) SelectedChain(ctx context.Context) (*types.ChainPreset, error) {
	return s.Internal.SelectedChain(ctx)
}

func (s *ConnectAPIStruct) SelectChain(ctx context.Context, chain types.ChainID) error {
	return s.Internal.SelectChain(ctx, chain)
}

func (s *ConnectAPIStruct) ChainPresets(ctx context.Context) ([]types.ChainPreset, error) {
	return s.Internal.ChainPresets(ctx)
}

func (s *ConnectAPIStruct) AddChainPreset(ctx context.Context, preset types.ChainPreset) error {
	return s.Internal.AddChainPreset(ctx, preset)
}

func (s *ConnectAPIStruct) Wallets(ctx context.Context) ([]types.Wallet, error) {
	return s.Internal.Wallets(ctx)
}

func (s *ConnectAPIStruct) RecentWallets(ctx context.Context) ([]types.Wallet, error) {
	return s.Internal.RecentWallets(ctx)
}

func (s *ConnectAPIStruct) LoadMoreWallets(ctx context.Context) (bool, error) {
	return s.Internal.LoadMoreWallets(ctx)
}
