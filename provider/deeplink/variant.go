package deeplink

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// Variant captures what differs between the deep-link wallets: how inbound URLs are
// recognised, which methods travel and how the returned account maps onto a chain.
type Variant struct {
	Kind   types.ProviderKind
	wallet types.Wallet

	// actions maps a request method to the wallet path it is opened on.
	actions map[string]string

	matches       func(callback, u *url.URL) bool
	decodeAccount func(v Variant, q url.Values) (*types.Account, error)

	// Chain pins every connection to one chain, used by wallets that report none.
	Chain types.ChainID
}

// Wallet returns the built-in catalog entry.
func (v Variant) Wallet() types.Wallet {
	return v.wallet
}

// Supports reports whether method can be carried.
func (v Variant) Supports(method string) bool {
	_, ok := v.actions[method]
	return ok
}

// VariantA signs messages for a single non EVM cluster. Replies are recognised by the
// callback scheme.
func VariantA(chain types.ChainID) Variant {
	if chain.IsZero() {
		chain = types.SolanaMainnet
	}
	return Variant{
		Kind: types.ProviderDeepLinkA,
		wallet: types.Wallet{
			ID:       types.PhantomWalletID,
			Name:     "Phantom",
			Homepage: "https://phantom.app/",
			ImageID:  "c38443bb-b3c1-4697-e569-408de3fcc100",
			Order:    1,
			AppStore: "https://apps.apple.com/app/phantom-solana-wallet/1598432977",
			Provider: types.ProviderDeepLinkA,
		},
		actions: map[string]string{
			types.MethodPersonalSign:      "signMessage",
			types.MethodSolanaSignMessage: "signMessage",
		},
		matches: func(callback, u *url.URL) bool {
			return callback.Scheme != "" && strings.EqualFold(u.Scheme, callback.Scheme)
		},
		decodeAccount: func(v Variant, q url.Values) (*types.Account, error) {
			address := q.Get(ParamAddress)
			if address == "" {
				return nil, errors.Wrap(types.ErrMalformedResponse, "missing address")
			}
			return types.NewAccount(address, v.Chain), nil
		},
		Chain: chain,
	}
}

// HostB is the host every variant B reply is addressed to.
const HostB = "mmsdk"

// VariantB signs messages and typed data on EVM chains. Replies are recognised by host and
// carry the chain id as hex.
func VariantB() Variant {
	return Variant{
		Kind: types.ProviderDeepLinkB,
		wallet: types.Wallet{
			ID:       types.MetaMaskSDKWalletID,
			Name:     "MetaMask SDK",
			ImageID:  "018b2d52-10e9-4158-1fde-a5d5bac5aa00",
			Order:    3,
			AppStore: "https://apps.apple.com/us/app/metamask-blockchain-wallet/id1438144202",
			Provider: types.ProviderDeepLinkB,
		},
		actions: map[string]string{
			types.MethodPersonalSign:    "personal_sign",
			types.MethodSignTypedDataV4: "eth_signTypedData_v4",
		},
		matches: func(_, u *url.URL) bool {
			return strings.EqualFold(u.Host, HostB)
		},
		decodeAccount: func(_ Variant, q url.Values) (*types.Account, error) {
			address := q.Get(ParamAccount)
			if !ethutil.IsAddress(address) {
				return nil, errors.Wrapf(types.ErrMalformedResponse, "invalid account %q", address)
			}
			reference, err := ethutil.ChainReferenceFromHex(q.Get(ParamChainID))
			if err != nil {
				return nil, errors.Wrap(types.ErrMalformedResponse, err.Error())
			}
			return types.NewAccount(address, types.NewChainID(types.NamespaceEIP155, reference)), nil
		},
	}
}
