package client

import (
	"github.com/ipfs/go-datastore"

	"github.com/ipfs-force-community/sophon-connect/catalog"
	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/provider/pairing"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// ErrorHandler receives every failure the client surfaces, after it is logged.
type ErrorHandler func(err error)

type options struct {
	onError  ErrorHandler
	crypto   ethutil.CryptoProvider
	opener   platform.Opener
	probe    platform.InstallProbe
	ds       datastore.Batching
	relay    pairing.Relay
	fetcher  catalog.Fetcher
	registry *types.ChainRegistry
}

type Option func(*options)

func WithErrorHandler(fn ErrorHandler) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithCryptoProvider replaces the signature verifier used by the pairing transport.
func WithCryptoProvider(crypto ethutil.CryptoProvider) Option {
	return func(o *options) {
		o.crypto = crypto
	}
}

func WithOpener(opener platform.Opener) Option {
	return func(o *options) {
		o.opener = opener
	}
}

func WithInstallProbe(probe platform.InstallProbe) Option {
	return func(o *options) {
		o.probe = probe
	}
}

// WithDatastore sets the backing store for accounts, sessions, pending ids and recent
// wallets. Defaults to memory.
func WithDatastore(ds datastore.Batching) Option {
	return func(o *options) {
		o.ds = ds
	}
}

// WithRelay skips dialing the websocket relay.
func WithRelay(relay pairing.Relay) Option {
	return func(o *options) {
		o.relay = relay
	}
}

func WithFetcher(fetcher catalog.Fetcher) Option {
	return func(o *options) {
		o.fetcher = fetcher
	}
}

func WithChainRegistry(registry *types.ChainRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}
