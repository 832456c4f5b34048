// Package provider defines the capability surface every wallet transport implements and
// the pieces they share: handshakes, the pending request table and request translation.
package provider

import (
	"context"
	"net/url"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("provider")

// Target is the connection a request is sent over.
type Target struct {
	Account *types.Account
	Session *types.Session
}

type Adapter interface {
	Kind() types.ProviderKind

	// Wallet is the catalog entry that routes to this adapter.
	Wallet() types.Wallet

	// IsInstalled answers without touching the network.
	IsInstalled() bool

	// Connect starts a handshake and returns immediately. The handshake resolves exactly once.
	Connect(ctx context.Context, walletID string) (*Handshake, error)

	// Request blocks until the wallet answers, the adapter times out or ctx is done.
	Request(ctx context.Context, target Target, req *types.Request) (*types.Response, error)

	Disconnect(ctx context.Context, target Target) error

	// Matches reports whether u carries this adapter's inbound signature.
	Matches(u *url.URL) bool

	// HandleURL consumes an inbound URL. It returns false when the URL is not for this adapter.
	HandleURL(ctx context.Context, u *url.URL) (bool, error)

	// Events delivers outcomes that have no waiting caller, e.g. a reply that arrives after
	// a restart.
	Events() <-chan types.Event

	// Restore seeds the adapter from a persisted hint. It never performs a handshake.
	Restore(ctx context.Context, account *types.Account) error
}

// SessionProvider is implemented by transports that keep several named sessions.
type SessionProvider interface {
	Adapter

	Sessions() []*types.Session
	Pairings() []*types.Pairing
	Ping(ctx context.Context, topic string) error
	// Cleanup deletes every pairing and session.
	Cleanup(ctx context.Context) error
}

// Emitter is the buffered event channel adapters publish on.
type Emitter struct {
	kind types.ProviderKind
	ch   chan types.Event
}

func NewEmitter(kind types.ProviderKind, size int) *Emitter {
	return &Emitter{kind: kind, ch: make(chan types.Event, size)}
}

// Emit never blocks. Events are dropped when nobody drains the channel.
func (e *Emitter) Emit(evt types.Event) {
	evt.Provider = e.kind
	select {
	case e.ch <- evt:
	default:
		log.Warnf("%s event channel full, drop %s event", e.kind, evt.Kind)
	}
}

func (e *Emitter) Events() <-chan types.Event {
	return e.ch
}
