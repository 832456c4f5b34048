// Package state is the single source of truth for which transport is connected and with
// which account. Writers are serialized; readers load an immutable snapshot.
package state

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("state")

// State is an immutable snapshot. Never modify a value returned by Store.Snapshot.
type State struct {
	Provider      types.ProviderKind `json:"provider"`
	Account       *types.Account     `json:"account,omitempty"`
	Session       *types.Session     `json:"session,omitempty"`
	SelectedChain *types.ChainPreset `json:"selectedChain,omitempty"`

	Connecting     bool               `json:"connecting"`
	ConnectingWith types.ProviderKind `json:"connectingWith"`
	Toast          *types.Toast       `json:"toast,omitempty"`
}

func (s *State) Connected() bool {
	return s.Provider != types.ProviderNone && s.Account != nil
}

// AccountPersister is the slice of storage.AccountStore the store writes through.
type AccountPersister interface {
	Save(ctx context.Context, provider types.ProviderKind, account *types.Account) error
	Clear(ctx context.Context) error
}

type Store struct {
	writeLk  sync.Mutex
	snapshot atomic.Value
	registry *types.ChainRegistry
	persist  AccountPersister
}

func NewStore(registry *types.ChainRegistry, persist AccountPersister) *Store {
	s := &Store{
		registry: registry,
		persist:  persist,
	}
	s.snapshot.Store(&State{})
	return s
}

func (s *Store) Snapshot() *State {
	return s.snapshot.Load().(*State)
}

func (s *Store) Registry() *types.ChainRegistry {
	return s.registry
}

// mutate runs fn on a copy of the current state and publishes the result.
func (s *Store) mutate(fn func(next *State) error) (*State, error) {
	s.writeLk.Lock()
	defer s.writeLk.Unlock()

	cur := s.Snapshot()
	next := *cur
	if err := fn(&next); err != nil {
		return cur, err
	}
	s.snapshot.Store(&next)
	return &next, nil
}

// setAccount keeps selectedChain in step with account and writes the hint through.
func (s *Store) setAccount(ctx context.Context, next *State, account *types.Account) {
	next.Account = account
	if account == nil {
		next.SelectedChain = nil
		if err := s.persist.Clear(ctx); err != nil {
			log.Warnf("clear account record: %v", err)
		}
		return
	}
	next.SelectedChain = s.registry.Lookup(account.Chain)
	if err := s.persist.Save(ctx, next.Provider, account); err != nil {
		log.Warnf("save account record: %v", err)
	}
}

// BeginConnect marks a handshake in flight. A second call before EndConnect or
// SetConnected fails with ErrAlreadyConnecting.
func (s *Store) BeginConnect(kind types.ProviderKind) error {
	_, err := s.mutate(func(next *State) error {
		if next.Connecting {
			return types.ErrAlreadyConnecting
		}
		next.Connecting = true
		next.ConnectingWith = kind
		return nil
	})
	return err
}

func (s *Store) EndConnect() {
	_, _ = s.mutate(func(next *State) error {
		next.Connecting = false
		next.ConnectingWith = types.ProviderNone
		return nil
	})
}

// SetConnected replaces the whole connection tuple after a successful handshake.
func (s *Store) SetConnected(ctx context.Context, kind types.ProviderKind, account *types.Account, session *types.Session) (*State, error) {
	return s.mutate(func(next *State) error {
		if kind == types.ProviderNone || account == nil {
			return types.ErrNoActiveSession
		}
		next.Provider = kind
		next.Session = session
		next.Connecting = false
		next.ConnectingWith = types.ProviderNone
		s.setAccount(ctx, next, account)
		return nil
	})
}

// AdoptConnected installs a connection nobody on this instance is waiting for, such as
// a handshake answered after a relaunch. A connect started meanwhile keeps its flag.
func (s *Store) AdoptConnected(ctx context.Context, kind types.ProviderKind, account *types.Account, session *types.Session) (*State, error) {
	return s.mutate(func(next *State) error {
		if kind == types.ProviderNone || account == nil {
			return types.ErrNoActiveSession
		}
		next.Provider = kind
		next.Session = session
		s.setAccount(ctx, next, account)
		return nil
	})
}

// Restore applies a persisted hint at startup. It never overrides a live connection.
func (s *Store) Restore(ctx context.Context, kind types.ProviderKind, account *types.Account, session *types.Session) (*State, error) {
	return s.mutate(func(next *State) error {
		if next.Provider != types.ProviderNone {
			return nil
		}
		if kind == types.ProviderNone || account == nil {
			return types.ErrNoActiveSession
		}
		next.Provider = kind
		next.Session = session
		s.setAccount(ctx, next, account)
		return nil
	})
}

// UpdateAccount swaps the account of the current connection, e.g. on accountsChanged.
func (s *Store) UpdateAccount(ctx context.Context, account *types.Account) (*State, error) {
	return s.mutate(func(next *State) error {
		if next.Provider == types.ProviderNone {
			return types.ErrNoActiveSession
		}
		if account == nil {
			next.Provider = types.ProviderNone
			next.Session = nil
		}
		s.setAccount(ctx, next, account)
		return nil
	})
}

// UpdateSession replaces the pairing session, refreshing the account from its first entry.
func (s *Store) UpdateSession(ctx context.Context, session *types.Session) (*State, error) {
	return s.mutate(func(next *State) error {
		if next.Provider != types.ProviderPairingSession {
			return types.ErrNoActiveSession
		}
		next.Session = session
		if acc := session.FirstAccount(); acc != nil && !acc.Equal(next.Account) {
			s.setAccount(ctx, next, acc)
		}
		return nil
	})
}

// SelectChain moves the active account onto a registered chain. Without an account
// only the selection changes.
func (s *Store) SelectChain(ctx context.Context, chain types.ChainID) (*State, error) {
	return s.mutate(func(next *State) error {
		preset := s.registry.Lookup(chain)
		if preset == nil {
			return errors.Wrapf(types.ErrUnknownChain, "chain %s", chain)
		}
		if next.Account == nil {
			next.SelectedChain = preset
			return nil
		}
		s.setAccount(ctx, next, next.Account.WithChain(chain))
		return nil
	})
}

// Clear drops the connection tuple and the persisted hint.
func (s *Store) Clear(ctx context.Context) *State {
	st, _ := s.mutate(func(next *State) error {
		next.Provider = types.ProviderNone
		next.Session = nil
		next.Connecting = false
		next.ConnectingWith = types.ProviderNone
		s.setAccount(ctx, next, nil)
		return nil
	})
	return st
}

// ShowToast replaces any visible toast.
func (s *Store) ShowToast(toast *types.Toast) {
	_, _ = s.mutate(func(next *State) error {
		next.Toast = toast
		return nil
	})
}

func (s *Store) DismissToast() {
	s.ShowToast(nil)
}
