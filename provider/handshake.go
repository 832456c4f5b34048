package provider

import (
	"context"
	"sync"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// Outcome is the terminal result of a handshake.
type Outcome struct {
	Account *types.Account
	Session *types.Session
	Err     error
}

// Handshake is an in-flight connect. URI is the pairing URI or the URL handed to the
// wallet app.
type Handshake struct {
	URI string

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func NewHandshake(uri string) *Handshake {
	return &Handshake{URI: uri, done: make(chan struct{})}
}

// Resolve records the outcome. Only the first call has any effect; it reports whether
// this call won.
func (h *Handshake) Resolve(out Outcome) bool {
	won := false
	h.once.Do(func() {
		h.outcome = out
		close(h.done)
		won = true
	})
	return won
}

func (h *Handshake) Succeed(account *types.Account, session *types.Session) bool {
	return h.Resolve(Outcome{Account: account, Session: session})
}

func (h *Handshake) Fail(err error) bool {
	return h.Resolve(Outcome{Err: err})
}

func (h *Handshake) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handshake resolves. A done ctx abandons the wait but leaves
// the handshake running.
func (h *Handshake) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		if h.outcome.Err != nil {
			return h.outcome, h.outcome.Err
		}
		if h.outcome.Account == nil {
			return h.outcome, types.ErrMalformedResponse
		}
		return h.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
