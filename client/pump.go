package client

import (
	"github.com/tidwall/gjson"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/state"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// Session event names that move the active account.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

func (c *Client) pump(a provider.Adapter) {
	for {
		select {
		case evt := <-a.Events():
			c.handleEvent(a, evt)
		case <-c.ctx.Done():
			return
		}
	}
}

// handleEvent applies what a transport reports without a waiting caller and republishes it.
func (c *Client) handleEvent(a provider.Adapter, evt types.Event) {
	ctx := c.ctx
	snap := c.store.Snapshot()

	switch evt.Kind {
	case types.EventConnected:
		// a handshake answered after the host app was relaunched
		if snap.Connected() {
			log.Warnf("ignore late %s connect, %s is active", evt.Provider, snap.Provider)
			return
		}
		if _, err := c.store.AdoptConnected(ctx, evt.Provider, evt.Account, evt.Session); err != nil {
			c.reportError(err)
			return
		}
		c.markUsed(a, "")
	case types.EventError:
		if evt.Error != nil {
			c.reportError(evt.Error)
		}
	case types.EventSessionDeleted:
		if onTopic(snap, evt.Topic) {
			c.hub.publish(evt)
			c.store.Clear(ctx)
			c.hub.publish(types.Event{Kind: types.EventDisconnected, Provider: snap.Provider, Account: snap.Account})
			return
		}
	case types.EventSessionUpdated:
		if onTopic(snap, evt.Topic) && evt.Session != nil {
			next, err := c.store.UpdateSession(ctx, evt.Session)
			if err != nil {
				log.Warnf("update session %s: %v", evt.Topic, err)
			} else if !next.Account.Equal(snap.Account) {
				defer c.hub.publish(types.Event{Kind: types.EventAccountChanged, Provider: next.Provider, Account: next.Account, Session: next.Session})
			}
		}
	case types.EventSessionEvent:
		if onTopic(snap, evt.Topic) {
			if account := accountFromEvent(snap.Account, evt); account != nil && !account.Equal(snap.Account) {
				next, err := c.store.UpdateAccount(ctx, account)
				if err != nil {
					log.Warnf("apply %s: %v", evt.Name, err)
				} else {
					defer c.hub.publish(types.Event{Kind: types.EventAccountChanged, Provider: next.Provider, Account: next.Account, Session: next.Session})
				}
			}
		}
	}
	c.hub.publish(evt)
}

func onTopic(snap *state.State, topic string) bool {
	return snap.Provider == types.ProviderPairingSession && snap.Session != nil && snap.Session.Topic == topic
}

// accountFromEvent derives the account an accountsChanged or chainChanged event moves to.
// accountsChanged carries CAIP-10 ids or bare addresses; chainChanged carries a CAIP-2 id,
// a hex reference or a decimal reference.
func accountFromEvent(cur *types.Account, evt types.Event) *types.Account {
	if cur == nil {
		return nil
	}
	data := gjson.ParseBytes(evt.Data)
	switch evt.Name {
	case EventAccountsChanged:
		first := data
		if data.IsArray() {
			first = data.Get("0")
		}
		raw := first.String()
		if raw == "" {
			return nil
		}
		if account, err := types.ParseCAIP10(raw); err == nil {
			return account
		}
		chain := cur.Chain
		if evt.ChainID != "" {
			if parsed, err := types.ParseChainID(evt.ChainID); err == nil {
				chain = parsed
			}
		}
		return types.NewAccount(raw, chain)
	case EventChainChanged:
		raw := data.String()
		if raw == "" {
			return nil
		}
		if chain, err := types.ParseChainID(raw); err == nil {
			return cur.WithChain(chain)
		}
		reference, err := ethutil.ChainReferenceFromHex(raw)
		if err != nil {
			log.Warnf("ignore chainChanged %q: %v", raw, err)
			return nil
		}
		return cur.WithChain(types.NewChainID(cur.Chain.Namespace, reference))
	}
	return nil
}
