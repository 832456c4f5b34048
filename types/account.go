package types

import (
	"fmt"
	"strings"
)

// Account is the connected address on a chain. It is replaced wholesale on every
// reconnect or chain switch, never mutated.
type Account struct {
	Address string  `json:"address"`
	Chain   ChainID `json:"chain"`
}

func NewAccount(address string, chain ChainID) *Account {
	return &Account{Address: address, Chain: chain}
}

// ParseCAIP10 parses "namespace:reference:address".
func ParseCAIP10(s string) (*Account, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("invalid account id %q", s)
	}
	return &Account{Address: parts[2], Chain: ChainID{Namespace: parts[0], Reference: parts[1]}}, nil
}

func (a *Account) CAIP10() string {
	return a.Chain.String() + ":" + a.Address
}

// WithChain returns a new account for the same address on chain.
func (a *Account) WithChain(chain ChainID) *Account {
	return &Account{Address: a.Address, Chain: chain}
}

func (a *Account) Equal(o *Account) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.Address == o.Address && a.Chain == o.Chain
}
