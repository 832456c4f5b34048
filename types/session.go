package types

import (
	"sort"
	"time"
)

// AppMetadata describes a dapp or wallet peer.
type AppMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Redirect    Redirect `json:"redirect"`
}

type Redirect struct {
	Native    string `json:"native,omitempty"`
	Universal string `json:"universal,omitempty"`
}

// Namespace is the negotiated (or proposed) capability set for one chain namespace.
type Namespace struct {
	Chains   []string `json:"chains,omitempty"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts,omitempty"`
}

// Session is a settled pairing session. Only the pairing transport produces one.
type Session struct {
	Topic        string               `json:"topic"`
	PairingTopic string               `json:"pairingTopic"`
	Peer         AppMetadata          `json:"peer"`
	Namespaces   map[string]Namespace `json:"namespaces"`
	Expiry       time.Time            `json:"expiry"`
}

// Accounts lists the CAIP-10 accounts over all namespaces, eip155 first.
func (s *Session) Accounts() []*Account {
	var out []*Account
	for _, ns := range sortedKeys(s.Namespaces) {
		for _, id := range s.Namespaces[ns].Accounts {
			acc, err := ParseCAIP10(id)
			if err != nil {
				continue
			}
			out = append(out, acc)
		}
	}
	return out
}

// FirstAccount is the account the client adopts after settlement.
func (s *Session) FirstAccount() *Account {
	accounts := s.Accounts()
	if len(accounts) == 0 {
		return nil
	}
	return accounts[0]
}

func (s *Session) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && now.After(s.Expiry)
}

// Pairing is the pre-session channel created by a pairing URI.
type Pairing struct {
	Topic  string      `json:"topic"`
	Peer   AppMetadata `json:"peer"`
	Active bool        `json:"active"`
	Expiry time.Time   `json:"expiry"`
}

func sortedKeys(m map[string]Namespace) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessNamespace(keys[i], keys[j]) })
	return keys
}

func lessNamespace(a, b string) bool {
	if a == NamespaceEIP155 {
		return b != NamespaceEIP155
	}
	if b == NamespaceEIP155 {
		return false
	}
	return a < b
}
