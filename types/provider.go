package types

import (
	"encoding/json"
	"fmt"
)

// ProviderKind identifies the wallet transport family that owns the current connection.
type ProviderKind int

const (
	ProviderNone ProviderKind = iota
	ProviderPairingSession
	ProviderRedirectHandshake
	ProviderDeepLinkA
	ProviderDeepLinkB
)

var providerNames = map[ProviderKind]string{
	ProviderNone:              "none",
	ProviderPairingSession:    "pairing",
	ProviderRedirectHandshake: "redirect",
	ProviderDeepLinkA:         "deeplink-a",
	ProviderDeepLinkB:         "deeplink-b",
}

// AllProviders lists the connectable kinds in dispatch order.
var AllProviders = []ProviderKind{
	ProviderPairingSession,
	ProviderRedirectHandshake,
	ProviderDeepLinkA,
	ProviderDeepLinkB,
}

func (k ProviderKind) String() string {
	if name, ok := providerNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

func ParseProviderKind(s string) (ProviderKind, error) {
	for kind, name := range providerNames {
		if name == s {
			return kind, nil
		}
	}
	return ProviderNone, fmt.Errorf("unknown provider kind %q", s)
}

func (k ProviderKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ProviderKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseProviderKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
