package types

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ChainID is a CAIP-2 chain identifier, e.g. eip155:1.
type ChainID struct {
	Namespace string `json:"namespace"`
	Reference string `json:"reference"`
}

func NewChainID(namespace, reference string) ChainID {
	return ChainID{Namespace: namespace, Reference: reference}
}

// ParseChainID parses "namespace:reference".
func ParseChainID(s string) (ChainID, error) {
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return ChainID{}, fmt.Errorf("invalid chain id %q", s)
	}
	return ChainID{Namespace: s[:idx], Reference: s[idx+1:]}, nil
}

func (c ChainID) String() string {
	return c.Namespace + ":" + c.Reference
}

func (c ChainID) IsZero() bool {
	return c.Namespace == "" && c.Reference == ""
}

// ChainPreset is a chain id decorated with display metadata.
type ChainPreset struct {
	ChainID
	Name        string `json:"name"`
	Token       string `json:"token"`
	RPCURL      string `json:"rpcUrl"`
	ExplorerURL string `json:"explorerUrl"`
	ImageID     string `json:"imageId"`
}

// ChainRegistry is an append-only set of chain presets. Lookups read an immutable
// snapshot and never take the lock; only Add serializes.
type ChainRegistry struct {
	appendLk sync.Mutex
	presets  atomic.Pointer[[]ChainPreset]
}

func NewChainRegistry(presets ...ChainPreset) *ChainRegistry {
	r := &ChainRegistry{}
	list := append([]ChainPreset{}, presets...)
	r.presets.Store(&list)
	return r
}

// NewDefaultChainRegistry returns a registry seeded with DefaultChainPresets.
func NewDefaultChainRegistry() *ChainRegistry {
	return NewChainRegistry(DefaultChainPresets()...)
}

func (r *ChainRegistry) Add(preset ChainPreset) {
	r.appendLk.Lock()
	defer r.appendLk.Unlock()

	cur := *r.presets.Load()
	next := make([]ChainPreset, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, preset)
	r.presets.Store(&next)
}

// Lookup returns the first preset registered for id. A miss yields nil, never a fallback.
func (r *ChainRegistry) Lookup(id ChainID) *ChainPreset {
	for _, preset := range *r.presets.Load() {
		if preset.Namespace == id.Namespace && preset.Reference == id.Reference {
			p := preset
			return &p
		}
	}
	return nil
}

func (r *ChainRegistry) All() []ChainPreset {
	cur := *r.presets.Load()
	return append([]ChainPreset{}, cur...)
}

// Namespace returns every preset of the given namespace in registration order.
func (r *ChainRegistry) Namespace(ns string) []ChainPreset {
	var out []ChainPreset
	for _, preset := range *r.presets.Load() {
		if preset.Namespace == ns {
			out = append(out, preset)
		}
	}
	return out
}

const (
	NamespaceEIP155 = "eip155"
	NamespaceSolana = "solana"
)

var SolanaMainnet = ChainID{Namespace: NamespaceSolana, Reference: "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"}

func DefaultChainPresets() []ChainPreset {
	return []ChainPreset{
		{ChainID: NewChainID(NamespaceEIP155, "1"), Name: "Ethereum", Token: "ETH", RPCURL: "https://cloudflare-eth.com", ExplorerURL: "https://etherscan.io", ImageID: "692ed6ba-e569-459a-556a-776476829e00"},
		{ChainID: NewChainID(NamespaceEIP155, "42161"), Name: "Arbitrum", Token: "ETH", RPCURL: "https://arb1.arbitrum.io/rpc", ExplorerURL: "https://arbiscan.io", ImageID: "600a9a04-c1b9-42ca-6785-9b4b6ff85200"},
		{ChainID: NewChainID(NamespaceEIP155, "43114"), Name: "Avalanche", Token: "AVAX", RPCURL: "https://api.avax.network/ext/bc/C/rpc", ExplorerURL: "https://snowtrace.io", ImageID: "30c46e53-e989-45fb-4549-be3bd4eb3b00"},
		{ChainID: NewChainID(NamespaceEIP155, "56"), Name: "Binance Smart Chain", Token: "BNB", RPCURL: "https://rpc.ankr.com/bsc", ExplorerURL: "https://bscscan.com", ImageID: "93564157-2e8e-4ce7-81df-b264dbee9b00"},
		{ChainID: NewChainID(NamespaceEIP155, "250"), Name: "Fantom", Token: "FTM", RPCURL: "https://rpc.ftm.tools", ExplorerURL: "https://ftmscan.com", ImageID: "06b26297-fe0c-4733-5d6b-ffa5498aac00"},
		{ChainID: NewChainID(NamespaceEIP155, "10"), Name: "Optimism", Token: "ETH", RPCURL: "https://mainnet.optimism.io", ExplorerURL: "https://optimistic.etherscan.io", ImageID: "ab9c186a-c52f-464b-2906-ca59d760a400"},
		{ChainID: NewChainID(NamespaceEIP155, "137"), Name: "Polygon", Token: "MATIC", RPCURL: "https://polygon-rpc.com", ExplorerURL: "https://polygonscan.com", ImageID: "41d04d42-da3b-4453-8506-668cc0727900"},
		{ChainID: NewChainID(NamespaceEIP155, "100"), Name: "Gnosis", Token: "xDAI", RPCURL: "https://rpc.gnosischain.com", ExplorerURL: "https://gnosis.blockscout.com", ImageID: "02b53f6a-e3d4-479e-1cb4-21178987d100"},
		{ChainID: NewChainID(NamespaceEIP155, "8453"), Name: "Base", Token: "ETH", RPCURL: "https://mainnet.base.org", ExplorerURL: "https://basescan.org", ImageID: "7289c336-3981-4081-c5f4-efc26ac64a00"},
		{ChainID: SolanaMainnet, Name: "Solana", Token: "SOL", RPCURL: "https://api.mainnet-beta.solana.com", ExplorerURL: "https://solscan.io", ImageID: "a1b58899-f671-4276-6a5e-56ca5bd59700"},
	}
}
