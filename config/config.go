package config

import (
	"os"

	"github.com/ipfs-force-community/metrics"
	"github.com/pelletier/go-toml"

	"github.com/ipfs-force-community/sophon-connect/types"
)

const (
	// Configuration file name
	ConfigFile = "config.toml"
)

type Config struct {
	Project    *ProjectConfig
	Namespaces []*NamespaceConfig
	Wallets    *WalletsConfig
	Providers  *ProvidersConfig
	Request    *types.RequestConfig
	API        *APIConfig
	Metrics    *metrics.MetricsConfig
	Trace      *metrics.TraceConfig
}

// ProjectConfig is the dapp identity shown to wallets.
type ProjectConfig struct {
	ProjectID         string
	Name              string
	Description       string
	URL               string
	Icons             []string
	NativeRedirect    string
	UniversalRedirect string
}

func (p *ProjectConfig) Metadata() types.AppMetadata {
	return types.AppMetadata{
		Name:        p.Name,
		Description: p.Description,
		URL:         p.URL,
		Icons:       append([]string{}, p.Icons...),
		Redirect: types.Redirect{
			Native:    p.NativeRedirect,
			Universal: p.UniversalRedirect,
		},
	}
}

// NamespaceConfig is one namespace proposed to pairing wallets.
type NamespaceConfig struct {
	Name    string
	Chains  []string
	Methods []string
	Events  []string
}

type WalletsConfig struct {
	RecommendedIDs []string
	ExcludedIDs    []string
	// QueryableSchemes may be probed; InstalledSchemes are the ones the host reports
	// as present.
	QueryableSchemes []string
	InstalledSchemes []string
	PageSize         int
	Featured         int
	Custom           []*CustomWallet
}

type CustomWallet struct {
	ID         string
	Name       string
	Homepage   string
	ImageID    string
	MobileLink string
	Order      int
}

func (w *CustomWallet) Wallet() types.Wallet {
	return types.Wallet{
		ID:         w.ID,
		Name:       w.Name,
		Homepage:   w.Homepage,
		ImageID:    w.ImageID,
		MobileLink: w.MobileLink,
		Order:      w.Order,
	}
}

type ProvidersConfig struct {
	RelayURL string

	EnableRedirectHandshake bool
	RedirectWalletURL       string
	RedirectInstallScheme   string

	EnableDeepLink         bool
	DeepLinkAWalletURL     string
	DeepLinkACallback      string
	DeepLinkAInstallScheme string
	// DeepLinkAChain is the cluster every deep-link A account is pinned to.
	DeepLinkAChain         string
	DeepLinkBWalletURL     string
	DeepLinkBCallback      string
	DeepLinkBInstallScheme string
}

type APIConfig struct {
	ListenAddress string
}

func (c *Config) NamespaceMap() map[string]types.Namespace {
	out := make(map[string]types.Namespace, len(c.Namespaces))
	for _, ns := range c.Namespaces {
		out[ns.Name] = types.Namespace{
			Chains:  append([]string{}, ns.Chains...),
			Methods: append([]string{}, ns.Methods...),
			Events:  append([]string{}, ns.Events...),
		}
	}
	return out
}

func (c *Config) CustomWallets() []types.Wallet {
	if c.Wallets == nil {
		return nil
	}
	out := make([]types.Wallet, 0, len(c.Wallets.Custom))
	for _, w := range c.Wallets.Custom {
		out = append(out, w.Wallet())
	}
	return out
}

func DefaultConfig() *Config {
	cfg := &Config{
		Project: &ProjectConfig{
			Name:              "sophon-connect",
			Description:       "wallet connection daemon",
			URL:               "https://sophon.example",
			Icons:             []string{"https://sophon.example/icon.png"},
			NativeRedirect:    "sophon://",
			UniversalRedirect: "http://127.0.0.1:45133/callback",
		},
		Namespaces: []*NamespaceConfig{
			{
				Name:    types.NamespaceEIP155,
				Chains:  []string{"eip155:1"},
				Methods: []string{types.MethodPersonalSign, types.MethodSignTypedDataV4, types.MethodSendTransaction},
				Events:  []string{"chainChanged", "accountsChanged"},
			},
		},
		Wallets: &WalletsConfig{
			QueryableSchemes: []string{"cbwallet", "phantom", "metamask"},
			PageSize:         40,
			Featured:         4,
		},
		Providers: &ProvidersConfig{
			RelayURL:                "wss://relay.walletconnect.com",
			EnableRedirectHandshake: true,
			RedirectWalletURL:       "https://wallet.coinbase.com/wsegue",
			RedirectInstallScheme:   "cbwallet",
			EnableDeepLink:          true,
			DeepLinkAWalletURL:      "phantom://v1",
			DeepLinkACallback:       "sophon-phantom://callback",
			DeepLinkAInstallScheme:  "phantom",
			DeepLinkAChain:          types.SolanaMainnet.String(),
			DeepLinkBWalletURL:      "metamask://connect",
			DeepLinkBCallback:       "sophon://mmsdk",
			DeepLinkBInstallScheme:  "metamask",
		},
		Request: types.DefaultRequestConfig(),
		API:     &APIConfig{ListenAddress: "/ip4/127.0.0.1/tcp/45133"},
		Metrics: metrics.DefaultMetricsConfig(),
		Trace:   metrics.DefaultTraceConfig(),
	}
	namespace := "connect"
	cfg.Metrics.Exporter.Prometheus.Namespace = namespace
	cfg.Metrics.Exporter.Graphite.Namespace = namespace
	cfg.Metrics.Exporter.Prometheus.EndPoint = "/ip4/0.0.0.0/tcp/4570"
	cfg.Metrics.Exporter.Graphite.Port = 4570
	cfg.Trace.ServerName = "sophon-connect"
	cfg.Trace.JaegerEndpoint = ""

	return cfg
}

func ReadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	err = toml.Unmarshal(data, cfg)

	return cfg, err
}

func WriteConfig(filePath string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}
