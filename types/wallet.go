package types

import "time"

// Catalog ids of the wallets backed by a dedicated transport.
const (
	MetaMaskWalletID    = "c57ca95b47569778a828d19178114f4db188b89b763c899ba0be274e97267d96"
	MetaMaskSDKWalletID = MetaMaskWalletID + "1"
	CoinbaseWalletID    = "fd20dc426fb37566d803205b19bbc1d4096b248ac04548e3cfb6b3a38bd033aa"
	PhantomWalletID     = "a797aa35c0fadbfc1a53e7f675162ed5226968b44a19ee3d24385c64d1d3c393"
)

// Wallet is a catalog entry. Two wallets are the same wallet when their ids match.
type Wallet struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Homepage     string     `json:"homepage"`
	ImageID      string     `json:"image_id,omitempty"`
	Order        int        `json:"order"`
	MobileLink   string     `json:"mobile_link,omitempty"`
	DesktopLink  string     `json:"desktop_link,omitempty"`
	WebappLink   string     `json:"webapp_link,omitempty"`
	AppStore     string     `json:"app_store,omitempty"`
	LastTimeUsed *time.Time `json:"lastTimeUsed,omitempty"`
	IsInstalled  bool       `json:"isInstalled"`

	// Provider selects a dedicated transport for this wallet. ProviderNone means the
	// wallet is reached through a pairing URI.
	Provider ProviderKind `json:"provider,omitempty"`
}

func (w Wallet) Equal(o Wallet) bool {
	return w.ID == o.ID
}

// Used returns a copy stamped with t.
func (w Wallet) Used(t time.Time) Wallet {
	w.LastTimeUsed = &t
	return w
}
