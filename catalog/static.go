package catalog

import (
	"context"
	"sort"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// StaticFetcher serves a fixed wallet list. The daemon uses it for the wallets declared in
// its config file.
type StaticFetcher struct {
	wallets  []types.Wallet
	pageSize int
	featured int
}

func NewStaticFetcher(wallets []types.Wallet, pageSize, featured int) *StaticFetcher {
	list := append([]types.Wallet{}, wallets...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })
	if pageSize <= 0 {
		pageSize = 40
	}
	return &StaticFetcher{wallets: list, pageSize: pageSize, featured: featured}
}

func (f *StaticFetcher) FetchImages(context.Context, []string) error {
	return nil
}

func (f *StaticFetcher) FetchAllMetadata(context.Context) ([]types.Wallet, error) {
	return append([]types.Wallet{}, f.wallets...), nil
}

// FetchFeatured returns the lowest ordered wallets.
func (f *StaticFetcher) FetchFeatured(context.Context) ([]types.Wallet, error) {
	n := f.featured
	if n > len(f.wallets) {
		n = len(f.wallets)
	}
	return append([]types.Wallet{}, f.wallets[:n]...), nil
}

// FetchPage is 1-based.
func (f *StaticFetcher) FetchPage(_ context.Context, page int) ([]types.Wallet, bool, error) {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * f.pageSize
	if start >= len(f.wallets) {
		return nil, false, nil
	}
	end := start + f.pageSize
	if end > len(f.wallets) {
		end = len(f.wallets)
	}
	return append([]types.Wallet{}, f.wallets[start:end]...), end < len(f.wallets), nil
}
