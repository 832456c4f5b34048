package storage

import (
	"context"
	"sort"
	"time"

	"github.com/ipfs/go-datastore"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// RecentWalletStore keeps the full list of used wallets. Callers truncate for display.
type RecentWalletStore struct {
	ds datastore.Datastore
}

func NewRecentWalletStore(ds datastore.Datastore) *RecentWalletStore {
	return &RecentWalletStore{ds: ds}
}

// NormalizeRecent drops wallets never used, sorts the rest by lastTimeUsed descending
// and keeps the first occurrence of every id.
func NormalizeRecent(wallets []types.Wallet) []types.Wallet {
	used := make([]types.Wallet, 0, len(wallets))
	for _, w := range wallets {
		if w.LastTimeUsed != nil {
			used = append(used, w)
		}
	}
	sort.SliceStable(used, func(i, j int) bool {
		return used[i].LastTimeUsed.After(*used[j].LastTimeUsed)
	})

	seen := make(map[string]struct{}, len(used))
	out := used[:0]
	for _, w := range used {
		if _, ok := seen[w.ID]; ok {
			continue
		}
		seen[w.ID] = struct{}{}
		out = append(out, w)
	}
	return out
}

func (s *RecentWalletStore) Save(ctx context.Context, wallets []types.Wallet) error {
	return putJSON(ctx, s.ds, recentWalletsKey, NormalizeRecent(wallets))
}

func (s *RecentWalletStore) Load(ctx context.Context) ([]types.Wallet, error) {
	var wallets []types.Wallet
	if _, err := getJSON(ctx, s.ds, recentWalletsKey, &wallets); err != nil {
		return nil, err
	}
	return NormalizeRecent(wallets), nil
}

// MarkUsed stamps wallet with at and moves it to the front of the list.
func (s *RecentWalletStore) MarkUsed(ctx context.Context, wallet types.Wallet, at time.Time) ([]types.Wallet, error) {
	current, err := s.Load(ctx)
	if err != nil {
		log.Warnf("load recent wallets: %v", err)
	}
	next := append([]types.Wallet{wallet.Used(at)}, current...)
	next = NormalizeRecent(next)
	return next, s.Save(ctx, next)
}
