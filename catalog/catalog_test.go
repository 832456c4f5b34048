package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

type countingFetcher struct {
	*StaticFetcher

	lk        sync.Mutex
	imageIDs  []string
	failPages bool
}

func (f *countingFetcher) FetchImages(_ context.Context, ids []string) error {
	f.lk.Lock()
	f.imageIDs = append(f.imageIDs, ids...)
	f.lk.Unlock()
	return errors.New("image cdn down")
}

func (f *countingFetcher) FetchPage(ctx context.Context, page int) ([]types.Wallet, bool, error) {
	if f.failPages {
		return nil, false, errors.New("page unavailable")
	}
	return f.StaticFetcher.FetchPage(ctx, page)
}

func sample() []types.Wallet {
	return []types.Wallet{
		{ID: "a", Name: "A", Order: 3},
		{ID: "b", Name: "B", Order: 1},
		{ID: "c", Name: "C", Order: 2},
		{ID: "d", Name: "D", Order: 4},
	}
}

func ids(wallets []types.Wallet) []string {
	out := make([]string, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, w.ID)
	}
	return out
}

func TestWalletsOrdering(t *testing.T) {
	ctx := context.Background()
	recent := storage.NewRecentWalletStore(storage.NewMemory())
	used := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := recent.MarkUsed(ctx, types.Wallet{ID: "a"}, used)
	require.NoError(t, err)

	fetcher := &countingFetcher{StaticFetcher: NewStaticFetcher(sample(), 2, 2)}
	c := New(Config{
		RecommendedIDs: []string{"d", "missing"},
		ExcludedIDs:    []string{"c"},
		Custom:         []types.Wallet{{ID: "x", Name: "Custom", Order: 0}, {ID: "b", Name: "Mine"}},
	}, fetcher, recent)
	require.NoError(t, c.Bootstrap(ctx))

	wallets := c.Wallets(ctx)
	require.Equal(t, []string{"d", "a", "x", "b"}, ids(wallets))
	require.Equal(t, "Mine", wallets[3].Name)
	require.NotNil(t, wallets[1].LastTimeUsed)
	require.True(t, used.Equal(*wallets[1].LastTimeUsed))

	require.ElementsMatch(t, []string{"a", "x", "b"}, fetcher.imageIDs)
	require.Equal(t, []string{"b"}, ids(c.Featured()))
	require.True(t, c.HasMore())

	more, err := c.NextPage(ctx)
	require.NoError(t, err)
	require.False(t, more)
}

func TestMergeLastWriteWins(t *testing.T) {
	c := New(Config{}, nil, nil)
	c.merge([]types.Wallet{{ID: "a", Name: "old"}})
	c.merge([]types.Wallet{{ID: "a", Name: "new"}})
	w, ok := c.Lookup("a")
	require.True(t, ok)
	require.Equal(t, "new", w.Name)

	c.AddCustom(types.Wallet{ID: "z", Name: "one"})
	c.AddCustom(types.Wallet{ID: "z", Name: "two"})
	w, ok = c.Lookup("z")
	require.True(t, ok)
	require.Equal(t, "two", w.Name)
	require.Len(t, c.Wallets(context.Background()), 2)
}

func TestBootstrapFailureKeepsPartialData(t *testing.T) {
	fetcher := &countingFetcher{StaticFetcher: NewStaticFetcher(sample(), 2, 1), failPages: true}
	c := New(Config{}, fetcher, nil)
	require.Error(t, c.Bootstrap(context.Background()))
	require.Len(t, c.Wallets(context.Background()), 4)
}

func TestStaticFetcherPages(t *testing.T) {
	f := NewStaticFetcher(sample(), 3, 10)
	ctx := context.Background()

	page, more, err := f.FetchPage(ctx, 1)
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, []string{"b", "c", "a"}, ids(page))

	page, more, err = f.FetchPage(ctx, 2)
	require.NoError(t, err)
	require.False(t, more)
	require.Equal(t, []string{"d"}, ids(page))

	page, _, err = f.FetchPage(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, page)

	featured, err := f.FetchFeatured(ctx)
	require.NoError(t, err)
	require.Len(t, featured, 4)
}
