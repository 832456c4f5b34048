// Package catalog consumes the wallet catalog fetch contract and merges what it returns
// with the configured, built-in and recently used wallets.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("catalog")

// Fetcher is the wallet catalog service. Image fetching is best effort.
type Fetcher interface {
	FetchImages(ctx context.Context, walletIDs []string) error
	FetchAllMetadata(ctx context.Context) ([]types.Wallet, error)
	FetchFeatured(ctx context.Context) ([]types.Wallet, error)
	FetchPage(ctx context.Context, page int) ([]types.Wallet, bool, error)
}

type Config struct {
	RecommendedIDs []string
	ExcludedIDs    []string
	Custom         []types.Wallet
}

type Catalog struct {
	fetcher     Fetcher
	recent      *storage.RecentWalletStore
	recommended []string
	excluded    map[string]struct{}

	lk       sync.RWMutex
	custom   []types.Wallet
	featured []types.Wallet
	fetched  map[string]types.Wallet
	hasMore  bool
	page     int
}

func New(cfg Config, fetcher Fetcher, recent *storage.RecentWalletStore) *Catalog {
	c := &Catalog{
		fetcher:     fetcher,
		recent:      recent,
		recommended: append([]string{}, cfg.RecommendedIDs...),
		excluded:    make(map[string]struct{}, len(cfg.ExcludedIDs)),
		custom:      append([]types.Wallet{}, cfg.Custom...),
		fetched:     make(map[string]types.Wallet),
	}
	for _, id := range cfg.ExcludedIDs {
		c.excluded[id] = struct{}{}
	}
	return c
}

// AddCustom registers a wallet that is not served by the fetcher, replacing an entry with
// the same id.
func (c *Catalog) AddCustom(w types.Wallet) {
	c.lk.Lock()
	defer c.lk.Unlock()
	for i := range c.custom {
		if c.custom[i].Equal(w) {
			c.custom[i] = w
			return
		}
	}
	c.custom = append(c.custom, w)
}

// Bootstrap runs the startup fetches: images for recent and custom wallets, all metadata,
// featured wallets and the first page. Failures are logged; the first one is returned.
func (c *Catalog) Bootstrap(ctx context.Context) error {
	if c.fetcher == nil {
		return nil
	}
	recent := c.Recent(ctx)
	c.lk.RLock()
	ids := make([]string, 0, len(recent)+len(c.custom))
	for _, w := range append(recent, c.custom...) {
		ids = append(ids, w.ID)
	}
	c.lk.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.fetcher.FetchImages(gctx, ids); err != nil {
			log.Debugf("fetch images: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		wallets, err := c.fetcher.FetchAllMetadata(gctx)
		if err != nil {
			log.Warnf("fetch wallet metadata: %v", err)
			return err
		}
		c.merge(wallets)
		return nil
	})
	g.Go(func() error {
		wallets, err := c.fetcher.FetchFeatured(gctx)
		if err != nil {
			log.Warnf("fetch featured wallets: %v", err)
			return err
		}
		c.lk.Lock()
		c.featured = wallets
		c.lk.Unlock()
		c.merge(wallets)
		return nil
	})
	g.Go(func() error {
		_, err := c.NextPage(gctx)
		return err
	})
	return g.Wait()
}

// NextPage fetches the next page and reports whether more remain.
func (c *Catalog) NextPage(ctx context.Context) (bool, error) {
	c.lk.Lock()
	page := c.page + 1
	c.lk.Unlock()

	wallets, hasMore, err := c.fetcher.FetchPage(ctx, page)
	if err != nil {
		log.Warnf("fetch wallet page %d: %v", page, err)
		return false, err
	}
	c.merge(wallets)
	c.lk.Lock()
	c.page = page
	c.hasMore = hasMore
	c.lk.Unlock()
	return hasMore, nil
}

// merge is last-write-wins by id.
func (c *Catalog) merge(wallets []types.Wallet) {
	c.lk.Lock()
	defer c.lk.Unlock()
	for _, w := range wallets {
		c.fetched[w.ID] = w
	}
}

// Wallets lists recommended wallets first in configured order, then fetched wallets by
// order, then custom wallets. Excluded ids are dropped and every entry carries its recent
// use time.
func (c *Catalog) Wallets(ctx context.Context) []types.Wallet {
	used := make(map[string]*time.Time)
	for _, w := range c.Recent(ctx) {
		used[w.ID] = w.LastTimeUsed
	}

	c.lk.RLock()
	byID := make(map[string]types.Wallet, len(c.fetched)+len(c.custom))
	for id, w := range c.fetched {
		byID[id] = w
	}
	// custom entries keep their own data over fetched metadata
	customIDs := make(map[string]struct{}, len(c.custom))
	for _, w := range c.custom {
		byID[w.ID] = w
		customIDs[w.ID] = struct{}{}
	}
	custom := append([]types.Wallet{}, c.custom...)
	c.lk.RUnlock()

	placed := make(map[string]struct{})
	out := make([]types.Wallet, 0, len(byID))
	add := func(w types.Wallet) {
		if _, skip := c.excluded[w.ID]; skip {
			return
		}
		if _, ok := placed[w.ID]; ok {
			return
		}
		placed[w.ID] = struct{}{}
		if t, ok := used[w.ID]; ok {
			w.LastTimeUsed = t
		}
		out = append(out, w)
	}

	for _, id := range c.recommended {
		if w, ok := byID[id]; ok {
			add(w)
		}
	}
	rest := make([]types.Wallet, 0, len(byID))
	for id, w := range byID {
		if _, ok := customIDs[id]; !ok {
			rest = append(rest, w)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Order != rest[j].Order {
			return rest[i].Order < rest[j].Order
		}
		return rest[i].ID < rest[j].ID
	})
	for _, w := range rest {
		add(w)
	}
	for _, w := range custom {
		add(byID[w.ID])
	}
	return out
}

func (c *Catalog) Featured() []types.Wallet {
	c.lk.RLock()
	defer c.lk.RUnlock()
	out := make([]types.Wallet, 0, len(c.featured))
	for _, w := range c.featured {
		if _, skip := c.excluded[w.ID]; !skip {
			out = append(out, w)
		}
	}
	return out
}

// Lookup finds a wallet by id among fetched and custom wallets.
func (c *Catalog) Lookup(id string) (types.Wallet, bool) {
	c.lk.RLock()
	defer c.lk.RUnlock()
	for _, w := range c.custom {
		if w.ID == id {
			return w, true
		}
	}
	w, ok := c.fetched[id]
	return w, ok
}

func (c *Catalog) HasMore() bool {
	c.lk.RLock()
	defer c.lk.RUnlock()
	return c.hasMore
}

// Recent returns the recently used wallets, newest first. A storage failure reads as empty.
func (c *Catalog) Recent(ctx context.Context) []types.Wallet {
	if c.recent == nil {
		return nil
	}
	wallets, err := c.recent.Load(ctx)
	if err != nil {
		log.Warnf("load recent wallets: %v", err)
		return nil
	}
	return wallets
}

// MarkUsed stamps w as used at at.
func (c *Catalog) MarkUsed(ctx context.Context, w types.Wallet, at time.Time) {
	if c.recent == nil {
		return
	}
	if _, err := c.recent.MarkUsed(ctx, w, at); err != nil {
		log.Warnf("mark %s used: %v", w.ID, err)
	}
}
