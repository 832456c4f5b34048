// Package storage persists the connection hint, recent wallets, pending deep-link
// correlation ids and pairing sessions in a go-datastore.
package storage

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dss "github.com/ipfs/go-datastore/sync"
	levelds "github.com/ipfs/go-ds-leveldb"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/types"
)

var log = logging.Logger("storage")

const DatastoreDir = "datastore"

var (
	accountKey       = datastore.NewKey("/account")
	recentWalletsKey = datastore.NewKey("/recentWallets")
	pendingPrefix    = datastore.NewKey("/pending")
	sessionPrefix    = datastore.NewKey("/sessions")
	pairingPrefix    = datastore.NewKey("/pairings")
)

// OpenLevelDB opens (or creates) the leveldb datastore under repo.
func OpenLevelDB(repo string) (datastore.Batching, error) {
	ds, err := levelds.NewDatastore(filepath.Join(repo, DatastoreDir), nil)
	if err != nil {
		return nil, errors.Wrap(types.ErrStorageUnavailable, err.Error())
	}
	return ds, nil
}

// NewMemory returns a thread safe in-memory datastore.
func NewMemory() datastore.Batching {
	return dss.MutexWrap(datastore.NewMapDatastore())
}

func unavailable(err error, op string) error {
	return errors.Wrapf(types.ErrStorageUnavailable, "%s: %v", op, err)
}

func putJSON(ctx context.Context, ds datastore.Datastore, key datastore.Key, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return unavailable(err, "marshal "+key.String())
	}
	if err := ds.Put(ctx, key, data); err != nil {
		return unavailable(err, "put "+key.String())
	}
	return nil
}

// getJSON returns false when the key is absent.
func getJSON(ctx context.Context, ds datastore.Datastore, key datastore.Key, v interface{}) (bool, error) {
	data, err := ds.Get(ctx, key)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return false, nil
		}
		return false, unavailable(err, "get "+key.String())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, unavailable(err, "decode "+key.String())
	}
	return true, nil
}

func deleteKey(ctx context.Context, ds datastore.Datastore, key datastore.Key) error {
	if err := ds.Delete(ctx, key); err != nil && !errors.Is(err, datastore.ErrNotFound) {
		return unavailable(err, "delete "+key.String())
	}
	return nil
}

// listJSON decodes every value under prefix, skipping entries that fail to decode.
func listJSON(ctx context.Context, ds datastore.Datastore, prefix datastore.Key, decode func([]byte) error) error {
	res, err := ds.Query(ctx, query.Query{Prefix: prefix.String()})
	if err != nil {
		return unavailable(err, "query "+prefix.String())
	}
	defer res.Close() //nolint:errcheck

	for entry := range res.Next() {
		if entry.Error != nil {
			return unavailable(entry.Error, "query "+prefix.String())
		}
		if err := decode(entry.Value); err != nil {
			log.Warnf("skip undecodable record %s: %v", entry.Key, err)
		}
	}
	return nil
}
