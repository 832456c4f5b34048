package storage

import (
	"context"

	"github.com/ipfs/go-datastore"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// AccountRecord is the durable "logged in" hint: which transport and which account.
type AccountRecord struct {
	Provider types.ProviderKind `json:"provider"`
	Address  string             `json:"address"`
	Chain    types.ChainID      `json:"chain"`
}

func (r *AccountRecord) Account() *types.Account {
	return types.NewAccount(r.Address, r.Chain)
}

type AccountStore struct {
	ds datastore.Datastore
}

func NewAccountStore(ds datastore.Datastore) *AccountStore {
	return &AccountStore{ds: ds}
}

// Save overwrites the previous snapshot.
func (s *AccountStore) Save(ctx context.Context, provider types.ProviderKind, account *types.Account) error {
	return putJSON(ctx, s.ds, accountKey, &AccountRecord{
		Provider: provider,
		Address:  account.Address,
		Chain:    account.Chain,
	})
}

// Load returns nil when nothing was saved.
func (s *AccountStore) Load(ctx context.Context) (*AccountRecord, error) {
	var rec AccountRecord
	ok, err := getJSON(ctx, s.ds, accountKey, &rec)
	if err != nil || !ok {
		return nil, err
	}
	if rec.Address == "" || rec.Provider == types.ProviderNone {
		log.Warnf("ignore incomplete account record %+v", rec)
		return nil, nil
	}
	return &rec, nil
}

func (s *AccountStore) Clear(ctx context.Context) error {
	return deleteKey(ctx, s.ds, accountKey)
}
