package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ipfs/go-datastore"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// PendingRecord is a correlation id written before a wallet app is opened so the reply can
// be matched after a restart.
type PendingRecord struct {
	ID         string             `json:"id"`
	Provider   types.ProviderKind `json:"provider"`
	Method     string             `json:"method"`
	CreateTime time.Time          `json:"createTime"`
	Payload    json.RawMessage    `json:"payload,omitempty"`
}

type PendingStore struct {
	ds datastore.Datastore
}

func NewPendingStore(ds datastore.Datastore) *PendingStore {
	return &PendingStore{ds: ds}
}

func pendingKey(id string) datastore.Key {
	return pendingPrefix.ChildString(id)
}

func (s *PendingStore) Put(ctx context.Context, rec *PendingRecord) error {
	return putJSON(ctx, s.ds, pendingKey(rec.ID), rec)
}

// Get returns the record for id without removing it, nil when unknown.
func (s *PendingStore) Get(ctx context.Context, id string) (*PendingRecord, error) {
	var rec PendingRecord
	ok, err := getJSON(ctx, s.ds, pendingKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// Take removes and returns the record for id, nil when unknown.
func (s *PendingStore) Take(ctx context.Context, id string) (*PendingRecord, error) {
	var rec PendingRecord
	ok, err := getJSON(ctx, s.ds, pendingKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	if err := deleteKey(ctx, s.ds, pendingKey(id)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PendingStore) Remove(ctx context.Context, id string) error {
	return deleteKey(ctx, s.ds, pendingKey(id))
}

func (s *PendingStore) List(ctx context.Context) ([]*PendingRecord, error) {
	var out []*PendingRecord
	err := listJSON(ctx, s.ds, pendingPrefix, func(data []byte) error {
		rec := &PendingRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Prune deletes records created before deadline and returns them.
func (s *PendingStore) Prune(ctx context.Context, deadline time.Time) ([]*PendingRecord, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var pruned []*PendingRecord
	for _, rec := range all {
		if rec.CreateTime.Before(deadline) {
			if err := s.Remove(ctx, rec.ID); err != nil {
				return pruned, err
			}
			pruned = append(pruned, rec)
		}
	}
	return pruned, nil
}
