package storage

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-datastore"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// SessionRecord is a settled pairing session with the key that protects its topic.
type SessionRecord struct {
	Session *types.Session `json:"session"`
	SymKey  string         `json:"symKey"`
}

// PairingRecord is a pairing topic with its key, kept until the pairing expires or is deleted.
type PairingRecord struct {
	Pairing *types.Pairing `json:"pairing"`
	SymKey  string         `json:"symKey"`
}

type SessionStore struct {
	ds datastore.Datastore
}

func NewSessionStore(ds datastore.Datastore) *SessionStore {
	return &SessionStore{ds: ds}
}

func (s *SessionStore) PutSession(ctx context.Context, rec *SessionRecord) error {
	return putJSON(ctx, s.ds, sessionPrefix.ChildString(rec.Session.Topic), rec)
}

func (s *SessionStore) DeleteSession(ctx context.Context, topic string) error {
	return deleteKey(ctx, s.ds, sessionPrefix.ChildString(topic))
}

func (s *SessionStore) Sessions(ctx context.Context) ([]*SessionRecord, error) {
	var out []*SessionRecord
	err := listJSON(ctx, s.ds, sessionPrefix, func(data []byte) error {
		rec := &SessionRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			return err
		}
		if rec.Session == nil {
			return types.ErrMalformedResponse
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func (s *SessionStore) PutPairing(ctx context.Context, rec *PairingRecord) error {
	return putJSON(ctx, s.ds, pairingPrefix.ChildString(rec.Pairing.Topic), rec)
}

func (s *SessionStore) DeletePairing(ctx context.Context, topic string) error {
	return deleteKey(ctx, s.ds, pairingPrefix.ChildString(topic))
}

func (s *SessionStore) Pairings(ctx context.Context) ([]*PairingRecord, error) {
	var out []*PairingRecord
	err := listJSON(ctx, s.ds, pairingPrefix, func(data []byte) error {
		rec := &PairingRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			return err
		}
		if rec.Pairing == nil {
			return types.ErrMalformedResponse
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
