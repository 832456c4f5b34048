package pairing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// sessionMgr tracks every topic the adapter listens on together with its key.
type sessionMgr struct {
	infoLk   sync.Mutex
	sessions map[string]*storage.SessionRecord
	pairings map[string]*storage.PairingRecord

	store *storage.SessionStore
}

func newSessionMgr(store *storage.SessionStore) *sessionMgr {
	return &sessionMgr{
		sessions: make(map[string]*storage.SessionRecord),
		pairings: make(map[string]*storage.PairingRecord),
		store:    store,
	}
}

// load reads persisted topics and drops the expired ones.
func (m *sessionMgr) load(ctx context.Context, now time.Time) error {
	sessions, err := m.store.Sessions(ctx)
	if err != nil {
		return err
	}
	pairings, err := m.store.Pairings(ctx)
	if err != nil {
		return err
	}

	m.infoLk.Lock()
	defer m.infoLk.Unlock()
	for _, rec := range sessions {
		if rec.Session.Expired(now) {
			log.Infof("drop expired session %s", rec.Session.Topic)
			_ = m.store.DeleteSession(ctx, rec.Session.Topic)
			continue
		}
		m.sessions[rec.Session.Topic] = rec
	}
	for _, rec := range pairings {
		if !rec.Pairing.Expiry.IsZero() && now.After(rec.Pairing.Expiry) {
			_ = m.store.DeletePairing(ctx, rec.Pairing.Topic)
			continue
		}
		m.pairings[rec.Pairing.Topic] = rec
	}
	log.Infof("restored %d sessions and %d pairings", len(m.sessions), len(m.pairings))
	return nil
}

func (m *sessionMgr) addPairing(ctx context.Context, rec *storage.PairingRecord) {
	m.infoLk.Lock()
	m.pairings[rec.Pairing.Topic] = rec
	m.infoLk.Unlock()
	if err := m.store.PutPairing(ctx, rec); err != nil {
		log.Warnf("persist pairing %s: %v", rec.Pairing.Topic, err)
	}
}

func (m *sessionMgr) activatePairing(ctx context.Context, topic string, peer types.AppMetadata) {
	m.infoLk.Lock()
	rec, ok := m.pairings[topic]
	if ok {
		p := *rec.Pairing
		p.Active = true
		p.Peer = peer
		rec = &storage.PairingRecord{Pairing: &p, SymKey: rec.SymKey}
		m.pairings[topic] = rec
	}
	m.infoLk.Unlock()
	if !ok {
		return
	}
	if err := m.store.PutPairing(ctx, rec); err != nil {
		log.Warnf("persist pairing %s: %v", topic, err)
	}
}

func (m *sessionMgr) removePairing(ctx context.Context, topic string) bool {
	m.infoLk.Lock()
	_, ok := m.pairings[topic]
	delete(m.pairings, topic)
	m.infoLk.Unlock()
	if err := m.store.DeletePairing(ctx, topic); err != nil {
		log.Warnf("delete pairing %s: %v", topic, err)
	}
	return ok
}

func (m *sessionMgr) addSession(ctx context.Context, rec *storage.SessionRecord) {
	m.infoLk.Lock()
	m.sessions[rec.Session.Topic] = rec
	m.infoLk.Unlock()
	if err := m.store.PutSession(ctx, rec); err != nil {
		log.Warnf("persist session %s: %v", rec.Session.Topic, err)
	}
	log.Infow("add session", "topic", rec.Session.Topic, "peer", rec.Session.Peer.Name)
}

// updateSession replaces the namespaces of topic and returns the new session.
func (m *sessionMgr) updateSession(ctx context.Context, topic string, namespaces map[string]types.Namespace) (*types.Session, error) {
	m.infoLk.Lock()
	rec, ok := m.sessions[topic]
	if !ok {
		m.infoLk.Unlock()
		return nil, fmt.Errorf("no session found for topic %s", topic)
	}
	s := *rec.Session
	s.Namespaces = namespaces
	rec = &storage.SessionRecord{Session: &s, SymKey: rec.SymKey}
	m.sessions[topic] = rec
	m.infoLk.Unlock()

	if err := m.store.PutSession(ctx, rec); err != nil {
		log.Warnf("persist session %s: %v", topic, err)
	}
	return &s, nil
}

func (m *sessionMgr) removeSession(ctx context.Context, topic string) (*types.Session, bool) {
	m.infoLk.Lock()
	rec, ok := m.sessions[topic]
	delete(m.sessions, topic)
	m.infoLk.Unlock()
	if err := m.store.DeleteSession(ctx, topic); err != nil {
		log.Warnf("delete session %s: %v", topic, err)
	}
	if !ok {
		return nil, false
	}
	log.Infof("remove session %s", topic)
	return rec.Session, true
}

func (m *sessionMgr) getSession(topic string) (*types.Session, bool) {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()
	rec, ok := m.sessions[topic]
	if !ok {
		return nil, false
	}
	return rec.Session, true
}

// keyFor returns the sym key protecting topic, whether it is a session or a pairing.
func (m *sessionMgr) keyFor(topic string) (string, bool) {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()
	if rec, ok := m.sessions[topic]; ok {
		return rec.SymKey, true
	}
	if rec, ok := m.pairings[topic]; ok {
		return rec.SymKey, true
	}
	return "", false
}

// listSessions returns sessions ordered by expiry, latest first.
func (m *sessionMgr) listSessions() []*types.Session {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()
	out := make([]*types.Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec.Session)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Expiry.Equal(out[j].Expiry) {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Expiry.After(out[j].Expiry)
	})
	return out
}

func (m *sessionMgr) listPairings() []*types.Pairing {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()
	out := make([]*types.Pairing, 0, len(m.pairings))
	for _, rec := range m.pairings {
		out = append(out, rec.Pairing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (m *sessionMgr) topics() []string {
	m.infoLk.Lock()
	defer m.infoLk.Unlock()
	out := make([]string, 0, len(m.sessions)+len(m.pairings))
	for topic := range m.sessions {
		out = append(out, topic)
	}
	for topic := range m.pairings {
		out = append(out, topic)
	}
	return out
}
