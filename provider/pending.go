package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modern-go/reflect2"
	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

type pendingRequest struct {
	ID         string
	Method     string
	CreateTime time.Time
	Timeout    time.Duration
	Result     chan *types.Response
}

// PendingTable correlates outbound calls with replies by id. When a durable store is set the
// id also survives a restart, so a reply arriving through an inbound URL after the process was
// evicted is still recognised.
type PendingTable struct {
	kind types.ProviderKind
	cfg  *types.RequestConfig

	reqLk     sync.Mutex
	idRequest map[string]*pendingRequest

	durable *storage.PendingStore
}

func NewPendingTable(ctx context.Context, kind types.ProviderKind, cfg *types.RequestConfig, durable *storage.PendingStore) *PendingTable {
	p := &PendingTable{
		kind:      kind,
		cfg:       cfg,
		idRequest: make(map[string]*pendingRequest),
		durable:   durable,
	}
	go p.cleanRequests(ctx)
	return p
}

func NewCorrelationID() string {
	return uuid.NewString()
}

// Register adds a waiter for id. payload is kept with the durable record.
func (p *PendingTable) Register(ctx context.Context, id, method string, timeout time.Duration, payload interface{}) (<-chan *types.Response, error) {
	if timeout <= 0 {
		timeout = p.cfg.RequestTimeout
	}
	request := &pendingRequest{
		ID:         id,
		Method:     method,
		CreateTime: time.Now(),
		Timeout:    timeout,
		Result:     make(chan *types.Response, 1),
	}

	if p.durable != nil {
		rec := &storage.PendingRecord{ID: id, Provider: p.kind, Method: method, CreateTime: request.CreateTime}
		if !reflect2.IsNil(payload) {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			rec.Payload = raw
		}
		if err := p.durable.Put(ctx, rec); err != nil {
			// still usable in memory
			log.Warnf("persist correlation id %s: %v", id, err)
		}
	}

	p.reqLk.Lock()
	p.idRequest[id] = request
	p.reqLk.Unlock()
	return request.Result, nil
}

// Await waits on a channel returned by Register.
func (p *PendingTable) Await(ctx context.Context, id string, resultCh <-chan *types.Response) (*types.Response, error) {
	select {
	case <-ctx.Done():
		// the durable record stays so a late reply is still published
		p.dropWaiter(id)
		return nil, fmt.Errorf("cancel by context %w", ctx.Err())
	case resp := <-resultCh:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	}
}

// Resolve hands resp to its waiter. When no waiter is in memory the durable record is
// returned instead so the caller can publish the orphaned reply. Both nil means the id
// is unknown.
func (p *PendingTable) Resolve(ctx context.Context, resp *types.Response) (bool, *storage.PendingRecord) {
	p.reqLk.Lock()
	request, ok := p.idRequest[resp.ID]
	if ok {
		delete(p.idRequest, resp.ID)
	}
	p.reqLk.Unlock()

	var rec *storage.PendingRecord
	if p.durable != nil {
		var err error
		rec, err = p.durable.Take(ctx, resp.ID)
		if err != nil {
			log.Warnf("take correlation id %s: %v", resp.ID, err)
		}
	}

	if ok {
		request.Result <- resp
		return true, nil
	}
	if rec == nil {
		log.Warnf("%s reply for unknown id %s", p.kind, resp.ID)
	}
	return false, rec
}

// Fail resolves id with err.
func (p *PendingTable) Fail(ctx context.Context, id string, err error) bool {
	delivered, _ := p.Resolve(ctx, &types.Response{ID: id, Error: types.ToRPCError(err)})
	return delivered
}

// FailAll resolves every in-memory waiter with err, e.g. when the session is deleted.
func (p *PendingTable) FailAll(ctx context.Context, err error) int {
	p.reqLk.Lock()
	ids := make([]string, 0, len(p.idRequest))
	for id := range p.idRequest {
		ids = append(ids, id)
	}
	p.reqLk.Unlock()

	n := 0
	for _, id := range ids {
		if p.Fail(ctx, id, err) {
			n++
		}
	}
	return n
}

func (p *PendingTable) Len() int {
	p.reqLk.Lock()
	defer p.reqLk.Unlock()
	return len(p.idRequest)
}

// Has reports whether id is known in memory or durably.
func (p *PendingTable) Has(ctx context.Context, id string) bool {
	p.reqLk.Lock()
	_, ok := p.idRequest[id]
	p.reqLk.Unlock()
	if ok || p.durable == nil {
		return ok
	}
	list, err := p.durable.List(ctx)
	if err != nil {
		return false
	}
	for _, rec := range list {
		if rec.ID == id {
			return true
		}
	}
	return false
}

func (p *PendingTable) dropWaiter(id string) {
	p.reqLk.Lock()
	delete(p.idRequest, id)
	p.reqLk.Unlock()
}

func (p *PendingTable) cleanRequests(ctx context.Context) {
	tm := time.NewTicker(p.cfg.ClearInterval)
	defer tm.Stop()
	for {
		select {
		case <-tm.C:
			p.expire(ctx, time.Now())
		case <-ctx.Done():
			log.Debugf("%s pending table stopped", p.kind)
			return
		}
	}
}

// expire times out waiters past their deadline and prunes durable records past PendingTTL.
func (p *PendingTable) expire(ctx context.Context, now time.Time) {
	var expired []*pendingRequest
	p.reqLk.Lock()
	for id, request := range p.idRequest {
		if now.Sub(request.CreateTime) > request.Timeout {
			delete(p.idRequest, id)
			expired = append(expired, request)
		}
	}
	p.reqLk.Unlock()

	for _, request := range expired {
		if p.durable != nil {
			if err := p.durable.Remove(ctx, request.ID); err != nil {
				log.Warnf("remove correlation id %s: %v", request.ID, err)
			}
		}
		err := errors.Wrapf(types.ErrTimeout, "%s %s created at %s", p.kind, request.Method, request.CreateTime.Format(time.RFC3339))
		// a reply racing the sweeper already filled the buffer
		select {
		case request.Result <- &types.Response{ID: request.ID, Error: types.ToRPCError(err)}:
		default:
		}
	}

	if p.durable != nil && p.cfg.PendingTTL > 0 {
		pruned, err := p.durable.Prune(ctx, now.Add(-p.cfg.PendingTTL))
		if err != nil {
			log.Warnf("prune correlation ids: %v", err)
		}
		for _, rec := range pruned {
			log.Infof("drop stale %s correlation id %s (%s)", rec.Provider, rec.ID, rec.Method)
		}
	}
}
