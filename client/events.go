package client

import (
	"context"
	"sync"

	"github.com/ipfs-force-community/sophon-connect/types"
)

// eventHub fans the merged stream out to subscribers. Slow subscribers lose events.
type eventHub struct {
	size int

	lk   sync.Mutex
	next uint64
	subs map[uint64]chan types.Event
}

func newEventHub(size int) *eventHub {
	if size <= 0 {
		size = 16
	}
	return &eventHub{size: size, subs: make(map[uint64]chan types.Event)}
}

func (h *eventHub) subscribe(ctx context.Context) <-chan types.Event {
	ch := make(chan types.Event, h.size)
	h.lk.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.lk.Unlock()

	go func() {
		<-ctx.Done()
		h.lk.Lock()
		delete(h.subs, id)
		close(ch)
		h.lk.Unlock()
	}()
	return ch
}

func (h *eventHub) publish(evt types.Event) {
	h.lk.Lock()
	defer h.lk.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			log.Warnf("subscriber %d is full, drop %s event", id, evt.Kind)
		}
	}
}
