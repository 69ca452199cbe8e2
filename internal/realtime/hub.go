package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/sakif/pluk/internal/model"
)

var ErrClosed = errors.New("realtime: broker closed")

// Hub is the single-process Broker.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Feed]struct{}
	closed bool
}

var _ Broker = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Feed]struct{})}
}

func (h *Hub) Publish(_ context.Context, accountID string, doc model.PlantDocument) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	for f := range h.subs[accountID] {
		doc := doc
		doc.Plants = model.ClonePlants(doc.Plants)
		offer(f.ch, doc)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, accountID string) (*Feed, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}

	var f *Feed
	f = newFeed(func() { h.remove(accountID, f) })

	set, ok := h.subs[accountID]
	if !ok {
		set = make(map[*Feed]struct{})
		h.subs[accountID] = set
	}
	set[f] = struct{}{}
	h.mu.Unlock()

	f.watch(ctx)
	return f, nil
}

// Subscribers reports how many feeds are open for accountID.
func (h *Hub) Subscribers(accountID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[accountID])
}

func (h *Hub) remove(accountID string, f *Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[accountID]
	if _, ok := set[f]; !ok {
		return
	}
	delete(set, f)
	if len(set) == 0 {
		delete(h.subs, accountID)
	}
	close(f.ch)
}

// Close ends every open feed.
func (h *Hub) Close() error {
	h.mu.Lock()
	var feeds []*Feed
	for _, set := range h.subs {
		for f := range set {
			feeds = append(feeds, f)
		}
	}
	h.closed = true
	h.mu.Unlock()

	for _, f := range feeds {
		f.Close()
	}
	return nil
}
