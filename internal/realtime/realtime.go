// Package realtime is the change feed behind the remote store. Every saved
// plant document is published under its account id, and subscribers get
// each later document as it is saved.
//
// Delivery is at-least-once and unordered relative to the subscriber's own
// writes. A slow subscriber loses the oldest pending documents, never the
// newest, since each document is a full collection and only the latest one
// matters.
package realtime

import (
	"context"
	"sync"

	"github.com/sakif/pluk/internal/model"
)

// feedBuffer is how many undelivered documents a Feed holds before it starts
// dropping the oldest.
const feedBuffer = 8

type Broker interface {
	Publish(ctx context.Context, accountID string, doc model.PlantDocument) error
	Subscribe(ctx context.Context, accountID string) (*Feed, error)
	Close() error
}

// Feed is one subscriber's view of an account's documents. Events is closed
// once the feed is closed, either explicitly or because the subscribe
// context ended.
type Feed struct {
	ch     chan model.PlantDocument
	once   sync.Once
	detach func()

	mu   sync.Mutex
	stop func() bool
}

func newFeed(detach func()) *Feed {
	return &Feed{
		ch:     make(chan model.PlantDocument, feedBuffer),
		detach: detach,
	}
}

// watch closes the feed when ctx ends. It must be called without holding
// any lock detach takes.
func (f *Feed) watch(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { f.Close() })
	f.mu.Lock()
	f.stop = stop
	f.mu.Unlock()
}

func (f *Feed) Events() <-chan model.PlantDocument {
	return f.ch
}

// Close is idempotent.
func (f *Feed) Close() error {
	f.once.Do(f.detach)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		f.stop()
	}
	return nil
}

// offer delivers doc without blocking, evicting the oldest pending document
// when the buffer is full. Callers serialize offers to the same feed.
//
// WHY DROP THE OLDEST?
//
// Each document is the whole collection, not a delta, so only the newest
// pending one matters to a subscriber. Blocking here would stall the save
// or the redis receive loop behind one slow session. Dropping the newest
// instead would leave the subscriber on an outdated collection.
func offer(ch chan model.PlantDocument, doc model.PlantDocument) {
	for {
		select {
		case ch <- doc:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
