// Package realtime carries "collection changed" notifications from the store to
// snapshot subscribers, in-process or across server instances.
package realtime

import (
	"context"
	"sync"
	"time"
)

// Change says that one or more collections were written by a committed batch.
type Change struct {
	Collections []string  `json:"collections"`
	At          time.Time `json:"at"`
}

// Touches reports whether c affects collection.
func (c Change) Touches(collection string) bool {
	for _, col := range c.Collections {
		if col == collection {
			return true
		}
	}
	return false
}

type Bus interface {
	Publish(ctx context.Context, c Change) error
	// Listen delivers changes until ctx is done, then closes the channel.
	Listen(ctx context.Context) (<-chan Change, error)
	Close() error
}

// memoryBus fans out to local listeners. A slow listener loses intermediate
// notifications but always keeps the latest pending one.
type memoryBus struct {
	mu        sync.Mutex
	listeners map[chan Change]struct{}
	closed    bool
}

func NewMemoryBus() Bus {
	return &memoryBus{listeners: make(map[chan Change]struct{})}
}

func (b *memoryBus) Publish(_ context.Context, c Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.listeners {
		select {
		case ch <- c:
		default:
			// buffer full: drop the stale one, keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
	return nil
}

func (b *memoryBus) Listen(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.listeners[ch]; ok {
			delete(b.listeners, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.listeners {
		delete(b.listeners, ch)
		close(ch)
	}
	return nil
}
