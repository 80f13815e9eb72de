package store

import (
	"context"
	"time"

	"procurement-backend/internal/logger"
	"procurement-backend/internal/realtime"
)

type querier interface {
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
}

// subscribe re-runs the query whenever the bus reports a change to collection.
func subscribe(ctx context.Context, q querier, bus realtime.Bus, log *logger.Logger, collection string, filters []Filter) (<-chan Snapshot, error) {
	changes, err := bus.Listen(ctx)
	if err != nil {
		return nil, err
	}
	first, err := q.Query(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 1)
	out <- Snapshot{Collection: collection, Docs: first, At: time.Now()}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				if !c.Touches(collection) {
					continue
				}
				docs, err := q.Query(ctx, collection, filters...)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Warn("snapshot query failed", "collection", collection, "error", err)
					continue
				}
				select {
				case out <- Snapshot{Collection: collection, Docs: docs, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func publish(ctx context.Context, bus realtime.Bus, log *logger.Logger, mutations []Mutation) {
	if bus == nil || len(mutations) == 0 {
		return
	}
	c := realtime.Change{Collections: touched(mutations), At: time.Now()}
	if err := bus.Publish(ctx, c); err != nil {
		log.Warn("change publish failed", "collections", c.Collections, "error", err)
	}
}
