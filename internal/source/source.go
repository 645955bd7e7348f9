// Package source adapts the pool contract's event log into model events.
package source

import (
	"context"

	"poolindexer/internal/model"
)

// EventSource fetches historical events by block range and streams live ones.
type EventSource interface {
	// LatestBlock returns the current chain head.
	LatestBlock(ctx context.Context) (uint64, error)
	// FetchRange returns every event of kind in [from, to], in chain order.
	FetchRange(ctx context.Context, kind model.Kind, from, to uint64) ([]model.Event, error)
	// Subscribe opens a live stream for kinds. Delivery is at-least-once and
	// may be reordered.
	Subscribe(ctx context.Context, kinds []model.Kind) (Subscription, error)
}

// Subscription is an open live stream.
type Subscription interface {
	Events() <-chan model.Event
	// Err yields at most one error after which the subscription is dead.
	Err() <-chan error
	Unsubscribe()
}
