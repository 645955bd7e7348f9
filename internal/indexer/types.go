package indexer

import (
	"context"
	"time"

	"poolindexer/internal/model"
	"poolindexer/internal/projector"
	"poolindexer/internal/source"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	EventSource interface {
		LatestBlock(ctx context.Context) (uint64, error)
		FetchRange(ctx context.Context, kind model.Kind, from, to uint64) ([]model.Event, error)
		Subscribe(ctx context.Context, kinds []model.Kind) (source.Subscription, error)
	}

	Applier interface {
		Apply(ctx context.Context, event model.Event) (projector.Outcome, error)
	}

	CoordinatorMetrics interface {
		ObserveFetch(kind model.Kind, err error, started time.Time)
		ObserveDropped(kind model.Kind, reason string)
		ObserveReconnect()
		SetWatermark(block uint64)
		SetState(state string)
	}
)

type nopMetrics struct{}

func (nopMetrics) ObserveFetch(model.Kind, error, time.Time) {}
func (nopMetrics) ObserveDropped(model.Kind, string)         {}
func (nopMetrics) ObserveReconnect()                         {}
func (nopMetrics) SetWatermark(uint64)                       {}
func (nopMetrics) SetState(string)                           {}
