// Package projector applies validated pool events to the aggregate store.
//
// Apply is idempotent and tolerates any delivery order: creation never
// overwrites, finish and reward timestamps only move forward, winner fields
// follow chain position, and deposits are keyed by (txHash, logIndex).
package projector

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"poolindexer/internal/model"
	"poolindexer/internal/store"
)

// Result names what Apply did to the store.
const (
	ResultCreated   = "created"
	ResultExisting  = "existing"
	ResultUpdated   = "updated"
	ResultUnchanged = "unchanged"
	ResultInserted  = "inserted"
	ResultDuplicate = "duplicate"
)

// Outcome describes a successful Apply.
type Outcome struct {
	Kind   model.Kind
	PoolID uint64
	Result string
}

// Observer receives one call per Apply. result is an Outcome result or an
// error Code.
type Observer interface {
	ObserveApply(kind model.Kind, result string, elapsed time.Duration)
}

// Config configures a Projector.
type Config struct {
	Logger   *zap.Logger
	Observer Observer
}

// Projector applies events to an AggregateStore. Applies for one pool are
// serialized; distinct pools proceed in parallel.
type Projector struct {
	store    store.AggregateStore
	locks    *keyedMutex
	logger   *zap.Logger
	observer Observer
}

// New builds a Projector over st.
func New(st store.AggregateStore, cfg Config) *Projector {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		store:    st,
		locks:    newKeyedMutex(),
		logger:   logger,
		observer: cfg.Observer,
	}
}

// Apply validates event and applies it. Failures are *Error.
func (p *Projector) Apply(ctx context.Context, event model.Event) (Outcome, error) {
	start := time.Now()
	outcome, err := p.apply(ctx, event)
	if p.observer != nil {
		result := outcome.Result
		var pe *Error
		if errors.As(err, &pe) {
			result = string(pe.Code)
		}
		p.observer.ObserveApply(event.Kind, result, time.Since(start))
	}
	return outcome, err
}

func (p *Projector) apply(ctx context.Context, event model.Event) (Outcome, error) {
	v, err := model.Validate(event)
	if err != nil {
		return Outcome{Kind: event.Kind}, &Error{Code: CodeInvalid, Kind: event.Kind, Err: err}
	}

	unlock := p.locks.Lock(v.PoolID)
	defer unlock()

	outcome := Outcome{Kind: v.Kind, PoolID: v.PoolID}
	fail := func(code Code, err error) (Outcome, error) {
		return outcome, &Error{Code: code, Kind: v.Kind, PoolID: v.PoolID, Err: err}
	}

	switch data := v.Data.(type) {
	case model.PoolCreatedData:
		res, err := p.store.UpsertPoolDefaults(ctx, store.PoolInsert{
			PoolID:         v.PoolID,
			Token:          data.Token,
			TokenName:      data.TokenName,
			RequiredAmount: data.RequiredAmount,
			EndTime:        v.EndTime,
			BlockNumber:    v.BlockNumber,
			TxHash:         v.TxHash,
		})
		if err != nil {
			return fail(storeCode(err), err)
		}
		outcome.Result = res.String()

	case model.DepositedData:
		var logIndex *uint
		if v.LogIndex != nil {
			idx := *v.LogIndex
			logIndex = &idx
		}
		res, err := p.store.InsertDepositIfAbsent(ctx, model.Deposit{
			PoolID:             v.PoolID,
			ParticipantAddress: data.Participant,
			Amount:             data.Amount,
			TxHash:             v.TxHash,
			LogIndex:           logIndex,
			BlockNumber:        v.BlockNumber,
		})
		if err != nil {
			return fail(storeCode(err), err)
		}
		if logIndex == nil {
			p.logger.Debug("deposit inserted without log index, not deduplicated",
				zap.Uint64("pool_id", v.PoolID),
				zap.String("tx", v.TxHash),
			)
		}
		outcome.Result = res.String()

	case model.PoolFinishedData:
		update := store.PoolUpdate{Finish: true, FinishedAt: v.BlockTimestamp}
		return p.update(ctx, outcome, update, fail)

	case model.PrizeDistributedData:
		update := store.PoolUpdate{
			Winner:              &data.Winner,
			PrizeReward:         &data.PrizeAmount,
			WinnerPosition:      v.Position(),
			DistributedRewardAt: v.BlockTimestamp,
		}
		return p.update(ctx, outcome, update, fail)

	case model.WinnerSelectedData:
		update := store.PoolUpdate{
			Winner:         &data.Winner,
			PrizeReward:    &data.PrizeAmount,
			WinnerPosition: v.Position(),
		}
		return p.update(ctx, outcome, update, fail)
	}

	return outcome, nil
}

func (p *Projector) update(
	ctx context.Context,
	outcome Outcome,
	update store.PoolUpdate,
	fail func(Code, error) (Outcome, error),
) (Outcome, error) {
	res, err := p.store.UpdatePoolIfExists(ctx, outcome.PoolID, update)
	if err != nil {
		return fail(storeCode(err), err)
	}
	if res == store.NotFound {
		return fail(CodeNotFound, model.ErrPoolNotFound)
	}
	outcome.Result = res.String()
	return outcome, nil
}
