// Package store defines the aggregate store capability used by the projector.
package store

import (
	"context"
	"errors"
	"time"

	"poolindexer/internal/model"
)

// ErrRejected marks values a store can never accept, such as a pool id beyond
// its key range. Retrying the same write fails the same way.
var ErrRejected = errors.New("rejected by store")

// UpsertResult reports whether UpsertPoolDefaults inserted a record.
type UpsertResult int

const (
	Existing UpsertResult = iota
	Created
)

func (r UpsertResult) String() string {
	if r == Created {
		return "created"
	}
	return "existing"
}

// UpdateResult reports the outcome of UpdatePoolIfExists.
type UpdateResult int

const (
	NotFound UpdateResult = iota
	Unchanged
	Updated
)

func (r UpdateResult) String() string {
	switch r {
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "not_found"
	}
}

// InsertResult reports the outcome of InsertDepositIfAbsent.
type InsertResult int

const (
	AlreadyExists InsertResult = iota
	Inserted
)

func (r InsertResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "duplicate"
}

// PoolInsert carries the creation-time fields of a pool.
type PoolInsert struct {
	PoolID         uint64
	Token          string
	TokenName      string
	RequiredAmount string
	EndTime        time.Time
	BlockNumber    uint64
	TxHash         string
}

// PoolUpdate is a partial update of a pool. Nil fields are left untouched.
//
// FinishedAt and DistributedRewardAt are monotonic: a stored value is never
// cleared or replaced by an earlier one. Winner and PrizeReward are written
// together, and only when WinnerPosition is not before the stored position.
type PoolUpdate struct {
	Finish              bool
	FinishedAt          *time.Time
	Winner              *string
	PrizeReward         *string
	WinnerPosition      model.Position
	DistributedRewardAt *time.Time
}

// AggregateStore is the only mutation surface of the projector. Every method is
// independently atomic.
type AggregateStore interface {
	UpsertPoolDefaults(ctx context.Context, pool PoolInsert) (UpsertResult, error)
	UpdatePoolIfExists(ctx context.Context, poolID uint64, update PoolUpdate) (UpdateResult, error)
	InsertDepositIfAbsent(ctx context.Context, deposit model.Deposit) (InsertResult, error)
}

// WatermarkStore persists the highest fully applied block under a name.
type WatermarkStore interface {
	LoadWatermark(ctx context.Context, name string) (uint64, bool, error)
	SaveWatermark(ctx context.Context, name string, block uint64) error
}

// ApplyPoolUpdate merges update into pool following the PoolUpdate rules and
// reports whether any field changed. Store implementations that hold records in
// memory share it so the merge policy lives in one place.
func ApplyPoolUpdate(pool *model.Pool, update PoolUpdate) bool {
	changed := false

	if update.Finish {
		if pool.Status != model.PoolStatusInactive || !pool.IsFinished {
			pool.Status = model.PoolStatusInactive
			pool.IsFinished = true
			changed = true
		}
	}
	if mergeMonotonic(&pool.FinishedAt, update.FinishedAt) {
		changed = true
	}
	if mergeMonotonic(&pool.DistributedRewardAt, update.DistributedRewardAt) {
		changed = true
	}

	if update.Winner != nil && update.PrizeReward != nil {
		if pool.WinnerPosition == nil || !update.WinnerPosition.Before(*pool.WinnerPosition) {
			if pool.Winner == nil || *pool.Winner != *update.Winner ||
				pool.PrizeReward == nil || *pool.PrizeReward != *update.PrizeReward ||
				pool.WinnerPosition == nil || *pool.WinnerPosition != update.WinnerPosition {
				winner, prize, pos := *update.Winner, *update.PrizeReward, update.WinnerPosition
				pool.Winner = &winner
				pool.PrizeReward = &prize
				pool.WinnerPosition = &pos
				changed = true
			}
		}
	}

	return changed
}

func mergeMonotonic(dst **time.Time, incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	if *dst != nil && !incoming.After(**dst) {
		return false
	}
	ts := incoming.UTC()
	*dst = &ts
	return true
}
