package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolindexer/internal/model"
	"poolindexer/internal/store"
)

// Store provides Postgres persistence for pools, deposits and indexer state.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ store.AggregateStore = (*Store)(nil)
	_ store.WatermarkStore = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPoolDefaults inserts a pool with creation defaults. An existing row is
// never modified.
func (s *Store) UpsertPoolDefaults(ctx context.Context, p store.PoolInsert) (store.UpsertResult, error) {
	id, err := poolKey(p.PoolID)
	if err != nil {
		return store.Existing, err
	}
	blockNumber, err := toInt64(p.BlockNumber)
	if err != nil {
		return store.Existing, err
	}
	if err := checkTimes(&p.EndTime); err != nil {
		return store.Existing, err
	}

	var inserted int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO pools (
			pool_id, token, token_name, required_amount, end_time,
			status, is_finished, block_number, tx_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'active', false, $6, $7, now(), now())
		ON CONFLICT (pool_id) DO NOTHING
		RETURNING pool_id
	`,
		id,
		p.Token,
		p.TokenName,
		p.RequiredAmount,
		p.EndTime.UTC(),
		blockNumber,
		p.TxHash,
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Existing, nil
		}
		return store.Existing, classify(err)
	}
	return store.Created, nil
}

// UpdatePoolIfExists locks the pool row, merges the update with
// store.ApplyPoolUpdate and writes the row back only when something changed.
func (s *Store) UpdatePoolIfExists(ctx context.Context, poolID uint64, update store.PoolUpdate) (store.UpdateResult, error) {
	id, err := poolKey(poolID)
	if err != nil {
		return store.NotFound, err
	}
	if err := checkTimes(update.FinishedAt, update.DistributedRewardAt); err != nil {
		return store.NotFound, err
	}

	result := store.NotFound
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			pool        model.Pool
			status      string
			winnerBlock *int64
			winnerIndex *int64
		)
		err := tx.QueryRow(ctx, `
			SELECT status, is_finished, finished_at, winner, prize_reward,
				winner_block, winner_log_index, distributed_reward_at
			FROM pools WHERE pool_id = $1
			FOR UPDATE
		`, id).Scan(
			&status,
			&pool.IsFinished,
			&pool.FinishedAt,
			&pool.Winner,
			&pool.PrizeReward,
			&winnerBlock,
			&winnerIndex,
			&pool.DistributedRewardAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				result = store.NotFound
				return nil
			}
			return err
		}
		pool.Status = model.PoolStatus(status)
		if winnerBlock != nil {
			pos := model.Position{Block: uint64(*winnerBlock)}
			if winnerIndex != nil {
				pos.LogIndex = uint(*winnerIndex)
			}
			pool.WinnerPosition = &pos
		}

		if !store.ApplyPoolUpdate(&pool, update) {
			result = store.Unchanged
			return nil
		}

		var newBlock, newIndex *int64
		if pool.WinnerPosition != nil {
			b, err := toInt64(pool.WinnerPosition.Block)
			if err != nil {
				return err
			}
			i := int64(pool.WinnerPosition.LogIndex)
			newBlock, newIndex = &b, &i
		}

		_, err = tx.Exec(ctx, `
			UPDATE pools SET
				status = $2,
				is_finished = $3,
				finished_at = $4,
				winner = $5,
				prize_reward = $6,
				winner_block = $7,
				winner_log_index = $8,
				distributed_reward_at = $9,
				updated_at = now()
			WHERE pool_id = $1
		`,
			id,
			string(pool.Status),
			pool.IsFinished,
			pool.FinishedAt,
			pool.Winner,
			pool.PrizeReward,
			newBlock,
			newIndex,
			pool.DistributedRewardAt,
		)
		if err != nil {
			return err
		}
		result = store.Updated
		return nil
	})
	if err != nil {
		return store.NotFound, classify(err)
	}
	return result, nil
}

// InsertDepositIfAbsent inserts a deposit unless (tx_hash, log_index) already
// exists. Rows without a log index never conflict.
func (s *Store) InsertDepositIfAbsent(ctx context.Context, d model.Deposit) (store.InsertResult, error) {
	id, err := poolKey(d.PoolID)
	if err != nil {
		return store.AlreadyExists, err
	}
	blockNumber, err := toInt64(d.BlockNumber)
	if err != nil {
		return store.AlreadyExists, err
	}
	var logIndex *int64
	if d.LogIndex != nil {
		v := int64(*d.LogIndex)
		logIndex = &v
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO deposits (
			pool_id, participant_address, amount, tx_hash, log_index, block_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		id,
		d.ParticipantAddress,
		d.Amount,
		d.TxHash,
		logIndex,
		blockNumber,
	)
	if err != nil {
		return store.AlreadyExists, classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.AlreadyExists, nil
	}
	return store.Inserted, nil
}

// GetPool returns a pool by id.
func (s *Store) GetPool(ctx context.Context, poolID uint64) (model.Pool, bool, error) {
	id, err := poolKey(poolID)
	if err != nil {
		return model.Pool{}, false, err
	}

	var (
		pool        model.Pool
		status      string
		winnerBlock *int64
		winnerIndex *int64
		blockNumber *int64
	)
	err = s.pool.QueryRow(ctx, `
		SELECT token, token_name, required_amount, end_time, status, is_finished,
			finished_at, winner, prize_reward, winner_block, winner_log_index,
			distributed_reward_at, block_number, tx_hash, created_at, updated_at
		FROM pools WHERE pool_id = $1
	`, id).Scan(
		&pool.Token,
		&pool.TokenName,
		&pool.RequiredAmount,
		&pool.EndTime,
		&status,
		&pool.IsFinished,
		&pool.FinishedAt,
		&pool.Winner,
		&pool.PrizeReward,
		&winnerBlock,
		&winnerIndex,
		&pool.DistributedRewardAt,
		&blockNumber,
		&pool.TxHash,
		&pool.CreatedAt,
		&pool.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, false, nil
		}
		return model.Pool{}, false, err
	}

	pool.PoolID = poolID
	pool.Status = model.PoolStatus(status)
	pool.EndTime = utc(pool.EndTime)
	pool.FinishedAt = utc(pool.FinishedAt)
	pool.DistributedRewardAt = utc(pool.DistributedRewardAt)
	pool.CreatedAt = pool.CreatedAt.UTC()
	pool.UpdatedAt = pool.UpdatedAt.UTC()
	if winnerBlock != nil {
		pos := model.Position{Block: uint64(*winnerBlock)}
		if winnerIndex != nil {
			pos.LogIndex = uint(*winnerIndex)
		}
		pool.WinnerPosition = &pos
	}
	if blockNumber != nil {
		v := uint64(*blockNumber)
		pool.BlockNumber = &v
	}
	return pool, true, nil
}

// LoadWatermark returns last_processed_block for a name.
func (s *Store) LoadWatermark(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveWatermark upserts last_processed_block for a name. The stored value
// never decreases.
func (s *Store) SaveWatermark(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	value, err := toInt64(block)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = GREATEST(indexer_state.last_processed_block, EXCLUDED.last_processed_block),
			updated_at = now()
	`, name, value)
	return err
}

func poolKey(poolID uint64) (int64, error) {
	if poolID > math.MaxInt64 {
		return 0, fmt.Errorf("%w: pool id %d exceeds bigint range", store.ErrRejected, poolID)
	}
	return int64(poolID), nil
}

func toInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: value %d exceeds bigint range", store.ErrRejected, v)
	}
	return int64(v), nil
}

// timestamptz spans 4713 BC to 294276 AD.
var (
	minTimestamp = time.Date(-4712, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxTimestamp = time.Date(294276, time.January, 1, 0, 0, 0, 0, time.UTC)
)

func checkTimes(times ...*time.Time) error {
	for _, t := range times {
		if t == nil {
			continue
		}
		if t.Before(minTimestamp) || !t.Before(maxTimestamp) {
			return fmt.Errorf("%w: time %d is outside the timestamptz range", store.ErrRejected, t.Unix())
		}
	}
	return nil
}

// classify marks data exceptions and constraint violations as rejections.
// Anything else may be a connection problem and is left retryable.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%w: %w", store.ErrRejected, err)
	}
	return err
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
