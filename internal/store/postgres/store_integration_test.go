//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"poolindexer/internal/model"
	"poolindexer/internal/projector"
	"poolindexer/internal/store"
)

const postgresImage = "postgres:16-alpine"

var (
	baseTime   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finishTime = baseTime.Add(time.Hour)
	rewardTime = baseTime.Add(2 * time.Hour)
)

type StoreSuite struct {
	suite.Suite
	ctx        context.Context
	cancel     context.CancelFunc
	container  *tcPostgres.PostgresContainer
	dsn        string
	store      *Store
	testCtx    context.Context
	testCancel context.CancelFunc
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	container, err := tcPostgres.Run(s.ctx,
		postgresImage,
		tcPostgres.WithDatabase("pools"),
		tcPostgres.WithUsername("indexer"),
		tcPostgres.WithPassword("indexer"),
		tcPostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.dsn = dsn

	s.Require().NoError(Migrate(s.dsn, nil))
	// a second run finds nothing to apply
	s.Require().NoError(Migrate(s.dsn, nil))

	st, err := NewStore(s.ctx, s.dsn)
	s.Require().NoError(err)
	s.store = st
}

func (s *StoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *StoreSuite) SetupTest() {
	s.testCtx, s.testCancel = context.WithTimeout(context.Background(), time.Minute)
	_, err := s.store.pool.Exec(s.testCtx, `TRUNCATE pools, deposits, indexer_state`)
	s.Require().NoError(err)
}

func (s *StoreSuite) TearDownTest() {
	if s.testCancel != nil {
		s.testCancel()
	}
}

func poolInsert(poolID uint64, token string) store.PoolInsert {
	return store.PoolInsert{
		PoolID:         poolID,
		Token:          token,
		TokenName:      "USDT",
		RequiredAmount: "1000",
		EndTime:        baseTime.Add(24 * time.Hour),
		BlockNumber:    10,
		TxHash:         "0xc10",
	}
}

func logIndex(i uint) *uint { return &i }

func (s *StoreSuite) mustPool(poolID uint64) model.Pool {
	pool, ok, err := s.store.GetPool(s.testCtx, poolID)
	s.Require().NoError(err)
	s.Require().True(ok, "pool %d", poolID)
	return pool
}

func (s *StoreSuite) countDeposits() int {
	var n int
	s.Require().NoError(s.store.pool.QueryRow(s.testCtx, `SELECT count(*) FROM deposits`).Scan(&n))
	return n
}

func (s *StoreSuite) TestUpsertPoolDefaultsNeverOverwrites() {
	res, err := s.store.UpsertPoolDefaults(s.testCtx, poolInsert(1, "0xToken"))
	s.Require().NoError(err)
	s.Equal(store.Created, res)

	res, err = s.store.UpsertPoolDefaults(s.testCtx, poolInsert(1, "0xOther"))
	s.Require().NoError(err)
	s.Equal(store.Existing, res)

	pool := s.mustPool(1)
	s.Equal("0xToken", pool.Token)
	s.Equal(model.PoolStatusActive, pool.Status)
	s.False(pool.IsFinished)
	s.Require().NotNil(pool.EndTime)
	s.True(baseTime.Add(24 * time.Hour).Equal(*pool.EndTime))
	s.Require().NotNil(pool.BlockNumber)
	s.Equal(uint64(10), *pool.BlockNumber)
}

func (s *StoreSuite) TestUpdatePoolIfExists() {
	res, err := s.store.UpdatePoolIfExists(s.testCtx, 7, store.PoolUpdate{Finish: true})
	s.Require().NoError(err)
	s.Equal(store.NotFound, res)

	_, err = s.store.UpsertPoolDefaults(s.testCtx, poolInsert(7, "0xToken"))
	s.Require().NoError(err)

	finish := store.PoolUpdate{Finish: true, FinishedAt: &finishTime}
	res, err = s.store.UpdatePoolIfExists(s.testCtx, 7, finish)
	s.Require().NoError(err)
	s.Equal(store.Updated, res)
	first := s.mustPool(7)

	// replay leaves the row untouched, updated_at included
	res, err = s.store.UpdatePoolIfExists(s.testCtx, 7, finish)
	s.Require().NoError(err)
	s.Equal(store.Unchanged, res)
	s.Equal(first, s.mustPool(7))

	earlier := baseTime
	res, err = s.store.UpdatePoolIfExists(s.testCtx, 7, store.PoolUpdate{Finish: true, FinishedAt: &earlier})
	s.Require().NoError(err)
	s.Equal(store.Unchanged, res)

	pool := s.mustPool(7)
	s.Equal(model.PoolStatusInactive, pool.Status)
	s.True(pool.IsFinished)
	s.Require().NotNil(pool.FinishedAt)
	s.True(finishTime.Equal(*pool.FinishedAt))
}

func (s *StoreSuite) TestWinnerFollowsChainPosition() {
	_, err := s.store.UpsertPoolDefaults(s.testCtx, poolInsert(3, "0xToken"))
	s.Require().NoError(err)

	prize := func(winner string, pos model.Position) store.PoolUpdate {
		amount := "1000"
		return store.PoolUpdate{Winner: &winner, PrizeReward: &amount, WinnerPosition: pos, DistributedRewardAt: &rewardTime}
	}

	res, err := s.store.UpdatePoolIfExists(s.testCtx, 3, prize("0xLate", model.Position{Block: 30, LogIndex: 2}))
	s.Require().NoError(err)
	s.Equal(store.Updated, res)

	res, err = s.store.UpdatePoolIfExists(s.testCtx, 3, prize("0xEarly", model.Position{Block: 30, LogIndex: 1}))
	s.Require().NoError(err)
	s.Equal(store.Unchanged, res)

	pool := s.mustPool(3)
	s.Require().NotNil(pool.Winner)
	s.Equal("0xLate", *pool.Winner)
	s.Equal(&model.Position{Block: 30, LogIndex: 2}, pool.WinnerPosition)
	s.Require().NotNil(pool.DistributedRewardAt)
	s.True(rewardTime.Equal(*pool.DistributedRewardAt))
}

func (s *StoreSuite) TestDepositDeduplication() {
	deposit := model.Deposit{
		PoolID:             1,
		ParticipantAddress: "0xA",
		Amount:             "500",
		TxHash:             "0xd1",
		LogIndex:           logIndex(0),
		BlockNumber:        11,
	}

	res, err := s.store.InsertDepositIfAbsent(s.testCtx, deposit)
	s.Require().NoError(err)
	s.Equal(store.Inserted, res)

	res, err = s.store.InsertDepositIfAbsent(s.testCtx, deposit)
	s.Require().NoError(err)
	s.Equal(store.AlreadyExists, res)

	other := deposit
	other.LogIndex = logIndex(1)
	res, err = s.store.InsertDepositIfAbsent(s.testCtx, other)
	s.Require().NoError(err)
	s.Equal(store.Inserted, res)

	// without a log index nothing can be matched, so both rows land
	unkeyed := deposit
	unkeyed.LogIndex = nil
	for i := 0; i < 2; i++ {
		res, err = s.store.InsertDepositIfAbsent(s.testCtx, unkeyed)
		s.Require().NoError(err)
		s.Equal(store.Inserted, res)
	}

	s.Equal(4, s.countDeposits())
}

func (s *StoreSuite) TestWatermarkNeverDecreases() {
	_, ok, err := s.store.LoadWatermark(s.testCtx, "pool-events")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.SaveWatermark(s.testCtx, "pool-events", 10))
	s.Require().NoError(s.store.SaveWatermark(s.testCtx, "pool-events", 5))

	block, ok, err := s.store.LoadWatermark(s.testCtx, "pool-events")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(uint64(10), block)
}

func (s *StoreSuite) TestOutOfRangeValuesAreRejected() {
	_, err := s.store.UpsertPoolDefaults(s.testCtx, poolInsert(1<<63, "0xToken"))
	s.ErrorIs(err, store.ErrRejected)

	far := poolInsert(2, "0xToken")
	far.EndTime = time.Date(300000, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.store.UpsertPoolDefaults(s.testCtx, far)
	s.ErrorIs(err, store.ErrRejected)

	_, ok, err := s.store.GetPool(s.testCtx, 2)
	s.Require().NoError(err)
	s.False(ok)
}

func event(kind model.Kind, data model.Payload, block uint64, index uint, ts *time.Time) model.Event {
	return model.Event{
		Kind: kind,
		Data: data,
		Provenance: model.Provenance{
			BlockNumber:    block,
			TxHash:         fmt.Sprintf("0x%s%d", kind, block),
			LogIndex:       logIndex(index),
			BlockTimestamp: ts,
		},
	}
}

func (s *StoreSuite) TestProjectionReplayAndOrderTolerance() {
	p := projector.New(s.store, projector.Config{})
	created := event(model.KindPoolCreated, model.PoolCreatedData{
		PoolID:         "9",
		Token:          "0xToken",
		TokenName:      "USDT",
		RequiredAmount: "1000",
		EndTime:        fmt.Sprint(baseTime.Add(24 * time.Hour).Unix()),
	}, 10, 0, nil)
	events := []model.Event{
		created,
		event(model.KindDeposited, model.DepositedData{PoolID: "9", Participant: "0xA", Amount: "500"}, 11, 0, nil),
		event(model.KindDeposited, model.DepositedData{PoolID: "9", Participant: "0xB", Amount: "500"}, 12, 0, nil),
		event(model.KindPoolFinished, model.PoolFinishedData{PoolID: "9"}, 20, 0, &finishTime),
		event(model.KindPrizeDistributed, model.PrizeDistributedData{PoolID: "9", Winner: "0xB", PrizeAmount: "1000"}, 21, 1, &rewardTime),
	}

	for _, ev := range events {
		_, err := p.Apply(s.testCtx, ev)
		s.Require().NoError(err)
	}
	want := s.mustPool(9)
	s.Equal(2, s.countDeposits())

	// replaying the whole history, newest first, changes nothing
	for i := len(events) - 1; i >= 0; i-- {
		_, err := p.Apply(s.testCtx, events[i])
		s.Require().NoError(err)
	}
	s.Equal(want, s.mustPool(9))
	s.Equal(2, s.countDeposits())
	s.True(want.IsFinished)
	s.Require().NotNil(want.Winner)
	s.Equal("0xB", *want.Winner)
}
