package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"poolindexer/internal/model"
)

// Memory is an in-process AggregateStore and WatermarkStore. It is safe for
// concurrent use and is used for dry runs and tests.
type Memory struct {
	mu         sync.RWMutex
	now        func() time.Time
	pools      map[uint64]*model.Pool
	deposits   []model.Deposit
	depositIdx map[string]int
	watermarks map[string]uint64
	failure    error
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		now:        func() time.Time { return time.Now().UTC() },
		pools:      make(map[uint64]*model.Pool),
		depositIdx: make(map[string]int),
		watermarks: make(map[string]uint64),
	}
}

// WithClock overrides the timestamp source for createdAt/updatedAt.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// FailWith makes every mutating call return err until reset with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failure = err
	m.mu.Unlock()
}

func (m *Memory) UpsertPoolDefaults(ctx context.Context, p PoolInsert) (UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return Existing, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return Existing, m.failure
	}

	if _, ok := m.pools[p.PoolID]; ok {
		return Existing, nil
	}

	now := m.now()
	endTime := p.EndTime.UTC()
	blockNumber := p.BlockNumber
	txHash := p.TxHash
	m.pools[p.PoolID] = &model.Pool{
		PoolID:         p.PoolID,
		Token:          p.Token,
		TokenName:      p.TokenName,
		RequiredAmount: p.RequiredAmount,
		EndTime:        &endTime,
		Status:         model.PoolStatusActive,
		BlockNumber:    &blockNumber,
		TxHash:         &txHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return Created, nil
}

func (m *Memory) UpdatePoolIfExists(ctx context.Context, poolID uint64, update PoolUpdate) (UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return NotFound, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return NotFound, m.failure
	}

	pool, ok := m.pools[poolID]
	if !ok {
		return NotFound, nil
	}
	if !ApplyPoolUpdate(pool, update) {
		return Unchanged, nil
	}
	pool.UpdatedAt = m.now()
	return Updated, nil
}

func (m *Memory) InsertDepositIfAbsent(ctx context.Context, d model.Deposit) (InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return AlreadyExists, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return AlreadyExists, m.failure
	}

	key, keyed := d.DedupKey()
	if keyed {
		if _, ok := m.depositIdx[key]; ok {
			return AlreadyExists, nil
		}
	}

	d.CreatedAt = m.now()
	if d.LogIndex != nil {
		idx := *d.LogIndex
		d.LogIndex = &idx
	}
	m.deposits = append(m.deposits, d)
	if keyed {
		m.depositIdx[key] = len(m.deposits) - 1
	}
	return Inserted, nil
}

func (m *Memory) LoadWatermark(_ context.Context, name string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.watermarks[name]
	return block, ok, nil
}

func (m *Memory) SaveWatermark(_ context.Context, name string, block uint64) error {
	m.mu.Lock()
	m.watermarks[name] = block
	m.mu.Unlock()
	return nil
}

// Pool returns a copy of the pool record.
func (m *Memory) Pool(poolID uint64) (model.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[poolID]
	if !ok {
		return model.Pool{}, false
	}
	return clonePool(*pool), true
}

// Deposits returns the deposits recorded for a pool in insertion order.
func (m *Memory) Deposits(poolID uint64) []model.Deposit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Deposit, 0)
	for _, d := range m.deposits {
		if d.PoolID == poolID {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot is a deep copy of the store contents.
type Snapshot struct {
	Pools    []model.Pool
	Deposits []model.Deposit
}

// Snapshot copies all records, pools ordered by id.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Pools:    make([]model.Pool, 0, len(m.pools)),
		Deposits: make([]model.Deposit, len(m.deposits)),
	}
	for _, pool := range m.pools {
		snap.Pools = append(snap.Pools, clonePool(*pool))
	}
	sort.Slice(snap.Pools, func(i, j int) bool { return snap.Pools[i].PoolID < snap.Pools[j].PoolID })
	copy(snap.Deposits, m.deposits)
	return snap
}

func clonePool(p model.Pool) model.Pool {
	out := p
	out.EndTime = cloneTime(p.EndTime)
	out.FinishedAt = cloneTime(p.FinishedAt)
	out.DistributedRewardAt = cloneTime(p.DistributedRewardAt)
	if p.Winner != nil {
		v := *p.Winner
		out.Winner = &v
	}
	if p.PrizeReward != nil {
		v := *p.PrizeReward
		out.PrizeReward = &v
	}
	if p.WinnerPosition != nil {
		v := *p.WinnerPosition
		out.WinnerPosition = &v
	}
	if p.BlockNumber != nil {
		v := *p.BlockNumber
		out.BlockNumber = &v
	}
	if p.TxHash != nil {
		v := *p.TxHash
		out.TxHash = &v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
