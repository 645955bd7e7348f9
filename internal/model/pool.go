package model

import (
	"fmt"
	"time"
)

// PoolStatus is the lifecycle status of a pool.
type PoolStatus string

const (
	PoolStatusActive   PoolStatus = "active"
	PoolStatusInactive PoolStatus = "inactive"
)

// Pool is the aggregate projected from pool contract events.
type Pool struct {
	PoolID              uint64     `json:"poolId"`
	Token               string     `json:"token"`
	TokenName           string     `json:"tokenName"`
	RequiredAmount      string     `json:"requiredAmount"`
	EndTime             *time.Time `json:"endTime"`
	Status              PoolStatus `json:"status"`
	IsFinished          bool       `json:"isFinished"`
	FinishedAt          *time.Time `json:"finishedAt"`
	Winner              *string    `json:"winner"`
	PrizeReward         *string    `json:"prizeReward"`
	DistributedRewardAt *time.Time `json:"distributedRewardAt"`
	WinnerPosition      *Position  `json:"winnerPosition,omitempty"`
	BlockNumber         *uint64    `json:"blockNumber"`
	TxHash              *string    `json:"txHash"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Deposit is an immutable participant deposit into a pool.
type Deposit struct {
	PoolID             uint64    `json:"poolId"`
	ParticipantAddress string    `json:"participantAddress"`
	Amount             string    `json:"amount"`
	TxHash             string    `json:"txHash"`
	LogIndex           *uint     `json:"logIndex"`
	BlockNumber        uint64    `json:"blockNumber"`
	CreatedAt          time.Time `json:"createdAt"`
}

// DedupKey returns the (txHash, logIndex) identity of the deposit. ok is false
// when the log index is unknown and the deposit cannot be deduplicated.
func (d Deposit) DedupKey() (string, bool) {
	if d.LogIndex == nil || d.TxHash == "" {
		return "", false
	}
	return fmt.Sprintf("%s:%d", d.TxHash, *d.LogIndex), true
}

// Position orders events on chain by block and log index.
type Position struct {
	Block    uint64 `json:"block"`
	LogIndex uint   `json:"logIndex"`
}

// Before reports whether p sits strictly earlier on chain than o.
func (p Position) Before(o Position) bool {
	if p.Block != o.Block {
		return p.Block < o.Block
	}
	return p.LogIndex < o.LogIndex
}

// Position returns the chain position of the event. A missing log index sorts
// first within its block.
func (p Provenance) Position() Position {
	pos := Position{Block: p.BlockNumber}
	if p.LogIndex != nil {
		pos.LogIndex = *p.LogIndex
	}
	return pos
}
