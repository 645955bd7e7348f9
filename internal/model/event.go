package model

import (
	"strings"
	"time"
)

// Kind names a pool contract event.
type Kind string

const (
	KindPoolCreated      Kind = "PoolCreated"
	KindDeposited        Kind = "Deposited"
	KindPoolFinished     Kind = "PoolFinished"
	KindPrizeDistributed Kind = "PrizeDistributed"
	KindWinnerSelected   Kind = "WinnerSelected"
)

// AllKinds returns every event kind in pool lifecycle order.
func AllKinds() []Kind {
	return []Kind{
		KindPoolCreated,
		KindDeposited,
		KindPoolFinished,
		KindPrizeDistributed,
		KindWinnerSelected,
	}
}

// ParseKind matches an event name case-insensitively.
func ParseKind(name string) (Kind, bool) {
	for _, kind := range AllKinds() {
		if strings.EqualFold(string(kind), strings.TrimSpace(name)) {
			return kind, true
		}
	}
	return "", false
}

// Provenance locates an event on chain.
type Provenance struct {
	BlockNumber    uint64     `json:"block_number"`
	TxHash         string     `json:"tx_hash"`
	LogIndex       *uint      `json:"log_index,omitempty"`
	BlockTimestamp *time.Time `json:"block_timestamp,omitempty"`
}

// Event is a decoded contract event. Data holds one of the *Data payload types
// matching Kind; payload values are kept as decoded strings until Validate.
type Event struct {
	Kind Kind    `json:"kind"`
	Data Payload `json:"data"`
	Provenance
}

// Payload is implemented by the per-kind event payloads.
type Payload interface {
	EventKind() Kind
	Pool() string
}

// PoolCreatedData is the PoolCreated payload.
type PoolCreatedData struct {
	PoolID         string `json:"pool_id"`
	Token          string `json:"token"`
	TokenName      string `json:"token_name"`
	RequiredAmount string `json:"required_amount"`
	EndTime        string `json:"end_time"`
}

// DepositedData is the Deposited payload.
type DepositedData struct {
	PoolID      string `json:"pool_id"`
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
}

// PoolFinishedData is the PoolFinished payload.
type PoolFinishedData struct {
	PoolID string `json:"pool_id"`
}

// PrizeDistributedData is the PrizeDistributed payload.
type PrizeDistributedData struct {
	PoolID      string `json:"pool_id"`
	Winner      string `json:"winner"`
	PrizeAmount string `json:"prize_amount"`
}

// WinnerSelectedData is the WinnerSelected payload. Unlike PrizeDistributed it
// carries no timestamp semantics.
type WinnerSelectedData struct {
	PoolID      string `json:"pool_id"`
	Winner      string `json:"winner"`
	PrizeAmount string `json:"prize_amount"`
}

func (PoolCreatedData) EventKind() Kind      { return KindPoolCreated }
func (DepositedData) EventKind() Kind        { return KindDeposited }
func (PoolFinishedData) EventKind() Kind     { return KindPoolFinished }
func (PrizeDistributedData) EventKind() Kind { return KindPrizeDistributed }
func (WinnerSelectedData) EventKind() Kind   { return KindWinnerSelected }

func (d PoolCreatedData) Pool() string      { return d.PoolID }
func (d DepositedData) Pool() string        { return d.PoolID }
func (d PoolFinishedData) Pool() string     { return d.PoolID }
func (d PrizeDistributedData) Pool() string { return d.PoolID }
func (d WinnerSelectedData) Pool() string   { return d.PoolID }
