package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolindexer/internal/model"
)

// ErrUnknownTopic is returned for logs that are not pool contract events.
var ErrUnknownTopic = errors.New("unknown topic0")

// argument names accepted for each payload field, so ABI files that name
// inputs differently still decode.
var fieldAliases = map[string][]string{
	"poolId":         {"poolId", "_poolId", "id", "pool"},
	"token":          {"tokenAddress", "token", "_token"},
	"tokenName":      {"tokenName", "name", "_tokenName"},
	"requiredAmount": {"requiredAmount", "_requiredAmount"},
	"endTime":        {"endTime", "_endTime", "deadline"},
	"participant":    {"participant", "user", "depositor", "sender"},
	"amount":         {"amount", "_amount", "value"},
	"winner":         {"winner", "_winner"},
	"prizeAmount":    {"prizeAmount", "prize", "reward", "amount"},
}

// Decoder converts pool contract logs into model events.
type Decoder struct {
	contractABI abi.ABI
	topicToKind map[common.Hash]model.Kind
	kindToTopic map[model.Kind]common.Hash
}

// NewDecoder builds a decoder for the given ABI.
func NewDecoder(contractABI abi.ABI) (*Decoder, error) {
	d := &Decoder{
		contractABI: contractABI,
		topicToKind: make(map[common.Hash]model.Kind),
		kindToTopic: make(map[model.Kind]common.Hash),
	}
	for _, kind := range model.AllKinds() {
		ev, ok := contractABI.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("abi missing event %s", kind)
		}
		d.topicToKind[ev.ID] = kind
		d.kindToTopic[kind] = ev.ID
	}
	return d, nil
}

// Topic returns the topic0 hash for a kind.
func (d *Decoder) Topic(kind model.Kind) (common.Hash, bool) {
	h, ok := d.kindToTopic[kind]
	return h, ok
}

// Topics returns the topic0 hashes for kinds, skipping unknown kinds.
func (d *Decoder) Topics(kinds []model.Kind) []common.Hash {
	out := make([]common.Hash, 0, len(kinds))
	for _, kind := range kinds {
		if h, ok := d.kindToTopic[kind]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Decode converts a log into an event. When the log matches a pool event but
// its arguments cannot be unpacked, the returned event still carries the kind
// and provenance with an empty payload, alongside a non-nil error, so that
// validation rejects it downstream.
func (d *Decoder) Decode(log types.Log) (model.Event, error) {
	if len(log.Topics) == 0 {
		return model.Event{}, fmt.Errorf("missing topics: %w", ErrUnknownTopic)
	}
	kind, ok := d.topicToKind[log.Topics[0]]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrUnknownTopic, log.Topics[0].Hex())
	}

	idx := log.Index
	event := model.Event{
		Kind: kind,
		Provenance: model.Provenance{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash.Hex(),
			LogIndex:    &idx,
		},
	}

	args, err := d.unpack(kind, log)
	if err != nil {
		event.Data = emptyPayload(kind)
		return event, fmt.Errorf("decode %s: %w", kind, err)
	}

	switch kind {
	case model.KindPoolCreated:
		event.Data = model.PoolCreatedData{
			PoolID:         args.get("poolId"),
			Token:          args.get("token"),
			TokenName:      args.get("tokenName"),
			RequiredAmount: args.get("requiredAmount"),
			EndTime:        args.get("endTime"),
		}
	case model.KindDeposited:
		event.Data = model.DepositedData{
			PoolID:      args.get("poolId"),
			Participant: args.get("participant"),
			Amount:      args.get("amount"),
		}
	case model.KindPoolFinished:
		event.Data = model.PoolFinishedData{PoolID: args.get("poolId")}
	case model.KindPrizeDistributed:
		event.Data = model.PrizeDistributedData{
			PoolID:      args.get("poolId"),
			Winner:      args.get("winner"),
			PrizeAmount: args.get("prizeAmount"),
		}
	case model.KindWinnerSelected:
		event.Data = model.WinnerSelectedData{
			PoolID:      args.get("poolId"),
			Winner:      args.get("winner"),
			PrizeAmount: args.get("prizeAmount"),
		}
	}
	return event, nil
}

type decodedArgs map[string]interface{}

func (a decodedArgs) get(field string) string {
	for _, name := range fieldAliases[field] {
		if v, ok := a[name]; ok {
			return formatValue(v)
		}
	}
	return ""
}

func (d *Decoder) unpack(kind model.Kind, log types.Log) (decodedArgs, error) {
	ev := d.contractABI.Events[string(kind)]

	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(log.Topics)-1)
	}

	out := make(decodedArgs)
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(out, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
	}
	if err := ev.Inputs.UnpackIntoMap(out, log.Data); err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	return out, nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return ""
		}
		return val.String()
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return common.Bytes2Hex(val)
	default:
		return fmt.Sprint(val)
	}
}

func emptyPayload(kind model.Kind) model.Payload {
	switch kind {
	case model.KindPoolCreated:
		return model.PoolCreatedData{}
	case model.KindDeposited:
		return model.DepositedData{}
	case model.KindPoolFinished:
		return model.PoolFinishedData{}
	case model.KindPrizeDistributed:
		return model.PrizeDistributedData{}
	default:
		return model.WinnerSelectedData{}
	}
}
