package model

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validated is an event that passed Validate, with parsed keys.
type Validated struct {
	Event
	PoolID uint64
	// EndTime is set for PoolCreated only.
	EndTime time.Time
}

// Validate checks an event payload and returns a normalized copy. It never
// panics on malformed input; failures are *InvalidEventError.
func Validate(e Event) (Validated, error) {
	if e.Data == nil {
		return Validated{}, invalid(e.Kind, "data", "missing payload")
	}
	if e.Data.EventKind() != e.Kind {
		return Validated{}, invalid(e.Kind, "data", "payload is "+string(e.Data.EventKind()))
	}

	poolID, err := parsePoolID(e.Kind, e.Data.Pool())
	if err != nil {
		return Validated{}, err
	}

	out := Validated{Event: e, PoolID: poolID}

	switch data := e.Data.(type) {
	case PoolCreatedData:
		endTime, err := ParseTimestamp(data.EndTime)
		if err != nil {
			return Validated{}, invalid(e.Kind, "end_time", err.Error())
		}
		if amount, err := decimal.NewFromString(strings.TrimSpace(data.RequiredAmount)); err == nil {
			data.RequiredAmount = amount.String()
		}
		data.PoolID = strconv.FormatUint(poolID, 10)
		out.Data = data
		out.EndTime = endTime
	case DepositedData:
		if strings.TrimSpace(data.Participant) == "" {
			return Validated{}, invalid(e.Kind, "participant", "empty")
		}
		amount, err := parseAmount(e.Kind, "amount", data.Amount)
		if err != nil {
			return Validated{}, err
		}
		data.PoolID = strconv.FormatUint(poolID, 10)
		data.Participant = strings.TrimSpace(data.Participant)
		data.Amount = amount
		out.Data = data
	case PoolFinishedData:
		data.PoolID = strconv.FormatUint(poolID, 10)
		out.Data = data
	case PrizeDistributedData:
		winner, prize, err := validateWinner(e.Kind, data.Winner, data.PrizeAmount)
		if err != nil {
			return Validated{}, err
		}
		data.PoolID = strconv.FormatUint(poolID, 10)
		data.Winner, data.PrizeAmount = winner, prize
		out.Data = data
	case WinnerSelectedData:
		winner, prize, err := validateWinner(e.Kind, data.Winner, data.PrizeAmount)
		if err != nil {
			return Validated{}, err
		}
		data.PoolID = strconv.FormatUint(poolID, 10)
		data.Winner, data.PrizeAmount = winner, prize
		out.Data = data
	default:
		return Validated{}, invalid(e.Kind, "data", "unsupported payload")
	}

	return out, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, errEmpty
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(val, 0).UTC(), nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return time.Time{}, err
	}
	return tm.UTC(), nil
}

var errEmpty = errors.New("empty")

func parsePoolID(kind Kind, raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(kind, "pool_id", "empty")
	}
	if !isNumeric(raw) {
		return 0, invalid(kind, "pool_id", "not a non-negative integer")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalid(kind, "pool_id", "out of range")
	}
	return id, nil
}

func parseAmount(kind Kind, field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid(kind, field, "empty")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return "", invalid(kind, field, "not a decimal")
	}
	if amount.IsNegative() {
		return "", invalid(kind, field, "negative")
	}
	return amount.String(), nil
}

func validateWinner(kind Kind, winner, prize string) (string, string, error) {
	winner = strings.TrimSpace(winner)
	if winner == "" {
		return "", "", invalid(kind, "winner", "empty")
	}
	amount, err := parseAmount(kind, "prize_amount", prize)
	if err != nil {
		return "", "", err
	}
	return winner, amount, nil
}

func invalid(kind Kind, field, reason string) error {
	return &InvalidEventError{Kind: kind, Field: field, Reason: reason}
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
