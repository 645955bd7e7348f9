package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"poolindexer/internal/contract"
	"poolindexer/internal/model"
)

// ChainClient is the subset of chain.Client used by the adapter.
type ChainClient interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
}

// EthereumConfig configures the Ethereum adapter.
type EthereumConfig struct {
	Contract common.Address
	// RPS caps historical log queries per second. Zero disables the limit.
	RPS    int
	Logger *zap.Logger
}

// Ethereum reads pool contract events through go-ethereum.
type Ethereum struct {
	client   ChainClient
	live     ChainClient
	decoder  *contract.Decoder
	contract common.Address
	rl       ratelimit.Limiter
	logger   *zap.Logger
}

var _ EventSource = (*Ethereum)(nil)

// NewEthereum builds an adapter. client serves range queries and head lookups;
// live serves subscriptions and may be nil when no websocket endpoint is set.
func NewEthereum(client, live ChainClient, decoder *contract.Decoder, cfg EthereumConfig) *Ethereum {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := ratelimit.NewUnlimited()
	if cfg.RPS > 0 {
		rl = ratelimit.New(cfg.RPS)
	}
	return &Ethereum{
		client:   client,
		live:     live,
		decoder:  decoder,
		contract: cfg.Contract,
		rl:       rl,
		logger:   logger,
	}
}

// LatestBlock returns the chain head.
func (e *Ethereum) LatestBlock(ctx context.Context) (uint64, error) {
	head, err := e.client.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: latest block: %w", model.ErrSource, err)
	}
	return head, nil
}

// FetchRange queries logs of one kind in [from, to].
func (e *Ethereum) FetchRange(ctx context.Context, kind model.Kind, from, to uint64) ([]model.Event, error) {
	topic, ok := e.decoder.Topic(kind)
	if !ok {
		return nil, fmt.Errorf("unsupported event kind %q", kind)
	}

	e.rl.Take()
	logs, err := e.client.FilterLogs(ctx, from, to, []common.Address{e.contract}, []common.Hash{topic})
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s logs [%d,%d]: %w", model.ErrSource, kind, from, to, err)
	}

	events := make([]model.Event, 0, len(logs))
	for _, lg := range logs {
		event, ok, err := e.convert(ctx, e.client, lg)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, event)
		}
	}
	return events, nil
}

// Subscribe opens a log subscription for kinds over the live client.
func (e *Ethereum) Subscribe(ctx context.Context, kinds []model.Kind) (Subscription, error) {
	if e.live == nil {
		return nil, fmt.Errorf("%w: live subscription requires a websocket rpc endpoint", model.ErrSource)
	}
	topics := e.decoder.Topics(kinds)
	if len(topics) == 0 {
		return nil, fmt.Errorf("no event kinds to subscribe")
	}

	logs := make(chan types.Log, 128)
	sub, err := e.live.SubscribeLogs(ctx, []common.Address{e.contract}, topics, logs)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe logs: %w", model.ErrSource, err)
	}

	s := &ethSubscription{
		events: make(chan model.Event),
		errCh:  make(chan error, 1),
		quit:   make(chan struct{}),
		sub:    sub,
	}
	s.wg.Add(1)
	go s.loop(ctx, e, logs)
	return s, nil
}

// convert decodes a log and attaches the block timestamp for kinds that use
// it. ok is false for logs that must be skipped.
func (e *Ethereum) convert(ctx context.Context, client ChainClient, lg types.Log) (model.Event, bool, error) {
	if lg.Removed {
		e.logger.Debug("skip removed log",
			zap.Uint64("block", lg.BlockNumber),
			zap.String("tx", lg.TxHash.Hex()),
		)
		return model.Event{}, false, nil
	}

	event, err := e.decoder.Decode(lg)
	if err != nil {
		if errors.Is(err, contract.ErrUnknownTopic) {
			return model.Event{}, false, nil
		}
		e.logger.Warn("undecodable log",
			zap.Uint64("block", lg.BlockNumber),
			zap.String("tx", lg.TxHash.Hex()),
			zap.Uint("log_index", lg.Index),
			zap.Error(err),
		)
	}

	if needsTimestamp(event.Kind) {
		ts, err := client.BlockTimestamp(ctx, lg.BlockNumber)
		if err != nil {
			return model.Event{}, false, fmt.Errorf("%w: block %d timestamp: %w", model.ErrSource, lg.BlockNumber, err)
		}
		t := time.Unix(int64(ts), 0).UTC()
		event.BlockTimestamp = &t
	}
	return event, true, nil
}

func needsTimestamp(kind model.Kind) bool {
	return kind == model.KindPoolFinished || kind == model.KindPrizeDistributed
}

type ethSubscription struct {
	events chan model.Event
	errCh  chan error
	quit   chan struct{}
	sub    ethereum.Subscription

	once sync.Once
	wg   sync.WaitGroup
}

func (s *ethSubscription) Events() <-chan model.Event { return s.events }

func (s *ethSubscription) Err() <-chan error { return s.errCh }

// Unsubscribe stops delivery and waits for the forwarding goroutine.
func (s *ethSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.sub.Unsubscribe()
	})
	s.wg.Wait()
}

func (s *ethSubscription) loop(ctx context.Context, e *Ethereum, logs <-chan types.Log) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case err, ok := <-s.sub.Err():
			if !ok || err == nil {
				err = errors.New("subscription closed")
			}
			s.fail(fmt.Errorf("%w: %w", model.ErrSource, err))
			return
		case lg := <-logs:
			event, ok, err := e.convert(ctx, e.live, lg)
			if err != nil {
				s.fail(err)
				return
			}
			if !ok {
				continue
			}
			select {
			case s.events <- event:
			case <-s.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ethSubscription) fail(err error) {
	select {
	case <-s.quit:
	case s.errCh <- err:
	}
}
