package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolindexer/internal/model"
	"poolindexer/internal/projector"
	"poolindexer/internal/store"
)

// State is the coordinator's ingestion phase.
type State int32

const (
	StateIdle State = iota
	StateBackfilling
	StateLive
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateBackfilling:
		return "backfilling"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "idle"
	}
}

// StateNames lists every State name.
func StateNames() []string {
	return []string{
		StateIdle.String(),
		StateBackfilling.String(),
		StateLive.String(),
		StateReconnecting.String(),
	}
}

const (
	defaultWatermarkName = "pool-events"
	defaultFlushInterval = 5 * time.Second
)

var (
	errSubscriptionClosed = errors.New("live subscription closed")
	errLiveEventDropped   = errors.New("live event dropped after store failure")
)

// Config holds runtime settings for the coordinator.
type Config struct {
	FromBlock uint64
	// ToBlock bounds the backfill. Nil follows the chain head at start.
	ToBlock      *uint64
	BatchSize    uint64
	Kinds        []model.Kind
	Workers      int
	QueueDepth   int
	MaxRetries   int
	RetryBackoff time.Duration
	Reconnect    Backoff
	// ConcurrentBackfill runs live ingestion alongside the backfill instead
	// of after it.
	ConcurrentBackfill bool
	// ReorderWindow is how many blocks the live watermark trails the newest
	// applied delivery, since subscriptions may deliver out of chain order.
	ReorderWindow uint64
	WatermarkName string
	FlushInterval time.Duration
}

// Coordinator drives backfill and live ingestion into one projection.
type Coordinator struct {
	cfg        Config
	source     EventSource
	applier    Applier
	watermarks store.WatermarkStore
	logger     *zap.Logger
	metrics    CoordinatorMetrics
	sleep      func(context.Context, time.Duration) error

	wm             watermark
	resume         bool
	backfillActive atomic.Bool
	liveState      atomic.Int32
	lanes          *lanes
}

// NewCoordinator builds a Coordinator with its dependencies.
func NewCoordinator(
	cfg Config,
	src EventSource,
	applier Applier,
	watermarks store.WatermarkStore,
	logger *zap.Logger,
	metrics CoordinatorMetrics,
) (*Coordinator, error) {
	if src == nil {
		return nil, fmt.Errorf("event source is nil")
	}
	if applier == nil {
		return nil, fmt.Errorf("applier is nil")
	}
	if watermarks == nil {
		return nil, fmt.Errorf("watermark store is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if cfg.ToBlock != nil && *cfg.ToBlock < cfg.FromBlock {
		return nil, fmt.Errorf("to block must be >= from block")
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = model.AllKinds()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WatermarkName == "" {
		cfg.WatermarkName = defaultWatermarkName
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Coordinator{
		cfg:        cfg,
		source:     src,
		applier:    applier,
		watermarks: watermarks,
		logger:     logger,
		metrics:    metrics,
		sleep:      sleepContext,
	}, nil
}

// State returns the current phase. A running backfill takes precedence over
// the live path's state.
func (c *Coordinator) State() State {
	if c.backfillActive.Load() {
		return StateBackfilling
	}
	return State(c.liveState.Load())
}

// Watermark returns the highest block known to be fully applied.
func (c *Coordinator) Watermark() uint64 {
	return c.wm.get()
}

// Backfill applies historical events up to the configured bound and returns.
func (c *Coordinator) Backfill(ctx context.Context) (report BackfillReport, err error) {
	to, err := c.prepare(ctx)
	if err != nil {
		return BackfillReport{}, err
	}
	defer func() {
		if stopErr := c.stop(ctx); err == nil {
			err = stopErr
		}
	}()

	report, err = c.backfill(ctx, to)
	report.log(c.logger)
	return report, shutdownErr(ctx, err)
}

// Run backfills and then follows the chain until ctx is cancelled. With
// ConcurrentBackfill the live path starts immediately. A cancelled ctx is a
// clean shutdown: queued events are drained and the watermark is saved.
func (c *Coordinator) Run(ctx context.Context) (err error) {
	to, err := c.prepare(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := c.stop(ctx); err == nil {
			err = stopErr
		}
	}()

	if !c.cfg.ConcurrentBackfill {
		report, err := c.backfill(ctx, to)
		report.log(c.logger)
		if err != nil {
			return shutdownErr(ctx, err)
		}
		return shutdownErr(ctx, c.live(ctx, to))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report, err := c.backfill(gctx, to)
		report.log(c.logger)
		return err
	})
	g.Go(func() error {
		return c.live(gctx, to)
	})
	return shutdownErr(ctx, g.Wait())
}

func (c *Coordinator) prepare(ctx context.Context) (uint64, error) {
	var (
		block uint64
		ok    bool
	)
	err := withRetry(ctx, c.sleep, c.cfg.MaxRetries, c.cfg.RetryBackoff, notCancelled, func(ctx context.Context) error {
		var err error
		block, ok, err = c.watermarks.LoadWatermark(ctx, c.cfg.WatermarkName)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}
	if ok {
		c.wm.init(block)
		c.resume = true
		c.metrics.SetWatermark(block)
		c.logger.Info("resume from watermark", zap.Uint64("last_processed", block))
	}

	to, err := c.resolveTo(ctx)
	if err != nil {
		return 0, err
	}

	c.lanes = startLanes(ctx, c.cfg.Workers, c.cfg.QueueDepth, c.handle)
	return to, nil
}

func (c *Coordinator) stop(ctx context.Context) error {
	c.lanes.close()
	c.setLiveState(StateIdle)
	return c.flush(ctx)
}

func (c *Coordinator) resolveTo(ctx context.Context) (uint64, error) {
	if c.cfg.ToBlock != nil {
		return *c.cfg.ToBlock, nil
	}
	var head uint64
	err := withRetry(ctx, c.sleep, c.cfg.MaxRetries, c.cfg.RetryBackoff, notCancelled, func(ctx context.Context) error {
		var err error
		head, err = c.source.LatestBlock(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return head, nil
}

func (c *Coordinator) backfill(ctx context.Context, to uint64) (BackfillReport, error) {
	from := c.cfg.FromBlock
	if c.resume {
		if wm := c.wm.get(); wm >= from {
			from = wm + 1
		}
	}
	report := newBackfillReport(from, to)

	c.wm.startBackfill()
	c.backfillActive.Store(true)
	c.publishState()
	defer func() {
		c.wm.finishBackfill()
		c.backfillActive.Store(false)
		c.publishState()
	}()

	if from > to {
		c.logger.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("to", to))
		report.Watermark = c.wm.get()
		return report, nil
	}

	ranges, err := SplitRange(from, to, c.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			report.Watermark = c.wm.get()
			return report, err
		}

		c.logger.Info("fetch range",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Uint64("blocks", blockRange.Len()),
		)

		events, failure := c.fetchRange(ctx, blockRange)
		if failure != nil {
			if ctx.Err() != nil {
				report.Watermark = c.wm.get()
				return report, ctx.Err()
			}
			c.wm.block()
			report.FailedRanges = append(report.FailedRanges, *failure)
			c.logger.Error("range fetch failed, watermark held",
				zap.Uint64("from", blockRange.From),
				zap.Uint64("to", blockRange.To),
				zap.String("kind", string(failure.Kind)),
				zap.Error(failure.Err),
			)
			continue
		}

		res, err := c.applyBatch(ctx, events)
		report.add(res)
		if err != nil {
			report.Watermark = c.wm.get()
			return report, err
		}
		if res.unavailable > 0 {
			c.wm.block()
			report.FailedRanges = append(report.FailedRanges, RangeFailure{
				Range: blockRange,
				Err:   fmt.Errorf("%d events dropped: %w", res.unavailable, model.ErrStoreUnavailable),
			})
			c.logger.Error("range applied with store failures, watermark held",
				zap.Uint64("from", blockRange.From),
				zap.Uint64("to", blockRange.To),
				zap.Int("dropped", res.unavailable),
			)
			continue
		}

		report.Ranges++
		if c.wm.commitRange(blockRange.To) {
			if err := c.flush(ctx); err != nil {
				report.Watermark = c.wm.get()
				return report, err
			}
		}

		c.logger.Info("range complete",
			zap.Int("events", len(events)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	report.Watermark = c.wm.get()
	return report, nil
}

// fetchRange fetches every configured kind for blockRange in lifecycle order.
func (c *Coordinator) fetchRange(ctx context.Context, blockRange BlockRange) ([]model.Event, *RangeFailure) {
	var events []model.Event
	for _, kind := range c.cfg.Kinds {
		var batch []model.Event
		started := time.Now()
		err := withRetry(ctx, c.sleep, c.cfg.MaxRetries, c.cfg.RetryBackoff, notCancelled, func(ctx context.Context) error {
			var err error
			batch, err = c.source.FetchRange(ctx, kind, blockRange.From, blockRange.To)
			if err != nil {
				c.logger.Warn("fetch range failed",
					zap.String("kind", string(kind)),
					zap.Uint64("from", blockRange.From),
					zap.Uint64("to", blockRange.To),
					zap.Error(err),
				)
			}
			return err
		})
		c.metrics.ObserveFetch(kind, err, started)
		if err != nil {
			return nil, &RangeFailure{Range: blockRange, Kind: kind, Err: err}
		}
		events = append(events, batch...)
	}
	return events, nil
}

type batchResult struct {
	applied     map[model.Kind]int
	failed      map[model.Kind]int
	unavailable int
}

// applyBatch pushes events through the lanes and waits until all of them are
// handled.
func (c *Coordinator) applyBatch(ctx context.Context, events []model.Event) (batchResult, error) {
	res := batchResult{
		applied: make(map[model.Kind]int),
		failed:  make(map[model.Kind]int),
	}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, event := range events {
		kind := event.Kind
		wg.Add(1)
		err := c.lanes.submit(ctx, event, func(err error) {
			defer wg.Done()
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.applied[kind]++
				return
			}
			res.failed[kind]++
			if transient(err) {
				res.unavailable++
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return res, err
		}
	}
	wg.Wait()
	return res, nil
}

// handle applies one event on a lane, retrying store failures. A failure that
// survives the retries is logged and the event is skipped.
func (c *Coordinator) handle(ctx context.Context, event model.Event) error {
	err := withRetry(ctx, c.sleep, c.cfg.MaxRetries, c.cfg.RetryBackoff, projector.Retryable, func(ctx context.Context) error {
		_, err := c.applier.Apply(ctx, event)
		return err
	})
	if err == nil {
		return nil
	}

	reason := "error"
	var pe *projector.Error
	if errors.As(err, &pe) {
		reason = string(pe.Code)
	}
	c.metrics.ObserveDropped(event.Kind, reason)

	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.Uint64("block", event.BlockNumber),
		zap.String("tx", event.TxHash),
		zap.String("reason", reason),
		zap.Error(err),
	}
	if event.Data != nil {
		fields = append(fields, zap.String("pool_id", event.Data.Pool()))
	}
	if transient(err) {
		c.logger.Error("apply failed, event skipped", fields...)
	} else {
		c.logger.Warn("event rejected", fields...)
	}
	return err
}

func (c *Coordinator) live(ctx context.Context, backfillTo uint64) error {
	covered := c.wm.get()
	if backfillTo > covered {
		covered = backfillTo
	}
	progress := newLiveProgress(covered, c.cfg.ReorderWindow)

	attempt := 0
	for {
		healthy, err := c.liveSession(ctx, progress)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if healthy {
			attempt = 0
		}

		c.setLiveState(StateReconnecting)
		c.metrics.ObserveReconnect()
		delay := c.cfg.Reconnect.Delay(attempt)
		attempt++
		c.logger.Warn("live subscription lost, reconnecting",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// liveSession subscribes, fills the gap between covered blocks and the head,
// then applies deliveries until the subscription fails or a delivery is
// dropped after a store failure. A dropped delivery ends the session so the
// next gap fill re-fetches its block. healthy reports whether the session
// streamed without dropping events.
func (c *Coordinator) liveSession(ctx context.Context, progress *liveProgress) (healthy bool, err error) {
	sub, err := c.source.Subscribe(ctx, c.cfg.Kinds)
	if err != nil {
		return false, err
	}
	defer sub.Unsubscribe()

	head, err := c.source.LatestBlock(ctx)
	if err != nil {
		return false, err
	}
	// Deliveries queue in the subscription while the gap is filled. A long
	// fill can overflow go-ethereum's notification buffer, which fails the
	// subscription; the next session then fills again from the covered block.
	if from := progress.value() + 1; head >= from {
		c.logger.Info("gap fill", zap.Uint64("from", from), zap.Uint64("to", head))
		if err := c.gapFill(ctx, from, head); err != nil {
			return false, err
		}
		progress.raise(head)
		c.wm.offerLive(head)
	}

	c.setLiveState(StateLive)
	c.logger.Info("live", zap.Uint64("from_block", progress.value()+1))

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	dropped := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errSubscriptionClosed
			}
			return true, err
		case event, ok := <-sub.Events():
			if !ok {
				return true, errSubscriptionClosed
			}
			block := event.BlockNumber
			progress.begin(block)
			err := c.lanes.submit(ctx, event, func(err error) {
				lost := err != nil && transient(err)
				c.wm.offerLive(progress.end(block, lost))
				if lost {
					select {
					case dropped <- struct{}{}:
					default:
					}
				}
			})
			if err != nil {
				return true, err
			}
		case <-dropped:
			return false, errLiveEventDropped
		case <-ticker.C:
			if err := c.flush(ctx); err != nil {
				c.logger.Warn("save watermark failed", zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) gapFill(ctx context.Context, from, to uint64) error {
	ranges, err := SplitRange(from, to, c.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, blockRange := range ranges {
		events, failure := c.fetchRange(ctx, blockRange)
		if failure != nil {
			return failure
		}
		res, err := c.applyBatch(ctx, events)
		if err != nil {
			return err
		}
		if res.unavailable > 0 {
			return fmt.Errorf("gap fill [%d,%d]: %d events dropped: %w",
				blockRange.From, blockRange.To, res.unavailable, model.ErrStoreUnavailable)
		}
	}
	return nil
}

// flush persists the watermark if it moved since the last save.
func (c *Coordinator) flush(ctx context.Context) error {
	block, ok := c.wm.take()
	if !ok {
		return nil
	}
	if err := c.watermarks.SaveWatermark(context.WithoutCancel(ctx), c.cfg.WatermarkName, block); err != nil {
		c.wm.restore()
		return fmt.Errorf("save watermark: %w", err)
	}
	c.metrics.SetWatermark(block)
	c.logger.Debug("watermark saved", zap.Uint64("block", block))
	return nil
}

func (c *Coordinator) setLiveState(s State) {
	c.liveState.Store(int32(s))
	c.publishState()
}

func (c *Coordinator) publishState() {
	c.metrics.SetState(c.State().String())
}

func notCancelled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// transient reports whether a failed apply may succeed later.
func transient(err error) bool {
	var pe *projector.Error
	if errors.As(err, &pe) {
		return pe.Code == projector.CodeStoreUnavailable
	}
	return true
}

func shutdownErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
