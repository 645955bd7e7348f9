package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolindexer/internal/chain"
	"poolindexer/internal/config"
	"poolindexer/internal/contract"
	"poolindexer/internal/indexer"
	"poolindexer/internal/metrics"
	"poolindexer/internal/projector"
	"poolindexer/internal/source"
	"poolindexer/internal/store"
	"poolindexer/internal/store/postgres"
)

func runIndexer(cmd *cobra.Command, _ []string) error {
	return ingest(cmd, true)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	return ingest(cmd, false)
}

func ingest(cmd *cobra.Command, follow bool) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, cfg, follow, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	logger.Info("indexer start",
		zap.String("rpc", redactURL(cfg.RPCURL)),
		zap.String("contract", cfg.Contract),
		zap.Uint64("from", cfg.FromBlock),
		zap.String("to", blockLabel(cfg.ToBlock)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("store", cfg.Store),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("watermark_file", cfg.WatermarkFile),
		zap.Int("workers", cfg.Workers),
		zap.Bool("follow", follow),
		zap.Bool("concurrent_backfill", cfg.ConcurrentBackfill),
	)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, logger)
		})
	}
	g.Go(func() error {
		// stop the metrics listener once ingestion returns
		defer stop()
		if follow {
			return svc.coordinator.Run(gctx)
		}
		report, err := svc.coordinator.Backfill(gctx)
		if err != nil {
			return err
		}
		if !report.Complete() {
			return fmt.Errorf("backfill finished with %d failed ranges, watermark %d", len(report.FailedRanges), report.Watermark)
		}
		return nil
	})
	return g.Wait()
}

type service struct {
	coordinator *indexer.Coordinator
	closers     []func()
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newService dials the chain and the store and wires the ingestion pipeline.
// Any unreachable dependency fails startup.
func newService(ctx context.Context, cfg config.Config, follow bool, logger *zap.Logger) (_ *service, err error) {
	svc := &service{}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	contractAddr, err := source.ParseAddress(cfg.Contract)
	if err != nil {
		return nil, fmt.Errorf("contract: %w", err)
	}
	kinds, err := cfg.Kinds()
	if err != nil {
		return nil, err
	}

	contractABI, err := contract.LoadABI(cfg.EventABI)
	if err != nil {
		return nil, err
	}
	decoder, err := contract.NewDecoder(contractABI)
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	svc.closers = append(svc.closers, client.Close)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	logger.Info("rpc connected", zap.String("chain_id", chainID.String()))

	var live source.ChainClient
	if follow {
		subURL := cfg.SubscribeURL()
		if !isWebsocket(subURL) {
			return nil, fmt.Errorf("live ingestion needs a websocket endpoint, set ws-rpc (got %s)", redactURL(subURL))
		}
		if subURL == cfg.RPCURL {
			live = client
		} else {
			wsClient, err := chain.NewClient(ctx, subURL)
			if err != nil {
				return nil, fmt.Errorf("connect ws rpc: %w", err)
			}
			svc.closers = append(svc.closers, wsClient.Close)
			live = wsClient
		}
	}

	src := source.NewEthereum(client, live, decoder, source.EthereumConfig{
		Contract: contractAddr,
		RPS:      cfg.RPCRPS,
		Logger:   logger.Named("source"),
	})

	var (
		aggregates store.AggregateStore
		watermarks store.WatermarkStore
	)
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		svc.closers = append(svc.closers, pg.Close)
		aggregates, watermarks = pg, pg
	default:
		logger.Warn("using the in-memory store, projections are lost on exit")
		mem := store.NewMemory()
		aggregates, watermarks = mem, mem
	}
	if cfg.WatermarkFile != "" {
		watermarks = indexer.NewFileWatermarkStore(cfg.WatermarkFile)
	}

	proj := projector.New(aggregates, projector.Config{
		Logger:   logger.Named("projector"),
		Observer: metrics.NewProjector(),
	})

	coordinator, err := indexer.NewCoordinator(indexer.Config{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		BatchSize:    cfg.BatchSize,
		Kinds:        kinds,
		Workers:      cfg.Workers,
		QueueDepth:   cfg.QueueDepth,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Reconnect: indexer.Backoff{
			Initial:    cfg.ReconnectInitial,
			Max:        cfg.ReconnectMax,
			Multiplier: cfg.ReconnectMultiplier,
		},
		ConcurrentBackfill: cfg.ConcurrentBackfill,
		ReorderWindow:      cfg.ReorderWindow,
		FlushInterval:      cfg.FlushInterval,
	}, src, proj, watermarks, logger.Named("coordinator"), metrics.NewCoordinator(indexer.StateNames()...))
	if err != nil {
		return nil, err
	}
	svc.coordinator = coordinator
	return svc, nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func isWebsocket(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "ws" || u.Scheme == "wss"
}

func blockLabel(block *uint64) string {
	if block == nil {
		return "latest"
	}
	return fmt.Sprintf("%d", *block)
}

// redactURL keeps only the scheme and host of an RPC endpoint. Providers put
// API keys in the path, the query or the user info.
func redactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	out := u.Scheme + "://" + u.Host
	if u.User != nil || strings.Trim(u.Path, "/") != "" || u.RawQuery != "" {
		out += "/xxxxx"
	}
	return out
}

var dsnPassword = regexp.MustCompile(`(?i)(password=)\S+`)

// redactDSN hides the password of a URL or key=value Postgres DSN.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "<invalid dsn>"
		}
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}xxxxx")
}
