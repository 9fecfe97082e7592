package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/streamingfast/bstream"
	firehose "github.com/streamingfast/bstream/stream"
	"github.com/streamingfast/dstore"
	_ "github.com/streamingfast/sf-ethereum/types"
	"github.com/streamingfast/subgraph-runtime/chain"
	"github.com/streamingfast/subgraph-runtime/host"
	"github.com/streamingfast/subgraph-runtime/manifest"
	"github.com/streamingfast/subgraph-runtime/metrics"
	"github.com/streamingfast/subgraph-runtime/query"
	"github.com/streamingfast/subgraph-runtime/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run <manifest> [<manifest>...]",
	Short: "Index the given subgraphs from a blocks store and serve entity queries",
	RunE:  runRun,
	Args:  cobra.MinimumNArgs(1),
}

func init() {
	runCmd.Flags().String("blocks-store-url", "./localblocks", "URL of the merged blocks store")
	runCmd.Flags().Int64P("start-block", "s", -1, "Start block for blockchain firehose, lowest data source start block when negative")
	runCmd.Flags().Uint64P("stop-block", "t", 0, "Stop block (exclusive) for blockchain firehose, 0 to follow the chain")

	runCmd.Flags().String("store-dsn", "sqlite://./entities.db", "Entity store DSN (postgres://, pgx:// or sqlite://)")
	runCmd.Flags().String("http-listen-addr", ":8000", "Address the query server listens on")
	runCmd.Flags().String("metrics-listen-addr", ":9102", "Address prometheus metrics are served on, empty to disable")

	runCmd.Flags().Int("output-capacity", host.DefaultOutputCapacity, "Entity events a host buffers before blocking its mappings")
	runCmd.Flags().Int("max-entity-operations", host.DefaultMaxOperations, "Entity operations a single handler invocation may emit, 0 for no limit")
	runCmd.Flags().Duration("teardown-grace", host.DefaultTeardownGrace, "How long shutdown waits for pending entity events to be written")
	runCmd.Flags().StringSlice("data-sources", nil, "Only run these data sources of each manifest")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := bstream.ValidateRegistry(); err != nil {
		return fmt.Errorf("bstream validate registry %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	entities, err := store.New(ctx, mustGetString(cmd, "store-dsn"), store.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("setting up entity store: %w", err)
	}
	defer entities.Close()

	hub := chain.NewHub(zlog)
	builder := host.NewBuilder(hub, zlog,
		host.WithMetrics(m),
		host.WithDefaultOptions(
			host.WithOutputCapacity(mustGetInt(cmd, "output-capacity")),
			host.WithMaxOperations(mustGetInt(cmd, "max-entity-operations")),
			host.WithTeardownGrace(mustGetDuration(cmd, "teardown-grace")),
			host.WithDataSources(mustGetStringSlice(cmd, "data-sources")...),
		),
	)

	hosts, err := buildHosts(ctx, builder, args)
	if err != nil {
		hub.Shutdown(err)
		return err
	}

	startBlock := mustGetInt64(cmd, "start-block")
	if startBlock < 0 {
		startBlock = int64(lowestStartBlock(hosts))
	}

	blocksStore, err := dstore.NewDBinStore(mustGetString(cmd, "blocks-store-url"))
	if err != nil {
		shutdownHosts(hosts, err)
		hub.Shutdown(err)
		return fmt.Errorf("setting up blocks store: %w", err)
	}

	server := query.NewServer(mustGetString(cmd, "http-listen-addr"), query.WithMetrics(m), query.WithLogger(zlog))
	queries, err := server.TakeQueryStream()
	if err != nil {
		shutdownHosts(hosts, err)
		hub.Shutdown(err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, h := range hosts {
		h := h
		writer := store.NewWriter(entities, h.SubgraphManifest().ID)
		g.Go(func() error {
			// The writer drains the host until its stream closes on shutdown.
			return writer.Run(context.Background(), h)
		})
	}

	g.Go(func() error {
		return ignoreCanceled(query.NewExecutor(entities, zlog).Run(gctx, queries))
	})
	g.Go(server.Serve)

	if addr := mustGetString(cmd, "metrics-listen-addr"); addr != "" {
		metricsServer := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			zlog.Info("serving metrics", zap.String("listen_addr", addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return metricsServer.Close()
		})
	}

	hose := firehose.New([]dstore.Store{blocksStore}, startBlock, chain.NewBlockHandler(gctx, hub, mustGetUint64(cmd, "stop-block"), zlog),
		firehose.WithForkableSteps(bstream.StepIrreversible),
	)
	g.Go(func() error {
		zlog.Info("starting firehose", zap.Int64("start_block", startBlock))
		err := hose.Run(gctx)
		if err != nil && !errors.Is(err, io.EOF) {
			return ignoreCanceled(fmt.Errorf("running the firehose: %w", err))
		}

		zlog.Info("chain stream ended, hosts keep serving queries until interrupted")
		hub.Shutdown(nil)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down", zap.Error(gctx.Err()))

		for _, h := range hosts {
			h.Shutdown(nil)
		}
		for _, h := range hosts {
			<-h.Terminated()
		}
		hub.Shutdown(nil)
		server.Shutdown(nil)
		return nil
	})

	return g.Wait()
}

func buildHosts(ctx context.Context, builder *host.Builder, manifestPaths []string) ([]*host.RuntimeHost, error) {
	var hosts []*host.RuntimeHost
	for _, path := range manifestPaths {
		manif, err := manifest.New(path)
		if err != nil {
			shutdownHosts(hosts, err)
			return nil, fmt.Errorf("read manifest %q: %w", path, err)
		}

		h, err := builder.Build(ctx, manif)
		if err != nil {
			shutdownHosts(hosts, err)
			return nil, fmt.Errorf("building runtime host for %q: %w", path, err)
		}

		if err := h.SubscriptionError(); err != nil {
			zlog.Warn("some subscriptions were rejected", zap.String("subgraph_id", manif.ID), zap.Error(err))
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func shutdownHosts(hosts []*host.RuntimeHost, err error) {
	for _, h := range hosts {
		h.Shutdown(err)
		<-h.Terminated()
	}
}

func lowestStartBlock(hosts []*host.RuntimeHost) uint64 {
	var lowest uint64
	first := true
	for _, h := range hosts {
		for _, sub := range h.Subscriptions() {
			if first || sub.Range.From < lowest {
				lowest = sub.Range.From
				first = false
			}
		}
	}
	return lowest
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
