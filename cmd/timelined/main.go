package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonet/timeline/pkg/api"
	"github.com/sonet/timeline/pkg/cache"
	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/controller"
	"github.com/sonet/timeline/pkg/fanout"
	"github.com/sonet/timeline/pkg/filter"
	"github.com/sonet/timeline/pkg/graph"
	"github.com/sonet/timeline/pkg/log"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/ranking"
	"github.com/sonet/timeline/pkg/source"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timelined",
	Short: "Timelined - timeline generation service",
	Long: `Timelined computes ranked home timelines for a social network:
candidate fan-in from multiple sources, visibility filtering, pluggable
ranking, per-viewer caching with incremental fanout patching, and live
change subscriptions.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Timelined version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	serveCmd.Flags().String("config", "", "Path to configuration file (YAML)")
	serveCmd.Flags().String("listen-addr", "", "Listen address override")
	serveCmd.Flags().String("data-dir", "", "Data directory for the persistent note store (empty: in-memory)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the timeline service",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if listenAddr != "" {
			cfg.Server.ListenAddr = listenAddr
		}
		if dataDir != "" {
			cfg.Server.DataDir = dataDir
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Logging.Level),
			JSONOutput: cfg.Logging.JSON,
		})

		return run(cfg)
	},
}

func run(cfg *config.Config) error {
	var notes notestore.Store
	if cfg.Server.DataDir != "" {
		store, err := notestore.NewBoltStore(cfg.Server.DataDir)
		if err != nil {
			return fmt.Errorf("opening note store: %w", err)
		}
		notes = store
		log.Info().Str("data_dir", cfg.Server.DataDir).Msg("using persistent note store")
	} else {
		notes = notestore.NewMemoryStore()
		log.Info().Msg("using in-memory note store")
	}
	defer notes.Close()

	g := graph.NewMemoryGraph()
	seen := filter.NewSeenStore(cfg.Filter.SeenWindow)
	contentFilter := filter.New(g, notes, seen, cfg.Filter.GraceWindow)
	registry := ranking.NewRegistry(cfg.Ranking)

	timelineCache := cache.New(cfg.Cache.MaxViewers, cfg.Cache.TTL)
	timelineCache.SetEnabled(!cfg.Cache.Disabled)

	broker := fanout.NewBroker()
	broker.Start()
	defer broker.Stop()

	notifier := fanout.NewNotifier(g, timelineCache, notes, registry, broker, cfg.Fanout)
	notifier.Start()
	defer notifier.Stop()

	adapters := []source.Adapter{
		source.NewFollowingAdapter(g, notes),
		source.NewDiscoveryAdapter(g, notes),
	}
	ctrl := controller.New(cfg, adapters, contentFilter, registry, timelineCache, seen, notes)

	server := api.NewServer(cfg, ctrl, timelineCache, notes, notifier, broker, g)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
