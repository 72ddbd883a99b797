package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/router"
	tlssec "mercator-hq/saturn/pkg/security/tls"
	"mercator-hq/saturn/pkg/shardcache"
	"mercator-hq/saturn/pkg/supervisor"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/telemetry/metrics"
	"mercator-hq/saturn/pkg/workspace"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Saturn query router",
	Long: `Start the query router with the specified configuration.

The router listens for worker connections on the configured address,
indexes the workspace once every shard has a worker, and keeps the
indexes current as source files change.

Examples:
  # Start with default config
  saturn run

  # Start with custom config
  saturn run --config /etc/saturn/config.yaml

  # Override the worker listen address
  saturn run --listen 127.0.0.1:7600

  # Validate config without starting
  saturn run --dry-run`,
	RunE: runRouter,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override worker listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "watch source roots even when the config disables it")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the router")
}

func runRouter(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Router.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.watch {
		cfg.Watch.Enabled = true
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	log, err := logging.NewFromConfig(cfg.Telemetry.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Shutdown()

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Saturn v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	layout, err := workspace.NewLayout(cfg.Workspace.Roots...)
	if err != nil {
		return fmt.Errorf("workspace layout: %w", err)
	}
	fmt.Printf("✓ Workspace partitioned (%d shards)\n", layout.NumShards())

	met := metrics.New(&cfg.Telemetry.Metrics, nil)
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Telemetry.Metrics.Path, met.Handler())
		metricsSrv := &http.Server{Addr: cfg.Telemetry.Metrics.ListenAddress, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	routerOpts := []router.Option{router.WithMetrics(met)}
	if cfg.Router.SpawnWorkers && cfg.Cache.Dir != "" {
		if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
		journal, err := supervisor.OpenJournal(filepath.Join(cfg.Cache.Dir, "worker-journal.db"), log)
		if err != nil {
			return fmt.Errorf("open worker journal: %w", err)
		}
		defer journal.Close()
		routerOpts = append(routerOpts, router.WithJournal(journal))
	}

	r, err := router.NewDistributed(routerConfig(cfg), layout, log, routerOpts...)
	if err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	fmt.Printf("✓ Router listening on %s\n", r.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Router.ShutdownTimeout)
		defer cancel()
		return r.Shutdown(shutdownCtx)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, time.Minute)
	err = r.WaitReady(readyCtx)
	cancelReady()
	if err != nil {
		shutdown()
		return fmt.Errorf("workers did not connect: %w", err)
	}
	fmt.Println("✓ Workers connected")

	report, err := r.IndexWorkspace(ctx)
	if err != nil {
		shutdown()
		return fmt.Errorf("index workspace: %w", err)
	}
	if failed := report.Failed(); len(failed) > 0 {
		log.Warn("some shards failed to index", "shards", failed)
	} else {
		fmt.Println("✓ Workspace indexed")
	}

	// Prune stale shard caches on the configured schedule.
	var pruner *cron.Cron
	if cfg.Cache.PruneSchedule != "" {
		pruner = cron.New()
		_, err := pruner.AddFunc(cfg.Cache.PruneSchedule, func() {
			start := time.Now()
			res, err := shardcache.Prune(cfg.Cache.Dir, cfg.Cache.MaxAge, cfg.Cache.MaxTotalBytes, time.Now())
			if err != nil {
				log.Warn("cache prune failed", "error", err)
				return
			}
			met.RecordCachePrune(res.Removed, res.RemovedBytes, res.KeptBytes, time.Since(start))
			log.Info("cache pruned",
				"removed", res.Removed,
				"removed_bytes", res.RemovedBytes,
				"kept_bytes", res.KeptBytes)
		})
		if err != nil {
			shutdown()
			return fmt.Errorf("cache prune schedule: %w", err)
		}
		pruner.Start()
		defer pruner.Stop()
	}

	if cfg.Watch.Enabled {
		watcher, err := workspace.NewWatcher(layout, workspace.WatcherConfig{
			DebounceInterval: cfg.Watch.Debounce,
		}, log)
		if err != nil {
			shutdown()
			return fmt.Errorf("start watcher: %w", err)
		}
		go func() {
			err := watcher.Watch(ctx, func(change workspace.FileChange) {
				updateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				text := change.Text
				if change.Removed {
					text = ""
				}
				if _, err := r.UpdateFile(updateCtx, change.Path, text); err != nil {
					log.Warn("file update failed", "path", change.Path, "error", err)
				}
			})
			if err != nil && ctx.Err() == nil {
				log.Error("watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
		fmt.Println("✓ Watching source roots for changes")
	}

	fmt.Println("\nPress Ctrl+C to stop")
	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
	if err := shutdown(); err != nil {
		log.Error("shutdown failed", "error", err)
		return err
	}
	fmt.Println("✓ Router stopped")
	return nil
}

// routerConfig assembles the router's listener configuration from the
// config file sections.
func routerConfig(cfg *config.Config) router.DistributedConfig {
	listen := router.ListenAddr{
		Network: cfg.Router.ListenNetwork,
		Addr:    cfg.Router.ListenAddress,
	}
	if cfg.Security.TLS.Enabled {
		listen.TLS = securityTLS(cfg.Security.TLS)
	}
	return router.DistributedConfig{
		Listen:                listen,
		AuthToken:             cfg.Router.AuthToken,
		AllowInsecureTCP:      cfg.Router.AllowInsecureTCP,
		SpawnWorkers:          cfg.Router.SpawnWorkers,
		WorkerCommand:         cfg.Router.WorkerCommand,
		CacheDir:              cfg.Cache.Dir,
		MaxRPCBytes:           uint32(cfg.Router.MaxRPCBytes),
		MaxInflightHandshakes: cfg.Router.MaxInflightHandshakes,
		MaxWorkerConnections:  cfg.Router.MaxWorkerConnections,
	}
}

// securityTLS maps the config file's TLS section onto the TLS package's
// configuration. The two structs share a shape; the copy keeps the
// config package free of a dependency on the TLS internals.
func securityTLS(t config.TLSConfig) *tlssec.Config {
	return &tlssec.Config{
		Enabled:        t.Enabled,
		CertFile:       t.CertFile,
		KeyFile:        t.KeyFile,
		MinVersion:     t.MinVersion,
		CipherSuites:   t.CipherSuites,
		ReloadInterval: t.ReloadInterval,
		MTLS: tlssec.MTLSConfig{
			Enabled:             t.MTLS.Enabled,
			ClientCAFile:        t.MTLS.ClientCAFile,
			ClientAuthType:      t.MTLS.ClientAuthType,
			AllowedFingerprints: t.MTLS.AllowedFingerprints,
			ShardFingerprints:   t.MTLS.ShardFingerprints,
		},
	}
}
