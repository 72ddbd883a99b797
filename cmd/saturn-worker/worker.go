package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/supervisor"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/wire"
	"mercator-hq/saturn/pkg/worker"
)

// Version is the semantic version (set by build flags)
var Version = "0.1.0"

var workerFlags struct {
	connect       string
	shardID       uint32
	cacheDir      string
	maxRPCBytes   uint32
	allowInsecure bool
	legacy        bool

	tlsEnabled    bool
	tlsCA         string
	tlsCert       string
	tlsKey        string
	tlsServerName string

	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:     "saturn-worker",
	Short:   "Saturn shard worker",
	Long:    `Connect to a Saturn router and serve one shard's index.`,
	Version: Version,
	RunE:    runWorker,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&workerFlags.connect, "connect", "", "router address (unix:///path or host:port)")
	rootCmd.Flags().Uint32Var(&workerFlags.shardID, "shard-id", 0, "shard served by this worker")
	rootCmd.Flags().StringVar(&workerFlags.cacheDir, "cache-dir", "", "index cache directory")
	rootCmd.Flags().Uint32Var(&workerFlags.maxRPCBytes, "max-rpc-bytes", 0, "frame size limit override")
	rootCmd.Flags().BoolVar(&workerFlags.allowInsecure, "allow-insecure", false, "permit the auth token over plaintext TCP")
	rootCmd.Flags().BoolVar(&workerFlags.legacy, "legacy", false, "speak the version 2 lockstep protocol")

	rootCmd.Flags().BoolVar(&workerFlags.tlsEnabled, "tls", false, "connect with TLS")
	rootCmd.Flags().StringVar(&workerFlags.tlsCA, "tls-ca", "", "CA certificate to verify the router")
	rootCmd.Flags().StringVar(&workerFlags.tlsCert, "tls-cert", "", "client certificate for mTLS")
	rootCmd.Flags().StringVar(&workerFlags.tlsKey, "tls-key", "", "client key for mTLS")
	rootCmd.Flags().StringVar(&workerFlags.tlsServerName, "tls-server-name", "", "expected router certificate name")

	rootCmd.Flags().StringVar(&workerFlags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&workerFlags.logFormat, "log-format", "json", "log format (json, text)")

	rootCmd.MarkFlagRequired("connect")
}

func runWorker(cmd *cobra.Command, args []string) error {
	log, err := logging.New(logging.Config{
		Level:  workerFlags.logLevel,
		Format: workerFlags.logFormat,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Shutdown()

	var tlsCfg *tls.Config
	if workerFlags.tlsEnabled {
		tlsCfg, err = clientTLS()
		if err != nil {
			return fmt.Errorf("tls setup: %w", err)
		}
	}

	run := worker.NewRunner(worker.RunnerConfig{
		ConnectAddr:   workerFlags.connect,
		ShardID:       protocol.ShardID(workerFlags.shardID),
		CacheDir:      workerFlags.cacheDir,
		BuildVersion:  Version,
		AuthToken:     os.Getenv(supervisor.AuthTokenEnvVar),
		AllowInsecure: workerFlags.allowInsecure,
		TLS:           tlsCfg,
		Legacy:        workerFlags.legacy,
		Limits:        wire.WithMaxFrameBytes(workerFlags.maxRPCBytes),
		Log:           log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func clientTLS() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS13,
		ServerName: workerFlags.tlsServerName,
	}
	if workerFlags.tlsCA != "" {
		pem, err := os.ReadFile(workerFlags.tlsCA)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", workerFlags.tlsCA)
		}
		cfg.RootCAs = pool
	}
	if workerFlags.tlsCert != "" || workerFlags.tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(workerFlags.tlsCert, workerFlags.tlsKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
