// Package telemetry groups the router's observability concerns.
//
// # Components
//
//   - logging: structured logging with secret redaction
//   - metrics: Prometheus metrics for queries, the worker fleet, and the
//     shard cache
//
// # Usage
//
//	cfg := config.GetConfig()
//
//	log, err := logging.NewFromConfig(cfg.Telemetry.Logging)
//	if err != nil {
//		return err
//	}
//	defer log.Shutdown()
//
//	met := metrics.New(&cfg.Telemetry.Metrics, nil)
//	http.Handle(cfg.Telemetry.Metrics.Path, met.Handler())
//
// # Secret Protection
//
// The worker auth token lives in router memory for the process lifetime.
// Loggers redact it by key (token, secret, password and friends) and by
// value pattern, so a stray log line cannot leak what the handshake
// protects.
package telemetry
