// Package logging provides structured logging for the Saturn router and
// its workers.
//
// # Overview
//
// The logging package wraps log/slog with secret redaction and async
// buffered writes. Auth tokens and other credential-shaped values are
// stripped from log output before they reach a handler, both by key name
// (token, secret, password, ...) and by value pattern (Bearer headers,
// token=... assignments).
//
// # Usage
//
//	log, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    ...
//	}
//	defer log.Shutdown()
//
//	log.Info("worker connected", "shard", 3, "worker_id", 42)
//
// Component loggers carry fixed fields:
//
//	wlog := log.With("component", "supervisor", "shard", 3)
//
// # Context Fields
//
// Request-scoped identifiers travel on the context and are folded into
// log entries by the *Context methods:
//
//	ctx = logging.WithRequestID(ctx, id)
//	ctx = logging.WithShardID(ctx, shard)
//	log.InfoContext(ctx, "query dispatched")
package logging
