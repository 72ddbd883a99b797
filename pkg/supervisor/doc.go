// Package supervisor keeps worker processes running.
//
// Each supervised shard owns one worker process. When the process exits
// outside an explicit shutdown it is restarted after an exponential
// backoff (50ms doubling to a 5s ceiling, with jitter), and the backoff
// resets once a session stays healthy for ten seconds. Explicit shutdown
// bypasses the backoff entirely: the worker gets a termination signal, a
// grace period, and then a hard kill.
//
// The worker's auth token travels in an environment variable, never on
// the command line, so it cannot leak through process listings.
//
// Lifecycle transitions are recorded to a best-effort SQLite journal for
// post-mortem inspection; journal failures never affect supervision.
package supervisor
