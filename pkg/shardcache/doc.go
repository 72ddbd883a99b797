// Package shardcache persists shard indexes between worker runs.
//
// The cache is strictly an optimization: Load never returns an error for
// a bad cache file. Absence, corruption, truncation, version skew, and
// shard mismatch all come back as a miss, and the worker rebuilds from
// source. Save writes atomically (temp file, fsync, rename) so a crash
// mid-save leaves either the old file or the new one, never a torn mix.
package shardcache
