// Package workspace models the source tree the router serves.
//
// A Layout is an ordered list of source roots; shard i serves root i, so
// the mapping from file path to shard is a pure function of the layout.
// The package also collects the initial file set for indexing and, in
// watch mode, turns filesystem events into per-file updates.
package workspace
