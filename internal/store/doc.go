// Package store is the in-memory home of ingested run series, keyed by
// (run, tag). Each series keeps a small mutable tail of recent samples;
// once the tail fills, it is sealed into an immutable compressed block
// (delta-encoded steps, raw float bits, zstd). Reads
// reassemble a fresh RawSeries copy, so callers never alias store-owned
// memory.
package store
