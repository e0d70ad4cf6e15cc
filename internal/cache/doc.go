// Package cache provides a byte-budgeted LRU for immutable blobs.
//
// Entries are keyed by blob reference. Since blobs are write-once, a cached
// value never goes stale; it only has to be dropped when the blob is deleted.
// Memory is optionally charged against a resource.Controller so several caches
// can share one budget.
package cache
