// Package resource implements a controller for shared limits.
//
// It governs three resources:
//
//   - Memory: the block cache reserves bytes before admitting a blob (non-blocking, fail-fast)
//   - Concurrency: a sweep fans blob deletes out to at most MaxWorkers goroutines
//   - IO: a token bucket that throttles blob store reads and writes
//
// Usage:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   256 << 20,
//	    MaxWorkers:         8,
//	    IOLimitBytesPerSec: 100 << 20,
//	})
//
//	if err := rc.AcquireIO(ctx, len(blob)); err != nil {
//	    return err
//	}
//
// All methods are safe for concurrent use, and a nil Controller is a no-op.
package resource
