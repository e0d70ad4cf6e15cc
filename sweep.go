package docstash

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/docstash/blobstore"
	"golang.org/x/sync/errgroup"
)

// SweepStats summarizes an orphan sweep.
type SweepStats struct {
	// Blobs is the number of blobs listed in the store.
	Blobs int
	// Referenced is the number of distinct references held by documents.
	Referenced int
	// Orphans is the number of listed blobs no document references.
	Orphans int
	// Deleted is the number of orphans removed.
	Deleted int
}

// Sweep deletes blobs that no document references, such as the leftovers
// of a failed Save.
//
// The blob store must implement blobstore.Lister and must not be shared with
// anything but this adapter's collection. Sweep is not safe to run while
// saves are in flight: a blob written by a concurrent Save is an orphan until
// its document is inserted.
func (a *Adapter) Sweep(ctx context.Context) (SweepStats, error) {
	if a.closed.Load() {
		return SweepStats{}, ErrClosed
	}

	start := time.Now()
	stats, err := a.sweep(ctx)
	a.opts.metricsCollector.RecordSweep(stats.Deleted, time.Since(start), err)
	a.opts.logger.LogSweep(ctx, stats.Blobs, stats.Deleted, err)
	return stats, err
}

func (a *Adapter) sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	refs, err := blobstore.List(ctx, a.blobs)
	if err != nil {
		return stats, fmt.Errorf("%w: list blobs: %w", ErrStoreRead, err)
	}
	stats.Blobs = len(refs)

	live := make(map[blobstore.Ref]struct{})
	for doc, err := range a.coll.Find(ctx, nil) {
		if err != nil {
			return stats, translateQueryError(err)
		}
		for _, ref := range doc.BlobRefs() {
			live[blobstore.Ref(ref)] = struct{}{}
		}
	}
	stats.Referenced = len(live)

	var orphans []blobstore.Ref
	for _, ref := range refs {
		if _, ok := live[ref]; !ok {
			orphans = append(orphans, ref)
		}
	}
	stats.Orphans = len(orphans)

	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.resources.MaxWorkers())
	for _, ref := range orphans {
		g.Go(func() error {
			err := a.blobs.Delete(gctx, ref)
			if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
				return fmt.Errorf("%w: delete blob %s: %w", ErrStoreWrite, ref, err)
			}
			if err == nil {
				deleted.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	stats.Deleted = int(deleted.Load())
	return stats, err
}
