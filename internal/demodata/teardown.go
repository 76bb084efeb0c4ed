package demodata

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/obs"
)

// DefaultTeardownParallelism bounds how many collections are purged at once.
const DefaultTeardownParallelism = 4

// Teardown deletes demo-tagged documents. Collections are purged concurrently,
// pages within a collection sequentially.
type Teardown struct {
	store       docstore.Store
	threshold   int
	parallelism int
	log         *zap.Logger
}

func newTeardown(store docstore.Store, threshold, parallelism int, log *zap.Logger) *Teardown {
	if parallelism <= 0 {
		parallelism = DefaultTeardownParallelism
	}
	return &Teardown{store: store, threshold: threshold, parallelism: parallelism, log: log}
}

// Run purges every collection, continuing past failures. It returns deleted
// counts per collection and the first failure as a *TeardownCollectionError.
// onStart, if set, is called as each collection begins.
func (t *Teardown) Run(ctx context.Context, collections []string, onStart func(collection string)) (map[string]int, error) {
	var (
		mu       sync.Mutex
		deleted  = make(map[string]int, len(collections))
		firstErr *TeardownCollectionError
	)
	var g errgroup.Group
	g.SetLimit(t.parallelism)
	for _, name := range collections {
		g.Go(func() error {
			if onStart != nil {
				onStart(name)
			}
			n, err := t.purge(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			deleted[name] = n
			obs.DocumentsDeleted.WithLabelValues(name).Add(float64(n))
			if err != nil {
				t.log.Error("teardown collection failed", zap.String("collection", name), zap.Int("deleted", n), zap.Error(err))
				if firstErr == nil {
					firstErr = &TeardownCollectionError{Collection: name, Deleted: n, Err: err}
				}
				return nil
			}
			t.log.Info("teardown collection done", zap.String("collection", name), zap.Int("deleted", n))
			return nil
		})
	}
	_ = g.Wait()
	if firstErr != nil {
		return deleted, firstErr
	}
	return deleted, nil
}

func (t *Teardown) purge(ctx context.Context, collection string) (int, error) {
	session, err := NewBatchSession(t.store, t.threshold, t.log)
	if err != nil {
		return 0, err
	}
	session.Begin("teardown:" + collection)

	cursor := ""
	for {
		page, err := t.store.Query(ctx, collection, docstore.Query{OnlyTagged: true, StartAfter: cursor, Limit: t.threshold})
		if err != nil {
			return session.Counts()[collection], err
		}
		if len(page) == 0 {
			break
		}
		for _, snap := range page {
			cursor = snap.Ref.ID
			if !snap.Data.Tagged() {
				continue
			}
			if err := session.Delete(ctx, collection, snap.Ref); err != nil {
				return session.Counts()[collection], err
			}
		}
		if err := session.FlushFinal(ctx); err != nil {
			return session.Counts()[collection], err
		}
		if len(page) < t.threshold {
			break
		}
	}
	return session.Counts()[collection], nil
}
