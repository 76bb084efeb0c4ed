package demodata

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/obs"
)

// BatchSession accumulates writes for one run and commits them in atomic
// batches of at most Threshold operations. Each run constructs its own session.
type BatchSession struct {
	store     docstore.Store
	threshold int
	log       *zap.Logger

	stage   string
	batch   docstore.Batch
	pending map[string]int
	counts  map[string]int
	commits []int
}

// NewBatchSession validates threshold against the store's hard ceiling.
func NewBatchSession(store docstore.Store, threshold int, log *zap.Logger) (*BatchSession, error) {
	if threshold <= 0 || threshold >= store.MaxBatchOps() {
		return nil, fmt.Errorf("%w: threshold %d, ceiling %d", ErrInvalidThreshold, threshold, store.MaxBatchOps())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchSession{
		store:     store,
		threshold: threshold,
		log:       log,
		pending:   make(map[string]int),
		counts:    make(map[string]int),
	}, nil
}

// Threshold is the number of staged operations that triggers a commit.
func (s *BatchSession) Threshold() int { return s.threshold }

// Begin names the stage that owns the writes staged from now on.
func (s *BatchSession) Begin(stage string) {
	s.stage = stage
}

// Set stages a tagged write of data at ref and commits if the threshold is reached.
// entity names the counter the write is reported under once committed.
func (s *BatchSession) Set(ctx context.Context, entity string, ref docstore.Ref, data docstore.Document, opts docstore.SetOptions) error {
	doc := data.Clone()
	doc[docstore.TagField] = true
	s.open().Set(ref, doc, opts)
	s.pending[entity]++
	return s.FlushIfNeeded(ctx)
}

// Delete stages a delete of ref and commits if the threshold is reached.
func (s *BatchSession) Delete(ctx context.Context, entity string, ref docstore.Ref) error {
	s.open().Delete(ref)
	s.pending[entity]++
	return s.FlushIfNeeded(ctx)
}

// Pending reports staged, uncommitted operations.
func (s *BatchSession) Pending() int {
	if s.batch == nil {
		return 0
	}
	return s.batch.Len()
}

// FlushIfNeeded commits the current batch once it holds Threshold operations.
func (s *BatchSession) FlushIfNeeded(ctx context.Context) error {
	if s.Pending() < s.threshold {
		return nil
	}
	return s.flush(ctx)
}

// FlushFinal commits whatever is staged, however few operations that is.
func (s *BatchSession) FlushFinal(ctx context.Context) error {
	if s.Pending() == 0 {
		return nil
	}
	return s.flush(ctx)
}

// Counts returns committed operations per entity.
func (s *BatchSession) Counts() map[string]int {
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Commits returns the operation count of each commit in order.
func (s *BatchSession) Commits() []int { return append([]int(nil), s.commits...) }

func (s *BatchSession) open() docstore.Batch {
	if s.batch == nil {
		s.batch = s.store.Batch()
	}
	return s.batch
}

func (s *BatchSession) flush(ctx context.Context) error {
	ops := s.batch.Len()
	if err := s.batch.Commit(ctx); err != nil {
		s.log.Error("batch commit failed", zap.String("stage", s.stage), zap.Int("ops", ops), zap.Error(err))
		s.batch = nil
		clear(s.pending)
		return &StageWriteError{Stage: s.stage, Err: err}
	}
	s.batch = nil
	s.commits = append(s.commits, ops)
	for entity, n := range s.pending {
		s.counts[entity] += n
	}
	clear(s.pending)
	obs.BatchCommits.WithLabelValues(s.stage).Inc()
	s.log.Debug("batch committed", zap.String("stage", s.stage), zap.Int("ops", ops))
	return nil
}
