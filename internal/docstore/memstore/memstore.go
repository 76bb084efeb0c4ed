// Package memstore implements docstore.Store in process memory.
package memstore

import (
	"context"
	"sort"
	"sync"

	"google.golang.org/grpc/codes"

	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/ids"
)

// Rule can veto an operation before it is applied, emulating a rules-based
// store. op is "get", "set", "delete" or "query".
type Rule func(op string, ref docstore.Ref) error

// Store keeps collections in maps guarded by a single RWMutex.
type Store struct {
	mu      sync.RWMutex
	cols    map[string]map[string]docstore.Document
	maxOps  int
	rule    Rule
	commits []int
}

var _ docstore.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithMaxBatchOps overrides the per-commit ceiling.
func WithMaxBatchOps(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOps = n
		}
	}
}

// WithRule installs an access rule.
func WithRule(r Rule) Option {
	return func(s *Store) { s.rule = r }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		cols:   make(map[string]map[string]docstore.Document),
		maxOps: docstore.DefaultMaxBatchOps,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRule replaces the access rule; nil allows everything.
func (s *Store) SetRule(r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rule = r
}

func (s *Store) MaxBatchOps() int { return s.maxOps }

func (s *Store) NewRef(collection string) docstore.Ref {
	return docstore.Ref{Collection: collection, ID: ids.New()}
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := s.check("get", ref); err != nil {
		return docstore.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.cols[ref.Collection][ref.ID]
	if !ok {
		return docstore.Snapshot{}, &docstore.Error{Op: "get", Ref: ref, Code: codes.NotFound, Err: docstore.ErrNotFound}
	}
	return docstore.Snapshot{Ref: ref, Data: docstore.Apply(nil, doc, docstore.SetOptions{})}, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, data docstore.Document, opts docstore.SetOptions) error {
	if err := s.check("set", ref); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(docstore.Op{Kind: docstore.OpSet, Ref: ref, Data: data, Opts: opts})
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Document) (docstore.Ref, error) {
	ref := s.NewRef(collection)
	if err := s.Set(ctx, ref, data, docstore.SetOptions{}); err != nil {
		return docstore.Ref{}, err
	}
	return ref, nil
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	if err := s.check("delete", ref); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(docstore.Op{Kind: docstore.OpDelete, Ref: ref})
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := s.check("query", docstore.Ref{Collection: collection}); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.cols[collection]))
	for id := range s.cols[collection] {
		if q.StartAfter != "" && id <= q.StartAfter {
			continue
		}
		keys = append(keys, id)
	}
	sort.Strings(keys)

	var res []docstore.Snapshot
	for _, id := range keys {
		doc := s.cols[collection][id]
		if q.OnlyTagged && !doc.Tagged() {
			continue
		}
		res = append(res, docstore.Snapshot{
			Ref:  docstore.Ref{Collection: collection, ID: id},
			Data: docstore.Apply(nil, doc, docstore.SetOptions{}),
		})
		if q.Limit > 0 && len(res) >= q.Limit {
			break
		}
	}
	return res, nil
}

func (s *Store) Batch() docstore.Batch { return &batch{store: s} }

// Count returns the number of documents in collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cols[collection])
}

// Collections lists collections holding at least one document.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name, docs := range s.cols {
		if len(docs) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Commits returns the operation count of every successful batch commit so far.
func (s *Store) Commits() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.commits...)
}

func (s *Store) check(op string, ref docstore.Ref) error {
	if ref.Collection == "" || (op != "query" && !ref.Valid()) {
		return &docstore.Error{Op: op, Ref: ref, Code: codes.InvalidArgument, Err: docstore.ErrInvalidRef}
	}
	s.mu.RLock()
	rule := s.rule
	s.mu.RUnlock()
	if rule == nil {
		return nil
	}
	if err := rule(op, ref); err != nil {
		return docstore.Wrap(op, ref, docstore.CodeOf(err), err)
	}
	return nil
}

// apply mutates state; callers hold s.mu.
func (s *Store) apply(op docstore.Op) {
	col := s.cols[op.Ref.Collection]
	switch op.Kind {
	case docstore.OpSet:
		if col == nil {
			col = make(map[string]docstore.Document)
			s.cols[op.Ref.Collection] = col
		}
		col[op.Ref.ID] = docstore.Apply(col[op.Ref.ID], op.Data, op.Opts)
	case docstore.OpDelete:
		delete(col, op.Ref.ID)
	}
}

type batch struct {
	store *Store
	ops   []docstore.Op
}

func (b *batch) Set(ref docstore.Ref, data docstore.Document, opts docstore.SetOptions) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpSet, Ref: ref, Data: data.Clone(), Opts: opts})
}

func (b *batch) Delete(ref docstore.Ref) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpDelete, Ref: ref})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) > b.store.maxOps {
		return &docstore.Error{Op: "commit", Code: codes.InvalidArgument, Err: docstore.ErrBatchTooLarge}
	}
	for _, op := range b.ops {
		if err := b.store.check(op.Kind.String(), op.Ref); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return docstore.Wrap("commit", docstore.Ref{}, codes.Canceled, err)
	}
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		s.apply(op)
	}
	s.commits = append(s.commits, len(b.ops))
	b.ops = nil
	return nil
}
