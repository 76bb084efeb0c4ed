// Package docstore describes the document database consumed by the demo data
// manager: keyed documents grouped in collections, merge writes, tag-filtered
// reads and atomic write batches with a hard operation ceiling.
package docstore

import (
	"context"
	"strings"
)

// TagField is the document field marking synthetic demo documents.
const TagField = "demoTag"

// DefaultMaxBatchOps mirrors the per-commit operation ceiling of the hosted store.
const DefaultMaxBatchOps = 500

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

// Valid reports whether both parts of the reference are set and free of separators.
func (r Ref) Valid() bool {
	return r.Collection != "" && r.ID != "" &&
		!strings.Contains(r.Collection, "/") && !strings.Contains(r.ID, "/")
}

// Document is the JSON-like payload stored at a Ref.
type Document map[string]any

// Tagged reports whether the document carries demoTag == true.
func (d Document) Tagged() bool {
	v, ok := d[TagField].(bool)
	return ok && v
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Snapshot is a document read back from the store.
type Snapshot struct {
	Ref  Ref
	Data Document
}

// SetOptions controls Set semantics.
type SetOptions struct {
	// Merge keeps existing top-level fields absent from the new data.
	Merge bool
}

// Query selects documents from one collection ordered by ID.
type Query struct {
	OnlyTagged bool
	StartAfter string
	Limit      int
}

// Store is the document database.
type Store interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ctx context.Context, ref Ref, data Document, opts SetOptions) error
	Add(ctx context.Context, collection string, data Document) (Ref, error)
	Delete(ctx context.Context, ref Ref) error
	Query(ctx context.Context, collection string, q Query) ([]Snapshot, error)

	// NewRef mints a store-style generated key without writing anything.
	NewRef(collection string) Ref
	// Batch opens an empty atomic write batch.
	Batch() Batch
	// MaxBatchOps is the hard ceiling on operations per Batch commit.
	MaxBatchOps() int
}

// Batch accumulates writes committed atomically.
type Batch interface {
	Set(ref Ref, data Document, opts SetOptions)
	Delete(ref Ref)
	Len() int
	// Commit applies staged operations in order. It fails without partial
	// effect if Len exceeds the store's MaxBatchOps.
	Commit(ctx context.Context) error
}

// OpKind names a batched operation.
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one staged batch operation. Implementations share it.
type Op struct {
	Kind OpKind
	Ref  Ref
	Data Document
	Opts SetOptions
}
