package memstore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"

	"brandhub.dev/demodata/internal/docstore"
)

func TestSetMergeAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	ref := docstore.Ref{Collection: "brands", ID: "acme"}

	if err := s.Set(ctx, ref, docstore.Document{"name": "Acme", "demoTag": true}, docstore.SetOptions{Merge: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, ref, docstore.Document{"tagline": "Hi"}, docstore.SetOptions{Merge: true}); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Data["name"] != "Acme" || snap.Data["tagline"] != "Hi" || !snap.Data.Tagged() {
		t.Fatalf("unexpected merged doc: %#v", snap.Data)
	}
	if s.Count("brands") != 1 {
		t.Fatalf("expected one brand, got %d", s.Count("brands"))
	}
}

func TestGetMissing(t *testing.T) {
	_, err := New().Get(context.Background(), docstore.Ref{Collection: "brands", ID: "nope"})
	if !errors.Is(err, docstore.ErrNotFound) || docstore.CodeOf(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQueryTaggedPaginates(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.Add(ctx, "retailers", docstore.Document{"demoTag": true}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Add(ctx, "retailers", docstore.Document{"name": "real"}); err != nil {
		t.Fatal(err)
	}

	page, err := s.Query(ctx, "retailers", docstore.Query{OnlyTagged: true, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3, got %d", len(page))
	}
	rest, err := s.Query(ctx, "retailers", docstore.Query{OnlyTagged: true, StartAfter: page[2].Ref.ID, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2, got %d", len(rest))
	}
	for _, snap := range append(page, rest...) {
		if !snap.Data.Tagged() {
			t.Fatalf("untagged doc returned: %v", snap.Ref)
		}
	}
}

func TestBatchCeiling(t *testing.T) {
	s := New(WithMaxBatchOps(2))
	b := s.Batch()
	for i := 0; i < 3; i++ {
		b.Set(s.NewRef("x"), docstore.Document{"i": i}, docstore.SetOptions{})
	}
	err := b.Commit(context.Background())
	if !errors.Is(err, docstore.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if s.Count("x") != 0 {
		t.Fatal("oversized batch must have no partial effect")
	}
	if len(s.Commits()) != 0 {
		t.Fatal("failed commit must not be recorded")
	}
}

func TestBatchOrderAndRule(t *testing.T) {
	s := New()
	ctx := context.Background()
	ref := docstore.Ref{Collection: "x", ID: "a"}

	b := s.Batch()
	b.Set(ref, docstore.Document{"v": 1}, docstore.SetOptions{})
	b.Delete(ref)
	b.Set(ref, docstore.Document{"v": 2}, docstore.SetOptions{})
	if err := b.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Get(ctx, ref)
	if err != nil || snap.Data["v"] != 2 {
		t.Fatalf("ops applied out of order: %#v %v", snap.Data, err)
	}

	s.SetRule(func(op string, ref docstore.Ref) error {
		if op == "delete" {
			return &docstore.Error{Op: op, Ref: ref, Code: codes.PermissionDenied, Message: "missing or insufficient permissions"}
		}
		return nil
	})
	err = s.Delete(ctx, ref)
	if !docstore.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}
