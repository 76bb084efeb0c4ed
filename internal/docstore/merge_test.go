package docstore

import (
	"reflect"
	"testing"
)

func TestApplyMerge(t *testing.T) {
	existing := Document{
		"name":    "Old",
		"keep":    1,
		"metrics": map[string]any{"enrolled": 3, "completed": 1},
	}
	data := Document{
		"name":    "New",
		"metrics": map[string]any{"completed": 2},
	}
	got := Apply(existing, data, SetOptions{Merge: true})
	want := Document{
		"name":    "New",
		"keep":    1,
		"metrics": map[string]any{"enrolled": 3, "completed": 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merge mismatch:\n got %#v\nwant %#v", got, want)
	}
	if existing["name"] != "Old" {
		t.Fatal("merge must not mutate the existing document")
	}
}

func TestApplyReplace(t *testing.T) {
	got := Apply(Document{"a": 1}, Document{"b": 2}, SetOptions{})
	if _, ok := got["a"]; ok {
		t.Fatalf("replace kept stale field: %#v", got)
	}
	if got["b"] != 2 {
		t.Fatalf("unexpected replace result: %#v", got)
	}
}

func TestTagged(t *testing.T) {
	if !(Document{TagField: true}).Tagged() {
		t.Fatal("expected tagged")
	}
	for _, d := range []Document{{}, {TagField: false}, {TagField: "true"}} {
		if d.Tagged() {
			t.Fatalf("expected %#v untagged", d)
		}
	}
}
