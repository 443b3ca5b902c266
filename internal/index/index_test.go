package index

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func addTestDoc(t *testing.T, idx *Index, content, source string) string {
	t.Helper()
	ids, err := idx.Add(context.Background(), content, source, nil)
	if err != nil {
		t.Fatalf("Add(%q) failed: %v", content, err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 document for short content, got %d", len(ids))
	}
	return ids[0]
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World! It's a 2nd test.")
	want := []string{"hello", "world", "it", "2nd", "test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestAddRejectsEmptyContent(t *testing.T) {
	idx := New()
	if _, err := idx.Add(context.Background(), "   ", "test", nil); err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestAddChunksLongContent(t *testing.T) {
	idx := New()
	paragraph := strings.Repeat("word ", 300)
	content := paragraph + "\n\n" + paragraph + "\n\n" + paragraph

	ids, err := idx.Add(context.Background(), content, "test", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(ids) < 2 {
		t.Errorf("expected long content to be chunked, got %d documents", len(ids))
	}
	if idx.Count() != len(ids) {
		t.Errorf("Count = %d, want %d", idx.Count(), len(ids))
	}
}

func TestRemoveUpdatesPostings(t *testing.T) {
	idx := New()
	id := addTestDoc(t, idx, "the cat sat", "test")
	addTestDoc(t, idx, "the dog ran", "test")

	if err := idx.Remove(context.Background(), id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if idx.Count() != 1 {
		t.Fatalf("expected 1 document after remove, got %d", idx.Count())
	}
	if hits := idx.Search("cat", searchOpts(10)); len(hits) != 0 {
		t.Errorf("removed document still matches: %+v", hits)
	}
}

func TestRemoveBySource(t *testing.T) {
	idx := New()
	addTestDoc(t, idx, "alpha fact", "agent:a")
	addTestDoc(t, idx, "beta fact", "agent:a")
	addTestDoc(t, idx, "gamma fact", "agent:b")

	n, err := idx.RemoveBySource(context.Background(), "agent:a")
	if err != nil {
		t.Fatalf("RemoveBySource failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if idx.Count() != 1 {
		t.Errorf("expected 1 document to remain, got %d", idx.Count())
	}
}
