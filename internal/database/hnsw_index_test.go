package database

import (
	"path/filepath"
	"testing"
)

func testVectors() []IndexedVector {
	return []IndexedVector{
		{Name: "alice", Embedding: []float32{1, 0, 0}},
		{Name: "bob", Embedding: []float32{0, 1, 0}},
		{Name: "carol", Embedding: []float32{0, 0, 1}},
		{Name: "nobody"},
	}
}

func TestHNSWIndex_Search(t *testing.T) {
	idx := NewHNSWIndex("euclidean")
	if err := idx.Build(testVectors(), "v1"); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if idx.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (entries without embedding are skipped)", idx.Count())
	}

	names, err := idx.Search([]float32{0.1, 0.9, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(names) != 1 || names[0] != "bob" {
		t.Errorf("Search() = %v, want [bob]", names)
	}
}

func TestHNSWIndex_DuplicateNameLastWins(t *testing.T) {
	idx := NewHNSWIndex("euclidean")
	vectors := []IndexedVector{
		{Name: "alice", Embedding: []float32{1, 0}},
		{Name: "alice", Embedding: []float32{0, 1}},
	}
	if err := idx.Build(vectors, "dup"); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 1 {
		t.Errorf("Count() = %d, want 1", idx.Count())
	}
}

func TestHNSWIndex_EmptyAndUninitialized(t *testing.T) {
	idx := NewHNSWIndex("cosine")
	if _, err := idx.Search([]float32{1}, 1); err == nil {
		t.Error("Search on an uninitialized index should fail")
	}
	if err := idx.Build(nil, ""); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 0 {
		t.Errorf("Count() = %d, want 0", idx.Count())
	}
}

func TestHNSWIndex_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.hnsw")

	idx := NewHNSWIndex("euclidean")
	idx.SetPath(path)
	if err := idx.Build(testVectors(), "fp-1"); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata() error: %v", err)
	}
	if meta.Fingerprint != "fp-1" || meta.Count != 4 || meta.Metric != "euclidean" {
		t.Errorf("unexpected metadata %+v", meta)
	}

	reloaded := NewHNSWIndex("euclidean")
	reloaded.SetPath(path)
	if err := reloaded.Build(testVectors(), "fp-1"); err != nil {
		t.Fatalf("Build() from disk error: %v", err)
	}
	names, err := reloaded.Search([]float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "carol" {
		t.Errorf("Search() after reload = %v, want [carol]", names)
	}
}
