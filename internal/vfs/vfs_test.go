package vfs

import "testing"

func TestSeedCreatesIntermediateDirectoriesAndLeaf(t *testing.T) {
	idx := New()
	idx.RegisterArchive("archiveA", "/downloads/archiveA.7z")

	leaf := idx.Seed("archiveA", []string{"textures", "body", "skin.dds"}, 4096, "leafhash==")
	if leaf.Size != 4096 || leaf.Hash != "leafhash==" {
		t.Fatalf("leaf not populated: %+v", leaf)
	}

	root, ok := idx.Root("archiveA")
	if !ok {
		t.Fatal("expected root to exist after seeding")
	}
	if root.SourceArchive == nil || root.SourceArchive.DiskPath != "/downloads/archiveA.7z" {
		t.Fatalf("expected root to carry the registered disk path, got %+v", root.SourceArchive)
	}

	dir, ok := idx.Lookup("archiveA", []string{"textures"})
	if !ok || dir.Hash != "" {
		t.Fatalf("expected an unhashed intermediate directory node, got %+v ok=%v", dir, ok)
	}
}

func TestLookupIsIndependentOfSeedOrder(t *testing.T) {
	idx := New()
	idx.Seed("archiveA", []string{"a", "b", "c.txt"}, 1, "h1")
	idx.Seed("archiveA", []string{"a", "d", "e.txt"}, 2, "h2")

	n1, ok1 := idx.Lookup("archiveA", []string{"a", "b", "c.txt"})
	n2, ok2 := idx.Lookup("archiveA", []string{"a", "d", "e.txt"})
	if !ok1 || !ok2 {
		t.Fatal("expected both leaves to resolve")
	}
	if n1.Hash != "h1" || n2.Hash != "h2" {
		t.Fatalf("cross-contaminated siblings: %+v %+v", n1, n2)
	}

	shared, ok := idx.Lookup("archiveA", []string{"a"})
	if !ok {
		t.Fatal("expected shared intermediate directory to be indexed")
	}
	if len(idx.Children(shared)) != 2 {
		t.Fatalf("expected 2 children under the shared directory, got %d", len(idx.Children(shared)))
	}
}

func TestLookupMissMissingReturnsFalse(t *testing.T) {
	idx := New()
	if _, ok := idx.Lookup("nope", []string{"x"}); ok {
		t.Fatal("expected miss on an unseeded archive")
	}
}

func TestParentLinksAreWalkable(t *testing.T) {
	idx := New()
	leaf := idx.Seed("archiveA", []string{"a", "b", "c.txt"}, 1, "h")
	if leaf.Parent == nil || leaf.Parent.Name != "b" {
		t.Fatalf("expected leaf's parent to be 'b', got %+v", leaf.Parent)
	}
	if leaf.Parent.Parent == nil || leaf.Parent.Parent.Name != "a" {
		t.Fatalf("expected grandparent to be 'a', got %+v", leaf.Parent.Parent)
	}
}
