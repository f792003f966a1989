package multichunk

import (
	"testing"

	"github.com/X-Ryl669/frostcore/internal/digest"
)

func packed(t *testing.T, payloads ...string) *Multichunk {
	t.Helper()
	m := New(DefaultMaxSize, 0, 0)
	for _, p := range payloads {
		data := []byte(p)
		sum := digest.Chunk(data)
		slot, ok := m.ReserveChunkSlot(len(data), sum)
		if !ok {
			t.Fatalf("ReserveChunkSlot failed for payload %q", p)
		}
		copy(slot, data)
	}
	return m
}

func TestBuildIntegrityTreeRejectsEmptyMultichunk(t *testing.T) {
	m := New(DefaultMaxSize, 0, 0)
	if _, err := BuildIntegrityTree(m); err == nil {
		t.Fatal("expected an error building an integrity tree over an empty multichunk")
	}
}

func TestIntegrityTreeVerifiesPackedChunks(t *testing.T) {
	m := packed(t, "alpha", "bravo", "charlie")

	tree, err := BuildIntegrityTree(m)
	if err != nil {
		t.Fatalf("BuildIntegrityTree: %v", err)
	}

	ok, err := tree.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("Verify() = false, want true for an untouched tree")
	}

	c, err := m.Chunk(0)
	if err != nil {
		t.Fatalf("Chunk(0): %v", err)
	}
	ok, err = tree.VerifyChunk(c.Checksum)
	if err != nil {
		t.Fatalf("VerifyChunk: %v", err)
	}
	if !ok {
		t.Fatal("VerifyChunk() = false for a chunk that is actually packed")
	}

	bogus := digest.Chunk([]byte("never packed"))
	ok, err = tree.VerifyChunk(bogus)
	if err == nil && ok {
		t.Fatal("VerifyChunk() = true for a chunk that was never packed")
	}
}

func TestVerifyRootDetectsMismatch(t *testing.T) {
	m := packed(t, "one", "two")

	tree, err := BuildIntegrityTree(m)
	if err != nil {
		t.Fatalf("BuildIntegrityTree: %v", err)
	}
	root := tree.Root()

	ok, err := VerifyRoot(m, root)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if !ok {
		t.Fatal("VerifyRoot() = false for the tree's own root")
	}

	wrongRoot := append([]byte(nil), root...)
	wrongRoot[0] ^= 0xFF
	ok, err = VerifyRoot(m, wrongRoot)
	if err != nil {
		t.Fatalf("VerifyRoot (wrong root): %v", err)
	}
	if ok {
		t.Fatal("VerifyRoot() = true for a tampered root")
	}
}
