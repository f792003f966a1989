package catalog

import (
	"path/filepath"
	"testing"

	"github.com/X-Ryl669/frostcore/internal/digest"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "catalog"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutMultichunkIsIdempotent(t *testing.T) {
	c := openTestCatalog(t)

	sum := digest.Container([]byte("multichunk payload"))
	chunkSum := digest.Chunk([]byte("chunk payload"))
	refs := []ChunkRef{{SHA1: chunkSum, Offset: 0}}

	rec1, created1, err := c.PutMultichunk(sum, 1, 42, 100, refs)
	if err != nil {
		t.Fatalf("PutMultichunk: %v", err)
	}
	if !created1 {
		t.Fatal("expected first PutMultichunk to report created=true")
	}
	if rec1.ChunkCount != 1 || rec1.FilterListID != 1 || rec1.Tag != 42 {
		t.Fatalf("unexpected record: %+v", rec1)
	}

	rec2, created2, err := c.PutMultichunk(sum, 99, 99, 999, refs)
	if err != nil {
		t.Fatalf("second PutMultichunk: %v", err)
	}
	if created2 {
		t.Fatal("expected second PutMultichunk to report created=false")
	}
	if rec2 != rec1 {
		t.Fatalf("second PutMultichunk returned a different record: %+v vs %+v", rec2, rec1)
	}
}

func TestLocateChunkResolvesToMultichunk(t *testing.T) {
	c := openTestCatalog(t)

	sum := digest.Container([]byte("multichunk payload"))
	chunkSum := digest.Chunk([]byte("chunk payload"))

	if _, _, err := c.PutMultichunk(sum, 1, 0, 100, []ChunkRef{{SHA1: chunkSum, Offset: 17}}); err != nil {
		t.Fatalf("PutMultichunk: %v", err)
	}

	loc, ok, err := c.LocateChunk(chunkSum)
	if err != nil {
		t.Fatalf("LocateChunk: %v", err)
	}
	if !ok {
		t.Fatal("LocateChunk: chunk not found")
	}
	if loc.MultichunkSHA256 != sum {
		t.Fatalf("LocateChunk multichunk = %x, want %x", loc.MultichunkSHA256, sum)
	}
	if loc.Offset != 17 {
		t.Fatalf("LocateChunk offset = %d, want 17", loc.Offset)
	}

	if _, ok, err := c.LocateChunk(digest.Chunk([]byte("never stored"))); err != nil {
		t.Fatalf("LocateChunk: %v", err)
	} else if ok {
		t.Fatal("LocateChunk found a chunk that was never stored")
	}
}

func TestReferencesAndGarbageCollect(t *testing.T) {
	c := openTestCatalog(t)

	referenced := digest.Container([]byte("referenced"))
	unreferenced := digest.Container([]byte("unreferenced"))

	if _, _, err := c.PutMultichunk(referenced, 0, 0, 10, nil); err != nil {
		t.Fatalf("PutMultichunk referenced: %v", err)
	}
	if _, _, err := c.PutMultichunk(unreferenced, 0, 0, 10, nil); err != nil {
		t.Fatalf("PutMultichunk unreferenced: %v", err)
	}

	if err := c.AddReference(referenced, "/path/a"); err != nil {
		t.Fatalf("AddReference: %v", err)
	}
	if err := c.AddReference(referenced, "/path/a"); err != nil { // duplicate, no-op
		t.Fatalf("AddReference (duplicate): %v", err)
	}
	if count, err := c.RefCount(referenced); err != nil || count != 1 {
		t.Fatalf("RefCount = %d, %v, want 1, nil", count, err)
	}

	deleted, err := c.GarbageCollect()
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("GarbageCollect deleted %d, want 1", deleted)
	}

	if _, ok, err := c.GetRecord(referenced); err != nil || !ok {
		t.Fatalf("referenced record should survive GC: ok=%v err=%v", ok, err)
	}
	if _, ok, err := c.GetRecord(unreferenced); err != nil || ok {
		t.Fatalf("unreferenced record should be gone after GC: ok=%v err=%v", ok, err)
	}
}

func TestSnapshotIndexRoundTrips(t *testing.T) {
	src := openTestCatalog(t)

	sum := digest.Container([]byte("snapshot me"))
	chunkSum := digest.Chunk([]byte("snapshot chunk"))
	if _, _, err := src.PutMultichunk(sum, 1, 7, 50, []ChunkRef{{SHA1: chunkSum, Offset: 3}}); err != nil {
		t.Fatalf("PutMultichunk: %v", err)
	}

	blob, err := src.SnapshotIndex()
	if err != nil {
		t.Fatalf("SnapshotIndex: %v", err)
	}

	dst := openTestCatalog(t)
	if err := dst.RestoreIndex(blob); err != nil {
		t.Fatalf("RestoreIndex: %v", err)
	}

	rec, ok, err := dst.GetRecord(sum)
	if err != nil || !ok {
		t.Fatalf("GetRecord after restore: ok=%v err=%v", ok, err)
	}
	if rec.Tag != 7 || rec.ChunkCount != 1 {
		t.Fatalf("restored record mismatch: %+v", rec)
	}

	loc, ok, err := dst.LocateChunk(chunkSum)
	if err != nil || !ok {
		t.Fatalf("LocateChunk after restore: ok=%v err=%v", ok, err)
	}
	if loc.Offset != 3 {
		t.Fatalf("restored location offset = %d, want 3", loc.Offset)
	}
}

func TestGetStatsCountsOccupancy(t *testing.T) {
	c := openTestCatalog(t)

	sum := digest.Container([]byte("stats"))
	chunkSum := digest.Chunk([]byte("stats chunk"))
	if _, _, err := c.PutMultichunk(sum, 0, 0, 10, []ChunkRef{{SHA1: chunkSum, Offset: 0}}); err != nil {
		t.Fatalf("PutMultichunk: %v", err)
	}
	if err := c.AddReference(sum, "/a"); err != nil {
		t.Fatalf("AddReference: %v", err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Multichunks != 1 {
		t.Fatalf("Multichunks = %d, want 1", stats.Multichunks)
	}
	if stats.Chunks != 1 {
		t.Fatalf("Chunks = %d, want 1", stats.Chunks)
	}
	if stats.UnreferencedMCs != 0 {
		t.Fatalf("UnreferencedMCs = %d, want 0", stats.UnreferencedMCs)
	}
}
