// Package catalog implements the persisted-state repository spec §6
// describes but does not prescribe: "a catalog of multichunks (each
// identified by its SHA-256), a mapping from chunk SHA-1 to
// (multichunkID, likelyOffset)". It is backed by a Pebble KV store and
// mirrors the CAS-prefixing, ref-counting, and GC-sweep shape of
// pkg/cas/store.go, keyed on the core's actual digests instead of an
// arbitrary CID.
package catalog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/multiformats/go-multihash"

	"github.com/X-Ryl669/frostcore/internal/digest"
)

const (
	prefixMultichunk = "m:" // multichunk SHA-256 -> Record
	prefixChunk      = "c:" // chunk SHA-1 -> Location
	prefixRef        = "r:" // multichunk SHA-256 -> refCount
)

const compressionMagic = "FCZ1"

// Catalog is the repository's index: which multichunks exist, where each
// chunk lives, and how many live references each multichunk has. It does
// not store multichunk bytes itself — that is the filter chain's tail
// (spec §6: "the exact backing store is the filter chain's tail; this
// core does not prescribe it") — only the index needed to find them.
type Catalog struct {
	db *pebble.DB
}

// Open opens (creating if absent) a Pebble-backed catalog at path.
func Open(path string) (*Catalog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	return &Catalog{db: db}, nil
}

// New wraps an already-open Pebble database.
func New(db *pebble.DB) (*Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("catalog: nil pebble DB")
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying database.
func (c *Catalog) Close() error { return c.db.Close() }

// Record describes a catalogued multichunk: its packed-chunk count and the
// filter-chain ID its stored bytes were written under (spec §4.7), plus a
// self-describing multihash of its SHA-256 digest for external reference.
type Record struct {
	CID          string `json:"cid"`
	FilterListID uint16 `json:"filter_list_id"`
	Tag          uint64 `json:"tag"`
	ChunkCount   int    `json:"chunk_count"`
	StoredSize   int    `json:"stored_size"`
}

// Location is where a chunk lives within a catalogued multichunk: the
// multichunk's SHA-256 digest and a byte offset hint into its data region,
// handed straight to Multichunk.FindChunk's hintOffset fast path.
type Location struct {
	MultichunkSHA256 [digest.ContainerSize]byte `json:"-"`
	Offset           int                        `json:"offset"`
}

type locationWire struct {
	MultichunkSHA256 string `json:"multichunk_sha256"`
	Offset           int    `json:"offset"`
}

// refCount is the JSON-encoded ref-tracking record for one multichunk,
// mirroring pkg/cas/store.go's CASRefCount.
type refCount struct {
	Refs int      `json:"refs"`
	RefsBy []string `json:"refs_by"`
}

// multihashSHA256 wraps a raw SHA-256 digest as a self-describing
// multihash string (spec SPEC_FULL.md DOMAIN STACK: "multichunk SHA-256
// container IDs are emitted as self-describing multihashes").
func multihashSHA256(sum [digest.ContainerSize]byte) (string, error) {
	mh, err := multihash.Encode(sum[:], multihash.SHA2_256)
	if err != nil {
		return "", fmt.Errorf("catalog: computing multihash: %w", err)
	}
	return multihash.Multihash(mh).B58String(), nil
}

// ChunkRef is one packed chunk's identity and data-region offset within a
// multichunk being catalogued, as passed to PutMultichunk.
type ChunkRef struct {
	SHA1   [digest.ChunkSize]byte
	Offset int
}

// PutMultichunk catalogues a multichunk identified by its SHA-256 digest,
// recording its filter-chain ID, tag, and chunk count, plus a Location
// entry for every chunk it packs (first writer wins: an existing Location
// for a chunk digest is left untouched, matching the dedup semantics of
// pkg/cas/store.go's Put). It reports whether this is a new record.
func (c *Catalog) PutMultichunk(sha256 [digest.ContainerSize]byte, filterListID uint16, tag uint64, storedSize int, chunks []ChunkRef) (Record, bool, error) {
	key := multichunkKey(sha256)

	if existing, ok, err := c.getRecord(key); err != nil {
		return Record{}, false, err
	} else if ok {
		return existing, false, nil
	}

	cid, err := multihashSHA256(sha256)
	if err != nil {
		return Record{}, false, err
	}

	rec := Record{CID: cid, FilterListID: filterListID, Tag: tag, ChunkCount: len(chunks), StoredSize: storedSize}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("catalog: marshaling record: %w", err)
	}
	if err := c.db.Set(key, data, pebble.Sync); err != nil {
		return Record{}, false, fmt.Errorf("catalog: storing record: %w", err)
	}

	for _, ch := range chunks {
		lkey := chunkKey(ch.SHA1)
		if _, closer, err := c.db.Get(lkey); err == nil {
			closer.Close()
			continue
		} else if !errors.Is(err, pebble.ErrNotFound) {
			return Record{}, false, fmt.Errorf("catalog: checking chunk location: %w", err)
		}
		lw := locationWire{MultichunkSHA256: hex.EncodeToString(sha256[:]), Offset: ch.Offset}
		ldata, err := json.Marshal(lw)
		if err != nil {
			return Record{}, false, fmt.Errorf("catalog: marshaling location: %w", err)
		}
		if err := c.db.Set(lkey, ldata, pebble.Sync); err != nil {
			return Record{}, false, fmt.Errorf("catalog: storing location: %w", err)
		}
	}

	return rec, true, nil
}

func (c *Catalog) getRecord(key []byte) (Record, bool, error) {
	val, closer, err := c.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, false, fmt.Errorf("catalog: unmarshaling record: %w", err)
	}
	return rec, true, nil
}

// GetRecord looks up a catalogued multichunk's metadata by its SHA-256.
func (c *Catalog) GetRecord(sha256 [digest.ContainerSize]byte) (Record, bool, error) {
	return c.getRecord(multichunkKey(sha256))
}

// LocateChunk resolves a chunk's SHA-1 to the multichunk that holds it and
// the byte offset hint into that multichunk's data region (spec §6:
// "a mapping from chunk SHA-1 to (multichunkID, likelyOffset)").
func (c *Catalog) LocateChunk(sha1 [digest.ChunkSize]byte) (Location, bool, error) {
	val, closer, err := c.db.Get(chunkKey(sha1))
	if errors.Is(err, pebble.ErrNotFound) {
		return Location{}, false, nil
	}
	if err != nil {
		return Location{}, false, err
	}
	defer closer.Close()

	var lw locationWire
	if err := json.Unmarshal(val, &lw); err != nil {
		return Location{}, false, fmt.Errorf("catalog: unmarshaling location: %w", err)
	}
	raw, err := hex.DecodeString(lw.MultichunkSHA256)
	if err != nil || len(raw) != digest.ContainerSize {
		return Location{}, false, fmt.Errorf("catalog: corrupt location record for chunk")
	}
	var loc Location
	copy(loc.MultichunkSHA256[:], raw)
	loc.Offset = lw.Offset
	return loc, true, nil
}

// AddReference records that refName (e.g. a file path or higher-level
// object) depends on the multichunk identified by sha256.
func (c *Catalog) AddReference(sha256 [digest.ContainerSize]byte, refName string) error {
	key := refKey(sha256)
	rc, err := c.getRefCount(key)
	if err != nil {
		return err
	}
	for _, f := range rc.RefsBy {
		if f == refName {
			return nil
		}
	}
	rc.Refs++
	rc.RefsBy = append(rc.RefsBy, refName)
	return c.putRefCount(key, rc)
}

// RemoveReference drops refName's dependency on the multichunk.
func (c *Catalog) RemoveReference(sha256 [digest.ContainerSize]byte, refName string) error {
	key := refKey(sha256)
	rc, err := c.getRefCount(key)
	if err != nil {
		return err
	}
	kept := rc.RefsBy[:0]
	found := false
	for _, f := range rc.RefsBy {
		if f == refName {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	if !found {
		return nil
	}
	rc.RefsBy = kept
	rc.Refs--
	if rc.Refs <= 0 {
		return c.db.Delete(key, pebble.Sync)
	}
	return c.putRefCount(key, rc)
}

// RefCount reports how many live references a catalogued multichunk has.
func (c *Catalog) RefCount(sha256 [digest.ContainerSize]byte) (int, error) {
	rc, err := c.getRefCount(refKey(sha256))
	if err != nil {
		return 0, err
	}
	return rc.Refs, nil
}

func (c *Catalog) getRefCount(key []byte) (refCount, error) {
	val, closer, err := c.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return refCount{}, nil
	}
	if err != nil {
		return refCount{}, err
	}
	defer closer.Close()

	var rc refCount
	if err := json.Unmarshal(val, &rc); err != nil {
		return refCount{}, fmt.Errorf("catalog: unmarshaling ref count: %w", err)
	}
	return rc, nil
}

func (c *Catalog) putRefCount(key []byte, rc refCount) error {
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("catalog: marshaling ref count: %w", err)
	}
	return c.db.Set(key, data, pebble.Sync)
}

// GarbageCollect deletes the Record for every multichunk with zero live
// references, returning how many were removed. It does not touch chunk
// Location entries, which are harmless stale pointers once their owning
// record is gone (spec §6 treats the catalog as advisory: "likelyOffset").
func (c *Catalog) GarbageCollect() (int, error) {
	iter, err := c.prefixIter(prefixMultichunk)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var toDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		sha256Hex := stripPrefix(iter.Key(), prefixMultichunk)
		raw, err := hex.DecodeString(sha256Hex)
		if err != nil || len(raw) != digest.ContainerSize {
			continue
		}
		var sum [digest.ContainerSize]byte
		copy(sum[:], raw)

		refs, err := c.RefCount(sum)
		if err != nil {
			return len(toDelete), fmt.Errorf("catalog: checking refs for %s: %w", sha256Hex, err)
		}
		if refs <= 0 {
			toDelete = append(toDelete, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return len(toDelete), err
	}

	for _, key := range toDelete {
		if err := c.db.Delete(key, pebble.Sync); err != nil {
			return len(toDelete), fmt.Errorf("catalog: deleting record: %w", err)
		}
	}
	return len(toDelete), nil
}

// Stats summarizes catalog occupancy.
type Stats struct {
	Multichunks     int
	UnreferencedMCs int
	Chunks          int
}

// GetStats walks the catalog's prefixes to report occupancy counts.
func (c *Catalog) GetStats() (Stats, error) {
	var s Stats

	mcIter, err := c.prefixIter(prefixMultichunk)
	if err != nil {
		return s, err
	}
	defer mcIter.Close()
	for mcIter.First(); mcIter.Valid(); mcIter.Next() {
		s.Multichunks++
		sha256Hex := stripPrefix(mcIter.Key(), prefixMultichunk)
		raw, err := hex.DecodeString(sha256Hex)
		if err != nil || len(raw) != digest.ContainerSize {
			continue
		}
		var sum [digest.ContainerSize]byte
		copy(sum[:], raw)
		refs, err := c.RefCount(sum)
		if err != nil {
			return s, err
		}
		if refs <= 0 {
			s.UnreferencedMCs++
		}
	}
	if err := mcIter.Error(); err != nil {
		return s, err
	}

	chIter, err := c.prefixIter(prefixChunk)
	if err != nil {
		return s, err
	}
	defer chIter.Close()
	for chIter.First(); chIter.Valid(); chIter.Next() {
		s.Chunks++
	}
	if err := chIter.Error(); err != nil {
		return s, err
	}

	return s, nil
}

var (
	zstdEncoderOnce sync.Once
	zstdDecoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoder     *zstd.Decoder
	zstdInitErr     error
)

func getZstdEncoder() (*zstd.Encoder, error) {
	zstdEncoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			zstdInitErr = err
			return
		}
		zstdEncoder = enc
	})
	return zstdEncoder, zstdInitErr
}

func getZstdDecoder() (*zstd.Decoder, error) {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			zstdInitErr = err
			return
		}
		zstdDecoder = dec
	})
	return zstdDecoder, zstdInitErr
}

// SnapshotIndex serializes every Record and Location in the catalog into a
// single zstd-compressed blob, mirroring pkg/cas/store.go's
// compressForStorage — a cold backup of the index distinct from the live
// Pebble files, restorable with RestoreIndex.
func (c *Catalog) SnapshotIndex() ([]byte, error) {
	snap := struct {
		Records   map[string]Record       `json:"records"`
		Locations map[string]locationWire `json:"locations"`
	}{
		Records:   make(map[string]Record),
		Locations: make(map[string]locationWire),
	}

	mcIter, err := c.prefixIter(prefixMultichunk)
	if err != nil {
		return nil, err
	}
	for mcIter.First(); mcIter.Valid(); mcIter.Next() {
		var rec Record
		if err := json.Unmarshal(mcIter.Value(), &rec); err != nil {
			mcIter.Close()
			return nil, fmt.Errorf("catalog: snapshotting record: %w", err)
		}
		snap.Records[stripPrefix(mcIter.Key(), prefixMultichunk)] = rec
	}
	if err := mcIter.Error(); err != nil {
		mcIter.Close()
		return nil, err
	}
	mcIter.Close()

	chIter, err := c.prefixIter(prefixChunk)
	if err != nil {
		return nil, err
	}
	for chIter.First(); chIter.Valid(); chIter.Next() {
		var lw locationWire
		if err := json.Unmarshal(chIter.Value(), &lw); err != nil {
			chIter.Close()
			return nil, fmt.Errorf("catalog: snapshotting location: %w", err)
		}
		snap.Locations[stripPrefix(chIter.Key(), prefixChunk)] = lw
	}
	if err := chIter.Error(); err != nil {
		chIter.Close()
		return nil, err
	}
	chIter.Close()

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("catalog: marshaling snapshot: %w", err)
	}

	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	return append([]byte(compressionMagic), enc.EncodeAll(raw, nil)...), nil
}

// RestoreIndex loads a SnapshotIndex blob back into the catalog, leaving
// any existing entries with the same keys untouched.
func (c *Catalog) RestoreIndex(blob []byte) error {
	if len(blob) < len(compressionMagic) || string(blob[:len(compressionMagic)]) != compressionMagic {
		return fmt.Errorf("catalog: restore: missing snapshot magic")
	}
	dec, err := getZstdDecoder()
	if err != nil {
		return err
	}
	raw, err := dec.DecodeAll(blob[len(compressionMagic):], nil)
	if err != nil {
		return fmt.Errorf("catalog: restore: decompressing snapshot: %w", err)
	}

	var snap struct {
		Records   map[string]Record       `json:"records"`
		Locations map[string]locationWire `json:"locations"`
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("catalog: restore: unmarshaling snapshot: %w", err)
	}

	for sha256Hex, rec := range snap.Records {
		key := []byte(prefixMultichunk + sha256Hex)
		if _, ok, err := c.getRecord(key); err != nil {
			return err
		} else if ok {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("catalog: restore: marshaling record: %w", err)
		}
		if err := c.db.Set(key, data, pebble.Sync); err != nil {
			return fmt.Errorf("catalog: restore: storing record: %w", err)
		}
	}
	for sha1Hex, lw := range snap.Locations {
		key := []byte(prefixChunk + sha1Hex)
		if _, closer, err := c.db.Get(key); err == nil {
			closer.Close()
			continue
		} else if !errors.Is(err, pebble.ErrNotFound) {
			return err
		}
		data, err := json.Marshal(lw)
		if err != nil {
			return fmt.Errorf("catalog: restore: marshaling location: %w", err)
		}
		if err := c.db.Set(key, data, pebble.Sync); err != nil {
			return fmt.Errorf("catalog: restore: storing location: %w", err)
		}
	}
	return nil
}

func (c *Catalog) prefixIter(prefix string) (*pebble.Iterator, error) {
	upper := append([]byte(prefix), 0xff)
	return c.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
}

func multichunkKey(sha256 [digest.ContainerSize]byte) []byte {
	return []byte(prefixMultichunk + hex.EncodeToString(sha256[:]))
}

func chunkKey(sha1 [digest.ChunkSize]byte) []byte {
	return []byte(prefixChunk + hex.EncodeToString(sha1[:]))
}

func refKey(sha256 [digest.ContainerSize]byte) []byte {
	return []byte(prefixRef + hex.EncodeToString(sha256[:]))
}

func stripPrefix(key []byte, prefix string) string {
	k := append([]byte(nil), key...)
	return strings.TrimPrefix(string(k), prefix)
}
