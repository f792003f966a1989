// Package multichunk implements the bounded container that packs several
// chunks end-to-end along with an index of their offsets (spec §4.4). A
// multichunk owns its data region and its index; it is reset for reuse
// rather than reallocated between uses.
package multichunk

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/X-Ryl669/frostcore/internal/digest"
	"github.com/X-Ryl669/frostcore/pkg/chunk"
)

// DefaultMaxSize is the default process-wide byte budget for a multichunk's
// packed data region (spec §3: "default 250 KiB, configurable process-wide").
const DefaultMaxSize = 250 * 1024

// perChunkHeader is the fixed overhead every packed chunk carries ahead of
// its payload: a 20-byte SHA-1 plus a 16-bit little-endian size.
const perChunkHeader = digest.ChunkSize + 2

// noHint tells FindChunk to skip the binary-search fast path.
const noHint = -1

// record is the in-memory index entry: the byte offset of a chunk's 22-byte
// per-chunk header within the data region, plus its digest for fast lookup
// without re-reading the data region.
type record struct {
	offset   int
	checksum [digest.ChunkSize]byte
	size     uint16
}

// Multichunk is a bounded container of chunks, serializable to a header +
// data region pair (spec §6). It is exclusive to one caller; there is no
// internal locking.
type Multichunk struct {
	maxSize      int
	filterListID uint16
	tag          uint64

	data    []byte
	records []record
}

// New creates an empty multichunk with the given byte budget, filter-chain
// identifier, and caller-assigned opaque tag.
func New(maxSize int, filterListID uint16, tag uint64) *Multichunk {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Multichunk{
		maxSize:      maxSize,
		filterListID: filterListID,
		tag:          tag,
		data:         make([]byte, 0, maxSize),
	}
}

// FilterListID returns the identifier of the filter chain that transforms
// this multichunk's bytes before they reach the backing store.
func (m *Multichunk) FilterListID() uint16 { return m.filterListID }

// Tag returns the caller-assigned opaque value. It is not part of the wire
// header (spec §6 does not list it) — it exists purely for in-process
// bookkeeping and must be tracked by the caller across serialization.
func (m *Multichunk) Tag() uint64 { return m.tag }

// SetTag updates the caller-assigned opaque value.
func (m *Multichunk) SetTag(tag uint64) { m.tag = tag }

// Count returns the number of packed chunks.
func (m *Multichunk) Count() int { return len(m.records) }

// FreeSpace returns how many more packed bytes (chunk data plus its 22-byte
// header) this multichunk can still accept before hitting maxSize.
func (m *Multichunk) FreeSpace() int {
	return m.maxSize - len(m.data)
}

// DataLen returns the current length of the packed data region.
func (m *Multichunk) DataLen() int { return len(m.data) }

// ReserveChunkSlot bumps the data region by size+22 bytes, appends the new
// chunk's starting offset to the index, writes its 20-byte digest and
// 16-bit size, and returns a writable view over the payload bytes. It
// returns (nil, false) without mutating the multichunk if there isn't
// enough free space.
func (m *Multichunk) ReserveChunkSlot(size int, checksum [digest.ChunkSize]byte) ([]byte, bool) {
	if size < 0 || size > math.MaxUint16 {
		return nil, false
	}
	if m.FreeSpace() < size+perChunkHeader {
		return nil, false
	}

	offset := len(m.data)
	m.data = append(m.data, make([]byte, perChunkHeader+size)...)
	copy(m.data[offset:offset+digest.ChunkSize], checksum[:])
	binary.LittleEndian.PutUint16(m.data[offset+digest.ChunkSize:offset+perChunkHeader], uint16(size))

	m.records = append(m.records, record{offset: offset, checksum: checksum, size: uint16(size)})

	return m.data[offset+perChunkHeader : offset+perChunkHeader+size], true
}

// PackChunk packs a complete chunk into the container. It reports false
// without mutating the multichunk if the chunk does not fit.
func (m *Multichunk) PackChunk(c chunk.Chunk) bool {
	slot, ok := m.ReserveChunkSlot(int(c.Size), c.Checksum)
	if !ok {
		return false
	}
	copy(slot, c.Data)
	return true
}

// PackNextChunk calls the chunker for its next chunk and packs it. If the
// resulting chunk does not fit in the remaining budget, the chunker's
// source is rewound to its pre-call position and PackNextChunk reports
// (zero Chunk, false, nil) — the caller should start a fresh multichunk and
// retry. io.EOF is returned once the chunker's source is exhausted.
func (m *Multichunk) PackNextChunk(src chunk.Source, chunker *chunk.Chunker) (chunk.Chunk, bool, error) {
	startPos, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return chunk.Chunk{}, false, fmt.Errorf("multichunk: recording position before chunking: %w", err)
	}

	c, err := chunker.CreateChunk()
	if err != nil {
		return chunk.Chunk{}, false, err
	}

	if !m.PackChunk(c) {
		if _, serr := src.Seek(startPos, io.SeekStart); serr != nil {
			return chunk.Chunk{}, false, fmt.Errorf("multichunk: rewinding after overflow: %w", serr)
		}
		return chunk.Chunk{}, false, nil
	}

	return c, true, nil
}

// Chunk reconstructs the chunk stored at index i by reading its packed
// header and payload back out of the data region.
func (m *Multichunk) Chunk(i int) (chunk.Chunk, error) {
	if i < 0 || i >= len(m.records) {
		return chunk.Chunk{}, fmt.Errorf("multichunk: index %d out of range [0,%d)", i, len(m.records))
	}
	r := m.records[i]
	payload := m.data[r.offset+perChunkHeader : r.offset+perChunkHeader+int(r.size)]
	data := make([]byte, len(payload))
	copy(data, payload)
	return chunk.Chunk{Checksum: r.checksum, Size: r.size, Data: data}, nil
}

// FindChunk locates a chunk by its SHA-1 digest. If hintOffset is
// non-negative, it is treated as the expected byte offset of the chunk's
// header within the data region and resolved via a binary search over the
// sorted index (O(log N)); on a miss, or with no hint, it falls back to a
// linear scan (O(N)).
func (m *Multichunk) FindChunk(checksum [digest.ChunkSize]byte, hintOffset int) (int, bool) {
	if hintOffset >= 0 {
		idx := sort.Search(len(m.records), func(i int) bool {
			return m.records[i].offset >= hintOffset
		})
		if idx < len(m.records) && m.records[idx].offset == hintOffset && m.records[idx].checksum == checksum {
			return idx, true
		}
	}

	for i, r := range m.records {
		if r.checksum == checksum {
			return i, true
		}
	}
	return -1, false
}

// NoHint is the sentinel hintOffset for FindChunk meaning "scan linearly".
const NoHint = noHint

// Entropy computes the Shannon entropy of the packed bytes, normalized by
// dividing by 8 so the result lies in [0,1] (1 only when all 256 byte
// values occur equally often). Upstream callers may use this
// to decide whether compression is worthwhile; the multichunk itself does
// not depend on it (spec §4.4 — "not required; callers may ignore it").
func (m *Multichunk) Entropy() float64 {
	if len(m.data) == 0 {
		return 0
	}

	var counts [256]int
	for _, b := range m.data {
		counts[b]++
	}

	total := float64(len(m.data))
	var bitsPerByte float64
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		bitsPerByte -= p * log2(p)
	}
	return bitsPerByte / 8
}

func log2(x float64) float64 {
	return math.Log(x) / math.Ln2
}

// Reset empties the multichunk so it can be reused without reallocating its
// backing array, keeping its filter-list ID and tag.
func (m *Multichunk) Reset() {
	m.data = m.data[:0]
	m.records = m.records[:0]
}
