package multichunk

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/X-Ryl669/frostcore/internal/digest"
)

// wideCountSentinel marks the upper 16 bits of chunkAndFilter when the
// chunk count N does not fit in 16 bits, signaling that a separate 4-byte
// count follows (spec §6).
const wideCountSentinel = 0xFFFF

// WriteHeaderTo emits the multichunk header: the packed filter-list ID and
// chunk count, followed by each chunk's {sha1, size} record. No transform
// is applied here — the filter chain wraps the sink, not this call.
func (m *Multichunk) WriteHeaderTo(w io.Writer) (int64, error) {
	var written int64

	n := len(m.records)
	narrow := n
	if n >= wideCountSentinel {
		narrow = wideCountSentinel
	}

	chunkAndFilter := uint32(m.filterListID) | uint32(narrow)<<16
	if err := writeUint32(w, chunkAndFilter); err != nil {
		return written, fmt.Errorf("multichunk: writing header: %w", err)
	}
	written += 4

	if narrow == wideCountSentinel {
		if err := writeUint32(w, uint32(n)); err != nil {
			return written, fmt.Errorf("multichunk: writing wide count: %w", err)
		}
		written += 4
	}

	for _, r := range m.records {
		if _, err := w.Write(r.checksum[:]); err != nil {
			return written, fmt.Errorf("multichunk: writing chunk digest: %w", err)
		}
		written += int64(len(r.checksum))

		if err := writeUint16(w, r.size); err != nil {
			return written, fmt.Errorf("multichunk: writing chunk size: %w", err)
		}
		written += 2
	}

	return written, nil
}

// WriteDataTo emits the packed data region verbatim: each chunk prefixed by
// its own 22-byte {sha1, size} record, followed by its payload bytes. This
// mirrors the header's records exactly, so a loader may skip the header
// entirely and rebuild the index from the data region alone.
func (m *Multichunk) WriteDataTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.data)
	if err != nil {
		return int64(n), fmt.Errorf("multichunk: writing data region: %w", err)
	}
	return int64(n), nil
}

// LoadHeaderFrom reads a multichunk header and allocates empty index slots
// so that a subsequent LoadDataFrom is a direct copy into those slots.
func LoadHeaderFrom(r io.Reader) (*Multichunk, error) {
	chunkAndFilter, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("multichunk: reading header: %w", err)
	}

	filterListID := uint16(chunkAndFilter & 0xFFFF)
	n := int(chunkAndFilter >> 16)

	if n == wideCountSentinel {
		wide, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("multichunk: reading wide count: %w", err)
		}
		n = int(wide)
	}

	m := New(DefaultMaxSize, filterListID, 0)
	m.records = make([]record, n)

	for i := 0; i < n; i++ {
		var checksum [digest.ChunkSize]byte
		if _, err := io.ReadFull(r, checksum[:]); err != nil {
			return nil, fmt.Errorf("multichunk: reading chunk %d digest: %w", i, err)
		}
		size, err := readUint16(r)
		if err != nil {
			return nil, fmt.Errorf("multichunk: reading chunk %d size: %w", i, err)
		}
		m.records[i] = record{checksum: checksum, size: size}
	}

	return m, nil
}

// LoadDataFrom reads the packed data region into m, recomputing each
// record's offset from the per-chunk headers embedded in the data itself
// and cross-checking them against the header-derived digests and sizes
// already present in m.records.
func (m *Multichunk) LoadDataFrom(r io.Reader) error {
	var total int
	for _, rec := range m.records {
		total += perChunkHeader + int(rec.size)
	}
	if total > m.maxSize {
		m.maxSize = total
	}

	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("multichunk: reading data region: %w", err)
	}

	offset := 0
	for i := range m.records {
		var checksum [digest.ChunkSize]byte
		copy(checksum[:], data[offset:offset+digest.ChunkSize])
		size := binary.LittleEndian.Uint16(data[offset+digest.ChunkSize : offset+perChunkHeader])

		if checksum != m.records[i].checksum || size != m.records[i].size {
			return fmt.Errorf("multichunk: data region chunk %d does not match header (header sha1=%x size=%d, data sha1=%x size=%d)",
				i, m.records[i].checksum, m.records[i].size, checksum, size)
		}

		m.records[i].offset = offset
		offset += perChunkHeader + int(size)
	}

	m.data = data
	return nil
}

// LoadFromDataOnly rebuilds a multichunk's index directly from its data
// region, without a header — every packed chunk is self-describing (spec
// §6: "a loader may skip the header and rebuild the index from the data
// region alone").
func LoadFromDataOnly(r io.Reader, filterListID uint16) (*Multichunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("multichunk: reading data-only region: %w", err)
	}

	m := New(len(data), filterListID, 0)
	m.data = data

	offset := 0
	for offset < len(data) {
		if offset+perChunkHeader > len(data) {
			return nil, fmt.Errorf("multichunk: truncated per-chunk header at offset %d", offset)
		}
		var checksum [digest.ChunkSize]byte
		copy(checksum[:], data[offset:offset+digest.ChunkSize])
		size := binary.LittleEndian.Uint16(data[offset+digest.ChunkSize : offset+perChunkHeader])

		if offset+perChunkHeader+int(size) > len(data) {
			return nil, fmt.Errorf("multichunk: truncated chunk payload at offset %d", offset)
		}

		m.records = append(m.records, record{offset: offset, checksum: checksum, size: size})
		offset += perChunkHeader + int(size)
	}

	return m, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
