// Package blockio implements the streaming block-sorting compressor: block
// framing, the block header/trailer, and the compress/decompress state
// machines with bounded-memory back-pressure (spec §4.5).
//
// The block-sorting transform itself (BWT + entropy coding) is treated as
// an opaque, reused "coder" (see Coder) — this package owns only the frame
// format, the chaining, the incompressibility fallback, and the streaming
// protocol around it.
package blockio

import (
	"encoding/binary"
	"fmt"

	"github.com/X-Ryl669/frostcore/internal/frosterr"
	"github.com/X-Ryl669/frostcore/internal/rollhash"
)

// HeaderSize is the fixed size of a block header on the wire.
const HeaderSize = 28

// PreHeaderSize is the fixed size of the per-block pre-header that precedes
// every block header on the wire.
const PreHeaderSize = 10

// Block sorter identifiers (low 5 bits of Mode). Sorter 0 marks a stored
// (uncompressed) block — the outcome of the NotCompressible fallback —
// distinct from the single accepted real sorter, BWT.
const (
	SorterStored uint8 = 0
	SorterBWT    uint8 = 1
)

// Entropy coder identifiers (bits 5-7 of Mode), meaningful only when Sorter
// is SorterBWT.
const (
	CoderNone        uint8 = 0
	CoderQLFCStatic  uint8 = 1
	CoderQLFCAdaptive uint8 = 2
)

// Mode is the tagged variant packed into the block header's 32-bit mode
// field. Spec §9 calls out the packed bitfield as something to replace with
// an explicit tagged type carrying the bit layout as its only authoritative
// specification — this type, plus Pack/UnpackMode, are that replacement.
type Mode struct {
	Sorter      uint8
	Coder       uint8
	LZPMinLen   uint8 // 0 (disabled) or 4..255
	LZPHashSize uint8 // 0 (disabled) or 10..28
}

// Pack encodes the mode into its wire representation: low 5 bits sorter,
// next 3 bits coder, next 8 bits lzpMinLen, next 8 bits lzpHashSize.
func (m Mode) Pack() uint32 {
	return uint32(m.Sorter&0x1F) |
		uint32(m.Coder&0x7)<<5 |
		uint32(m.LZPMinLen)<<8 |
		uint32(m.LZPHashSize)<<16
}

// UnpackMode decodes and validates a wire mode value. A stored block (mode
// == 0 exactly) is always valid. Otherwise the sorter must be SorterBWT,
// the coder must be one of the two QLFC variants, and the LZP fields must
// be either disabled (0) or within their documented ranges.
func UnpackMode(v uint32) (Mode, error) {
	if v == 0 {
		return Mode{Sorter: SorterStored}, nil
	}

	if v&0xFF000000 != 0 {
		return Mode{}, frosterr.New(frosterr.DataCorrupt, "blockio.UnpackMode", "reserved mode bits are set")
	}

	m := Mode{
		Sorter:      uint8(v & 0x1F),
		Coder:       uint8((v >> 5) & 0x7),
		LZPMinLen:   uint8((v >> 8) & 0xFF),
		LZPHashSize: uint8((v >> 16) & 0xFF),
	}

	if m.Sorter != SorterBWT {
		return Mode{}, frosterr.New(frosterr.DataCorrupt, "blockio.UnpackMode", fmt.Sprintf("unsupported block sorter %d", m.Sorter))
	}
	if m.Coder != CoderQLFCStatic && m.Coder != CoderQLFCAdaptive {
		return Mode{}, frosterr.New(frosterr.DataCorrupt, "blockio.UnpackMode", fmt.Sprintf("unsupported coder %d", m.Coder))
	}
	if m.LZPMinLen != 0 && m.LZPMinLen < 4 {
		return Mode{}, frosterr.New(frosterr.DataCorrupt, "blockio.UnpackMode", fmt.Sprintf("invalid lzpMinLen %d", m.LZPMinLen))
	}
	if m.LZPHashSize != 0 && (m.LZPHashSize < 10 || m.LZPHashSize > 28) {
		return Mode{}, frosterr.New(frosterr.DataCorrupt, "blockio.UnpackMode", fmt.Sprintf("invalid lzpHashSize %d", m.LZPHashSize))
	}

	return m, nil
}

// Header is the 28-byte block header (spec §3, §6).
type Header struct {
	BlockSize    uint32
	DataSize     uint32
	Mode         uint32
	PrimaryIndex uint32
	SrcAdler     uint32
	CompAdler    uint32
	HeaderAdler  uint32
}

// Encode serializes the header to its 28-byte wire form, computing
// HeaderAdler over the first 24 bytes as it goes.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.BlockSize)
	binary.LittleEndian.PutUint32(buf[4:8], h.DataSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.Mode)
	binary.LittleEndian.PutUint32(buf[12:16], h.PrimaryIndex)
	binary.LittleEndian.PutUint32(buf[16:20], h.SrcAdler)
	binary.LittleEndian.PutUint32(buf[20:24], h.CompAdler)
	binary.LittleEndian.PutUint32(buf[24:28], rollhash.Checksum(buf[:24]))
	return buf
}

// InspectBlock validates a 28-byte header buffer and decodes it (spec
// §4.5 "Header validation"). It is the sole entry point for turning raw
// header bytes into a trusted Header; every field it returns has already
// passed its documented bound.
func InspectBlock(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, frosterr.New(frosterr.UnexpectedEOB, "blockio.InspectBlock", "short header")
	}
	buf = buf[:HeaderSize]

	wantAdler := rollhash.Checksum(buf[:24])
	gotAdler := binary.LittleEndian.Uint32(buf[24:28])
	if wantAdler != gotAdler {
		return Header{}, frosterr.New(frosterr.DataCorrupt, "blockio.InspectBlock", "header checksum mismatch")
	}

	h := Header{
		BlockSize:    binary.LittleEndian.Uint32(buf[0:4]),
		DataSize:     binary.LittleEndian.Uint32(buf[4:8]),
		Mode:         binary.LittleEndian.Uint32(buf[8:12]),
		PrimaryIndex: binary.LittleEndian.Uint32(buf[12:16]),
		SrcAdler:     binary.LittleEndian.Uint32(buf[16:20]),
		CompAdler:    binary.LittleEndian.Uint32(buf[20:24]),
		HeaderAdler:  gotAdler,
	}

	if _, err := UnpackMode(h.Mode); err != nil {
		return Header{}, err
	}

	if h.BlockSize < HeaderSize || h.BlockSize > HeaderSize+h.DataSize {
		return Header{}, frosterr.New(frosterr.DataCorrupt, "blockio.InspectBlock", fmt.Sprintf("blockSize %d out of bounds for dataSize %d", h.BlockSize, h.DataSize))
	}
	if h.PrimaryIndex > h.DataSize {
		return Header{}, frosterr.New(frosterr.DataCorrupt, "blockio.InspectBlock", fmt.Sprintf("primaryIndex %d exceeds dataSize %d", h.PrimaryIndex, h.DataSize))
	}

	return h, nil
}

// PreHeader is the 10-byte record preceding every block header on the wire.
// recordSize and sortingContext exist to preserve on-disk compatibility
// with a post-processing step this core never triggers on the write side
// (see PostProcess); the writer always emits the identity values.
type PreHeader struct {
	SourceOffset   int64
	RecordSize     int8
	SortingContext int8
}

// Encode serializes a pre-header to its 10-byte wire form.
func (p PreHeader) Encode() [PreHeaderSize]byte {
	var buf [PreHeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.SourceOffset))
	buf[8] = byte(p.RecordSize)
	buf[9] = byte(p.SortingContext)
	return buf
}

// DecodePreHeader parses and validates a 10-byte pre-header.
func DecodePreHeader(buf []byte) (PreHeader, error) {
	if len(buf) < PreHeaderSize {
		return PreHeader{}, frosterr.New(frosterr.UnexpectedEOB, "blockio.DecodePreHeader", "short pre-header")
	}
	p := PreHeader{
		SourceOffset:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		RecordSize:     int8(buf[8]),
		SortingContext: int8(buf[9]),
	}
	if p.RecordSize < 1 {
		return PreHeader{}, frosterr.New(frosterr.DataCorrupt, "blockio.DecodePreHeader", fmt.Sprintf("recordSize %d < 1", p.RecordSize))
	}
	if p.SortingContext != 1 && p.SortingContext != 2 {
		return PreHeader{}, frosterr.New(frosterr.DataCorrupt, "blockio.DecodePreHeader", fmt.Sprintf("sortingContext %d not in {1,2}", p.SortingContext))
	}
	return p, nil
}

// PostProcess reverses the record-reordering step keyed by sortingContext
// and recordSize (spec §9 Open Question). The writer in this core always
// emits sortingContext=1 (identity); sortingContext=2 support exists so the
// reader can accept streams from a future writer that reorders records,
// without this core ever producing one.
func PostProcess(buf []byte, sortingContext int8, recordSize int8) ([]byte, error) {
	switch sortingContext {
	case 1:
		return buf, nil
	case 2:
		return reverseRecords(buf, int(recordSize))
	default:
		return nil, frosterr.New(frosterr.DataCorrupt, "blockio.PostProcess", fmt.Sprintf("unsupported sortingContext %d", sortingContext))
	}
}

// reverseRecords reverses the order of fixed-size records in buf, leaving
// any trailing partial record in place at the end.
func reverseRecords(buf []byte, recordSize int) ([]byte, error) {
	if recordSize <= 0 {
		return nil, frosterr.New(frosterr.BadParameter, "blockio.reverseRecords", "recordSize must be positive")
	}
	n := len(buf) / recordSize
	out := make([]byte, len(buf))
	for i := 0; i < n; i++ {
		src := buf[i*recordSize : (i+1)*recordSize]
		dst := out[(n-1-i)*recordSize : (n-i)*recordSize]
		copy(dst, src)
	}
	copy(out[n*recordSize:], buf[n*recordSize:])
	return out, nil
}
