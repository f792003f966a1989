// Package chunk implements content-defined chunking: cutting a byte stream
// into variable-length chunks at boundaries chosen by a rolling hash, so a
// local edit only perturbs the boundaries nearest the edit.
//
// The boundary algorithm is TTTD (two-threshold/two-divisor): a primary
// divisor picks the preferred boundary; a weaker secondary divisor supplies
// a fallback boundary if the primary never fires before the hard maximum.
package chunk

import (
	"encoding/hex"
	"fmt"

	"github.com/X-Ryl669/frostcore/internal/digest"
)

// MaxChunkSize bounds every chunk's size field, which is serialized as a
// 16-bit little-endian integer on the wire (see pkg/multichunk).
const MaxChunkSize = 11299

// Chunk is a variable-length byte payload identified by its SHA-1 digest.
// Two chunks with equal Checksum are considered identical content.
type Chunk struct {
	Checksum [digest.ChunkSize]byte
	Size     uint16
	Data     []byte
}

// HexChecksum renders the chunk's SHA-1 digest as a lowercase hex string,
// the form used for log lines and catalog keys.
func (c Chunk) HexChecksum() string {
	return hex.EncodeToString(c.Checksum[:])
}

// Equal reports whether two chunks carry the same content identity.
func (c Chunk) Equal(other Chunk) bool {
	return c.Checksum == other.Checksum && c.Size == other.Size
}

// String implements fmt.Stringer for log lines.
func (c Chunk) String() string {
	return fmt.Sprintf("Chunk{size=%d, checksum=%s}", c.Size, c.HexChecksum())
}

// New builds a Chunk from data, computing its SHA-1 identity. It panics if
// data is larger than MaxChunkSize; callers (the chunker, multichunk
// loaders) are expected to have already enforced that bound.
func New(data []byte) Chunk {
	if len(data) > MaxChunkSize {
		panic(fmt.Sprintf("chunk: data length %d exceeds MaxChunkSize %d", len(data), MaxChunkSize))
	}
	return Chunk{
		Checksum: digest.Chunk(data),
		Size:     uint16(len(data)),
		Data:     data,
	}
}

// VerifyIntegrity reports whether data matches the chunk's recorded
// checksum and size — the content-identity invariant from spec §3.
func VerifyIntegrity(c Chunk, data []byte) error {
	if len(data) != int(c.Size) {
		return fmt.Errorf("chunk size mismatch: recorded %d, got %d bytes", c.Size, len(data))
	}
	if got := digest.Chunk(data); got != c.Checksum {
		return fmt.Errorf("chunk checksum mismatch: recorded %x, got %x", c.Checksum, got)
	}
	return nil
}
