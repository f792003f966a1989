package chunk

import (
	"fmt"
	"io"

	"github.com/X-Ryl669/frostcore/internal/rollhash"
)

// Source is the chunker's input contract: a readable stream that can be
// rewound to an absolute byte offset. The chunker never commits to a
// boundary until it has confirmed the stream can be rewound there, so a
// non-seekable stream (e.g. a network socket) must be buffered by the
// caller into something satisfying this interface.
type Source interface {
	io.Reader
	Seek(offset int64, whence int) (int64, error)
}

// Params configures the TTTD chunker. Use NewParamsFromAverage to derive
// all four fields from a single target average size, or set them directly
// for full control.
type Params struct {
	MinSize int
	MaxSize int
	D1      int // primary divisor
	D2      int // secondary (fallback) divisor, D2 < D1
}

// NewParamsFromAverage derives TTTD parameters from a target average chunk
// size A, using the ratios from the original TTTD paper: minSize =
// round(460A/1015), maxSize = round(2800A/1015), D1 = round(540A/1015),
// D2 = round(270A/1015).
func NewParamsFromAverage(avg int) Params {
	return Params{
		MinSize: roundRatio(avg, 460, 1015),
		MaxSize: roundRatio(avg, 2800, 1015),
		D1:      roundRatio(avg, 540, 1015),
		D2:      roundRatio(avg, 270, 1015),
	}
}

func roundRatio(a, num, den int) int {
	return (a*num + den/2) / den
}

// validate enforces the chunker's documented preconditions. MaxSize must
// stay below 65535 because Chunk.Size is a 16-bit wire field.
func (p Params) validate() error {
	if p.MinSize <= 0 || p.MaxSize <= 0 || p.D1 <= 0 || p.D2 <= 0 {
		return fmt.Errorf("chunk: all TTTD parameters must be positive: %+v", p)
	}
	if p.D2 >= p.D1 {
		return fmt.Errorf("chunk: secondary divisor %d must be smaller than primary divisor %d", p.D2, p.D1)
	}
	if p.MinSize > p.MaxSize {
		return fmt.Errorf("chunk: MinSize %d exceeds MaxSize %d", p.MinSize, p.MaxSize)
	}
	if p.MaxSize >= 65535 {
		return fmt.Errorf("chunk: MaxSize %d must be below 65535 (16-bit size field)", p.MaxSize)
	}
	if p.MaxSize > MaxChunkSize {
		return fmt.Errorf("chunk: MaxSize %d exceeds MaxChunkSize %d", p.MaxSize, MaxChunkSize)
	}
	return nil
}

// Chunker cuts a Source into content-defined chunks. A Chunker is exclusive
// to one caller; there is no internal locking (spec §5).
type Chunker struct {
	src    Source
	params Params
	buf    []byte
}

// NewChunker builds a chunker over src using the given parameters.
func NewChunker(src Source, params Params) (*Chunker, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	readLimit := params.MaxSize
	if readLimit > MaxChunkSize {
		readLimit = MaxChunkSize
	}
	return &Chunker{
		src:    src,
		params: params,
		buf:    make([]byte, readLimit),
	}, nil
}

// CreateChunk reads the next content-defined chunk from the source. It
// returns io.EOF once the source is exhausted. A rewind failure after a
// successful read is fatal to the chunker: the session must not be reused.
func (c *Chunker) CreateChunk() (Chunk, error) {
	startPos, err := c.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return Chunk{}, fmt.Errorf("chunk: recording start position: %w", err)
	}

	n, err := io.ReadFull(c.src, c.buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Chunk{}, fmt.Errorf("chunk: reading input: %w", err)
	}
	if n == 0 {
		return Chunk{}, io.EOF
	}

	boundary := n
	if n > c.params.MinSize {
		boundary = c.findBoundary(c.buf[:n])
	}

	if _, err := c.src.Seek(startPos+int64(boundary), io.SeekStart); err != nil {
		return Chunk{}, fmt.Errorf("chunk: rewinding to boundary: %w", err)
	}

	data := make([]byte, boundary)
	copy(data, c.buf[:boundary])
	return New(data), nil
}

// findBoundary runs the TTTD rolling hash from params.MinSize forward over
// buf and returns the chosen boundary offset (spec §4.3 step 4-5).
func (c *Chunker) findBoundary(buf []byte) int {
	var h rollhash.Adler32
	h.Start()

	fallback := -1
	for i := c.params.MinSize; i < len(buf); i++ {
		h.Append(buf[i])
		sum := h.Native()

		if int(sum%uint32(c.params.D2)) == c.params.D2-1 {
			fallback = i + 1
		}
		if int(sum%uint32(c.params.D1)) == c.params.D1-1 {
			return i + 1
		}
	}

	if fallback >= 0 {
		return fallback
	}
	return len(buf)
}
