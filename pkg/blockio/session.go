package blockio

import (
	"encoding/binary"
	"io"

	"github.com/X-Ryl669/frostcore/internal/frosterr"
	"github.com/X-Ryl669/frostcore/internal/membuf"
	"github.com/X-Ryl669/frostcore/internal/rollhash"
)

// CountFieldSize is the width of the leading block-count field that opens
// every compressed stream.
const CountFieldSize = 4

type writePhase int

const (
	writeFresh writePhase = iota
	writeStreaming
	writeFinalized
)

// WriteSession drives the compress-side state machine: Fresh ->
// HeaderReserved -> BlockEmitting (repeated) -> Finalized (spec §4.5). One
// session compresses exactly one stream; Reset prepares it for another.
type WriteSession struct {
	coder     Coder
	blockSize int

	knownTotal *int64 // nil: total source length unknown up front
	phase      writePhase
	blocks     int
	countOffset int64

	in *membuf.Buffer
}

// NewWriteSession creates a session that emits blocks of at most blockSize
// source bytes each, compressed with coder.
func NewWriteSession(coder Coder, blockSize int) *WriteSession {
	return &WriteSession{
		coder:     coder,
		blockSize: blockSize,
		in:        membuf.New(blockSize),
	}
}

// SetKnownTotalSize declares the exact number of source bytes the session
// will see, letting it write the correct block count up front instead of a
// placeholder it must later patch. Must be called before the first
// CompressStream call.
func (s *WriteSession) SetKnownTotalSize(n int64) {
	s.knownTotal = &n
}

// Reset returns the session to Fresh so it can compress a new stream.
func (s *WriteSession) Reset() {
	s.phase = writeFresh
	s.blocks = 0
	s.knownTotal = nil
	s.in.Empty()
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func (s *WriteSession) ensureHeaderWritten(output io.Writer) error {
	if s.phase != writeFresh {
		return nil
	}

	var expected uint32
	if s.knownTotal != nil {
		expected = uint32(ceilDiv(*s.knownTotal, int64(s.blockSize)))
	} else {
		seeker, ok := output.(io.Seeker)
		if !ok {
			return frosterr.New(frosterr.BadParameter, "blockio.WriteSession",
				"unknown-size stream requires a seekable output to patch the block count at Finalize")
		}
		pos, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return frosterr.Wrap(frosterr.BadParameter, "blockio.WriteSession", err)
		}
		s.countOffset = pos
	}

	var b [CountFieldSize]byte
	binary.LittleEndian.PutUint32(b[:], expected)
	if _, err := output.Write(b[:]); err != nil {
		return frosterr.Wrap(frosterr.BadParameter, "blockio.WriteSession", err)
	}

	s.phase = writeStreaming
	return nil
}

// CompressStream consumes up to maxToProcess bytes from input (0 means
// drain until EOF), emitting full blocks as they fill and returning the
// number of source bytes consumed. An empty read from input (true EOF)
// always finalizes the session, flushing any partial trailing block and
// patching the block count if it was written as a placeholder.
func (s *WriteSession) CompressStream(output io.Writer, input io.Reader, maxToProcess int64, lastCall bool) (int64, error) {
	if s.phase == writeFinalized {
		return 0, frosterr.New(frosterr.BadParameter, "blockio.CompressStream", "session already finalized; call Reset")
	}
	if err := s.ensureHeaderWritten(output); err != nil {
		return 0, err
	}

	drain := maxToProcess <= 0

	// Back-pressure fast path: the whole request fits in the block buffer
	// and this isn't a forced flush, so just land it in memory.
	if !drain && !lastCall && s.in.CanFit(int(maxToProcess)) {
		n, err := s.in.Refill(input, int(maxToProcess))
		if err != nil && err != io.EOF {
			return int64(n), frosterr.Wrap(frosterr.NotEnoughMemory, "blockio.CompressStream", err)
		}
		if err == io.EOF && n == 0 {
			return 0, s.finalizeFlush(output)
		}
		return int64(n), nil
	}

	var processed int64
	for {
		want := s.blockSize - s.in.Available()
		if want < 0 {
			want = 0
		}
		if !drain {
			left := maxToProcess - processed
			if left <= 0 {
				want = 0
			} else if int64(want) > left {
				want = int(left)
			}
		}

		var eof bool
		if want > 0 {
			n, err := s.in.Refill(input, want)
			processed += int64(n)
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return processed, frosterr.Wrap(frosterr.NotEnoughMemory, "blockio.CompressStream", err)
			}
		}

		for s.in.Available() >= s.blockSize {
			if err := s.emitBlock(output, s.blockSize); err != nil {
				return processed, err
			}
		}

		if eof {
			return processed, s.finalizeFlush(output)
		}
		if !drain && processed >= maxToProcess {
			return processed, nil
		}
		if drain {
			continue
		}
		return processed, nil
	}
}

func (s *WriteSession) finalizeFlush(output io.Writer) error {
	if s.in.Available() > 0 {
		if err := s.emitBlock(output, s.in.Available()); err != nil {
			return err
		}
	}
	return s.finalize(output)
}

func (s *WriteSession) finalize(output io.Writer) error {
	if s.knownTotal == nil {
		seeker := output.(io.Seeker) // guaranteed by ensureHeaderWritten
		cur, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return frosterr.Wrap(frosterr.BadParameter, "blockio.finalize", err)
		}
		if _, err := seeker.Seek(s.countOffset, io.SeekStart); err != nil {
			return frosterr.Wrap(frosterr.BadParameter, "blockio.finalize", err)
		}
		var b [CountFieldSize]byte
		binary.LittleEndian.PutUint32(b[:], uint32(s.blocks))
		if _, err := output.Write(b[:]); err != nil {
			return frosterr.Wrap(frosterr.BadParameter, "blockio.finalize", err)
		}
		if _, err := seeker.Seek(cur, io.SeekStart); err != nil {
			return frosterr.Wrap(frosterr.BadParameter, "blockio.finalize", err)
		}
	}
	s.phase = writeFinalized
	return nil
}

// emitBlock compresses (or, on NotCompressible, stores) exactly n buffered
// source bytes and writes the pre-header, header, and body to output.
func (s *WriteSession) emitBlock(output io.Writer, n int) error {
	src := make([]byte, n)
	copy(src, s.in.Bytes()[:n])
	s.in.Use(n)

	srcAdler := rollhash.Checksum(src)

	body, compressed, err := s.coder.CompressBlock(src)
	if err != nil {
		return frosterr.Wrap(frosterr.NotEnoughMemory, "blockio.emitBlock", err)
	}

	var mode Mode
	if compressed {
		mode = s.coder.Mode()
	} else {
		body = src
		mode = Mode{Sorter: SorterStored}
	}

	header := Header{
		BlockSize:    HeaderSize + uint32(len(body)),
		DataSize:     uint32(n),
		Mode:         mode.Pack(),
		PrimaryIndex: 0,
		SrcAdler:     srcAdler,
		CompAdler:    rollhash.Checksum(body),
	}

	pre := PreHeader{SourceOffset: 0, RecordSize: 1, SortingContext: 1}
	preBytes := pre.Encode()
	if _, err := output.Write(preBytes[:]); err != nil {
		return frosterr.Wrap(frosterr.BadParameter, "blockio.emitBlock", err)
	}

	headerBytes := header.Encode()
	if _, err := output.Write(headerBytes[:]); err != nil {
		return frosterr.Wrap(frosterr.BadParameter, "blockio.emitBlock", err)
	}
	if _, err := output.Write(body); err != nil {
		return frosterr.Wrap(frosterr.BadParameter, "blockio.emitBlock", err)
	}

	s.blocks++
	return nil
}

type readPhase int

const (
	readFresh readPhase = iota
	readStreaming
	readDone
)

// ReadSession drives the decompress-side state machine: Fresh -> CountRead
// -> (HeaderRead -> BodyRead -> BlockDecode -> Deliver)* -> Done (spec
// §4.5). Deliver hands decoded bytes to the caller's output as soon as a
// block is decoded; any bytes beyond what the caller asked for are held
// until the next call. Once every block has been delivered the session
// stays Done, returning 0 bytes on every further call; it does not return
// to Fresh on its own, and only Reset readies it for a new stream.
type ReadSession struct {
	coder Coder

	phase           readPhase
	blocksRemaining int

	pending []byte // decoded bytes not yet delivered to the caller
}

// maxBlockBytes bounds how much of a single block this session will ever
// buffer: a fixed 4 MiB cap on a block's header-plus-body size, guarding
// against a corrupt blockSize. Blocks whose blockSize exceeds it are
// rejected as DataCorrupt.
const maxBlockBytes = 4 << 20

// NewReadSession creates a session that decodes blocks written by a
// WriteSession using the same coder.
func NewReadSession(coder Coder) *ReadSession {
	return &ReadSession{coder: coder}
}

// Reset returns the session to Fresh so it can decode a new stream.
func (s *ReadSession) Reset() {
	s.phase = readFresh
	s.blocksRemaining = 0
	s.pending = nil
}

// DecompressStream writes up to maxToProcess decoded bytes to output (0
// means drain every remaining block), reading as many source bytes from
// input as needed. It returns the number of bytes delivered to output.
func (s *ReadSession) DecompressStream(output io.Writer, input io.Reader, maxToProcess int64) (int64, error) {
	if s.phase == readFresh {
		if err := s.readCount(input); err != nil {
			return 0, err
		}
		s.phase = readStreaming
	}

	var delivered int64
	drain := maxToProcess <= 0

	for {
		if len(s.pending) > 0 {
			n, err := s.deliver(output, &delivered, maxToProcess, drain)
			if err != nil {
				return delivered, err
			}
			if n == 0 && !drain && delivered >= maxToProcess {
				return delivered, nil
			}
		}

		if len(s.pending) > 0 {
			// Caller's budget is exhausted but bytes remain.
			return delivered, nil
		}

		if s.phase == readDone {
			return delivered, nil
		}
		if !drain && delivered >= maxToProcess {
			return delivered, nil
		}

		if err := s.decodeNextBlock(input); err != nil {
			return delivered, err
		}
	}
}

func (s *ReadSession) deliver(output io.Writer, delivered *int64, maxToProcess int64, drain bool) (int, error) {
	n := len(s.pending)
	if !drain {
		left := maxToProcess - *delivered
		if left < int64(n) {
			n = int(left)
		}
	}
	if n <= 0 {
		return 0, nil
	}
	if _, err := output.Write(s.pending[:n]); err != nil {
		return 0, frosterr.Wrap(frosterr.BadParameter, "blockio.deliver", err)
	}
	*delivered += int64(n)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *ReadSession) readCount(input io.Reader) error {
	var b [CountFieldSize]byte
	if _, err := io.ReadFull(input, b[:]); err != nil {
		return frosterr.Wrap(frosterr.UnexpectedEOB, "blockio.ReadSession", err)
	}
	s.blocksRemaining = int(binary.LittleEndian.Uint32(b[:]))
	return nil
}

func (s *ReadSession) decodeNextBlock(input io.Reader) error {
	if s.blocksRemaining == 0 {
		s.phase = readDone
		return nil
	}

	var frame [PreHeaderSize + HeaderSize]byte
	if _, err := io.ReadFull(input, frame[:]); err != nil {
		return frosterr.Wrap(frosterr.UnexpectedEOB, "blockio.decodeNextBlock", err)
	}

	pre, err := DecodePreHeader(frame[:PreHeaderSize])
	if err != nil {
		return err
	}
	header, err := InspectBlock(frame[PreHeaderSize:])
	if err != nil {
		return err
	}

	bodyLen := int(header.BlockSize) - HeaderSize
	if bodyLen < 0 || header.BlockSize > maxBlockBytes {
		return frosterr.New(frosterr.DataCorrupt, "blockio.decodeNextBlock", "implausible block size")
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(input, body); err != nil {
		return frosterr.Wrap(frosterr.UnexpectedEOD, "blockio.decodeNextBlock", err)
	}

	if rollhash.Checksum(body) != header.CompAdler {
		return frosterr.New(frosterr.DataCorrupt, "blockio.decodeNextBlock", "compressed-body checksum mismatch")
	}

	mode, err := UnpackMode(header.Mode)
	if err != nil {
		return err
	}

	var data []byte
	if mode.Sorter == SorterStored {
		data = body
	} else {
		data, err = s.coder.DecompressBlock(body, int(header.DataSize))
		if err != nil {
			return frosterr.Wrap(frosterr.DataCorrupt, "blockio.decodeNextBlock", err)
		}
	}

	if rollhash.Checksum(data) != header.SrcAdler {
		return frosterr.New(frosterr.DataCorrupt, "blockio.decodeNextBlock", "decompressed-source checksum mismatch")
	}

	data, err = PostProcess(data, pre.SortingContext, pre.RecordSize)
	if err != nil {
		return err
	}

	s.pending = data
	s.blocksRemaining--
	return nil
}
