package blockio

import (
	"bytes"
	"io"
	"testing"
)

// runCoder is a trivial, deterministic Coder used only to exercise the
// session state machines without depending on a real entropy coder. It
// "compresses" a block only when every byte is identical, collapsing it to
// a single byte; anything else is reported NotCompressible.
type runCoder struct{ closed bool }

func (c *runCoder) CompressBlock(src []byte) ([]byte, bool, error) {
	if len(src) == 0 {
		return nil, false, nil
	}
	first := src[0]
	for _, b := range src[1:] {
		if b != first {
			return nil, false, nil
		}
	}
	return []byte{first}, true, nil
}

func (c *runCoder) DecompressBlock(body []byte, dataSize int) ([]byte, error) {
	out := make([]byte, dataSize)
	for i := range out {
		out[i] = body[0]
	}
	return out, nil
}

func (c *runCoder) Mode() Mode {
	return Mode{Sorter: SorterBWT, Coder: CoderQLFCStatic}
}

func (c *runCoder) Close() error { c.closed = true; return nil }

func TestEmptyStreamRoundTrips(t *testing.T) {
	out, err := Compress(&runCoder{}, 64, nil)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := Decompress(&runCoder{}, out)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Decompress(empty) = %v, want empty", got)
	}
}

func TestCompressibleBlockRoundTrips(t *testing.T) {
	src := bytes.Repeat([]byte{'x'}, 300)
	out, err := Compress(&runCoder{}, 64, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := Decompress(&runCoder{}, out)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("round-tripped data does not match source")
	}
}

func TestIncompressibleBlockFallsBackToStore(t *testing.T) {
	src := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	out, err := Compress(&runCoder{}, 16, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := Decompress(&runCoder{}, out)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("round-tripped data does not match source")
	}
}

func TestMixedBlocksRoundTrip(t *testing.T) {
	var src []byte
	src = append(src, bytes.Repeat([]byte{'a'}, 40)...)
	src = append(src, []byte("not-a-run-of-one-byte-at-all-here")...)
	src = append(src, bytes.Repeat([]byte{'z'}, 50)...)

	out, err := Compress(&runCoder{}, 16, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := Decompress(&runCoder{}, out)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("round-tripped data does not match source")
	}
}

func TestDrySizingMatchesActualOutput(t *testing.T) {
	src := bytes.Repeat([]byte("hello "), 500)
	size, err := CompressSize(&runCoder{}, 128, src)
	if err != nil {
		t.Fatalf("CompressSize: %v", err)
	}
	out, err := Compress(&runCoder{}, 128, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if int64(len(out)) != size {
		t.Fatalf("actual output %d bytes, dry-run predicted %d", len(out), size)
	}
}

func TestDecompressDetectsBodyCorruption(t *testing.T) {
	src := bytes.Repeat([]byte{'q'}, 100)
	out, err := Compress(&runCoder{}, 32, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	// Flip the stream's last byte: the final block's one-byte body.
	corrupt := append([]byte(nil), out...)
	corrupt[len(corrupt)-1] ^= 0xFF

	if _, err := Decompress(&runCoder{}, corrupt); err == nil {
		t.Fatal("expected a DataCorrupt error from a tampered stream")
	}
}

func TestDecompressDetectsHeaderCorruption(t *testing.T) {
	src := bytes.Repeat([]byte{'m'}, 40)
	out, err := Compress(&runCoder{}, 64, src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	// Byte 4 sits inside the first block's header, covered by headerAdler.
	corrupt := append([]byte(nil), out...)
	corrupt[CountFieldSize+PreHeaderSize+4] ^= 0xFF

	if _, err := Decompress(&runCoder{}, corrupt); err == nil {
		t.Fatal("expected a DataCorrupt error from a tampered header")
	}
}

func TestWriteSessionRequiresSeekableOutputForUnknownSize(t *testing.T) {
	s := NewWriteSession(&runCoder{}, 32)
	var buf bytes.Buffer // io.Writer but not io.Seeker
	_, err := s.CompressStream(&buf, bytes.NewReader([]byte("data")), 0, true)
	if err == nil {
		t.Fatal("expected an error when streaming unknown-size data to a non-seekable sink")
	}
}

func TestWriteSessionUnknownSizeWithSeekableOutput(t *testing.T) {
	s := NewWriteSession(&runCoder{}, 32)
	buf := newSeekBuffer()
	src := bytes.Repeat([]byte{'k'}, 200)
	if _, err := s.CompressStream(buf, bytes.NewReader(src), 0, true); err != nil {
		t.Fatalf("CompressStream: %v", err)
	}

	got, err := Decompress(&runCoder{}, buf.Bytes())
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("round-tripped data does not match source")
	}
}

func TestWriteSessionFinalizedRejectsFurtherWrites(t *testing.T) {
	s := NewWriteSession(&runCoder{}, 32)
	var buf bytes.Buffer
	s.SetKnownTotalSize(4)
	if _, err := s.CompressStream(&buf, bytes.NewReader([]byte("data")), 0, true); err != nil {
		t.Fatalf("CompressStream: %v", err)
	}
	if _, err := s.CompressStream(&buf, bytes.NewReader([]byte("more")), 0, true); err == nil {
		t.Fatal("expected an error writing to an already-finalized session")
	}
	s.Reset()
	s.SetKnownTotalSize(4)
	if _, err := s.CompressStream(&buf, bytes.NewReader([]byte("more")), 0, true); err != nil {
		t.Fatalf("CompressStream after Reset: %v", err)
	}
}

// seekBuffer is a minimal io.WriteSeeker over a growable in-memory buffer,
// used to exercise the unknown-size header-patch path.
type seekBuffer struct {
	data []byte
	pos  int64
}

func newSeekBuffer() *seekBuffer { return &seekBuffer{} }

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = b.pos
	case io.SeekEnd:
		base = int64(len(b.data))
	}
	b.pos = base + offset
	return b.pos, nil
}

func (b *seekBuffer) Bytes() []byte { return b.data }
