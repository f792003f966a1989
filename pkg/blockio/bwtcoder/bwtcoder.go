// Package bwtcoder implements blockio.Coder on top of dsnet/compress's
// bzip2 codec, a real block-sorting (BWT) + Huffman compressor. Each block
// becomes one self-contained bzip2 stream; the coder is the sole owner of
// the BWT/entropy-coding detail that blockio's framing treats as opaque.
package bwtcoder

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/X-Ryl669/frostcore/pkg/blockio"
)

// Coder wraps dsnet/compress/bzip2 behind blockio.Coder. A Coder is cheap
// to construct and holds no long-lived resources of its own; Close is a
// no-op kept to satisfy the interface and leave room for a future pooled
// implementation.
type Coder struct {
	level int
}

// New creates a Coder at the given bzip2 compression level (1-9; 0 selects
// the library default).
func New(level int) *Coder {
	return &Coder{level: level}
}

// CompressBlock runs src through a single bzip2 stream. Compression is
// judged not worth it (NotCompressible) whenever the resulting stream,
// including its own framing, would not be smaller than the source.
func (c *Coder) CompressBlock(src []byte) ([]byte, bool, error) {
	var buf bytes.Buffer
	cfg := &bzip2.WriterConfig{Level: c.level}
	if cfg.Level == 0 {
		cfg.Level = bzip2.DefaultCompression
	}

	w, err := bzip2.NewWriter(&buf, cfg)
	if err != nil {
		return nil, false, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, false, err
	}
	if err := w.Close(); err != nil {
		return nil, false, err
	}

	if buf.Len() >= len(src) {
		return nil, false, nil
	}
	return buf.Bytes(), true, nil
}

// DecompressBlock reverses CompressBlock, reading the bzip2 stream back
// into a dataSize-length buffer.
func (c *Coder) DecompressBlock(body []byte, dataSize int) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(body), nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]byte, dataSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Mode reports the wire mode this coder writes for a compressed block. LZP
// preprocessing is not performed by this coder, so both LZP fields report
// disabled; the BWT permutation and entropy table live entirely inside the
// bzip2 stream body, so this core's PrimaryIndex header field is unused by
// this concrete coder (always 0).
func (c *Coder) Mode() blockio.Mode {
	return blockio.Mode{
		Sorter: blockio.SorterBWT,
		Coder:  blockio.CoderQLFCStatic,
	}
}

// Close releases resources held by the coder. This implementation holds
// none; Close exists to satisfy blockio.Coder.
func (c *Coder) Close() error { return nil }
