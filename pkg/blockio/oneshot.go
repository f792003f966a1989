package blockio

import (
	"bytes"
	"io"
)

// countingWriter discards bytes but counts them, used to size an output
// buffer before actually producing it.
type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// CompressSize runs a full compression pass into a null sink and reports
// the exact number of bytes it would produce, without materializing them.
// The source length is always known for an in-memory buffer, so no
// placeholder patch is ever needed here.
func CompressSize(coder Coder, blockSize int, src []byte) (int64, error) {
	s := NewWriteSession(coder, blockSize)
	s.SetKnownTotalSize(int64(len(src)))
	var cw countingWriter
	if _, err := s.CompressStream(&cw, bytes.NewReader(src), 0, true); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// Compress compresses src in one call, sized by a prior CompressSize call
// (spec §4.5 "dry-run sizing": pipe into a null sink to learn the size,
// then allocate and run again for real").
func Compress(coder Coder, blockSize int, src []byte) ([]byte, error) {
	n, err := CompressSize(coder, blockSize, src)
	if err != nil {
		return nil, err
	}
	dst := bytes.NewBuffer(make([]byte, 0, n))
	s := NewWriteSession(coder, blockSize)
	s.SetKnownTotalSize(int64(len(src)))
	if _, err := s.CompressStream(dst, bytes.NewReader(src), 0, true); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// Decompress decodes a full compressed stream produced by Compress.
func Decompress(coder Coder, src []byte) ([]byte, error) {
	s := NewReadSession(coder)
	var dst bytes.Buffer
	r := bytes.NewReader(src)
	for {
		n, err := s.DecompressStream(&dst, r, 0)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return dst.Bytes(), nil
}

var _ io.Writer = (*countingWriter)(nil)
