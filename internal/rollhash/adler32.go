// Package rollhash implements the Adler-32 rolling checksum used both for
// on-wire integrity (block headers, block trailers) and as the chunker's
// incremental boundary-detection hash.
package rollhash

const modAdler = 65521

// nmaxBeforeReduce is the number of bytes that can be folded into the running
// sums before a modulo reduction is required to avoid 32-bit overflow of the
// intermediate sum (the classic zlib constant).
const nmaxBeforeReduce = 5552

// Adler32 is a resumable Adler-32 accumulator. The zero value is not ready
// for use; call Start first.
type Adler32 struct {
	a, b uint32
}

// Start (re)initializes the accumulator to the canonical Adler-32 seed.
func (h *Adler32) Start() {
	h.a = 1
	h.b = 0
}

// Append folds a single byte into the running sums in O(1).
// Append(b) is defined to equal Update([]byte{b}).
func (h *Adler32) Append(b byte) {
	h.a += uint32(b)
	if h.a >= modAdler {
		h.a -= modAdler
	}
	h.b += h.a
	if h.b >= modAdler {
		h.b -= modAdler
	}
}

// Update folds a batch of bytes into the running sums, reducing modulo
// every nmaxBeforeReduce bytes instead of on every byte.
func (h *Adler32) Update(p []byte) {
	a, b := h.a, h.b
	for len(p) > 0 {
		n := len(p)
		if n > nmaxBeforeReduce {
			n = nmaxBeforeReduce
		}
		for _, c := range p[:n] {
			a += uint32(c)
			b += a
		}
		a %= modAdler
		b %= modAdler
		p = p[n:]
	}
	h.a, h.b = a, b
}

// Finalize returns the canonical big-endian Adler-32 value: (b << 16) | a.
// This is the form used whenever the checksum is serialized to the wire.
func (h *Adler32) Finalize() uint32 {
	return h.b<<16 | h.a
}

// Native returns the same checksum in whatever order is fastest to compute
// on this platform. For Adler-32 there is no native-byte-order distinction
// at the algorithm level (unlike e.g. a CRC), so Native and Finalize agree;
// the accessor exists so call sites that don't care about wire format
// (the chunker's rolling hash) aren't tied to the serialization contract.
func (h *Adler32) Native() uint32 {
	return h.Finalize()
}

// Checksum computes the one-shot Adler-32 checksum of p, equivalent to
// Start followed by Update(p) followed by Finalize.
func Checksum(p []byte) uint32 {
	var h Adler32
	h.Start()
	h.Update(p)
	return h.Finalize()
}
