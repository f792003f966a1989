// Package filter implements the composable transform chain that sits
// between a multichunk's packed bytes and whatever backing store receives
// them (spec §4.7). A filter chain is identified end-to-end by a single
// 16-bit ID carried in the multichunk header; the core treats that ID as
// opaque and this package is what resolves it to concrete transforms.
package filter

import (
	"fmt"

	"github.com/X-Ryl669/frostcore/pkg/blockio"
	"github.com/X-Ryl669/frostcore/pkg/blockio/bwtcoder"
)

// ID is the stable 16-bit filter-chain identifier stored in a multichunk's
// header (spec §4.7: "the actual mapping table is external to the core").
type ID uint16

const (
	// Identity passes bytes through unchanged.
	Identity ID = 0
	// Compression runs bytes through the block-sorting compressor.
	Compression ID = 1
	// EncryptedCompression additionally authenticates and encrypts the
	// compressed stream. Not implemented by this core (see
	// encryptedCompressionFilter below) — it exists as a reserved, documented
	// contract so callers can persist the ID without this package lying
	// about what it can do.
	EncryptedCompression ID = 2
)

// Filter is the two-contract transform defined by spec §4.7: applyForward
// runs plaintext to stored form on write, applyReverse is its inverse on
// read. Implementations operate on whole in-memory buffers; streaming is
// layered on top by blockio for the Compression filter specifically.
type Filter interface {
	ID() ID
	ApplyForward(src []byte) ([]byte, error)
	ApplyReverse(src []byte) ([]byte, error)
}

// EntropyThreshold is the default normalized-entropy (bits-per-bit, in
// [0,1]) cutoff above which the compression filter skips straight to the
// identity path rather than spend a compression pass on data unlikely to
// shrink (spec §5 of SPEC_FULL.md, "entropy-gated filter selection",
// grounded in original_source's BSCLib short-circuiting high-entropy input
// before invoking its sorting transform).
const EntropyThreshold = 0.9

type identityFilter struct{}

// NewIdentity returns the no-op filter at ID 0.
func NewIdentity() Filter { return identityFilter{} }

func (identityFilter) ID() ID                               { return Identity }
func (identityFilter) ApplyForward(src []byte) ([]byte, error) { return src, nil }
func (identityFilter) ApplyReverse(src []byte) ([]byte, error) { return src, nil }

// compressionFilter wraps blockio's streaming block-sorting compressor
// behind the Filter contract, backed by the dsnet/compress bzip2 coder.
type compressionFilter struct {
	blockSize int
	level     int
	threshold float64
	entropy   func() float64
}

// CompressionOption configures NewCompression.
type CompressionOption func(*compressionFilter)

// WithBlockSize overrides the block size handed to the streaming compressor.
func WithBlockSize(n int) CompressionOption {
	return func(f *compressionFilter) { f.blockSize = n }
}

// WithLevel sets the underlying bzip2 coder's compression level.
func WithLevel(level int) CompressionOption {
	return func(f *compressionFilter) { f.level = level }
}

// WithEntropyThreshold overrides EntropyThreshold for this filter instance.
func WithEntropyThreshold(t float64) CompressionOption {
	return func(f *compressionFilter) { f.threshold = t }
}

// WithEntropySource supplies the normalized-entropy accessor consulted
// before compressing, typically a multichunk's Entropy method (spec §4.4).
// When unset, the filter always attempts compression.
func WithEntropySource(entropy func() float64) CompressionOption {
	return func(f *compressionFilter) { f.entropy = entropy }
}

// NewCompression returns the ID-1 filter, wired to a real bzip2-backed
// block-sorting coder (pkg/blockio/bwtcoder), with optional entropy gating.
func NewCompression(opts ...CompressionOption) Filter {
	f := &compressionFilter{blockSize: 64 * 1024, threshold: EntropyThreshold}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *compressionFilter) ID() ID { return Compression }

func (f *compressionFilter) ApplyForward(src []byte) ([]byte, error) {
	if f.entropy != nil && f.entropy() >= f.threshold {
		return append([]byte{0}, src...), nil
	}

	coder := bwtcoder.New(f.level)
	defer coder.Close()

	out, err := blockio.Compress(coder, f.blockSize, src)
	if err != nil {
		return nil, fmt.Errorf("filter: compression forward: %w", err)
	}
	return append([]byte{1}, out...), nil
}

func (f *compressionFilter) ApplyReverse(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("filter: compression reverse: empty input")
	}
	tag, body := src[0], src[1:]
	if tag == 0 {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}

	coder := bwtcoder.New(f.level)
	defer coder.Close()

	out, err := blockio.Decompress(coder, body)
	if err != nil {
		return nil, fmt.Errorf("filter: compression reverse: %w", err)
	}
	return out, nil
}

// encryptedCompressionFilter documents the ID-2 contract (spec §4.7: "2:
// block-sorting + authenticated encryption") without implementing
// cryptography — key management and AEAD selection belong to the excluded
// "cryptographic primitives" collaborator (spec §1). Calling it is a
// programming error, not a runtime condition, by design: a caller that
// persists ID 2 without supplying a real implementation has misconfigured
// its chain.
type encryptedCompressionFilter struct {
	inner Filter
}

// NewEncryptedCompression returns the reserved ID-2 filter. Both methods
// return an error; this exists so the ID has a named, documented home in
// the chain rather than silently falling through to identity.
func NewEncryptedCompression() Filter {
	return encryptedCompressionFilter{inner: NewCompression()}
}

func (f encryptedCompressionFilter) ID() ID { return EncryptedCompression }

func (f encryptedCompressionFilter) ApplyForward([]byte) ([]byte, error) {
	return nil, fmt.Errorf("filter: encrypted compression (ID %d) has no cryptographic implementation in this core; supply an external AEAD-wrapping filter", EncryptedCompression)
}

func (f encryptedCompressionFilter) ApplyReverse([]byte) ([]byte, error) {
	return nil, fmt.Errorf("filter: encrypted compression (ID %d) has no cryptographic implementation in this core; supply an external AEAD-wrapping filter", EncryptedCompression)
}

// Chain composes filters left-to-right on write and right-to-left on read
// (spec §4.7).
type Chain struct {
	filters []Filter
}

// NewChain builds a chain from filters in write order.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Forward runs src through every filter in order, plaintext to stored form.
func (c *Chain) Forward(src []byte) ([]byte, error) {
	cur := src
	for _, f := range c.filters {
		out, err := f.ApplyForward(cur)
		if err != nil {
			return nil, fmt.Errorf("filter chain: forward through ID %d: %w", f.ID(), err)
		}
		cur = out
	}
	return cur, nil
}

// Reverse runs src back through every filter in reverse order.
func (c *Chain) Reverse(src []byte) ([]byte, error) {
	cur := src
	for i := len(c.filters) - 1; i >= 0; i-- {
		f := c.filters[i]
		out, err := f.ApplyReverse(cur)
		if err != nil {
			return nil, fmt.Errorf("filter chain: reverse through ID %d: %w", f.ID(), err)
		}
		cur = out
	}
	return cur, nil
}
